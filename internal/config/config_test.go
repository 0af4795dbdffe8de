package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	s := Defaults()

	if s.Width != 400 || s.Height != 400 {
		t.Errorf("default size: got %dx%d, want 400x400", s.Width, s.Height)
	}
	if !s.Circular {
		t.Error("default shape should be circular")
	}
	if s.RefreshRate != 60 {
		t.Errorf("default refresh rate: got %d, want 60", s.RefreshRate)
	}
	if s.XOffset != 0 || s.YOffset != 0 {
		t.Errorf("default offsets: got (%d, %d), want (0, 0)", s.XOffset, s.YOffset)
	}
	if s.ZoomLow != 2.0 || s.ZoomHigh != 4.0 {
		t.Errorf("default presets: got (%v, %v), want (2.0, 4.0)", s.ZoomLow, s.ZoomHigh)
	}
}

func TestNormalizeClampsValues(t *testing.T) {
	s := &Settings{
		Width:       -10,
		Height:      0,
		RefreshRate: 500,
		ZoomLow:     0.25,
		ZoomHigh:    -3,
	}
	s.Normalize()

	if s.Width != 400 || s.Height != 400 {
		t.Errorf("size not restored to defaults: %dx%d", s.Width, s.Height)
	}
	if s.RefreshRate != MaxRefreshRate {
		t.Errorf("refresh rate: got %d, want %d", s.RefreshRate, MaxRefreshRate)
	}
	if s.ZoomLow != 2.0 || s.ZoomHigh != 4.0 {
		t.Errorf("presets not restored to defaults: (%v, %v)", s.ZoomLow, s.ZoomHigh)
	}

	// Normalize is idempotent.
	copy := *s
	s.Normalize()
	if *s != copy {
		t.Errorf("second Normalize changed settings: %+v vs %+v", *s, copy)
	}
}

func TestNormalizeKeepsOffsets(t *testing.T) {
	s := Defaults()
	s.XOffset = -900
	s.YOffset = 1200
	s.Normalize()

	if s.XOffset != -900 || s.YOffset != 1200 {
		t.Errorf("offsets were clamped: (%d, %d)", s.XOffset, s.YOffset)
	}
}

func TestManagerCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")

	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("settings file not created: %v", err)
	}

	s := m.Get()
	if *s != *Defaults() {
		t.Errorf("fresh manager settings differ from defaults: %+v", s)
	}
}

func TestManagerRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")

	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	s := m.Get()
	s.Width = 600
	s.Height = 300
	s.Circular = false
	s.RefreshRate = 30
	s.XOffset = 150
	if err := m.Update(s); err != nil {
		t.Fatalf("Update: %v", err)
	}

	// Reload from disk through a fresh manager.
	m2, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager (reload): %v", err)
	}
	got := m2.Get()
	if got.Width != 600 || got.Height != 300 || got.Circular || got.RefreshRate != 30 || got.XOffset != 150 {
		t.Errorf("round trip mismatch: %+v", got)
	}
}

func TestManagerClampsLoadedValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	raw := map[string]any{
		"width":        -5,
		"height":       200,
		"refresh_rate": 9999,
		"zoom_low":     0.1,
		"zoom_high":    6.0,
	}
	data, err := json.Marshal(raw)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	s := m.Get()
	if s.Width != 400 {
		t.Errorf("width: got %d, want default 400", s.Width)
	}
	if s.Height != 200 {
		t.Errorf("height: got %d, want 200", s.Height)
	}
	if s.RefreshRate != MaxRefreshRate {
		t.Errorf("refresh rate: got %d, want %d", s.RefreshRate, MaxRefreshRate)
	}
	if s.ZoomLow != 2.0 {
		t.Errorf("zoom_low: got %v, want default 2.0", s.ZoomLow)
	}
	if s.ZoomHigh != 6.0 {
		t.Errorf("zoom_high: got %v, want 6.0", s.ZoomHigh)
	}
}

func TestManagerYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	yamlData := "width: 512\nheight: 512\ncircular: false\nrefresh_rate: 90\n"
	if err := os.WriteFile(path, []byte(yamlData), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	s := m.Get()
	if s.Width != 512 || s.Height != 512 || s.Circular || s.RefreshRate != 90 {
		t.Errorf("yaml settings mismatch: %+v", s)
	}
}

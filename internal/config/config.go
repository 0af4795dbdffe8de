package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/loupe-sh/loupe/internal/logger"
	"gopkg.in/yaml.v3"
)

const (
	// MinRefreshRate and MaxRefreshRate bound the magnifier refresh timer.
	MinRefreshRate = 1
	MaxRefreshRate = 144

	// MinZoom is the magnification floor; values below never shrink content.
	MinZoom = 1.0
)

// Settings is the flat persisted configuration consumed by the engine on
// startup and written back by the settings surface.
type Settings struct {
	Width       int     `json:"width" yaml:"width"`
	Height      int     `json:"height" yaml:"height"`
	Circular    bool    `json:"circular" yaml:"circular"`
	RefreshRate int     `json:"refresh_rate" yaml:"refresh_rate"`
	XOffset     int     `json:"x_offset" yaml:"x_offset"`
	YOffset     int     `json:"y_offset" yaml:"y_offset"`
	ZoomLow     float64 `json:"zoom_low" yaml:"zoom_low"`
	ZoomHigh    float64 `json:"zoom_high" yaml:"zoom_high"`

	// Hotkey bindings, consumed by the hotkey listener rather than the engine.
	ToggleHotkey string `json:"toggle_hotkey" yaml:"toggle_hotkey"`
	ZoomHotkey   string `json:"zoom_hotkey" yaml:"zoom_hotkey"`

	LogLevel string `json:"log_level" yaml:"log_level"`
}

// Defaults returns the default settings.
func Defaults() *Settings {
	return &Settings{
		Width:        400,
		Height:       400,
		Circular:     true,
		RefreshRate:  60,
		XOffset:      0,
		YOffset:      0,
		ZoomLow:      2.0,
		ZoomHigh:     4.0,
		ToggleHotkey: "Mod4-x",
		ZoomHotkey:   "Mod4-z",
		LogLevel:     "info",
	}
}

// Normalize clamps out-of-domain values in place so the engine never sees
// them. Zero or negative sizes fall back to the defaults.
func (s *Settings) Normalize() {
	def := Defaults()

	if s.Width <= 0 {
		s.Width = def.Width
	}
	if s.Height <= 0 {
		s.Height = def.Height
	}
	if s.RefreshRate < MinRefreshRate {
		s.RefreshRate = MinRefreshRate
	}
	if s.RefreshRate > MaxRefreshRate {
		s.RefreshRate = MaxRefreshRate
	}
	if s.ZoomLow < MinZoom {
		s.ZoomLow = def.ZoomLow
	}
	if s.ZoomHigh < MinZoom {
		s.ZoomHigh = def.ZoomHigh
	}
	if s.ToggleHotkey == "" {
		s.ToggleHotkey = def.ToggleHotkey
	}
	if s.ZoomHotkey == "" {
		s.ZoomHotkey = def.ZoomHotkey
	}
	if s.LogLevel == "" {
		s.LogLevel = def.LogLevel
	}
}

// Manager handles loading and persisting settings
type Manager struct {
	settingsPath string
	settings     *Settings
	mu           sync.RWMutex
}

// NewManager creates a settings manager backed by the given file. An empty
// path selects the default location under the user config directory. A
// missing file is created with defaults.
func NewManager(settingsFile string) (*Manager, error) {
	actualPath := settingsFile
	if actualPath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		actualPath = filepath.Join(homeDir, ".config", "loupe", "settings.json")
	}

	if err := os.MkdirAll(filepath.Dir(actualPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create settings directory: %w", err)
	}

	m := &Manager{settingsPath: actualPath}

	if err := m.load(); err != nil {
		if os.IsNotExist(err) {
			logger.WithComponent("config").Info().
				Str("path", m.settingsPath).
				Msg("Settings file not found, creating defaults")
			m.settings = Defaults()
			if err := m.Save(); err != nil {
				return nil, fmt.Errorf("failed to create default settings: %w", err)
			}
		} else {
			return nil, fmt.Errorf("failed to read settings: %w", err)
		}
	}

	logger.WithComponent("config").Info().
		Str("path", m.settingsPath).
		Int("width", m.settings.Width).
		Int("height", m.settings.Height).
		Int("refresh_rate", m.settings.RefreshRate).
		Msg("Settings loaded")

	return m, nil
}

// load reads the settings file, accepting JSON or YAML by extension.
func (m *Manager) load() error {
	data, err := os.ReadFile(m.settingsPath)
	if err != nil {
		return err
	}

	settings := Defaults()
	if isYAMLPath(m.settingsPath) {
		if err := yaml.Unmarshal(data, settings); err != nil {
			return fmt.Errorf("failed to parse settings: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, settings); err != nil {
			return fmt.Errorf("failed to parse settings: %w", err)
		}
	}

	settings.Normalize()

	m.mu.Lock()
	m.settings = settings
	m.mu.Unlock()

	return nil
}

// Get returns a copy of the current settings.
func (m *Manager) Get() *Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.settings == nil {
		return Defaults()
	}
	s := *m.settings
	return &s
}

// Update replaces the settings, normalizes them, and persists the result.
func (m *Manager) Update(s *Settings) error {
	s.Normalize()

	m.mu.Lock()
	m.settings = s
	m.mu.Unlock()

	return m.Save()
}

// Save writes the current settings to disk.
func (m *Manager) Save() error {
	m.mu.RLock()
	settings := m.settings
	m.mu.RUnlock()

	if settings == nil {
		settings = Defaults()
	}

	var (
		data []byte
		err  error
	)
	if isYAMLPath(m.settingsPath) {
		data, err = yaml.Marshal(settings)
	} else {
		data, err = json.MarshalIndent(settings, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	if err := os.WriteFile(m.settingsPath, data, 0644); err != nil {
		logger.WithComponent("config").Error().
			Err(err).
			Str("path", m.settingsPath).
			Msg("Failed to write settings")
		return err
	}

	logger.WithComponent("config").Debug().
		Str("path", m.settingsPath).
		Msg("Settings saved")
	return nil
}

// SetLogLevel stores a new log level and persists it.
func (m *Manager) SetLogLevel(level string) error {
	m.mu.Lock()
	m.settings.LogLevel = level
	m.mu.Unlock()
	return m.Save()
}

// GetPath returns the settings file path.
func (m *Manager) GetPath() string {
	return m.settingsPath
}

func isYAMLPath(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

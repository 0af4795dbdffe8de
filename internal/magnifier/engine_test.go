package magnifier

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/loupe-sh/loupe/internal/backend"
	"github.com/loupe-sh/loupe/internal/config"
)

// fakeBackend records every call the engine makes.
type fakeBackend struct {
	name       string
	selfDriven bool

	initErr error
	showErr error

	initialized int
	disposed    int
	shows       int
	hides       int
	ticks       int

	width, height int
	zooms         []float64
	shapes        []bool
	rates         []int
	moves         [][2]int
}

func (f *fakeBackend) Initialize() error {
	if f.initErr != nil {
		return f.initErr
	}
	f.initialized++
	return nil
}

func (f *fakeBackend) SetWindowSize(width, height int) { f.width, f.height = width, height }
func (f *fakeBackend) SetZoom(level float64)           { f.zooms = append(f.zooms, level) }
func (f *fakeBackend) SetShape(circular bool)          { f.shapes = append(f.shapes, circular) }
func (f *fakeBackend) SetRefreshRate(hz int)           { f.rates = append(f.rates, hz) }
func (f *fakeBackend) Move(x, y int)                   { f.moves = append(f.moves, [2]int{x, y}) }

func (f *fakeBackend) Show() error {
	if f.showErr != nil {
		return f.showErr
	}
	f.shows++
	return nil
}

func (f *fakeBackend) Hide() error     { f.hides++; return nil }
func (f *fakeBackend) Tick() error     { f.ticks++; return nil }
func (f *fakeBackend) SelfDriven() bool { return f.selfDriven }
func (f *fakeBackend) Dispose()        { f.disposed++ }
func (f *fakeBackend) Name() string    { return f.name }

func newTestEngine(t *testing.T) (*Engine, *fakeBackend) {
	t.Helper()
	cfg := config.Defaults()
	e := New(cfg, false)
	fb := &fakeBackend{name: "fake"}
	e.SetBackendFactories(
		func(*config.Settings) (backend.Backend, error) {
			return nil, errors.New("no native support")
		},
		func(*config.Settings) (backend.Backend, error) {
			return fb, nil
		},
	)
	return e, fb
}

func TestInitializeFallsBackToGeneric(t *testing.T) {
	e, fb := newTestEngine(t)

	if !e.Initialize() {
		t.Fatal("Initialize returned false")
	}
	if fb.initialized != 1 {
		t.Errorf("generic backend initialized %d times, want 1", fb.initialized)
	}
	if e.State() != StateHidden {
		t.Errorf("state = %v, want %v", e.State(), StateHidden)
	}
	if e.BackendName() != "fake" {
		t.Errorf("backend name = %q, want %q", e.BackendName(), "fake")
	}
}

func TestInitializeIdempotent(t *testing.T) {
	e, fb := newTestEngine(t)

	for i := 0; i < 3; i++ {
		if !e.Initialize() {
			t.Fatalf("Initialize call %d returned false", i+1)
		}
	}
	if fb.initialized != 1 {
		t.Errorf("backend initialized %d times, want 1", fb.initialized)
	}
}

func TestInitializePrefersNative(t *testing.T) {
	cfg := config.Defaults()
	e := New(cfg, false)
	native := &fakeBackend{name: "native", selfDriven: true}
	generic := &fakeBackend{name: "generic"}
	e.SetBackendFactories(
		func(*config.Settings) (backend.Backend, error) { return native, nil },
		func(*config.Settings) (backend.Backend, error) { return generic, nil },
	)

	if !e.Initialize() {
		t.Fatal("Initialize returned false")
	}
	if e.BackendName() != "native" {
		t.Errorf("backend name = %q, want %q", e.BackendName(), "native")
	}
	if generic.initialized != 0 {
		t.Error("generic backend initialized despite native success")
	}
}

func TestInitializeDisposesFailedNative(t *testing.T) {
	cfg := config.Defaults()
	e := New(cfg, false)
	native := &fakeBackend{name: "native", initErr: errors.New("magnification session rejected")}
	generic := &fakeBackend{name: "generic"}
	e.SetBackendFactories(
		func(*config.Settings) (backend.Backend, error) { return native, nil },
		func(*config.Settings) (backend.Backend, error) { return generic, nil },
	)

	if !e.Initialize() {
		t.Fatal("Initialize returned false")
	}
	if native.disposed != 1 {
		t.Errorf("failed native backend disposed %d times, want 1", native.disposed)
	}
	if e.BackendName() != "generic" {
		t.Errorf("backend name = %q, want %q", e.BackendName(), "generic")
	}
}

func TestInitializeNativeDisabled(t *testing.T) {
	cfg := config.Defaults()
	e := New(cfg, true)
	native := &fakeBackend{name: "native"}
	generic := &fakeBackend{name: "generic"}
	e.SetBackendFactories(
		func(*config.Settings) (backend.Backend, error) { return native, nil },
		func(*config.Settings) (backend.Backend, error) { return generic, nil },
	)

	if !e.Initialize() {
		t.Fatal("Initialize returned false")
	}
	if e.BackendName() != "generic" {
		t.Errorf("backend name = %q, want %q", e.BackendName(), "generic")
	}
	if native.initialized != 0 {
		t.Error("native backend initialized despite being disabled")
	}
}

func TestShowBeforeInitialize(t *testing.T) {
	e, fb := newTestEngine(t)

	e.ShowWindow()

	if fb.initialized != 1 {
		t.Errorf("backend initialized %d times, want 1", fb.initialized)
	}
	if !e.IsVisible() {
		t.Error("magnifier not visible after ShowWindow")
	}
	if fb.shows != 1 {
		t.Errorf("backend shown %d times, want 1", fb.shows)
	}
}

func TestShowHideCycle(t *testing.T) {
	e, fb := newTestEngine(t)

	e.ShowWindow()
	e.ShowWindow() // no-op while visible
	e.HideWindow()
	e.HideWindow() // no-op while hidden
	e.ShowWindow()

	if fb.shows != 2 {
		t.Errorf("backend shown %d times, want 2", fb.shows)
	}
	if fb.hides != 1 {
		t.Errorf("backend hidden %d times, want 1", fb.hides)
	}
	if fb.disposed != 0 {
		t.Error("backend disposed during show/hide cycle")
	}
}

func TestToggleVisibility(t *testing.T) {
	e, _ := newTestEngine(t)

	if got := e.ToggleVisibility(); !got {
		t.Error("first toggle should report visible")
	}
	if got := e.ToggleVisibility(); got {
		t.Error("second toggle should report hidden")
	}
}

func TestSetRefreshRateClampIdempotent(t *testing.T) {
	e, fb := newTestEngine(t)
	e.Initialize()
	fb.rates = nil

	e.SetRefreshRate(200)
	first := e.RefreshRate()
	e.SetRefreshRate(200)
	second := e.RefreshRate()

	if first != config.MaxRefreshRate || second != config.MaxRefreshRate {
		t.Errorf("refresh rate = %d then %d, want %d both times",
			first, second, config.MaxRefreshRate)
	}
	for _, hz := range fb.rates {
		if hz != config.MaxRefreshRate {
			t.Errorf("backend received rate %d, want %d", hz, config.MaxRefreshRate)
		}
	}

	e.SetRefreshRate(0)
	if e.RefreshRate() != config.MinRefreshRate {
		t.Errorf("refresh rate = %d, want %d", e.RefreshRate(), config.MinRefreshRate)
	}
}

func TestSetZoomClamped(t *testing.T) {
	e, _ := newTestEngine(t)
	e.Initialize()

	e.SetZoom(0.25)
	if e.Zoom() != config.MinZoom {
		t.Errorf("zoom = %v, want %v", e.Zoom(), config.MinZoom)
	}
	e.SetZoom(8.0)
	if e.Zoom() != 8.0 {
		t.Errorf("zoom = %v, want 8.0", e.Zoom())
	}
}

func TestToggleZoomPreset(t *testing.T) {
	e, fb := newTestEngine(t)
	e.Initialize()
	cfg := config.Defaults()
	fb.zooms = nil

	if got := e.ToggleZoomPreset(); !got {
		t.Error("first toggle should report active")
	}
	if e.Zoom() != cfg.ZoomLow {
		t.Errorf("zoom after first toggle = %v, want low preset %v", e.Zoom(), cfg.ZoomLow)
	}

	if got := e.ToggleZoomPreset(); got {
		t.Error("second toggle should report inactive")
	}
	if e.Zoom() != cfg.ZoomHigh {
		t.Errorf("zoom after second toggle = %v, want high preset %v", e.Zoom(), cfg.ZoomHigh)
	}

	want := []float64{cfg.ZoomLow, cfg.ZoomHigh}
	if len(fb.zooms) != len(want) {
		t.Fatalf("backend received %d zoom updates, want %d", len(fb.zooms), len(want))
	}
	for i, z := range want {
		if fb.zooms[i] != z {
			t.Errorf("zoom update %d = %v, want %v", i, fb.zooms[i], z)
		}
	}
}

func TestSetterPropagation(t *testing.T) {
	e, fb := newTestEngine(t)
	e.Initialize()

	e.SetResolution(640, 480)
	e.SetWindowShape(false)
	e.MoveWindow(25, -40)

	if fb.width != 640 || fb.height != 480 {
		t.Errorf("backend size = %dx%d, want 640x480", fb.width, fb.height)
	}
	if len(fb.shapes) == 0 || fb.shapes[len(fb.shapes)-1] != false {
		t.Error("backend did not receive rectangular shape")
	}
	if len(fb.moves) == 0 || fb.moves[len(fb.moves)-1] != [2]int{25, -40} {
		t.Errorf("backend moves = %v, want final {25 -40}", fb.moves)
	}
}

func TestSetResolutionRejectsNonPositive(t *testing.T) {
	e, fb := newTestEngine(t)
	e.Initialize()

	e.SetResolution(0, 400)
	e.SetResolution(400, -1)

	if fb.width != 0 || fb.height != 0 {
		t.Errorf("backend size = %dx%d, want no update", fb.width, fb.height)
	}
}

func TestSettersBeforeInitializeOnlyStore(t *testing.T) {
	e, fb := newTestEngine(t)

	e.SetZoom(3.0)
	e.SetRefreshRate(30)

	if len(fb.zooms) != 0 || len(fb.rates) != 0 {
		t.Error("backend received updates before initialization")
	}
	if e.Zoom() != 3.0 || e.RefreshRate() != 30 {
		t.Errorf("stored zoom=%v rate=%d, want 3.0 and 30", e.Zoom(), e.RefreshRate())
	}
}

func TestDisposeIdempotent(t *testing.T) {
	e, fb := newTestEngine(t)
	e.ShowWindow()

	e.Dispose()
	e.Dispose()

	if fb.disposed != 1 {
		t.Errorf("backend disposed %d times, want 1", fb.disposed)
	}
	if e.State() != StateDisposed {
		t.Errorf("state = %v, want %v", e.State(), StateDisposed)
	}
	if e.Initialize() {
		t.Error("Initialize succeeded after Dispose")
	}
	e.ShowWindow()
	if e.IsVisible() {
		t.Error("magnifier visible after Dispose")
	}
}

func TestRunDrainsIntentsAndTicks(t *testing.T) {
	e, fb := newTestEngine(t)
	e.SetRefreshRate(config.MaxRefreshRate)

	e.Post(ShowRequested)
	e.Post(ZoomPresetToggleRequested)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := e.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run returned %v, want deadline exceeded", err)
	}

	if fb.shows != 1 {
		t.Errorf("backend shown %d times, want 1", fb.shows)
	}
	if len(fb.zooms) == 0 {
		t.Error("zoom preset toggle never reached the backend")
	}
	if fb.ticks == 0 {
		t.Error("backend never ticked while visible")
	}
	if fb.disposed != 1 {
		t.Errorf("backend disposed %d times after Run, want 1", fb.disposed)
	}
}

func TestRunDoesNotTickSelfDrivenBackend(t *testing.T) {
	cfg := config.Defaults()
	e := New(cfg, false)
	fb := &fakeBackend{name: "native", selfDriven: true}
	e.SetBackendFactories(
		func(*config.Settings) (backend.Backend, error) { return fb, nil },
		func(*config.Settings) (backend.Backend, error) { return nil, errors.New("unused") },
	)

	e.Post(ShowRequested)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	_ = e.Run(ctx)

	if fb.ticks != 0 {
		t.Errorf("self-driven backend ticked %d times, want 0", fb.ticks)
	}
}

func TestPostNeverBlocks(t *testing.T) {
	e, _ := newTestEngine(t)
	for i := 0; i < 100; i++ {
		e.Post(VisibilityToggleRequested)
	}
}

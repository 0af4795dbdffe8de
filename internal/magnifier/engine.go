// Package magnifier orchestrates the capture-scale-present loop: it selects
// a capture backend, owns the refresh timer and exposes the control API the
// settings surface and hotkey listener call into.
package magnifier

import (
	"context"
	"time"

	"github.com/loupe-sh/loupe/internal/backend"
	"github.com/loupe-sh/loupe/internal/config"
	"github.com/loupe-sh/loupe/internal/logger"
	"github.com/loupe-sh/loupe/internal/surface"
)

// State is the engine lifecycle state.
type State int

const (
	StateUninitialized State = iota
	StateHidden
	StateVisible
	StateDisposed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateHidden:
		return "hidden"
	case StateVisible:
		return "visible"
	case StateDisposed:
		return "disposed"
	}
	return "unknown"
}

// Intent is a control request posted from another goroutine (typically the
// hotkey listener). Intents are drained by the Run loop on the goroutine that
// owns the windows; foreign goroutines never touch window state directly.
type Intent int

const (
	ShowRequested Intent = iota
	HideRequested
	VisibilityToggleRequested
	ZoomPresetToggleRequested
)

// BackendFactory builds a capture backend from the current settings.
type BackendFactory func(cfg *config.Settings) (backend.Backend, error)

// Engine owns the magnifier configuration, exactly one capture backend and
// the refresh timer. All methods except Post must be called from the
// goroutine running Run (or, before Run starts, from the goroutine that will
// run it).
type Engine struct {
	cfg *config.Settings

	zoomLevel        float64
	zoomPresetActive bool

	state   State
	backend backend.Backend

	nativeDisabled bool
	newNative      BackendFactory
	newGeneric     BackendFactory

	intents chan Intent
	ticker  *time.Ticker
	tickC   <-chan time.Time
}

// New creates an engine with a copy of the given settings. When
// nativeDisabled is set the native magnification backend is never probed.
func New(cfg *config.Settings, nativeDisabled bool) *Engine {
	c := *cfg
	c.Normalize()

	e := &Engine{
		cfg:            &c,
		zoomLevel:      c.ZoomLow,
		nativeDisabled: nativeDisabled,
		intents:        make(chan Intent, 16),
	}
	e.newNative = backend.ProbeNative
	e.newGeneric = func(cfg *config.Settings) (backend.Backend, error) {
		surf, err := surface.New(cfg.Width, cfg.Height)
		if err != nil {
			return nil, err
		}
		return backend.NewGeneric(surf, cfg), nil
	}
	return e
}

// SetBackendFactories overrides backend construction. Used by tests.
func (e *Engine) SetBackendFactories(native, generic BackendFactory) {
	e.newNative = native
	e.newGeneric = generic
}

// Initialize selects and initializes a backend: native first where the
// platform has one, generic capture as the fallback. It is idempotent and
// returns false only when no backend could be brought up at all.
func (e *Engine) Initialize() bool {
	if e.state == StateDisposed {
		return false
	}
	if e.state != StateUninitialized {
		return true
	}

	log := logger.WithComponent("engine")

	if !e.nativeDisabled {
		if b, err := e.newNative(e.cfg); err != nil {
			log.Info().Err(err).Msg("Native magnification unavailable, using screen capture")
		} else if err := b.Initialize(); err != nil {
			log.Warn().Err(err).Msg("Native backend failed to initialize, falling back to screen capture")
			b.Dispose()
		} else {
			e.backend = b
		}
	}

	if e.backend == nil {
		b, err := e.newGeneric(e.cfg)
		if err != nil {
			log.Error().Err(err).Msg("Failed to create capture backend")
			return false
		}
		if err := b.Initialize(); err != nil {
			log.Error().Err(err).Msg("Failed to initialize capture backend")
			b.Dispose()
			return false
		}
		e.backend = b
	}

	e.backend.SetZoom(e.zoomLevel)
	e.backend.SetRefreshRate(e.cfg.RefreshRate)

	e.state = StateHidden
	log.Info().
		Str("backend", e.backend.Name()).
		Int("width", e.cfg.Width).
		Int("height", e.cfg.Height).
		Int("refresh_rate", e.cfg.RefreshRate).
		Msg("Magnifier initialized")
	return true
}

// ShowWindow makes the magnifier visible, initializing first if needed, and
// arms the refresh timer for backends that need external ticking.
func (e *Engine) ShowWindow() {
	if e.state == StateDisposed {
		return
	}
	if e.state == StateUninitialized && !e.Initialize() {
		return
	}
	if e.state == StateVisible {
		return
	}

	if err := e.backend.Show(); err != nil {
		logger.WithComponent("engine").Error().Err(err).Msg("Failed to show magnifier")
		return
	}
	e.state = StateVisible
	e.armTicker()
}

// HideWindow hides the magnifier and stops the refresh timer. Resources stay
// allocated so re-showing is fast.
func (e *Engine) HideWindow() {
	if e.state != StateVisible {
		return
	}
	e.disarmTicker()
	if err := e.backend.Hide(); err != nil {
		logger.WithComponent("engine").Warn().Err(err).Msg("Failed to hide magnifier")
	}
	e.state = StateHidden
}

// ToggleVisibility flips between visible and hidden and reports the new
// visibility.
func (e *Engine) ToggleVisibility() bool {
	if e.IsVisible() {
		e.HideWindow()
	} else {
		e.ShowWindow()
	}
	return e.IsVisible()
}

// IsVisible reports whether the magnifier is currently shown.
func (e *Engine) IsVisible() bool {
	return e.state == StateVisible
}

// State returns the engine lifecycle state.
func (e *Engine) State() State {
	return e.state
}

// BackendName returns the active backend's name, or empty before
// initialization.
func (e *Engine) BackendName() string {
	if e.backend == nil {
		return ""
	}
	return e.backend.Name()
}

// SetResolution sets the magnifier window size. Non-positive dimensions are
// rejected.
func (e *Engine) SetResolution(width, height int) {
	if width < 1 || height < 1 {
		logger.WithComponent("engine").Warn().
			Int("width", width).
			Int("height", height).
			Msg("Rejected non-positive window size")
		return
	}
	e.cfg.Width = width
	e.cfg.Height = height
	if e.backend != nil {
		e.backend.SetWindowSize(width, height)
	}
}

// SetWindowShape switches between circular and rectangular clipping.
func (e *Engine) SetWindowShape(circular bool) {
	e.cfg.Circular = circular
	if e.backend != nil {
		e.backend.SetShape(circular)
	}
}

// SetRefreshRate sets the refresh rate, clamped to the supported range, and
// re-arms the running timer.
func (e *Engine) SetRefreshRate(hz int) {
	if hz < config.MinRefreshRate {
		hz = config.MinRefreshRate
	}
	if hz > config.MaxRefreshRate {
		hz = config.MaxRefreshRate
	}
	e.cfg.RefreshRate = hz
	if e.backend != nil {
		e.backend.SetRefreshRate(hz)
	}
	if e.ticker != nil {
		e.disarmTicker()
		e.armTicker()
	}
}

// RefreshRate returns the current refresh rate in Hz.
func (e *Engine) RefreshRate() int {
	return e.cfg.RefreshRate
}

// SetZoom sets the active zoom level, clamped at 1.0.
func (e *Engine) SetZoom(level float64) {
	if level < config.MinZoom {
		level = config.MinZoom
	}
	e.zoomLevel = level
	if e.backend != nil {
		e.backend.SetZoom(level)
	}
}

// Zoom returns the active zoom level.
func (e *Engine) Zoom() float64 {
	return e.zoomLevel
}

// ToggleZoomPreset flips between the low and high zoom presets and reports
// the new toggle state. The first toggle from the inactive state applies the
// low preset.
func (e *Engine) ToggleZoomPreset() bool {
	e.zoomPresetActive = !e.zoomPresetActive
	if e.zoomPresetActive {
		e.SetZoom(e.cfg.ZoomLow)
	} else {
		e.SetZoom(e.cfg.ZoomHigh)
	}
	return e.zoomPresetActive
}

// MoveWindow sets the window offset from screen center.
func (e *Engine) MoveWindow(xOffset, yOffset int) {
	e.cfg.XOffset = xOffset
	e.cfg.YOffset = yOffset
	if e.backend != nil {
		e.backend.Move(xOffset, yOffset)
	}
}

// Dispose releases the backend and stops the timer. Terminal and idempotent.
func (e *Engine) Dispose() {
	if e.state == StateDisposed {
		return
	}
	e.disarmTicker()
	if e.backend != nil {
		e.backend.Dispose()
	}
	e.state = StateDisposed
	logger.WithComponent("engine").Info().Msg("Magnifier disposed")
}

// Post enqueues a control intent from another goroutine. It never blocks; if
// the queue is full the intent is dropped, which is acceptable for repeated
// hotkey presses.
func (e *Engine) Post(intent Intent) {
	select {
	case e.intents <- intent:
	default:
	}
}

// Run drives the engine until the context is canceled: it drains posted
// intents and ticks the backend at the configured refresh rate while
// visible. Run must be called from the goroutine that owns the render
// surface; it disposes the engine on exit.
func (e *Engine) Run(ctx context.Context) error {
	defer e.Dispose()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case intent := <-e.intents:
			e.apply(intent)
		case <-e.tickC:
			if e.state != StateVisible || e.backend.SelfDriven() {
				continue
			}
			if err := e.backend.Tick(); err != nil {
				logger.WithComponent("engine").Debug().Err(err).Msg("Frame skipped")
			}
		}
	}
}

func (e *Engine) apply(intent Intent) {
	switch intent {
	case ShowRequested:
		e.ShowWindow()
	case HideRequested:
		e.HideWindow()
	case VisibilityToggleRequested:
		e.ToggleVisibility()
	case ZoomPresetToggleRequested:
		e.ToggleZoomPreset()
	}
}

func (e *Engine) armTicker() {
	if e.backend == nil || e.backend.SelfDriven() || e.ticker != nil {
		return
	}
	interval := time.Second / time.Duration(e.cfg.RefreshRate)
	e.ticker = time.NewTicker(interval)
	e.tickC = e.ticker.C
}

func (e *Engine) disarmTicker() {
	if e.ticker == nil {
		return
	}
	e.ticker.Stop()
	e.ticker = nil
	e.tickC = nil
}

package backend

import (
	"image"

	"github.com/loupe-sh/loupe/internal/config"
)

// Backend defines the interface for magnification backends.
//
// Exactly one backend is active for the engine's lifetime. All methods must
// be called from the goroutine that owns the render surface; Initialize is
// called once, Dispose is idempotent.
type Backend interface {
	// Initialize acquires OS and library resources. A failure is recoverable
	// for the engine, which falls back to another backend.
	Initialize() error

	// SetWindowSize resizes the magnifier window.
	SetWindowSize(width, height int)

	// SetZoom sets the magnification factor. Values below 1.0 are clamped.
	SetZoom(level float64)

	// SetShape switches between circular and rectangular clipping.
	SetShape(circular bool)

	// SetRefreshRate sets the content refresh rate in Hz, clamped to [1, 144].
	SetRefreshRate(hz int)

	// Move sets the window offset from screen center.
	Move(xOffset, yOffset int)

	// Show presents the magnifier. Safe to call before any frame has been
	// produced; the window stays hidden until content is ready.
	Show() error

	// Hide makes the magnifier invisible without releasing resources.
	Hide() error

	// Tick produces one frame. Only meaningful for backends that are not
	// self-driven; self-driven backends ignore it.
	Tick() error

	// SelfDriven reports whether the backend refreshes its own content via an
	// OS timer, in which case the engine does not call Tick.
	SelfDriven() bool

	// Dispose releases all resources. Safe to call multiple times.
	Dispose()

	// Name returns a human-readable backend name.
	Name() string
}

// ProbeNative returns the platform's native magnification backend, or an
// error when the platform has none. The probe result is decided once at
// startup; callers cache it rather than re-checking per call.
func ProbeNative(cfg *config.Settings) (Backend, error) {
	return newNativeBackend(cfg)
}

// Presenter is the render-surface contract the generic backend draws through.
// The native backend manages its own OS window and does not use it.
type Presenter interface {
	SetImage(img *image.RGBA) error
	ApplyShape(circular bool, width, height int) error
	Move(x, y int) error
	Resize(width, height int) error
	Show() error
	Hide() error
	Close()
}

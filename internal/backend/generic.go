package backend

import (
	"fmt"
	"image"

	"github.com/kbinani/screenshot"
	"github.com/nfnt/resize"

	"github.com/loupe-sh/loupe/internal/config"
	"github.com/loupe-sh/loupe/internal/geometry"
	"github.com/loupe-sh/loupe/internal/logger"
)

// GrabFunc captures a screen rectangle and returns it as RGBA.
type GrabFunc func(rect image.Rectangle) (*image.RGBA, error)

// ScreenSizeFunc returns the primary display size in pixels.
type ScreenSizeFunc func() (width, height int)

// Generic magnifies by periodically grabbing the capture region from the
// primary display and resampling it to the window size on the CPU. It works
// on every platform the screenshot library supports and presents frames
// through a Presenter owned by the caller.
//
// Generic is not safe for concurrent use; all calls must come from the
// goroutine that owns the presenter.
type Generic struct {
	presenter Presenter

	width       int
	height      int
	circular    bool
	refreshRate int
	zoom        float64
	xOffset     int
	yOffset     int

	grab        GrabFunc
	screenSize  ScreenSizeFunc
	numDisplays func() int

	initialized bool
	disposed    bool
	framed      bool // at least one frame presented
	pendingShow bool
	visible     bool
}

// NewGeneric creates a generic capture backend with the given presenter and
// initial settings.
func NewGeneric(presenter Presenter, cfg *config.Settings) *Generic {
	g := &Generic{
		presenter:   presenter,
		width:       cfg.Width,
		height:      cfg.Height,
		circular:    cfg.Circular,
		refreshRate: cfg.RefreshRate,
		zoom:        config.MinZoom,
		xOffset:     cfg.XOffset,
		yOffset:     cfg.YOffset,
	}
	g.grab = screenshot.CaptureRect
	g.screenSize = func() (int, int) {
		bounds := screenshot.GetDisplayBounds(0)
		return bounds.Dx(), bounds.Dy()
	}
	g.numDisplays = screenshot.NumActiveDisplays
	return g
}

// SetGrabber overrides the screen-grab function. Used by tests.
func (g *Generic) SetGrabber(grab GrabFunc) {
	g.grab = grab
}

// SetScreenSize overrides the display-size probe. Used by tests.
func (g *Generic) SetScreenSize(screenSize ScreenSizeFunc) {
	g.screenSize = screenSize
}

// SetDisplayProbe overrides the active-display count probe. Used by tests.
func (g *Generic) SetDisplayProbe(numDisplays func() int) {
	g.numDisplays = numDisplays
}

// Name returns the backend name.
func (g *Generic) Name() string {
	return "generic"
}

// SelfDriven reports false: the engine drives this backend via Tick.
func (g *Generic) SelfDriven() bool {
	return false
}

// Initialize verifies that screen capture is available and positions the
// (still hidden) window.
func (g *Generic) Initialize() error {
	if g.numDisplays() < 1 {
		return fmt.Errorf("no active displays for screen capture")
	}

	screenW, screenH := g.screenSize()
	if screenW <= 0 || screenH <= 0 {
		return fmt.Errorf("invalid primary display size %dx%d", screenW, screenH)
	}

	if err := g.presenter.Resize(g.width, g.height); err != nil {
		return fmt.Errorf("failed to size render surface: %w", err)
	}
	if err := g.presenter.ApplyShape(g.circular, g.width, g.height); err != nil {
		return fmt.Errorf("failed to shape render surface: %w", err)
	}
	g.applyPosition()

	g.initialized = true
	logger.WithComponent("generic-backend").Info().
		Int("screen_width", screenW).
		Int("screen_height", screenH).
		Msg("Screen capture backend initialized")
	return nil
}

// SetWindowSize resizes the window, reapplies the clip region (it is defined
// in absolute pixels) and recenters the window.
func (g *Generic) SetWindowSize(width, height int) {
	if width < 1 || height < 1 {
		return
	}
	g.width = width
	g.height = height
	if !g.initialized {
		return
	}
	if err := g.presenter.Resize(width, height); err != nil {
		logger.WithComponent("generic-backend").Warn().Err(err).Msg("Failed to resize surface")
	}
	if err := g.presenter.ApplyShape(g.circular, width, height); err != nil {
		logger.WithComponent("generic-backend").Warn().Err(err).Msg("Failed to reapply shape")
	}
	g.applyPosition()
}

// SetZoom sets the magnification factor, clamped at 1.0.
func (g *Generic) SetZoom(level float64) {
	if level < config.MinZoom {
		level = config.MinZoom
	}
	g.zoom = level
}

// SetShape switches the clip region between ellipse and rectangle.
func (g *Generic) SetShape(circular bool) {
	g.circular = circular
	if !g.initialized {
		return
	}
	if err := g.presenter.ApplyShape(circular, g.width, g.height); err != nil {
		logger.WithComponent("generic-backend").Warn().Err(err).Msg("Failed to apply shape")
	}
}

// SetRefreshRate records the refresh rate. The engine owns the actual timer.
func (g *Generic) SetRefreshRate(hz int) {
	if hz < config.MinRefreshRate {
		hz = config.MinRefreshRate
	}
	if hz > config.MaxRefreshRate {
		hz = config.MaxRefreshRate
	}
	g.refreshRate = hz
}

// Move sets the offset from screen center and repositions the window.
func (g *Generic) Move(xOffset, yOffset int) {
	g.xOffset = xOffset
	g.yOffset = yOffset
	if g.initialized {
		g.applyPosition()
	}
}

// Show maps the window. If no frame has been produced yet, one is grabbed
// first so the surface never displays uninitialized content; if that grab
// fails the mapping is deferred to the next successful Tick.
func (g *Generic) Show() error {
	if g.disposed {
		return fmt.Errorf("backend disposed")
	}
	g.visible = true

	if !g.framed {
		if err := g.Tick(); err != nil {
			logger.WithComponent("generic-backend").Warn().
				Err(err).
				Msg("First frame not ready, deferring show")
			g.pendingShow = true
			return nil
		}
	}

	g.applyPosition()
	return g.presenter.Show()
}

// Hide unmaps the window. Resources stay allocated for a fast re-show.
func (g *Generic) Hide() error {
	g.visible = false
	g.pendingShow = false
	return g.presenter.Hide()
}

// Tick produces one frame: computes the capture region, grabs it, resamples
// to the window size with a Lanczos filter and hands the bitmap to the
// presenter. A transient failure skips the frame and is retried next tick.
func (g *Generic) Tick() error {
	if g.disposed {
		return fmt.Errorf("backend disposed")
	}

	screenW, screenH := g.screenSize()
	region := geometry.ComputeCaptureRegion(screenW, screenH, g.width, g.height, g.zoom, g.xOffset, g.yOffset)
	if region.Width < 1 || region.Height < 1 {
		// Momentarily invalid (e.g. display mode change); retry next tick.
		return fmt.Errorf("degenerate capture region %dx%d", region.Width, region.Height)
	}

	rect := image.Rect(region.Left, region.Top, region.Left+region.Width, region.Top+region.Height)
	src, err := g.grab(rect)
	if err != nil {
		return fmt.Errorf("failed to grab %v: %w", rect, err)
	}

	frame := resampleFrame(src, g.width, g.height)
	if err := g.presenter.SetImage(frame); err != nil {
		return fmt.Errorf("failed to present frame: %w", err)
	}
	g.framed = true

	if g.pendingShow && g.visible {
		g.pendingShow = false
		g.applyPosition()
		if err := g.presenter.Show(); err != nil {
			return fmt.Errorf("failed to show surface: %w", err)
		}
	}
	return nil
}

// Dispose releases the render surface. Idempotent.
func (g *Generic) Dispose() {
	if g.disposed {
		return
	}
	g.disposed = true
	g.presenter.Close()
	logger.WithComponent("generic-backend").Info().Msg("Screen capture backend disposed")
}

func (g *Generic) applyPosition() {
	screenW, screenH := g.screenSize()
	x, y := geometry.ComputeWindowPosition(screenW, screenH, g.width, g.height, g.xOffset, g.yOffset)
	if err := g.presenter.Move(x, y); err != nil {
		logger.WithComponent("generic-backend").Warn().Err(err).Msg("Failed to move surface")
	}
}

// resampleFrame scales src to width x height with a Lanczos filter.
func resampleFrame(src *image.RGBA, width, height int) *image.RGBA {
	if src.Bounds().Dx() == width && src.Bounds().Dy() == height {
		return src
	}
	scaled := resize.Resize(uint(width), uint(height), src, resize.Lanczos3)
	if rgba, ok := scaled.(*image.RGBA); ok {
		return rgba
	}
	out := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			out.Set(x, y, scaled.At(x, y))
		}
	}
	return out
}

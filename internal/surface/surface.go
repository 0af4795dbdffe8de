// Package surface implements the magnifier's render surface: a frameless,
// always-on-top X11 window that displays the frames produced by the generic
// capture backend.
package surface

import (
	"fmt"
	"image"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/shape"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/ewmh"

	"github.com/loupe-sh/loupe/internal/logger"
)

// Surface is an override-redirect X11 window with an optional elliptic
// bounding region. It is unmanaged by the window manager, so it has no frame
// and stacks above normal windows when raised.
//
// Surface is owned by a single goroutine; its methods are not safe for
// concurrent use.
type Surface struct {
	xu     *xgbutil.XUtil
	conn   *xgb.Conn
	screen *xproto.ScreenInfo
	win    xproto.Window
	gc     xproto.Gcontext

	width  int
	height int

	shapeExt bool
	mapped   bool
	closed   bool
}

// New connects to the X server and creates the (unmapped) magnifier window.
func New(width, height int) (*Surface, error) {
	xu, err := xgbutil.NewConn()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}
	conn := xu.Conn()
	screen := xproto.Setup(conn).DefaultScreen(conn)

	s := &Surface{
		xu:     xu,
		conn:   conn,
		screen: screen,
		width:  width,
		height: height,
	}

	if err := s.createWindow(); err != nil {
		conn.Close()
		return nil, err
	}

	if err := shape.Init(conn); err != nil {
		logger.WithComponent("surface").Warn().
			Err(err).
			Msg("Shape extension unavailable, circular clipping disabled")
	} else {
		s.shapeExt = true
		s.clearInputRegion()
	}

	return s, nil
}

func (s *Surface) createWindow() error {
	win, err := xproto.NewWindowId(s.conn)
	if err != nil {
		return fmt.Errorf("failed to allocate window ID: %w", err)
	}
	s.win = win

	// Override-redirect keeps the window manager's hands off the window: no
	// frame, no focus stealing, raised above managed windows.
	err = xproto.CreateWindowChecked(
		s.conn,
		s.screen.RootDepth,
		s.win,
		s.screen.Root,
		0, 0,
		uint16(s.width), uint16(s.height),
		0,
		xproto.WindowClassInputOutput,
		s.screen.RootVisual,
		xproto.CwBackPixel|xproto.CwOverrideRedirect,
		[]uint32{0x000000, 1},
	).Check()
	if err != nil {
		return fmt.Errorf("failed to create window: %w", err)
	}

	if err := ewmh.WmNameSet(s.xu, s.win, "Loupe"); err != nil {
		logger.WithComponent("surface").Warn().Err(err).Msg("Failed to set window name")
	}
	if err := ewmh.WmWindowTypeSet(s.xu, s.win, []string{"_NET_WM_WINDOW_TYPE_UTILITY"}); err != nil {
		logger.WithComponent("surface").Warn().Err(err).Msg("Failed to set window type")
	}
	if err := ewmh.WmStateSet(s.xu, s.win, []string{"_NET_WM_STATE_ABOVE"}); err != nil {
		logger.WithComponent("surface").Warn().Err(err).Msg("Failed to set above state")
	}

	gc, err := xproto.NewGcontextId(s.conn)
	if err != nil {
		return fmt.Errorf("failed to allocate GC ID: %w", err)
	}
	s.gc = gc
	if err := xproto.CreateGCChecked(s.conn, s.gc, xproto.Drawable(s.win), 0, nil).Check(); err != nil {
		return fmt.Errorf("failed to create GC: %w", err)
	}

	return nil
}

// clearInputRegion empties the window's input shape so pointer events pass
// through to whatever is underneath the magnifier.
func (s *Surface) clearInputRegion() {
	shape.Rectangles(
		s.conn,
		shape.SoSet,
		shape.SkInput,
		xproto.ClipOrderingUnsorted,
		s.win,
		0, 0,
		nil,
	)
}

// ScreenSize returns the root window dimensions in pixels.
func (s *Surface) ScreenSize() (int, int) {
	return int(s.screen.WidthInPixels), int(s.screen.HeightInPixels)
}

// SetImage displays an RGBA frame. The frame must match the current surface
// size; mismatched frames (e.g. produced just before a resize) are dropped.
func (s *Surface) SetImage(img *image.RGBA) error {
	if s.closed {
		return fmt.Errorf("surface closed")
	}

	bounds := img.Bounds()
	if bounds.Dx() != s.width || bounds.Dy() != s.height {
		return fmt.Errorf("frame size %dx%d does not match surface %dx%d",
			bounds.Dx(), bounds.Dy(), s.width, s.height)
	}

	// RGBA to BGRX, the layout ZPixmap expects at depth 24/32.
	data := make([]byte, s.width*s.height*4)
	for y := 0; y < s.height; y++ {
		srcOff := img.PixOffset(bounds.Min.X, bounds.Min.Y+y)
		dstOff := y * s.width * 4
		for x := 0; x < s.width; x++ {
			si := srcOff + x*4
			di := dstOff + x*4
			data[di] = img.Pix[si+2]
			data[di+1] = img.Pix[si+1]
			data[di+2] = img.Pix[si]
			data[di+3] = 0xff
		}
	}

	// PutImage requests are bounded by the server's maximum request length;
	// send the frame in scanline chunks.
	bytesPerRow := s.width * 4
	rowsPerChunk := (1 << 18) / bytesPerRow
	if rowsPerChunk < 1 {
		rowsPerChunk = 1
	}

	for row := 0; row < s.height; row += rowsPerChunk {
		rows := rowsPerChunk
		if row+rows > s.height {
			rows = s.height - row
		}
		chunk := data[row*bytesPerRow : (row+rows)*bytesPerRow]
		err := xproto.PutImageChecked(
			s.conn,
			xproto.ImageFormatZPixmap,
			xproto.Drawable(s.win),
			s.gc,
			uint16(s.width), uint16(rows),
			0, int16(row),
			0,
			s.screen.RootDepth,
			chunk,
		).Check()
		if err != nil {
			return fmt.Errorf("failed to put image rows %d-%d: %w", row, row+rows, err)
		}
	}

	return nil
}

// ApplyShape sets an elliptic bounding region when circular, or restores the
// full rectangle. Regions are absolute-pixel, so callers re-apply on resize.
func (s *Surface) ApplyShape(circular bool, width, height int) error {
	if s.closed {
		return fmt.Errorf("surface closed")
	}
	if !s.shapeExt {
		if circular {
			return fmt.Errorf("shape extension unavailable")
		}
		return nil
	}

	if circular {
		spans := ellipseSpans(width, height)
		err := shape.RectanglesChecked(
			s.conn,
			shape.SoSet,
			shape.SkBounding,
			xproto.ClipOrderingYXBanded,
			s.win,
			0, 0,
			spans,
		).Check()
		if err != nil {
			return fmt.Errorf("failed to set elliptic region: %w", err)
		}
		return nil
	}

	err := shape.MaskChecked(
		s.conn,
		shape.SoSet,
		shape.SkBounding,
		s.win,
		0, 0,
		xproto.PixmapNone,
	).Check()
	if err != nil {
		return fmt.Errorf("failed to clear region: %w", err)
	}
	return nil
}

// Move places the window's top-left corner at (x, y) in root coordinates.
func (s *Surface) Move(x, y int) error {
	if s.closed {
		return fmt.Errorf("surface closed")
	}
	return xproto.ConfigureWindowChecked(
		s.conn,
		s.win,
		xproto.ConfigWindowX|xproto.ConfigWindowY,
		[]uint32{uint32(int32(x)), uint32(int32(y))},
	).Check()
}

// Resize changes the window size.
func (s *Surface) Resize(width, height int) error {
	if s.closed {
		return fmt.Errorf("surface closed")
	}
	if width < 1 || height < 1 {
		return fmt.Errorf("invalid surface size %dx%d", width, height)
	}
	s.width = width
	s.height = height
	return xproto.ConfigureWindowChecked(
		s.conn,
		s.win,
		xproto.ConfigWindowWidth|xproto.ConfigWindowHeight,
		[]uint32{uint32(width), uint32(height)},
	).Check()
}

// Show maps the window and raises it to the top of the stack.
func (s *Surface) Show() error {
	if s.closed {
		return fmt.Errorf("surface closed")
	}
	if err := xproto.MapWindowChecked(s.conn, s.win).Check(); err != nil {
		return fmt.Errorf("failed to map window: %w", err)
	}
	if err := xproto.ConfigureWindowChecked(
		s.conn,
		s.win,
		xproto.ConfigWindowStackMode,
		[]uint32{xproto.StackModeAbove},
	).Check(); err != nil {
		logger.WithComponent("surface").Warn().Err(err).Msg("Failed to raise window")
	}
	s.mapped = true
	return nil
}

// Hide unmaps the window. The window and GC stay allocated for re-show.
func (s *Surface) Hide() error {
	if s.closed {
		return fmt.Errorf("surface closed")
	}
	if err := xproto.UnmapWindowChecked(s.conn, s.win).Check(); err != nil {
		return fmt.Errorf("failed to unmap window: %w", err)
	}
	s.mapped = false
	return nil
}

// Close destroys the window and drops the X connection. Idempotent; cleanup
// failures are logged and not propagated.
func (s *Surface) Close() {
	if s.closed {
		return
	}
	s.closed = true

	if s.gc != 0 {
		xproto.FreeGC(s.conn, s.gc)
	}
	if s.win != 0 {
		if err := xproto.DestroyWindowChecked(s.conn, s.win).Check(); err != nil {
			logger.WithComponent("surface").Warn().Err(err).Msg("Failed to destroy window")
		}
	}
	s.conn.Close()
	logger.WithComponent("surface").Debug().Msg("Render surface closed")
}

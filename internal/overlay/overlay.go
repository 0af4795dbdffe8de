// Package overlay implements the offset preview: a full-screen click-through
// window that outlines where the magnifier will appear, with a center
// crosshair and an offset readout. It shows position and shape without
// magnifying anything.
package overlay

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/shape"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/ewmh"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/loupe-sh/loupe/internal/logger"
)

const (
	outlineThickness = 2
	crosshairArm     = 10
	labelPadding     = 5
	labelFontHeight  = 13
	labelGap         = 8
)

// Preview is the offset preview window. Not safe for concurrent use.
type Preview struct {
	xu     *xgbutil.XUtil
	conn   *xgb.Conn
	screen *xproto.ScreenInfo
	win    xproto.Window
	gc     xproto.Gcontext

	width    int
	height   int
	xOffset  int
	yOffset  int
	circular bool

	visible bool
	closed  bool
}

// New connects to the X server and creates the preview window, initially
// unmapped. Requires the X Shape extension.
func New(width, height, xOffset, yOffset int, circular bool) (*Preview, error) {
	xu, err := xgbutil.NewConn()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}
	conn := xu.Conn()

	if err := shape.Init(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("X Shape extension unavailable: %w", err)
	}

	p := &Preview{
		xu:       xu,
		conn:     conn,
		screen:   xproto.Setup(conn).DefaultScreen(conn),
		width:    width,
		height:   height,
		xOffset:  xOffset,
		yOffset:  yOffset,
		circular: circular,
	}

	if err := p.createWindow(); err != nil {
		conn.Close()
		return nil, err
	}
	if err := p.applyShape(); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

func (p *Preview) createWindow() error {
	win, err := xproto.NewWindowId(p.conn)
	if err != nil {
		return fmt.Errorf("failed to allocate window id: %w", err)
	}
	p.win = win

	// Red background so the shaped outline and crosshair read as solid
	// strokes. Override-redirect keeps the window manager out.
	err = xproto.CreateWindowChecked(p.conn,
		p.screen.RootDepth, win, p.screen.Root,
		0, 0, p.screen.WidthInPixels, p.screen.HeightInPixels, 0,
		xproto.WindowClassInputOutput, p.screen.RootVisual,
		xproto.CwBackPixel|xproto.CwOverrideRedirect,
		[]uint32{0xff0000, 1}).Check()
	if err != nil {
		return fmt.Errorf("failed to create preview window: %w", err)
	}

	if err := ewmh.WmNameSet(p.xu, win, "Loupe Offset Preview"); err != nil {
		logger.WithComponent("overlay").Debug().Err(err).Msg("Failed to set window name")
	}
	if err := ewmh.WmStateSet(p.xu, win, []string{"_NET_WM_STATE_ABOVE"}); err != nil {
		logger.WithComponent("overlay").Debug().Err(err).Msg("Failed to set above state")
	}

	gc, err := xproto.NewGcontextId(p.conn)
	if err != nil {
		return fmt.Errorf("failed to allocate graphics context: %w", err)
	}
	p.gc = gc
	if err := xproto.CreateGCChecked(p.conn, gc, xproto.Drawable(win), 0, nil).Check(); err != nil {
		return fmt.Errorf("failed to create graphics context: %w", err)
	}

	// Empty input region lets mouse events pass through.
	err = shape.RectanglesChecked(p.conn,
		shape.SoSet, shape.SkInput, xproto.ClipOrderingUnsorted,
		win, 0, 0, nil).Check()
	if err != nil {
		return fmt.Errorf("failed to clear input region: %w", err)
	}
	return nil
}

// Update changes the previewed geometry and redraws.
func (p *Preview) Update(width, height, xOffset, yOffset int, circular bool) error {
	if p.closed {
		return fmt.Errorf("preview is closed")
	}
	p.width = width
	p.height = height
	p.xOffset = xOffset
	p.yOffset = yOffset
	p.circular = circular
	if err := p.applyShape(); err != nil {
		return err
	}
	if p.visible {
		return p.drawLabel()
	}
	return nil
}

// Show maps the preview window and draws the offset label.
func (p *Preview) Show() error {
	if p.closed {
		return fmt.Errorf("preview is closed")
	}
	if err := xproto.MapWindowChecked(p.conn, p.win).Check(); err != nil {
		return fmt.Errorf("failed to map preview window: %w", err)
	}
	err := xproto.ConfigureWindowChecked(p.conn, p.win,
		xproto.ConfigWindowStackMode,
		[]uint32{xproto.StackModeAbove}).Check()
	if err != nil {
		logger.WithComponent("overlay").Warn().Err(err).Msg("Failed to raise preview window")
	}
	p.visible = true
	return p.drawLabel()
}

// Hide unmaps the preview window.
func (p *Preview) Hide() error {
	if p.closed {
		return fmt.Errorf("preview is closed")
	}
	if err := xproto.UnmapWindowChecked(p.conn, p.win).Check(); err != nil {
		return fmt.Errorf("failed to unmap preview window: %w", err)
	}
	p.visible = false
	return nil
}

// Close destroys the window and the X connection. Idempotent.
func (p *Preview) Close() {
	if p.closed {
		return
	}
	p.closed = true
	xproto.FreeGC(p.conn, p.gc)
	xproto.DestroyWindow(p.conn, p.win)
	p.conn.Close()
}

// applyShape sets the bounding region to the outline, crosshair and label
// box so everything else stays transparent.
func (p *Preview) applyShape() error {
	screenW := int(p.screen.WidthInPixels)
	screenH := int(p.screen.HeightInPixels)
	rects := previewRects(screenW, screenH, p.width, p.height,
		p.xOffset, p.yOffset, p.circular)

	err := shape.RectanglesChecked(p.conn,
		shape.SoSet, shape.SkBounding, xproto.ClipOrderingUnsorted,
		p.win, 0, 0, rects).Check()
	if err != nil {
		return fmt.Errorf("failed to set preview shape: %w", err)
	}
	return nil
}

// drawLabel renders the offset readout into the label box.
func (p *Preview) drawLabel() error {
	screenW := int(p.screen.WidthInPixels)
	screenH := int(p.screen.HeightInPixels)
	box := labelBox(screenW, screenH, p.width, p.height, p.xOffset, p.yOffset)
	img := renderLabel(labelText(p.xOffset, p.yOffset),
		int(box.Width), int(box.Height))

	data := make([]byte, 0, len(img.Pix))
	for y := 0; y < int(box.Height); y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+int(box.Width)*4]
		for x := 0; x < int(box.Width)*4; x += 4 {
			data = append(data, row[x+2], row[x+1], row[x], 0)
		}
	}

	err := xproto.PutImageChecked(p.conn, xproto.ImageFormatZPixmap,
		xproto.Drawable(p.win), p.gc,
		box.Width, box.Height, box.X, box.Y,
		0, p.screen.RootDepth, data).Check()
	if err != nil {
		return fmt.Errorf("failed to draw offset label: %w", err)
	}
	return nil
}

func labelText(xOffset, yOffset int) string {
	return fmt.Sprintf("offset %+d%+d", xOffset, yOffset)
}

// previewRects composes the shaped region in screen coordinates: shape
// outline, center crosshair and label box.
func previewRects(screenW, screenH, width, height, xOffset, yOffset int, circular bool) []xproto.Rectangle {
	centerX := screenW/2 + xOffset
	centerY := screenH/2 + yOffset
	left := centerX - width/2
	top := centerY - height/2

	var rects []xproto.Rectangle
	if circular {
		rects = offsetRects(ellipseRing(width, height, outlineThickness), left, top)
	} else {
		rects = offsetRects(rectOutline(width, height, outlineThickness), left, top)
	}
	rects = append(rects, crosshairRects(centerX, centerY)...)
	rects = append(rects, labelBox(screenW, screenH, width, height, xOffset, yOffset))
	return clipRects(rects, screenW, screenH)
}

// ellipseRing returns the scanline rectangles of an elliptic outline of the
// given stroke thickness, in local coordinates.
func ellipseRing(width, height, thickness int) []xproto.Rectangle {
	if width < 1 || height < 1 {
		return nil
	}
	outerA := float64(width) / 2
	outerB := float64(height) / 2
	innerA := outerA - float64(thickness)
	innerB := outerB - float64(thickness)
	cx := outerA
	cy := outerB

	var rects []xproto.Rectangle
	for y := 0; y < height; y++ {
		dy := (float64(y) + 0.5 - cy) / outerB
		if dy < -1 || dy > 1 {
			continue
		}
		outerHalf := outerA * sqrt1m(dy*dy)

		innerHalf := 0.0
		if innerA > 0 && innerB > 0 {
			idy := (float64(y) + 0.5 - cy) / innerB
			if idy >= -1 && idy <= 1 {
				innerHalf = innerA * sqrt1m(idy*idy)
			}
		}

		lo := int(cx - outerHalf)
		hi := int(cx + outerHalf)
		iLo := int(cx - innerHalf)
		iHi := int(cx + innerHalf)
		if lo < 0 {
			lo = 0
		}
		if hi > width {
			hi = width
		}
		if innerHalf == 0 || iLo <= lo || iHi >= hi {
			if hi > lo {
				rects = append(rects, xproto.Rectangle{
					X: int16(lo), Y: int16(y),
					Width: uint16(hi - lo), Height: 1,
				})
			}
			continue
		}
		rects = append(rects,
			xproto.Rectangle{X: int16(lo), Y: int16(y), Width: uint16(iLo - lo), Height: 1},
			xproto.Rectangle{X: int16(iHi), Y: int16(y), Width: uint16(hi - iHi), Height: 1},
		)
	}
	return rects
}

// rectOutline returns the four border rectangles of a rectangular outline.
// A shape too small to hold the stroke comes back as one solid rectangle.
func rectOutline(width, height, thickness int) []xproto.Rectangle {
	if width < 1 || height < 1 {
		return nil
	}
	t := thickness
	if t*2 >= width || t*2 >= height {
		return []xproto.Rectangle{{X: 0, Y: 0, Width: uint16(width), Height: uint16(height)}}
	}
	return []xproto.Rectangle{
		{X: 0, Y: 0, Width: uint16(width), Height: uint16(t)},
		{X: 0, Y: int16(height - t), Width: uint16(width), Height: uint16(t)},
		{X: 0, Y: int16(t), Width: uint16(t), Height: uint16(height - 2*t)},
		{X: int16(width - t), Y: int16(t), Width: uint16(t), Height: uint16(height - 2*t)},
	}
}

// crosshairRects returns the two arms of the center crosshair in screen
// coordinates.
func crosshairRects(centerX, centerY int) []xproto.Rectangle {
	t := outlineThickness
	return []xproto.Rectangle{
		{
			X: int16(centerX - crosshairArm), Y: int16(centerY - t/2),
			Width: uint16(2 * crosshairArm), Height: uint16(t),
		},
		{
			X: int16(centerX - t/2), Y: int16(centerY - crosshairArm),
			Width: uint16(t), Height: uint16(2 * crosshairArm),
		},
	}
}

// labelBox positions the offset readout below the outlined shape, pulled
// back inside the screen when the shape sits near an edge.
func labelBox(screenW, screenH, width, height, xOffset, yOffset int) xproto.Rectangle {
	text := labelText(xOffset, yOffset)
	boxW := 7*len(text) + 2*labelPadding
	boxH := labelFontHeight + 2*labelPadding

	centerX := screenW/2 + xOffset
	centerY := screenH/2 + yOffset
	x := centerX - boxW/2
	y := centerY + height/2 + labelGap
	if y+boxH > screenH {
		y = centerY - height/2 - labelGap - boxH
	}
	x = clampInt(x, 0, screenW-boxW)
	y = clampInt(y, 0, screenH-boxH)
	return xproto.Rectangle{
		X: int16(x), Y: int16(y),
		Width: uint16(boxW), Height: uint16(boxH),
	}
}

// renderLabel draws white text on a dark box with basicfont.
func renderLabel(text string, width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(),
		&image.Uniform{color.RGBA{32, 32, 32, 255}}, image.Point{}, draw.Src)

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.RGBA{255, 255, 255, 255}),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(labelPadding), Y: fixed.I(labelPadding + labelFontHeight - 2)},
	}
	d.DrawString(text)
	return img
}

func offsetRects(rects []xproto.Rectangle, dx, dy int) []xproto.Rectangle {
	out := make([]xproto.Rectangle, 0, len(rects))
	for _, r := range rects {
		out = append(out, xproto.Rectangle{
			X: int16(int(r.X) + dx), Y: int16(int(r.Y) + dy),
			Width: r.Width, Height: r.Height,
		})
	}
	return out
}

// clipRects drops or trims rectangles that fall outside the screen.
func clipRects(rects []xproto.Rectangle, screenW, screenH int) []xproto.Rectangle {
	out := make([]xproto.Rectangle, 0, len(rects))
	for _, r := range rects {
		x0 := int(r.X)
		y0 := int(r.Y)
		x1 := x0 + int(r.Width)
		y1 := y0 + int(r.Height)
		x0 = clampInt(x0, 0, screenW)
		y0 = clampInt(y0, 0, screenH)
		x1 = clampInt(x1, 0, screenW)
		y1 = clampInt(y1, 0, screenH)
		if x1 <= x0 || y1 <= y0 {
			continue
		}
		out = append(out, xproto.Rectangle{
			X: int16(x0), Y: int16(y0),
			Width: uint16(x1 - x0), Height: uint16(y1 - y0),
		})
	}
	return out
}

func clampInt(v, lo, hi int) int {
	if hi < lo {
		hi = lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func sqrt1m(x float64) float64 {
	v := 1 - x
	if v <= 0 {
		return 0
	}
	return math.Sqrt(v)
}

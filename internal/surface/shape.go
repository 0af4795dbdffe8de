package surface

import (
	"math"

	"github.com/BurntSushi/xgb/xproto"
)

// ellipseSpans returns one rectangle per scanline covering the ellipse
// inscribed in a width x height box. The X Shape extension takes a bounding
// region as a rectangle list, so the ellipse is rasterized here once per
// size or shape change rather than per frame.
func ellipseSpans(width, height int) []xproto.Rectangle {
	if width < 1 || height < 1 {
		return nil
	}

	rx := float64(width) / 2
	ry := float64(height) / 2

	spans := make([]xproto.Rectangle, 0, height)
	for y := 0; y < height; y++ {
		// Sample the scanline at its vertical center.
		dy := (float64(y) + 0.5 - ry) / ry
		rem := 1 - dy*dy
		if rem <= 0 {
			continue
		}
		half := rx * math.Sqrt(rem)
		x0 := int(math.Floor(rx - half))
		x1 := int(math.Ceil(rx + half))
		if x0 < 0 {
			x0 = 0
		}
		if x1 > width {
			x1 = width
		}
		if x1 <= x0 {
			continue
		}
		spans = append(spans, xproto.Rectangle{
			X:      int16(x0),
			Y:      int16(y),
			Width:  uint16(x1 - x0),
			Height: 1,
		})
	}
	return spans
}

// Package geometry computes capture rectangles and window placement for the
// magnifier. All functions are pure; both capture backends share them.
package geometry

// CaptureRegion is the source-screen rectangle sampled for magnification,
// in screen pixel coordinates.
type CaptureRegion struct {
	Left   int
	Top    int
	Width  int
	Height int
}

// ComputeCaptureRegion returns the source rectangle to sample for a magnifier
// window of windowW x windowH pixels at the given zoom, centered on the screen
// center shifted by (xOffset, yOffset).
//
// The region is windowW/zoom x windowH/zoom, floored at 1x1 and min-clamped to
// the screen dimensions, then shifted so it lies fully inside the screen. A
// window larger than the screen therefore yields a region pinned at (0, 0)
// covering the full screen axis rather than an error.
func ComputeCaptureRegion(screenW, screenH, windowW, windowH int, zoom float64, xOffset, yOffset int) CaptureRegion {
	if zoom < 1.0 {
		zoom = 1.0
	}

	scaledW := int(float64(windowW) / zoom)
	scaledH := int(float64(windowH) / zoom)
	if scaledW < 1 {
		scaledW = 1
	}
	if scaledH < 1 {
		scaledH = 1
	}
	if scaledW > screenW {
		scaledW = screenW
	}
	if scaledH > screenH {
		scaledH = screenH
	}

	centerX := screenW/2 + xOffset
	centerY := screenH/2 + yOffset

	left := clamp(centerX-scaledW/2, 0, screenW-scaledW)
	top := clamp(centerY-scaledH/2, 0, screenH-scaledH)

	return CaptureRegion{
		Left:   left,
		Top:    top,
		Width:  scaledW,
		Height: scaledH,
	}
}

// ComputeWindowPosition returns the top-left corner of the magnifier window:
// the window centered on the screen, shifted by the offsets. The result is
// deliberately not clamped; placing the window partially off-screen is left
// to the caller's offset bounds.
func ComputeWindowPosition(screenW, screenH, windowW, windowH, xOffset, yOffset int) (x, y int) {
	x = (screenW-windowW)/2 + xOffset
	y = (screenH-windowH)/2 + yOffset
	return x, y
}

func clamp(v, lo, hi int) int {
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

package overlay

import (
	"image/color"
	"strings"
	"testing"
)

func TestEllipseRingStaysInsideBounds(t *testing.T) {
	for _, size := range [][2]int{{400, 400}, {300, 200}, {7, 5}} {
		w, h := size[0], size[1]
		for _, r := range ellipseRing(w, h, outlineThickness) {
			if r.X < 0 || r.Y < 0 ||
				int(r.X)+int(r.Width) > w || int(r.Y)+int(r.Height) > h {
				t.Errorf("%dx%d: rect %+v outside bounds", w, h, r)
			}
		}
	}
}

func TestEllipseRingHollowAtCenter(t *testing.T) {
	const w, h = 400, 400
	midY := h / 2
	for _, r := range ellipseRing(w, h, outlineThickness) {
		if int(r.Y) != midY {
			continue
		}
		x0 := int(r.X)
		x1 := x0 + int(r.Width)
		if x0 < w/2 && x1 > w/2 {
			t.Errorf("ring covers center at row %d: [%d,%d)", midY, x0, x1)
		}
	}
}

func TestRectOutline(t *testing.T) {
	rects := rectOutline(100, 60, 2)
	if len(rects) != 4 {
		t.Fatalf("got %d rects, want 4", len(rects))
	}
	var area int
	for _, r := range rects {
		area += int(r.Width) * int(r.Height)
	}
	want := 100*60 - 96*56
	if area != want {
		t.Errorf("outline area = %d, want %d", area, want)
	}
}

func TestRectOutlineDegenerate(t *testing.T) {
	if got := rectOutline(0, 60, 2); got != nil {
		t.Errorf("zero width: got %v, want nil", got)
	}
	rects := rectOutline(3, 3, 2)
	if len(rects) != 1 {
		t.Fatalf("tiny rect: got %d rects, want 1 solid", len(rects))
	}
	// Stroke consumes the whole width: no interior left to hollow out.
	rects = rectOutline(4, 40, 2)
	if len(rects) != 1 {
		t.Fatalf("narrow rect: got %d rects, want 1 solid", len(rects))
	}
}

func TestPreviewRectsClippedToScreen(t *testing.T) {
	// Shape pushed past the screen edge by a large offset.
	rects := previewRects(1920, 1080, 400, 400, 900, 600, true)
	if len(rects) == 0 {
		t.Fatal("no rects produced")
	}
	for _, r := range rects {
		if r.X < 0 || r.Y < 0 ||
			int(r.X)+int(r.Width) > 1920 || int(r.Y)+int(r.Height) > 1080 {
			t.Errorf("rect %+v outside screen", r)
		}
	}
}

func TestLabelBoxStaysOnScreen(t *testing.T) {
	for _, off := range [][2]int{{0, 0}, {0, 500}, {0, -500}, {2000, 2000}} {
		box := labelBox(1920, 1080, 400, 400, off[0], off[1])
		if box.X < 0 || box.Y < 0 ||
			int(box.X)+int(box.Width) > 1920 || int(box.Y)+int(box.Height) > 1080 {
			t.Errorf("offset %v: box %+v outside screen", off, box)
		}
	}
}

func TestLabelText(t *testing.T) {
	if got := labelText(25, -40); got != "offset +25-40" {
		t.Errorf("labelText = %q", got)
	}
	if got := labelText(0, 0); !strings.Contains(got, "+0") {
		t.Errorf("labelText(0,0) = %q, want explicit signs", got)
	}
}

func TestRenderLabelHasTextPixels(t *testing.T) {
	img := renderLabel("offset +0+0", 100, 23)
	white := 0
	for y := 0; y < 23; y++ {
		for x := 0; x < 100; x++ {
			if img.RGBAAt(x, y) == (color.RGBA{255, 255, 255, 255}) {
				white++
			}
		}
	}
	if white == 0 {
		t.Error("rendered label contains no text pixels")
	}
}

package backend

import (
	"errors"
	"image"
	"testing"

	"github.com/loupe-sh/loupe/internal/config"
)

// fakePresenter records surface calls for assertions.
type fakePresenter struct {
	images   []*image.RGBA
	shapes   []bool
	moves    []image.Point
	resizes  []image.Point
	shown    bool
	hidden   bool
	closed   int
	imageErr error
}

func (p *fakePresenter) SetImage(img *image.RGBA) error {
	if p.imageErr != nil {
		return p.imageErr
	}
	p.images = append(p.images, img)
	return nil
}

func (p *fakePresenter) ApplyShape(circular bool, w, h int) error {
	p.shapes = append(p.shapes, circular)
	return nil
}

func (p *fakePresenter) Move(x, y int) error {
	p.moves = append(p.moves, image.Pt(x, y))
	return nil
}

func (p *fakePresenter) Resize(w, h int) error {
	p.resizes = append(p.resizes, image.Pt(w, h))
	return nil
}

func (p *fakePresenter) Show() error { p.shown = true; return nil }
func (p *fakePresenter) Hide() error { p.hidden = true; p.shown = false; return nil }
func (p *fakePresenter) Close()      { p.closed++ }

func newTestGeneric(p Presenter) *Generic {
	g := NewGeneric(p, config.Defaults())
	g.SetScreenSize(func() (int, int) { return 1920, 1080 })
	g.SetDisplayProbe(func() int { return 1 })
	g.SetGrabber(func(rect image.Rectangle) (*image.RGBA, error) {
		return image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy())), nil
	})
	return g
}

func TestGenericTickGrabsComputedRegion(t *testing.T) {
	p := &fakePresenter{}
	g := newTestGeneric(p)

	var grabbed image.Rectangle
	g.SetGrabber(func(rect image.Rectangle) (*image.RGBA, error) {
		grabbed = rect
		return image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy())), nil
	})
	g.SetZoom(2.0)

	if err := g.Tick(); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	// 400x400 window at 2x on 1920x1080: 200x200 region centered on screen.
	want := image.Rect(860, 440, 1060, 640)
	if grabbed != want {
		t.Errorf("grabbed %v, want %v", grabbed, want)
	}

	if len(p.images) != 1 {
		t.Fatalf("expected 1 presented frame, got %d", len(p.images))
	}
	frame := p.images[0]
	if frame.Bounds().Dx() != 400 || frame.Bounds().Dy() != 400 {
		t.Errorf("frame not resampled to window size: %v", frame.Bounds())
	}
}

func TestGenericTickSkipsOnGrabFailure(t *testing.T) {
	p := &fakePresenter{}
	g := newTestGeneric(p)

	failing := errors.New("capture source lost")
	g.SetGrabber(func(rect image.Rectangle) (*image.RGBA, error) {
		return nil, failing
	})

	if err := g.Tick(); err == nil {
		t.Fatal("expected error from failed grab")
	}
	if len(p.images) != 0 {
		t.Errorf("frame presented despite grab failure")
	}

	// Next tick with a working grabber recovers.
	g.SetGrabber(func(rect image.Rectangle) (*image.RGBA, error) {
		return image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy())), nil
	})
	if err := g.Tick(); err != nil {
		t.Fatalf("Tick after recovery: %v", err)
	}
	if len(p.images) != 1 {
		t.Errorf("expected recovery frame, got %d", len(p.images))
	}
}

func TestGenericShowProducesFrameFirst(t *testing.T) {
	p := &fakePresenter{}
	g := newTestGeneric(p)

	if err := g.Show(); err != nil {
		t.Fatalf("Show: %v", err)
	}
	if len(p.images) == 0 {
		t.Fatal("window shown without an initial frame")
	}
	if !p.shown {
		t.Error("surface not shown after first frame")
	}
}

func TestGenericShowDeferredUntilFirstFrame(t *testing.T) {
	p := &fakePresenter{}
	g := newTestGeneric(p)

	failing := errors.New("not ready")
	g.SetGrabber(func(rect image.Rectangle) (*image.RGBA, error) {
		return nil, failing
	})

	if err := g.Show(); err != nil {
		t.Fatalf("Show: %v", err)
	}
	if p.shown {
		t.Fatal("surface mapped before any frame was produced")
	}

	g.SetGrabber(func(rect image.Rectangle) (*image.RGBA, error) {
		return image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy())), nil
	})
	if err := g.Tick(); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if !p.shown {
		t.Error("surface not mapped after first successful frame")
	}
}

func TestGenericSetWindowSizeReappliesShape(t *testing.T) {
	p := &fakePresenter{}
	g := newTestGeneric(p)
	if err := g.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	shapesBefore := len(p.shapes)
	g.SetWindowSize(600, 300)

	if len(p.resizes) == 0 || p.resizes[len(p.resizes)-1] != image.Pt(600, 300) {
		t.Errorf("surface not resized: %v", p.resizes)
	}
	if len(p.shapes) != shapesBefore+1 {
		t.Error("clip region not reapplied after resize")
	}
}

func TestGenericDisposeIdempotent(t *testing.T) {
	p := &fakePresenter{}
	g := newTestGeneric(p)

	g.Dispose()
	g.Dispose()

	if p.closed != 1 {
		t.Errorf("surface closed %d times, want 1", p.closed)
	}
	if err := g.Tick(); err == nil {
		t.Error("Tick after Dispose should fail")
	}
}

func TestResampleFramePassThrough(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 400, 400))
	if got := resampleFrame(src, 400, 400); got != src {
		t.Error("same-size frame should pass through without copying")
	}

	up := resampleFrame(image.NewRGBA(image.Rect(0, 0, 200, 200)), 400, 400)
	if up.Bounds().Dx() != 400 || up.Bounds().Dy() != 400 {
		t.Errorf("upscaled bounds: %v", up.Bounds())
	}
}

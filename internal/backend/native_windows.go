//go:build windows

package backend

import (
	"fmt"
	"runtime"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/loupe-sh/loupe/internal/config"
	"github.com/loupe-sh/loupe/internal/geometry"
	"github.com/loupe-sh/loupe/internal/logger"
)

var (
	modUser32        = windows.NewLazySystemDLL("user32.dll")
	modGdi32         = windows.NewLazySystemDLL("gdi32.dll")
	modKernel32      = windows.NewLazySystemDLL("kernel32.dll")
	modMagnification = windows.NewLazySystemDLL("magnification.dll")

	procCreateWindowExW          = modUser32.NewProc("CreateWindowExW")
	procDefWindowProcW           = modUser32.NewProc("DefWindowProcW")
	procDestroyWindow            = modUser32.NewProc("DestroyWindow")
	procDispatchMessageW         = modUser32.NewProc("DispatchMessageW")
	procGetMessageW              = modUser32.NewProc("GetMessageW")
	procGetSystemMetrics         = modUser32.NewProc("GetSystemMetrics")
	procKillTimer                = modUser32.NewProc("KillTimer")
	procPostMessageW             = modUser32.NewProc("PostMessageW")
	procPostQuitMessage          = modUser32.NewProc("PostQuitMessage")
	procRegisterClassExW         = modUser32.NewProc("RegisterClassExW")
	procSetLayeredWindowAttrs    = modUser32.NewProc("SetLayeredWindowAttributes")
	procSetTimer                 = modUser32.NewProc("SetTimer")
	procSetWindowDisplayAffinity = modUser32.NewProc("SetWindowDisplayAffinity")
	procSetWindowPos             = modUser32.NewProc("SetWindowPos")
	procSetWindowRgn             = modUser32.NewProc("SetWindowRgn")
	procShowWindow               = modUser32.NewProc("ShowWindow")
	procTranslateMessage         = modUser32.NewProc("TranslateMessage")

	procCreateEllipticRgn = modGdi32.NewProc("CreateEllipticRgn")

	procGetModuleHandleW = modKernel32.NewProc("GetModuleHandleW")

	procMagInitialize         = modMagnification.NewProc("MagInitialize")
	procMagSetWindowSource    = modMagnification.NewProc("MagSetWindowSource")
	procMagSetWindowTransform = modMagnification.NewProc("MagSetWindowTransform")
	procMagUninitialize       = modMagnification.NewProc("MagUninitialize")
)

const (
	wsExTopmost     = 0x00000008
	wsExLayered     = 0x00080000
	wsExTransparent = 0x00000020
	wsExToolWindow  = 0x00000080
	wsPopup         = 0x80000000
	wsChild         = 0x40000000
	wsVisible       = 0x10000000

	msShowMagnifiedCursor = 0x0001

	smCxScreen = 0
	smCyScreen = 1

	swHide   = 0
	swShowNA = 8

	swpNoActivate = 0x0010
	hwndTopmost   = ^uintptr(0) // (HWND)-1

	wmDestroy = 0x0002
	wmTimer   = 0x0113
	wmClose   = 0x0010
	wmApp     = 0x8000
	// Posted after a command closure is queued for the magnifier thread.
	wmAppCommand = wmApp + 1

	lwaAlpha = 0x0002

	wdaExcludeFromCapture = 0x0011

	contentTimerID = 1
)

type magTransform struct {
	v [9]float32
}

type winRect struct {
	Left, Top, Right, Bottom int32
}

type wndClassExW struct {
	Size       uint32
	Style      uint32
	WndProc    uintptr
	ClsExtra   int32
	WndExtra   int32
	Instance   windows.Handle
	Icon       windows.Handle
	Cursor     windows.Handle
	Background windows.Handle
	MenuName   *uint16
	ClassName  *uint16
	IconSm     windows.Handle
}

type winPoint struct {
	X, Y int32
}

type winMsg struct {
	Hwnd    windows.HWND
	Message uint32
	WParam  uintptr
	LParam  uintptr
	Time    uint32
	Pt      winPoint
}

// Native wraps a Windows Magnification API session. Capture and scaling
// happen in the OS compositor; this backend only maintains the host window,
// the magnifier control's transform and its source rectangle.
//
// All window operations run on a dedicated OS thread that owns the windows
// and pumps their message queue. Public methods are safe to call from any
// goroutine; they queue a closure and post a message to that thread.
type Native struct {
	width       int
	height      int
	circular    bool
	refreshRate int
	zoom        float64
	xOffset     int
	yOffset     int

	hwndHost windows.HWND
	hwndMag  windows.HWND

	cmds chan func()
	done chan struct{}

	wndProc uintptr

	initialized bool
	disposed    bool
	visible     bool
}

// NewNative creates a Windows magnification backend with the given settings.
func NewNative(cfg *config.Settings) *Native {
	return &Native{
		width:       cfg.Width,
		height:      cfg.Height,
		circular:    cfg.Circular,
		refreshRate: cfg.RefreshRate,
		zoom:        config.MinZoom,
		xOffset:     cfg.XOffset,
		yOffset:     cfg.YOffset,
		cmds:        make(chan func(), 64),
		done:        make(chan struct{}),
	}
}

// Name returns the backend name.
func (n *Native) Name() string {
	return "native"
}

// SelfDriven reports true: a Win32 timer on the magnifier thread refreshes
// the source rectangle, no engine Tick is needed.
func (n *Native) SelfDriven() bool {
	return true
}

// Tick is a no-op; content updates are driven by the OS timer.
func (n *Native) Tick() error {
	return nil
}

// Initialize starts the magnification session on a dedicated OS thread. Any
// failure tears down partially created resources and is returned to the
// caller so the engine can fall back to the generic backend.
func (n *Native) Initialize() error {
	if n.initialized {
		return nil
	}

	errCh := make(chan error, 1)
	go n.threadMain(errCh)

	if err := <-errCh; err != nil {
		return err
	}
	n.initialized = true
	logger.WithComponent("native-backend").Info().Msg("Windows magnification session started")
	return nil
}

// threadMain owns the host and magnifier windows: it creates them, pumps
// their message queue and destroys them on shutdown.
func (n *Native) threadMain(errCh chan<- error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := n.createWindows(); err != nil {
		errCh <- err
		return
	}
	errCh <- nil

	var msg winMsg
	for {
		ret, _, _ := procGetMessageW.Call(uintptr(unsafe.Pointer(&msg)), 0, 0, 0)
		if int32(ret) <= 0 {
			break
		}
		procTranslateMessage.Call(uintptr(unsafe.Pointer(&msg)))
		procDispatchMessageW.Call(uintptr(unsafe.Pointer(&msg)))
	}

	n.destroyWindows()
	close(n.done)
}

func (n *Native) createWindows() error {
	if ret, _, err := procMagInitialize.Call(); ret == 0 {
		return fmt.Errorf("MagInitialize failed: %w", err)
	}

	n.wndProc = windows.NewCallback(func(hwnd windows.HWND, msg uint32, wparam, lparam uintptr) uintptr {
		switch msg {
		case wmTimer:
			if wparam == contentTimerID {
				n.updateContent()
				return 0
			}
		case wmAppCommand:
			for {
				select {
				case cmd := <-n.cmds:
					cmd()
				default:
					return 0
				}
			}
		case wmDestroy:
			procPostQuitMessage.Call(0)
			return 0
		}
		ret, _, _ := procDefWindowProcW.Call(uintptr(hwnd), uintptr(msg), wparam, lparam)
		return ret
	})

	hInstance, _, _ := procGetModuleHandleW.Call(0)

	className, err := windows.UTF16PtrFromString("LoupeMagnifierHost")
	if err != nil {
		procMagUninitialize.Call()
		return err
	}
	wc := wndClassExW{
		Size:      uint32(unsafe.Sizeof(wndClassExW{})),
		WndProc:   n.wndProc,
		Instance:  windows.Handle(hInstance),
		ClassName: className,
	}
	if ret, _, err := procRegisterClassExW.Call(uintptr(unsafe.Pointer(&wc))); ret == 0 {
		procMagUninitialize.Call()
		return fmt.Errorf("RegisterClassEx failed: %w", err)
	}

	screenW, screenH := n.screenSize()
	x, y := geometry.ComputeWindowPosition(screenW, screenH, n.width, n.height, n.xOffset, n.yOffset)

	title, _ := windows.UTF16PtrFromString("Loupe Magnifier")
	ret, _, err := procCreateWindowExW.Call(
		wsExTopmost|wsExLayered|wsExTransparent|wsExToolWindow,
		uintptr(unsafe.Pointer(className)),
		uintptr(unsafe.Pointer(title)),
		wsPopup,
		uintptr(x), uintptr(y), uintptr(n.width), uintptr(n.height),
		0, 0, hInstance, 0,
	)
	if ret == 0 {
		procMagUninitialize.Call()
		return fmt.Errorf("failed to create host window: %w", err)
	}
	n.hwndHost = windows.HWND(ret)

	// Fully opaque; the layered style exists for the transparency/click-through
	// extended styles, not for alpha blending.
	procSetLayeredWindowAttrs.Call(uintptr(n.hwndHost), 0, 255, lwaAlpha)

	// Keep the magnifier out of screen captures so it never magnifies itself.
	if ret, _, err := procSetWindowDisplayAffinity.Call(uintptr(n.hwndHost), wdaExcludeFromCapture); ret == 0 {
		logger.WithComponent("native-backend").Warn().
			Err(err).
			Msg("SetWindowDisplayAffinity failed; self-capture exclusion unavailable")
	}

	magClass, _ := windows.UTF16PtrFromString("Magnifier")
	magTitle, _ := windows.UTF16PtrFromString("Loupe Magnifier Control")
	ret, _, err = procCreateWindowExW.Call(
		0,
		uintptr(unsafe.Pointer(magClass)),
		uintptr(unsafe.Pointer(magTitle)),
		wsChild|wsVisible|msShowMagnifiedCursor,
		0, 0, uintptr(n.width), uintptr(n.height),
		uintptr(n.hwndHost), 0, hInstance, 0,
	)
	if ret == 0 {
		procDestroyWindow.Call(uintptr(n.hwndHost))
		procMagUninitialize.Call()
		return fmt.Errorf("failed to create magnifier control: %w", err)
	}
	n.hwndMag = windows.HWND(ret)

	if err := n.applyTransform(); err != nil {
		procDestroyWindow.Call(uintptr(n.hwndMag))
		procDestroyWindow.Call(uintptr(n.hwndHost))
		procMagUninitialize.Call()
		return err
	}

	n.applyPosition()
	n.applyShape()
	n.armTimer()
	n.updateContent()
	return nil
}

func (n *Native) destroyWindows() {
	procKillTimer.Call(uintptr(n.hwndHost), contentTimerID)
	if n.hwndMag != 0 {
		procDestroyWindow.Call(uintptr(n.hwndMag))
		n.hwndMag = 0
	}
	if n.hwndHost != 0 {
		procDestroyWindow.Call(uintptr(n.hwndHost))
		n.hwndHost = 0
	}
	procMagUninitialize.Call()
}

// post queues fn for the magnifier thread. Before initialization the closure
// runs inline; only plain field updates reach that path.
func (n *Native) post(fn func()) {
	if !n.initialized || n.disposed {
		fn()
		return
	}
	n.cmds <- fn
	procPostMessageW.Call(uintptr(n.hwndHost), wmAppCommand, 0, 0)
}

// SetWindowSize resizes the host and magnifier windows.
func (n *Native) SetWindowSize(width, height int) {
	if width < 1 || height < 1 {
		return
	}
	n.post(func() {
		n.width = width
		n.height = height
		if n.hwndHost != 0 {
			n.applyPosition()
			n.applyShape()
		}
	})
}

// SetZoom rebuilds the 3x3 transform from scratch with the new diagonal
// scale. Rebuilding rather than multiplying avoids accumulating drift.
func (n *Native) SetZoom(level float64) {
	if level < config.MinZoom {
		level = config.MinZoom
	}
	n.post(func() {
		n.zoom = level
		if n.hwndMag != 0 {
			if err := n.applyTransform(); err != nil {
				logger.WithComponent("native-backend").Warn().Err(err).Msg("Failed to set zoom transform")
			}
			n.updateContent()
		}
	})
}

// SetShape toggles the elliptic window region.
func (n *Native) SetShape(circular bool) {
	n.post(func() {
		n.circular = circular
		if n.hwndHost != 0 {
			n.applyShape()
		}
	})
}

// SetRefreshRate re-arms the content timer at the new interval.
func (n *Native) SetRefreshRate(hz int) {
	if hz < config.MinRefreshRate {
		hz = config.MinRefreshRate
	}
	if hz > config.MaxRefreshRate {
		hz = config.MaxRefreshRate
	}
	n.post(func() {
		n.refreshRate = hz
		if n.hwndHost != 0 && n.visible {
			procKillTimer.Call(uintptr(n.hwndHost), contentTimerID)
			n.armTimer()
		}
	})
}

// Move sets the offset from screen center and repositions the host window.
func (n *Native) Move(xOffset, yOffset int) {
	n.post(func() {
		n.xOffset = xOffset
		n.yOffset = yOffset
		if n.hwndHost != 0 {
			n.applyPosition()
			n.updateContent()
		}
	})
}

// Show presents the host window without activating it and starts content
// updates.
func (n *Native) Show() error {
	if n.disposed {
		return fmt.Errorf("backend disposed")
	}
	n.post(func() {
		n.visible = true
		n.applyPosition()
		procShowWindow.Call(uintptr(n.hwndHost), swShowNA)
		n.armTimer()
		if err := n.applyTransform(); err != nil {
			logger.WithComponent("native-backend").Warn().Err(err).Msg("Failed to reapply transform on show")
		}
		n.updateContent()
	})
	return nil
}

// Hide stops content updates and hides the host window.
func (n *Native) Hide() error {
	n.post(func() {
		n.visible = false
		procKillTimer.Call(uintptr(n.hwndHost), contentTimerID)
		procShowWindow.Call(uintptr(n.hwndHost), swHide)
	})
	return nil
}

// Dispose shuts down the magnifier thread and releases the session.
// Idempotent.
func (n *Native) Dispose() {
	if n.disposed {
		return
	}
	n.disposed = true
	if !n.initialized {
		return
	}
	procPostMessageW.Call(uintptr(n.hwndHost), wmClose, 0, 0)
	<-n.done
	logger.WithComponent("native-backend").Info().Msg("Windows magnification session disposed")
}

func (n *Native) screenSize() (int, int) {
	w, _, _ := procGetSystemMetrics.Call(smCxScreen)
	h, _, _ := procGetSystemMetrics.Call(smCyScreen)
	return int(w), int(h)
}

func (n *Native) armTimer() {
	interval := 1000 / n.refreshRate
	if ret, _, err := procSetTimer.Call(uintptr(n.hwndHost), contentTimerID, uintptr(interval), 0); ret == 0 {
		logger.WithComponent("native-backend").Error().Err(err).Msg("Failed to arm content timer")
	}
}

func (n *Native) applyTransform() error {
	var t magTransform
	t.v[0] = float32(n.zoom)
	t.v[4] = float32(n.zoom)
	t.v[8] = 1.0
	if ret, _, err := procMagSetWindowTransform.Call(uintptr(n.hwndMag), uintptr(unsafe.Pointer(&t))); ret == 0 {
		return fmt.Errorf("MagSetWindowTransform failed: %w", err)
	}
	return nil
}

func (n *Native) applyPosition() {
	screenW, screenH := n.screenSize()
	x, y := geometry.ComputeWindowPosition(screenW, screenH, n.width, n.height, n.xOffset, n.yOffset)
	procSetWindowPos.Call(uintptr(n.hwndHost), hwndTopmost,
		uintptr(x), uintptr(y), uintptr(n.width), uintptr(n.height), swpNoActivate)
	procSetWindowPos.Call(uintptr(n.hwndMag), 0,
		0, 0, uintptr(n.width), uintptr(n.height), swpNoActivate)
}

func (n *Native) applyShape() {
	if n.circular {
		rgn, _, err := procCreateEllipticRgn.Call(0, 0, uintptr(n.width), uintptr(n.height))
		if rgn == 0 {
			logger.WithComponent("native-backend").Warn().Err(err).Msg("Failed to create elliptic region")
			return
		}
		// SetWindowRgn takes ownership of the region handle.
		procSetWindowRgn.Call(uintptr(n.hwndHost), rgn, 1)
	} else {
		procSetWindowRgn.Call(uintptr(n.hwndHost), 0, 1)
	}
}

// updateContent recomputes the source rectangle and hands it to the OS
// session. No pixels move through this process on the native path.
func (n *Native) updateContent() {
	if n.hwndMag == 0 {
		return
	}
	screenW, screenH := n.screenSize()
	region := geometry.ComputeCaptureRegion(screenW, screenH, n.width, n.height, n.zoom, n.xOffset, n.yOffset)
	src := winRect{
		Left:   int32(region.Left),
		Top:    int32(region.Top),
		Right:  int32(region.Left + region.Width),
		Bottom: int32(region.Top + region.Height),
	}
	// Failure here is expected while hidden; skip the frame silently.
	procMagSetWindowSource.Call(uintptr(n.hwndMag), uintptr(unsafe.Pointer(&src)))
}

// newNativeBackend probes the native path on Windows.
func newNativeBackend(cfg *config.Settings) (Backend, error) {
	if err := modMagnification.Load(); err != nil {
		return nil, fmt.Errorf("magnification API unavailable: %w", err)
	}
	return NewNative(cfg), nil
}

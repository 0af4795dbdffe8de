// Package hotkeys registers global X11 keyboard shortcuts and turns key
// presses into engine intents. It owns its own X connection and event loop;
// it never touches magnifier windows directly.
package hotkeys

import (
	"fmt"

	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/keybind"
	"github.com/BurntSushi/xgbutil/xevent"

	"github.com/loupe-sh/loupe/internal/logger"
	"github.com/loupe-sh/loupe/internal/magnifier"
)

// IntentSink receives control intents from key presses.
type IntentSink interface {
	Post(magnifier.Intent)
}

// Listener holds the hotkey grabs for one X connection.
type Listener struct {
	xu   *xgbutil.XUtil
	sink IntentSink
}

// New connects to the X server and prepares key binding.
func New(sink IntentSink) (*Listener, error) {
	xu, err := xgbutil.NewConn()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}
	keybind.Initialize(xu)
	return &Listener{xu: xu, sink: sink}, nil
}

// Register grabs the visibility and zoom preset hotkeys. Key sequences use
// xgbutil syntax, e.g. "Mod4-x". An empty sequence skips that binding.
func (l *Listener) Register(toggleKey, zoomKey string) error {
	if toggleKey != "" {
		if err := l.bind(toggleKey, magnifier.VisibilityToggleRequested); err != nil {
			return fmt.Errorf("failed to bind toggle hotkey %q: %w", toggleKey, err)
		}
	}
	if zoomKey != "" {
		if err := l.bind(zoomKey, magnifier.ZoomPresetToggleRequested); err != nil {
			return fmt.Errorf("failed to bind zoom hotkey %q: %w", zoomKey, err)
		}
	}
	logger.WithComponent("hotkeys").Info().
		Str("toggle", toggleKey).
		Str("zoom", zoomKey).
		Msg("Hotkeys registered")
	return nil
}

func (l *Listener) bind(keySequence string, intent magnifier.Intent) error {
	return keybind.KeyPressFun(func(xu *xgbutil.XUtil, ev xevent.KeyPressEvent) {
		l.sink.Post(intent)
	}).Connect(l.xu, l.xu.RootWin(), keySequence, true)
}

// Run pumps X events until Stop is called. Blocking; run it on its own
// goroutine.
func (l *Listener) Run() {
	xevent.Main(l.xu)
}

// Stop ends the event loop and releases the grabs.
func (l *Listener) Stop() {
	keybind.Detach(l.xu, l.xu.RootWin())
	xevent.Quit(l.xu)
}

//go:build !windows

package backend

import (
	"fmt"

	"github.com/loupe-sh/loupe/internal/config"
)

// newNativeBackend reports that no native magnification API exists on this
// platform. The engine treats this as an ordinary negative probe result and
// falls back to the generic capture backend.
func newNativeBackend(cfg *config.Settings) (Backend, error) {
	return nil, fmt.Errorf("native magnification not supported on this platform")
}

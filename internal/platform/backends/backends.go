// Package backends selects a platform backend by name. "auto" picks the
// native backend for the build target; "sim" is available everywhere.
package backends

import (
	"fmt"

	"github.com/framescope/framescope/internal/platform"
	"github.com/framescope/framescope/internal/platform/sim"
)

// New returns the backend for the given name: "auto", "sim", "x11", "win32".
// fps sets the frame cadence for timer-driven backends.
func New(name string, fps int) (platform.Backend, error) {
	switch name {
	case "sim":
		return sim.New(), nil
	case "", "auto":
		return native("auto", fps)
	default:
		return native(name, fps)
	}
}

func unknown(name string) error {
	return fmt.Errorf("backend %q not available on this platform: %w", name, platform.ErrUnsupported)
}

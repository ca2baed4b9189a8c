//go:build windows

package backends

import (
	"github.com/framescope/framescope/internal/platform"
	"github.com/framescope/framescope/internal/platform/win32"
)

func native(name string, fps int) (platform.Backend, error) {
	switch name {
	case "auto", "win32":
		return win32.New(fps), nil
	default:
		return nil, unknown(name)
	}
}

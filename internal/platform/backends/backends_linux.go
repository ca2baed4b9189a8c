//go:build linux

package backends

import (
	"github.com/framescope/framescope/internal/platform"
	"github.com/framescope/framescope/internal/platform/x11"
)

func native(name string, fps int) (platform.Backend, error) {
	switch name {
	case "auto", "x11":
		return x11.New(fps), nil
	default:
		return nil, unknown(name)
	}
}

//go:build !linux && !windows

package backends

import (
	"github.com/framescope/framescope/internal/platform"
	"github.com/framescope/framescope/internal/platform/sim"
)

func native(name string, fps int) (platform.Backend, error) {
	if name == "auto" {
		return sim.New(), nil
	}
	return nil, unknown(name)
}

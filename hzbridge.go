package hzbridge

import (
	"errors"
	"fmt"

	"github.com/brutella/hc/log"
	"github.com/cloudkucooland/hzbridge/config"
	"github.com/cloudkucooland/hzbridge/heatzy"
	hzhc "github.com/cloudkucooland/hzbridge/homecontrol"
	"github.com/cloudkucooland/hzbridge/hzhttp"
	"github.com/cloudkucooland/hzbridge/platform"
)

// BootstrapPlatforms sets up all the platforms.
// HomeControl has to start first so Heatzy can publish to it, HTTP last so it can find Heatzy.
func BootstrapPlatforms(c *config.Config) {
	platform.RegisterPlatform(hzhc.Name, hzhc.New())
	platform.RegisterPlatform(heatzy.Name, &heatzy.Platform{})
	platform.RegisterPlatform(hzhttp.Name, hzhttp.New(heatzy.Name))

	platform.StartupAllPlatforms(c)
}

// StartHC is just a wrapper, no need to expose hzhc to the daemon
func StartHC() error {
	p, ok := platform.GetPlatform(hzhc.Name)
	if !ok {
		err := errors.New(hzhc.Name + " platform not registered")
		log.Info.Print(err)
		return err
	}
	h, ok := p.(*hzhc.HCPlatform)
	if !ok {
		return fmt.Errorf("HomeControl platform has unexpected type %T", p)
	}
	return h.StartHC()
}

package accessory

import (
	"context"

	hcaccessory "github.com/brutella/hc/accessory"
)

// Switcher is the cloud side of an accessory: it can be set and read back
type Switcher interface {
	Write(ctx context.Context, on bool) error
	Read(ctx context.Context) (bool, error)
	State() string
}

// HZAccessory is the accessory type, a Heatzy binding plus hc's stuff
type HZAccessory struct {
	Platform string // Heatzy
	Name     string // the binding identifier, stable across restarts
	DID      string // Gizwits device id
	Mode     string // Power, Comfort, Eco...

	Info                   hcaccessory.Info // defined at https://github.com/brutella/hc/blob/master/accessory/accessory.go
	*hcaccessory.Accessory                  // set once the HomeKit side is built

	Device interface{} // *devices.HeaterSwitch
	Switch Switcher
}

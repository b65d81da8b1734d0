package heatzy

import (
	"context"
	"errors"
	"sync"

	"github.com/brutella/hc/log"
	"github.com/cloudkucooland/hzbridge/gizwits"
)

// Controller is the part of the Gizwits client a switch needs
type Controller interface {
	Control(ctx context.Context, did string, attrs map[string]interface{}) error
	Latest(ctx context.Context, did string) (*gizwits.Latest, error)
	Device(ctx context.Context, did string) (gizwits.Device, error)
}

// State is the last known state of a switch
type State int

const (
	StateUnknown State = iota
	StateOff
	StateOn
)

func (s State) String() string {
	switch s {
	case StateOff:
		return "off"
	case StateOn:
		return "on"
	default:
		return "unknown"
	}
}

// Adapter turns switch reads and writes for one binding into Gizwits calls
type Adapter struct {
	id    string
	did   string
	mode  Mode
	cloud Controller

	mu    sync.Mutex
	state State
}

// NewAdapter starts in StateUnknown
func NewAdapter(b Binding, cloud Controller) *Adapter {
	return &Adapter{
		id:    b.ID,
		did:   b.Device.DID,
		mode:  b.Mode,
		cloud: cloud,
	}
}

// Write sets the heater to this adapter's mode, or to off.
// The last known state only changes when Gizwits accepts the command.
func (a *Adapter) Write(ctx context.Context, on bool) error {
	if _, ok := a.mode.Code(); !ok && a.mode != Power {
		return &gizwits.ControlError{DID: a.did, Err: errors.New("mode has no code: " + string(a.mode))}
	}
	attrs := a.attrs(on)
	log.Info.Printf("setting heatzy [%s] %s to [%t]: %v", a.did, a.mode, on, attrs)
	if err := a.cloud.Control(ctx, a.did, attrs); err != nil {
		log.Info.Printf("failed to set heatzy [%s] %s: %s", a.did, a.mode, err.Error())
		return err
	}
	a.observe(on)
	return nil
}

// Read asks Gizwits whether this adapter's mode is the current one
func (a *Adapter) Read(ctx context.Context) (bool, error) {
	var on bool
	if a.mode == Power {
		d, err := a.cloud.Device(ctx, a.did)
		if err != nil {
			log.Info.Printf("failed to get heatzy [%s] state: %s", a.did, err.Error())
			return false, err
		}
		on = d.IsOnline
	} else {
		want, ok := a.mode.Code()
		if !ok {
			return false, &gizwits.ReadError{DID: a.did, Err: errors.New("mode has no code: " + string(a.mode))}
		}
		l, err := a.cloud.Latest(ctx, a.did)
		if err != nil {
			log.Info.Printf("failed to get heatzy [%s] state: %s", a.did, err.Error())
			return false, err
		}
		current, ok := l.Mode()
		if !ok {
			err := &gizwits.ReadError{DID: a.did, Err: errors.New("no usable mode attribute")}
			log.Info.Println(err.Error())
			return false, err
		}
		on = current == want
	}
	a.observe(on)
	return on, nil
}

// ID is the binding identifier this adapter serves
func (a *Adapter) ID() string {
	return a.id
}

// State is the last known state, StateUnknown until a read or write succeeds
func (a *Adapter) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// On reports the last known state, unknown counts as off
func (a *Adapter) On() bool {
	return a.State() == StateOn
}

func (a *Adapter) observe(on bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if on {
		a.state = StateOn
	} else {
		a.state = StateOff
	}
}

func (a *Adapter) attrs(on bool) map[string]interface{} {
	if a.mode == Power {
		return map[string]interface{}{"on": on}
	}
	code := OffCode
	if on {
		code, _ = a.mode.Code()
	}
	return map[string]interface{}{"mode": code}
}

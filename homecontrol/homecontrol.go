package hzhc

import (
	"sort"
	"sync"

	"github.com/brutella/hc"
	"github.com/brutella/hc/accessory"
	"github.com/brutella/hc/log"
	"github.com/brutella/hc/util"
	hzaccessory "github.com/cloudkucooland/hzbridge/accessory"
	"github.com/cloudkucooland/hzbridge/config"
	"github.com/cloudkucooland/hzbridge/platform"
)

// Name is what this platform registers as
const Name = "HomeControl"

// transportFunc builds the HomeKit transport, swapped out in tests
type transportFunc func(hc.Config, *accessory.Accessory, ...*accessory.Accessory) (hc.Transport, error)

func ipTransport(c hc.Config, root *accessory.Accessory, as ...*accessory.Accessory) (hc.Transport, error) {
	return hc.NewIPTransport(c, root, as...)
}

// HCPlatform is the platform handle, it owns the bridge and its transport
type HCPlatform struct {
	mu        sync.Mutex
	config    *config.Config
	root      *accessory.Bridge
	hcs       map[string]*hzaccessory.HZAccessory
	transport hc.Transport
	running   bool

	newTransport transportFunc
}

// New returns an empty HomeControl platform
func New() *HCPlatform {
	return &HCPlatform{
		hcs:          make(map[string]*hzaccessory.HZAccessory),
		newTransport: ipTransport,
	}
}

// Startup is called by the platform bootstrap
func (h *HCPlatform) Startup(c *config.Config) platform.Control {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.config = c

	serial := c.ID
	if serial == "" {
		storage, err := util.NewFileStorage("serials")
		if err != nil {
			log.Info.Println("unable to get storage")
		} else {
			serial = util.GetSerialNumberForAccessoryName("HeatzyRoot", storage)
		}
	}

	h.root = accessory.NewBridge(accessory.Info{
		Name:             c.Name,
		ID:               1,
		SerialNumber:     serial,
		Manufacturer:     "deviousness",
		Model:            "hzbridge",
		FirmwareRevision: "0.1.0",
	})
	h.root.Accessory.OnIdentify(func() {
		log.Info.Printf("bridge root identify called: %+v", h.root.Accessory)
	})
	return h
}

// StartHC is called after the known accessories are registered to start operation
func (h *HCPlatform) StartHC() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.startLocked()
}

func (h *HCPlatform) startLocked() error {
	values := make([]*accessory.Accessory, 0, len(h.hcs))
	for _, name := range h.namesLocked() {
		values = append(values, h.hcs[name].Accessory)
	}

	t, err := h.newTransport(h.config.HCConfig, h.root.Accessory, values...)
	if err != nil {
		return err
	}
	h.transport = t
	h.running = true

	go t.Start()
	if x, ok := t.(interface{ XHMURI() (string, error) }); ok {
		if uri, err := x.XHMURI(); err == nil {
			log.Info.Printf("add this bridge with: %s", uri)
		}
	}
	log.Info.Printf("HomeKit bridge serving %d heater switches", len(values))
	return nil
}

func (h *HCPlatform) stop() {
	h.mu.Lock()
	t := h.transport
	h.transport = nil
	h.running = false
	h.mu.Unlock()

	if t != nil {
		<-t.Stop()
	}
}

// Update adds and removes accessories; a running bridge is restarted so controllers see the new set
func (h *HCPlatform) Update(add []*hzaccessory.HZAccessory, remove []string) {
	h.mu.Lock()
	changed := false
	for _, name := range remove {
		if _, ok := h.hcs[name]; ok {
			delete(h.hcs, name)
			changed = true
		}
	}
	for _, a := range add {
		if h.addLocked(a) {
			changed = true
		}
	}
	running := h.running
	h.mu.Unlock()

	if !changed || !running {
		return
	}

	log.Info.Println("accessory set changed, restarting HomeKit transport")
	h.stop()
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.startLocked(); err != nil {
		log.Info.Printf("unable to restart HomeKit transport: %s", err.Error())
	}
}

func (h *HCPlatform) addLocked(a *hzaccessory.HZAccessory) bool {
	// catch accessories that were never built
	if a.Accessory == nil {
		log.Info.Printf("accessory unset: %v", a.Info)
		return false
	}

	a.Accessory.OnIdentify(func() {
		log.Info.Printf("identify called for [%s]: %+v", a.Info.Name, a.Accessory)
		for _, service := range a.Accessory.GetServices() {
			log.Info.Printf("service: %+v", service)
			for _, char := range service.GetCharacteristics() {
				log.Info.Printf("characteristic : %+v", char)
			}
		}
	})

	h.hcs[a.Name] = a
	return true
}

// Shutdown is called at process teardown
func (h *HCPlatform) Shutdown() platform.Control {
	h.stop()
	return h
}

// GetAccessory looks up a registered accessory -- you probably want the Heatzy platform's version, not this
func (h *HCPlatform) GetAccessory(name string) (*hzaccessory.HZAccessory, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	a, ok := h.hcs[name]
	return a, ok
}

// Accessories lists what the bridge is serving
func (h *HCPlatform) Accessories() []*hzaccessory.HZAccessory {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*hzaccessory.HZAccessory, 0, len(h.hcs))
	for _, name := range h.namesLocked() {
		out = append(out, h.hcs[name])
	}
	return out
}

// Background runs the various background tasks: none for HC
func (h *HCPlatform) Background() {
}

func (h *HCPlatform) namesLocked() []string {
	names := make([]string, 0, len(h.hcs))
	for name := range h.hcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

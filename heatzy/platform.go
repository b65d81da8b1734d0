package heatzy

import (
	"context"
	"path/filepath"
	"sort"
	"sync"
	"time"

	hcaccessory "github.com/brutella/hc/accessory"
	"github.com/brutella/hc/log"
	"github.com/brutella/hc/util"
	"github.com/cloudkucooland/hzbridge/accessory"
	"github.com/cloudkucooland/hzbridge/config"
	"github.com/cloudkucooland/hzbridge/devices"
	"github.com/cloudkucooland/hzbridge/gizwits"
	hzhc "github.com/cloudkucooland/hzbridge/homecontrol"
	"github.com/cloudkucooland/hzbridge/platform"
)

// Name is what this platform registers as
const Name = "Heatzy"

// Cloud is everything the platform needs from Gizwits
type Cloud interface {
	Controller
	Devices(ctx context.Context) ([]gizwits.Device, error)
}

// Publisher is the HomeKit side; accessories come and go in batches
type Publisher interface {
	Update(add []*accessory.HZAccessory, remove []string)
}

type entry struct {
	binding Binding
	adapter *Adapter
	hk      *devices.HeaterSwitch
	acc     *accessory.HZAccessory
}

// Platform is the handle to the Heatzy heaters
type Platform struct {
	cloud        Cloud
	store        *Store
	pub          Publisher
	modes        []Mode
	timeout      time.Duration
	refreshEvery time.Duration
	pullEvery    time.Duration

	mu       sync.Mutex
	entries  map[string]*entry // keyed by binding ID
	done     chan struct{}
	stopOnce sync.Once
}

// NewPlatform wires a platform by hand; Startup does the same from the config
func NewPlatform(cloud Cloud, store *Store, pub Publisher, modes []Mode) *Platform {
	p := &Platform{}
	p.setup(cloud, store, pub, modes)
	return p
}

func (p *Platform) setup(cloud Cloud, store *Store, pub Publisher, modes []Mode) {
	p.cloud = cloud
	p.store = store
	p.pub = pub
	p.modes = modes
	p.timeout = 15 * time.Second
	p.entries = make(map[string]*entry)
	p.done = make(chan struct{})
}

// Startup is called by the platform management to get things going
func (p *Platform) Startup(c *config.Config) platform.Control {
	client := gizwits.NewClient(gizwits.Config{
		BaseURL:  c.APIURL,
		AppID:    c.AppID,
		Username: c.Username,
		Password: c.Password,
		Timeout:  time.Duration(c.HTTPTimeout) * time.Second,
	})

	var store *Store
	storage, err := util.NewFileStorage(filepath.Join(c.ConfigDir, "heatzy"))
	if err != nil {
		log.Info.Printf("unable to get storage, heatzy accessories will not be cached: %s", err.Error())
	} else {
		store = NewStore(storage)
	}

	var pub Publisher
	if h, ok := platform.GetPlatform(hzhc.Name); ok {
		pub, _ = h.(Publisher)
	}
	if pub == nil {
		log.Info.Println("HomeControl platform does not yet exist, heaters will not show up in HomeKit")
	}

	modes := ParseModes(c.Modes)
	if len(modes) == 0 {
		log.Info.Println("no heatzy modes enabled, no switches will be exposed")
	}

	p.setup(client, store, pub, modes)
	if c.HTTPTimeout > 0 {
		p.timeout = time.Duration(c.HTTPTimeout) * time.Second
	}
	if c.RefreshInterval > 0 {
		p.refreshEvery = time.Duration(c.RefreshInterval) * time.Second
	}
	if c.PullRate > 0 {
		p.pullEvery = time.Duration(c.PullRate) * time.Second
	}

	if err := p.Restore(); err != nil {
		log.Info.Println(err.Error())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*p.timeout)
	defer cancel()
	if err := p.Refresh(ctx); err != nil {
		log.Info.Printf("initial heatzy refresh failed, keeping cached accessories: %s", err.Error())
	}
	return p
}

// Shutdown is called by the platform management to shut things down
func (p *Platform) Shutdown() platform.Control {
	p.stopOnce.Do(func() {
		close(p.done)
	})
	return p
}

// Restore brings back the bindings of the previous run before the first refresh
func (p *Platform) Restore() error {
	if p.store == nil {
		return nil
	}
	bindings, err := p.store.Load()
	if err != nil {
		return err
	}

	var adds []*accessory.HZAccessory
	p.mu.Lock()
	for _, b := range bindings {
		if _, ok := p.entries[b.ID]; ok {
			continue
		}
		log.Info.Printf("restoring heatzy accessory from cache: %s", b.DisplayName())
		e := p.newEntry(b)
		p.entries[b.ID] = e
		adds = append(adds, e.acc)
	}
	n := len(p.entries)
	p.mu.Unlock()

	bindingsGauge.Set(float64(n))
	p.publish(adds, nil)
	return nil
}

// Refresh re-lists devices and reconciles the switches
func (p *Platform) Refresh(ctx context.Context) error {
	_, err := p.Sync(ctx)
	return err
}

// Sync re-lists devices and applies the reconciliation plan.
// Nothing is touched if the listing fails.
func (p *Platform) Sync(ctx context.Context) (Plan, error) {
	devs, err := p.cloud.Devices(ctx)
	if err != nil {
		log.Info.Printf("error fetching heatzy devices: %s", err.Error())
		return Plan{}, err
	}

	var adds []*accessory.HZAccessory
	var removes []string

	p.mu.Lock()
	known := make(map[string]Binding, len(p.entries))
	for id, e := range p.entries {
		known[id] = e.binding
	}
	plan := Reconcile(known, devs, p.modes)

	for _, b := range plan.Remove {
		log.Info.Printf("removing unused heatzy accessory: %s", b.DisplayName())
		delete(p.entries, b.ID)
		removes = append(removes, b.ID)
	}
	for _, b := range plan.Update {
		e := p.entries[b.ID]
		e.binding = b
		e.acc.Info.Name = b.DisplayName()
		e.hk.Accessory.Info.Name.SetValue(b.DisplayName())
	}
	for _, b := range plan.Create {
		log.Info.Printf("adding new heatzy accessory: %s", b.DisplayName())
		e := p.newEntry(b)
		p.entries[b.ID] = e
		adds = append(adds, e.acc)
	}
	bindings := make([]Binding, 0, len(p.entries))
	for _, e := range p.entries {
		bindings = append(bindings, e.binding)
	}
	p.mu.Unlock()

	bindingsGauge.Set(float64(len(bindings)))
	reconcileTotal.WithLabelValues("create").Add(float64(len(plan.Create)))
	reconcileTotal.WithLabelValues("update").Add(float64(len(plan.Update)))
	reconcileTotal.WithLabelValues("remove").Add(float64(len(plan.Remove)))

	p.publish(adds, removes)
	if p.store != nil {
		if err := p.store.Save(bindings); err != nil {
			log.Info.Println(err.Error())
		}
	}

	log.Info.Printf("fetched %d heatzy devices, %d switches", len(devs), len(bindings))
	return plan, nil
}

// GetAccessory looks up a switch by binding ID
func (p *Platform) GetAccessory(id string) (*accessory.HZAccessory, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[id]
	if !ok {
		return nil, false
	}
	return e.acc, true
}

// Accessories lists every switch, sorted by binding ID
func (p *Platform) Accessories() []*accessory.HZAccessory {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*accessory.HZAccessory, 0, len(p.entries))
	for _, e := range p.entries {
		out = append(out, e.acc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Adapter looks up the adapter of a binding
func (p *Platform) Adapter(id string) (*Adapter, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[id]
	if !ok {
		return nil, false
	}
	return e.adapter, true
}

// Background starts the device refresh and state pull loops
func (p *Platform) Background() {
	if p.refreshEvery > 0 {
		go p.every(p.refreshEvery, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*p.timeout)
			defer cancel()
			p.Refresh(ctx)
		})
	}
	if p.pullEvery > 0 {
		go p.every(p.pullEvery, p.backgroundPuller)
	}
}

func (p *Platform) every(d time.Duration, fn func()) {
	t := time.NewTicker(d)
	defer t.Stop()
	for {
		select {
		case <-p.done:
			return
		case <-t.C:
			fn()
		}
	}
}

// backgroundPuller reads every switch and fixes the HomeKit side when it drifted
func (p *Platform) backgroundPuller() {
	for _, e := range p.snapshot() {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		on, err := e.adapter.Read(ctx)
		cancel()
		if err != nil {
			continue
		}
		if p.show(e, on) {
			log.Debug.Printf("heatzy [%s] changed outside HomeKit, now %t", e.binding.DisplayName(), on)
		}
	}
}

func (p *Platform) snapshot() []*entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*entry, 0, len(p.entries))
	for _, e := range p.entries {
		out = append(out, e)
	}
	return out
}

func (p *Platform) newEntry(b Binding) *entry {
	ad := NewAdapter(b, p.cloud)

	serial := b.Device.MAC
	if serial == "" {
		serial = b.Device.DID
	}
	model := b.Device.ProductName
	if model == "" {
		model = "Heatzy"
	}
	info := hcaccessory.Info{
		ID:           b.HKID,
		Name:         b.DisplayName(),
		SerialNumber: serial + "-" + string(b.Mode),
		Manufacturer: "Heatzy",
		Model:        model,
	}
	hk := devices.NewHeaterSwitch(info, string(b.Mode))

	e := &entry{
		binding: b,
		adapter: ad,
		hk:      hk,
	}
	e.acc = &accessory.HZAccessory{
		Platform:  Name,
		Name:      b.ID,
		DID:       b.Device.DID,
		Mode:      string(b.Mode),
		Info:      info,
		Accessory: hk.Accessory,
		Device:    hk,
		Switch:    switcher{p: p, e: e},
	}

	// install callbacks: if we get an update from HC, deal with it
	hk.Switch.On.OnValueRemoteUpdate(func(on bool) {
		p.remoteUpdate(e, on)
	})
	hk.Switch.On.OnValueRemoteGet(func() bool {
		return p.remoteGet(e)
	})
	return e
}

func (p *Platform) remoteUpdate(e *entry, on bool) {
	log.Info.Printf("setting [%s] to [%t] from HC handler", e.binding.DisplayName(), on)
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	if err := p.set(ctx, e, on); err != nil {
		// put the GUI back to what we last knew
		e.hk.Switch.On.SetValue(e.adapter.On())
	}
}

// set writes a switch and brings HomeKit in line once the cloud accepted it
func (p *Platform) set(ctx context.Context, e *entry, on bool) error {
	if err := e.adapter.Write(ctx, on); err != nil {
		return err
	}
	p.show(e, on)
	p.siblingsOff(e)
	return nil
}

// show pushes a state to the HomeKit switch, true if it was different
func (p *Platform) show(e *entry, on bool) bool {
	if e.hk.Switch.On.GetValue() == on {
		return false
	}
	e.hk.Switch.On.SetValue(on)
	return true
}

// a heater is in exactly one mode, so the other mode switches are now off
func (p *Platform) siblingsOff(e *entry) {
	if e.binding.Mode == Power {
		return
	}
	for _, s := range p.snapshot() {
		if s == e || s.binding.Device.DID != e.binding.Device.DID || s.binding.Mode == Power {
			continue
		}
		s.adapter.observe(false)
		p.show(s, false)
	}
}

func (p *Platform) remoteGet(e *entry) bool {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	on, err := e.adapter.Read(ctx)
	if err != nil {
		return e.adapter.On()
	}
	return on
}

func (p *Platform) publish(adds []*accessory.HZAccessory, removes []string) {
	if p.pub == nil || (len(adds) == 0 && len(removes) == 0) {
		return
	}
	p.pub.Update(adds, removes)
}

// switcher is the control channel's handle on a switch, HomeKit follows what it does
type switcher struct {
	p *Platform
	e *entry
}

func (s switcher) Write(ctx context.Context, on bool) error {
	return s.p.set(ctx, s.e, on)
}

func (s switcher) Read(ctx context.Context) (bool, error) {
	on, err := s.e.adapter.Read(ctx)
	if err != nil {
		return false, err
	}
	s.p.show(s.e, on)
	return on, nil
}

func (s switcher) State() string {
	return s.e.adapter.State().String()
}

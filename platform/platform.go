package platform

import (
	"context"
	"sync"

	"github.com/brutella/hc/log"
	"github.com/cloudkucooland/hzbridge/accessory"
	"github.com/cloudkucooland/hzbridge/config"
)

// Control is the interface which all platforms must satisfy
type Control interface {
	Startup(*config.Config) Control
	Background()
	Shutdown() Control
	GetAccessory(string) (*accessory.HZAccessory, bool)
	Accessories() []*accessory.HZAccessory
}

// Refresher is satisfied by platforms that can re-discover their devices on demand
type Refresher interface {
	Refresh(context.Context) error
}

var (
	mu        sync.Mutex
	platforms = make(map[string]Control)
	order     []string // startup order is registration order
)

// RegisterPlatform is called whenever a new platform is instantiated
func RegisterPlatform(name string, control Control) {
	mu.Lock()
	defer mu.Unlock()
	if _, ok := platforms[name]; ok {
		return
	}
	platforms[name] = control
	order = append(order, name)
}

// GetPlatform looks up a registered platform by name
func GetPlatform(name string) (Control, bool) {
	mu.Lock()
	defer mu.Unlock()
	pc, ok := platforms[name]
	return pc, ok
}

// ShutdownAllPlatforms is called at process stop to shutdown all platforms, last started first
func ShutdownAllPlatforms() {
	n := names()
	for i := len(n) - 1; i >= 0; i-- {
		name := n[i]
		log.Debug.Printf("shutting down: %s", name)
		p, _ := GetPlatform(name)
		set(name, p.Shutdown())
	}
}

// StartupAllPlatforms is called at process start to initialize all platforms
func StartupAllPlatforms(c *config.Config) {
	for _, name := range names() {
		log.Debug.Printf("starting up: %s", name)
		p, _ := GetPlatform(name)
		set(name, p.Startup(c))
	}
}

// Background starts the background processes for every platform
func Background() {
	for _, name := range names() {
		p, _ := GetPlatform(name)
		p.Background()
	}
}

// Reset forgets every platform, for tests
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	platforms = make(map[string]Control)
	order = nil
}

func names() []string {
	mu.Lock()
	defer mu.Unlock()
	n := make([]string, len(order))
	copy(n, order)
	return n
}

func set(name string, c Control) {
	mu.Lock()
	defer mu.Unlock()
	platforms[name] = c
}

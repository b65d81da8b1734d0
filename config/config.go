package config

import (
	"github.com/brutella/hc"
)

const (
	defaultAPIURL          = "https://euapi.gizwits.com"
	defaultAppID           = "c70a66ff039d41b4a220e198b0fcc8b3"
	defaultRefreshInterval = 300
	defaultPullRate        = 60
	defaultHTTPTimeout     = 15
)

// Config is the primary daemon configuration...
type Config struct {
	ConfigDir   string    // passed in from CLI
	ConfigFile  string    // server.json
	HTTPAddress string    // net.Dial address format, :port is good enough -- empty disables the control channel
	Name        string    // what this bridge shows as
	ID          string    // displayed serial number -- if you run multiple instances, make sure each has a distinct ID
	HCConfig    hc.Config // base HomeControl configuration

	Username string   // Heatzy account
	Password string   // Heatzy account
	Modes    []string // one switch per device per mode; absent means a single Power switch
	APIURL   string   // Gizwits endpoint, override for testing
	AppID    string   // Gizwits application id used by the Heatzy app

	RefreshInterval int // (seconds) how often to re-list devices -- negative to disable
	PullRate        int // (seconds) how often to pull switch state -- negative to disable
	HTTPTimeout     int // (seconds) per vendor request
}

// Defaults fills in anything the config file left unset
func (c *Config) Defaults() {
	if c.Name == "" {
		c.Name = "Heatzy"
	}
	if c.Modes == nil {
		c.Modes = []string{"Power"}
	}
	if c.APIURL == "" {
		c.APIURL = defaultAPIURL
	}
	if c.AppID == "" {
		c.AppID = defaultAppID
	}
	if c.RefreshInterval == 0 {
		c.RefreshInterval = defaultRefreshInterval
	}
	if c.PullRate == 0 {
		c.PullRate = defaultPullRate
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = defaultHTTPTimeout
	}
}

var runningConfig *Config

// Get a pointer to the global config
func Get() *Config {
	return runningConfig
}

// should only be called by the bootstrap
func Set(c *Config) {
	runningConfig = c
}

package heatzy

import (
	"strings"

	"github.com/brutella/hc/log"
)

// Mode is a heater operating mode exposed as its own switch
type Mode string

const (
	Power      Mode = "Power" // single switch per heater, on/off only
	Comfort    Mode = "Comfort"
	Eco        Mode = "Eco"
	EcoPlus    Mode = "EcoPlus"
	Sleep      Mode = "Sleep"
	Antifreeze Mode = "Antifreeze"
)

// OffCode is what every mode switch sends when turned off
const OffCode = 3

// Gizwits mode codes; 3 is stop and never an "on" code
var modeCodes = map[Mode]int{
	Comfort:    0,
	Eco:        1,
	Antifreeze: 2,
	EcoPlus:    4,
	Sleep:      5,
}

// Code returns the code sent to turn this mode on; Power has none
func (m Mode) Code() (int, bool) {
	c, ok := modeCodes[m]
	return c, ok
}

// ParseMode matches a configured mode name, ignoring case
func ParseMode(s string) (Mode, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	if strings.EqualFold(s, string(Power)) {
		return Power, true
	}
	for m := range modeCodes {
		if strings.EqualFold(s, string(m)) {
			return m, true
		}
	}
	return "", false
}

// ParseModes turns the configured list into modes, dropping blanks, unknowns and repeats
func ParseModes(names []string) []Mode {
	seen := make(map[Mode]bool, len(names))
	modes := make([]Mode, 0, len(names))
	for _, n := range names {
		m, ok := ParseMode(n)
		if !ok {
			if strings.TrimSpace(n) != "" {
				log.Info.Printf("unknown heatzy mode [%s], ignoring", n)
			}
			continue
		}
		if seen[m] {
			continue
		}
		seen[m] = true
		modes = append(modes, m)
	}
	return modes
}

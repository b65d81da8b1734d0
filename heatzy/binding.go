package heatzy

import (
	"encoding/binary"
	"fmt"

	"github.com/cloudkucooland/hzbridge/gizwits"
	"github.com/google/uuid"
)

// all binding identifiers are derived in this namespace
var bindingNamespace = uuid.MustParse("8f2a3d54-7c1e-5b0a-9e6f-2d4c8b1a0e73")

// Binding is a (device, mode) pair exposed as one switch
type Binding struct {
	ID     string         `json:"id"`
	HKID   uint64         `json:"hkid"`
	Mode   Mode           `json:"mode"`
	Device gizwits.Device `json:"device"`
}

// NewBinding derives the identifiers for a device and mode
func NewBinding(d gizwits.Device, m Mode) Binding {
	u := bindingUUID(d.DID, m)
	return Binding{
		ID:     u.String(),
		HKID:   accessoryID(u),
		Mode:   m,
		Device: d,
	}
}

// BindingID is stable: same device and mode, same identifier
func BindingID(did string, m Mode) string {
	return bindingUUID(did, m).String()
}

func bindingUUID(did string, m Mode) uuid.UUID {
	return uuid.NewSHA1(bindingNamespace, []byte(did+" "+string(m)))
}

// first 8 bytes of the uuid; 1 belongs to the bridge, 0 means unset to hc
func accessoryID(u uuid.UUID) uint64 {
	id := binary.BigEndian.Uint64(u[:8])
	if id <= 1 {
		id += 2
	}
	return id
}

// DisplayName is what HomeKit shows for the switch
func (b Binding) DisplayName() string {
	alias := b.Device.Alias
	if alias == "" {
		alias = b.Device.DID
	}
	if b.Mode == Power {
		return alias
	}
	return fmt.Sprintf("%s-%s", alias, b.Mode)
}

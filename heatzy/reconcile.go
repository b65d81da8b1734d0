package heatzy

import (
	"sort"

	"github.com/cloudkucooland/hzbridge/gizwits"
)

// Plan is the difference between what we expose and what the cloud lists
type Plan struct {
	Create []Binding
	Update []Binding
	Remove []Binding
}

// Changed is true when accessories have to be added or removed
func (p Plan) Changed() bool {
	return len(p.Create) > 0 || len(p.Remove) > 0
}

// Reconcile diffs the known bindings against devices x modes.
// Updated bindings keep their identity and mode, only the device payload changes.
func Reconcile(known map[string]Binding, devices []gizwits.Device, modes []Mode) Plan {
	var plan Plan

	target := make(map[string]Binding, len(devices)*len(modes))
	var order []string
	for _, d := range devices {
		for _, m := range modes {
			if m == "" {
				continue
			}
			b := NewBinding(d, m)
			if _, dup := target[b.ID]; dup {
				continue
			}
			target[b.ID] = b
			order = append(order, b.ID)
		}
	}

	ids := make([]string, 0, len(known))
	for id := range known {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if _, ok := target[id]; !ok {
			plan.Remove = append(plan.Remove, known[id])
		}
	}

	for _, id := range order {
		b := target[id]
		old, ok := known[id]
		if !ok {
			plan.Create = append(plan.Create, b)
			continue
		}
		old.Device = b.Device
		plan.Update = append(plan.Update, old)
	}

	return plan
}

package heatzy

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/cloudkucooland/hzbridge/gizwits"
)

type controlCall struct {
	DID   string
	Attrs map[string]interface{}
}

// backend is a stub Gizwits cloud holding a mode per heater
type backend struct {
	mu            sync.Mutex
	devices       []gizwits.Device
	modes         map[string]int
	controls      []controlCall
	controlStatus int
	listStatus    int
	logins        int

	server *httptest.Server
}

func newBackend(t *testing.T, devices ...gizwits.Device) *backend {
	b := &backend{
		devices: devices,
		modes:   make(map[string]int),
	}
	for _, d := range devices {
		b.modes[d.DID] = OffCode
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/app/login", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.logins++
		b.mu.Unlock()
		w.Write([]byte(`{"token":"stub-token"}`))
	})
	mux.HandleFunc("/app/bindings", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.listStatus != 0 {
			w.WriteHeader(b.listStatus)
			return
		}
		devices := b.devices
		if devices == nil {
			devices = []gizwits.Device{}
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"devices": devices})
	})
	mux.HandleFunc("/app/control/", func(w http.ResponseWriter, r *http.Request) {
		did := strings.TrimPrefix(r.URL.Path, "/app/control/")
		var body struct {
			Attrs map[string]interface{} `json:"attrs"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		b.mu.Lock()
		defer b.mu.Unlock()
		b.controls = append(b.controls, controlCall{DID: did, Attrs: body.Attrs})
		if b.controlStatus != 0 && b.controlStatus != http.StatusOK {
			w.WriteHeader(b.controlStatus)
			w.Write([]byte(`{"error_code":9004,"error_message":"device offline"}`))
			return
		}
		if mode, ok := body.Attrs["mode"].(float64); ok {
			b.modes[did] = int(mode)
		}
		if on, ok := body.Attrs["on"].(bool); ok {
			for i := range b.devices {
				if b.devices[i].DID == did {
					b.devices[i].IsOnline = on
				}
			}
		}
		w.Write([]byte(`{}`))
	})
	mux.HandleFunc("/app/devdata/", func(w http.ResponseWriter, r *http.Request) {
		did := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/app/devdata/"), "/latest")
		b.mu.Lock()
		defer b.mu.Unlock()
		mode, ok := b.modes[did]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"did":  did,
			"attr": map[string]interface{}{"mode": mode},
		})
	})

	b.server = httptest.NewServer(mux)
	t.Cleanup(b.server.Close)
	return b
}

func (b *backend) client() *gizwits.Client {
	return gizwits.NewClient(gizwits.Config{
		BaseURL:  b.server.URL,
		AppID:    "c70a66ff039d41b4a220e198b0fcc8b3",
		Username: "glenn@hoddle.com",
		Password: "magicIsReal",
	})
}

func (b *backend) setDevices(devices ...gizwits.Device) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.devices = devices
	for _, d := range devices {
		if _, ok := b.modes[d.DID]; !ok {
			b.modes[d.DID] = OffCode
		}
	}
}

func (b *backend) lastControl() controlCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.controls) == 0 {
		return controlCall{}
	}
	return b.controls[len(b.controls)-1]
}

func (b *backend) setControlStatus(status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.controlStatus = status
}

func (b *backend) setListStatus(status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listStatus = status
}

func (b *backend) loginCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.logins
}

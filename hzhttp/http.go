package hzhttp

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/brutella/hc/log"
	"github.com/cloudkucooland/hzbridge/accessory"
	"github.com/cloudkucooland/hzbridge/config"
	"github.com/cloudkucooland/hzbridge/platform"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Name is what this platform registers as
const Name = "HTTP"

// Platform is the local HTTP control channel
type Platform struct {
	source  string
	ctl     platform.Control
	srv     *http.Server
	timeout time.Duration
}

// New returns an idle control channel serving the switches of the named platform
func New(source string) *Platform {
	return &Platform{source: source}
}

// Startup is called by the platform management to get things running
func (h *Platform) Startup(c *config.Config) platform.Control {
	if c.HTTPAddress == "" {
		log.Info.Println("no HTTPAddress configured, HTTP control channel disabled")
		return h
	}

	ctl, ok := platform.GetPlatform(h.source)
	if !ok {
		log.Info.Printf("%s platform does not exist, HTTP control channel will only serve status", h.source)
	}
	h.ctl = ctl
	h.timeout = time.Duration(c.HTTPTimeout) * time.Second

	h.srv = &http.Server{
		Addr:         c.HTTPAddress,
		WriteTimeout: time.Second * 15,
		ReadTimeout:  time.Second * 15,
		IdleTimeout:  time.Second * 60,
		Handler:      NewRouter(ctl, h.timeout),
	}

	go func() {
		log.Info.Printf("starting up HTTP control channel on %s", c.HTTPAddress)
		if err := h.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Info.Print(err)
		}
	}()

	return h
}

// Shutdown is called by the platform management to shut things down
func (h *Platform) Shutdown() platform.Control {
	if h.srv == nil {
		return h
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*15)
	defer cancel()
	h.srv.Shutdown(ctx)
	return h
}

// NewRouter builds the control channel routes around a device platform, which may be nil
func NewRouter(ctl platform.Control, timeout time.Duration) *mux.Router {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	hh := handlers{ctl: ctl, timeout: timeout}

	r := mux.NewRouter()
	r.Use(accessLog)
	r.HandleFunc("/", homeHandler).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/bindings", hh.list).Methods(http.MethodGet)
	r.HandleFunc("/bindings/{id}", hh.read).Methods(http.MethodGet)
	r.HandleFunc("/bindings/{id}/{state:on|off}", hh.write).Methods(http.MethodPut, http.MethodPost)
	r.HandleFunc("/refresh", hh.refresh).Methods(http.MethodPost)
	return r
}

func homeHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.Write([]byte(`{ "status": "OK" }`))
}

type bindingView struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	DID   string `json:"did"`
	Mode  string `json:"mode"`
	State string `json:"state"`
	On    *bool  `json:"on,omitempty"`
}

func viewOf(a *accessory.HZAccessory) bindingView {
	v := bindingView{
		ID:   a.Name,
		Name: a.Info.Name,
		DID:  a.DID,
		Mode: a.Mode,
	}
	if a.Switch != nil {
		v.State = a.Switch.State()
	}
	return v
}

type handlers struct {
	ctl     platform.Control
	timeout time.Duration
}

func (hh handlers) list(w http.ResponseWriter, r *http.Request) {
	if !hh.ready(w) {
		return
	}
	views := []bindingView{}
	for _, a := range hh.ctl.Accessories() {
		views = append(views, viewOf(a))
	}
	writeJSON(w, http.StatusOK, views)
}

func (hh handlers) read(w http.ResponseWriter, r *http.Request) {
	a, ok := hh.lookup(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), hh.timeout)
	defer cancel()

	on, err := a.Switch.Read(ctx)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	v := viewOf(a)
	v.On = &on
	writeJSON(w, http.StatusOK, v)
}

func (hh handlers) write(w http.ResponseWriter, r *http.Request) {
	a, ok := hh.lookup(w, r)
	if !ok {
		return
	}
	on := mux.Vars(r)["state"] == "on"
	ctx, cancel := context.WithTimeout(r.Context(), hh.timeout)
	defer cancel()

	if err := a.Switch.Write(ctx, on); err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(a))
}

func (hh handlers) refresh(w http.ResponseWriter, r *http.Request) {
	if !hh.ready(w) {
		return
	}
	rf, ok := hh.ctl.(platform.Refresher)
	if !ok {
		http.Error(w, `{ "status": "bad" }`, http.StatusNotImplemented)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*hh.timeout)
	defer cancel()

	if err := rf.Refresh(ctx); err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"bindings": len(hh.ctl.Accessories())})
}

func (hh handlers) ready(w http.ResponseWriter) bool {
	if hh.ctl == nil {
		http.Error(w, `{ "status": "bad" }`, http.StatusServiceUnavailable)
		return false
	}
	return true
}

func (hh handlers) lookup(w http.ResponseWriter, r *http.Request) (*accessory.HZAccessory, bool) {
	if !hh.ready(w) {
		return nil, false
	}
	id := mux.Vars(r)["id"]
	a, ok := hh.ctl.GetAccessory(id)
	if !ok || a.Switch == nil {
		http.Error(w, `{ "status": "unknown binding" }`, http.StatusNotFound)
		return nil, false
	}
	return a, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Info.Println(err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	log.Info.Println(err.Error())
	writeJSON(w, status, map[string]string{"status": "error", "error": err.Error()})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(res http.ResponseWriter, req *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: res, status: http.StatusOK}
		next.ServeHTTP(sw, req)
		logrus.WithFields(logrus.Fields{
			"method":   req.Method,
			"path":     req.URL.Path,
			"remote":   req.RemoteAddr,
			"status":   sw.status,
			"duration": time.Since(start),
		}).Debug("control channel request")
	})
}

// GetAccessory - do not use, just satisfies the Platform interface
func (h *Platform) GetAccessory(name string) (*accessory.HZAccessory, bool) {
	return nil, false
}

// Accessories - do not use, just satisfies the Platform interface
func (h *Platform) Accessories() []*accessory.HZAccessory {
	return nil
}

// Background - just satisfies the Platform interface
func (h *Platform) Background() {
	// nothing to do
}

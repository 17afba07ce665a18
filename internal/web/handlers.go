package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Limits applied to run overrides.
const (
	MaxDwellSeconds   = 5.0
	MaxTargetAngleRad = 2 * math.Pi
	MaxRequestBytes   = 1 << 20
)

// DefaultMinRunInterval is the minimum delay between two run starts.
const DefaultMinRunInterval = 5 * time.Second

// Overrides holds run parameters that can override config defaults.
// Zero means "use config default".
type Overrides struct {
	LeftDwellSeconds  float64 `json:"left_dwell_seconds"`
	RightDwellSeconds float64 `json:"right_dwell_seconds"`
	TargetAngleRad    float64 `json:"target_angle_rad"`
}

// ValidateOverrides checks that every override is finite, non-negative and
// within its bound.
func ValidateOverrides(o Overrides) error {
	fields := []struct {
		name  string
		value float64
		max   float64
	}{
		{"left_dwell_seconds", o.LeftDwellSeconds, MaxDwellSeconds},
		{"right_dwell_seconds", o.RightDwellSeconds, MaxDwellSeconds},
		{"target_angle_rad", o.TargetAngleRad, MaxTargetAngleRad},
	}
	for _, f := range fields {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) || f.value < 0 || f.value > f.max {
			return fmt.Errorf("%s must be between 0 and %g, got %g", f.name, f.max, f.value)
		}
	}
	return nil
}

// RunControlFunc runs the control loop with the given overrides until ctx is
// cancelled or the run ends. It is called from the POST /run handler in a goroutine.
type RunControlFunc func(ctx context.Context, overrides Overrides) error

// FormConfig holds default values for the run form (from config).
type FormConfig struct {
	LeftDwellSeconds  float64 `json:"left_dwell_seconds"`
	RightDwellSeconds float64 `json:"right_dwell_seconds"`
	TargetAngleRad    float64 `json:"target_angle_rad"`
	Policy            string  `json:"policy"`
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Broadcaster  *StatusBroadcaster
	Ticks        *TickFeed
	RunControl   RunControlFunc
	FormDefaults FormConfig
	// MinRunInterval rate-limits POST /run. 0 disables the limit.
	MinRunInterval time.Duration

	runningMu sync.Mutex
	running   bool
	cancelRun context.CancelFunc
	lastStart time.Time
	runDone   chan struct{}

	baseCtx  context.Context
	staticFS fs.FS
	upgrader websocket.Upgrader
}

// NewHandlers creates handlers with the given dependencies.
// If runControl is nil, POST /run will return 503 Service Unavailable.
func NewHandlers(broadcaster *StatusBroadcaster, ticks *TickFeed, runControl RunControlFunc, formDefaults FormConfig, staticFS fs.FS) *Handlers {
	return &Handlers{
		Broadcaster:    broadcaster,
		Ticks:          ticks,
		RunControl:     runControl,
		FormDefaults:   formDefaults,
		MinRunInterval: DefaultMinRunInterval,
		baseCtx:        context.Background(),
		staticFS:       staticFS,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// HandleConfig returns the form default values (from config) as JSON.
func (h *Handlers) HandleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.FormDefaults)
}

// ServeIndex serves the main HTML page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// HandleRun handles POST /run to start the control loop.
// An empty body runs with the config defaults.
func (h *Handlers) HandleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBytes)
	var overrides Overrides
	if err := json.NewDecoder(r.Body).Decode(&overrides); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if err := ValidateOverrides(overrides); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if h.RunControl == nil {
		http.Error(w, "control loop not configured", http.StatusServiceUnavailable)
		return
	}

	h.runningMu.Lock()
	if h.running {
		h.runningMu.Unlock()
		http.Error(w, "run already in progress", http.StatusConflict)
		return
	}
	if h.MinRunInterval > 0 && !h.lastStart.IsZero() && time.Since(h.lastStart) < h.MinRunInterval {
		h.runningMu.Unlock()
		http.Error(w, "too many runs, retry later", http.StatusTooManyRequests)
		return
	}
	ctx, cancel := context.WithCancel(h.baseCtx)
	done := make(chan struct{})
	h.running = true
	h.cancelRun = cancel
	h.lastStart = time.Now()
	h.runDone = done
	h.runningMu.Unlock()

	if h.Ticks != nil {
		h.Ticks.Reset()
	}

	// Run in goroutine; clear running when done
	go func() {
		defer close(done)
		defer func() {
			cancel()
			h.runningMu.Lock()
			h.running = false
			h.cancelRun = nil
			h.runningMu.Unlock()
		}()

		err := h.RunControl(ctx, overrides)
		switch {
		case err == nil:
			h.Broadcaster.Broadcast("info", "Run complete")
		case errors.Is(err, context.Canceled):
			h.Broadcaster.Broadcast("info", "Run stopped")
		default:
			h.Broadcaster.Broadcast("error", "Run failed: "+err.Error())
			log.Printf("control run failed: %v", err)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

// HandleStop handles POST /stop: cancels the running loop. The actuator is
// brought back to neutral by the loop itself before the run ends.
func (h *Handlers) HandleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !h.stopRun() {
		http.Error(w, "no run in progress", http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "stopping"})
}

// setBaseContext makes every following run a child of ctx.
func (h *Handlers) setBaseContext(ctx context.Context) {
	h.runningMu.Lock()
	defer h.runningMu.Unlock()
	h.baseCtx = ctx
}

// stopRun cancels the current run and reports whether one was in progress.
func (h *Handlers) stopRun() bool {
	h.runningMu.Lock()
	cancel := h.cancelRun
	h.runningMu.Unlock()
	if cancel == nil {
		return false
	}
	cancel()
	return true
}

// Running reports whether a run is in progress.
func (h *Handlers) Running() bool {
	h.runningMu.Lock()
	defer h.runningMu.Unlock()
	return h.running
}

// Wait blocks until the current run, if any, has returned.
func (h *Handlers) Wait() {
	h.runningMu.Lock()
	done := h.runDone
	h.runningMu.Unlock()
	if done != nil {
		<-done
	}
}

// HandleState handles GET /state: the latest tick as JSON, 204 before the first one.
func (h *Handlers) HandleState(w http.ResponseWriter, r *http.Request) {
	if h.Ticks == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	data, ok := h.Ticks.Last()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

// HandleStateWS handles GET /state/ws: upgrades to a websocket and pushes
// every tick as a text message, starting with the latest one.
func (h *Handlers) HandleStateWS(w http.ResponseWriter, r *http.Request) {
	if h.Ticks == nil {
		http.Error(w, "state feed not configured", http.StatusServiceUnavailable)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client.
		log.Printf("websocket upgrade: %v", err)
		return
	}
	defer conn.Close()

	ch, unsub := h.Ticks.Subscribe()
	defer unsub()

	// Reader: only needed to notice the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(msg []byte) bool {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		return conn.WriteMessage(websocket.TextMessage, msg) == nil
	}
	if last, ok := h.Ticks.Last(); ok && !send(last) {
		return
	}

	for {
		select {
		case msg, ok := <-ch:
			if !ok || !send([]byte(msg)) {
				return
			}
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	// Heartbeat while idle
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

package web

import (
	"encoding/json"
	"strings"
	"sync"
	"time"
)

// Hub fans string payloads out to subscribers. Each subscriber has a small
// buffer; a subscriber that falls behind misses messages instead of
// blocking the publisher.
type Hub struct {
	mu      sync.RWMutex
	clients map[chan string]struct{}
	buffer  int
}

// NewHub creates a hub whose subscribers buffer up to buffer messages.
func NewHub(buffer int) *Hub {
	return &Hub{
		clients: make(map[chan string]struct{}),
		buffer:  buffer,
	}
}

// Subscribe returns a channel that receives published payloads and a cleanup function.
// The caller must call the returned cleanup when done (e.g. on client disconnect).
func (h *Hub) Subscribe() (<-chan string, func()) {
	ch := make(chan string, h.buffer)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.clients, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}

// Publish sends payload to every subscriber without blocking.
func (h *Hub) Publish(payload string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.clients {
		select {
		case ch <- payload:
		default:
			// channel full, skip
		}
	}
}

// Subscribers returns the number of active subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// StatusEvent represents a single status message for SSE.
type StatusEvent struct {
	Time  string `json:"t"`
	Level string `json:"l,omitempty"`
	Msg   string `json:"msg"`
}

// StatusBroadcaster distributes log and status lines to SSE clients.
type StatusBroadcaster struct {
	*Hub
}

// NewStatusBroadcaster creates a new broadcaster.
func NewStatusBroadcaster() *StatusBroadcaster {
	return &StatusBroadcaster{Hub: NewHub(64)}
}

// Broadcast sends {"t":"...","l":level,"msg":msg} to all subscribed clients.
func (b *StatusBroadcaster) Broadcast(level, msg string) {
	data, err := json.Marshal(StatusEvent{
		Time:  time.Now().Format(time.RFC3339),
		Level: level,
		Msg:   msg,
	})
	if err != nil {
		return
	}
	b.Publish(string(data))
}

// BroadcastMsg is a convenience for level "info".
func (b *StatusBroadcaster) BroadcastMsg(msg string) {
	b.Broadcast("info", msg)
}

// debugLevels maps the debug package tags to SSE levels.
var debugLevels = []struct{ tag, level string }{
	{"[ERROR]", "error"},
	{"[LIVE]", "live"},
	{"[VERBOSE]", "verbose"},
	{"[TRACE]", "trace"},
	{"[PWM]", "trace"},
	{"[ADC]", "trace"},
}

func levelOf(line string) string {
	for _, l := range debugLevels {
		if strings.Contains(line, l.tag) {
			return l.level
		}
	}
	return "info"
}

// BroadcastWriter implements io.Writer; each Write broadcasts its lines to SSE
// clients, tagged with the level found in the debug prefix.
func BroadcastWriter(b *StatusBroadcaster) *broadcastWriter {
	return &broadcastWriter{b: b}
}

// broadcastWriter wraps StatusBroadcaster as io.Writer for use with debug.SetOutput.
type broadcastWriter struct {
	b *StatusBroadcaster
}

func (w *broadcastWriter) Write(p []byte) (n int, err error) {
	for _, line := range strings.Split(string(p), "\n") {
		msg := strings.TrimSpace(line)
		if msg != "" {
			w.b.Broadcast(levelOf(msg), msg)
		}
	}
	return len(p), nil
}

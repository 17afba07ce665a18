package web

import (
	"encoding/json"
	"sync"

	"github.com/cjeanneret/PoleGo/internal/debug"
	"github.com/cjeanneret/PoleGo/internal/logic/control"
)

// TickFeed is a control.Observer that keeps the latest tick as JSON and
// streams every tick to websocket clients.
type TickFeed struct {
	*Hub

	mu   sync.RWMutex
	last []byte
}

func NewTickFeed() *TickFeed {
	return &TickFeed{Hub: NewHub(16)}
}

// ObserveTick implements control.Observer.
func (f *TickFeed) ObserveTick(t control.Tick) {
	data, err := json.Marshal(t)
	if err != nil {
		debug.Error(err)
		return
	}
	f.mu.Lock()
	f.last = data
	f.mu.Unlock()
	f.Publish(string(data))
}

// Last returns the JSON of the latest tick, or false before the first one.
func (f *TickFeed) Last() ([]byte, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.last, f.last != nil
}

// Reset forgets the latest tick, e.g. when a new run starts.
func (f *TickFeed) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.last = nil
}

package adc

import (
	"sync"

	"github.com/cjeanneret/PoleGo/internal/debug"
)

// Reading is one scripted result of Mock.ReadRawChannels.
type Reading struct {
	Raw0, Raw1 int
	Err        error
}

// Mock replays a fixed list of readings. Once the list is exhausted the
// last reading repeats. Used for development on PC or testing.
type Mock struct {
	mu       sync.Mutex
	readings []Reading
	calls    int
	closed   bool
}

// NewMock creates a mock sensor replaying readings in order.
func NewMock(readings ...Reading) *Mock {
	if len(readings) == 0 {
		readings = []Reading{{}}
	}
	return &Mock{readings: readings}
}

func (m *Mock) ReadRawChannels() (int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.calls
	if i >= len(m.readings) {
		i = len(m.readings) - 1
	}
	m.calls++

	r := m.readings[i]
	if r.Err != nil {
		return 0, 0, r.Err
	}
	debug.Sample(r.Raw0, r.Raw1)
	return r.Raw0, r.Raw1, nil
}

// Calls returns how many reads were attempted.
func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Closed reports whether Close was called.
func (m *Mock) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

package gpio

import (
	"github.com/cjeanneret/PoleGo/internal/debug"
)

// DutyCycleRange is the number of duty cycle steps in one PWM period.
// A duty cycle of DutyCycleRange means the output is always high.
const DutyCycleRange = 100

// Driver defines the abstract interface for driving PWM outputs.
// This allows plugging in a real Raspberry Pi implementation
// or a mock for development on PC.
type Driver interface {
	// SetupPWM configures pin as a hardware PWM output at freqHz.
	SetupPWM(pin int, freqHz int) error
	// SetDutyCycle sets the active part of the PWM period, 0..DutyCycleRange.
	SetDutyCycle(pin int, duty int) error
	Close() error
}

// MockDriver is a test implementation that simply logs actions.
// Used for development on PC or testing.
type MockDriver struct{}

// NewDriver creates a GPIO driver based on the chosen mode.
// If mock is true, returns a MockDriver (for dev/test).
// If mock is false, returns a real RPiDriver (for Raspberry Pi).
func NewDriver(mock bool) (Driver, error) {
	if mock {
		debug.Info("Using MOCK GPIO driver (development mode)")
		return &MockDriver{}, nil
	}
	return NewRPiRealDriver()
}

func (m *MockDriver) SetupPWM(pin int, freqHz int) error {
	debug.PWM("SetupPWM", pin, freqHz)
	return nil
}

func (m *MockDriver) SetDutyCycle(pin int, duty int) error {
	debug.PWM("SetDutyCycle", pin, duty)
	return nil
}

func (m *MockDriver) Close() error {
	debug.Trace("GPIO Close (mock)")
	return nil
}

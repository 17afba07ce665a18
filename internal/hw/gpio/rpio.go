package gpio

import (
	"fmt"

	"github.com/cjeanneret/PoleGo/internal/debug"
	"github.com/stianeikeland/go-rpio/v4"
)

// The BCM2835 PWM clock must stay within this range.
const (
	minPWMClockHz = 4688
	maxPWMClockHz = 19200000
)

// RPiDriver is the real implementation for Raspberry Pi using go-rpio.
type RPiDriver struct {
	pins map[int]rpio.Pin
}

// NewRPiRealDriver creates a real GPIO driver for Raspberry Pi.
// Requires running on a Raspberry Pi with access to /dev/gpiomem or as root.
func NewRPiRealDriver() (*RPiDriver, error) {
	debug.Info("Initializing real GPIO driver (go-rpio)")

	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("failed to open GPIO: %w (are you running on a Raspberry Pi?)", err)
	}

	debug.Verbose("GPIO memory mapped successfully")

	return &RPiDriver{
		pins: make(map[int]rpio.Pin),
	}, nil
}

func (r *RPiDriver) SetupPWM(pin int, freqHz int) error {
	debug.PWM("SetupPWM", pin, freqHz)

	// The PWM clock ticks DutyCycleRange times per period.
	clock := freqHz * DutyCycleRange
	if clock < minPWMClockHz || clock > maxPWMClockHz {
		return fmt.Errorf("PWM frequency %d Hz out of range (clock %d Hz must be %d-%d)",
			freqHz, clock, minPWMClockHz, maxPWMClockHz)
	}

	p := rpio.Pin(pin)
	p.Mode(rpio.Pwm)
	p.Freq(clock)
	p.DutyCycle(0, DutyCycleRange)
	r.pins[pin] = p
	rpio.StartPwm()

	return nil
}

func (r *RPiDriver) SetDutyCycle(pin int, duty int) error {
	debug.PWM("SetDutyCycle", pin, duty)

	p, ok := r.pins[pin]
	if !ok {
		return fmt.Errorf("pin %d is not configured for PWM", pin)
	}
	if duty < 0 || duty > DutyCycleRange {
		return fmt.Errorf("duty cycle %d out of range 0-%d", duty, DutyCycleRange)
	}

	p.DutyCycle(uint32(duty), DutyCycleRange)
	return nil
}

func (r *RPiDriver) Close() error {
	debug.Trace("GPIO Close (real driver)")

	// Drive every PWM pin low and leave it as a plain input (safe state).
	for pin, p := range r.pins {
		debug.Verbose("Resetting pin %d to input", pin)
		p.DutyCycle(0, DutyCycleRange)
		p.Input()
	}
	rpio.StopPwm()

	return rpio.Close()
}

package actuator

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cjeanneret/PoleGo/internal/debug"
	"github.com/cjeanneret/PoleGo/internal/hw/gpio"
)

// Duty cycle bounds accepted by SetLevel.
const (
	MinLevel = 0
	MaxLevel = 100
)

var (
	// ErrInvalidLevel is returned when a level outside [MinLevel, MaxLevel] is requested.
	ErrInvalidLevel = errors.New("invalid actuator level")
	// ErrInvalidPin is returned when the configured pin has no hardware PWM channel.
	ErrInvalidPin = errors.New("invalid actuator pin")
	// ErrReleased is returned by SetLevel after Release.
	ErrReleased = errors.New("actuator released")
)

// PWMPins lists the BCM pins the actuator may be wired to
// (board pins 32 and 33, the two hardware PWM channels on the header).
var PWMPins = []int{12, 13}

// Actuator is the hardware boundary used by the motion sequencer.
type Actuator interface {
	// SetLevel commands the duty cycle, MinLevel..MaxLevel.
	SetLevel(level int) error
	// Release drives the output to a neutral level and gives up the pin.
	// It is idempotent.
	Release() error
}

// Config holds the hardware configuration for the actuator.
type Config struct {
	Pin         int // BCM pin, one of PWMPins
	FrequencyHz int // PWM frequency. 0 = 1000 Hz.
}

// PWM drives the cart motor controller with a single PWM output.
type PWM struct {
	gpio gpio.Driver
	cfg  Config

	mu          sync.Mutex
	level       int
	released    bool
	releaseOnce sync.Once
	releaseErr  error
}

// NewPWM configures the PWM output and starts it at level 0.
func NewPWM(g gpio.Driver, cfg Config) (*PWM, error) {
	if !validPin(cfg.Pin) {
		return nil, fmt.Errorf("%w: %d (accepted: %v)", ErrInvalidPin, cfg.Pin, PWMPins)
	}
	if cfg.FrequencyHz <= 0 {
		cfg.FrequencyHz = 1000
	}

	if err := g.SetupPWM(cfg.Pin, cfg.FrequencyHz); err != nil {
		return nil, fmt.Errorf("setup PWM pin %d: %w", cfg.Pin, err)
	}
	if err := g.SetDutyCycle(cfg.Pin, MinLevel); err != nil {
		return nil, fmt.Errorf("start PWM pin %d: %w", cfg.Pin, err)
	}

	return &PWM{
		gpio: g,
		cfg:  cfg,
	}, nil
}

func validPin(pin int) bool {
	for _, p := range PWMPins {
		if p == pin {
			return true
		}
	}
	return false
}

// SetLevel sets the duty cycle in percent.
func (a *PWM) SetLevel(level int) error {
	if level < MinLevel || level > MaxLevel {
		return fmt.Errorf("%w: %d (must be %d-%d)", ErrInvalidLevel, level, MinLevel, MaxLevel)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.released {
		return ErrReleased
	}

	debug.Trace("Actuator: level %d on pin %d", level, a.cfg.Pin)
	if err := a.gpio.SetDutyCycle(a.cfg.Pin, level*gpio.DutyCycleRange/MaxLevel); err != nil {
		return fmt.Errorf("set duty cycle on pin %d: %w", a.cfg.Pin, err)
	}
	a.level = level
	return nil
}

// Level returns the last level successfully commanded.
func (a *PWM) Level() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.level
}

// Release drives the output to level 0. Only the first call touches the
// hardware; later calls return the first result.
func (a *PWM) Release() error {
	a.releaseOnce.Do(func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		debug.Verbose("Actuator: releasing pin %d", a.cfg.Pin)
		a.released = true
		if err := a.gpio.SetDutyCycle(a.cfg.Pin, MinLevel); err != nil {
			a.releaseErr = fmt.Errorf("release pin %d: %w", a.cfg.Pin, err)
			return
		}
		a.level = MinLevel
	})
	return a.releaseErr
}

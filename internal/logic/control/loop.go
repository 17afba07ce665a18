// Package control runs the sense, estimate, decide, actuate cycle.
package control

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cjeanneret/PoleGo/internal/debug"
	"github.com/cjeanneret/PoleGo/internal/hw/actuator"
	"github.com/cjeanneret/PoleGo/internal/hw/adc"
	"github.com/cjeanneret/PoleGo/internal/logic/estimator"
	"github.com/cjeanneret/PoleGo/internal/logic/motion"
	"github.com/cjeanneret/PoleGo/internal/logic/policy"
	"github.com/cjeanneret/PoleGo/internal/logic/reward"
	"github.com/cjeanneret/PoleGo/internal/logic/units"
)

// DefaultMaxConsecutiveFailures is used when Config.MaxConsecutiveFailures is 0.
const DefaultMaxConsecutiveFailures = 3

// staleClockBackoff is the pause before re-sampling when the clock did not
// advance since the previous state.
const staleClockBackoff = time.Millisecond

var (
	// ErrTooManyFailures wraps the last hardware error once the consecutive
	// failure limit is reached.
	ErrTooManyFailures = errors.New("too many consecutive hardware failures")
	// ErrInvalidConfig is returned by NewLoop for unusable settings.
	ErrInvalidConfig = errors.New("invalid control config")
)

// Phase is the loop position within a tick.
type Phase int32

const (
	// Idle: no command pending (sampling, estimating, or stopped).
	Idle Phase = iota
	// Ticking: a direction was commanded and its dwell is running.
	Ticking
)

func (p Phase) String() string {
	if p == Ticking {
		return "ticking"
	}
	return "idle"
}

// Tick is the outcome of one completed control tick.
// Direction is zero in monitor mode.
type Tick struct {
	Seq       int              `json:"seq"`
	State     estimator.State  `json:"state"`
	Reward    float64          `json:"reward"`
	Direction motion.Direction `json:"direction,omitempty"`
}

// Observer receives every completed tick. Called synchronously from the loop
// goroutine, so implementations must return quickly.
type Observer interface {
	ObserveTick(Tick)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Tick)

func (f ObserverFunc) ObserveTick(t Tick) { f(t) }

// Config holds the immutable parameters of a run.
type Config struct {
	Channels    units.ChannelMap
	Ratios      units.CalibrationRatios
	Dwell       motion.DwellTimes
	TargetAngle float64

	// MaxConsecutiveFailures is the number of hardware failures in a row
	// that ends the run. 0 = DefaultMaxConsecutiveFailures.
	MaxConsecutiveFailures int
	// MaxTicks stops the run after that many completed ticks. 0 = unlimited.
	MaxTicks int
}

// Loop drives one actuator from one sensor.
type Loop struct {
	sensor adc.Sensor
	act    actuator.Actuator
	policy policy.Policy
	cfg    Config

	// Sequencer issues the moves. Its Sleep may be replaced in tests.
	Sequencer *motion.Sequencer
	// Now returns monotonic seconds. Defaults to time elapsed since NewLoop.
	Now func() float64

	mu        sync.Mutex
	observers []Observer
	phase     atomic.Int32
}

// NewLoop checks the configuration and wires the loop. Hardware handles stay
// owned by the caller; Run never releases them.
func NewLoop(sensor adc.Sensor, act actuator.Actuator, pol policy.Policy, cfg Config) (*Loop, error) {
	if sensor == nil || act == nil || pol == nil {
		return nil, fmt.Errorf("%w: sensor, actuator and policy are required", ErrInvalidConfig)
	}
	if cfg.Ratios.Angle() <= 0 || cfg.Ratios.Position() <= 0 {
		return nil, fmt.Errorf("%w: calibration ratios not set", ErrInvalidConfig)
	}
	if cfg.Channels.AngleChannel() == cfg.Channels.PositionChannel() {
		return nil, fmt.Errorf("%w: channel map not set", ErrInvalidConfig)
	}
	if cfg.MaxConsecutiveFailures < 0 || cfg.MaxTicks < 0 {
		return nil, fmt.Errorf("%w: negative limits", ErrInvalidConfig)
	}
	if cfg.MaxConsecutiveFailures == 0 {
		cfg.MaxConsecutiveFailures = DefaultMaxConsecutiveFailures
	}

	start := time.Now()
	return &Loop{
		sensor:    sensor,
		act:       act,
		policy:    pol,
		cfg:       cfg,
		Sequencer: motion.NewSequencer(act),
		Now:       func() float64 { return time.Since(start).Seconds() },
	}, nil
}

// AddObserver registers o for every following tick.
func (l *Loop) AddObserver(o Observer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.observers = append(l.observers, o)
}

// Phase returns the current phase. Safe from any goroutine.
func (l *Loop) Phase() Phase {
	return Phase(l.phase.Load())
}

func (l *Loop) publish(t Tick) {
	l.mu.Lock()
	obs := append([]Observer(nil), l.observers...)
	l.mu.Unlock()
	for _, o := range obs {
		o.ObserveTick(t)
	}
}

// sample reads the sensor and returns the state at this instant: a seed when
// prev is nil, the successor of *prev otherwise.
func (l *Loop) sample(prev *estimator.State) (estimator.State, error) {
	raw0, raw1, err := l.sensor.ReadRawChannels()
	if err != nil {
		return estimator.State{}, fmt.Errorf("read sensor: %w", err)
	}
	rawPosition, rawAngle := l.cfg.Channels.Split(raw0, raw1)
	position, angle := units.ToPhysical(rawPosition, rawAngle, l.cfg.Ratios)
	now := l.Now()
	if prev == nil {
		return estimator.Seed(position, angle, now), nil
	}
	return estimator.Advance(*prev, position, angle, now)
}

// failureCounter tracks consecutive hardware failures.
type failureCounter struct {
	n, max int
}

// fail records err and returns a fatal error once the limit is reached.
func (f *failureCounter) fail(err error) error {
	f.n++
	if f.n >= f.max {
		return fmt.Errorf("%w (%d in a row): %w", ErrTooManyFailures, f.n, err)
	}
	debug.Verbose("Tick aborted (%d/%d): %v", f.n, f.max, err)
	return nil
}

func (f *failureCounter) reset() { f.n = 0 }

// Run executes control ticks until ctx is cancelled, MaxTicks is reached or a
// fatal error occurs. Whatever the exit path, the actuator is commanded to
// its neutral level before Run returns. Cancellation returns ctx.Err().
func (l *Loop) Run(ctx context.Context) (err error) {
	defer func() {
		l.phase.Store(int32(Idle))
		if nerr := l.act.SetLevel(actuator.MinLevel); nerr != nil {
			err = errors.Join(err, fmt.Errorf("neutralize actuator: %w", nerr))
		}
		debug.Verbose("Control loop stopped, actuator neutral")
	}()

	debug.Section("Control loop")
	failures := &failureCounter{max: l.cfg.MaxConsecutiveFailures}

	var prev *estimator.State
	stale := 0
	for seq := 0; l.cfg.MaxTicks == 0 || seq < l.cfg.MaxTicks; {
		select {
		case <-ctx.Done():
			debug.Info("Control loop cancelled after %d ticks", seq)
			return ctx.Err()
		default:
		}

		s, err := l.sample(prev)
		if errors.Is(err, estimator.ErrNonPositiveTimeDelta) {
			stale++
			debug.Verbose("Tick aborted, no actuation: %v", err)
			debug.Trace("Clock stalled: %d samples in a row without time advance", stale)
			if !sleepCtx(ctx, staleClockBackoff) {
				debug.Info("Control loop cancelled after %d ticks", seq)
				return ctx.Err()
			}
			continue
		}
		if err != nil {
			if ferr := failures.fail(err); ferr != nil {
				return ferr
			}
			continue
		}
		stale = 0
		if prev == nil {
			failures.reset()
			prev = &s
			debug.Info("Initial state: angle=%.4f rad position=%.4f m", s.Angle, s.Position)
			continue
		}
		prev = &s

		r := reward.Reward(s, l.cfg.TargetAngle)
		dir := l.policy.Decide(s)
		if !dir.Valid() {
			return fmt.Errorf("policy decision: %w: %v", motion.ErrInvalidDirection, dir)
		}

		l.phase.Store(int32(Ticking))
		err = l.Sequencer.Apply(dir, l.cfg.Dwell)
		l.phase.Store(int32(Idle))
		if err != nil {
			if errors.Is(err, motion.ErrInvalidDirection) {
				return err
			}
			if ferr := failures.fail(err); ferr != nil {
				return ferr
			}
			continue
		}

		failures.reset()
		seq++
		debug.Tick(seq, s.Angle, s.AngularVelocity, s.Position, s.LinearVelocity, r, dir.String())
		l.publish(Tick{Seq: seq, State: s, Reward: r, Direction: dir})
	}
	debug.Info("Control loop completed %d ticks", l.cfg.MaxTicks)
	return nil
}

// Monitor samples and estimates every interval without ever commanding the
// actuator. Ticks carry no direction. Same termination rules as Run. At trace
// level, sensors implementing adc.VoltageReader also log their voltages.
func (l *Loop) Monitor(ctx context.Context, interval time.Duration) error {
	debug.Section("Monitor")
	failures := &failureCounter{max: l.cfg.MaxConsecutiveFailures}

	var prev *estimator.State
	for seq := 0; l.cfg.MaxTicks == 0 || seq < l.cfg.MaxTicks; {
		s, err := l.sample(prev)
		switch {
		case errors.Is(err, estimator.ErrNonPositiveTimeDelta):
			debug.Verbose("Sample skipped: %v", err)
		case err != nil:
			if ferr := failures.fail(err); ferr != nil {
				return ferr
			}
		default:
			failures.reset()
			l.traceVoltages()
			if prev != nil {
				seq++
				r := reward.Reward(s, l.cfg.TargetAngle)
				debug.Tick(seq, s.Angle, s.AngularVelocity, s.Position, s.LinearVelocity, r, "-")
				l.publish(Tick{Seq: seq, State: s, Reward: r})
			}
			prev = &s
		}

		if !sleepCtx(ctx, interval) {
			return ctx.Err()
		}
	}
	return nil
}

// traceVoltages logs the channel voltages at trace level when the sensor
// can report them. Errors are logged and otherwise ignored.
func (l *Loop) traceVoltages() {
	vr, ok := l.sensor.(adc.VoltageReader)
	if !ok || !debug.IsEnabled(debug.LevelTrace) {
		return
	}
	v0, v1, err := vr.ReadVoltages()
	if err != nil {
		debug.Trace("Voltage read failed: %v", err)
		return
	}
	debug.Voltages(v0, v1)
}

// sleepCtx waits for d or ctx, whichever ends first. It reports false when
// ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

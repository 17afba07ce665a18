// Package policy decides the direction of the next move from the current state.
package policy

import (
	"math"
	"time"

	"go.einride.tech/pid"

	"github.com/cjeanneret/PoleGo/internal/debug"
	"github.com/cjeanneret/PoleGo/internal/logic/estimator"
	"github.com/cjeanneret/PoleGo/internal/logic/motion"
)

// Policy picks a direction for each control tick. Implementations may keep
// state between calls; they are used from a single goroutine.
type Policy interface {
	Decide(s estimator.State) motion.Direction
}

// Func adapts a plain function to Policy.
type Func func(s estimator.State) motion.Direction

func (f Func) Decide(s estimator.State) motion.Direction { return f(s) }

// Alternating ignores the state: Left, Right, Left, ...
type Alternating struct {
	next motion.Direction
}

func NewAlternating() *Alternating {
	return &Alternating{next: motion.Left}
}

func (a *Alternating) Decide(estimator.State) motion.Direction {
	d := a.next
	if d == motion.Left {
		a.next = motion.Right
	} else {
		a.next = motion.Left
	}
	return d
}

// PIDConfig holds the controller gains.
type PIDConfig struct {
	Kp float64
	Ki float64
	Kd float64
}

// PID is a bang-bang policy driven by the sign of a PID control signal on
// the angle error. The sampling interval is taken from the state timestamps.
type PID struct {
	ctrl   pid.Controller
	target float64

	last    motion.Direction
	lastT   float64
	started bool
}

func NewPID(cfg PIDConfig, target float64) *PID {
	return &PID{
		ctrl: pid.Controller{
			Config: pid.ControllerConfig{
				ProportionalGain: cfg.Kp,
				IntegralGain:     cfg.Ki,
				DerivativeGain:   cfg.Kd,
			},
		},
		target: target,
	}
}

// Decide pushes right when the control signal is non-negative, left otherwise.
// A non-positive interval since the previous decision keeps that decision.
func (p *PID) Decide(s estimator.State) motion.Direction {
	if !p.started {
		p.started = true
		p.lastT = s.Timestamp
		p.last = signDirection(p.target - s.Angle)
		debug.Trace("PID: first decision %v from error %.4f", p.last, p.target-s.Angle)
		return p.last
	}

	dt := s.Timestamp - p.lastT
	interval := time.Duration(dt * float64(time.Second))
	if !(dt > 0) || math.IsInf(dt, 0) || interval <= 0 {
		debug.Verbose("PID: non-positive interval %.6fs, keeping %v", dt, p.last)
		return p.last
	}
	p.lastT = s.Timestamp

	p.ctrl.Update(pid.ControllerInput{
		ReferenceSignal:  p.target,
		ActualSignal:     s.Angle,
		SamplingInterval: interval,
	})
	p.last = signDirection(p.ctrl.State.ControlSignal)
	debug.Trace("PID: error=%.4f signal=%.4f -> %v",
		p.ctrl.State.ControlError, p.ctrl.State.ControlSignal, p.last)
	return p.last
}

// Reset clears the controller state and the previous decision.
func (p *PID) Reset() {
	p.ctrl.Reset()
	p.started = false
	p.last = 0
	p.lastT = 0
}

func signDirection(v float64) motion.Direction {
	if v >= 0 {
		return motion.Right
	}
	return motion.Left
}

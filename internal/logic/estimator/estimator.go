package estimator

import (
	"errors"
	"fmt"
	"math"
)

// ErrNonPositiveTimeDelta is returned by Advance when the clock did not move
// forward since the previous state. No velocity is computed in that case.
var ErrNonPositiveTimeDelta = errors.New("non-positive time delta")

// State is a snapshot of the cart-pole at one instant.
// It is a value: every tick produces a new one.
type State struct {
	Angle           float64 `json:"angle"`            // rad
	AngularVelocity float64 `json:"angular_velocity"` // rad/s
	Position        float64 `json:"position"`         // m
	LinearVelocity  float64 `json:"linear_velocity"`  // m/s
	Timestamp       float64 `json:"timestamp"`        // monotonic seconds
}

// Seed builds the first state of a run: velocities are zero.
func Seed(position, angle, now float64) State {
	return State{
		Angle:     angle,
		Position:  position,
		Timestamp: now,
	}
}

// Advance computes the next state from prev and a new converted sample taken at now.
// Velocities are finite differences over now - prev.Timestamp.
func Advance(prev State, newPosition, newAngle, now float64) (State, error) {
	dt := now - prev.Timestamp
	if !(dt > 0) || math.IsInf(dt, 0) {
		return State{}, fmt.Errorf("%w: %g s (previous %g, now %g)", ErrNonPositiveTimeDelta, dt, prev.Timestamp, now)
	}

	return State{
		Angle:           newAngle,
		AngularVelocity: (newAngle - prev.Angle) / dt,
		Position:        newPosition,
		LinearVelocity:  (newPosition - prev.Position) / dt,
		Timestamp:       now,
	}, nil
}

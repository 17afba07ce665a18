package motion

import (
	"errors"
	"fmt"
	"time"

	"github.com/cjeanneret/PoleGo/internal/debug"
	"github.com/cjeanneret/PoleGo/internal/hw/actuator"
)

// Direction is the discrete move decided at each control tick.
// The zero value is not a valid direction.
type Direction int

const (
	Left Direction = iota + 1
	Right
)

// Actuator levels commanded for each direction.
const (
	LevelLeft  = actuator.MinLevel
	LevelRight = actuator.MaxLevel
)

var (
	// ErrInvalidDirection is returned for any direction other than Left or Right.
	ErrInvalidDirection = errors.New("invalid direction")
	// ErrNegativeDwell is returned by NewDwellTimes for a negative duration.
	ErrNegativeDwell = errors.New("negative dwell time")
)

func (d Direction) String() string {
	switch d {
	case Left:
		return "left"
	case Right:
		return "right"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// Valid reports whether d is Left or Right.
func (d Direction) Valid() bool {
	return d == Left || d == Right
}

// MarshalText encodes d as "left" or "right".
func (d Direction) MarshalText() ([]byte, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDirection, int(d))
	}
	return []byte(d.String()), nil
}

func (d *Direction) UnmarshalText(b []byte) error {
	v, err := ParseDirection(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// ParseDirection is the inverse of String.
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "left":
		return Left, nil
	case "right":
		return Right, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidDirection, s)
}

// DwellTimes is how long the cart is left to settle after a move,
// per direction. Immutable once built.
type DwellTimes struct {
	left  time.Duration
	right time.Duration
}

// NewDwellTimes validates both durations are non-negative.
func NewDwellTimes(left, right time.Duration) (DwellTimes, error) {
	if left < 0 {
		return DwellTimes{}, fmt.Errorf("%w: left %v", ErrNegativeDwell, left)
	}
	if right < 0 {
		return DwellTimes{}, fmt.Errorf("%w: right %v", ErrNegativeDwell, right)
	}
	return DwellTimes{left: left, right: right}, nil
}

func (d DwellTimes) Left() time.Duration  { return d.left }
func (d DwellTimes) Right() time.Duration { return d.right }

// For returns the dwell that follows a move in direction dir.
func (d DwellTimes) For(dir Direction) (time.Duration, error) {
	switch dir {
	case Left:
		return d.left, nil
	case Right:
		return d.right, nil
	}
	return 0, fmt.Errorf("%w: %v", ErrInvalidDirection, dir)
}

// Sequencer turns a direction into an actuator command followed by
// a blocking dwell.
type Sequencer struct {
	actuator actuator.Actuator

	// Sleep blocks for the dwell. Defaults to time.Sleep.
	Sleep func(time.Duration)
}

func NewSequencer(a actuator.Actuator) *Sequencer {
	return &Sequencer{
		actuator: a,
		Sleep:    time.Sleep,
	}
}

// Apply commands the level for d, then blocks for the matching dwell.
// An invalid direction issues no command. If the actuator fails the
// dwell is skipped.
func (s *Sequencer) Apply(d Direction, dwell DwellTimes) error {
	wait, err := dwell.For(d)
	if err != nil {
		return err
	}

	level := LevelLeft
	if d == Right {
		level = LevelRight
	}
	if err := s.actuator.SetLevel(level); err != nil {
		return fmt.Errorf("move %v: %w", d, err)
	}

	debug.Trace("Sequencer: %v at level %d, dwell %v", d, level, wait)
	s.Sleep(wait)
	return nil
}

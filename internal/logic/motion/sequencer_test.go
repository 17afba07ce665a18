package motion

import (
	"errors"
	"testing"
	"time"
)

// recordingActuator records commanded levels.
type recordingActuator struct {
	levels []int
	err    error
}

func (a *recordingActuator) SetLevel(level int) error {
	if a.err != nil {
		return a.err
	}
	a.levels = append(a.levels, level)
	return nil
}

func (a *recordingActuator) Release() error { return nil }

func newTestSequencer() (*Sequencer, *recordingActuator, *[]time.Duration) {
	act := &recordingActuator{}
	var slept []time.Duration
	s := NewSequencer(act)
	s.Sleep = func(d time.Duration) { slept = append(slept, d) }
	return s, act, &slept
}

func testDwell(t *testing.T) DwellTimes {
	t.Helper()
	d, err := NewDwellTimes(135*time.Millisecond, 8*time.Millisecond)
	if err != nil {
		t.Fatalf("NewDwellTimes: %v", err)
	}
	return d
}

func TestDirection_String(t *testing.T) {
	tests := []struct {
		d    Direction
		want string
	}{
		{Left, "left"},
		{Right, "right"},
		{0, "Direction(0)"},
		{7, "Direction(7)"},
	}
	for _, tt := range tests {
		if got := tt.d.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", int(tt.d), got, tt.want)
		}
	}
}

func TestParseDirection(t *testing.T) {
	for _, d := range []Direction{Left, Right} {
		got, err := ParseDirection(d.String())
		if err != nil || got != d {
			t.Errorf("ParseDirection(%q) = %v, %v", d.String(), got, err)
		}
	}
	if _, err := ParseDirection("up"); !errors.Is(err, ErrInvalidDirection) {
		t.Errorf("ParseDirection(up) err = %v, want ErrInvalidDirection", err)
	}
}

func TestNewDwellTimes_Negative(t *testing.T) {
	if _, err := NewDwellTimes(-time.Millisecond, 0); !errors.Is(err, ErrNegativeDwell) {
		t.Errorf("negative left: err = %v", err)
	}
	if _, err := NewDwellTimes(0, -time.Millisecond); !errors.Is(err, ErrNegativeDwell) {
		t.Errorf("negative right: err = %v", err)
	}
	if _, err := NewDwellTimes(0, 0); err != nil {
		t.Errorf("zero dwell should be valid: %v", err)
	}
}

func TestApply_Left(t *testing.T) {
	s, act, slept := newTestSequencer()
	if err := s.Apply(Left, testDwell(t)); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(act.levels) != 1 || act.levels[0] != 0 {
		t.Errorf("levels = %v, want [0]", act.levels)
	}
	if len(*slept) != 1 || (*slept)[0] != 135*time.Millisecond {
		t.Errorf("slept = %v, want [135ms]", *slept)
	}
}

func TestApply_Right(t *testing.T) {
	s, act, slept := newTestSequencer()
	if err := s.Apply(Right, testDwell(t)); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(act.levels) != 1 || act.levels[0] != 100 {
		t.Errorf("levels = %v, want [100]", act.levels)
	}
	if len(*slept) != 1 || (*slept)[0] != 8*time.Millisecond {
		t.Errorf("slept = %v, want [8ms]", *slept)
	}
}

func TestApply_InvalidDirection(t *testing.T) {
	for _, d := range []Direction{0, 3, -1} {
		s, act, slept := newTestSequencer()
		err := s.Apply(d, testDwell(t))
		if !errors.Is(err, ErrInvalidDirection) {
			t.Errorf("Apply(%v) err = %v, want ErrInvalidDirection", d, err)
		}
		if len(act.levels) != 0 {
			t.Errorf("Apply(%v) issued commands %v", d, act.levels)
		}
		if len(*slept) != 0 {
			t.Errorf("Apply(%v) slept %v", d, *slept)
		}
	}
}

func TestApply_ActuatorFailureSkipsDwell(t *testing.T) {
	s, act, slept := newTestSequencer()
	act.err = errors.New("bus down")
	if err := s.Apply(Right, testDwell(t)); !errors.Is(err, act.err) {
		t.Errorf("err = %v, want wrapped actuator error", err)
	}
	if len(*slept) != 0 {
		t.Errorf("dwell should be skipped on failure, slept %v", *slept)
	}
}

func TestApply_BlocksForDwell(t *testing.T) {
	if testing.Short() {
		t.Skip("real-time test")
	}
	act := &recordingActuator{}
	s := NewSequencer(act)
	dwell := testDwell(t)

	start := time.Now()
	if err := s.Apply(Left, dwell); err != nil {
		t.Fatalf("Apply(Left): %v", err)
	}
	if elapsed := time.Since(start); elapsed < 135*time.Millisecond {
		t.Errorf("Apply(Left) returned after %v, want >= 135ms", elapsed)
	}

	start = time.Now()
	if err := s.Apply(Right, dwell); err != nil {
		t.Fatalf("Apply(Right): %v", err)
	}
	if elapsed := time.Since(start); elapsed < 8*time.Millisecond {
		t.Errorf("Apply(Right) returned after %v, want >= 8ms", elapsed)
	}
}

func TestDirection_TextRoundTrip(t *testing.T) {
	b, err := Right.MarshalText()
	if err != nil || string(b) != "right" {
		t.Fatalf("MarshalText = %q, %v", b, err)
	}
	var d Direction
	if err := d.UnmarshalText([]byte("left")); err != nil || d != Left {
		t.Errorf("UnmarshalText(left) = %v, %v", d, err)
	}
	if _, err := Direction(0).MarshalText(); !errors.Is(err, ErrInvalidDirection) {
		t.Errorf("MarshalText(0) err = %v, want ErrInvalidDirection", err)
	}
}

package estimator

import (
	"errors"
	"math"
	"testing"
)

func TestSeed_ZeroVelocities(t *testing.T) {
	s := Seed(0.5, 5.0, 12.25)
	want := State{Angle: 5.0, Position: 0.5, Timestamp: 12.25}
	if s != want {
		t.Errorf("Seed = %+v, want %+v", s, want)
	}
}

func TestAdvance_FiniteDifferences(t *testing.T) {
	cases := []struct {
		name             string
		prev             State
		pos, angle, now  float64
		wantLin, wantAng float64
	}{
		{"one_second", Seed(0.5, 5.0, 0), 1.0, 5.0, 1, 0.5, 0},
		{"half_second", Seed(0.2, 3.0, 10), 0.1, 3.5, 10.5, -0.2, 1.0},
		{"irregular", Seed(0, 0, 2), 0.003, -0.01, 2.135, 0.003 / 0.135, -0.01 / 0.135},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Advance(tc.prev, tc.pos, tc.angle, tc.now)
			if err != nil {
				t.Fatalf("Advance: %v", err)
			}
			if math.Abs(got.LinearVelocity-tc.wantLin) > 1e-9 {
				t.Errorf("LinearVelocity = %v, want %v", got.LinearVelocity, tc.wantLin)
			}
			if math.Abs(got.AngularVelocity-tc.wantAng) > 1e-9 {
				t.Errorf("AngularVelocity = %v, want %v", got.AngularVelocity, tc.wantAng)
			}
			if got.Position != tc.pos || got.Angle != tc.angle || got.Timestamp != tc.now {
				t.Errorf("Advance did not carry the new sample: %+v", got)
			}
		})
	}
}

func TestAdvance_NonPositiveDelta(t *testing.T) {
	prev := State{Angle: 5, AngularVelocity: 1, Position: 0.5, LinearVelocity: 2, Timestamp: 3}
	saved := prev

	for _, now := range []float64{3, 2.999, 0, -1, math.NaN()} {
		got, err := Advance(prev, 1, 1, now)
		if !errors.Is(err, ErrNonPositiveTimeDelta) {
			t.Errorf("now=%v: err = %v, want ErrNonPositiveTimeDelta", now, err)
		}
		if got != (State{}) {
			t.Errorf("now=%v: expected zero State on failure, got %+v", now, got)
		}
		if prev != saved {
			t.Errorf("now=%v: previous state mutated: %+v", now, prev)
		}
	}
}

func TestEndToEnd_ReferenceScenario(t *testing.T) {
	// raw (32767, 45764) then (65534, 45764) one second later,
	// ratios position=65534, angle=9152.8
	s0 := Seed(32767.0/65534.0, 45764/9152.8, 100)
	s1, err := Advance(s0, 65534.0/65534.0, 45764/9152.8, 101)
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if math.Abs(s1.LinearVelocity-0.5) > 1e-9 {
		t.Errorf("LinearVelocity = %v, want 0.5", s1.LinearVelocity)
	}
	if math.Abs(s1.AngularVelocity) > 1e-9 {
		t.Errorf("AngularVelocity = %v, want 0", s1.AngularVelocity)
	}
}

package reward

import (
	"math"
	"testing"

	"github.com/cjeanneret/PoleGo/internal/logic/estimator"
)

func at(angle float64) estimator.State {
	return estimator.State{Angle: angle}
}

func TestReward_MaximalAtTarget(t *testing.T) {
	if got := Reward(at(math.Pi), DefaultTarget); got != 1.0 {
		t.Errorf("Reward at target = %v, want 1.0", got)
	}
	if got := Reward(at(0.3), 0.3); got != 1.0 {
		t.Errorf("Reward at custom target = %v, want 1.0", got)
	}
}

func TestReward_KnownValues(t *testing.T) {
	cases := []struct {
		angle float64
		want  float64
	}{
		{math.Pi + 1, 0.5},
		{math.Pi - 1, 0.5},
		{math.Pi + 3, 0.25},
	}
	for _, tc := range cases {
		got := Reward(at(tc.angle), DefaultTarget)
		if math.Abs(got-tc.want) > 1e-12 {
			t.Errorf("Reward(%v) = %v, want %v", tc.angle, got, tc.want)
		}
	}
}

func TestReward_StrictlyDecreasingAndSymmetric(t *testing.T) {
	prev := Reward(at(DefaultTarget), DefaultTarget)
	for _, d := range []float64{0.001, 0.01, 0.1, 1, 10, 1000} {
		plus := Reward(at(DefaultTarget+d), DefaultTarget)
		minus := Reward(at(DefaultTarget-d), DefaultTarget)
		if math.Abs(plus-minus) > 1e-12 {
			t.Errorf("deviation %v: +%v vs -%v not symmetric", d, plus, minus)
		}
		if !(plus < prev) {
			t.Errorf("deviation %v: reward %v not below previous %v", d, plus, prev)
		}
		if !(plus > 0 && plus <= 1) {
			t.Errorf("deviation %v: reward %v outside (0, 1]", d, plus)
		}
		prev = plus
	}
}

func TestReward_NeverMaximalAwayFromTarget(t *testing.T) {
	for _, angle := range []float64{0, 1, 3.14, 3.15, 5.0, -math.Pi} {
		if Reward(at(angle), DefaultTarget) >= 1.0 {
			t.Errorf("Reward(%v) should be < 1", angle)
		}
	}
}

package reward

import (
	"math"

	"github.com/cjeanneret/PoleGo/internal/logic/estimator"
)

// DefaultTarget is the upright pole angle in radians.
const DefaultTarget = math.Pi

// Reward scores a state in (0, 1]: 1 exactly at target, decreasing with
// the absolute angular distance to it.
func Reward(s estimator.State, target float64) float64 {
	return 1 / (1 + math.Abs(s.Angle-target))
}

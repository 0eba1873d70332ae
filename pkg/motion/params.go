package motion

import "github.com/gwillem/armctl/pkg/robot"

// Params are the planner constants shared by every joint.
type Params struct {
	// Epsilon is the distance at which a joint counts as arrived.
	Epsilon float64
	// NormalizationDistance is the distance beyond which a joint runs at
	// full speed. Must be positive.
	NormalizationDistance float64
	Acceleration          float64
	Deceleration          float64
	// Smoothing is the base weight of the previous position in the
	// low-pass blend.
	Smoothing float64
}

// MaxSmoothing caps the blend weight so a joint can always make progress.
const MaxSmoothing = 0.95

// DefaultParams returns the constants tuned on the reference arm.
func DefaultParams() Params {
	return ParamsFromTuning(robot.DefaultTuning())
}

// ParamsFromTuning converts config-file tuning into planner parameters.
func ParamsFromTuning(t robot.Tuning) Params {
	return Params{
		Epsilon:               t.Epsilon,
		NormalizationDistance: t.NormalizationDistance,
		Acceleration:          t.Acceleration,
		Deceleration:          t.Deceleration,
		Smoothing:             t.Smoothing,
	}
}

package motion

import (
	"math"

	"github.com/gwillem/armctl/pkg/robot"
)

// Planner computes velocity-eased position updates.
type Planner struct {
	Params Params
}

// NewPlanner returns a planner using p.
func NewPlanner(p Params) *Planner {
	return &Planner{Params: p}
}

// Ease advances s by one tick toward its target and reports whether the
// joint has arrived. Arrival snaps Current to Target and zeroes Velocity; a
// joint is never snapped from further away than Epsilon.
//
// A zero step size or speed factor leaves the joint where it is.
func (p *Planner) Ease(cfg robot.JointConfig, s *JointState, speedFactor float64) bool {
	diff := s.Target - s.Current
	if math.Abs(diff) <= p.Params.Epsilon {
		s.Velocity = 0
		s.Current = s.Target
		return true
	}

	distanceFactor := math.Min(1, math.Abs(diff)/p.Params.NormalizationDistance)
	maxVelocity := cfg.StepSize * speedFactor * distanceFactor

	if math.Abs(s.Velocity) < maxVelocity {
		s.Velocity += math.Copysign(p.Params.Acceleration*maxVelocity, diff)
		s.Velocity = math.Copysign(math.Min(math.Abs(s.Velocity), maxVelocity), s.Velocity)
	} else if math.Abs(diff) < math.Abs(s.Velocity)*2 {
		s.Velocity *= 1 - p.Params.Deceleration
	}

	// Heading away from the target: brake harder.
	if s.Velocity*diff < 0 {
		s.Velocity *= 1 - 2*p.Params.Deceleration
	}

	proposed := s.Current + s.Velocity
	smoothing := p.Params.Smoothing
	if cfg.Compensated() {
		proposed += gravityAssist(cfg, s.Current, diff)
		smoothing += cfg.Gravity.ExtraSmoothing
	}
	smoothing = math.Min(MaxSmoothing, smoothing)

	s.Current = cfg.Clamp(s.Current*smoothing + proposed*(1-smoothing))
	return false
}

// gravityAssist returns the additive correction for a gravity-loaded joint.
// Moving toward MinPW works against gravity and is boosted more the further
// the joint is extended; moving toward MaxPW is helped by gravity and is
// corrected less.
func gravityAssist(cfg robot.JointConfig, current, diff float64) float64 {
	g := cfg.Gravity
	ratio := cfg.Ratio(current)
	if g.RatioFactor != 0 {
		ratio *= g.RatioFactor
	}
	if diff < 0 {
		return -g.Factor * ratio * cfg.StepSize * g.UpwardBoost
	}
	return g.Factor * (1 - ratio) * cfg.StepSize * g.DownwardReduction
}

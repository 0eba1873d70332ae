package motion

import (
	"fmt"
	"math"

	"github.com/gwillem/armctl/pkg/robot"
)

// Bounds on the adaptive preset step count.
const (
	MinRampSteps = 1
	MaxRampSteps = 100

	// rampResolution is the distance covered per adaptive step, in μs.
	rampResolution = 10
)

// RampPoint is one joint's position at a ramp step.
type RampPoint struct {
	Joint      robot.JointName
	Channel    int
	PulseWidth float64
}

type rampJoint struct {
	cfg    robot.JointConfig
	start  float64
	target float64
}

// Ramp is a linear move of several joints to a preset, split into a fixed
// number of steps. Targets are clamped when the ramp is built, so no step
// ever lies outside a joint's limits.
type Ramp struct {
	Name   string
	joints []rampJoint
	steps  int
}

// NewRamp builds a ramp from start positions to targets. Joints appear in
// registry order regardless of map order. fixedSteps > 0 sets the step
// count; otherwise it adapts to the longest distance.
func NewRamp(reg *robot.Registry, name string, start map[robot.JointName]float64, targets robot.Preset, fixedSteps int) (*Ramp, error) {
	r := &Ramp{Name: name}
	longest := 0.0

	for _, cfg := range reg.Joints() {
		target, ok := targets[cfg.Name]
		if !ok {
			continue
		}
		from, ok := start[cfg.Name]
		if !ok {
			return nil, fmt.Errorf("ramp %s: no start position for %s", name, cfg.Name)
		}
		j := rampJoint{
			cfg:    cfg,
			start:  from,
			target: cfg.Clamp(float64(target)),
		}
		longest = math.Max(longest, math.Abs(j.target-j.start))
		r.joints = append(r.joints, j)
	}

	for joint := range targets {
		if _, ok := reg.Index(joint); !ok {
			return nil, fmt.Errorf("ramp %s: %w: %s", name, robot.ErrUnknownJoint, joint)
		}
	}

	if fixedSteps > 0 {
		r.steps = fixedSteps
	} else {
		r.steps = AdaptiveSteps(longest)
	}
	return r, nil
}

// AdaptiveSteps returns the step count for a move whose longest joint
// travel is distance: one step per 10μs, between 1 and 100 steps.
func AdaptiveSteps(distance float64) int {
	n := int(distance / rampResolution)
	if n < MinRampSteps {
		return MinRampSteps
	}
	if n > MaxRampSteps {
		return MaxRampSteps
	}
	return n
}

// Steps returns the number of steps in the ramp.
func (r *Ramp) Steps() int {
	return r.steps
}

// Joints returns the joints moved by the ramp, in drive order.
func (r *Ramp) Joints() []robot.JointName {
	names := make([]robot.JointName, len(r.joints))
	for i, j := range r.joints {
		names[i] = j.cfg.Name
	}
	return names
}

// Target returns the clamped target of a joint in the ramp.
func (r *Ramp) Target(name robot.JointName) (float64, bool) {
	for _, j := range r.joints {
		if j.cfg.Name == name {
			return j.target, true
		}
	}
	return 0, false
}

// At returns every joint's position after step k, for k in 1..Steps().
// Step Steps() lands exactly on the targets.
func (r *Ramp) At(k int) []RampPoint {
	if k < 1 {
		k = 1
	}
	if k > r.steps {
		k = r.steps
	}
	frac := float64(k) / float64(r.steps)

	points := make([]RampPoint, len(r.joints))
	for i, j := range r.joints {
		pw := j.start + (j.target-j.start)*frac
		points[i] = RampPoint{
			Joint:      j.cfg.Name,
			Channel:    j.cfg.Channel,
			PulseWidth: j.cfg.Clamp(pw),
		}
	}
	return points
}

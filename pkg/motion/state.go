// Package motion holds per-joint runtime state and the trajectory planner
// that advances it one tick at a time.
package motion

import (
	"math"
	"time"

	"github.com/gwillem/armctl/pkg/robot"
)

// Mode is what a joint is currently doing.
type Mode int

const (
	Idle Mode = iota
	Jogging
	Easing
	Faulted
)

func (m Mode) String() string {
	switch m {
	case Idle:
		return "idle"
	case Jogging:
		return "jogging"
	case Easing:
		return "easing"
	case Faulted:
		return "faulted"
	default:
		return "unknown"
	}
}

// Active reports whether the scheduler should advance a joint in this mode.
func (m Mode) Active() bool {
	return m == Jogging || m == Easing
}

// JointState is the mutable runtime state of one joint.
//
// Current and Velocity are written only by the scheduler. Current always lies
// within the joint's limits; Target is clamped when it is assigned.
type JointState struct {
	Current     float64
	Target      float64
	Velocity    float64
	Mode        Mode
	LastCommand time.Time

	// Settle returns a jogging joint to Idle once it reaches its target.
	Settle bool
}

// NewJointState returns a state resting at the centre of the joint's travel.
func NewJointState(cfg robot.JointConfig) JointState {
	mid := float64(cfg.Mid())
	return JointState{
		Current: mid,
		Target:  mid,
	}
}

// SetTarget assigns a new target, clamped to the joint's limits.
func (s *JointState) SetTarget(cfg robot.JointConfig, pw float64) {
	s.Target = cfg.Clamp(pw)
}

// Hold stops the joint where it is: target follows current and velocity is
// dropped. The last commanded position is kept, nothing snaps.
func (s *JointState) Hold() {
	s.Target = s.Current
	s.Velocity = 0
	s.Settle = false
}

// PulseWidth returns the current position rounded to whole microseconds.
func (s JointState) PulseWidth() int {
	return int(math.Round(s.Current))
}

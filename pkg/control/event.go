package control

import "github.com/gwillem/armctl/pkg/robot"

// Event is a status update for the UI.
type Event interface {
	event()
}

// PositionChanged reports a pulse width written to a joint.
type PositionChanged struct {
	Joint      robot.JointName
	PulseWidth int
}

// StatusChanged carries a one-line operator status.
type StatusChanged struct {
	Text string
}

// PowerStabilityChanged reports a flip of the load heuristic.
type PowerStabilityChanged struct {
	Stable bool
}

// JointFaulted reports a joint taken out of service after a write failure.
type JointFaulted struct {
	Joint  robot.JointName
	Reason string
}

func (PositionChanged) event()       {}
func (StatusChanged) event()         {}
func (PowerStabilityChanged) event() {}
func (JointFaulted) event()          {}

package control

import "github.com/gwillem/armctl/pkg/robot"

// Command is an operator request. The set is closed: only the types in this
// file implement it.
type Command interface {
	command()
}

// JogStart moves a joint continuously toward one end of its travel until a
// matching JogEnd. Direction is +1 (toward the end selected by the joint's
// direction unit) or -1.
type JogStart struct {
	Joint     robot.JointName
	Direction int
}

// JogEnd stops a jog. The joint holds wherever it got to.
type JogEnd struct {
	Joint robot.JointName
}

// SetTarget eases a joint to an absolute pulse width, then idles it.
type SetTarget struct {
	Joint      robot.JointName
	PulseWidth int
}

// PresetMove ramps several joints linearly to a named configuration,
// superseding any preset still in progress.
type PresetMove struct {
	Name    string
	Targets robot.Preset
}

// EmergencyStop releases every servo, then re-engages them where they were.
type EmergencyStop struct{}

// SelfTest sweeps each working joint SelfTestSwing μs either side of its
// position and back, one joint at a time in drive order. A preset move or
// emergency stop cancels it.
type SelfTest struct{}

// SetSpeedFactor scales jog speed and tick rate.
type SetSpeedFactor struct {
	Factor float64
}

func (JogStart) command()       {}
func (JogEnd) command()         {}
func (SetTarget) command()      {}
func (PresetMove) command()     {}
func (EmergencyStop) command()  {}
func (SelfTest) command()       {}
func (SetSpeedFactor) command() {}

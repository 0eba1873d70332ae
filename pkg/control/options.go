package control

import (
	"time"

	"github.com/gwillem/armctl/pkg/load"
	"github.com/gwillem/armctl/pkg/pwm"
)

// Speed factor bounds accepted by SetSpeedFactor.
const (
	MinSpeedFactor = 0.1
	MaxSpeedFactor = 4.0
)

// Options tune the scheduler's timing. Durations are used as given, so the
// zero value runs every sequence without pauses; use DefaultOptions for
// hardware.
type Options struct {
	// Interval is the base tick period. Zero uses the shortest joint
	// interval from the registry.
	Interval time.Duration
	// SpeedFactor is the initial speed factor. Zero means 1.
	SpeedFactor float64
	// RampSteps fixes the preset step count. Zero adapts it to distance.
	RampSteps int

	// InterJointDelay separates joint writes within one preset step.
	InterJointDelay time.Duration
	// StopDelay separates the disable writes of an emergency stop.
	StopDelay time.Duration
	// CoolDown is the pause between releasing and re-engaging the arm.
	CoolDown time.Duration
	// ReactivateDelay separates the writes that re-engage the arm, both
	// after an emergency stop and at startup.
	ReactivateDelay time.Duration

	// ReconnectAttempts bounds reconnection after the driver is lost.
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	// HealthInterval is how often the driver connection is checked by
	// reading back every working channel. Zero disables the check.
	HealthInterval time.Duration

	RapidThreshold time.Duration
	RapidLimit     int
}

// DefaultOptions returns timings suited to hobby servos on a shared supply.
func DefaultOptions() Options {
	return Options{
		SpeedFactor:       1,
		RampSteps:         50,
		InterJointDelay:   5 * time.Millisecond,
		StopDelay:         50 * time.Millisecond,
		CoolDown:          time.Second,
		ReactivateDelay:   200 * time.Millisecond,
		ReconnectAttempts: pwm.DefaultDialAttempts,
		ReconnectDelay:    pwm.DefaultDialDelay,
		HealthInterval:    30 * time.Second,
		RapidThreshold:    load.DefaultRapidThreshold,
		RapidLimit:        load.DefaultRapidLimit,
	}
}

package robot

import (
	"math"
	"time"
)

// GravityConfig holds gravity-compensation parameters for a joint whose load
// torque depends on its position.
type GravityConfig struct {
	Factor            float64 `json:"factor"`
	ExtraSmoothing    float64 `json:"extra_smoothing"`
	RatioFactor       float64 `json:"ratio_factor"`
	UpwardBoost       float64 `json:"upward_boost"`
	DownwardReduction float64 `json:"downward_reduction"`
}

// DefaultGravity returns the elbow compensation tuned on the reference arm.
func DefaultGravity() *GravityConfig {
	return &GravityConfig{
		Factor:            0.3,
		ExtraSmoothing:    0.4,
		RatioFactor:       1.0,
		UpwardBoost:       1.0,
		DownwardReduction: 0.5,
	}
}

// JointConfig is the static description of a single joint. It is built once
// at startup and never mutated.
type JointConfig struct {
	Name      JointName `json:"name"`
	Channel   int       `json:"channel"`
	MinPW     int       `json:"min_pw"`
	MaxPW     int       `json:"max_pw"`
	StepSize  float64   `json:"step_size"`
	Interval  Duration  `json:"interval"`
	Direction int       `json:"direction,omitempty"`

	// Gravity is nil for joints that are not gravity loaded.
	Gravity *GravityConfig `json:"gravity,omitempty"`
}

// Mid returns the centre of the joint's travel.
func (c JointConfig) Mid() int {
	return (c.MinPW + c.MaxPW) / 2
}

// Clamp limits a pulse width to the joint's travel.
func (c JointConfig) Clamp(pw float64) float64 {
	return math.Max(float64(c.MinPW), math.Min(pw, float64(c.MaxPW)))
}

// Ratio returns the position of pw within the travel: 0 at MinPW, 1 at MaxPW.
func (c JointConfig) Ratio(pw float64) float64 {
	span := float64(c.MaxPW - c.MinPW)
	if span == 0 {
		return 0
	}
	return (pw - float64(c.MinPW)) / span
}

// Normalize converts a pulse width to a value in the range [-100, 100].
func (c JointConfig) Normalize(pw float64) float64 {
	return c.Ratio(pw)*200 - 100
}

// Denormalize converts a normalized value [-100, 100] to a pulse width.
func (c JointConfig) Denormalize(norm float64) int {
	rangeSize := float64(c.MaxPW - c.MinPW)
	return int((norm+100)/200*rangeSize) + c.MinPW
}

// Sign returns the joint's direction unit. A zero Direction means +1.
func (c JointConfig) Sign() float64 {
	if c.Direction < 0 {
		return -1
	}
	return 1
}

// Compensated reports whether the joint carries gravity compensation.
func (c JointConfig) Compensated() bool {
	return c.Gravity != nil && c.Gravity.Factor != 0
}

// Duration is a time.Duration that reads and writes as a Go duration string
// ("30ms") in the config file.
type Duration time.Duration

// D returns the value as a time.Duration.
func (d Duration) D() time.Duration {
	return time.Duration(d)
}

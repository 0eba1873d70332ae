package robot

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env"
)

const DefaultConfigFile = "armctl.json"

// Driver kinds understood by pwm.Open.
const (
	DriverPigpio  = "pigpio"
	DriverMaestro = "maestro"
	DriverFeetech = "feetech"
	DriverRPIO    = "rpio"
	DriverSim     = "sim"
)

// Config holds the arm configuration
type Config struct {
	Driver  DriverConfig      `json:"driver"`
	Joints  []JointConfig     `json:"joints"`
	Presets map[string]Preset `json:"presets,omitempty"`
	Tuning  Tuning            `json:"tuning"`
}

// DriverConfig selects and addresses the pulse-width driver. Fields can be
// overridden from the environment.
type DriverConfig struct {
	Kind     string `json:"kind" env:"ARMCTL_DRIVER"`
	Address  string `json:"address,omitempty" env:"ARMCTL_PIGPIO_ADDR"`
	Port     string `json:"port,omitempty" env:"ARMCTL_PORT"`
	BaudRate int    `json:"baud_rate,omitempty" env:"ARMCTL_BAUD"`
}

// Preset is a named target pulse width per joint.
type Preset map[JointName]int

// Tuning holds the motion-planner constants shared by all joints.
type Tuning struct {
	Acceleration          float64 `json:"acceleration"`
	Deceleration          float64 `json:"deceleration"`
	Smoothing             float64 `json:"smoothing"`
	Epsilon               float64 `json:"epsilon"`
	NormalizationDistance float64 `json:"normalization_distance"`
	SpeedFactor           float64 `json:"speed_factor"`

	// RampSteps fixes the number of preset steps; 0 adapts it to the distance.
	RampSteps int `json:"ramp_steps"`
}

// DefaultTuning returns the planner constants used on the reference arm.
func DefaultTuning() Tuning {
	return Tuning{
		Acceleration:          0.2,
		Deceleration:          0.3,
		Smoothing:             0.8,
		Epsilon:               1,
		NormalizationDistance: 100,
		SpeedFactor:           1,
		RampSteps:             50,
	}
}

// DefaultConfig returns a configuration for the 6-DOF reference arm driven
// through pigpiod on a Raspberry Pi.
func DefaultConfig() *Config {
	interval := Duration(30 * time.Millisecond)
	joint := func(name JointName, pin, lo, hi int) JointConfig {
		return JointConfig{
			Name:      name,
			Channel:   pin,
			MinPW:     lo,
			MaxPW:     hi,
			StepSize:  10,
			Interval:  interval,
			Direction: 1,
		}
	}

	elbow := joint(Elbow, 22, 600, 2400)
	elbow.Gravity = DefaultGravity()

	return &Config{
		Driver: DriverConfig{
			Kind:    DriverPigpio,
			Address: "localhost:8888",
		},
		Joints: []JointConfig{
			joint(Base, 24, 600, 2400),
			joint(Shoulder, 23, 700, 2300),
			elbow,
			joint(WristPitch, 27, 600, 2400),
			joint(WristRoll, 18, 600, 2400),
			joint(Gripper, 17, 1000, 2000),
		},
		Presets: map[string]Preset{
			"home":  {Base: 1500, Shoulder: 1500, Elbow: 1500, WristPitch: 1500, WristRoll: 1500, Gripper: 1500},
			"pick":  {Base: 1800, Shoulder: 1200, Elbow: 1000, WristPitch: 1700, WristRoll: 1500, Gripper: 2000},
			"place": {Base: 1200, Shoulder: 1500, Elbow: 1800, WristPitch: 1300, WristRoll: 1500, Gripper: 1000},
			"rest":  {Base: 1500, Shoulder: 2000, Elbow: 2000, WristPitch: 1500, WristRoll: 1500, Gripper: 1500},
		},
		Tuning: DefaultTuning(),
	}
}

// LoadConfig loads configuration from the default config file
func LoadConfig() (*Config, error) {
	return LoadConfigFrom(DefaultConfigFile)
}

// LoadConfigFrom loads configuration from a specific file, applies
// environment overrides to the driver section and fills unset tuning values.
func LoadConfigFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// LoadConfigOrDefault loads path, falling back to DefaultConfig when the
// file does not exist. Environment overrides apply either way; found
// reports whether the file was read.
func LoadConfigOrDefault(path string) (cfg *Config, found bool, err error) {
	cfg, err = LoadConfigFrom(path)
	if err == nil {
		return cfg, true, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, false, err
	}
	cfg = DefaultConfig()
	if err := cfg.applyEnv(); err != nil {
		return nil, false, err
	}
	return cfg, false, nil
}

func (c *Config) applyEnv() error {
	if err := env.Parse(&c.Driver); err != nil {
		return fmt.Errorf("driver environment: %w", err)
	}
	return nil
}

func (c *Config) applyDefaults() {
	d := DefaultTuning()
	if c.Tuning.Acceleration == 0 {
		c.Tuning.Acceleration = d.Acceleration
	}
	if c.Tuning.Deceleration == 0 {
		c.Tuning.Deceleration = d.Deceleration
	}
	if c.Tuning.Smoothing == 0 {
		c.Tuning.Smoothing = d.Smoothing
	}
	if c.Tuning.Epsilon == 0 {
		c.Tuning.Epsilon = d.Epsilon
	}
	if c.Tuning.NormalizationDistance == 0 {
		c.Tuning.NormalizationDistance = d.NormalizationDistance
	}
	if c.Tuning.SpeedFactor == 0 {
		c.Tuning.SpeedFactor = d.SpeedFactor
	}
	if c.Driver.Kind == "" {
		c.Driver.Kind = DriverPigpio
	}
}

// Validate builds the joint registry and checks that every preset refers to
// known joints.
func (c *Config) Validate() (*Registry, error) {
	reg, err := NewRegistry(c.Joints)
	if err != nil {
		return nil, err
	}
	for name, p := range c.Presets {
		for joint := range p {
			if _, ok := reg.Index(joint); !ok {
				return nil, &ConfigError{Joint: joint, Reason: fmt.Sprintf("preset %q refers to an unknown joint", name)}
			}
		}
	}
	if c.Tuning.NormalizationDistance <= 0 {
		return nil, &ConfigError{Reason: "normalization distance must be positive"}
	}
	return reg, nil
}

// Save saves configuration to the default config file
func (c *Config) Save() error {
	return c.SaveTo(DefaultConfigFile)
}

// SaveTo saves configuration to a specific file
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ConfigExists returns true if the default config file exists
func ConfigExists() bool {
	_, err := os.Stat(DefaultConfigFile)
	return err == nil
}

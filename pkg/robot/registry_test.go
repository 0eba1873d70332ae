package robot

import (
	"errors"
	"testing"
	"time"
)

func TestNewRegistry_Order(t *testing.T) {
	reg, err := NewRegistry(DefaultConfig().Joints)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	names := reg.Names()
	expected := AllJoints()
	if len(names) != len(expected) {
		t.Fatalf("Names returned %d joints, want %d", len(names), len(expected))
	}
	for i, name := range names {
		if name != expected[i] {
			t.Errorf("Names()[%d] = %s, want %s", i, name, expected[i])
		}
	}
	if reg.Len() != 6 {
		t.Errorf("Len() = %d, want 6", reg.Len())
	}
	if got := reg.MinInterval().D(); got != 30*time.Millisecond {
		t.Errorf("MinInterval() = %v, want 30ms", got)
	}
}

func TestRegistry_Get(t *testing.T) {
	reg, err := NewRegistry([]JointConfig{
		{Name: Base, Channel: 1, MinPW: 100, MaxPW: 200},
		{Name: Gripper, Channel: 6, MinPW: 300, MaxPW: 400},
	})
	if err != nil {
		t.Fatal(err)
	}

	cfg, err := reg.Get(Gripper)
	if err != nil {
		t.Fatalf("Get(Gripper): %v", err)
	}
	if cfg.Channel != 6 || cfg.MinPW != 300 {
		t.Errorf("Get(Gripper) returned wrong config: %+v", cfg)
	}

	_, err = reg.Get(Elbow)
	if !errors.Is(err, ErrUnknownJoint) {
		t.Errorf("Get(Elbow) error = %v, want ErrUnknownJoint", err)
	}
}

func TestNewRegistry_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		configs []JointConfig
	}{
		{"empty", nil},
		{"inverted limits", []JointConfig{{Name: Base, Channel: 1, MinPW: 2000, MaxPW: 1000}}},
		{"equal limits", []JointConfig{{Name: Base, Channel: 1, MinPW: 1500, MaxPW: 1500}}},
		{"negative min", []JointConfig{{Name: Base, Channel: 1, MinPW: -1, MaxPW: 1000}}},
		{"overlapping channels", []JointConfig{
			{Name: Base, Channel: 17, MinPW: 500, MaxPW: 2500},
			{Name: Elbow, Channel: 17, MinPW: 500, MaxPW: 2500},
		}},
		{"duplicate name", []JointConfig{
			{Name: Base, Channel: 1, MinPW: 500, MaxPW: 2500},
			{Name: Base, Channel: 2, MinPW: 500, MaxPW: 2500},
		}},
		{"missing name", []JointConfig{{Channel: 1, MinPW: 500, MaxPW: 2500}}},
		{"negative step", []JointConfig{{Name: Base, Channel: 1, MinPW: 500, MaxPW: 2500, StepSize: -1}}},
		{"bad direction", []JointConfig{{Name: Base, Channel: 1, MinPW: 500, MaxPW: 2500, Direction: 2}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, err := NewRegistry(tt.configs)
			if reg != nil {
				t.Error("NewRegistry returned a registry for invalid input")
			}
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Errorf("error = %v, want *ConfigError", err)
			}
		})
	}
}

func TestNewRegistry_CopiesGravity(t *testing.T) {
	g := DefaultGravity()
	reg, err := NewRegistry([]JointConfig{{Name: Elbow, Channel: 22, MinPW: 600, MaxPW: 2400, Gravity: g}})
	if err != nil {
		t.Fatal(err)
	}

	g.Factor = 99
	cfg, _ := reg.Get(Elbow)
	if cfg.Gravity.Factor != 0.3 {
		t.Errorf("registry gravity factor = %v after caller mutation, want 0.3", cfg.Gravity.Factor)
	}
	if !cfg.Compensated() {
		t.Error("elbow should be gravity compensated")
	}
}

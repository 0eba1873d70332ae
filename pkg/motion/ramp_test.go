package motion

import (
	"errors"
	"math"
	"testing"

	"github.com/gwillem/armctl/pkg/robot"
)

func testRegistry(t *testing.T) *robot.Registry {
	t.Helper()
	reg, err := robot.NewRegistry(robot.DefaultConfig().Joints)
	if err != nil {
		t.Fatal(err)
	}
	return reg
}

func startAt(reg *robot.Registry, pw float64) map[robot.JointName]float64 {
	start := make(map[robot.JointName]float64)
	for _, name := range reg.Names() {
		start[name] = pw
	}
	return start
}

func TestAdaptiveSteps(t *testing.T) {
	tests := []struct {
		distance float64
		want     int
	}{
		{0, 1},
		{5, 1},
		{10, 1},
		{25, 2},
		{300, 30},
		{1000, 100},
		{1800, 100},
	}
	for _, tt := range tests {
		if got := AdaptiveSteps(tt.distance); got != tt.want {
			t.Errorf("AdaptiveSteps(%v) = %d, want %d", tt.distance, got, tt.want)
		}
	}
}

func TestNewRamp_LinearAndOrdered(t *testing.T) {
	reg := testRegistry(t)
	targets := robot.Preset{robot.Gripper: 2000, robot.Base: 1800}

	r, err := NewRamp(reg, "pick", startAt(reg, 1500), targets, 50)
	if err != nil {
		t.Fatal(err)
	}
	if r.Steps() != 50 {
		t.Fatalf("Steps() = %d, want 50", r.Steps())
	}

	joints := r.Joints()
	if len(joints) != 2 || joints[0] != robot.Base || joints[1] != robot.Gripper {
		t.Errorf("Joints() = %v, want [BASE GRIPPER]", joints)
	}

	mid := r.At(25)
	if mid[0].PulseWidth != 1650 || mid[1].PulseWidth != 1750 {
		t.Errorf("At(25) = %+v, want 1650 and 1750", mid)
	}
	end := r.At(50)
	if end[0].PulseWidth != 1800 || end[1].PulseWidth != 2000 {
		t.Errorf("At(50) = %+v, want targets", end)
	}
	if end[0].Channel != 24 {
		t.Errorf("base channel = %d, want 24", end[0].Channel)
	}
}

func TestNewRamp_ClampsBeforeStepping(t *testing.T) {
	reg := testRegistry(t)
	// Gripper travel is [1000, 2000].
	targets := robot.Preset{robot.Gripper: 3500, robot.Base: 1600}

	r, err := NewRamp(reg, "bad", startAt(reg, 1500), targets, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := r.Target(robot.Gripper); got != 2000 {
		t.Errorf("gripper target = %v, want clamped to 2000", got)
	}
	// Longest clamped distance is 500μs -> 50 steps, not 200.
	if r.Steps() != 50 {
		t.Errorf("Steps() = %d, want 50 from the clamped distance", r.Steps())
	}

	for k := 1; k <= r.Steps(); k++ {
		for _, p := range r.At(k) {
			cfg, _ := reg.Get(p.Joint)
			if p.PulseWidth < float64(cfg.MinPW) || p.PulseWidth > float64(cfg.MaxPW) {
				t.Fatalf("step %d: %s at %v outside limits", k, p.Joint, p.PulseWidth)
			}
		}
	}
}

func TestNewRamp_UnknownJoint(t *testing.T) {
	reg := testRegistry(t)
	_, err := NewRamp(reg, "x", startAt(reg, 1500), robot.Preset{"TAIL": 1500}, 10)
	if !errors.Is(err, robot.ErrUnknownJoint) {
		t.Errorf("error = %v, want ErrUnknownJoint", err)
	}
}

func TestRamp_MonotonicSteps(t *testing.T) {
	reg := testRegistry(t)
	r, err := NewRamp(reg, "rest", startAt(reg, 1500), robot.Preset{robot.Shoulder: 2000}, 0)
	if err != nil {
		t.Fatal(err)
	}
	prev := 1500.0
	for k := 1; k <= r.Steps(); k++ {
		pw := r.At(k)[0].PulseWidth
		if pw < prev {
			t.Fatalf("step %d went backwards: %v < %v", k, pw, prev)
		}
		if math.Abs(pw-prev) > 10.0001 {
			t.Fatalf("step %d moved %vμs, want at most 10", k, pw-prev)
		}
		prev = pw
	}
	if prev != 2000 {
		t.Errorf("final position = %v, want 2000", prev)
	}
}

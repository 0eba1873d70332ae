package main

import (
	"testing"

	"github.com/gwillem/armctl/pkg/robot"
)

func TestJogKeyMap(t *testing.T) {
	tests := []struct {
		name  string
		names []robot.JointName
		want  map[string]jogKey
	}{
		{
			name:  "default arm",
			names: []robot.JointName{robot.Base, robot.Shoulder, robot.Elbow, robot.WristPitch, robot.WristRoll, robot.Gripper},
			want: map[string]jogKey{
				"a": {robot.Base, +1}, "z": {robot.Base, -1},
				"s": {robot.Shoulder, +1}, "x": {robot.Shoulder, -1},
				"d": {robot.Elbow, +1}, "c": {robot.Elbow, -1},
				"f": {robot.WristPitch, +1}, "v": {robot.WristPitch, -1},
				"g": {robot.WristRoll, +1}, "b": {robot.WristRoll, -1},
				"h": {robot.Gripper, +1}, "n": {robot.Gripper, -1},
			},
		},
		{
			name:  "two joint rpio arm",
			names: []robot.JointName{robot.Base, robot.Gripper},
			want: map[string]jogKey{
				"a": {robot.Base, +1}, "z": {robot.Base, -1},
				"s": {robot.Gripper, +1}, "x": {robot.Gripper, -1},
			},
		},
		{
			name:  "custom names",
			names: []robot.JointName{"TURRET", "CLAW"},
			want: map[string]jogKey{
				"a": {"TURRET", +1}, "z": {"TURRET", -1},
				"s": {"CLAW", +1}, "x": {"CLAW", -1},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := jogKeyMap(tt.names)
			if len(got) != len(tt.want) {
				t.Errorf("got %d keys, want %d", len(got), len(tt.want))
			}
			for key, want := range tt.want {
				if got[key] != want {
					t.Errorf("key %q = %+v, want %+v", key, got[key], want)
				}
			}
		})
	}
}

func TestJogKeyMap_TooManyJoints(t *testing.T) {
	names := make([]robot.JointName, 12)
	for i := range names {
		names[i] = robot.JointName(string(rune('A' + i)))
	}
	got := jogKeyMap(names)
	if len(got) != 2*len(jogRows[0]) {
		t.Errorf("got %d keys, want %d", len(got), 2*len(jogRows[0]))
	}
	if got["."] != (jogKey{"I", -1}) {
		t.Errorf("last key = %+v, want I -1", got["."])
	}
}

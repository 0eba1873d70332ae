// Package robot describes the arm: its joints, their limits and wiring, and
// the configuration file that holds them.
package robot

// JointName identifies a joint in the arm.
type JointName string

// Joint names for the 6-DOF arm.
const (
	Base       JointName = "BASE"
	Shoulder   JointName = "SHOULDER"
	Elbow      JointName = "ELBOW"
	WristPitch JointName = "WRIST_PITCH"
	WristRoll  JointName = "WRIST_ROLL"
	Gripper    JointName = "GRIPPER"
)

// AllJoints returns all joint names in drive order (base first, gripper last).
func AllJoints() []JointName {
	return []JointName{
		Base,
		Shoulder,
		Elbow,
		WristPitch,
		WristRoll,
		Gripper,
	}
}

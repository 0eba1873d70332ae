package robot

import (
	"errors"
	"fmt"
)

// ErrUnknownJoint is returned when a joint name is not in the registry.
var ErrUnknownJoint = errors.New("unknown joint")

// ConfigError reports an invalid joint configuration. It is fatal: nothing
// runs on a registry that failed validation.
type ConfigError struct {
	Joint  JointName
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Joint == "" {
		return fmt.Sprintf("config: %s", e.Reason)
	}
	return fmt.Sprintf("config: joint %s: %s", e.Joint, e.Reason)
}

package robot

import (
	"fmt"
)

// Registry is the read-only set of joint configurations, in drive order.
type Registry struct {
	joints []JointConfig
	byName map[JointName]int
}

// NewRegistry validates configs and builds a registry from them. The order of
// configs is the order joints are driven in.
func NewRegistry(configs []JointConfig) (*Registry, error) {
	if len(configs) == 0 {
		return nil, &ConfigError{Reason: "no joints configured"}
	}

	r := &Registry{
		joints: make([]JointConfig, 0, len(configs)),
		byName: make(map[JointName]int, len(configs)),
	}
	channels := make(map[int]JointName, len(configs))

	for _, c := range configs {
		if c.Name == "" {
			return nil, &ConfigError{Reason: "joint without a name"}
		}
		if _, dup := r.byName[c.Name]; dup {
			return nil, &ConfigError{Joint: c.Name, Reason: "duplicate joint name"}
		}
		if c.MinPW < 0 || c.MinPW >= c.MaxPW {
			return nil, &ConfigError{Joint: c.Name, Reason: fmt.Sprintf("invalid limits [%d, %d]", c.MinPW, c.MaxPW)}
		}
		if other, dup := channels[c.Channel]; dup {
			return nil, &ConfigError{Joint: c.Name, Reason: fmt.Sprintf("channel %d already used by %s", c.Channel, other)}
		}
		if c.StepSize < 0 {
			return nil, &ConfigError{Joint: c.Name, Reason: "negative step size"}
		}
		if c.Interval < 0 {
			return nil, &ConfigError{Joint: c.Name, Reason: "negative interval"}
		}
		if c.Direction < -1 || c.Direction > 1 {
			return nil, &ConfigError{Joint: c.Name, Reason: fmt.Sprintf("direction must be -1 or 1, got %d", c.Direction)}
		}

		// Copy the gravity block so callers cannot mutate it after the fact.
		if c.Gravity != nil {
			g := *c.Gravity
			c.Gravity = &g
		}

		channels[c.Channel] = c.Name
		r.byName[c.Name] = len(r.joints)
		r.joints = append(r.joints, c)
	}

	return r, nil
}

// Get returns the configuration for a joint.
func (r *Registry) Get(name JointName) (JointConfig, error) {
	i, ok := r.byName[name]
	if !ok {
		return JointConfig{}, fmt.Errorf("%w: %s", ErrUnknownJoint, name)
	}
	return r.joints[i], nil
}

// Joints returns a copy of all joint configurations in drive order.
func (r *Registry) Joints() []JointConfig {
	out := make([]JointConfig, len(r.joints))
	copy(out, r.joints)
	return out
}

// Names returns joint names in drive order.
func (r *Registry) Names() []JointName {
	names := make([]JointName, len(r.joints))
	for i, c := range r.joints {
		names[i] = c.Name
	}
	return names
}

// Index returns the drive-order position of a joint.
func (r *Registry) Index(name JointName) (int, bool) {
	i, ok := r.byName[name]
	return i, ok
}

// Len returns the number of joints.
func (r *Registry) Len() int {
	return len(r.joints)
}

// MinInterval returns the shortest non-zero per-joint tick interval, which
// paces the scheduler.
func (r *Registry) MinInterval() Duration {
	var shortest Duration
	for _, c := range r.joints {
		if c.Interval > 0 && (shortest == 0 || c.Interval < shortest) {
			shortest = c.Interval
		}
	}
	return shortest
}

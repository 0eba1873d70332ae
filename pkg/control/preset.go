package control

import (
	"context"

	"github.com/gwillem/armctl/pkg/motion"
	"github.com/gwillem/armctl/pkg/robot"
)

// SelfTestSwing is how far the self-test moves each joint either way, in μs.
const SelfTestSwing = 300

const selfTestName = "self-test"

// selfTestSweep is the offset of each self-test leg from the joint's
// starting position.
var selfTestSweep = []int{SelfTestSwing, 0, -SelfTestSwing, 0}

// activeRamp is a preset move or self-test in progress. A ramp whose
// generation no longer matches the controller's has been superseded and
// writes nothing.
type activeRamp struct {
	ramp *motion.Ramp
	gen  uint64
	step int
	// legs are the moves still to run after this one.
	legs []robot.Preset
	done string
}

func (c *Controller) presetMove(cmd PresetMove) {
	if c.startRamp(cmd.Name, []robot.Preset{cmd.Targets}, cmd.Name+" position reached") {
		c.status("Moving to %s position...", cmd.Name)
	}
}

// selfTest sweeps every working joint in drive order, one joint at a time,
// and brings each back to where it started.
func (c *Controller) selfTest() {
	var legs []robot.Preset
	c.mu.RLock()
	for i, j := range c.joints {
		st := c.states[i]
		if st.Mode == motion.Faulted {
			continue
		}
		home := st.PulseWidth()
		for _, off := range selfTestSweep {
			legs = append(legs, robot.Preset{j.Name: home + off})
		}
	}
	c.mu.RUnlock()

	if len(legs) == 0 {
		c.status("Self-test: no working joints")
		return
	}
	if c.startRamp(selfTestName, legs, "Self-test complete") {
		c.announce(c.ramp.ramp, nil)
	}
}

// startRamp replaces the active ramp with a sequence of moves. The old ramp
// keeps going if the first move cannot be built.
func (c *Controller) startRamp(name string, legs []robot.Preset, done string) bool {
	ramp, err := c.buildRamp(name, legs[0])
	if err != nil {
		c.status("Error moving to %s position: %v", name, err)
		return false
	}

	c.gen++
	c.ramp = &activeRamp{ramp: ramp, gen: c.gen, legs: legs[1:], done: done}

	c.mu.Lock()
	c.preset = name
	c.engage(ramp)
	c.mu.Unlock()
	return true
}

func (c *Controller) buildRamp(name string, targets robot.Preset) (*motion.Ramp, error) {
	start := make(map[robot.JointName]float64, len(c.joints))
	c.mu.RLock()
	for i, j := range c.joints {
		start[j.Name] = c.states[i].Current
	}
	c.mu.RUnlock()
	return motion.NewRamp(c.reg, name, start, targets, c.opts.RampSteps)
}

// engage hands the ramp's joints to the ramp. Joints left easing from an
// earlier ramp hold where they are. Caller holds c.mu.
func (c *Controller) engage(ramp *motion.Ramp) {
	c.release()
	for _, name := range ramp.Joints() {
		i, _ := c.reg.Index(name)
		st := &c.states[i]
		if st.Mode == motion.Faulted {
			continue
		}
		target, _ := ramp.Target(name)
		st.Velocity = 0
		st.Settle = false
		st.Target = target
		st.Mode = motion.Easing
	}
}

// release stops every easing joint. Caller holds c.mu.
func (c *Controller) release() {
	for i := range c.states {
		if st := &c.states[i]; st.Mode == motion.Easing {
			st.Hold()
			st.Mode = motion.Idle
		}
	}
}

// stepRamp writes the next step of the active ramp, one joint at a time.
// A joint's position only advances once the write has gone through.
func (c *Controller) stepRamp(ctx context.Context) error {
	r := c.ramp
	if r.gen != c.gen {
		c.ramp = nil
		return nil
	}
	r.step++

	moving := 0
	for _, p := range r.ramp.At(r.step) {
		i, _ := c.reg.Index(p.Joint)

		c.mu.RLock()
		next := c.states[i]
		c.mu.RUnlock()
		if next.Mode != motion.Easing {
			continue
		}
		next.Current = p.PulseWidth

		moving++
		if pw := next.PulseWidth(); pw != c.written[i] {
			if moving > 1 {
				if err := c.pause(ctx, c.opts.InterJointDelay); err != nil {
					return err
				}
			}
			if err := c.dispatch(ctx, i, pw); err != nil {
				c.endRamp()
				c.status("Error moving to %s position: %v", r.ramp.Name, err)
				return err
			}
		}
		c.commit(i, next)
	}

	switch {
	case moving == 0:
		// Every joint was taken over by a jog or faulted.
		c.endRamp()
	case r.step >= r.ramp.Steps() && len(r.legs) > 0:
		c.nextLeg(r)
	case r.step >= r.ramp.Steps():
		c.endRamp()
		c.status("%s", r.done)
	}
	return nil
}

// nextLeg starts the following move of a multi-move ramp from wherever
// the joints ended up.
func (c *Controller) nextLeg(r *activeRamp) {
	ramp, err := c.buildRamp(r.ramp.Name, r.legs[0])
	if err != nil {
		c.endRamp()
		c.status("Error moving to %s position: %v", r.ramp.Name, err)
		return
	}
	prev := r.ramp
	r.ramp = ramp
	r.step = 0
	r.legs = r.legs[1:]

	c.mu.Lock()
	c.engage(ramp)
	c.mu.Unlock()
	c.announce(ramp, prev)
}

// announce reports the joint a self-test moves on to.
func (c *Controller) announce(ramp, prev *motion.Ramp) {
	if ramp.Name != selfTestName {
		return
	}
	joints := ramp.Joints()
	if len(joints) == 0 {
		return
	}
	if prev != nil {
		if was := prev.Joints(); len(was) > 0 && was[0] == joints[0] {
			return
		}
	}
	i, _ := c.reg.Index(joints[0])
	c.status("Testing %s (channel %d)...", joints[0], c.joints[i].Channel)
}

// endRamp drops the active ramp. Joints still easing hold where they are.
func (c *Controller) endRamp() {
	c.gen++
	c.ramp = nil

	c.mu.Lock()
	defer c.mu.Unlock()
	c.preset = ""
	c.release()
}

package control

import (
	"context"
	"fmt"
	"time"

	"github.com/gwillem/armctl/pkg/motion"
	"github.com/gwillem/armctl/pkg/pwm"
)

// StopState tracks the emergency-stop sequence.
type StopState int

const (
	// Running accepts commands.
	Running StopState = iota
	// Stopping is releasing servos and cooling down.
	Stopping
	// Reactivating is re-engaging servos at their last positions.
	Reactivating
)

func (s StopState) String() string {
	switch s {
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Reactivating:
		return "reactivating"
	default:
		return "unknown"
	}
}

func (c *Controller) setStop(s StopState) {
	c.mu.Lock()
	c.stop = s
	c.mu.Unlock()
}

// emergencyStop releases every servo one at a time, waits for the arm to
// settle, then re-engages each servo at its last position. Commands that
// arrive meanwhile are discarded. Faults are cleared: every joint is
// written again on the way back.
func (c *Controller) emergencyStop(ctx context.Context) error {
	c.setStop(Stopping)
	c.status("EMERGENCY STOP ACTIVATED")

	c.gen++
	c.ramp = nil
	c.mu.Lock()
	c.preset = ""
	for i := range c.states {
		c.states[i].Hold()
		c.states[i].Mode = motion.Idle
	}
	c.mu.Unlock()

	var lost bool
	for i, j := range c.joints {
		if i > 0 {
			if err := c.drain(ctx, c.opts.StopDelay); err != nil {
				return err
			}
		}
		if err := c.write(ctx, i, pwm.Disabled); err != nil {
			c.log("Warning: failed to disable %s: %v", j.Name, err)
			if pwm.IsConnectionLost(err) {
				lost = true
				break
			}
		}
	}
	c.log("All servos disabled")

	if err := c.drain(ctx, c.opts.CoolDown); err != nil {
		return err
	}

	c.setStop(Reactivating)
	c.status("Reactivating servos...")
	if lost {
		if err := c.reconnect(ctx); err != nil {
			return err
		}
	}

	for i := range c.joints {
		if i > 0 {
			if err := c.drain(ctx, c.opts.ReactivateDelay); err != nil {
				return err
			}
		}
		c.mu.Lock()
		st := &c.states[i]
		if st.Mode == motion.Faulted {
			st.Mode = motion.Idle
		}
		pw := st.PulseWidth()
		c.mu.Unlock()

		if err := c.dispatch(ctx, i, pw); err != nil && pwm.IsConnectionLost(err) {
			c.setStop(Running)
			return c.reconnect(ctx)
		}
	}

	c.setStop(Running)
	c.status("Ready")
	return nil
}

// drain waits for d, discarding every command that arrives meanwhile.
func (c *Controller) drain(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			return nil
		case cmd := <-c.cmds:
			c.discard(cmd)
		case <-c.stopCh:
			c.discard(EmergencyStop{})
		}
	}
}

func (c *Controller) discard(cmd Command) {
	c.log("Ignoring %s while %s", describe(cmd), c.stopState())
}

func describe(cmd Command) string {
	switch cmd := cmd.(type) {
	case JogStart:
		return fmt.Sprintf("jog %s %+d", cmd.Joint, cmd.Direction)
	case JogEnd:
		return fmt.Sprintf("jog end %s", cmd.Joint)
	case SetTarget:
		return fmt.Sprintf("move %s to %dμs", cmd.Joint, cmd.PulseWidth)
	case PresetMove:
		return fmt.Sprintf("preset %s", cmd.Name)
	case EmergencyStop:
		return "emergency stop"
	case SelfTest:
		return "self-test"
	case SetSpeedFactor:
		return fmt.Sprintf("speed %.2f", cmd.Factor)
	default:
		return fmt.Sprintf("%T", cmd)
	}
}

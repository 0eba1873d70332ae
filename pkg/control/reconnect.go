package control

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/gwillem/armctl/pkg/motion"
	"github.com/gwillem/armctl/pkg/pwm"
)

// reconnect handles a lost driver connection. Every joint counts as faulted
// until the driver is back; after the configured number of failed attempts
// the error is returned and the loop ends.
func (c *Controller) reconnect(ctx context.Context) error {
	c.status("Connection to driver lost")

	c.gen++
	c.ramp = nil

	faulted := make([]bool, len(c.states))
	c.mu.Lock()
	c.preset = ""
	for i := range c.states {
		st := &c.states[i]
		faulted[i] = st.Mode == motion.Faulted
		st.Hold()
		st.Mode = motion.Faulted
	}
	c.mu.Unlock()
	for i := range c.written {
		c.written[i] = -1
	}

	r, ok := c.ch.(pwm.Reconnector)
	if !ok {
		c.status("FATAL: driver does not support reconnecting")
		return pwm.ErrConnectionLost
	}

	var errs error
	for attempt := 1; attempt <= c.opts.ReconnectAttempts; attempt++ {
		if attempt > 1 {
			if err := c.pause(ctx, c.opts.ReconnectDelay); err != nil {
				return err
			}
		}
		err := r.Reconnect(ctx)
		if err == nil {
			c.mu.Lock()
			for i := range c.states {
				if !faulted[i] {
					c.states[i].Mode = motion.Idle
				}
			}
			c.mu.Unlock()
			c.monitor.Reset()
			c.status("Reconnected to driver")
			if err := c.readBack(ctx); err != nil {
				c.log("Warning: read back after reconnect: %v", err)
			}
			return nil
		}
		c.log("Reconnect attempt %d/%d failed: %v", attempt, c.opts.ReconnectAttempts, err)
		errs = multierr.Append(errs, err)
	}

	c.status("FATAL: could not reconnect to driver")
	return fmt.Errorf("%w: gave up after %d attempts: %v", pwm.ErrConnectionLost, c.opts.ReconnectAttempts, errs)
}

// readBack reads every healthy channel and re-engages any the driver
// reports as released. It stops at the first sign of a lost connection.
func (c *Controller) readBack(ctx context.Context) error {
	for i, j := range c.joints {
		c.mu.RLock()
		st := c.states[i]
		c.mu.RUnlock()
		if st.Mode == motion.Faulted {
			continue
		}

		pw, err := c.ch.PulseWidth(ctx, j.Channel)
		if err != nil {
			if pwm.IsConnectionLost(err) {
				return err
			}
			c.log("Warning: read %s: %v", j.Name, err)
			continue
		}
		if pw == pwm.Disabled {
			c.log("%s released by driver, re-engaging at %dμs", j.Name, st.PulseWidth())
			if err := c.dispatch(ctx, i, st.PulseWidth()); err != nil {
				if pwm.IsConnectionLost(err) {
					return err
				}
				c.log("Warning: re-engage %s: %v", j.Name, err)
			}
			continue
		}
		c.written[i] = pw
	}
	return nil
}

// checkConnection reads the arm back while no preset is running and
// reconnects if the driver has gone away.
func (c *Controller) checkConnection(ctx context.Context) error {
	if c.stopState() != Running || c.ramp != nil {
		return nil
	}
	if err := c.readBack(ctx); err != nil {
		return c.reconnect(ctx)
	}
	return nil
}

// Package pwm provides servo pulse-width drivers behind a common Channel
// interface.
package pwm

import (
	"context"
	"errors"
	"fmt"
)

// Disabled is the pulse width that stops driving a channel and lets the
// servo float.
const Disabled = 0

// ErrConnectionLost marks a failure of the transport to the driver rather
// than of a single channel.
var ErrConnectionLost = errors.New("connection to pwm driver lost")

// Channel writes servo pulse widths, in microseconds, to hardware channels.
type Channel interface {
	// SetPulseWidth drives a channel. A width of Disabled stops the pulse.
	SetPulseWidth(ctx context.Context, channel, us int) error
	// PulseWidth returns the last width driven on a channel, or Disabled.
	// It is for diagnostics and reactivation only, never feedback.
	PulseWidth(ctx context.Context, channel int) (int, error)
	Close() error
}

// Reconnector is implemented by channels that can re-establish a lost
// transport.
type Reconnector interface {
	Reconnect(ctx context.Context) error
}

// HardwareError reports a failed write or read on one channel.
type HardwareError struct {
	Channel int
	Op      string
	Err     error
}

func (e *HardwareError) Error() string {
	return fmt.Sprintf("pwm: %s channel %d: %v", e.Op, e.Channel, e.Err)
}

func (e *HardwareError) Unwrap() error {
	return e.Err
}

func writeErr(channel int, err error) error {
	return &HardwareError{Channel: channel, Op: "write", Err: err}
}

func readErr(channel int, err error) error {
	return &HardwareError{Channel: channel, Op: "read", Err: err}
}

// IsConnectionLost reports whether err means the whole driver is gone.
func IsConnectionLost(err error) bool {
	return errors.Is(err, ErrConnectionLost)
}

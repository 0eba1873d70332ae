package pwm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hipsterbrown/feetech-servo/feetech"
)

// Pulse-width window mapped onto the Feetech STS position range.
const (
	feetechMinUS  = 500
	feetechMaxUS  = 2500
	feetechMaxPos = 4095

	DefaultFeetechBaud = 1_000_000
)

// Feetech drives Feetech STS serial bus servos as if they were PWM servos.
// Channels are servo IDs; a pulse width in [500, 2500]μs maps linearly onto
// the servo's position range, and Disabled releases torque.
type Feetech struct {
	bus   *feetech.Bus
	group *feetech.ServoGroup

	mu      sync.Mutex
	servos  map[int]*feetech.Servo
	enabled map[int]bool
}

// OpenFeetech opens the bus on port and binds the servos with the given IDs.
// Every ID must answer a scan.
func OpenFeetech(ctx context.Context, port string, baud int, ids []int) (*Feetech, error) {
	if baud <= 0 {
		baud = DefaultFeetechBaud
	}
	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     port,
		BaudRate: baud,
		Protocol: feetech.ProtocolSTS,
		Timeout:  100 * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("open bus: %w: %v", ErrConnectionLost, err)
	}

	lo, hi := ids[0], ids[0]
	for _, id := range ids {
		lo, hi = min(lo, id), max(hi, id)
	}
	found, err := bus.Scan(ctx, lo, hi)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("scan bus: %w", err)
	}

	f := &Feetech{
		bus:     bus,
		group:   feetech.NewServoGroupByIDs(bus, ids...),
		servos:  make(map[int]*feetech.Servo, len(ids)),
		enabled: make(map[int]bool, len(ids)),
	}
	for _, s := range found {
		f.servos[s.ID] = feetech.NewServo(bus, s.ID, s.Model)
	}
	for _, id := range ids {
		if _, ok := f.servos[id]; !ok {
			bus.Close()
			return nil, fmt.Errorf("servo %d did not answer on %s", id, port)
		}
	}
	return f, nil
}

func (f *Feetech) SetPulseWidth(ctx context.Context, channel, us int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	servo, ok := f.servos[channel]
	if !ok {
		return writeErr(channel, fmt.Errorf("no servo with id %d", channel))
	}

	if us == Disabled {
		if err := servo.Disable(ctx); err != nil {
			return writeErr(channel, err)
		}
		f.enabled[channel] = false
		return nil
	}

	if !f.enabled[channel] {
		if err := servo.Enable(ctx); err != nil {
			return writeErr(channel, err)
		}
		f.enabled[channel] = true
	}
	if err := f.group.SetPositions(ctx, feetech.PositionMap{channel: usToPosition(us)}); err != nil {
		return writeErr(channel, err)
	}
	return nil
}

func (f *Feetech) PulseWidth(ctx context.Context, channel int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	servo, ok := f.servos[channel]
	if !ok {
		return 0, readErr(channel, fmt.Errorf("no servo with id %d", channel))
	}
	if !f.enabled[channel] {
		return Disabled, nil
	}
	pos, err := servo.Position(ctx)
	if err != nil {
		return 0, readErr(channel, err)
	}
	return positionToUS(pos), nil
}

func (f *Feetech) Close() error {
	return f.bus.Close()
}

func usToPosition(us int) int {
	us = max(feetechMinUS, min(us, feetechMaxUS))
	return (us - feetechMinUS) * feetechMaxPos / (feetechMaxUS - feetechMinUS)
}

func positionToUS(pos int) int {
	return feetechMinUS + pos*(feetechMaxUS-feetechMinUS)/feetechMaxPos
}

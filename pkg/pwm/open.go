package pwm

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/gwillem/armctl/pkg/robot"
)

// Connection retry policy shared by Dial and the controller's reconnect.
const (
	DefaultDialAttempts = 3
	DefaultDialDelay    = time.Second
)

// Open connects the driver described by cfg. channels lists the hardware
// channels the arm uses; drivers that must claim channels up front use it.
// Transport failures are retried per Dial.
func Open(ctx context.Context, cfg robot.DriverConfig, channels []int) (Channel, error) {
	return Dial(ctx, DefaultDialAttempts, DefaultDialDelay, func(ctx context.Context) (Channel, error) {
		return open(ctx, cfg, channels)
	})
}

func open(ctx context.Context, cfg robot.DriverConfig, channels []int) (Channel, error) {
	switch cfg.Kind {
	case robot.DriverPigpio, "":
		return DialPigpio(ctx, cfg.Address)
	case robot.DriverMaestro:
		if cfg.Port == "" {
			return nil, fmt.Errorf("maestro driver needs a serial port")
		}
		return OpenMaestro(cfg.Port, cfg.BaudRate)
	case robot.DriverFeetech:
		if cfg.Port == "" {
			return nil, fmt.Errorf("feetech driver needs a serial port")
		}
		if len(channels) == 0 {
			return nil, fmt.Errorf("feetech driver needs at least one servo id")
		}
		return OpenFeetech(ctx, cfg.Port, cfg.BaudRate, channels)
	case robot.DriverRPIO:
		return OpenRPIO(channels)
	case robot.DriverSim:
		return NewSim(), nil
	default:
		return nil, fmt.Errorf("unknown driver %q", cfg.Kind)
	}
}

// Dial calls connect up to attempts times, waiting delay between tries, for
// as long as it fails with ErrConnectionLost. Any other error is returned at
// once.
func Dial(ctx context.Context, attempts int, delay time.Duration, connect func(context.Context) (Channel, error)) (Channel, error) {
	if attempts < 1 {
		attempts = 1
	}
	var errs error
	for i := 1; i <= attempts; i++ {
		ch, err := connect(ctx)
		if err == nil {
			return ch, nil
		}
		if !IsConnectionLost(err) {
			return nil, err
		}
		errs = multierr.Append(errs, fmt.Errorf("attempt %d: %w", i, err))
		if i == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, multierr.Append(errs, ctx.Err())
		case <-time.After(delay):
		}
	}
	return nil, errs
}

package pwm

import (
	"context"
	"fmt"
	"sync"

	"github.com/stianeikeland/go-rpio/v4"
)

// Servo frame: 50Hz with one count per microsecond.
const (
	servoHz       = 50
	servoCycleLen = 20000
)

// rpioPWMPins are the BCM pins routed to the SoC's PWM peripheral.
var rpioPWMPins = map[int]bool{
	12: true,
	13: true,
	18: true,
	19: true,
}

// RPIO drives servos from the Raspberry Pi's hardware PWM peripheral via
// /dev/gpiomem. Only BCM 12, 13, 18 and 19 can be used, and 12/18 and 13/19
// share a PWM channel.
type RPIO struct {
	mu     sync.Mutex
	pins   map[int]rpio.Pin
	widths map[int]int
}

// OpenRPIO maps GPIO memory and switches the given pins to PWM mode.
func OpenRPIO(channels []int) (*RPIO, error) {
	shared := map[int]int{}
	for _, ch := range channels {
		if !rpioPWMPins[ch] {
			return nil, fmt.Errorf("gpio %d has no hardware PWM (use 12, 13, 18 or 19)", ch)
		}
		group := ch % 2
		if other, ok := shared[group]; ok {
			return nil, fmt.Errorf("gpio %d and %d share a PWM channel", other, ch)
		}
		shared[group] = ch
	}

	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("open gpio memory: %w", err)
	}

	r := &RPIO{
		pins:   make(map[int]rpio.Pin, len(channels)),
		widths: make(map[int]int, len(channels)),
	}
	for _, ch := range channels {
		pin := rpio.Pin(ch)
		pin.Mode(rpio.Pwm)
		pin.Freq(servoHz * servoCycleLen)
		pin.DutyCycle(0, servoCycleLen)
		r.pins[ch] = pin
	}
	return r, nil
}

func (r *RPIO) SetPulseWidth(ctx context.Context, channel, us int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	pin, ok := r.pins[channel]
	if !ok {
		return writeErr(channel, fmt.Errorf("gpio %d not opened for PWM", channel))
	}
	if us < 0 || us > servoCycleLen {
		return writeErr(channel, fmt.Errorf("pulse width %dμs does not fit a %dHz frame", us, servoHz))
	}
	pin.DutyCycle(uint32(us), servoCycleLen)
	r.widths[channel] = us
	return nil
}

func (r *RPIO) PulseWidth(ctx context.Context, channel int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pins[channel]; !ok {
		return 0, readErr(channel, fmt.Errorf("gpio %d not opened for PWM", channel))
	}
	return r.widths[channel], nil
}

func (r *RPIO) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for ch, pin := range r.pins {
		pin.DutyCycle(0, servoCycleLen)
		r.widths[ch] = Disabled
	}
	return rpio.Close()
}

package pwm

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

// pigpiod socket commands.
const (
	pigpioCmdServo      = 8
	pigpioCmdGetServoPW = 84
)

// pigpiod error codes that are expected in normal operation.
const (
	pigpioNotServoGPIO = -93
)

// DefaultPigpioAddr is where pigpiod listens by default.
const DefaultPigpioAddr = "localhost:8888"

const pigpioTimeout = 2 * time.Second

// Pigpio drives servo pulses on Raspberry Pi GPIOs through the pigpiod
// daemon's socket interface. Channels are BCM GPIO numbers.
type Pigpio struct {
	addr    string
	timeout time.Duration

	mu   sync.Mutex
	conn net.Conn
}

// DialPigpio connects to pigpiod at addr.
func DialPigpio(ctx context.Context, addr string) (*Pigpio, error) {
	if addr == "" {
		addr = DefaultPigpioAddr
	}
	p := &Pigpio{addr: addr, timeout: pigpioTimeout}
	if err := p.Reconnect(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

// Reconnect drops any existing socket and dials pigpiod again.
func (p *Pigpio) Reconnect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}

	d := net.Dialer{Timeout: p.timeout}
	conn, err := d.DialContext(ctx, "tcp", p.addr)
	if err != nil {
		return fmt.Errorf("dial pigpiod %s: %w: %v", p.addr, ErrConnectionLost, err)
	}
	p.conn = conn
	return nil
}

func (p *Pigpio) SetPulseWidth(ctx context.Context, channel, us int) error {
	res, err := p.command(ctx, pigpioCmdServo, uint32(channel), uint32(us))
	if err != nil {
		return writeErr(channel, err)
	}
	if res < 0 {
		return writeErr(channel, pigpioError(res))
	}
	return nil
}

func (p *Pigpio) PulseWidth(ctx context.Context, channel int) (int, error) {
	res, err := p.command(ctx, pigpioCmdGetServoPW, uint32(channel), 0)
	if err != nil {
		return 0, readErr(channel, err)
	}
	if res == pigpioNotServoGPIO {
		return Disabled, nil
	}
	if res < 0 {
		return 0, readErr(channel, pigpioError(res))
	}
	return int(res), nil
}

func (p *Pigpio) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return nil
	}
	err := p.conn.Close()
	p.conn = nil
	return err
}

// command sends one 16-byte request and reads the 16-byte reply, whose last
// word is the signed result.
func (p *Pigpio) command(ctx context.Context, cmd, p1, p2 uint32) (int32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil {
		return 0, ErrConnectionLost
	}

	deadline := time.Now().Add(p.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	p.conn.SetDeadline(deadline)

	var req [16]byte
	binary.LittleEndian.PutUint32(req[0:], cmd)
	binary.LittleEndian.PutUint32(req[4:], p1)
	binary.LittleEndian.PutUint32(req[8:], p2)

	if _, err := p.conn.Write(req[:]); err != nil {
		return 0, p.lost(err)
	}

	var resp [16]byte
	if _, err := io.ReadFull(p.conn, resp[:]); err != nil {
		return 0, p.lost(err)
	}
	if got := binary.LittleEndian.Uint32(resp[0:]); got != cmd {
		return 0, p.lost(fmt.Errorf("reply for command %d, sent %d", got, cmd))
	}
	return int32(binary.LittleEndian.Uint32(resp[12:])), nil
}

// lost closes the socket after a transport failure. Callers must hold mu.
func (p *Pigpio) lost(err error) error {
	p.conn.Close()
	p.conn = nil
	return fmt.Errorf("%w: %v", ErrConnectionLost, err)
}

type pigpioError int32

func (e pigpioError) Error() string {
	switch e {
	case -2:
		return "pigpio: bad user gpio"
	case -7:
		return "pigpio: pulse width out of range (500-2500 or 0)"
	case -41:
		return "pigpio: not permitted"
	default:
		return fmt.Sprintf("pigpio: error %d", int32(e))
	}
}

package pwm

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"
)

// Pololu Maestro compact-protocol commands.
const (
	maestroSetTarget   = 0x84
	maestroGetPosition = 0x90
)

const (
	DefaultMaestroBaud = 115200
	maestroReadTimeout = 200 * time.Millisecond
)

// Maestro drives a Pololu Maestro USB servo controller over its command
// port. Channels are Maestro channel numbers; targets are sent in quarter
// microseconds.
type Maestro struct {
	open func() (io.ReadWriteCloser, error)

	mu   sync.Mutex
	port io.ReadWriteCloser
}

// OpenMaestro opens the Maestro command port.
func OpenMaestro(portName string, baud int) (*Maestro, error) {
	if baud <= 0 {
		baud = DefaultMaestroBaud
	}
	open := func() (io.ReadWriteCloser, error) {
		port, err := serial.Open(portName, &serial.Mode{BaudRate: baud})
		if err != nil {
			return nil, fmt.Errorf("open %s: %w: %v", portName, ErrConnectionLost, err)
		}
		if err := port.SetReadTimeout(maestroReadTimeout); err != nil {
			port.Close()
			return nil, fmt.Errorf("set read timeout on %s: %w", portName, err)
		}
		return port, nil
	}
	return newMaestro(open)
}

func newMaestro(open func() (io.ReadWriteCloser, error)) (*Maestro, error) {
	port, err := open()
	if err != nil {
		return nil, err
	}
	return &Maestro{open: open, port: port}, nil
}

func (m *Maestro) SetPulseWidth(ctx context.Context, channel, us int) error {
	if channel < 0 || channel > 23 {
		return writeErr(channel, fmt.Errorf("maestro has no channel %d", channel))
	}
	target := uint16(us * 4)
	cmd := []byte{maestroSetTarget, byte(channel), lo7(target), hi7(target)}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.port == nil {
		return writeErr(channel, ErrConnectionLost)
	}
	if _, err := m.port.Write(cmd); err != nil {
		return writeErr(channel, m.lost(err))
	}
	return nil
}

func (m *Maestro) PulseWidth(ctx context.Context, channel int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.port == nil {
		return 0, readErr(channel, ErrConnectionLost)
	}
	if _, err := m.port.Write([]byte{maestroGetPosition, byte(channel)}); err != nil {
		return 0, readErr(channel, m.lost(err))
	}
	buf := make([]byte, 2)
	if _, err := io.ReadFull(m.port, buf); err != nil {
		return 0, readErr(channel, m.lost(err))
	}
	quarter := int(buf[0]) | int(buf[1])<<8
	return quarter / 4, nil
}

// Reconnect reopens the serial port.
func (m *Maestro) Reconnect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.port != nil {
		m.port.Close()
		m.port = nil
	}
	port, err := m.open()
	if err != nil {
		return err
	}
	m.port = port
	return nil
}

func (m *Maestro) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.port == nil {
		return nil
	}
	err := m.port.Close()
	m.port = nil
	return err
}

// lost drops the port after an I/O failure. Callers must hold mu.
func (m *Maestro) lost(err error) error {
	m.port.Close()
	m.port = nil
	return fmt.Errorf("%w: %v", ErrConnectionLost, err)
}

func lo7(x uint16) byte {
	return byte(x & 0x7f)
}

func hi7(x uint16) byte {
	return byte((x >> 7) & 0x7f)
}

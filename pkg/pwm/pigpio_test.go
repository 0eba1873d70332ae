package pwm

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"testing"
)

// fakePigpiod answers SERVO and GETSERVOPW like the daemon does.
type fakePigpiod struct {
	ln     net.Listener
	widths map[uint32]int32
	reject map[uint32]int32
}

func startFakePigpiod(t *testing.T, reject map[uint32]int32) *fakePigpiod {
	t.Helper()
	if reject == nil {
		reject = make(map[uint32]int32)
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	f := &fakePigpiod{ln: ln, widths: make(map[uint32]int32), reject: reject}
	t.Cleanup(func() { ln.Close() })
	go f.serve()
	return f
}

func (f *fakePigpiod) serve() {
	for {
		conn, err := f.ln.Accept()
		if err != nil {
			return
		}
		go f.handle(conn)
	}
}

func (f *fakePigpiod) handle(conn net.Conn) {
	defer conn.Close()
	for {
		var req [16]byte
		if _, err := io.ReadFull(conn, req[:]); err != nil {
			return
		}
		cmd := binary.LittleEndian.Uint32(req[0:])
		p1 := binary.LittleEndian.Uint32(req[4:])
		p2 := binary.LittleEndian.Uint32(req[8:])

		var res int32
		switch cmd {
		case pigpioCmdServo:
			if code, ok := f.reject[p1]; ok {
				res = code
			} else {
				f.widths[p1] = int32(p2)
			}
		case pigpioCmdGetServoPW:
			w, ok := f.widths[p1]
			if !ok || w == 0 {
				res = pigpioNotServoGPIO
			} else {
				res = w
			}
		}

		var resp [16]byte
		copy(resp[:12], req[:12])
		binary.LittleEndian.PutUint32(resp[12:], uint32(res))
		if _, err := conn.Write(resp[:]); err != nil {
			return
		}
	}
}

func TestPigpio_SetAndRead(t *testing.T) {
	f := startFakePigpiod(t, nil)
	ctx := context.Background()

	p, err := DialPigpio(ctx, f.ln.Addr().String())
	if err != nil {
		t.Fatalf("DialPigpio: %v", err)
	}
	defer p.Close()

	if err := p.SetPulseWidth(ctx, 17, 1500); err != nil {
		t.Fatalf("SetPulseWidth: %v", err)
	}
	got, err := p.PulseWidth(ctx, 17)
	if err != nil {
		t.Fatalf("PulseWidth: %v", err)
	}
	if got != 1500 {
		t.Errorf("PulseWidth(17) = %d, want 1500", got)
	}

	if err := p.SetPulseWidth(ctx, 17, Disabled); err != nil {
		t.Fatal(err)
	}
	if got, _ := p.PulseWidth(ctx, 17); got != Disabled {
		t.Errorf("PulseWidth after disable = %d, want 0", got)
	}
}

func TestPigpio_DaemonError(t *testing.T) {
	f := startFakePigpiod(t, map[uint32]int32{40: -2})
	ctx := context.Background()

	p, err := DialPigpio(ctx, f.ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	err = p.SetPulseWidth(ctx, 40, 1500)
	var hwErr *HardwareError
	if !errors.As(err, &hwErr) || hwErr.Channel != 40 {
		t.Fatalf("error = %v, want HardwareError on channel 40", err)
	}
	if IsConnectionLost(err) {
		t.Error("daemon error reported as connection loss")
	}
}

func TestPigpio_ConnectionLost(t *testing.T) {
	f := startFakePigpiod(t, nil)
	ctx := context.Background()

	p, err := DialPigpio(ctx, f.ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	// Kill the socket from our side to simulate the daemon going away.
	p.mu.Lock()
	p.conn.Close()
	p.mu.Unlock()

	err = p.SetPulseWidth(ctx, 17, 1500)
	if !IsConnectionLost(err) {
		t.Fatalf("error = %v, want ErrConnectionLost", err)
	}
	if err := p.SetPulseWidth(ctx, 17, 1500); !IsConnectionLost(err) {
		t.Errorf("second write error = %v, want ErrConnectionLost", err)
	}

	if err := p.Reconnect(ctx); err != nil {
		t.Fatalf("Reconnect: %v", err)
	}
	if err := p.SetPulseWidth(ctx, 17, 1600); err != nil {
		t.Errorf("write after reconnect: %v", err)
	}
}

func TestDialPigpio_Refused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	if _, err := DialPigpio(context.Background(), addr); !IsConnectionLost(err) {
		t.Errorf("error = %v, want ErrConnectionLost", err)
	}
}

package pwm

import (
	"context"
	"errors"
	"testing"
)

func TestSim_RecordsCalls(t *testing.T) {
	s := NewSim()
	ctx := context.Background()

	for _, w := range []int{1500, 1510, Disabled} {
		if err := s.SetPulseWidth(ctx, 4, w); err != nil {
			t.Fatal(err)
		}
	}
	s.SetPulseWidth(ctx, 5, 900)

	got := s.CallsFor(4)
	want := []int{1500, 1510, 0}
	if len(got) != len(want) {
		t.Fatalf("CallsFor(4) = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("CallsFor(4)[%d] = %d, want %d", i, got[i], want[i])
		}
	}
	if len(s.Calls()) != 4 {
		t.Errorf("Calls() has %d entries, want 4", len(s.Calls()))
	}
	if w, _ := s.PulseWidth(ctx, 5); w != 900 {
		t.Errorf("PulseWidth(5) = %d, want 900", w)
	}
	if w, _ := s.PulseWidth(ctx, 9); w != Disabled {
		t.Errorf("PulseWidth of untouched channel = %d, want 0", w)
	}
}

func TestSim_Fail(t *testing.T) {
	s := NewSim()
	boom := errors.New("stalled")
	s.Fail(2, boom)

	err := s.SetPulseWidth(context.Background(), 2, 1500)
	var hwErr *HardwareError
	if !errors.As(err, &hwErr) || hwErr.Channel != 2 || !errors.Is(err, boom) {
		t.Fatalf("error = %v, want HardwareError wrapping boom on channel 2", err)
	}

	s.Fail(2, nil)
	if err := s.SetPulseWidth(context.Background(), 2, 1500); err != nil {
		t.Errorf("write after clearing failure: %v", err)
	}
}

func TestSim_DisconnectReconnect(t *testing.T) {
	s := NewSim()
	ctx := context.Background()
	s.Disconnect(1)

	if err := s.SetPulseWidth(ctx, 1, 1500); !IsConnectionLost(err) {
		t.Fatalf("error = %v, want ErrConnectionLost", err)
	}
	if err := s.Reconnect(ctx); err == nil {
		t.Fatal("first reconnect should fail")
	}
	if err := s.Reconnect(ctx); err != nil {
		t.Fatalf("second reconnect: %v", err)
	}
	if err := s.SetPulseWidth(ctx, 1, 1500); err != nil {
		t.Errorf("write after reconnect: %v", err)
	}
	if s.Reconnects() != 2 {
		t.Errorf("Reconnects() = %d, want 2", s.Reconnects())
	}
}

func TestFeetechMapping(t *testing.T) {
	tests := []struct {
		us  int
		pos int
	}{
		{500, 0},
		{2500, 4095},
		{1500, 2047},
		{100, 0},
		{3000, 4095},
	}
	for _, tt := range tests {
		if got := usToPosition(tt.us); got != tt.pos {
			t.Errorf("usToPosition(%d) = %d, want %d", tt.us, got, tt.pos)
		}
	}
	if got := positionToUS(4095); got != 2500 {
		t.Errorf("positionToUS(4095) = %d, want 2500", got)
	}
	if got := positionToUS(0); got != 500 {
		t.Errorf("positionToUS(0) = %d, want 500", got)
	}
}

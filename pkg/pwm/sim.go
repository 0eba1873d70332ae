package pwm

import (
	"context"
	"sync"
	"time"
)

// Call is one recorded write.
type Call struct {
	Channel    int
	PulseWidth int
	At         time.Time
}

// Sim is an in-memory Channel that records every write. It is used for
// dry runs and tests.
type Sim struct {
	mu           sync.Mutex
	widths       map[int]int
	calls        []Call
	failures     map[int]error
	disconnected bool
	reconnects   int
	failReconn   int
}

// NewSim returns an empty simulator with every channel disabled.
func NewSim() *Sim {
	return &Sim{
		widths:   make(map[int]int),
		failures: make(map[int]error),
	}
}

func (s *Sim) SetPulseWidth(ctx context.Context, channel, us int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disconnected {
		return writeErr(channel, ErrConnectionLost)
	}
	if err := s.failures[channel]; err != nil {
		return writeErr(channel, err)
	}
	s.widths[channel] = us
	s.calls = append(s.calls, Call{Channel: channel, PulseWidth: us, At: time.Now()})
	return nil
}

func (s *Sim) PulseWidth(ctx context.Context, channel int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disconnected {
		return 0, readErr(channel, ErrConnectionLost)
	}
	return s.widths[channel], nil
}

func (s *Sim) Close() error {
	return nil
}

// Fail makes every later write to channel fail with err. A nil err clears
// the failure.
func (s *Sim) Fail(channel int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, channel)
		return
	}
	s.failures[channel] = err
}

// Disconnect makes every call fail with ErrConnectionLost until a
// successful Reconnect. The next failReconnects reconnection attempts fail.
func (s *Sim) Disconnect(failReconnects int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnected = true
	s.failReconn = failReconnects
}

// Reconnect implements Reconnector.
func (s *Sim) Reconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reconnects++
	if s.failReconn > 0 {
		s.failReconn--
		return ErrConnectionLost
	}
	s.disconnected = false
	return nil
}

// Reconnects returns how many reconnection attempts were made.
func (s *Sim) Reconnects() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconnects
}

// Calls returns a copy of the write log.
func (s *Sim) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallsFor returns the widths written to one channel, in order.
func (s *Sim) CallsFor(channel int) []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []int
	for _, c := range s.calls {
		if c.Channel == channel {
			out = append(out, c.PulseWidth)
		}
	}
	return out
}

// Reset clears the write log.
func (s *Sim) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}

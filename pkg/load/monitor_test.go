package load

import (
	"testing"
	"time"
)

func TestMonitor_FlagsAfterLimit(t *testing.T) {
	m := NewMonitor(0, 0)
	now := time.Unix(1000, 0)

	// The first dispatch has nothing to compare against.
	if changed, stable := m.Observe(now); changed || !stable {
		t.Fatalf("first Observe = (%v, %v), want (false, true)", changed, stable)
	}

	for i := 1; i <= 20; i++ {
		now = now.Add(50 * time.Millisecond)
		if changed, stable := m.Observe(now); changed || !stable {
			t.Fatalf("rapid dispatch %d flipped stability early", i)
		}
	}

	now = now.Add(50 * time.Millisecond)
	changed, stable := m.Observe(now)
	if !changed || stable {
		t.Fatalf("21st rapid dispatch = (%v, %v), want (true, false)", changed, stable)
	}
	if m.Multiplier() != UnstableMultiplier {
		t.Errorf("Multiplier() = %v, want %v", m.Multiplier(), UnstableMultiplier)
	}

	// Staying rapid does not notify again.
	now = now.Add(10 * time.Millisecond)
	if changed, _ := m.Observe(now); changed {
		t.Error("repeated rapid dispatch notified twice")
	}

	// The first slow gap clears it.
	now = now.Add(100 * time.Millisecond)
	changed, stable = m.Observe(now)
	if !changed || !stable {
		t.Fatalf("slow dispatch = (%v, %v), want (true, true)", changed, stable)
	}
	if m.Multiplier() != 1 {
		t.Errorf("Multiplier() = %v, want 1", m.Multiplier())
	}
}

func TestMonitor_SlowGapResetsCounter(t *testing.T) {
	m := NewMonitor(100*time.Millisecond, 20)
	now := time.Unix(1000, 0)
	m.Observe(now)

	for round := 0; round < 3; round++ {
		for i := 0; i < 20; i++ {
			now = now.Add(99 * time.Millisecond)
			m.Observe(now)
		}
		now = now.Add(150 * time.Millisecond)
		m.Observe(now)
	}

	if !m.Stable() {
		t.Error("monitor flagged instability although no run exceeded the limit")
	}
}

func TestMonitor_Reset(t *testing.T) {
	m := NewMonitor(time.Second, 2)
	now := time.Unix(0, 1)
	for i := 0; i < 5; i++ {
		m.Observe(now)
		now = now.Add(time.Millisecond)
	}
	if m.Stable() {
		t.Fatal("expected instability")
	}
	m.Reset()
	if !m.Stable() {
		t.Error("Reset did not restore stability")
	}
}

package poller

import (
	"testing"
	"time"
)

func TestBackoff_SuccessReturnsFloor(t *testing.T) {
	b := NewBackoff(5*time.Second, 120*time.Second, 2*time.Second)

	if d := b.NextDelay(true); d != 5*time.Second {
		t.Errorf("success delay = %v, want 5s", d)
	}
	if b.Errors() != 0 {
		t.Errorf("errors = %d after success, want 0", b.Errors())
	}
}

func TestBackoff_FailuresNonDecreasingUntilCeiling(t *testing.T) {
	b := NewBackoff(5*time.Second, 120*time.Second, 2*time.Second)

	prev := time.Duration(0)
	for i := 0; i < 10; i++ {
		d := b.NextDelay(false)
		if d < prev {
			t.Fatalf("delay decreased: %v after %v (failure %d)", d, prev, i+1)
		}
		if d > 120*time.Second {
			t.Fatalf("delay %v exceeds ceiling", d)
		}
		prev = d
	}
	if prev != 120*time.Second {
		t.Errorf("delay after 10 failures = %v, want ceiling 120s", prev)
	}
}

func TestBackoff_JitterBounded(t *testing.T) {
	b := NewBackoff(5*time.Second, 120*time.Second, 2*time.Second)

	// First failure: floor + jitter in [0, 2s).
	d := b.NextDelay(false)
	if d < 5*time.Second || d >= 7*time.Second {
		t.Errorf("first failure delay = %v, want [5s, 7s)", d)
	}
}

func TestBackoff_SuccessResetsAfterFailures(t *testing.T) {
	b := NewBackoff(5*time.Second, 120*time.Second, 0)

	for i := 0; i < 4; i++ {
		b.NextDelay(false)
	}
	if d := b.NextDelay(true); d != 5*time.Second {
		t.Errorf("delay after reset = %v, want floor", d)
	}
	// The exponent restarted too.
	if d := b.NextDelay(false); d != 5*time.Second {
		t.Errorf("first failure after reset = %v, want floor (no jitter)", d)
	}
}

func TestBackoff_SaturateForcesCeiling(t *testing.T) {
	b := NewBackoff(5*time.Second, 120*time.Second, 2*time.Second)

	if d := b.Saturate(); d != 120*time.Second {
		t.Errorf("Saturate = %v, want ceiling", d)
	}
	if b.Errors() != 1 {
		t.Errorf("Saturate should count as a failure, errors = %d", b.Errors())
	}
}

func TestBackoff_ZeroConfigDefaults(t *testing.T) {
	b := NewBackoff(0, 0, -1)
	if b.Floor() != 5*time.Second {
		t.Errorf("default floor = %v, want 5s", b.Floor())
	}
	if d := b.NextDelay(false); d != 5*time.Second {
		t.Errorf("ceiling clamped to floor, got %v", d)
	}
}

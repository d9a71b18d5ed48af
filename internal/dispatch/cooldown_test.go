package dispatch

import (
	"testing"
	"time"
)

func newTestTracker(start time.Time) (*CooldownTracker, *time.Time) {
	now := start
	t := NewCooldownTracker()
	t.now = func() time.Time { return now }
	return t, &now
}

func TestCooldownFirstUseAllowed(t *testing.T) {
	tr, _ := newTestTracker(time.Unix(1000, 0))
	ok, rem := tr.TryConsume("u1", "ping", 5)
	if !ok || rem != 0 {
		t.Fatalf("first use: ok=%v rem=%d", ok, rem)
	}
}

func TestCooldownBoundary(t *testing.T) {
	start := time.Unix(1000, 0)
	tr, now := newTestTracker(start)
	tr.TryConsume("u1", "ping", 5)

	*now = start.Add(5*time.Second - time.Millisecond)
	if ok, rem := tr.TryConsume("u1", "ping", 5); ok || rem != 1 {
		t.Fatalf("just before window: ok=%v rem=%d, want denied with 1", ok, rem)
	}

	*now = start.Add(5 * time.Second)
	if ok, _ := tr.TryConsume("u1", "ping", 5); !ok {
		t.Fatal("exactly at window end should be allowed")
	}
}

func TestCooldownRemainingRoundsUp(t *testing.T) {
	start := time.Unix(1000, 0)
	tr, now := newTestTracker(start)
	tr.TryConsume("u1", "ping", 3)

	*now = start.Add(1 * time.Second)
	if ok, rem := tr.TryConsume("u1", "ping", 3); ok || rem != 2 {
		t.Fatalf("ok=%v rem=%d, want denied with 2", ok, rem)
	}

	*now = start.Add(2500 * time.Millisecond)
	if ok, rem := tr.TryConsume("u1", "ping", 3); ok || rem != 1 {
		t.Fatalf("ok=%v rem=%d, want denied with 1", ok, rem)
	}
}

func TestCooldownPerSenderPerCommand(t *testing.T) {
	tr, _ := newTestTracker(time.Unix(1000, 0))
	tr.TryConsume("u1", "ping", 60)

	if ok, _ := tr.TryConsume("u2", "ping", 60); !ok {
		t.Fatal("other sender should not share the cooldown")
	}
	if ok, _ := tr.TryConsume("u1", "help", 60); !ok {
		t.Fatal("other command should not share the cooldown")
	}
	if ok, _ := tr.TryConsume("u1", "ping", 60); ok {
		t.Fatal("same sender+command should still be cooling down")
	}
}

func TestCooldownZeroDisables(t *testing.T) {
	tr, _ := newTestTracker(time.Unix(1000, 0))
	for i := 0; i < 3; i++ {
		if ok, _ := tr.TryConsume("u1", "ping", 0); !ok {
			t.Fatal("zero cooldown should always allow")
		}
	}
	if tr.Len() != 0 {
		t.Fatalf("zero cooldown should not record stamps, len=%d", tr.Len())
	}
}

func TestCooldownStampAtInvocation(t *testing.T) {
	start := time.Unix(1000, 0)
	tr, now := newTestTracker(start)
	tr.TryConsume("u1", "slow", 3)

	// A long-running handler does not push the window out: three seconds
	// after the stamp the command is usable regardless of execution time.
	*now = start.Add(3 * time.Second)
	if ok, _ := tr.TryConsume("u1", "slow", 3); !ok {
		t.Fatal("window should be measured from invocation time")
	}
}

func TestSweepDropsStale(t *testing.T) {
	start := time.Unix(1000, 0)
	tr, now := newTestTracker(start)
	tr.TryConsume("u1", "ping", 5)
	tr.TryConsume("u2", "ping", 5)

	*now = start.Add(30 * time.Minute)
	tr.TryConsume("u3", "ping", 5)

	removed := tr.Sweep(10 * time.Minute)
	if removed != 2 {
		t.Fatalf("removed = %d, want 2", removed)
	}
	if tr.Len() != 1 {
		t.Fatalf("len = %d, want 1", tr.Len())
	}
}

package dispatch

import (
	"math"
	"sync"
	"time"
)

// sweepInterval controls how often stale cooldown stamps are purged.
const sweepInterval = 10 * time.Minute

// CooldownTracker enforces per-sender-per-command cooldowns. The stamp is
// taken when the command is invoked, not when it finishes, so a slow handler
// does not extend its own cooldown.
type CooldownTracker struct {
	mu   sync.Mutex
	last map[string]time.Time
	now  func() time.Time
	stop chan struct{}
	once sync.Once
}

func NewCooldownTracker() *CooldownTracker {
	return &CooldownTracker{
		last: make(map[string]time.Time),
		now:  time.Now,
		stop: make(chan struct{}),
	}
}

func cooldownKey(senderID, command string) string {
	return senderID + "|" + command
}

// TryConsume checks whether sender may run command with the given cooldown.
// On success it records the current time and returns (true, 0). On failure it
// returns the remaining whole seconds, rounded up and never below zero.
// Bot admins bypass cooldowns entirely; callers handle that before this.
func (t *CooldownTracker) TryConsume(senderID, command string, cooldownSeconds int) (ok bool, remaining int) {
	if cooldownSeconds <= 0 {
		return true, 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	key := cooldownKey(senderID, command)
	if prev, seen := t.last[key]; seen {
		elapsed := now.Sub(prev)
		window := time.Duration(cooldownSeconds) * time.Second
		if elapsed < window {
			rem := int(math.Ceil((window - elapsed).Seconds()))
			if rem < 0 {
				rem = 0
			}
			return false, rem
		}
	}
	t.last[key] = now
	return true, 0
}

// Sweep drops stamps older than maxAge and returns how many were removed.
func (t *CooldownTracker) Sweep(maxAge time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().Add(-maxAge)
	removed := 0
	for key, stamp := range t.last {
		if stamp.Before(cutoff) {
			delete(t.last, key)
			removed++
		}
	}
	return removed
}

// StartSweeper runs a background ticker that periodically sweeps stamps
// older than maxAge. Stop terminates it.
func (t *CooldownTracker) StartSweeper(maxAge time.Duration) {
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				t.Sweep(maxAge)
			case <-t.stop:
				return
			}
		}
	}()
}

func (t *CooldownTracker) Stop() {
	t.once.Do(func() { close(t.stop) })
}

// Len reports the number of live stamps. Used by the dashboard.
func (t *CooldownTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.last)
}

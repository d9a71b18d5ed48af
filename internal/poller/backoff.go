package poller

import (
	"math/rand/v2"
	"sync"
	"time"
)

// Backoff tracks consecutive fetch failures and computes the delay before
// the next poll. Success returns the floor and resets the error count;
// failure doubles the delay from the floor, plus bounded jitter, capped at
// the ceiling.
type Backoff struct {
	mu      sync.Mutex
	floor   time.Duration
	ceiling time.Duration
	jitter  time.Duration
	errors  int
}

func NewBackoff(floor, ceiling, jitter time.Duration) *Backoff {
	if floor <= 0 {
		floor = 5 * time.Second
	}
	if ceiling < floor {
		ceiling = floor
	}
	if jitter < 0 {
		jitter = 0
	}
	return &Backoff{floor: floor, ceiling: ceiling, jitter: jitter}
}

// NextDelay records the outcome of a fetch and returns the delay to wait
// before the next one.
func (b *Backoff) NextDelay(success bool) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	if success {
		b.errors = 0
		return b.floor
	}

	b.errors++
	d := b.floor << (b.errors - 1)
	// Shift overflow or ceiling hit: saturate.
	if d <= 0 || d >= b.ceiling {
		return b.ceiling
	}
	if b.jitter > 0 {
		d += time.Duration(rand.Int64N(int64(b.jitter)))
	}
	if d > b.ceiling {
		return b.ceiling
	}
	return d
}

// Saturate counts a failure and forces the ceiling delay for the next
// cycle. Used when the platform signals rate limiting.
func (b *Backoff) Saturate() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.errors++
	return b.ceiling
}

// Errors returns the current consecutive failure count.
func (b *Backoff) Errors() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.errors
}

// Floor returns the configured minimum delay.
func (b *Backoff) Floor() time.Duration { return b.floor }

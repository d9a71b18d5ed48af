package poller

import "sync"

// DedupCache is a bounded set of already-delivered event IDs. Eviction is
// FIFO by insertion order: when the cap is exceeded the oldest half is
// dropped, keeping the most recently inserted half. This is a best-effort
// guard for one process lifetime, not an exactly-once guarantee.
type DedupCache struct {
	mu    sync.Mutex
	cap   int
	set   map[string]struct{}
	order []string
}

const defaultDedupCap = 1000

func NewDedupCache(capacity int) *DedupCache {
	if capacity < 2 {
		capacity = defaultDedupCap
	}
	return &DedupCache{
		cap: capacity,
		set: make(map[string]struct{}, capacity),
	}
}

// Seen reports whether id has been remembered and not yet evicted.
func (c *DedupCache) Seen(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.set[id]
	return ok
}

// Remember inserts id, evicting the oldest half when the cap is exceeded.
func (c *DedupCache) Remember(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.set[id]; ok {
		return
	}
	c.set[id] = struct{}{}
	c.order = append(c.order, id)

	if len(c.order) > c.cap {
		keep := c.cap / 2
		drop := c.order[:len(c.order)-keep]
		for _, old := range drop {
			delete(c.set, old)
		}
		kept := make([]string, keep)
		copy(kept, c.order[len(c.order)-keep:])
		c.order = kept
	}
}

// Len returns the current number of cached IDs.
func (c *DedupCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}

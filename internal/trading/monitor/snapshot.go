package monitor

import (
	"sync"
	"sync/atomic"

	"arb_monitor/internal/core"
)

// SnapshotCell holds the latest published snapshot.
// One refresher writes it; any number of readers load it without locking.
type SnapshotCell struct {
	ptr atomic.Pointer[core.Snapshot]

	mu   sync.Mutex
	subs map[chan struct{}]struct{}
}

// NewSnapshotCell creates an empty cell
func NewSnapshotCell() *SnapshotCell {
	return &SnapshotCell{subs: make(map[chan struct{}]struct{})}
}

// Load returns the latest snapshot, or nil before the first publish
func (c *SnapshotCell) Load() *core.Snapshot {
	return c.ptr.Load()
}

// Store publishes a snapshot and signals subscribers
func (c *SnapshotCell) Store(s *core.Snapshot) {
	c.ptr.Store(s)

	c.mu.Lock()
	defer c.mu.Unlock()
	for ch := range c.subs {
		// A pending signal already tells the reader to Load
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Subscribe returns a channel signalled after every Store and a function to unsubscribe.
// Signals coalesce: readers call Load to get the newest snapshot.
func (c *SnapshotCell) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	c.mu.Lock()
	c.subs[ch] = struct{}{}
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, ch)
			c.mu.Unlock()
		})
	}
}

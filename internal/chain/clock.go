package chain

import (
	"fmt"
	"sync"
)

// Clock tracks the ledger's current block height. The ledger is its own
// execution environment, so height advances under journal control rather
// than by observing a remote chain.
type Clock struct {
	mu     sync.RWMutex
	height uint64
}

// NewClock creates a clock starting at the given height.
func NewClock(height uint64) *Clock {
	return &Clock{height: height}
}

// Current returns the current block height.
func (c *Clock) Current() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.height
}

// Advance moves the clock forward by n blocks.
func (c *Clock) Advance(n uint64) {
	c.mu.Lock()
	c.height += n
	c.mu.Unlock()
}

// SetHeight moves the clock to an absolute height. Height never goes
// backwards; journal entries must be totally ordered.
func (c *Clock) SetHeight(height uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if height < c.height {
		return fmt.Errorf("height moves backwards: %d < %d", height, c.height)
	}
	c.height = height
	return nil
}

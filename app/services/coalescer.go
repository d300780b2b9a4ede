package services

import (
	"context"
	"sync"
	"time"
)

// Flush triggers
const (
	TriggerImmediate = "immediate"
	TriggerTick      = "tick"
)

// FlushFunc receives one key's values in arrival order. It is called with the
// coalescer lock held, so it must hand the batch off without blocking.
type FlushFunc[K comparable, V any] func(key K, values []V, trigger string)

// Coalescer collects values per key. An urgent value flushes its key at once
// together with everything queued before it; other values wait for Tick.
// A key's slice is detached in the same critical section that flushes it, so
// values added later always start a new batch.
type Coalescer[K comparable, V any] struct {
	mu      sync.Mutex
	pending map[K][]V
	count   int
	flush   FlushFunc[K, V]
}

// NewCoalescer creates a coalescer that hands batches to flush
func NewCoalescer[K comparable, V any](flush FlushFunc[K, V]) *Coalescer[K, V] {
	return &Coalescer[K, V]{
		pending: make(map[K][]V),
		flush:   flush,
	}
}

// Add appends v to key's batch and flushes the batch when urgent
func (c *Coalescer[K, V]) Add(key K, v V, urgent bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pending[key] = append(c.pending[key], v)
	c.count++
	if urgent {
		c.flushLocked(key, TriggerImmediate)
	}
}

// Tick flushes every non-empty batch
func (c *Coalescer[K, V]) Tick() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.pending {
		c.flushLocked(key, TriggerTick)
	}
}

// Pending returns the number of values waiting for a flush
func (c *Coalescer[K, V]) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// Run calls Tick every interval until ctx is done, then flushes once more
func (c *Coalescer[K, V]) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.Tick()
			return
		case <-ticker.C:
			c.Tick()
		}
	}
}

func (c *Coalescer[K, V]) flushLocked(key K, trigger string) {
	values := c.pending[key]
	delete(c.pending, key)
	if len(values) == 0 {
		return
	}
	c.count -= len(values)
	c.flush(key, values, trigger)
}

// Package coalesce batches bursts of server-push instructions into discrete
// delivery ticks so observers (typically UI state updates) are not invoked
// once per network frame. The trade is explicit: up to one window of added
// latency per event in exchange for far fewer observer calls during bursts.
package coalesce

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultWindow is the flush delay armed by the first event of a batch.
const DefaultWindow = 30 * time.Millisecond

// Coalescer accumulates payloads between flush ticks. Delivery is strictly
// in arrival order; the observer set is snapshotted per flush, so observers
// subscribing during delivery never receive the in-flight batch.
type Coalescer struct {
	window time.Duration
	logger *slog.Logger

	mu         sync.Mutex
	pending    []string
	flushTimer *time.Timer
	nextSubID  int
	subs       []subscriber

	// deliverMu serializes flushes so a slow observer on batch N can never
	// see batch N+1 interleave with it.
	deliverMu sync.Mutex
}

type subscriber struct {
	id int
	fn func(payload string)
}

// New creates a coalescer. window <= 0 selects DefaultWindow.
func New(window time.Duration, logger *slog.Logger) *Coalescer {
	if logger == nil {
		logger = slog.Default()
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Coalescer{
		window: window,
		logger: logger,
	}
}

// Add appends a payload to the pending batch and arms the flush timer if
// none is armed. Synchronous and non-blocking.
func (c *Coalescer) Add(payload string) {
	c.mu.Lock()
	c.pending = append(c.pending, payload)
	if c.flushTimer == nil {
		c.flushTimer = time.AfterFunc(c.window, c.flush)
	}
	c.mu.Unlock()
}

// Subscribe registers an observer. The returned func unregisters; calling
// it more than once is harmless.
func (c *Coalescer) Subscribe(fn func(payload string)) func() {
	c.mu.Lock()
	c.nextSubID++
	id := c.nextSubID
	c.subs = append(c.subs, subscriber{id: id, fn: fn})
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, s := range c.subs {
			if s.id == id {
				c.subs = append(c.subs[:i], c.subs[i+1:]...)
				return
			}
		}
	}
}

// Stop cancels any armed flush and discards the pending batch.
func (c *Coalescer) Stop() {
	c.mu.Lock()
	if c.flushTimer != nil {
		c.flushTimer.Stop()
		c.flushTimer = nil
	}
	c.pending = nil
	c.mu.Unlock()
}

// Pending returns the number of payloads awaiting flush.
func (c *Coalescer) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// flush takes the batch and an observer snapshot under the lock, then
// delivers outside it. Events arriving mid-delivery go into a fresh batch
// with its own timer; the in-flight batch is never mutated. deliverMu is
// taken before the batch so flushes deliver in the order their timers
// fired, one batch at a time.
func (c *Coalescer) flush() {
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()

	c.mu.Lock()
	batch := c.pending
	c.pending = nil
	c.flushTimer = nil
	subs := make([]subscriber, len(c.subs))
	copy(subs, c.subs)
	c.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	for _, payload := range batch {
		for _, s := range subs {
			s.fn(payload)
		}
	}
}

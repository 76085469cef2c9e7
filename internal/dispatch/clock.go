package dispatch

import "sync/atomic"

// Clock is a monotonic logical clock used to stamp units of work.
//
// Units carry a strictly increasing seq number from this clock. This ensures:
// - Deterministic ordering assertions (no wall-clock race conditions)
// - Traces that read in submission order
// - Causal relationships are explicit
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
// Producers on arbitrary goroutines call Next() while enqueuing.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next sequence number and increments the clock.
// Calls are linearizable - each call returns a unique, increasing value.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}

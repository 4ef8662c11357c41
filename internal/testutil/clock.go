package testutil

import "sync/atomic"

// DeterministicClock is a monotonic logical clock for trace sequencing.
//
// The conformance harness stamps every trace event with a sequence number
// from Next(), so an unchanged scenario replays to a byte-identical trace.
// Unlike wall-clock time, the sequence can be reset for test reuse.
//
// Thread-safety: all methods are safe for concurrent use.
type DeterministicClock struct {
	seq atomic.Int64
}

// NewDeterministicClock creates a clock starting at 0.
//
// The first call to Next() returns 1.
func NewDeterministicClock() *DeterministicClock {
	return &DeterministicClock{}
}

// Next advances the clock and returns the new sequence number.
// Monotonic: never repeats, never decreases.
func (c *DeterministicClock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last issued sequence number without advancing.
func (c *DeterministicClock) Current() int64 {
	return c.seq.Load()
}

// Reset rewinds the clock so the next call to Next() returns 1 again.
func (c *DeterministicClock) Reset() {
	c.seq.Store(0)
}

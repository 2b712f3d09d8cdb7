package engine

import "sync/atomic"

// SeqSource hands out strictly increasing sequence numbers for trace events.
// Implemented by Clock (production) and testutil.DeterministicClock (tests).
type SeqSource interface {
	Next() int64
	Current() int64
}

// Clock is a monotonic logical clock for trace ordering.
//
// Every trace event is stamped with Next(). Wall time is never used, so two
// runs of the same program produce identical traces.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock starting at a specific sequence number.
// Used to continue numbering after events already written to a trace store.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}

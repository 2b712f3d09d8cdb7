package engine

import "github.com/roach88/rxstore/internal/ir"

// DefaultMaxDepth is the default maximum propagation depth.
// This bounds recursion when cycle detection is disabled.
const DefaultMaxDepth = 1000

// DepthEnforcer bounds how deep one propagation pass may recurse.
//
// CRITICAL DISTINCTION from Cycle Detection:
//   - Cycle Detection: Catches recursive patterns (A → B → A)
//   - Max Depth: Catches runaway chains (A → B → C → ... → Z) and cycles
//     when detection is off
//
// Together they keep a pass from exhausting the goroutine stack.
type DepthEnforcer struct {
	maxDepth int
	current  int
	peak     int
}

// NewDepthEnforcer creates an enforcer with the given limit.
// A limit <= 0 disables the check.
func NewDepthEnforcer(maxDepth int) *DepthEnforcer {
	return &DepthEnforcer{maxDepth: maxDepth}
}

// Enter increments the depth and validates it against the limit.
// On error the depth is left unchanged.
func (d *DepthEnforcer) Enter(key ir.Key) *RuntimeError {
	next := d.current + 1
	if d.maxDepth > 0 && next > d.maxDepth {
		return NewDepthError(key, next, d.maxDepth)
	}
	d.current = next
	d.peak = max(d.peak, next)
	return nil
}

// Leave decrements the depth.
func (d *DepthEnforcer) Leave() {
	if d.current > 0 {
		d.current--
	}
}

// Current returns the current depth.
func (d *DepthEnforcer) Current() int {
	return d.current
}

// Peak returns the deepest level reached since the last Reset.
func (d *DepthEnforcer) Peak() int {
	return d.peak
}

// MaxDepth returns the configured limit.
func (d *DepthEnforcer) MaxDepth() int {
	return d.maxDepth
}

// Reset clears the depth and peak.
func (d *DepthEnforcer) Reset() {
	d.current = 0
	d.peak = 0
}

package engine

import "github.com/roach88/rxstore/internal/ir"

// CycleDetector tracks the keys on the current propagation path.
//
// Propagation is a depth-first walk. If a dependent is already on the path,
// recomputing it would feed its own output back into itself and the walk
// would never end:
//
//	A set → R1 recomputes → R2 recomputes → R1 would recompute again ← CYCLE DETECTED
//
// A key reached twice through different branches (a diamond) is NOT a cycle:
// it leaves the path before the second branch reaches it.
//
// Not safe for concurrent use; a detector belongs to one Runtime.
type CycleDetector struct {
	onPath map[ir.Key]int
	path   []ir.Key
}

// NewCycleDetector creates a new cycle detector.
func NewCycleDetector() *CycleDetector {
	return &CycleDetector{onPath: make(map[ir.Key]int)}
}

// WouldCycle reports whether key is already on the current path.
func (c *CycleDetector) WouldCycle(key ir.Key) bool {
	return c.onPath[key] > 0
}

// Enter pushes key onto the path.
func (c *CycleDetector) Enter(key ir.Key) {
	c.onPath[key]++
	c.path = append(c.path, key)
}

// Leave pops key from the path. Calls must mirror Enter.
func (c *CycleDetector) Leave(key ir.Key) {
	if n := c.onPath[key]; n <= 1 {
		delete(c.onPath, key)
	} else {
		c.onPath[key] = n - 1
	}
	if len(c.path) > 0 {
		c.path = c.path[:len(c.path)-1]
	}
}

// Path returns a copy of the current path, origin first.
func (c *CycleDetector) Path() []ir.Key {
	return append([]ir.Key(nil), c.path...)
}

// Depth returns the length of the current path.
func (c *CycleDetector) Depth() int {
	return len(c.path)
}

// Clear empties the path. Used after a pass aborts with a panic.
func (c *CycleDetector) Clear() {
	clear(c.onPath)
	c.path = c.path[:0]
}

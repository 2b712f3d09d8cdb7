package testutil

import (
	"fmt"
	"sync"

	"github.com/roach88/rxstore/internal/engine"
)

var (
	_ engine.PassGenerator = (*SequentialPassGenerator)(nil)
	_ engine.PassGenerator = (*FixedPassGenerator)(nil)
)

// SequentialPassGenerator names passes "<prefix>-1", "<prefix>-2", ...
//
// engine.FixedGenerator panics once its list runs out; this one never does,
// which suits scenario files whose pass count is not known up front. Golden
// traces depend on it producing the same ids on every run.
type SequentialPassGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialPassGenerator creates a generator. An empty prefix means "pass".
func NewSequentialPassGenerator(prefix string) *SequentialPassGenerator {
	if prefix == "" {
		prefix = "pass"
	}
	return &SequentialPassGenerator{prefix: prefix}
}

// Generate returns the next id.
func (g *SequentialPassGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}

// Reset restarts numbering at 1.
func (g *SequentialPassGenerator) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = 0
}

// FixedPassGenerator returns the same pass id every time, for tests that
// only care that events were grouped under some pass.
type FixedPassGenerator struct {
	id string
}

// NewFixedPassGenerator creates a generator for id. If id is empty,
// Generate returns "test-pass".
func NewFixedPassGenerator(id string) *FixedPassGenerator {
	if id == "" {
		id = "test-pass"
	}
	return &FixedPassGenerator{id: id}
}

// Generate returns the fixed id.
func (g *FixedPassGenerator) Generate() string {
	return g.id
}

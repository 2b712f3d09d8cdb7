package tracestore

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/rxstore/internal/engine"
)

// Recorder buffers trace events for one run and writes them on Flush.
// It implements engine.Tracer.
//
// Trace never touches the database, so the runtime's hot path does no I/O.
type Recorder struct {
	store *Store
	run   Run

	mu      sync.Mutex
	pending []engine.TraceEvent
	written int
}

// NewRecorder writes the run record and returns a recorder for it.
func NewRecorder(ctx context.Context, s *Store, run Run) (*Recorder, error) {
	if run.ID == "" {
		return nil, fmt.Errorf("new recorder: run id is required")
	}
	if err := s.WriteRun(ctx, run); err != nil {
		return nil, fmt.Errorf("new recorder: %w", err)
	}
	return &Recorder{store: s, run: run}, nil
}

// Run returns the run being recorded.
func (r *Recorder) Run() Run { return r.run }

// Trace implements engine.Tracer.
func (r *Recorder) Trace(ev engine.TraceEvent) {
	r.mu.Lock()
	r.pending = append(r.pending, ev)
	r.mu.Unlock()
}

// Pending returns how many events wait for Flush.
func (r *Recorder) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Written returns how many events Flush has stored so far.
func (r *Recorder) Written() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.written
}

// Flush writes buffered events. On error the events stay buffered and a
// later Flush retries them.
func (r *Recorder) Flush(ctx context.Context) error {
	r.mu.Lock()
	batch := r.pending
	r.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}
	if err := r.store.WriteEvents(ctx, r.run.ID, batch); err != nil {
		return fmt.Errorf("flush run %s: %w", r.run.ID, err)
	}

	r.mu.Lock()
	r.pending = r.pending[len(batch):]
	r.written += len(batch)
	r.mu.Unlock()
	return nil
}

package engine

import "github.com/roach88/rxstore/internal/ir"

// EventKind names a traced runtime event.
type EventKind string

const (
	EventWrite       EventKind = "write"        // live write, followed by propagation
	EventInertWrite  EventKind = "inert_write"  // write without propagation
	EventRemove      EventKind = "remove"       // value removed
	EventRecompute   EventKind = "recompute"    // RxFunc invoked
	EventEdgeAdded   EventKind = "edge_added"   // producer → consumer recorded
	EventEdgeRemoved EventKind = "edge_removed" // dead link pruned
	EventUndo        EventKind = "undo"         // history stepped backwards
	EventRedo        EventKind = "redo"         // history stepped forwards
	EventPurge       EventKind = "purge"        // key dropped by an external sweep
)

// TraceEvent is one observable step of the runtime.
type TraceEvent struct {
	Seq    int64     `json:"seq"`
	PassID string    `json:"pass_id,omitempty"`
	Kind   EventKind `json:"kind"`
	Key    ir.Key    `json:"key"`

	// Consumer is set on edge events.
	Consumer ir.Key `json:"consumer,omitzero"`

	// Depth is the propagation depth at which the event happened.
	Depth int `json:"depth"`
}

// Tracer receives runtime events in order. Implementations must not call
// back into the runtime.
type Tracer interface {
	Trace(ev TraceEvent)
}

// TracerFunc adapts a function to Tracer.
type TracerFunc func(TraceEvent)

// Trace implements Tracer.
func (f TracerFunc) Trace(ev TraceEvent) { f(ev) }

// Metrics receives counters from the runtime. See internal/metrics for the
// Prometheus implementation.
type Metrics interface {
	// Recompute counts one RxFunc invocation. kind is "atom" or "reaction".
	Recompute(kind string)

	// Pass records a finished propagation pass.
	Pass(recomputes, peakDepth int)

	// HistoryStep counts one undo/redo step. direction is "backward" or "forward".
	HistoryStep(direction string)

	// Edges records dependency graph churn.
	Edges(added, removed int)

	// Failure counts a runtime error by code.
	Failure(code string)
}

type nopMetrics struct{}

func (nopMetrics) Recompute(string)   {}
func (nopMetrics) Pass(int, int)      {}
func (nopMetrics) HistoryStep(string) {}
func (nopMetrics) Edges(int, int)     {}
func (nopMetrics) Failure(string)     {}

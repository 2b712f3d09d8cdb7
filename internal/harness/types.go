package harness

import "github.com/roach88/rxstore/internal/engine"

// TraceEvent is an engine.TraceEvent with keys replaced by scenario node
// names, tagged with the step that produced it. Step 0 is declaration.
type TraceEvent struct {
	Seq      int64            `json:"seq"`
	Step     int              `json:"step"`
	Pass     string           `json:"pass,omitempty"`
	Kind     engine.EventKind `json:"kind"`
	Node     string           `json:"node"`
	Consumer string           `json:"consumer,omitempty"`
	Depth    int              `json:"depth"`
}

// Label is the "kind:node" form used by trace_order assertions.
func (e TraceEvent) Label() string {
	return string(e.Kind) + ":" + e.Node
}

// canonical returns the event as a map for ir.MarshalCanonical.
func (e TraceEvent) canonical() map[string]any {
	m := map[string]any{
		"seq":   e.Seq,
		"step":  e.Step,
		"kind":  string(e.Kind),
		"node":  e.Node,
		"depth": e.Depth,
	}
	if e.Pass != "" {
		m["pass"] = e.Pass
	}
	if e.Consumer != "" {
		m["consumer"] = e.Consumer
	}
	return m
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every step expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace contains every runtime event in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains one message per failed expectation.
	Errors []string `json:"errors,omitempty"`

	// State holds the final value of every node that still has one.
	State map[string]int64 `json:"state,omitempty"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		State:  make(map[string]int64),
	}
}

// AddError records a failed expectation and marks the result failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/rxstore/internal/engine"
	"github.com/roach88/rxstore/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] step %d %s", ev.Seq, ev.Step, ev.Label())
			if ev.Consumer != "" {
				fmt.Fprintf(&buf, " → %s", ev.Consumer)
			}
			buf.WriteByte('\n')
		}
	}
	return buf.String()
}

func matches(ev TraceEvent, a Assertion) bool {
	if string(ev.Kind) != a.Kind || ev.Node != a.Node {
		return false
	}
	return a.Consumer == "" || ev.Consumer == a.Consumer
}

// assertTraceContains checks the trace has at least one event with the
// assertion's kind and node (and consumer, if given).
func assertTraceContains(trace []TraceEvent, a Assertion) error {
	for _, ev := range trace {
		if matches(ev, a) {
			return nil
		}
	}

	expected := fmt.Sprintf("%s:%s", a.Kind, a.Node)
	if a.Consumer != "" {
		expected += " → " + a.Consumer
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: expected,
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that the first occurrence of each "kind:node"
// label appears in the given order. Intervening events are allowed.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	positions := make(map[string]int)
	for i, ev := range trace {
		label := ev.Label()
		if _, seen := positions[label]; !seen && slices.Contains(a.Events, label) {
			positions[label] = i + 1 // 1-indexed for readability
		}
	}

	for _, label := range a.Events {
		if positions[label] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all events present: %v", a.Events),
				Actual:   fmt.Sprintf("missing event: %s", label),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(a.Events); i++ {
		prev, curr := a.Events[i-1], a.Events[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("events in order: %v", a.Events),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

// assertTraceCount checks the number of matching events exactly.
func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, ev := range trace {
		if matches(ev, a) {
			count++
		}
	}

	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s:%s", a.Count, a.Kind, a.Node),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertFinalState checks final node values. Nodes not listed are ignored.
func assertFinalState(state map[string]int64, a Assertion) error {
	var mismatches []string
	for _, name := range sortedKeys(a.Values) {
		want := a.Values[name]
		got, ok := state[name]
		switch {
		case !ok:
			mismatches = append(mismatches, fmt.Sprintf("%s: no value", name))
		case got != want:
			mismatches = append(mismatches, fmt.Sprintf("%s: %d (want %d)", name, got, want))
		}
	}

	if len(mismatches) > 0 {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%v", a.Values),
			Actual:   strings.Join(mismatches, ", "),
		}
	}
	return nil
}

// assertProducers checks the exact set of nodes a reaction is subscribed to.
func assertProducers(actx *AssertionContext, a Assertion) error {
	key, ok := actx.Keys[a.Node]
	if !ok {
		return fmt.Errorf("producers: unknown node %q", a.Node)
	}

	var got []string
	for _, p := range actx.Runtime.Producers(key) {
		got = append(got, actx.label(p))
	}
	slices.Sort(got)
	want := slices.Clone(a.Producers)
	slices.Sort(want)

	if !slices.Equal(got, want) {
		return &AssertionError{
			Type:     AssertProducers,
			Expected: fmt.Sprintf("%s reads %v", a.Node, want),
			Actual:   fmt.Sprintf("%s reads %v", a.Node, got),
		}
	}
	return nil
}

// AssertionContext gives assertions access to the runtime a scenario ran on.
type AssertionContext struct {
	Runtime *engine.Runtime
	Keys    map[string]ir.Key
	Names   map[ir.Key]string
}

func (c *AssertionContext) label(k ir.Key) string {
	if name, ok := c.Names[k]; ok {
		return name
	}
	return k.String()
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides runtime access for producers assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, a := range assertions {
		var err error

		switch a.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, a)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, a)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, a)
		case AssertFinalState:
			err = assertFinalState(result.State, a)
		case AssertProducers:
			if actx == nil || actx.Runtime == nil {
				err = fmt.Errorf("assertion[%d]: producers requires a runtime", i)
			} else {
				err = assertProducers(actx, a)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}

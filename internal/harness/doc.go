// Package harness runs declarative scenarios against the reactive runtime.
//
// A scenario declares int64 atoms, reactions computed from them, and steps
// that drive the graph. Each step can check node values, which functions
// ran and which runtime error it raised. The full event trace can be
// compared against a golden file.
//
// # Scenario Format
//
// Scenarios are YAML (strict: unknown fields are rejected) or CUE (unified
// with the embedded #Scenario definition in schema.cue):
//
//	name: diamond
//	description: "A join reached along two paths"
//	dedup: false
//	atoms:
//	  - { name: a, value: 1, reversible: true }
//	reactions:
//	  - { name: b, op: copy, inputs: [a], constant: 1 }
//	  - { name: c, op: copy, inputs: [a], constant: 2 }
//	  - { name: d, op: sum, inputs: [b, c] }
//	steps:
//	  - op: set
//	    target: a
//	    value: 10
//	    expect: { b: 11, c: 12, d: 23 }
//	    runs: { d: 2 }
//	  - op: undo
//	    expect: { d: 5 }
//	assertions:
//	  - type: producers
//	    node: d
//	    producers: [b, c]
//
// # Reaction Ops
//
//   - sum: inputs summed, plus constant
//   - sub: first input minus the rest, plus constant
//   - product: inputs multiplied, times constant if non-zero
//   - select: inputs[1] if inputs[0] != 0, else inputs[2]
//   - copy: inputs[0] plus constant
//
// # Step Ops
//
// set, inert_set, update_add, reset (atoms); trigger (reactions); remove
// (any node); undo, redo, travel (history).
//
// # Assertion Types
//
//   - trace_contains: an event with the given kind and node exists
//   - trace_order: first occurrences of "kind:node" labels are ordered
//   - trace_count: exact number of events with the given kind and node
//   - final_state: final node values
//   - producers: exact set of nodes a reaction is subscribed to
//
// # Deterministic Testing
//
// Each run uses a fresh runtime with testutil.DeterministicClock and
// testutil.SequentialPassGenerator, and node keys are content keys over
// the node name, so the same scenario yields a byte-identical trace.
//
// Usage:
//
//	scenario, err := harness.LoadScenario("testdata/diamond.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, msg := range result.Errors {
//	    log.Println(msg)
//	}
package harness

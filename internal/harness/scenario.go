package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/rxstore/internal/graph"
)

// Scenario declares a small reactive graph over int64 values and a list of
// steps to drive it. Field tags serve both the YAML and the CUE loader.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name" json:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description" json:"description"`

	// Dedup runs the scenario with engine.WithDedupPerPass.
	Dedup bool `yaml:"dedup,omitempty" json:"dedup,omitempty"`

	// MaxDepth overrides the propagation depth limit. Zero keeps the default.
	MaxDepth int `yaml:"max_depth,omitempty" json:"max_depth,omitempty"`

	// PassPrefix names propagation passes "<prefix>-1", "<prefix>-2", ...
	// Empty means "pass".
	PassPrefix string `yaml:"pass_prefix,omitempty" json:"pass_prefix,omitempty"`

	Atoms      []AtomDecl     `yaml:"atoms" json:"atoms"`
	Reactions  []ReactionDecl `yaml:"reactions,omitempty" json:"reactions,omitempty"`
	Steps      []Step         `yaml:"steps" json:"steps"`
	Assertions []Assertion    `yaml:"assertions,omitempty" json:"assertions,omitempty"`
}

// AtomDecl declares directly settable state.
type AtomDecl struct {
	Name  string `yaml:"name" json:"name"`
	Value int64  `yaml:"value" json:"value"`

	// Reversible records every change on the runtime history.
	Reversible bool `yaml:"reversible,omitempty" json:"reversible,omitempty"`
}

// ReactionDecl declares derived state computed by Op over Inputs.
type ReactionDecl struct {
	Name   string   `yaml:"name" json:"name"`
	Op     string   `yaml:"op" json:"op"`
	Inputs []string `yaml:"inputs" json:"inputs"`

	// Constant is added to the result of sum, sub and copy, and multiplies
	// the result of product when non-zero.
	Constant int64 `yaml:"constant,omitempty" json:"constant,omitempty"`

	// Suspended registers the reaction without evaluating it.
	Suspended bool `yaml:"suspended,omitempty" json:"suspended,omitempty"`
}

// Reaction operators.
const (
	OpSum     = "sum"     // inputs summed
	OpSub     = "sub"     // first input minus the rest
	OpProduct = "product" // inputs multiplied
	OpSelect  = "select"  // inputs[1] if inputs[0] != 0 else inputs[2]; observes only the chosen branch
	OpCopy    = "copy"    // inputs[0]
)

// Step is one action against the runtime followed by its expectations.
type Step struct {
	// Op is one of the Step* constants.
	Op string `yaml:"op" json:"op"`

	// Target names the node the step acts on.
	Target string `yaml:"target,omitempty" json:"target,omitempty"`

	// Value is the argument of set, inert_set and update_add.
	Value int64 `yaml:"value,omitempty" json:"value,omitempty"`

	// Cursor is the argument of travel.
	Cursor int `yaml:"cursor,omitempty" json:"cursor,omitempty"`

	// Expect maps node names to the value each must hold after the step.
	Expect map[string]int64 `yaml:"expect,omitempty" json:"expect,omitempty"`

	// Absent lists nodes that must hold no value after the step.
	Absent []string `yaml:"absent,omitempty" json:"absent,omitempty"`

	// Runs maps node names to how many times their function must run
	// during the step.
	Runs map[string]int `yaml:"runs,omitempty" json:"runs,omitempty"`

	// Error is the runtime error code the step must fail with.
	Error string `yaml:"error,omitempty" json:"error,omitempty"`
}

// Step operators.
const (
	StepSet       = "set"
	StepInertSet  = "inert_set"
	StepUpdateAdd = "update_add"
	StepRemove    = "remove"
	StepUndo      = "undo"
	StepRedo      = "redo"
	StepTravel    = "travel"
	StepTrigger   = "trigger"
	StepReset     = "reset"
)

// Assertion validates the final trace or runtime state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type" json:"type"`

	// Kind and Node select events (trace_contains, trace_count) or the
	// consumer node (producers).
	Kind     string `yaml:"kind,omitempty" json:"kind,omitempty"`
	Node     string `yaml:"node,omitempty" json:"node,omitempty"`
	Consumer string `yaml:"consumer,omitempty" json:"consumer,omitempty"`

	// Count is the expected number of matching events (trace_count).
	Count int `yaml:"count,omitempty" json:"count,omitempty"`

	// Events is the expected "kind:node" order (trace_order).
	Events []string `yaml:"events,omitempty" json:"events,omitempty"`

	// Values maps node names to expected final values (final_state).
	Values map[string]int64 `yaml:"values,omitempty" json:"values,omitempty"`

	// Producers is the exact set of nodes Node reads from (producers).
	Producers []string `yaml:"producers,omitempty" json:"producers,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
	AssertProducers     = "producers"
)

var validName = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// LoadScenario reads a scenario file. ".cue" files are validated against
// the embedded #Scenario schema; anything else is parsed as YAML.
// Returns an error if the file doesn't exist, is malformed, contains
// unknown fields, or fails validation.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario *Scenario
	if strings.EqualFold(filepath.Ext(path), ".cue") {
		scenario, err = ParseScenarioCUE(filepath.Base(path), data)
	} else {
		scenario, err = ParseScenarioYAML(data)
	}
	if err != nil {
		return nil, err
	}

	if err := ValidateScenario(scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return scenario, nil
}

// ParseScenarioYAML decodes a scenario without validating it.
func ParseScenarioYAML(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // reject typos like "reaction:" vs "reactions:"
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &scenario, nil
}

// ValidateScenario checks names, references and operators, then rejects
// dependency cycles.
func ValidateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Atoms) == 0 {
		return fmt.Errorf("atoms list is required and must be non-empty")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if s.MaxDepth < 0 {
		return fmt.Errorf("max_depth must be non-negative")
	}

	nodes := make(map[string]string) // name → "atom" | "reaction"
	declare := func(field, name, kind string) error {
		if !validName.MatchString(name) {
			return fmt.Errorf("%s: invalid name %q", field, name)
		}
		if _, dup := nodes[name]; dup {
			return fmt.Errorf("%s: duplicate name %q", field, name)
		}
		nodes[name] = kind
		return nil
	}
	for i, a := range s.Atoms {
		if err := declare(fmt.Sprintf("atoms[%d]", i), a.Name, "atom"); err != nil {
			return err
		}
	}
	for i, r := range s.Reactions {
		if err := declare(fmt.Sprintf("reactions[%d]", i), r.Name, "reaction"); err != nil {
			return err
		}
	}

	suspended := make(map[string]bool)
	for _, r := range s.Reactions {
		suspended[r.Name] = r.Suspended
	}
	for i, r := range s.Reactions {
		if err := validateReaction(i, r, nodes); err != nil {
			return err
		}
		for _, in := range r.Inputs {
			if suspended[in] && !r.Suspended {
				return fmt.Errorf("reactions[%d]: %q reads suspended reaction %q and must be suspended too", i, r.Name, in)
			}
		}
	}
	for i, step := range s.Steps {
		if err := validateStep(i, step, s, nodes); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a, nodes); err != nil {
			return err
		}
	}

	if warnings := graph.AnalyzeAdjacency(s.Adjacency()); len(warnings) > 0 {
		return &CycleError{Cycles: warnings}
	}
	return nil
}

// CycleError reports reactions that (transitively) read themselves.
type CycleError struct {
	Cycles []graph.CycleWarning
}

func (e *CycleError) Error() string {
	msg := "dependency cycle: " + strings.Join(e.Cycles[0].Path, " → ")
	if len(e.Cycles) > 1 {
		msg += fmt.Sprintf(" (and %d more)", len(e.Cycles)-1)
	}
	return msg
}

func validateReaction(i int, r ReactionDecl, nodes map[string]string) error {
	field := fmt.Sprintf("reactions[%d]", i)
	want := map[string]int{OpSum: -1, OpSub: -1, OpProduct: -1, OpSelect: 3, OpCopy: 1}
	n, ok := want[r.Op]
	if !ok {
		return fmt.Errorf("%s: unknown op %q", field, r.Op)
	}
	if len(r.Inputs) == 0 {
		return fmt.Errorf("%s: inputs list is required and must be non-empty", field)
	}
	if n > 0 && len(r.Inputs) != n {
		return fmt.Errorf("%s: op %s takes %d inputs, got %d", field, r.Op, n, len(r.Inputs))
	}
	for _, in := range r.Inputs {
		if _, ok := nodes[in]; !ok {
			return fmt.Errorf("%s: unknown input %q", field, in)
		}
	}
	return nil
}

func validateStep(i int, step Step, s *Scenario, nodes map[string]string) error {
	field := fmt.Sprintf("steps[%d]", i)

	var targetKind string // "" means no target
	switch step.Op {
	case StepSet, StepInertSet, StepUpdateAdd, StepReset:
		targetKind = "atom"
	case StepTrigger:
		targetKind = "reaction"
	case StepRemove:
		targetKind = "any"
	case StepUndo, StepRedo, StepTravel:
	case "":
		return fmt.Errorf("%s: op is required", field)
	default:
		return fmt.Errorf("%s: unknown op %q", field, step.Op)
	}

	if targetKind != "" {
		kind, ok := nodes[step.Target]
		if !ok {
			return fmt.Errorf("%s: unknown target %q", field, step.Target)
		}
		if targetKind != "any" && kind != targetKind {
			return fmt.Errorf("%s: %s needs a %s target, %q is a %s", field, step.Op, targetKind, step.Target, kind)
		}
	} else if step.Target != "" {
		return fmt.Errorf("%s: %s takes no target", field, step.Op)
	}

	for name := range step.Expect {
		if _, ok := nodes[name]; !ok {
			return fmt.Errorf("%s.expect: unknown node %q", field, name)
		}
	}
	for _, name := range step.Absent {
		if _, ok := nodes[name]; !ok {
			return fmt.Errorf("%s.absent: unknown node %q", field, name)
		}
	}
	for name, n := range step.Runs {
		if _, ok := nodes[name]; !ok {
			return fmt.Errorf("%s.runs: unknown node %q", field, name)
		}
		if n < 0 {
			return fmt.Errorf("%s.runs: count for %q must be non-negative", field, name)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, nodes map[string]string) error {
	known := func(name string) error {
		if _, ok := nodes[name]; !ok {
			return fmt.Errorf("assertions[%d]: unknown node %q", index, name)
		}
		return nil
	}

	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertTraceContains:
		if a.Kind == "" || a.Node == "" {
			return fmt.Errorf("assertions[%d]: kind and node are required for trace_contains", index)
		}
		return known(a.Node)
	case AssertTraceOrder:
		if len(a.Events) == 0 {
			return fmt.Errorf("assertions[%d]: events list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Kind == "" || a.Node == "" {
			return fmt.Errorf("assertions[%d]: kind and node are required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
		return known(a.Node)
	case AssertFinalState:
		if len(a.Values) == 0 {
			return fmt.Errorf("assertions[%d]: values is required for final_state", index)
		}
		for name := range a.Values {
			if err := known(name); err != nil {
				return err
			}
		}
	case AssertProducers:
		if a.Node == "" {
			return fmt.Errorf("assertions[%d]: node is required for producers", index)
		}
		for _, p := range a.Producers {
			if err := known(p); err != nil {
				return err
			}
		}
		return known(a.Node)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

// Adjacency returns the declared dependency graph, producer → consumers.
// A select reaction lists all three inputs even though it only reads two
// at a time.
func (s *Scenario) Adjacency() map[string][]string {
	adj := make(map[string][]string)
	for _, r := range s.Reactions {
		for _, in := range r.Inputs {
			if !slices.Contains(adj[in], r.Name) {
				adj[in] = append(adj[in], r.Name)
			}
		}
	}
	return adj
}

// declarationOrder returns reactions ordered so every reaction comes after
// the reactions it reads. Ties keep file order. s must be acyclic.
func (s *Scenario) declarationOrder() []ReactionDecl {
	byName := make(map[string]ReactionDecl, len(s.Reactions))
	for _, r := range s.Reactions {
		byName[r.Name] = r
	}

	done := make(map[string]bool, len(s.Reactions))
	order := make([]ReactionDecl, 0, len(s.Reactions))
	var visit func(name string)
	visit = func(name string) {
		r, ok := byName[name]
		if !ok || done[name] {
			return
		}
		done[name] = true
		for _, in := range r.Inputs {
			visit(in)
		}
		order = append(order, r)
	}
	for _, r := range s.Reactions {
		visit(r.Name)
	}
	return order
}

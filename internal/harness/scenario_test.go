package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// minimalScenario is valid; tests mutate copies of it.
func minimalScenario() *Scenario {
	return &Scenario{
		Name:        "minimal",
		Description: "one atom, one reaction",
		Atoms:       []AtomDecl{{Name: "a", Value: 1}},
		Reactions:   []ReactionDecl{{Name: "b", Op: OpCopy, Inputs: []string{"a"}}},
		Steps:       []Step{{Op: StepSet, Target: "a", Value: 2, Expect: map[string]int64{"b": 2}}},
	}
}

func TestLoadScenario_YAML(t *testing.T) {
	path := writeFile(t, "s.yaml", `
name: chain
description: "a → b"
atoms:
  - { name: a, value: 1, reversible: true }
reactions:
  - { name: b, op: sum, inputs: [a], constant: 2 }
steps:
  - op: set
    target: a
    value: 5
    expect: { b: 7 }
    runs: { b: 1 }
assertions:
  - type: producers
    node: b
    producers: [a]
`)

	s, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "chain", s.Name)
	assert.Equal(t, []AtomDecl{{Name: "a", Value: 1, Reversible: true}}, s.Atoms)
	assert.Equal(t, ReactionDecl{Name: "b", Op: OpSum, Inputs: []string{"a"}, Constant: 2}, s.Reactions[0])
	assert.Equal(t, map[string]int64{"b": 7}, s.Steps[0].Expect)
	assert.Equal(t, map[string]int{"b": 1}, s.Steps[0].Runs)
	assert.Equal(t, []string{"a"}, s.Assertions[0].Producers)
}

func TestLoadScenario_UnknownFieldRejected(t *testing.T) {
	path := writeFile(t, "s.yaml", `
name: typo
description: "misspelled field"
atoms:
  - { name: a, value: 1 }
reaction:
  - { name: b, op: copy, inputs: [a] }
steps:
  - { op: set, target: a, value: 1 }
`)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_CUE(t *testing.T) {
	path := writeFile(t, "s.cue", `
name:        "chain_cue"
description: "a → b in CUE"
dedup:       true
atoms: [{name: "a", value: 1}]
reactions: [{name: "b", op: "copy", inputs: ["a"], constant: 1}]
steps: [{op: "set", target: "a", value: 4, expect: {b: 5}}]
`)

	s, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "chain_cue", s.Name)
	assert.True(t, s.Dedup)
	assert.Equal(t, int64(1), s.Reactions[0].Constant)
	assert.Equal(t, map[string]int64{"b": 5}, s.Steps[0].Expect)
}

func TestParseScenarioCUE_SchemaViolations(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name: "unknown op",
			content: `
name: "x", description: "x"
atoms: [{name: "a", value: 1}]
steps: [{op: "explode"}]
`,
		},
		{
			name: "closed struct rejects unknown field",
			content: `
name: "x", description: "x"
atoms: [{name: "a", value: 1, colour: "red"}]
steps: [{op: "undo"}]
`,
		},
		{
			name: "invalid node name",
			content: `
name: "x", description: "x"
atoms: [{name: "A", value: 1}]
steps: [{op: "undo"}]
`,
		},
		{
			name: "missing steps",
			content: `
name: "x", description: "x"
atoms: [{name: "a", value: 1}]
`,
		},
		{
			name:    "syntax error",
			content: `name: "x" description: `,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenarioCUE("bad.cue", []byte(tt.content))
			assert.Error(t, err)
		})
	}
}

func TestValidateScenario(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(s *Scenario)
		wantErr string
	}{
		{"valid", func(s *Scenario) {}, ""},
		{"missing name", func(s *Scenario) { s.Name = "" }, "name is required"},
		{"missing description", func(s *Scenario) { s.Description = "" }, "description is required"},
		{"no atoms", func(s *Scenario) { s.Atoms = nil }, "atoms list is required"},
		{"no steps", func(s *Scenario) { s.Steps = nil }, "steps list is required"},
		{"negative depth", func(s *Scenario) { s.MaxDepth = -1 }, "max_depth"},
		{"bad name", func(s *Scenario) { s.Atoms[0].Name = "A" }, "invalid name"},
		{"duplicate", func(s *Scenario) { s.Reactions[0].Name = "a" }, "duplicate name"},
		{"unknown op", func(s *Scenario) { s.Reactions[0].Op = "divide" }, "unknown op"},
		{"no inputs", func(s *Scenario) { s.Reactions[0].Inputs = nil }, "inputs list is required"},
		{"copy arity", func(s *Scenario) { s.Reactions[0].Inputs = []string{"a", "a"} }, "takes 1 inputs"},
		{"unknown input", func(s *Scenario) { s.Reactions[0].Inputs = []string{"zz"} }, "unknown input"},
		{"missing step op", func(s *Scenario) { s.Steps[0].Op = "" }, "op is required"},
		{"unknown step op", func(s *Scenario) { s.Steps[0].Op = "jump" }, "unknown op"},
		{"set on reaction", func(s *Scenario) { s.Steps[0].Target = "b" }, "needs a atom target"},
		{"trigger on atom", func(s *Scenario) { s.Steps[0].Op = StepTrigger }, "needs a reaction target"},
		{"undo with target", func(s *Scenario) { s.Steps[0].Op = StepUndo }, "takes no target"},
		{"unknown expect", func(s *Scenario) { s.Steps[0].Expect = map[string]int64{"zz": 1} }, "unknown node"},
		{"unknown absent", func(s *Scenario) { s.Steps[0].Absent = []string{"zz"} }, "unknown node"},
		{"negative runs", func(s *Scenario) { s.Steps[0].Runs = map[string]int{"b": -1} }, "non-negative"},
		{
			"suspended input",
			func(s *Scenario) {
				s.Reactions[0].Suspended = true
				s.Reactions = append(s.Reactions, ReactionDecl{Name: "c", Op: OpCopy, Inputs: []string{"b"}})
			},
			"must be suspended too",
		},
		{
			"cycle",
			func(s *Scenario) {
				s.Reactions = []ReactionDecl{
					{Name: "b", Op: OpSum, Inputs: []string{"a", "c"}},
					{Name: "c", Op: OpCopy, Inputs: []string{"b"}},
				}
			},
			"dependency cycle",
		},
		{
			"self loop",
			func(s *Scenario) { s.Reactions[0].Inputs = []string{"b"} },
			"dependency cycle",
		},
		{
			"unknown assertion",
			func(s *Scenario) { s.Assertions = []Assertion{{Type: "vibes"}} },
			"unknown assertion type",
		},
		{
			"trace_count needs node",
			func(s *Scenario) { s.Assertions = []Assertion{{Type: AssertTraceCount, Kind: "recompute"}} },
			"kind and node are required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := minimalScenario()
			tt.mutate(s)

			err := ValidateScenario(s)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestScenario_Adjacency(t *testing.T) {
	s := &Scenario{
		Reactions: []ReactionDecl{
			{Name: "d", Op: OpSum, Inputs: []string{"b", "c", "b"}},
			{Name: "b", Op: OpCopy, Inputs: []string{"a"}},
			{Name: "c", Op: OpCopy, Inputs: []string{"a"}},
		},
	}

	assert.Equal(t, map[string][]string{
		"a": {"b", "c"},
		"b": {"d"},
		"c": {"d"},
	}, s.Adjacency())
}

func TestScenario_DeclarationOrder(t *testing.T) {
	s := &Scenario{
		Reactions: []ReactionDecl{
			{Name: "d", Op: OpSum, Inputs: []string{"b", "c"}},
			{Name: "c", Op: OpCopy, Inputs: []string{"b"}},
			{Name: "b", Op: OpCopy, Inputs: []string{"a"}},
		},
	}

	var names []string
	for _, r := range s.declarationOrder() {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{"b", "c", "d"}, names)
}

func TestValidateScenario_CycleError(t *testing.T) {
	s := minimalScenario()
	s.Reactions = []ReactionDecl{
		{Name: "b", Op: OpSum, Inputs: []string{"a", "c"}},
		{Name: "c", Op: OpCopy, Inputs: []string{"b"}},
		{Name: "d", Op: OpSum, Inputs: []string{"a", "d"}},
	}

	err := ValidateScenario(s)
	var cycleErr *CycleError
	require.ErrorAs(t, err, &cycleErr)
	assert.Len(t, cycleErr.Cycles, 2)
	assert.Contains(t, err.Error(), "(and 1 more)")
}

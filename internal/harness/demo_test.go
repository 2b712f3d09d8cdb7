package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scenarioDir holds the shared scenarios also used by the CLI tests.
const scenarioDir = "../../testdata/scenarios"

func TestDemoScenarios(t *testing.T) {
	tests := []struct {
		file string
		name string
	}{
		{"subtract.yaml", "subtract"},
		{"diamond.yaml", "diamond"},
		{"diamond_dedup.cue", "diamond_dedup"},
		{"history.yaml", "history"},
		{"dynamic.yaml", "dynamic"},
		{"depth.yaml", "depth"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scenario, err := LoadScenario(filepath.Join(scenarioDir, tt.file))
			require.NoError(t, err)

			assert.Equal(t, tt.name, scenario.Name)
			assert.NotEmpty(t, scenario.Description)

			result, err := Run(scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.NotEmpty(t, result.Trace)
		})
	}
}

func TestDemoScenarios_DedupChangesRunCount(t *testing.T) {
	plain, err := LoadScenario(filepath.Join(scenarioDir, "diamond.yaml"))
	require.NoError(t, err)
	dedup, err := LoadScenario(filepath.Join(scenarioDir, "diamond_dedup.cue"))
	require.NoError(t, err)

	count := func(s *Scenario) int {
		result, err := Run(s)
		require.NoError(t, err)
		n := 0
		for _, ev := range result.Trace {
			if ev.Label() == "recompute:d" {
				n++
			}
		}
		return n
	}

	assert.Equal(t, 3, count(plain))
	assert.Equal(t, 2, count(dedup))
}

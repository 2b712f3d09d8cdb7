package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rxstore/internal/harness"
)

func executeTest(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewTestCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestTest_ScenarioDirectory(t *testing.T) {
	out, err := executeTest(t, "text", filepath.Join("..", "..", "testdata", "scenarios"))
	require.NoError(t, err)

	assert.Contains(t, out, "✓ "+scenarioPath("diamond_dedup.cue"))
	assert.Contains(t, out, "Test Summary: 6 passed, 0 failed, 6 total")
	assert.Contains(t, out, "✓ All scenarios passed")
}

func TestTest_Filter(t *testing.T) {
	out, err := executeTest(t, "json", "--filter", "diamond*", filepath.Join("..", "..", "testdata", "scenarios"))
	require.NoError(t, err)

	resp := decodeResponse[harness.SuiteResult](t, []byte(out))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 2, resp.Data.Total)
	assert.Equal(t, 2, resp.Data.Passed)
}

func TestTest_InvalidFilter(t *testing.T) {
	_, err := executeTest(t, "text", "--filter", "[", scenarioPath("diamond.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTest_Failures(t *testing.T) {
	dir := t.TempDir()
	failing := writeScenario(t, dir, "failing.yaml", failingScenario)
	cyclic := writeScenario(t, dir, "cyclic.yaml", cyclicScenario)

	out, err := executeTest(t, "text", dir, scenarioPath("subtract.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	assert.Contains(t, out, "✗ "+cyclic)
	assert.Contains(t, out, "dependency cycle")
	assert.Contains(t, out, "✗ "+failing)
	assert.Contains(t, out, "steps[0] set: b: expected 3, got 2")
	assert.Contains(t, out, "✓ "+scenarioPath("subtract.yaml"))
	assert.Contains(t, out, "Test Summary: 1 passed, 2 failed, 3 total")
}

func TestTest_FailuresJSON(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "failing.yaml", failingScenario)

	out, err := executeTest(t, "json", dir)
	require.Error(t, err)

	resp := decodeResponse[harness.SuiteResult](t, []byte(out))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, ErrCodeFailed, resp.Error.Code)
	require.Len(t, resp.Data.Failures, 1)
	assert.Equal(t, "failing", resp.Data.Failures[0].Name)
}

func TestTest_EmptyDirectory(t *testing.T) {
	out, err := executeTest(t, "text", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")
}

func TestTest_MissingPath(t *testing.T) {
	_, err := executeTest(t, "text", filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to find scenarios")
}

func TestTest_UpdateRequiresGoldenDir(t *testing.T) {
	_, err := executeTest(t, "text", "--update", scenarioPath("diamond.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--update requires --golden-dir")
}

func TestTest_GoldenRoundTrip(t *testing.T) {
	goldenDir := filepath.Join(t.TempDir(), "golden")
	scenario := scenarioPath("diamond.yaml")

	// Missing golden files fail.
	_, err := executeTest(t, "text", "--golden-dir", goldenDir, scenario)
	require.Error(t, err)

	// --update writes them.
	_, err = executeTest(t, "text", "--golden-dir", goldenDir, "--update", scenario)
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(goldenDir, "diamond.golden"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `{"events":`)

	// The same trace now matches.
	_, err = executeTest(t, "text", "--golden-dir", goldenDir, scenario)
	require.NoError(t, err)

	// A tampered golden file is a mismatch.
	require.NoError(t, os.WriteFile(filepath.Join(goldenDir, "diamond.golden"), []byte("{}\n"), 0o644))
	out, err := executeTest(t, "text", "--golden-dir", goldenDir, scenario)
	require.Error(t, err)
	assert.Contains(t, out, "trace does not match")
}

func TestCollectScenarios(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "b.yaml", failingScenario)
	writeScenario(t, dir, "a.cue", "")
	writeScenario(t, dir, "notes.txt", "")
	explicit := writeScenario(t, t.TempDir(), "odd.scn", "")

	paths, err := collectScenarios([]string{dir, explicit}, "")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.cue"),
		filepath.Join(dir, "b.yaml"),
		explicit,
	}, paths)

	paths, err = collectScenarios([]string{dir}, "b")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "b.yaml")}, paths)
}

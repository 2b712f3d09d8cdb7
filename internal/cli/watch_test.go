package cli

import (
	"bytes"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syncBuffer is a bytes.Buffer safe for the watch goroutine and the test.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestWatch_SingleRun(t *testing.T) {
	out := &syncBuffer{}
	opts := &WatchOptions{RootOptions: &RootOptions{Format: "text"}, Debounce: 10 * time.Millisecond, MaxRuns: 1}
	cmd := NewWatchCommand(opts.RootOptions)
	cmd.SetOut(out)

	require.NoError(t, runWatch(opts, scenarioPath("subtract.yaml"), cmd))
	assert.Contains(t, out.String(), "✓ subtract (")
}

func TestWatch_RerunsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := writeScenario(t, dir, "live.yaml", failingScenario)

	out := &syncBuffer{}
	opts := &WatchOptions{RootOptions: &RootOptions{Format: "text"}, Debounce: 10 * time.Millisecond, MaxRuns: 2}
	cmd := NewWatchCommand(opts.RootOptions)
	cmd.SetOut(out)

	done := make(chan error, 1)
	go func() { done <- runWatch(opts, path, cmd) }()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "✗ failing")
	}, 5*time.Second, 10*time.Millisecond)

	fixed := strings.Replace(failingScenario, "expect: { b: 3 }", "expect: { b: 2 }", 1)

	// The directory is watched before the first run, so one write suffices.
	require.NoError(t, os.WriteFile(path, []byte(fixed), 0o644))

	select {
	case err := <-done:
		require.NoError(t, err)
		assert.Contains(t, out.String(), "✓ failing")
	case <-time.After(5 * time.Second):
		t.Fatalf("watch did not re-run; output so far:\n%s", out.String())
	}
}

func TestWatch_BrokenFileKeepsWatching(t *testing.T) {
	path := writeScenario(t, t.TempDir(), "broken.yaml", "name: [")

	out := &syncBuffer{}
	opts := &WatchOptions{RootOptions: &RootOptions{Format: "text"}, Debounce: 10 * time.Millisecond, MaxRuns: 1}
	cmd := NewWatchCommand(opts.RootOptions)
	cmd.SetOut(out)

	require.NoError(t, runWatch(opts, path, cmd))
	assert.Contains(t, out.String(), "Error [E_LOAD]")
}

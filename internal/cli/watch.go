package cli

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/roach88/rxstore/internal/harness"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	Debounce time.Duration

	// MaxRuns stops the watch after this many runs; 0 means until
	// interrupted. Used by tests.
	MaxRuns int
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch <scenario>",
		Short: "Re-run a scenario whenever its file changes",
		Long: `Run a scenario, then run it again every time the file is saved.

The scenario's directory is watched rather than the file itself, so
editors that save by renaming a temporary file are picked up too.
Bursts of events are collapsed by --debounce.

Example:
  rxstore watch ./scenarios/diamond.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(opts, args[0], cmd)
		},
	}

	cmd.Flags().DurationVar(&opts.Debounce, "debounce", 100*time.Millisecond, "wait this long after the last change before re-running")

	return cmd
}

func runWatch(opts *WatchOptions, path string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)
	logger := opts.Logger()

	abs, err := filepath.Abs(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid scenario path", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create file watcher", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return WrapExitError(ExitCommandError, "failed to watch scenario directory", err)
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runs := 0
	runOnce := func() bool {
		runs++
		watchRun(f, abs, opts)
		return opts.MaxRuns > 0 && runs >= opts.MaxRuns
	}

	logger.Info("watching scenario", "path", abs, "debounce", opts.Debounce)
	if runOnce() {
		return nil
	}

	// A nil channel blocks forever, so the debounce case is inert until a
	// change arms the timer.
	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			logger.Info("watch stopped")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return NewExitError(ExitCommandError, "watcher events channel closed")
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			logger.Debug("scenario changed", "op", event.Op.String())

			if timer == nil {
				timer = time.NewTimer(opts.Debounce)
			} else {
				timer.Reset(opts.Debounce)
			}
			pending = timer.C

		case <-pending:
			pending = nil
			if runOnce() {
				return nil
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return NewExitError(ExitCommandError, "watcher errors channel closed")
			}
			logger.Error("file watcher error", "error", err)
		}
	}
}

// watchRun runs the scenario once and prints a summary. Failures are
// reported, never returned: the watch keeps going.
func watchRun(f *OutputFormatter, path string, opts *WatchOptions) {
	scenario, lf := loadScenario(path)
	if lf != nil {
		_ = f.Error(lf.Code, lf.Message, lf)
		return
	}

	result, err := harness.Run(scenario, harness.WithLogger(opts.Logger()))
	if err != nil {
		_ = f.Error(ErrCodeInvalid, err.Error(), nil)
		return
	}

	report := RunReport{
		Scenario: scenario.Name,
		Pass:     result.Pass,
		Events:   len(result.Trace),
		State:    result.State,
		Errors:   result.Errors,
	}
	if f.JSON() {
		_ = f.Success(report)
		return
	}

	stamp := time.Now().Format(time.TimeOnly)
	if report.Pass {
		fmt.Fprintf(f.Writer, "[%s] ✓ %s (%d events)\n", stamp, report.Scenario, report.Events)
		return
	}
	fmt.Fprintf(f.Writer, "[%s] ✗ %s (%d events)\n", stamp, report.Scenario, report.Events)
	for _, e := range report.Errors {
		fmt.Fprintf(f.Writer, "  %s\n", e)
	}
}

package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/rxstore/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	GoldenDir string // compare traces against <golden-dir>/<scenario>.golden
	Update    bool   // regenerate golden files
	Filter    string // scenario filter (glob pattern on the file name)
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenario-dir|scenario-file>...",
		Short: "Run a suite of scenarios",
		Long: `Run every scenario in the given directories and files.

A scenario passes when all its step expectations and assertions hold.
With --golden-dir the full trace must also match the golden file named
after the scenario; --update rewrites those files instead.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  rxstore test ./testdata/scenarios
  rxstore test ./testdata/scenarios --filter "diamond*"
  rxstore test ./testdata/scenarios --golden-dir ./testdata/golden --update
  rxstore test ./a.yaml ./b.cue --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.GoldenDir, "golden-dir", "", "compare traces against golden files in this directory")
	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files (requires --golden-dir)")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")

	return cmd
}

func runTests(opts *TestOptions, args []string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)

	if opts.Update && opts.GoldenDir == "" {
		return NewExitError(ExitCommandError, "--update requires --golden-dir")
	}

	paths, err := collectScenarios(args, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}

	if len(paths) == 0 {
		if f.JSON() {
			return f.Respond(&harness.SuiteResult{}, nil)
		}
		fmt.Fprintln(f.Writer, "No scenarios found.")
		return nil
	}
	f.VerboseLog("Running %d scenario(s)", len(paths))

	hopts := []harness.Option{harness.WithLogger(opts.Logger())}
	if opts.GoldenDir != "" {
		hopts = append(hopts, harness.WithSuiteCheck(goldenCheck(opts.GoldenDir, opts.Update)))
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	result, err := harness.RunSuite(ctx, paths, hopts...)
	if err != nil {
		return WrapExitError(ExitCommandError, "test run interrupted", err)
	}

	if f.JSON() {
		var cliErr *CLIError
		if result.Failed > 0 {
			cliErr = &CLIError{Code: ErrCodeFailed, Message: fmt.Sprintf("%d scenario(s) failed", result.Failed)}
		}
		if err := f.Respond(result, cliErr); err != nil {
			return err
		}
	} else {
		writeTestText(f, paths, result)
	}

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	return nil
}

// collectScenarios expands directories into their scenario files. Files
// named explicitly are kept even if their extension is unusual.
func collectScenarios(args []string, filter string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}
		found, err := harness.FindScenarios(arg)
		if err != nil {
			return nil, err
		}
		paths = append(paths, found...)
	}

	if filter == "" {
		return paths, nil
	}

	var filtered []string
	for _, p := range paths {
		base := filepath.Base(p)
		name := strings.TrimSuffix(base, filepath.Ext(base))
		matched, err := filepath.Match(filter, name)
		if err != nil {
			return nil, fmt.Errorf("invalid filter pattern: %w", err)
		}
		if matched {
			filtered = append(filtered, p)
		}
	}
	return filtered, nil
}

// goldenCheck compares (or, with update, rewrites) each scenario's trace
// against <dir>/<scenario>.golden.
func goldenCheck(dir string, update bool) func(*harness.Scenario, *harness.Result) []string {
	return func(s *harness.Scenario, r *harness.Result) []string {
		data, err := harness.MarshalTrace(s.Name, r.Trace)
		if err != nil {
			return []string{fmt.Sprintf("failed to marshal trace: %v", err)}
		}
		path := filepath.Join(dir, s.Name+".golden")

		if update {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return []string{fmt.Sprintf("failed to create golden directory: %v", err)}
			}
			if err := os.WriteFile(path, data, 0o644); err != nil {
				return []string{fmt.Sprintf("failed to write golden file: %v", err)}
			}
			return nil
		}

		want, err := os.ReadFile(path)
		if err != nil {
			return []string{fmt.Sprintf("failed to read golden file: %v", err)}
		}
		if !bytes.Equal(want, data) {
			return []string{fmt.Sprintf("trace does not match %s (run with --update to regenerate)", path)}
		}
		return nil
	}
}

func writeTestText(f *OutputFormatter, paths []string, result *harness.SuiteResult) {
	w := f.Writer

	failed := make(map[string]harness.ScenarioFailure, len(result.Failures))
	for _, fail := range result.Failures {
		failed[fail.Path] = fail
	}

	for _, p := range paths {
		fail, ok := failed[p]
		if !ok {
			fmt.Fprintf(w, "✓ %s\n", p)
			continue
		}
		fmt.Fprintf(w, "✗ %s\n", p)
		for _, e := range fail.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
	if result.Failed == 0 {
		fmt.Fprintln(w, "✓ All scenarios passed")
	}
}

func sortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

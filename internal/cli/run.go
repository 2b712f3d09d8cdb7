package cli

import (
	"bytes"
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/rxstore/internal/engine"
	"github.com/roach88/rxstore/internal/harness"
	"github.com/roach88/rxstore/internal/ir"
	"github.com/roach88/rxstore/internal/metrics"
	"github.com/roach88/rxstore/internal/tracestore"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	TraceDB string
	Metrics bool

	// RunIDs allows overriding the run id generator (for testing).
	// If nil, defaults to engine.UUIDv7Generator.
	RunIDs engine.PassGenerator
}

// RunReport is the outcome of one scenario run.
type RunReport struct {
	Scenario string           `json:"scenario"`
	Pass     bool             `json:"pass"`
	Events   int              `json:"events"`
	State    map[string]int64 `json:"state"`
	Errors   []string         `json:"errors,omitempty"`
	RunID    string           `json:"run_id,omitempty"`
	Metrics  string           `json:"metrics,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario>",
		Short: "Run one scenario",
		Long: `Run a single scenario file and report its final state.

With --trace-db every runtime event is recorded in a SQLite trace
database under a fresh run id; query it later with "rxstore trace".
With --metrics the run's Prometheus counters are printed afterwards.

Examples:
  rxstore run ./scenarios/diamond.yaml
  rxstore run ./scenarios/diamond.yaml --trace-db ./traces.db
  rxstore run ./scenarios/history.yaml --metrics --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenario(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.TraceDB, "trace-db", "", "record the trace in this SQLite database")
	cmd.Flags().BoolVar(&opts.Metrics, "metrics", false, "print run metrics in Prometheus text format")

	return cmd
}

func runScenario(opts *RunOptions, path string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)
	logger := opts.Logger()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	scenario, lf := loadScenario(path)
	if lf != nil {
		if err := f.Error(lf.Code, lf.Message, lf); err != nil {
			return err
		}
		return NewExitError(lf.exitCode(), lf.Message)
	}

	hopts := []harness.Option{harness.WithLogger(logger)}

	var rec *tracestore.Recorder
	if opts.TraceDB != "" {
		st, err := tracestore.Open(opts.TraceDB)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open trace database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing trace database", "error", closeErr)
			}
		}()

		runIDs := opts.RunIDs
		if runIDs == nil {
			runIDs = engine.UUIDv7Generator{}
		}
		rec, err = tracestore.NewRecorder(ctx, st, tracestore.Run{
			ID:            runIDs.Generate(),
			Scenario:      scenario.Name,
			EngineVersion: ir.EngineVersion,
			KeyVersion:    ir.KeyVersion,
		})
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to start trace run", err)
		}
		hopts = append(hopts, harness.WithTracer(rec))
	}

	var registry *prometheus.Registry
	if opts.Metrics {
		registry = prometheus.NewRegistry()
		hopts = append(hopts, harness.WithMetrics(metrics.NewCollector(metrics.Config{Namespace: "rxstore"}, registry)))
	}

	logger.Debug("running scenario", "scenario", scenario.Name, "path", path)
	result, err := harness.Run(scenario, hopts...)
	if err != nil {
		return WrapExitError(ExitFailure, "scenario execution failed", err)
	}

	report := RunReport{
		Scenario: scenario.Name,
		Pass:     result.Pass,
		Events:   len(result.Trace),
		State:    result.State,
		Errors:   result.Errors,
	}

	if rec != nil {
		if err := rec.Flush(ctx); err != nil {
			return WrapExitError(ExitCommandError, "failed to write trace", err)
		}
		report.RunID = rec.Run().ID
		logger.Info("trace recorded", "run", report.RunID, "events", rec.Written())
	}

	if registry != nil {
		var buf bytes.Buffer
		if err := metrics.WriteText(&buf, registry); err != nil {
			return WrapExitError(ExitCommandError, "failed to render metrics", err)
		}
		report.Metrics = buf.String()
	}

	if f.JSON() {
		var cliErr *CLIError
		if !report.Pass {
			cliErr = &CLIError{Code: ErrCodeFailed, Message: fmt.Sprintf("scenario %s failed", report.Scenario)}
		}
		if err := f.Respond(report, cliErr); err != nil {
			return err
		}
	} else {
		writeRunText(f, report)
	}

	if !report.Pass {
		return NewExitError(ExitFailure, fmt.Sprintf("scenario %s failed", report.Scenario))
	}
	return nil
}

func writeRunText(f *OutputFormatter, report RunReport) {
	w := f.Writer

	if report.Pass {
		fmt.Fprintf(w, "✓ %s (%d events)\n", report.Scenario, report.Events)
	} else {
		fmt.Fprintf(w, "✗ %s (%d events)\n", report.Scenario, report.Events)
		for _, e := range report.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== State ===")
	if len(report.State) == 0 {
		fmt.Fprintln(w, "  (no values)")
	}
	for _, name := range sortedNames(report.State) {
		fmt.Fprintf(w, "  %s = %d\n", name, report.State[name])
	}

	if report.RunID != "" {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Trace recorded: run %s\n", report.RunID)
	}
	if report.Metrics != "" {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "=== Metrics ===")
		fmt.Fprint(w, report.Metrics)
	}
}

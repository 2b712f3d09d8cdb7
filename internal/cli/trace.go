package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/rxstore/internal/engine"
	"github.com/roach88/rxstore/internal/harness"
	"github.com/roach88/rxstore/internal/ir"
	"github.com/roach88/rxstore/internal/tracestore"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	RunID    string
	Pass     string // optional - only events of this propagation pass
	Key      string // optional - only events touching this key
	Node     string // optional - like Key, by scenario node name
	Scenario string // optional - scenario file used to label keys
}

// TraceLine is one stored event, labelled with node names when known.
type TraceLine struct {
	Seq          int64  `json:"seq"`
	Pass         string `json:"pass,omitempty"`
	Kind         string `json:"kind"`
	Key          string `json:"key"`
	Node         string `json:"node,omitempty"`
	Consumer     string `json:"consumer,omitempty"`
	ConsumerNode string `json:"consumer_node,omitempty"`
	Depth        int    `json:"depth"`
}

// TraceResult holds the trace of one recorded run.
type TraceResult struct {
	Run     tracestore.Run `json:"run"`
	Events  []TraceLine    `json:"events"`
	Counts  map[string]int `json:"counts"`
	LastSeq int64          `json:"last_seq"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Query recorded propagation traces",
		Long: `Query a trace database written by "rxstore run --trace-db".

Without --run, lists the recorded runs. With --run, prints the run's
events in order together with per-kind counts. Events can be narrowed to
one propagation pass (--pass) or to the history of one key (--key, or
--node with the scenario's node name).

Examples:
  rxstore trace --db ./traces.db
  rxstore trace --db ./traces.db --run 0190a3c4-...
  rxstore trace --db ./traces.db --run 0190a3c4-... --node d --scenario ./diamond.yaml
  rxstore trace --db ./traces.db --run 0190a3c4-... --pass pass-2 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite trace database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run id to show")
	cmd.Flags().StringVar(&opts.Pass, "pass", "", "only events of this propagation pass")
	cmd.Flags().StringVar(&opts.Key, "key", "", "only events touching this key")
	cmd.Flags().StringVar(&opts.Node, "node", "", "only events touching this scenario node")
	cmd.Flags().StringVar(&opts.Scenario, "scenario", "", "scenario file used to label keys with node names")
	cmd.MarkFlagsMutuallyExclusive("pass", "key", "node")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	// tracestore.Open creates missing databases; a query tool should not.
	if _, err := os.Stat(opts.Database); err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	st, err := tracestore.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	if opts.RunID == "" {
		if opts.Pass != "" || opts.Key != "" || opts.Node != "" {
			return NewExitError(ExitCommandError, "--pass, --key and --node require --run")
		}
		return listRuns(ctx, f, st)
	}

	run, err := st.ReadRun(ctx, opts.RunID)
	if errors.Is(err, sql.ErrNoRows) {
		return NewExitError(ExitCommandError, fmt.Sprintf("run not found: %s", opts.RunID))
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}

	names, err := nodeNames(opts.Scenario, run)
	if err != nil {
		return err
	}

	events, err := readTraceEvents(ctx, st, opts, run)
	if err != nil {
		return err
	}

	counts, err := st.CountByKind(ctx, run.ID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to count events", err)
	}
	lastSeq, err := st.MaxSeq(ctx, run.ID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read last seq", err)
	}

	result := TraceResult{
		Run:     run,
		Events:  buildTraceLines(events, names),
		Counts:  make(map[string]int, len(counts)),
		LastSeq: lastSeq,
	}
	for kind, n := range counts {
		result.Counts[string(kind)] = n
	}

	if f.JSON() {
		return f.Respond(result, nil)
	}
	writeTraceText(f.Writer, result)
	return nil
}

func readTraceEvents(ctx context.Context, st *tracestore.Store, opts *TraceOptions, run tracestore.Run) ([]engine.TraceEvent, error) {
	var (
		events []engine.TraceEvent
		err    error
	)
	switch {
	case opts.Pass != "":
		events, err = st.ReadPass(ctx, run.ID, opts.Pass)
	case opts.Key != "" || opts.Node != "":
		key, keyErr := resolveTraceKey(opts, run)
		if keyErr != nil {
			return nil, keyErr
		}
		events, err = st.ReadKeyHistory(ctx, run.ID, key)
	default:
		events, err = st.ReadEvents(ctx, run.ID)
	}
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to read events", err)
	}
	return events, nil
}

func resolveTraceKey(opts *TraceOptions, run tracestore.Run) (ir.Key, error) {
	if opts.Key != "" {
		key, err := ir.ParseKey(opts.Key)
		if err != nil {
			return ir.Key{}, WrapExitError(ExitCommandError, "invalid --key", err)
		}
		return key, nil
	}
	key, err := harness.NodeKey(run.Scenario, opts.Node)
	if err != nil {
		return ir.Key{}, WrapExitError(ExitCommandError, "invalid --node", err)
	}
	return key, nil
}

// nodeNames maps the keys of the scenario in path to node names. The
// scenario must be the one the run recorded.
func nodeNames(path string, run tracestore.Run) (map[ir.Key]string, error) {
	if path == "" {
		return nil, nil
	}
	scenario, lf := loadScenario(path)
	if lf != nil {
		return nil, NewExitError(lf.exitCode(), lf.Message)
	}
	if scenario.Name != run.Scenario {
		return nil, NewExitError(ExitCommandError,
			fmt.Sprintf("scenario %s does not match run scenario %s", scenario.Name, run.Scenario))
	}

	names := make(map[ir.Key]string)
	add := func(name string) error {
		key, err := harness.NodeKey(scenario.Name, name)
		if err != nil {
			return err
		}
		names[key] = name
		return nil
	}
	for _, a := range scenario.Atoms {
		if err := add(a.Name); err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to derive keys", err)
		}
	}
	for _, r := range scenario.Reactions {
		if err := add(r.Name); err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to derive keys", err)
		}
	}
	return names, nil
}

func buildTraceLines(events []engine.TraceEvent, names map[ir.Key]string) []TraceLine {
	lines := make([]TraceLine, 0, len(events))
	for _, ev := range events {
		line := TraceLine{
			Seq:   ev.Seq,
			Pass:  ev.PassID,
			Kind:  string(ev.Kind),
			Key:   ev.Key.String(),
			Node:  names[ev.Key],
			Depth: ev.Depth,
		}
		if !ev.Consumer.IsZero() {
			line.Consumer = ev.Consumer.String()
			line.ConsumerNode = names[ev.Consumer]
		}
		lines = append(lines, line)
	}
	return lines
}

func listRuns(ctx context.Context, f *OutputFormatter, st *tracestore.Store) error {
	runs, err := st.ListRuns(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}

	if f.JSON() {
		return f.Respond(runs, nil)
	}

	w := f.Writer
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}
	fmt.Fprintln(w, "=== Runs ===")
	for _, r := range runs {
		fmt.Fprintf(w, "  %s  %s (engine %s, keys v%s)\n", r.ID, r.Scenario, r.EngineVersion, r.KeyVersion)
	}
	return nil
}

func writeTraceText(w io.Writer, result TraceResult) {
	fmt.Fprintf(w, "Trace for run: %s\n", result.Run.ID)
	fmt.Fprintf(w, "Scenario: %s (engine %s, keys v%s)\n", result.Run.Scenario, result.Run.EngineVersion, result.Run.KeyVersion)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Events ===")
	if len(result.Events) == 0 {
		fmt.Fprintln(w, "  (no events)")
	}
	for _, line := range result.Events {
		pass := line.Pass
		if pass == "" {
			pass = "-"
		}
		fmt.Fprintf(w, "  [%d] %-12s %-12s %s", line.Seq, pass, line.Kind, label(line.Key, line.Node))
		if line.Consumer != "" {
			fmt.Fprintf(w, " → %s", label(line.Consumer, line.ConsumerNode))
		}
		if line.Depth > 0 {
			fmt.Fprintf(w, " (depth %d)", line.Depth)
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Counts ===")
	for _, kind := range sortedNames(result.Counts) {
		fmt.Fprintf(w, "  %-12s %d\n", kind+":", result.Counts[kind])
	}
	fmt.Fprintf(w, "  Last seq:    %d\n", result.LastSeq)
}

func label(key, node string) string {
	if node != "" {
		return node
	}
	return key
}

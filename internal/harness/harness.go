package harness

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/roach88/rxstore/internal/engine"
	"github.com/roach88/rxstore/internal/ir"
	"github.com/roach88/rxstore/internal/testutil"
)

// node is the part of a handle every scenario node has.
type node interface {
	engine.Observable[int64]
	Exists() bool
	SoftGet() (int64, bool)
	Remove() (int64, bool)
}

// atomNode is satisfied by both engine.Atom and engine.ReversibleAtom.
type atomNode interface {
	node
	Set(v int64)
	SetInert(v int64)
	Update(f func(*int64))
	ResetToDefault()
}

// Harness drives one scenario against a fresh runtime.
type Harness struct {
	scenario *Scenario
	rt       *engine.Runtime
	logger   *slog.Logger

	keys      map[string]ir.Key
	names     map[ir.Key]string
	nodes     map[string]node
	atoms     map[string]atomNode
	reactions map[string]engine.Reaction[int64]
	order     []string // declaration order

	runs   map[string]int // function runs during the current step
	step   int
	result *Result
}

// Option configures Run.
type Option func(*options)

type options struct {
	tracer  engine.Tracer
	metrics engine.Metrics
	logger  *slog.Logger
	check   func(*Scenario, *Result) []string
}

// WithTracer forwards every runtime event to t as well as to the result
// trace. The CLI uses it to persist runs in a trace store.
func WithTracer(t engine.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

// WithMetrics installs a metrics sink on the scenario's runtime.
func WithMetrics(m engine.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithLogger sets the runtime and harness logger. Default: discard.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithSuiteCheck adds a check RunSuite applies to every scenario that ran.
// Any messages it returns fail the scenario. Run ignores it.
func WithSuiteCheck(check func(*Scenario, *Result) []string) Option {
	return func(o *options) { o.check = check }
}

// Run executes a scenario and returns the result.
//
// Each run gets a fresh runtime with a deterministic clock and pass ids,
// so the trace of a scenario is identical on every run.
//
// Execution flow:
//  1. Validate the scenario (including the cycle check)
//  2. Declare atoms, then reactions in dependency order
//  3. Execute steps, checking each step's expectations
//  4. Evaluate assertions against the final trace and state
//
// A returned error means the scenario could not be set up; failed
// expectations are reported in Result.Errors.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	if err := ValidateScenario(scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	o := options{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&o)
	}

	h := &Harness{
		scenario:  scenario,
		logger:    o.logger,
		keys:      make(map[string]ir.Key),
		names:     make(map[ir.Key]string),
		nodes:     make(map[string]node),
		atoms:     make(map[string]atomNode),
		reactions: make(map[string]engine.Reaction[int64]),
		runs:      make(map[string]int),
		result:    NewResult(),
	}

	tee := engine.TracerFunc(func(ev engine.TraceEvent) {
		h.record(ev)
		if o.tracer != nil {
			o.tracer.Trace(ev)
		}
	})
	rtOpts := []engine.Option{
		engine.WithLogger(o.logger),
		engine.WithClock(testutil.NewDeterministicClock()),
		engine.WithPassGenerator(testutil.NewSequentialPassGenerator(scenario.PassPrefix)),
		engine.WithTracer(tee),
		engine.WithDedupPerPass(scenario.Dedup),
	}
	if scenario.MaxDepth > 0 {
		rtOpts = append(rtOpts, engine.WithMaxDepth(scenario.MaxDepth))
	}
	if o.metrics != nil {
		rtOpts = append(rtOpts, engine.WithMetrics(o.metrics))
	}
	h.rt = engine.New(rtOpts...)

	if err := engine.Catch(h.declare); err != nil {
		return nil, fmt.Errorf("failed to declare scenario %s: %w", scenario.Name, err)
	}

	for i, step := range scenario.Steps {
		h.runStep(i+1, step)
	}

	h.captureState()

	actx := &AssertionContext{Runtime: h.rt, Keys: h.keys, Names: h.names}
	for _, msg := range EvaluateAssertions(h.result, scenario.Assertions, actx) {
		h.result.AddError(msg)
	}

	h.logger.Info("scenario completed",
		"scenario", scenario.Name,
		"pass", h.result.Pass,
		"events", len(h.result.Trace),
		"errors", len(h.result.Errors),
	)
	return h.result, nil
}

func nodeSite(scenarioName string) ir.CallSite {
	return ir.NamedSite("harness", scenarioName)
}

// NodeKey returns the key a node of the named scenario is stored under,
// assuming no content-key collision was resolved during the run.
func NodeKey(scenarioName, node string) (ir.Key, error) {
	return ir.ContentKey(nodeSite(scenarioName), node)
}

// declare registers every node. Keys are content keys over the node name,
// so the same scenario always produces the same keys.
func (h *Harness) declare() {
	site := nodeSite(h.scenario.Name)
	resolve := func(name string) ir.Key {
		k := h.rt.MustResolveContentKey(site, name)
		h.keys[name] = k
		h.names[k] = name
		h.order = append(h.order, name)
		return k
	}

	for _, a := range h.scenario.Atoms {
		key := resolve(a.Name)
		init := func() int64 {
			h.runs[a.Name]++
			return a.Value
		}

		var n atomNode
		if a.Reversible {
			n = engine.NewReversibleAtom(h.rt, key, init)
		} else {
			n = engine.NewAtom(h.rt, key, init)
		}
		h.atoms[a.Name] = n
		h.nodes[a.Name] = n
	}

	for _, r := range h.scenario.declarationOrder() {
		key := resolve(r.Name)

		var n engine.Reaction[int64]
		if r.Suspended {
			n = engine.NewSuspendedReaction(h.rt, key, h.body(r))
		} else {
			n = engine.NewReaction(h.rt, key, h.body(r))
		}
		h.reactions[r.Name] = n
		h.nodes[r.Name] = n
	}
}

// body builds the reaction function for r. Inputs are read with Observe,
// so the reaction subscribes to exactly the inputs it reads.
func (h *Harness) body(r ReactionDecl) func() int64 {
	return func() int64 {
		h.runs[r.Name]++
		read := func(i int) int64 {
			return h.nodes[r.Inputs[i]].Observe()
		}

		switch r.Op {
		case OpSum:
			total := r.Constant
			for i := range r.Inputs {
				total += read(i)
			}
			return total
		case OpSub:
			total := read(0)
			for i := 1; i < len(r.Inputs); i++ {
				total -= read(i)
			}
			return total + r.Constant
		case OpProduct:
			total := int64(1)
			for i := range r.Inputs {
				total *= read(i)
			}
			if r.Constant != 0 {
				total *= r.Constant
			}
			return total
		case OpSelect:
			if read(0) != 0 {
				return read(1)
			}
			return read(2)
		case OpCopy:
			return read(0) + r.Constant
		}
		panic(fmt.Sprintf("harness: unknown op %q", r.Op))
	}
}

// runStep applies one step and checks its expectations.
func (h *Harness) runStep(n int, step Step) {
	h.step = n
	clear(h.runs)
	field := fmt.Sprintf("steps[%d] %s", n-1, step.Op)

	var stepErr error
	err := engine.Catch(func() { stepErr = h.apply(step) })
	if err == nil {
		err = stepErr
	}

	switch {
	case step.Error != "" && err == nil:
		h.result.AddError(fmt.Sprintf("%s: expected error %s, got none", field, step.Error))
	case step.Error != "" && string(engine.Code(err)) != step.Error:
		h.result.AddError(fmt.Sprintf("%s: expected error %s, got %v", field, step.Error, err))
	case step.Error == "" && err != nil:
		h.result.AddError(fmt.Sprintf("%s: unexpected error: %v", field, err))
	}

	for _, name := range sortedKeys(step.Expect) {
		want := step.Expect[name]
		got, ok := h.nodes[name].SoftGet()
		switch {
		case !ok:
			h.result.AddError(fmt.Sprintf("%s: %s: expected %d, got no value", field, name, want))
		case got != want:
			h.result.AddError(fmt.Sprintf("%s: %s: expected %d, got %d", field, name, want, got))
		}
	}
	for _, name := range step.Absent {
		if got, ok := h.nodes[name].SoftGet(); ok {
			h.result.AddError(fmt.Sprintf("%s: %s: expected no value, got %d", field, name, got))
		}
	}
	for _, name := range sortedKeys(step.Runs) {
		if want, got := step.Runs[name], h.runs[name]; got != want {
			h.result.AddError(fmt.Sprintf("%s: %s: expected %d runs, got %d", field, name, want, got))
		}
	}

	h.logger.Debug("scenario step completed",
		"step", n,
		"op", step.Op,
		"target", step.Target,
		"error", err,
	)
}

// apply performs the step's action. Runtime failures panic and are caught
// by runStep; travel reports its range error as a return value.
func (h *Harness) apply(step Step) error {
	history := h.rt.History()

	switch step.Op {
	case StepSet:
		h.atoms[step.Target].Set(step.Value)
	case StepInertSet:
		h.atoms[step.Target].SetInert(step.Value)
	case StepUpdateAdd:
		h.atoms[step.Target].Update(func(v *int64) { *v += step.Value })
	case StepReset:
		h.atoms[step.Target].ResetToDefault()
	case StepRemove:
		h.nodes[step.Target].Remove()
	case StepTrigger:
		h.reactions[step.Target].Trigger()
	case StepUndo:
		if !history.TravelBackwards() {
			h.logger.Debug("nothing to undo", "step", h.step)
		}
	case StepRedo:
		if !history.TravelForwards() {
			h.logger.Debug("nothing to redo", "step", h.step)
		}
	case StepTravel:
		return history.TravelToCursor(step.Cursor)
	default:
		return fmt.Errorf("unknown step op %q", step.Op)
	}
	return nil
}

func (h *Harness) record(ev engine.TraceEvent) {
	te := TraceEvent{
		Seq:   ev.Seq,
		Step:  h.step,
		Pass:  ev.PassID,
		Kind:  ev.Kind,
		Node:  h.label(ev.Key),
		Depth: ev.Depth,
	}
	if !ev.Consumer.IsZero() {
		te.Consumer = h.label(ev.Consumer)
	}
	h.result.Trace = append(h.result.Trace, te)
}

func (h *Harness) label(k ir.Key) string {
	if name, ok := h.names[k]; ok {
		return name
	}
	return k.String()
}

func (h *Harness) captureState() {
	for _, name := range h.order {
		if v, ok := h.nodes[name].SoftGet(); ok {
			h.result.State[name] = v
		}
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

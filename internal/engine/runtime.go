package engine

import (
	"bytes"
	"fmt"
	"log/slog"

	"github.com/roach88/rxstore/internal/graph"
	"github.com/roach88/rxstore/internal/ir"
	"github.com/roach88/rxstore/internal/store"
)

// NodeKind records how a key was registered.
type NodeKind string

const (
	NodeAtom     NodeKind = "atom"
	NodeReaction NodeKind = "reaction"
	NodeState    NodeKind = "state"
)

// Runtime owns one typed store, its dependency graph and its history.
//
// A Runtime is confined to one goroutine. Nothing on the read or write path
// takes a lock; sharing a Runtime across goroutines is a data race.
//
// INVARIANTS:
//   - A key holds at most one value of one concrete type at a time
//   - After a reaction recomputes, its incoming edges equal exactly the set
//     of keys it observed during that recompute
//   - The history cursor is always in [0, len]
type Runtime struct {
	store   *store.Store
	graph   *graph.Graph
	history *UndoStore

	kinds   map[ir.Key]NodeKind
	content map[ir.Key][]byte // canonical args per content key

	contexts []*ReactiveContext
	frames   []*frame

	// Propagation guards
	cycles      *CycleDetector
	depth       *DepthEnforcer
	pass        *passState
	detectCycle bool
	dedupPass   bool

	logger  *slog.Logger
	tracer  Tracer
	metrics Metrics
	clock   SeqSource
	passGen PassGenerator
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(rt *Runtime) {
		if logger != nil {
			rt.logger = logger
		}
	}
}

// WithMaxDepth sets the maximum propagation depth.
//
// Default: 1000 (DefaultMaxDepth). Zero or negative disables the limit.
func WithMaxDepth(maxDepth int) Option {
	return func(rt *Runtime) {
		rt.depth = NewDepthEnforcer(maxDepth)
	}
}

// WithCycleDetection toggles the on-path revisit check. Default: enabled.
// With detection off, a cyclic graph recurses until WithMaxDepth stops it.
func WithCycleDetection(enabled bool) Option {
	return func(rt *Runtime) {
		rt.detectCycle = enabled
	}
}

// WithDedupPerPass makes a propagation pass recompute each dependent exactly
// once, in producer-before-consumer order. Default: disabled, so a diamond
// A → {B, C} → D recomputes D once per path.
func WithDedupPerPass(enabled bool) Option {
	return func(rt *Runtime) {
		rt.dedupPass = enabled
	}
}

// WithTracer installs a trace sink. Default: none.
func WithTracer(t Tracer) Option {
	return func(rt *Runtime) {
		rt.tracer = t
	}
}

// WithMetrics installs a metrics sink. Default: no-op.
func WithMetrics(m Metrics) Option {
	return func(rt *Runtime) {
		if m != nil {
			rt.metrics = m
		}
	}
}

// WithClock sets the sequence source for trace events.
func WithClock(c SeqSource) Option {
	return func(rt *Runtime) {
		if c != nil {
			rt.clock = c
		}
	}
}

// WithPassGenerator sets the pass id generator. Default: UUIDv7Generator.
func WithPassGenerator(g PassGenerator) Option {
	return func(rt *Runtime) {
		if g != nil {
			rt.passGen = g
		}
	}
}

// New creates an empty Runtime.
func New(opts ...Option) *Runtime {
	rt := &Runtime{
		store:       store.New(),
		graph:       graph.New(),
		kinds:       make(map[ir.Key]NodeKind),
		content:     make(map[ir.Key][]byte),
		cycles:      NewCycleDetector(),
		depth:       NewDepthEnforcer(DefaultMaxDepth),
		detectCycle: true,
		logger:      slog.Default(),
		metrics:     nopMetrics{},
		clock:       NewClock(),
		passGen:     UUIDv7Generator{},
	}
	rt.history = newUndoStore(rt)

	for _, opt := range opts {
		opt(rt)
	}

	rt.frames = []*frame{newRootFrame()}
	return rt
}

// History returns the runtime's reversible queue.
func (rt *Runtime) History() *UndoStore {
	return rt.history
}

// Logger returns the runtime's logger.
func (rt *Runtime) Logger() *slog.Logger {
	return rt.logger
}

// =============================================================================
// Key resolution
// =============================================================================

// ResolveContentKey returns the content key for (site, args...).
//
// Identical inputs always resolve to the same key. When two distinct argument
// tuples hash to the same 64-bit value, the second one is moved to the next
// free disambiguation slot, so both keep separate storage.
func (rt *Runtime) ResolveContentKey(site ir.CallSite, args ...any) (ir.Key, error) {
	canonical, err := ir.CanonicalArgs(site, args...)
	if err != nil {
		return ir.Key{}, fmt.Errorf("resolve content key at %s: %w", site, err)
	}
	k, err := ir.ContentKey(site, args...)
	if err != nil {
		return ir.Key{}, fmt.Errorf("resolve content key at %s: %w", site, err)
	}
	return rt.claimContentKey(k, canonical), nil
}

// MustResolveContentKey is like ResolveContentKey but panics on error.
func (rt *Runtime) MustResolveContentKey(site ir.CallSite, args ...any) ir.Key {
	k, err := rt.ResolveContentKey(site, args...)
	if err != nil {
		panic(err)
	}
	return k
}

// claimContentKey probes slots starting at k until it finds the slot owned by
// canonical or an unclaimed one.
func (rt *Runtime) claimContentKey(k ir.Key, canonical []byte) ir.Key {
	for slot := k.Slot; ; slot++ {
		candidate := k.WithSlot(slot)
		owner, claimed := rt.content[candidate]
		if !claimed {
			rt.content[candidate] = canonical
			if slot != k.Slot {
				rt.logger.Warn("content key collision",
					"hash", fmt.Sprintf("%016x", k.Hash),
					"slot", slot)
			}
			return candidate
		}
		if bytes.Equal(owner, canonical) {
			return candidate
		}
	}
}

// ResolvePositionalKey returns the key for the next activation of site in the
// current frame. See Nested for how frames count activations.
func (rt *Runtime) ResolvePositionalKey(site ir.CallSite) ir.Key {
	return rt.topFrame().resolve(site)
}

// =============================================================================
// Enumeration and sweep
// =============================================================================

// Keys returns every key that holds a value or a registered RxFunc, in a
// stable order.
func (rt *Runtime) Keys() []ir.Key {
	return rt.store.Keys()
}

// Kind returns how key was registered.
func (rt *Runtime) Kind(key ir.Key) (NodeKind, bool) {
	k, ok := rt.kinds[key]
	return k, ok
}

// Exists reports whether key currently holds a value.
func (rt *Runtime) Exists(key ir.Key) bool {
	return rt.store.Exists(key)
}

// Dependents returns the consumers of key in propagation order.
func (rt *Runtime) Dependents(key ir.Key) []ir.Key {
	return rt.graph.Dependents(key)
}

// Producers returns the keys the reaction at key depends on: what its last
// completed run observed, plus anything read by an aborted run since.
func (rt *Runtime) Producers(key ir.Key) []ir.Key {
	return rt.graph.Producers(key)
}

// Edges returns a snapshot of the dependency graph.
func (rt *Runtime) Edges() []graph.Edge {
	return rt.graph.Edges()
}

// AnalyzeCycles reports dependency cycles in the current graph.
func (rt *Runtime) AnalyzeCycles(label graph.Labeler) []graph.CycleWarning {
	return rt.graph.AnalyzeCycles(label)
}

// Purge drops keys entirely: stored value, registered RxFunc, every edge
// touching the key, and bookkeeping. Unknown keys are ignored.
// Returns the number of keys that held anything.
func (rt *Runtime) Purge(keys ...ir.Key) int {
	purged := 0
	edges := 0
	for _, key := range keys {
		hadValue := rt.store.Delete(key)
		hadReaction := rt.store.UnregisterReaction(key)
		edges += rt.graph.RemoveNode(key)
		delete(rt.kinds, key)
		delete(rt.content, key)

		if hadValue || hadReaction {
			purged++
			rt.emit(EventPurge, key, ir.Key{})
		}
	}
	if edges > 0 {
		rt.metrics.Edges(0, edges)
	}
	rt.logger.Debug("purge", "requested", len(keys), "purged", purged, "edges_removed", edges)
	return purged
}

// =============================================================================
// Internal helpers
// =============================================================================

// emit sends a trace event if a tracer is installed.
func (rt *Runtime) emit(kind EventKind, key, consumer ir.Key) {
	if rt.tracer == nil {
		return
	}
	ev := TraceEvent{
		Seq:      rt.clock.Next(),
		Kind:     kind,
		Key:      key,
		Consumer: consumer,
		Depth:    rt.depth.Current(),
	}
	if rt.pass != nil {
		ev.PassID = rt.pass.id
	}
	rt.tracer.Trace(ev)
}

// fail records a runtime error and raises it.
func (rt *Runtime) fail(err *RuntimeError) {
	rt.metrics.Failure(string(err.Code))
	rt.logger.Debug("runtime error", "code", err.Code, "key", err.Key, "message", err.Message)
	panic(err)
}

// peek reads the value at key as a T, raising on absence or mismatch.
func peek[T any](rt *Runtime, key ir.Key) T {
	v, err := store.Peek[T](rt.store, key)
	if err != nil {
		rt.fail(fromStoreError(key, err))
	}
	return v
}

// softPeek reads the value at key, reporting false if absent. A type
// mismatch still raises.
func softPeek[T any](rt *Runtime, key ir.Key) (T, bool) {
	v, err := store.Peek[T](rt.store, key)
	if err != nil {
		if store.IsAbsent(err) {
			var zero T
			return zero, false
		}
		rt.fail(fromStoreError(key, err))
	}
	return v, true
}

// checkWritable raises if key holds a value of a type other than T.
func checkWritable[T any](rt *Runtime, key ir.Key) {
	if !rt.store.Exists(key) {
		return
	}
	if _, err := store.Peek[T](rt.store, key); err != nil {
		rt.fail(fromStoreError(key, err))
	}
}

// writeInert stores v at key without propagating.
func writeInert[T any](rt *Runtime, key ir.Key, v T) {
	checkWritable[T](rt, key)
	rt.store.InsertInert(key, v)
	rt.emit(EventInertWrite, key, ir.Key{})
}

// writeLive stores v at key and propagates.
func writeLive[T any](rt *Runtime, key ir.Key, v T) {
	checkWritable[T](rt, key)
	rt.store.InsertInert(key, v)
	rt.emit(EventWrite, key, ir.Key{})
	rt.Propagate(key)
}

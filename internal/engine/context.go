package engine

import (
	"slices"

	"github.com/roach88/rxstore/internal/ir"
)

// ReactiveContext records what one reaction reads during one evaluation.
//
// A context is opened when a reaction body starts and closed when it
// returns. While it is the innermost open context, every Observe appends the
// observed key and adds a producer → reaction edge.
type ReactiveContext struct {
	key      ir.Key
	observed []ir.Key
}

// Key returns the key of the reaction being evaluated.
func (c *ReactiveContext) Key() ir.Key {
	return c.key
}

// Observed returns the keys read so far, in read order, duplicates included.
func (c *ReactiveContext) Observed() []ir.Key {
	return slices.Clone(c.observed)
}

// CurrentContext returns the innermost open reactive context.
func (rt *Runtime) CurrentContext() (*ReactiveContext, bool) {
	if len(rt.contexts) == 0 {
		return nil, false
	}
	return rt.contexts[len(rt.contexts)-1], true
}

func (rt *Runtime) openContext(key ir.Key) *ReactiveContext {
	ctx := &ReactiveContext{key: key}
	rt.contexts = append(rt.contexts, ctx)
	rt.frames = append(rt.frames, newFrame(key))
	return ctx
}

func (rt *Runtime) closeContext() {
	rt.contexts = rt.contexts[:len(rt.contexts)-1]
	rt.frames = rt.frames[:len(rt.frames)-1]
}

// track records that the current context read producer.
func (rt *Runtime) track(ctx *ReactiveContext, producer ir.Key) {
	ctx.observed = append(ctx.observed, producer)
	if rt.graph.AddEdge(producer, ctx.key) {
		rt.metrics.Edges(1, 0)
		rt.emit(EventEdgeAdded, producer, ctx.key)
	}
}

// pruneDeadLinks removes edges into the reaction from producers this
// evaluation did not read. The graph is the reference, not an earlier
// observed set: an evaluation that aborted may have added edges nobody
// recorded.
func (rt *Runtime) pruneDeadLinks(ctx *ReactiveContext) {
	seen := make(map[ir.Key]struct{}, len(ctx.observed))
	for _, k := range ctx.observed {
		seen[k] = struct{}{}
	}

	removed := 0
	for _, producer := range rt.graph.Producers(ctx.key) {
		if _, still := seen[producer]; still {
			continue
		}
		if rt.graph.RemoveEdge(producer, ctx.key) {
			removed++
			rt.emit(EventEdgeRemoved, producer, ctx.key)
		}
	}
	if removed > 0 {
		rt.metrics.Edges(0, removed)
		rt.logger.Debug("pruned dead links", "key", ctx.key, "removed", removed)
	}
}

// =============================================================================
// Positional frames
// =============================================================================

// frame is one level of the nested call tree used for positional keys.
type frame struct {
	key    ir.Key
	counts map[ir.CallSite]int

	// The top-level frame does not count activations: a call site outside any
	// Nested or reaction frame always resolves to the same key.
	root bool
}

func newFrame(key ir.Key) *frame {
	return &frame{key: key, counts: make(map[ir.CallSite]int)}
}

func newRootFrame() *frame {
	return &frame{key: ir.RootKey, root: true}
}

func (f *frame) resolve(site ir.CallSite) ir.Key {
	if f.root {
		return ir.PositionalKey(f.key, site, 0)
	}
	i := f.counts[site]
	f.counts[site] = i + 1
	return ir.PositionalKey(f.key, site, i)
}

func (rt *Runtime) topFrame() *frame {
	return rt.frames[len(rt.frames)-1]
}

// Nested runs fn in a child frame positioned at the caller's call site.
//
// Inside the child frame, each call site counts its activations, so the
// second UseState at the same line gets its own key. Running the same Nested
// call again starts counting from zero, so state keys are stable across runs.
func (rt *Runtime) Nested(fn func()) {
	rt.nestedAt(ir.Caller(1), fn)
}

func (rt *Runtime) nestedAt(site ir.CallSite, fn func()) {
	rt.Root(rt.ResolvePositionalKey(site), fn)
}

// Root runs fn in a fresh frame whose positional keys derive from key.
// Reaction bodies run under Root(reactionKey).
func (rt *Runtime) Root(key ir.Key, fn func()) {
	rt.frames = append(rt.frames, newFrame(key))
	defer func() { rt.frames = rt.frames[:len(rt.frames)-1] }()
	fn()
}

package engine

import (
	"slices"

	"github.com/roach88/rxstore/internal/ir"
	"github.com/roach88/rxstore/internal/store"
)

// passState spans one top-level propagation, including propagations
// started by writes inside reaction bodies.
type passState struct {
	id         string
	recomputes int

	// scheduled holds keys an ordered propagation has queued but not yet
	// recomputed. A nested propagation leaves them to the outer one.
	scheduled map[ir.Key]bool
}

// Propagate re-runs every dependent of key, depth-first in edge insertion
// order, recursing into each dependent's own dependents after it recomputes.
//
// By default a key reachable along two paths recomputes once per path, and
// the first of those runs sees the other path's stale value. With
// WithDedupPerPass every reachable dependent recomputes once per pass, after
// all of its affected producers. A reaction body that writes during the pass
// recomputes the written key's dependents again if they already ran.
//
// A failure in any RxFunc aborts the pass. Dependents that already
// recomputed keep their new values; nothing is rolled back.
func (rt *Runtime) Propagate(key ir.Key) {
	rt.inPass(func() {
		rt.propagateFrom(key)
	})
}

// inPass runs fn inside a propagation pass, starting one if none is active.
func (rt *Runtime) inPass(fn func()) {
	if rt.pass != nil {
		fn()
		return
	}

	p := &passState{scheduled: make(map[ir.Key]bool)}
	if rt.tracer != nil {
		p.id = rt.passGen.Generate()
	}
	rt.pass = p
	rt.depth.Reset()

	completed := false
	defer func() {
		rt.pass = nil
		if !completed {
			rt.cycles.Clear()
			rt.depth.Reset()
			rt.logger.Error("propagation aborted",
				"pass", p.id,
				"recomputes", p.recomputes)
			return
		}
		rt.metrics.Pass(p.recomputes, rt.depth.Peak())
		rt.logger.Debug("propagation complete",
			"pass", p.id,
			"recomputes", p.recomputes,
			"peak_depth", rt.depth.Peak())
	}()

	fn()
	completed = true
}

func (rt *Runtime) propagateFrom(key ir.Key) {
	rt.cycles.Enter(key)
	defer rt.cycles.Leave(key)
	rt.propagate(key)
}

func (rt *Runtime) propagate(key ir.Key) {
	if rt.dedupPass {
		rt.propagateOrdered(key)
		return
	}
	for _, dep := range rt.graph.Dependents(key) {
		fn, ok := rt.store.Reaction(dep)
		if !ok {
			// Consumer was dropped without going through Purge.
			rt.graph.RemoveEdge(key, dep)
			continue
		}
		rt.step(dep, fn)
	}
}

// step recomputes dep and then its own dependents.
func (rt *Runtime) step(dep ir.Key, fn store.Func) {
	if rt.detectCycle && rt.cycles.WouldCycle(dep) {
		rt.fail(NewCycleError(dep, rt.cycles.Path()))
	}
	if err := rt.depth.Enter(dep); err != nil {
		rt.fail(err)
	}
	rt.cycles.Enter(dep)
	defer func() {
		rt.cycles.Leave(dep)
		rt.depth.Leave()
	}()

	rt.invoke(dep, fn)
	rt.propagate(dep)
}

// propagateOrdered collects everything reachable from key, orders it so
// producers come before consumers, and recomputes each key once.
//
// A write from inside a reaction body starts a nested call. Keys an
// enclosing call still has queued are skipped, since they run later anyway;
// keys that already ran are recomputed again so they see the new value.
func (rt *Runtime) propagateOrdered(key ir.Key) {
	const (
		onStack = 1
		done    = 2
	)
	state := map[ir.Key]int{key: onStack}
	var post []ir.Key

	var visit func(k ir.Key)
	visit = func(k ir.Key) {
		for _, dep := range rt.graph.Dependents(k) {
			switch state[dep] {
			case onStack:
				if rt.detectCycle {
					rt.fail(NewCycleError(dep, rt.cycles.Path()))
				}
				continue
			case done:
				continue
			}
			if err := rt.depth.Enter(dep); err != nil {
				rt.fail(err)
			}
			state[dep] = onStack
			rt.cycles.Enter(dep)
			visit(dep)
			rt.cycles.Leave(dep)
			rt.depth.Leave()
			state[dep] = done
			post = append(post, dep)
		}
	}
	visit(key)

	order := make([]ir.Key, 0, len(post))
	for _, dep := range slices.Backward(post) {
		if rt.pass.scheduled[dep] {
			continue
		}
		rt.pass.scheduled[dep] = true
		order = append(order, dep)
	}

	for _, dep := range order {
		delete(rt.pass.scheduled, dep)
		if fn, ok := rt.store.Reaction(dep); ok {
			rt.invoke(dep, fn)
		}
	}
}

// invoke runs one RxFunc.
func (rt *Runtime) invoke(key ir.Key, fn store.Func) {
	if rt.pass != nil {
		rt.pass.recomputes++
	}
	kind := rt.kinds[key]
	rt.metrics.Recompute(string(kind))
	rt.emit(EventRecompute, key, ir.Key{})
	rt.logger.Debug("recompute", "key", key, "kind", kind, "depth", rt.depth.Current())
	fn()
}

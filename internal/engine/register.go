package engine

import (
	"github.com/roach88/rxstore/internal/ir"
)

// NewAtom declares directly settable state at key.
//
// If key holds no value, init is wrapped as the key's RxFunc, registered and
// run once to store the initial value. Otherwise NewAtom only returns a
// handle: repeated declarations converge on one value.
func NewAtom[T any](rt *Runtime, key ir.Key, init func() T) Atom[T] {
	if !rt.store.Exists(key) {
		fn := func() {
			writeInit(rt, key, init())
		}
		rt.store.RegisterReaction(key, fn)
		rt.kinds[key] = NodeAtom
		rt.invoke(key, fn)
	}
	return Atom[T]{handle[T]{rt: rt, key: key}}
}

// NewReaction declares derived state at key.
//
// If key holds no value, body is registered as the key's RxFunc and
// evaluated once inside a fresh ReactiveContext. Every Observe in body
// subscribes the reaction to the observed key.
func NewReaction[T any](rt *Runtime, key ir.Key, body func() T) Reaction[T] {
	if !rt.store.Exists(key) {
		fn := func() {
			evaluate(rt, key, body)
		}
		rt.store.RegisterReaction(key, fn)
		rt.kinds[key] = NodeReaction
		rt.invoke(key, fn)
	}
	return Reaction[T]{handle[T]{rt: rt, key: key}}
}

// NewSuspendedReaction registers body at key without evaluating it.
//
// The key stays valueless (registered but unevaluated) until Trigger is
// called. Get on it before then raises an absent-key error.
func NewSuspendedReaction[T any](rt *Runtime, key ir.Key, body func() T) Reaction[T] {
	if !rt.store.Exists(key) && !rt.store.HasReaction(key) {
		rt.store.RegisterReaction(key, func() {
			evaluate(rt, key, body)
		})
		rt.kinds[key] = NodeReaction
	}
	return Reaction[T]{handle[T]{rt: rt, key: key}}
}

// NewReactionWithPrevious is like NewReaction, but body also receives the
// value stored by the previous evaluation. ok is false on the first run.
func NewReactionWithPrevious[T any](rt *Runtime, key ir.Key, body func(prev T, ok bool) T) Reaction[T] {
	return NewReaction(rt, key, func() T {
		prev, ok := softPeek[T](rt, key)
		return body(prev, ok)
	})
}

// NewReversibleAtom is NewAtom whose creation is recorded on the history:
// undoing it removes the key, redoing it re-runs init.
func NewReversibleAtom[T any](rt *Runtime, key ir.Key, init func() T) ReversibleAtom[T] {
	if !rt.store.Exists(key) {
		fn := func() {
			writeInit(rt, key, init())
		}
		rt.store.RegisterReaction(key, fn)
		rt.kinds[key] = NodeAtom
		rt.invoke(key, fn)

		rt.history.Record(Command{
			Key:  key,
			Do:   fn,
			Undo: func() { removeInert(rt, key) },
		})
	}
	return ReversibleAtom[T]{handle[T]{rt: rt, key: key}}
}

// evaluate runs one reaction body under its own context and frame, stores
// the result and prunes edges the body no longer reads.
func evaluate[T any](rt *Runtime, key ir.Key, body func() T) {
	ctx := rt.openContext(key)
	var v T
	func() {
		defer rt.closeContext()
		v = body()
	}()

	checkWritable[T](rt, key)
	rt.store.InsertInert(key, v)
	rt.pruneDeadLinks(ctx)
}

// writeInit stores an initializer's result. Initializers run outside any
// reactive context.
func writeInit[T any](rt *Runtime, key ir.Key, v T) {
	checkWritable[T](rt, key)
	rt.store.InsertInert(key, v)
}

func removeInert(rt *Runtime, key ir.Key) {
	if rt.store.Delete(key) {
		rt.emit(EventRemove, key, ir.Key{})
	}
}

package engine

import (
	"github.com/roach88/rxstore/internal/ir"
	"github.com/roach88/rxstore/internal/store"
)

// State is per-call-site state addressed by a positional key. Reads and
// writes never propagate and never subscribe.
type State[T any] struct {
	rt  *Runtime
	key ir.Key
}

// Key returns the positional key backing the state.
func (s State[T]) Key() ir.Key { return s.key }

// Get returns a copy of the state.
func (s State[T]) Get() T { return peek[T](s.rt, s.key) }

// Set stores v.
func (s State[T]) Set(v T) { writeInert(s.rt, s.key, v) }

// Update mutates the state in place.
func (s State[T]) Update(f func(*T)) {
	if err := store.Update(s.rt.store, s.key, f); err != nil {
		s.rt.fail(fromStoreError(s.key, err))
	}
}

// UseState returns the state owned by the caller's position, creating it
// from init the first time that position is reached.
//
// Outside Nested and reaction bodies a call site always maps to the same
// state. Inside them, each activation of the call site in one run gets its
// own state, and the same activation maps to the same state on every run.
func UseState[T any](rt *Runtime, init func() T) State[T] {
	return useStateAt(rt, ir.Caller(1), init)
}

func useStateAt[T any](rt *Runtime, site ir.CallSite, init func() T) State[T] {
	key := rt.ResolvePositionalKey(site)
	if !rt.store.Exists(key) {
		writeInit(rt, key, init())
		rt.kinds[key] = NodeState
	}
	return State[T]{rt: rt, key: key}
}

// DoOnce runs fn the first time the caller's position is reached and
// reports whether it ran.
func DoOnce(rt *Runtime, fn func()) bool {
	done := useStateAt(rt, ir.Caller(1), func() bool { return false })
	if done.Get() {
		return false
	}
	done.Set(true)
	fn()
	return true
}

// =============================================================================
// Change detection
// =============================================================================

type changeState[T any] struct {
	prev, last T
}

// ObserveChange reads h (subscribing the current reaction, if any) and
// compares it with the value seen the last time this position ran.
//
// The first call records the current value and reports no change, with
// prev == cur. After a change, prev is the value before it; repeated calls
// without a change keep returning the same pair.
func ObserveChange[T comparable](h Observable[T]) (prev, cur T, changed bool) {
	return observeChangeAt(h, ir.Caller(1))
}

// HasChanged reports whether h differs from the value seen the last time
// this position ran. The first call reports false.
func HasChanged[T comparable](h Observable[T]) bool {
	_, _, changed := observeChangeAt(h, ir.Caller(1))
	return changed
}

// OnChange calls fn with the (previous, current) pair tracked for this
// position and reports whether the value changed since the last call.
func OnChange[T comparable](h Observable[T], fn func(prev, cur T)) bool {
	prev, cur, changed := observeChangeAt(h, ir.Caller(1))
	fn(prev, cur)
	return changed
}

func observeChangeAt[T comparable](h Observable[T], site ir.CallSite) (prev, cur T, changed bool) {
	rt := h.Runtime()
	value := ObserveWith(h, func(v T) T { return v })
	st := useStateAt(rt, site, func() changeState[T] {
		return changeState[T]{prev: value, last: value}
	})

	s := st.Get()
	if s.last != value {
		s = changeState[T]{prev: s.last, last: value}
		st.Set(s)
		return s.prev, s.last, true
	}
	return s.prev, s.last, false
}

// HasUpdated reports whether this position has seen h before. It subscribes
// the current reaction to h, so inside a reaction body it is true on every
// recompute after the first evaluation.
func HasUpdated[T any](h Observable[T]) bool {
	return hasUpdatedAt(h, ir.Caller(1))
}

// OnUpdate runs fn when HasUpdated would report true, and reports whether
// it ran.
func OnUpdate[T any](h Observable[T], fn func()) bool {
	if !hasUpdatedAt(h, ir.Caller(1)) {
		return false
	}
	fn()
	return true
}

func hasUpdatedAt[T any](h Observable[T], site ir.CallSite) bool {
	first := useStateAt(h.Runtime(), site, func() bool { return true })
	ObserveWith(h, func(T) struct{} { return struct{}{} })
	if first.Get() {
		first.Set(false)
		return false
	}
	return true
}

package engine

import (
	"fmt"

	"github.com/roach88/rxstore/internal/ir"
	"github.com/roach88/rxstore/internal/store"
)

// Observable is any typed handle whose value can be read and subscribed to.
type Observable[T any] interface {
	Key() ir.Key
	Runtime() *Runtime
	Get() T
	Observe() T
}

// handle is the read surface shared by every typed handle. Handles are
// small values; copying one does not copy the stored data.
type handle[T any] struct {
	rt  *Runtime
	key ir.Key
}

// Key returns the identity key the handle addresses.
func (h handle[T]) Key() ir.Key { return h.key }

// Runtime returns the runtime the handle belongs to.
func (h handle[T]) Runtime() *Runtime { return h.rt }

// Exists reports whether the key holds a value of type T.
func (h handle[T]) Exists() bool {
	_, err := store.Peek[T](h.rt.store, h.key)
	return err == nil
}

// Get returns a copy of the stored value without subscribing.
// It panics with an ABSENT_KEY or TYPE_MISMATCH RuntimeError.
func (h handle[T]) Get() T {
	return peek[T](h.rt, h.key)
}

// SoftGet is Get that reports false instead of panicking when the key is
// empty.
func (h handle[T]) SoftGet() (T, bool) {
	return softPeek[T](h.rt, h.key)
}

// Observe returns a copy of the stored value and subscribes the reaction
// being evaluated to this key. Called outside a reaction body it panics
// with NO_REACTIVE_CONTEXT.
func (h handle[T]) Observe() T {
	ctx, ok := h.rt.CurrentContext()
	if !ok {
		h.rt.fail(NewNoContextError(h.key))
	}
	h.rt.track(ctx, h.key)
	return peek[T](h.rt, h.key)
}

func (h handle[T]) String() string {
	return fmt.Sprintf("%T(%s)", h, h.key)
}

// GetWith applies f to the stored value without copying it out. The key is
// checked out while f runs, so reading the same key from inside f fails with
// ABSENT_KEY.
func GetWith[T, R any](h Observable[T], f func(T) R) R {
	rt := h.Runtime()
	r, err := store.ReadWith(rt.store, h.Key(), func(v *T) R {
		return f(*v)
	})
	if err != nil {
		rt.fail(fromStoreError(h.Key(), err))
	}
	return r
}

// ObserveWith is GetWith that also subscribes the current reaction, if any.
// Unlike Observe it does not require a reactive context.
func ObserveWith[T, R any](h Observable[T], f func(T) R) R {
	rt := h.Runtime()
	if ctx, ok := rt.CurrentContext(); ok {
		rt.track(ctx, h.Key())
	}
	return GetWith(h, f)
}

// =============================================================================
// Atom
// =============================================================================

// Atom is a handle to directly settable state.
type Atom[T any] struct {
	handle[T]
}

// Set stores v and propagates to every dependent.
func (a Atom[T]) Set(v T) {
	writeLive(a.rt, a.key, v)
}

// SetInert stores v without propagating. Dependents keep their old values
// until something else triggers them.
func (a Atom[T]) SetInert(v T) {
	writeInert(a.rt, a.key, v)
}

// Update mutates the stored value in place and propagates.
func (a Atom[T]) Update(f func(*T)) {
	if err := store.Update(a.rt.store, a.key, f); err != nil {
		a.rt.fail(fromStoreError(a.key, err))
	}
	a.rt.emit(EventWrite, a.key, ir.Key{})
	a.rt.Propagate(a.key)
}

// Remove takes the value out of the store. Dependents are not notified; the
// next one to read the key fails with ABSENT_KEY.
func (a Atom[T]) Remove() (T, bool) {
	return removeValue[T](a.rt, a.key)
}

// Delete removes the value and discards it.
func (a Atom[T]) Delete() {
	removeValue[T](a.rt, a.key)
}

// ResetToDefault re-runs the initializer the atom was declared with and
// propagates.
func (a Atom[T]) ResetToDefault() {
	rerun(a.rt, a.key)
}

// =============================================================================
// Reaction
// =============================================================================

// Reaction is a handle to derived state.
type Reaction[T any] struct {
	handle[T]
}

// Remove takes the value out of the store. The RxFunc stays registered, so
// the next propagation reaching the reaction recreates it.
func (r Reaction[T]) Remove() (T, bool) {
	return removeValue[T](r.rt, r.key)
}

// Delete removes the value and discards it.
func (r Reaction[T]) Delete() {
	removeValue[T](r.rt, r.key)
}

// Trigger recomputes the reaction now and propagates to its dependents.
// This is also how a suspended reaction gets its first value.
func (r Reaction[T]) Trigger() {
	rerun(r.rt, r.key)
}

func removeValue[T any](rt *Runtime, key ir.Key) (T, bool) {
	v, err := store.Take[T](rt.store, key)
	if err != nil {
		if store.IsAbsent(err) {
			var zero T
			return zero, false
		}
		rt.fail(fromStoreError(key, err))
	}
	rt.emit(EventRemove, key, ir.Key{})
	return v, true
}

// rerun invokes the RxFunc registered at key and propagates from it.
func rerun(rt *Runtime, key ir.Key) {
	fn, ok := rt.store.Reaction(key)
	if !ok {
		rt.fail(NewAbsentKeyError(key))
	}
	rt.inPass(func() {
		rt.invoke(key, fn)
		rt.propagateFrom(key)
	})
}

package engine

import (
	"github.com/roach88/rxstore/internal/ir"
	"github.com/roach88/rxstore/internal/store"
)

// ReversibleAtom is an atom whose mutations are recorded on the runtime's
// UndoStore.
type ReversibleAtom[T any] struct {
	handle[T]
}

// Set records the change, stores v and propagates.
func (a ReversibleAtom[T]) Set(v T) {
	a.record(v)
	writeLive(a.rt, a.key, v)
}

// SetInert records the change and stores v without propagating. Undo and
// redo of the command still propagate.
func (a ReversibleAtom[T]) SetInert(v T) {
	a.record(v)
	writeInert(a.rt, a.key, v)
}

// Update mutates the stored value, records old and new, and propagates.
// The recorded old value is a shallow copy.
func (a ReversibleAtom[T]) Update(f func(*T)) {
	old := peek[T](a.rt, a.key)
	if err := store.Update(a.rt.store, a.key, f); err != nil {
		a.rt.fail(fromStoreError(a.key, err))
	}
	cur := peek[T](a.rt, a.key)
	a.rt.history.Record(a.setCommand(old, true, cur))
	a.rt.emit(EventWrite, a.key, ir.Key{})
	a.rt.Propagate(a.key)
}

// Remove takes the value out of the store and records it, so undo restores
// it.
func (a ReversibleAtom[T]) Remove() (T, bool) {
	v, ok := removeValue[T](a.rt, a.key)
	if !ok {
		return v, false
	}
	rt, key := a.rt, a.key
	rt.history.Record(Command{
		Key:  key,
		Do:   func() { removeInert(rt, key) },
		Undo: func() { writeInert(rt, key, v) },
	})
	return v, true
}

// Delete removes the value and discards it.
func (a ReversibleAtom[T]) Delete() {
	a.Remove()
}

// ResetToDefault re-runs the initializer, records the change and
// propagates.
func (a ReversibleAtom[T]) ResetToDefault() {
	old, had := softPeek[T](a.rt, a.key)
	rerun(a.rt, a.key)
	cur := peek[T](a.rt, a.key)
	a.rt.history.Record(a.setCommand(old, had, cur))
}

func (a ReversibleAtom[T]) record(v T) {
	old, had := softPeek[T](a.rt, a.key)
	a.rt.history.Record(a.setCommand(old, had, v))
}

// setCommand builds {do: store cur, undo: store old}. Without a previous
// value the undo removes the key.
func (a ReversibleAtom[T]) setCommand(old T, had bool, cur T) Command {
	rt, key := a.rt, a.key
	undo := func() { removeInert(rt, key) }
	if had {
		undo = func() { writeInert(rt, key, old) }
	}
	return Command{
		Key:  key,
		Do:   func() { writeInert(rt, key, cur) },
		Undo: undo,
	}
}

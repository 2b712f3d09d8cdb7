package store

import (
	"slices"

	"github.com/roach88/rxstore/internal/ir"
)

// Func is a registered recompute function. The runtime wraps reaction and
// atom initializers into a Func before registering them.
type Func func()

type slot struct {
	key  ir.Key
	fn   Func
	live bool
}

// Store is the typed value table plus the reaction slot table.
// The zero value is not usable; use New.
type Store struct {
	values map[ir.Key]any

	slots []slot
	free  []int
	index map[ir.Key]int
}

// New creates an empty store.
func New() *Store {
	return &Store{
		values: make(map[ir.Key]any),
		index:  make(map[ir.Key]int),
	}
}

// InsertInert stores value under key, replacing any previous value
// regardless of its type. Nothing is notified.
func (s *Store) InsertInert(key ir.Key, value any) {
	s.values[key] = value
}

// Exists reports whether key currently holds a value.
func (s *Store) Exists(key ir.Key) bool {
	_, ok := s.values[key]
	return ok
}

// Delete drops the value under key without a type check.
// Returns false if no value was present.
func (s *Store) Delete(key ir.Key) bool {
	if _, ok := s.values[key]; !ok {
		return false
	}
	delete(s.values, key)
	return true
}

// Len returns the number of stored values.
func (s *Store) Len() int {
	return len(s.values)
}

// Keys returns every key that holds a value or a reaction, in a stable order.
func (s *Store) Keys() []ir.Key {
	seen := make(map[ir.Key]struct{}, len(s.values)+len(s.index))
	keys := make([]ir.Key, 0, len(s.values)+len(s.index))
	for k := range s.values {
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	for k := range s.index {
		if _, ok := seen[k]; !ok {
			keys = append(keys, k)
		}
	}
	slices.SortFunc(keys, ir.CompareKeys)
	return keys
}

// RegisterReaction stores fn as the recompute function for key, replacing
// any previous registration in place.
func (s *Store) RegisterReaction(key ir.Key, fn Func) {
	if i, ok := s.index[key]; ok {
		s.slots[i].fn = fn
		return
	}

	var i int
	if n := len(s.free); n > 0 {
		i = s.free[n-1]
		s.free = s.free[:n-1]
		s.slots[i] = slot{key: key, fn: fn, live: true}
	} else {
		i = len(s.slots)
		s.slots = append(s.slots, slot{key: key, fn: fn, live: true})
	}
	s.index[key] = i
}

// Reaction returns the recompute function registered for key.
func (s *Store) Reaction(key ir.Key) (Func, bool) {
	i, ok := s.index[key]
	if !ok {
		return nil, false
	}
	return s.slots[i].fn, true
}

// HasReaction reports whether key has a registered recompute function.
func (s *Store) HasReaction(key ir.Key) bool {
	_, ok := s.index[key]
	return ok
}

// UnregisterReaction frees the slot held by key. The slot is reused by the
// next registration.
func (s *Store) UnregisterReaction(key ir.Key) bool {
	i, ok := s.index[key]
	if !ok {
		return false
	}
	s.slots[i] = slot{}
	s.free = append(s.free, i)
	delete(s.index, key)
	return true
}

// ReactionCount returns the number of live reaction slots.
func (s *Store) ReactionCount() int {
	return len(s.index)
}

// SlotCapacity returns the size of the slot table including free slots.
func (s *Store) SlotCapacity() int {
	return len(s.slots)
}

// Take removes the value under key and returns it as a T.
// On a type mismatch the value stays in the store.
func Take[T any](s *Store, key ir.Key) (T, error) {
	var zero T
	raw, ok := s.values[key]
	if !ok {
		return zero, absent(key)
	}
	v, ok := raw.(T)
	if !ok {
		return zero, mismatch[T](key, raw)
	}
	delete(s.values, key)
	return v, nil
}

// Remove removes and returns the value under key. It reports false when the
// key is empty or holds a value of another type; a mismatched value is kept.
func Remove[T any](s *Store, key ir.Key) (T, bool) {
	v, err := Take[T](s, key)
	return v, err == nil
}

// Peek returns the value under key without checking it out.
func Peek[T any](s *Store, key ir.Key) (T, error) {
	var zero T
	raw, ok := s.values[key]
	if !ok {
		return zero, absent(key)
	}
	v, ok := raw.(T)
	if !ok {
		return zero, mismatch[T](key, raw)
	}
	return v, nil
}

// ReadWith checks the value under key out of the store, applies f to it and
// puts it back. f must not retain the pointer.
//
// While f runs, key is absent: a nested ReadWith on the same key returns
// ErrAbsent. The value is reinserted even if f panics.
func ReadWith[T, R any](s *Store, key ir.Key, f func(*T) R) (R, error) {
	var zero R
	v, err := Take[T](s, key)
	if err != nil {
		return zero, err
	}
	defer func() { s.values[key] = v }()
	return f(&v), nil
}

// Update checks the value under key out, lets f mutate it in place and
// reinserts the result.
func Update[T any](s *Store, key ir.Key, f func(*T)) error {
	_, err := ReadWith(s, key, func(v *T) struct{} {
		f(v)
		return struct{}{}
	})
	return err
}

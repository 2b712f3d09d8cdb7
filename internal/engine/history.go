package engine

import (
	"github.com/roach88/rxstore/internal/ir"
)

// Command is one reversible mutation. Do and Undo write inertly; the
// UndoStore propagates from Key after running either.
type Command struct {
	Key  ir.Key
	Do   func()
	Undo func()
}

// UndoStore is a linear undo stack.
//
// Commands before the cursor are applied, commands at or after it are
// undone. Recording a new command discards everything at or after the
// cursor: there is no branching history.
type UndoStore struct {
	rt        *Runtime
	commands  []Command
	cursor    int
	traveling bool
}

func newUndoStore(rt *Runtime) *UndoStore {
	return &UndoStore{rt: rt}
}

// Len returns the number of recorded commands.
func (u *UndoStore) Len() int { return len(u.commands) }

// Cursor returns the number of applied commands.
func (u *UndoStore) Cursor() int { return u.cursor }

// CanUndo reports whether TravelBackwards would do anything.
func (u *UndoStore) CanUndo() bool { return u.cursor > 0 }

// CanRedo reports whether TravelForwards would do anything.
func (u *UndoStore) CanRedo() bool { return u.cursor < len(u.commands) }

// Keys returns the key of every recorded command, oldest first.
func (u *UndoStore) Keys() []ir.Key {
	keys := make([]ir.Key, len(u.commands))
	for i, c := range u.commands {
		keys[i] = c.Key
	}
	return keys
}

// Clear drops every command and resets the cursor. Stored values are not
// touched.
func (u *UndoStore) Clear() {
	if u.traveling {
		u.rt.fail(NewReentrantHistoryError("Clear"))
	}
	u.commands = nil
	u.cursor = 0
}

// Record truncates the redo branch, appends cmd and advances the cursor.
// The caller has already applied cmd.
func (u *UndoStore) Record(cmd Command) {
	if u.traveling {
		u.rt.fail(NewReentrantHistoryError("Record"))
	}
	if dropped := len(u.commands) - u.cursor; dropped > 0 {
		clear(u.commands[u.cursor:])
		u.rt.logger.Debug("history redo branch discarded", "dropped", dropped)
	}
	u.commands = append(u.commands[:u.cursor], cmd)
	u.cursor++
}

// TravelBackwards undoes the last applied command and propagates from its
// key. Reports false at the start of history.
func (u *UndoStore) TravelBackwards() bool {
	if u.traveling {
		u.rt.fail(NewReentrantHistoryError("TravelBackwards"))
	}
	if u.cursor == 0 {
		return false
	}
	cmd := u.commands[u.cursor-1]
	u.apply(cmd, cmd.Undo, EventUndo, "backward")
	u.cursor--
	return true
}

// TravelForwards re-applies the next undone command and propagates from its
// key. Reports false at the end of history.
func (u *UndoStore) TravelForwards() bool {
	if u.traveling {
		u.rt.fail(NewReentrantHistoryError("TravelForwards"))
	}
	if u.cursor == len(u.commands) {
		return false
	}
	cmd := u.commands[u.cursor]
	u.apply(cmd, cmd.Do, EventRedo, "forward")
	u.cursor++
	return true
}

// TravelToCursor steps backwards or forwards until Cursor() == target.
// target must satisfy 0 < target < Len(); anything else is rejected without
// moving. Use TravelBackwards / TravelForwards to reach either end.
func (u *UndoStore) TravelToCursor(target int) error {
	if u.traveling {
		return NewReentrantHistoryError("TravelToCursor")
	}
	if target <= 0 || target >= len(u.commands) {
		return NewCursorError(target, len(u.commands))
	}
	for u.cursor > target {
		u.TravelBackwards()
	}
	for u.cursor < target {
		u.TravelForwards()
	}
	return nil
}

// apply runs one side of cmd, then propagates once from its key if the key
// still holds a value.
func (u *UndoStore) apply(cmd Command, side func(), kind EventKind, direction string) {
	u.traveling = true
	defer func() { u.traveling = false }()

	side()
	u.rt.emit(kind, cmd.Key, ir.Key{})
	u.rt.metrics.HistoryStep(direction)
	u.rt.logger.Debug("history step", "direction", direction, "key", cmd.Key, "cursor", u.cursor)

	if u.rt.store.Exists(cmd.Key) {
		u.rt.Propagate(cmd.Key)
	}
}

package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/rxstore/internal/ir"
	"github.com/roach88/rxstore/internal/store"
)

// RuntimeError represents an error detected by the runtime.
//
// Runtime errors include:
//   - Absent key: a read on a key with no value, including a key that is
//     checked out by an enclosing read
//   - Type mismatch: a key holds a value of another type
//   - Cursor out of range: TravelToCursor outside (0, len)
//   - Cycle / depth: propagation revisited a key on its own path or ran
//     deeper than the configured limit
//
// Read-side errors are raised as panics carrying a *RuntimeError; use Catch
// to turn them back into an error value.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Key identifies the affected store entry, if any.
	Key ir.Key

	// Details contains additional context.
	Details map[string]string

	err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeAbsentKey indicates a read on a key with no stored value.
	ErrCodeAbsentKey RuntimeErrorCode = "ABSENT_KEY"

	// ErrCodeTypeMismatch indicates the stored value has another concrete type.
	ErrCodeTypeMismatch RuntimeErrorCode = "TYPE_MISMATCH"

	// ErrCodeCursorOutOfRange indicates an invalid history cursor target.
	ErrCodeCursorOutOfRange RuntimeErrorCode = "CURSOR_OUT_OF_RANGE"

	// ErrCodeNoReactiveContext indicates Observe was called outside a reaction body.
	ErrCodeNoReactiveContext RuntimeErrorCode = "NO_REACTIVE_CONTEXT"

	// ErrCodeCycleDetected indicates propagation reached a key already on its path.
	ErrCodeCycleDetected RuntimeErrorCode = "CYCLE_DETECTED"

	// ErrCodeDepthExceeded indicates propagation exceeded the max depth.
	ErrCodeDepthExceeded RuntimeErrorCode = "DEPTH_EXCEEDED"

	// ErrCodeReentrantHistory indicates the history was modified or traveled
	// while a history step was being applied.
	ErrCodeReentrantHistory RuntimeErrorCode = "REENTRANT_HISTORY"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if !e.Key.IsZero() {
		return fmt.Sprintf("%s: %s (key=%s)", e.Code, e.Message, e.Key)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying store error, if any.
func (e *RuntimeError) Unwrap() error {
	return e.err
}

func hasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsAbsentKey returns true if the error is an absent-key error.
// Uses errors.As to handle wrapped errors.
func IsAbsentKey(err error) bool {
	return hasCode(err, ErrCodeAbsentKey)
}

// IsTypeMismatch returns true if the error is a type mismatch.
func IsTypeMismatch(err error) bool {
	return hasCode(err, ErrCodeTypeMismatch)
}

// IsCursorError returns true if the error is a cursor range error.
func IsCursorError(err error) bool {
	return hasCode(err, ErrCodeCursorOutOfRange)
}

// IsNoContextError returns true if Observe was called outside a reaction.
func IsNoContextError(err error) bool {
	return hasCode(err, ErrCodeNoReactiveContext)
}

// IsCycleError returns true if the error is a cycle detection error.
func IsCycleError(err error) bool {
	return hasCode(err, ErrCodeCycleDetected)
}

// IsDepthError returns true if propagation exceeded the max depth.
func IsDepthError(err error) bool {
	return hasCode(err, ErrCodeDepthExceeded)
}

// IsReentrantHistory returns true if the history was reentered.
func IsReentrantHistory(err error) bool {
	return hasCode(err, ErrCodeReentrantHistory)
}

// Code returns the RuntimeErrorCode carried by err, or "" if err is not a
// RuntimeError.
func Code(err error) RuntimeErrorCode {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}

// NewAbsentKeyError creates a RuntimeError for a read on an empty key.
func NewAbsentKeyError(key ir.Key) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeAbsentKey,
		Message: "no value stored for key (absent or checked out by an enclosing read)",
		Key:     key,
		err:     store.ErrAbsent,
	}
}

// NewTypeMismatchError creates a RuntimeError for a failed downcast.
func NewTypeMismatchError(key ir.Key, want, got string) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeTypeMismatch,
		Message: fmt.Sprintf("stored value is %s, requested %s", got, want),
		Key:     key,
		Details: map[string]string{
			"want": want,
			"got":  got,
		},
	}
}

// NewCursorError creates a RuntimeError for an invalid history cursor.
func NewCursorError(target, length int) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeCursorOutOfRange,
		Message: fmt.Sprintf("cursor %d outside (0, %d)", target, length),
		Details: map[string]string{
			"target": fmt.Sprintf("%d", target),
			"len":    fmt.Sprintf("%d", length),
		},
	}
}

// NewNoContextError creates a RuntimeError for Observe outside a reaction.
func NewNoContextError(key ir.Key) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeNoReactiveContext,
		Message: "observe called outside a reaction body",
		Key:     key,
	}
}

// NewCycleError creates a RuntimeError for a key revisited on its own
// propagation path.
func NewCycleError(key ir.Key, path []ir.Key) *RuntimeError {
	details := map[string]string{"depth": fmt.Sprintf("%d", len(path))}
	if len(path) > 0 {
		details["origin"] = path[0].String()
	}
	return &RuntimeError{
		Code:    ErrCodeCycleDetected,
		Message: "reaction would recompute itself within one propagation pass",
		Key:     key,
		Details: details,
	}
}

// NewDepthError creates a RuntimeError for propagation running too deep.
func NewDepthError(key ir.Key, depth, maxDepth int) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeDepthExceeded,
		Message: fmt.Sprintf("propagation exceeded max depth (%d > %d)", depth, maxDepth),
		Key:     key,
		Details: map[string]string{
			"depth":     fmt.Sprintf("%d", depth),
			"max_depth": fmt.Sprintf("%d", maxDepth),
		},
	}
}

// NewReentrantHistoryError creates a RuntimeError for history access from
// inside a history step.
func NewReentrantHistoryError(op string) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeReentrantHistory,
		Message: fmt.Sprintf("%s called while a history step is being applied", op),
	}
}

// fromStoreError maps a store error to a RuntimeError.
func fromStoreError(key ir.Key, err error) *RuntimeError {
	var te *store.TypeMismatchError
	if errors.As(err, &te) {
		re := NewTypeMismatchError(key, te.Want, te.Got)
		re.err = err
		return re
	}
	if store.IsAbsent(err) {
		return NewAbsentKeyError(key)
	}
	return &RuntimeError{Code: ErrCodeAbsentKey, Message: err.Error(), Key: key, err: err}
}

// Catch runs fn and converts a *RuntimeError panic into a returned error.
// Any other panic is re-raised.
func Catch(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if re, ok := r.(*RuntimeError); ok {
				err = re
				return
			}
			panic(r)
		}
	}()
	fn()
	return nil
}

package store

import (
	"errors"
	"fmt"

	"github.com/roach88/rxstore/internal/ir"
)

// ErrAbsent is returned when a key holds no value. This includes a value
// that is checked out by an enclosing ReadWith or Update on the same key.
var ErrAbsent = errors.New("key holds no value")

// TypeMismatchError is returned when a key holds a value of a different
// concrete type than the one requested. The stored value is left in place.
type TypeMismatchError struct {
	Key  ir.Key
	Want string
	Got  string
}

// Error implements the error interface.
func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("key %s holds %s, requested %s", e.Key, e.Got, e.Want)
}

// IsAbsent reports whether err is or wraps ErrAbsent.
func IsAbsent(err error) bool {
	return errors.Is(err, ErrAbsent)
}

// IsTypeMismatch reports whether err is or wraps a TypeMismatchError.
func IsTypeMismatch(err error) bool {
	var te *TypeMismatchError
	return errors.As(err, &te)
}

func absent(key ir.Key) error {
	return fmt.Errorf("%s: %w", key, ErrAbsent)
}

func mismatch[T any](key ir.Key, got any) error {
	var want T
	return &TypeMismatchError{
		Key:  key,
		Want: fmt.Sprintf("%T", &want)[1:],
		Got:  fmt.Sprintf("%T", got),
	}
}

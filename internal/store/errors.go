package store

import (
	"errors"
	"fmt"
)

// ErrNotFound reports a key that does not exist in its namespace.
var ErrNotFound = errors.New("not found")

// ErrInvalidKey reports a key or namespace that cannot be stored.
var ErrInvalidKey = errors.New("invalid key")

// Error wraps a storage failure with the item it concerns.
//
// Callers match causes with errors.Is (for example ErrNotFound).
type Error struct {
	Namespace string
	Key       string
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%v (namespace=%s key=%s)", e.Err, e.Namespace, e.Key)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func wrapErr(namespace, key string, err error) error {
	if err == nil {
		return nil
	}

	return &Error{Namespace: namespace, Key: key, Err: err}
}

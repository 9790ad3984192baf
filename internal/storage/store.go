// Package storage holds the artifact stores a reconciliation run reads from and
// writes to. Keys are slash-separated paths in the layout defined by package
// layout.
package storage

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a key holds no document.
var ErrNotFound = errors.New("not found")

// Store loads, saves, lists and copies documents by key.
type Store interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
	// List returns the keys under prefix in ascending order.
	List(ctx context.Context, prefix string) ([]string, error)
	Copy(ctx context.Context, src, dst string) error
}

// Error is a failed storage call.
type Error struct {
	Op  string
	Key string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func opError(op, key string, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	return &Error{Op: op, Key: key, Err: err}
}

// ExecutionLocker is implemented by stores that can exclude other processes
// from reconciling the same execution.
type ExecutionLocker interface {
	LockExecution(ctx context.Context, executionID string) (func() error, error)
}

// LockerFor returns the locker behind s, looking through wrappers that expose
// Unwrap.
func LockerFor(s Store) (ExecutionLocker, bool) {
	for s != nil {
		if l, ok := s.(ExecutionLocker); ok {
			return l, true
		}
		u, ok := s.(interface{ Unwrap() Store })
		if !ok {
			return nil, false
		}
		s = u.Unwrap()
	}
	return nil, false
}

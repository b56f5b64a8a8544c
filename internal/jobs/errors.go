package jobs

import (
	"errors"
	"fmt"
)

// ErrAuth is returned when the store rejects the credential or none is set.
// The repository has already logged out when it returns it.
var ErrAuth = errors.New("authorization rejected")

// ErrNotFound is returned for ids absent from the collection.
var ErrNotFound = errors.New("job not found")

// FetchError is a transport or parse failure during a batch read. The
// collection is left untouched.
type FetchError struct{ Err error }

func (e *FetchError) Error() string { return fmt.Sprintf("fetch failed: %v", e.Err) }
func (e *FetchError) Unwrap() error { return e.Err }

// WriteError is a failed persistence write. Optimistic state is not rolled
// back; the next fetch reconciles.
type WriteError struct {
	Op    string
	Range string
	Err   error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Range, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

package occdex

import (
	"errors"
	"fmt"

	"github.com/kailas-cloud/occdex/internal/db"
)

// Sentinel errors. Use errors.Is() to check.
var (
	// ErrConflict matches every write rejected because its version
	// precondition did not hold against the stored document.
	ErrConflict = db.ErrVersionConflict

	// ErrNotRegistered is returned when a type has no index mapping.
	ErrNotRegistered = errors.New("occdex: type not registered")

	// ErrNotFound is returned by FirstHit when a response has no hits.
	ErrNotFound = errors.New("occdex: no matching document")

	ErrIndexNotFound = db.ErrIndexNotFound
	ErrIndexExists   = db.ErrIndexExists
)

// ConflictError reports an optimistic-lock failure on a single document.
// The caller is expected to re-read, re-apply its change and index again.
type ConflictError struct {
	Index string
	ID    string
	// SeqNo and PrimaryTerm are the token the write expected.
	SeqNo       int64
	PrimaryTerm int64
	Err         error
}

func (e *ConflictError) Error() string {
	if e.SeqNo == UnassignedSeqNo {
		return fmt.Sprintf("occdex: %s/%s already exists: %v", e.Index, e.ID, e.Err)
	}
	return fmt.Sprintf("occdex: %s/%s was modified since %d/%d: %v",
		e.Index, e.ID, e.SeqNo, e.PrimaryTerm, e.Err)
}

func (e *ConflictError) Unwrap() error { return e.Err }

// Is reports ErrConflict even when the store error does not wrap it.
func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// StoreError is any failure that is not a version conflict: transport,
// serialization or a store-side fault.
type StoreError struct {
	Op    string
	Index string
	ID    string
	Err   error
}

func (e *StoreError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("occdex: %s %s: %v", e.Op, e.Index, e.Err)
	}
	return fmt.Sprintf("occdex: %s %s/%s: %v", e.Op, e.Index, e.ID, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// IsConflict reports whether err is a version conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

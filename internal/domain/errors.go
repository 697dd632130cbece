package domain

import (
	"errors"
	"fmt"

	"github.com/kailas-cloud/occdex"
)

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput signals a request that fails validation.
	ErrInvalidInput = errors.New("invalid input")
	// ErrTooManyItems signals a batch larger than the configured limit.
	ErrTooManyItems = errors.New("too many items")

	// ErrVersionConflict signals an optimistic locking conflict. It is the
	// repository's conflict sentinel, so errors.Is matches store conflicts.
	ErrVersionConflict = occdex.ErrConflict
)

// VersionConflictError reports the version token a rejected write expected.
type VersionConflictError struct {
	ID          string
	SeqNo       int64
	PrimaryTerm int64
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("%s: %s expected version %d/%d", ErrVersionConflict.Error(), e.ID, e.SeqNo, e.PrimaryTerm)
}

func (e *VersionConflictError) Unwrap() error { return ErrVersionConflict }

// NewVersionConflict creates a version conflict error.
func NewVersionConflict(id string, seqNo, primaryTerm int64) error {
	return &VersionConflictError{ID: id, SeqNo: seqNo, PrimaryTerm: primaryTerm}
}

// Invalidf wraps ErrInvalidInput with a formatted message.
func Invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

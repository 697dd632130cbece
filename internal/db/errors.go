package db

import "errors"

// Sentinel errors for database operations.
var (
	ErrIndexNotFound   = errors.New("db: index not found")
	ErrIndexExists     = errors.New("db: index already exists")
	ErrVersionConflict = errors.New("db: version conflict")
)

// Op constants name the store operation for error context.
const (
	OpPing        = "PING"
	OpIndex       = "INDEX"
	OpBulk        = "BULK"
	OpSearch      = "SEARCH"
	OpCreateIndex = "CREATE_INDEX"
	OpDropIndex   = "DROP_INDEX"
	OpIndexInfo   = "INDEX_INFO"
)

// Error wraps an underlying error with the operation name for diagnostics.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// IsVersionConflict reports whether err is a version precondition failure.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}

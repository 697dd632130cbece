package db

import (
	"context"
	"time"
)

// Store is the main database facade combining all sub-interfaces.
//
//nolint:interfacebloat // facade by design -- consumers use narrow sub-interfaces (ISP)
type Store interface {
	Pinger
	Writer
	BulkWriter
	Searcher
	IndexManager
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Writer stores a single document, honoring the request's version precondition.
// A precondition mismatch is returned as an error wrapping ErrVersionConflict.
type Writer interface {
	Index(ctx context.Context, req *WriteRequest) (WriteResult, error)
}

// BulkWriter submits many writes as one batch.
// The returned outcomes follow the order of reqs. An error is returned only when
// the batch as a whole could not be submitted; per-item failures are data.
type BulkWriter interface {
	Bulk(ctx context.Context, reqs []WriteRequest, refresh Refresh) ([]BulkItemResult, error)
}

// Searcher runs one bounded query.
type Searcher interface {
	Search(ctx context.Context, req *SearchRequest) (*SearchResponse, error)
}

// IndexManager provides index lifecycle operations.
type IndexManager interface {
	CreateIndex(ctx context.Context, def *IndexDefinition) error
	DropIndex(ctx context.Context, name string) error
	IndexExists(ctx context.Context, name string) (bool, error)
}

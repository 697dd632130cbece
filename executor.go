package occdex

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/kailas-cloud/occdex/internal/db"
	"github.com/kailas-cloud/occdex/pkg/query"
)

// DefaultPageSize is the number of hits a single search returns.
const DefaultPageSize = 50

// Executor issues one bounded, version-aware search per call.
// It holds no mutable state and is safe for concurrent use.
type Executor struct {
	searcher db.Searcher
	pageSize int
}

// NewExecutor creates an Executor over s. pageSize <= 0 uses DefaultPageSize.
func NewExecutor(s db.Searcher, pageSize int) *Executor {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Executor{searcher: s, pageSize: pageSize}
}

// PageSize returns the maximum number of hits per call.
func (e *Executor) PageSize() int { return e.pageSize }

// Execute searches indices with the query returned by build and hands the raw
// response to handle, returning its result verbatim.
//
// The request always starts at offset 0, asks for at most one page and
// requests seq_no/primary_term on every hit. Store failures are returned
// unchanged; there is no retry and no pagination.
func Execute[T any](
	ctx context.Context,
	e *Executor,
	indices []string,
	build func() query.Query,
	handle func(*SearchResponse) (T, error),
) (T, error) {
	var zero T

	names := uniqueIndices(indices)
	if len(names) == 0 {
		return zero, errors.New("occdex: at least one index is required")
	}
	q := build()
	if err := query.Validate(q); err != nil {
		return zero, fmt.Errorf("occdex: invalid query: %w", err)
	}

	resp, err := e.searcher.Search(ctx, &db.SearchRequest{
		Indices:          names,
		Query:            q,
		From:             0,
		Size:             e.pageSize,
		SeqNoPrimaryTerm: true,
	})
	if err != nil {
		return zero, err
	}
	return handle(resp)
}

// uniqueIndices drops empty and repeated names, keeping first-seen order.
func uniqueIndices(indices []string) []string {
	out := make([]string, 0, len(indices))
	for _, name := range indices {
		if name != "" && !slices.Contains(out, name) {
			out = append(out, name)
		}
	}
	return out
}

// MapAll returns a handler that maps every hit through m.
func MapAll[T any](m ResultMapper[T]) func(*SearchResponse) ([]T, error) {
	return m.MapResults
}

// FirstHit returns a handler that maps only the first hit through m and
// reports ErrNotFound when there is none.
func FirstHit[T any](m ResultMapper[T]) func(*SearchResponse) (T, error) {
	return func(resp *SearchResponse) (T, error) {
		if len(resp.Hits) == 0 {
			var zero T
			return zero, ErrNotFound
		}
		return m.MapSearchHit(&resp.Hits[0])
	}
}

package db

import (
	"encoding/json"

	"github.com/kailas-cloud/occdex/pkg/query"
)

// SearchRequest is the input of a bounded query.
type SearchRequest struct {
	Indices []string
	Query   query.Query
	From    int
	Size    int
	// SeqNoPrimaryTerm asks the store to return the version pair of every hit.
	SeqNoPrimaryTerm bool
}

// SearchResponse is the raw output of a query.
type SearchResponse struct {
	Total int
	Hits  []Hit
}

// Hit is one matched document: envelope metadata plus the stored body.
// SeqNo and PrimaryTerm are UnassignedSeqNo/UnassignedPrimaryTerm unless the
// request asked for version metadata.
type Hit struct {
	Index       string
	ID          string
	SeqNo       int64
	PrimaryTerm int64
	Source      json.RawMessage
}

package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/kailas-cloud/occdex/internal/db"
	"github.com/kailas-cloud/occdex/pkg/query"
)

type searchResponse struct {
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []searchHit `json:"hits"`
	} `json:"hits"`
}

type searchHit struct {
	Index       string          `json:"_index"`
	ID          string          `json:"_id"`
	SeqNo       *int64          `json:"_seq_no"`
	PrimaryTerm *int64          `json:"_primary_term"`
	Source      json.RawMessage `json:"_source"`
}

// Search runs one _search request across the given indices.
func (s *Store) Search(ctx context.Context, req *db.SearchRequest) (*db.SearchResponse, error) {
	if len(req.Indices) == 0 {
		return nil, &db.Error{Op: db.OpSearch, Err: errors.New("at least one index is required")}
	}
	dsl, err := buildQuery(req.Query)
	if err != nil {
		return nil, &db.Error{Op: db.OpSearch, Err: err}
	}
	body, err := json.Marshal(map[string]any{"query": dsl})
	if err != nil {
		return nil, &db.Error{Op: db.OpSearch, Err: err}
	}

	from, size := req.From, req.Size
	withVersion := req.SeqNoPrimaryTerm
	res, err := esapi.SearchRequest{
		Index:            req.Indices,
		Body:             bytes.NewReader(body),
		From:             &from,
		Size:             &size,
		SeqNoPrimaryTerm: &withVersion,
	}.Do(ctx, s.client)
	if err != nil {
		return nil, &db.Error{Op: db.OpSearch, Err: err}
	}
	defer closeBody(res)

	if res.IsError() {
		return nil, &db.Error{Op: db.OpSearch, Err: responseError(res)}
	}

	var parsed searchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, &db.Error{Op: db.OpSearch, Err: fmt.Errorf("decode response: %w", err)}
	}

	out := &db.SearchResponse{
		Total: parsed.Hits.Total.Value,
		Hits:  make([]db.Hit, 0, len(parsed.Hits.Hits)),
	}
	for _, h := range parsed.Hits.Hits {
		hit := db.Hit{
			Index:       h.Index,
			ID:          h.ID,
			SeqNo:       db.UnassignedSeqNo,
			PrimaryTerm: db.UnassignedPrimaryTerm,
			Source:      h.Source,
		}
		if h.SeqNo != nil && h.PrimaryTerm != nil {
			hit.SeqNo = *h.SeqNo
			hit.PrimaryTerm = *h.PrimaryTerm
		}
		out.Hits = append(out.Hits, hit)
	}
	return out, nil
}

// buildQuery translates a query tree into the JSON query DSL.
func buildQuery(q query.Query) (map[string]any, error) {
	switch v := q.(type) {
	case nil:
		return nil, errors.New("query is required")
	case query.MatchAllQuery:
		return map[string]any{"match_all": map[string]any{}}, nil
	case query.MatchQuery:
		return map[string]any{"match": map[string]any{v.Field: map[string]any{"query": v.Text}}}, nil
	case query.TermQuery:
		return map[string]any{"term": map[string]any{v.Field: map[string]any{"value": v.Value}}}, nil
	case query.RangeQuery:
		return map[string]any{"range": map[string]any{v.Field: rangeBounds(v.Range)}}, nil
	case query.IDsQuery:
		return map[string]any{"ids": map[string]any{"values": v.IDs}}, nil
	case *query.BoolQuery:
		return buildBool(v)
	default:
		return nil, fmt.Errorf("unsupported query type %T", q)
	}
}

func buildBool(b *query.BoolQuery) (map[string]any, error) {
	if b == nil || b.IsEmpty() {
		return nil, errors.New("bool: at least one clause is required")
	}

	clauses := map[string]any{}
	groups := []struct {
		name string
		qs   []query.Query
	}{
		{"must", b.MustClauses()},
		{"should", b.ShouldClauses()},
		{"must_not", b.MustNotClauses()},
	}
	for _, g := range groups {
		if len(g.qs) == 0 {
			continue
		}
		compiled := make([]map[string]any, 0, len(g.qs))
		for _, c := range g.qs {
			dsl, err := buildQuery(c)
			if err != nil {
				return nil, err
			}
			compiled = append(compiled, dsl)
		}
		clauses[g.name] = compiled
	}
	return map[string]any{"bool": clauses}, nil
}

func rangeBounds(r query.Range) map[string]float64 {
	bounds := make(map[string]float64, 2)
	if r.GT() != nil {
		bounds["gt"] = *r.GT()
	}
	if r.GTE() != nil {
		bounds["gte"] = *r.GTE()
	}
	if r.LT() != nil {
		bounds["lt"] = *r.LT()
	}
	if r.LTE() != nil {
		bounds["lte"] = *r.LTE()
	}
	return bounds
}

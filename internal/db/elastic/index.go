package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/kailas-cloud/occdex/internal/db"
)

// CreateIndex creates an index whose mapping follows the definition.
func (s *Store) CreateIndex(ctx context.Context, def *db.IndexDefinition) error {
	if err := def.Validate(); err != nil {
		return &db.Error{Op: db.OpCreateIndex, Err: err}
	}

	body, err := json.Marshal(buildMapping(def))
	if err != nil {
		return &db.Error{Op: db.OpCreateIndex, Err: err}
	}

	res, err := esapi.IndicesCreateRequest{
		Index: def.Name,
		Body:  bytes.NewReader(body),
	}.Do(ctx, s.client)
	if err != nil {
		return &db.Error{Op: db.OpCreateIndex, Err: err}
	}
	defer closeBody(res)

	if res.IsError() {
		err := responseError(res)
		if errors.Is(err, db.ErrIndexExists) {
			return db.ErrIndexExists
		}
		return &db.Error{Op: db.OpCreateIndex, Err: err}
	}
	return nil
}

// DropIndex deletes an index and its documents.
func (s *Store) DropIndex(ctx context.Context, name string) error {
	res, err := esapi.IndicesDeleteRequest{Index: []string{name}}.Do(ctx, s.client)
	if err != nil {
		return &db.Error{Op: db.OpDropIndex, Err: err}
	}
	defer closeBody(res)

	if res.IsError() {
		err := responseError(res)
		if isIndexNotFound(err) {
			return db.ErrIndexNotFound
		}
		return &db.Error{Op: db.OpDropIndex, Err: err}
	}
	return nil
}

// IndexExists probes the index with HEAD; 404 means absent.
func (s *Store) IndexExists(ctx context.Context, name string) (bool, error) {
	res, err := esapi.IndicesExistsRequest{Index: []string{name}}.Do(ctx, s.client)
	if err != nil {
		return false, &db.Error{Op: db.OpIndexInfo, Err: err}
	}
	defer closeBody(res)

	switch res.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, &db.Error{Op: db.OpIndexInfo, Err: responseError(res)}
	}
}

func buildMapping(def *db.IndexDefinition) map[string]any {
	props := make(map[string]any, len(def.Fields))
	for _, f := range def.Fields {
		props[f.Name] = map[string]any{"type": fieldType(f.Type)}
	}

	mappings := map[string]any{"properties": props}
	if def.Kind != "" {
		mappings["_meta"] = map[string]any{"kind": def.Kind}
	}
	return map[string]any{"mappings": mappings}
}

func fieldType(t db.IndexFieldType) string {
	switch t {
	case db.IndexFieldTag:
		return "keyword"
	case db.IndexFieldNumeric:
		return "double"
	default:
		return "text"
	}
}

package occdex

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/kailas-cloud/occdex/internal/db"
)

// SearchResponse and Hit are the raw store responses handed to result mappers
// and executor handlers.
type (
	SearchResponse = db.SearchResponse
	Hit            = db.Hit
)

// EntityMapper converts application objects to stored bodies and back.
// It knows nothing about versions.
type EntityMapper interface {
	MapObject(v any) (map[string]any, error)
	MapSource(source []byte, target any) error
}

// JSONEntityMapper maps objects through encoding/json struct tags.
type JSONEntityMapper struct{}

// MapObject encodes v and decodes it back into a generic map.
func (JSONEntityMapper) MapObject(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	return m, nil
}

// MapSource decodes a stored body into target.
func (JSONEntityMapper) MapSource(source []byte, target any) error {
	if err := json.Unmarshal(source, target); err != nil {
		return fmt.Errorf("decode into %T: %w", target, err)
	}
	return nil
}

// ResultMapper turns raw search hits into typed objects.
type ResultMapper[T any] interface {
	MapResults(resp *SearchResponse) ([]T, error)
	MapSearchHit(hit *Hit) (T, error)
}

// entityResultMapper is the version-unaware base mapper.
type entityResultMapper[T any] struct {
	entity EntityMapper
}

// NewResultMapper returns a ResultMapper that decodes hit bodies with m.
// A nil m uses JSONEntityMapper.
func NewResultMapper[T any](m EntityMapper) ResultMapper[T] {
	if m == nil {
		m = JSONEntityMapper{}
	}
	return &entityResultMapper[T]{entity: m}
}

func (m *entityResultMapper[T]) MapResults(resp *SearchResponse) ([]T, error) {
	out := make([]T, 0, len(resp.Hits))
	for i := range resp.Hits {
		item, err := m.MapSearchHit(&resp.Hits[i])
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

func (m *entityResultMapper[T]) MapSearchHit(hit *Hit) (T, error) {
	var item T
	target := any(&item)
	// Pointer types decode into a freshly allocated struct.
	if rt := reflect.TypeFor[T](); rt.Kind() == reflect.Pointer {
		item = reflect.New(rt.Elem()).Interface().(T)
		target = item
	}
	if err := m.entity.MapSource(hit.Source, target); err != nil {
		var zero T
		return zero, fmt.Errorf("map hit %s/%s: %w", hit.Index, hit.ID, err)
	}
	return item, nil
}

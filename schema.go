package occdex

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/kailas-cloud/occdex/internal/db"
)

const tagKey = "occ"

// Mapping is the index metadata resolved for a registered type.
type Mapping struct {
	Index  string
	Kind   string
	Fields []db.IndexField
}

// Definition returns the index definition used to create the index.
func (m *Mapping) Definition() *db.IndexDefinition {
	fields := make([]db.IndexField, len(m.Fields))
	copy(fields, m.Fields)
	return &db.IndexDefinition{Name: m.Index, Kind: m.Kind, Fields: fields}
}

// Registry resolves Go types to index mappings. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	types map[reflect.Type]*Mapping
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[reflect.Type]*Mapping)}
}

// Register parses T's occ struct tags and binds T (and *T) to index.
//
//	type Post struct {
//	    Title  string `json:"title"  occ:"title,text"`
//	    Author string `json:"author" occ:"author,tag"`
//	    Likes  int    `json:"likes"  occ:"likes,numeric"`
//	}
func Register[T any](reg *Registry, index, kind string) error {
	t, err := structType(reflect.TypeFor[T]())
	if err != nil {
		return err
	}
	if !db.IsValidIdentifier(index) {
		return fmt.Errorf("occdex: invalid index name %q", index)
	}

	b := db.NewIndex(index).Kind(kind)
	if err := parseFields(t, b); err != nil {
		return err
	}
	def, err := b.Build()
	if err != nil {
		return fmt.Errorf("occdex: mapping for %s: %w", t, err)
	}
	m := &Mapping{Index: def.Name, Kind: def.Kind, Fields: def.Fields}

	reg.mu.Lock()
	defer reg.mu.Unlock()
	if prev, ok := reg.types[t]; ok && prev.Index != index {
		return fmt.Errorf("occdex: %s already registered for index %q", t, prev.Index)
	}
	reg.types[t] = m
	return nil
}

// MappingFor returns the mapping registered for T.
func MappingFor[T any](reg *Registry) (*Mapping, error) {
	t, err := structType(reflect.TypeFor[T]())
	if err != nil {
		return nil, err
	}
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	m, ok := reg.types[t]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, t)
	}
	return m, nil
}

// Definitions returns the index definitions of every registered type, sorted by index name.
func (r *Registry) Definitions() []*db.IndexDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool, len(r.types))
	defs := make([]*db.IndexDefinition, 0, len(r.types))
	for _, m := range r.types {
		if seen[m.Index] {
			continue
		}
		seen[m.Index] = true
		defs = append(defs, m.Definition())
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

func structType(t reflect.Type) (reflect.Type, error) {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("occdex: type %s is not a struct", t)
	}
	return t, nil
}

// parseFields adds the indexed fields of t to b, descending into embedded structs.
func parseFields(t reflect.Type, b *db.IndexBuilder) error {
	for i := range t.NumField() {
		f := t.Field(i)
		tag := f.Tag.Get(tagKey)
		if tag == "-" {
			continue
		}
		if f.Anonymous && tag == "" {
			inner := f.Type
			if inner.Kind() == reflect.Pointer {
				inner = inner.Elem()
			}
			if inner.Kind() == reflect.Struct && f.IsExported() {
				if err := parseFields(inner, b); err != nil {
					return err
				}
			}
			continue
		}
		if tag == "" {
			continue
		}
		if err := applyTag(b, f, tag); err != nil {
			return err
		}
	}
	return nil
}

// applyTag adds the field described by a single occ tag.
// Tag fields are exact and case-sensitive on every store.
func applyTag(b *db.IndexBuilder, f reflect.StructField, tag string) error {
	name, modifier, ok := strings.Cut(tag, ",")
	if name == "" {
		name = jsonName(f)
	}
	if !ok {
		modifier = "text"
	}

	switch modifier {
	case "text":
		b.Text(name)
	case "tag":
		b.Tag(name)
	case "numeric":
		if !isNumeric(f.Type) {
			return fmt.Errorf("occdex: numeric tag on non-numeric field %s", f.Name)
		}
		b.Numeric(name)
	default:
		return fmt.Errorf("occdex: unknown modifier %q on field %s", modifier, f.Name)
	}
	return nil
}

func jsonName(f reflect.StructField) string {
	if tag := f.Tag.Get("json"); tag != "" {
		if name, _, _ := strings.Cut(tag, ","); name != "" && name != "-" {
			return name
		}
	}
	return f.Name
}

func isNumeric(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Float32, reflect.Float64,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	default:
		return false
	}
}

// Package query is the predicate model handed to the store drivers.
//
// A Query is a small closed tree (match, term, range, ids, match-all, bool).
// Each driver compiles it to its own wire form: the Elasticsearch JSON DSL,
// the FT.SEARCH query syntax, or an in-process evaluator.
package query

import (
	"errors"
	"fmt"
)

// MaxClausesPerGroup is the maximum number of clauses in one bool group.
const MaxClausesPerGroup = 32

// Query is a search predicate. The set of implementations is closed.
type Query interface {
	isQuery()
}

// Builder constructs a Query lazily, once per request.
type Builder func() Query

// MatchQuery is a full-text match: any analyzed term of Text must occur in Field.
type MatchQuery struct {
	Field string
	Text  string
}

// TermQuery is an exact, unanalyzed value match.
type TermQuery struct {
	Field string
	Value string
}

// RangeQuery is a numeric range on Field.
type RangeQuery struct {
	Field string
	Range Range
}

// IDsQuery matches documents whose id is in IDs.
type IDsQuery struct {
	IDs []string
}

// MatchAllQuery matches every document.
type MatchAllQuery struct{}

// BoolQuery combines clauses with must/should/must_not semantics.
// When Must is empty and Should is not, at least one Should clause has to match.
type BoolQuery struct {
	must    []Query
	should  []Query
	mustNot []Query
}

func (MatchQuery) isQuery()    {}
func (TermQuery) isQuery()     {}
func (RangeQuery) isQuery()    {}
func (IDsQuery) isQuery()      {}
func (MatchAllQuery) isQuery() {}
func (*BoolQuery) isQuery()    {}

// Match creates a full-text match query.
func Match(field, text string) MatchQuery { return MatchQuery{Field: field, Text: text} }

// Term creates an exact value query.
func Term(field, value string) TermQuery { return TermQuery{Field: field, Value: value} }

// Between creates a range query from a prepared Range.
func Between(field string, r Range) RangeQuery { return RangeQuery{Field: field, Range: r} }

// IDs creates an ids query.
func IDs(ids ...string) IDsQuery { return IDsQuery{IDs: ids} }

// MatchAll creates a query matching every document.
func MatchAll() MatchAllQuery { return MatchAllQuery{} }

// Bool starts an empty bool query.
func Bool() *BoolQuery { return &BoolQuery{} }

// Must appends clauses that all have to match.
func (b *BoolQuery) Must(q ...Query) *BoolQuery {
	b.must = append(b.must, q...)
	return b
}

// Should appends optional clauses.
func (b *BoolQuery) Should(q ...Query) *BoolQuery {
	b.should = append(b.should, q...)
	return b
}

// MustNot appends clauses that must not match.
func (b *BoolQuery) MustNot(q ...Query) *BoolQuery {
	b.mustNot = append(b.mustNot, q...)
	return b
}

// MustClauses returns the must clauses.
func (b *BoolQuery) MustClauses() []Query { return b.must }

// ShouldClauses returns the should clauses.
func (b *BoolQuery) ShouldClauses() []Query { return b.should }

// MustNotClauses returns the must-not clauses.
func (b *BoolQuery) MustNotClauses() []Query { return b.mustNot }

// IsEmpty reports whether the bool query has no clauses.
func (b *BoolQuery) IsEmpty() bool {
	return len(b.must) == 0 && len(b.should) == 0 && len(b.mustNot) == 0
}

// Range is a numeric range with gt/gte/lt/lte boundaries.
type Range struct {
	gt  *float64
	gte *float64
	lt  *float64
	lte *float64
}

// NewRange validates and creates a Range.
// At least one boundary is required. gt/gte and lt/lte are mutually exclusive.
func NewRange(gt, gte, lt, lte *float64) (Range, error) {
	if gt == nil && gte == nil && lt == nil && lte == nil {
		return Range{}, errors.New("at least one range boundary is required")
	}
	if gt != nil && gte != nil {
		return Range{}, errors.New("cannot specify both gt and gte")
	}
	if lt != nil && lte != nil {
		return Range{}, errors.New("cannot specify both lt and lte")
	}
	return Range{gt: gt, gte: gte, lt: lt, lte: lte}, nil
}

// GT returns the lower exclusive bound.
func (r Range) GT() *float64 { return r.gt }

// GTE returns the lower inclusive bound.
func (r Range) GTE() *float64 { return r.gte }

// LT returns the upper exclusive bound.
func (r Range) LT() *float64 { return r.lt }

// LTE returns the upper inclusive bound.
func (r Range) LTE() *float64 { return r.lte }

// Contains reports whether v lies inside the range.
func (r Range) Contains(v float64) bool {
	if r.gt != nil && v <= *r.gt {
		return false
	}
	if r.gte != nil && v < *r.gte {
		return false
	}
	if r.lt != nil && v >= *r.lt {
		return false
	}
	if r.lte != nil && v > *r.lte {
		return false
	}
	return true
}

// Validate checks a query tree before it is sent to a store.
func Validate(q Query) error {
	switch v := q.(type) {
	case nil:
		return errors.New("query is required")
	case MatchQuery:
		if v.Field == "" {
			return errors.New("match: field is required")
		}
		if v.Text == "" {
			return fmt.Errorf("match: text is required for field %q", v.Field)
		}
	case TermQuery:
		if v.Field == "" {
			return errors.New("term: field is required")
		}
		if v.Value == "" {
			return fmt.Errorf("term: value is required for field %q", v.Field)
		}
	case RangeQuery:
		if v.Field == "" {
			return errors.New("range: field is required")
		}
		r := v.Range
		if r.gt == nil && r.gte == nil && r.lt == nil && r.lte == nil {
			return fmt.Errorf("range: no boundary for field %q", v.Field)
		}
	case IDsQuery:
		if len(v.IDs) == 0 {
			return errors.New("ids: at least one id is required")
		}
	case MatchAllQuery:
	case *BoolQuery:
		if v == nil {
			return errors.New("query is required")
		}
		return validateBool(v)
	default:
		return fmt.Errorf("unsupported query type %T", q)
	}
	return nil
}

func validateBool(b *BoolQuery) error {
	if b.IsEmpty() {
		return errors.New("bool: at least one clause is required")
	}
	groups := []struct {
		name    string
		clauses []Query
	}{
		{"must", b.must},
		{"should", b.should},
		{"must_not", b.mustNot},
	}
	for _, g := range groups {
		if len(g.clauses) > MaxClausesPerGroup {
			return fmt.Errorf("bool: too many %s clauses (max %d)", g.name, MaxClausesPerGroup)
		}
		for _, c := range g.clauses {
			if err := Validate(c); err != nil {
				return fmt.Errorf("bool %s: %w", g.name, err)
			}
		}
	}
	return nil
}

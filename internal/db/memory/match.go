package memory

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"unicode"

	"github.com/kailas-cloud/occdex/pkg/query"
)

// evaluate reports whether doc satisfies q.
func evaluate(q query.Query, doc *document) (bool, error) {
	switch v := q.(type) {
	case nil:
		return false, fmt.Errorf("query is required")
	case query.MatchAllQuery:
		return true, nil
	case query.IDsQuery:
		return slices.Contains(v.IDs, doc.id), nil
	case query.MatchQuery:
		return matchText(lookup(doc.fields, v.Field), v.Text), nil
	case query.TermQuery:
		return matchTerm(lookup(doc.fields, v.Field), v.Value), nil
	case query.RangeQuery:
		return matchRange(lookup(doc.fields, v.Field), v.Range), nil
	case *query.BoolQuery:
		return evaluateBool(v, doc)
	default:
		return false, fmt.Errorf("unsupported query type %T", q)
	}
}

func evaluateBool(b *query.BoolQuery, doc *document) (bool, error) {
	for _, c := range b.MustClauses() {
		ok, err := evaluate(c, doc)
		if err != nil || !ok {
			return false, err
		}
	}
	for _, c := range b.MustNotClauses() {
		ok, err := evaluate(c, doc)
		if err != nil {
			return false, err
		}
		if ok {
			return false, nil
		}
	}
	should := b.ShouldClauses()
	if len(should) == 0 || len(b.MustClauses()) > 0 {
		return true, nil
	}
	for _, c := range should {
		ok, err := evaluate(c, doc)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// lookup resolves a dotted path inside a decoded JSON object.
func lookup(fields map[string]any, path string) any {
	var cur any = fields
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur, ok = m[part]
		if !ok {
			return nil
		}
	}
	return cur
}

// values flattens arrays so every element is compared on its own.
func values(v any) []any {
	if arr, ok := v.([]any); ok {
		return arr
	}
	if v == nil {
		return nil
	}
	return []any{v}
}

func matchText(v any, text string) bool {
	want := tokenize(text)
	if len(want) == 0 {
		return false
	}
	for _, val := range values(v) {
		have := tokenize(stringify(val))
		for _, w := range want {
			if slices.Contains(have, w) {
				return true
			}
		}
	}
	return false
}

func matchTerm(v any, value string) bool {
	for _, val := range values(v) {
		if stringify(val) == value {
			return true
		}
	}
	return false
}

func matchRange(v any, r query.Range) bool {
	for _, val := range values(v) {
		f, ok := toFloat(val)
		if ok && r.Contains(f) {
			return true
		}
	}
	return false
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

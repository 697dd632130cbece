package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/occdex/internal/db"
	"github.com/kailas-cloud/occdex/pkg/query"
)

// idField is the TAG alias of the envelope's _id, added to every FT index.
const idField = "__id"

// envelope is the stored JSON document.
type envelope struct {
	ID          string          `json:"_id"`
	SeqNo       int64           `json:"_seq_no"`
	PrimaryTerm int64           `json:"_primary_term"`
	Source      json.RawMessage `json:"_source"`
}

// Search runs FT.SEARCH against every requested index and pages the merged hits.
// Match clauses expect TEXT fields, Term clauses TAG fields, Range clauses NUMERIC fields.
func (s *Store) Search(ctx context.Context, req *db.SearchRequest) (*db.SearchResponse, error) {
	if len(req.Indices) == 0 {
		return nil, &db.Error{Op: db.OpSearch, Err: errors.New("at least one index is required")}
	}
	q, err := buildQuery(req.Query)
	if err != nil {
		return nil, &db.Error{Op: db.OpSearch, Err: err}
	}

	offset, limit := req.From, req.Size
	if len(req.Indices) > 1 {
		// Each index contributes up to From+Size hits; paging happens after the merge.
		offset, limit = 0, req.From+req.Size
	}

	resp := &db.SearchResponse{Hits: []db.Hit{}}
	for _, index := range req.Indices {
		args := []string{
			s.ftIndexName(index), q,
			"LIMIT", strconv.Itoa(offset), strconv.Itoa(limit),
			"DIALECT", "2",
		}
		cmd := s.b().Arbitrary("FT.SEARCH").Args(args...).Build()
		raw, err := s.do(ctx, cmd).ToArray()
		if err != nil {
			if isRedisErr(err, "no such index") || isRedisErr(err, "unknown index name") {
				return nil, &db.Error{Op: db.OpSearch, Err: fmt.Errorf("%s: %w", index, db.ErrIndexNotFound)}
			}
			return nil, &db.Error{Op: db.OpSearch, Err: err}
		}

		total, hits, err := s.parseHits(index, raw, req.SeqNoPrimaryTerm)
		if err != nil {
			return nil, &db.Error{Op: db.OpSearch, Err: err}
		}
		resp.Total += total
		resp.Hits = append(resp.Hits, hits...)
	}

	if len(req.Indices) > 1 {
		resp.Hits = page(resp.Hits, req.From, req.Size)
	}
	return resp, nil
}

func page(hits []db.Hit, from, size int) []db.Hit {
	if from >= len(hits) || size <= 0 {
		return []db.Hit{}
	}
	return hits[from:min(from+size, len(hits))]
}

// --- Result parsing ---

func (s *Store) parseHits(index string, raw []rueidis.RedisMessage, withVersion bool) (int, []db.Hit, error) {
	if len(raw) == 0 {
		return 0, nil, nil
	}

	total, err := raw[0].AsInt64()
	if err != nil {
		return 0, nil, fmt.Errorf("parse total: %w", err)
	}
	if total == 0 {
		return 0, nil, nil
	}

	prefix := s.docPrefix(index)
	hits := make([]db.Hit, 0, (len(raw)-1)/2)
	// 2-stride: [total, key1, fields1, key2, fields2, ...]
	for i := 1; i+1 < len(raw); i += 2 {
		key, err := raw[i].ToString()
		if err != nil {
			continue
		}

		fields, err := raw[i+1].ToArray()
		if err != nil {
			continue
		}

		doc := parseFieldPairs(fields)["$"]
		if doc == "" {
			return 0, nil, fmt.Errorf("hit %s: missing document body", key)
		}
		var env envelope
		if err := json.Unmarshal([]byte(doc), &env); err != nil {
			return 0, nil, fmt.Errorf("hit %s: %w", key, err)
		}

		hit := db.Hit{
			Index:       index,
			ID:          env.ID,
			SeqNo:       db.UnassignedSeqNo,
			PrimaryTerm: db.UnassignedPrimaryTerm,
			Source:      env.Source,
		}
		if hit.ID == "" {
			hit.ID = strings.TrimPrefix(key, prefix)
		}
		if withVersion {
			hit.SeqNo = env.SeqNo
			hit.PrimaryTerm = env.PrimaryTerm
		}
		hits = append(hits, hit)
	}

	return int(total), hits, nil
}

func parseFieldPairs(fields []rueidis.RedisMessage) map[string]string {
	m := make(map[string]string, len(fields)/2)
	for j := 0; j+1 < len(fields); j += 2 {
		name, err := fields[j].ToString()
		if err != nil {
			continue
		}
		value, err := fields[j+1].ToString()
		if err != nil {
			continue
		}
		m[name] = value
	}
	return m
}

// --- Query building ---

// buildQuery translates a query tree into FT.SEARCH query syntax.
func buildQuery(q query.Query) (string, error) {
	switch v := q.(type) {
	case nil:
		return "", errors.New("query is required")
	case query.MatchAllQuery:
		return "*", nil
	case query.MatchQuery:
		return buildMatch(v)
	case query.TermQuery:
		return buildTagFilter(v.Field, v.Value), nil
	case query.RangeQuery:
		return buildNumericFilter(v.Field, v.Range), nil
	case query.IDsQuery:
		if len(v.IDs) == 0 {
			return "", errors.New("ids: at least one id is required")
		}
		escaped := make([]string, len(v.IDs))
		for i, id := range v.IDs {
			escaped[i] = tagEscaper.Replace(id)
		}
		return fmt.Sprintf("@%s:{%s}", idField, strings.Join(escaped, " | ")), nil
	case *query.BoolQuery:
		return buildBool(v)
	default:
		return "", fmt.Errorf("unsupported query type %T", q)
	}
}

func buildMatch(m query.MatchQuery) (string, error) {
	terms := strings.Fields(m.Text)
	if len(terms) == 0 {
		return "", fmt.Errorf("match: text is required for field %q", m.Field)
	}
	for i, t := range terms {
		terms[i] = escapeQuery(t)
	}
	return fmt.Sprintf("@%s:(%s)", m.Field, strings.Join(terms, "|")), nil
}

func buildBool(b *query.BoolQuery) (string, error) {
	if b == nil || b.IsEmpty() {
		return "", errors.New("bool: at least one clause is required")
	}

	var parts []string
	for _, c := range b.MustClauses() {
		s, err := buildQuery(c)
		if err != nil {
			return "", err
		}
		parts = append(parts, "("+s+")")
	}

	if should := b.ShouldClauses(); len(should) > 0 && len(b.MustClauses()) == 0 {
		group := make([]string, 0, len(should))
		for _, c := range should {
			s, err := buildQuery(c)
			if err != nil {
				return "", err
			}
			group = append(group, "("+s+")")
		}
		parts = append(parts, "("+strings.Join(group, " | ")+")")
	}

	for _, c := range b.MustNotClauses() {
		s, err := buildQuery(c)
		if err != nil {
			return "", err
		}
		parts = append(parts, "-("+s+")")
	}

	return strings.Join(parts, " "), nil
}

func buildTagFilter(key, value string) string {
	escaped := tagEscaper.Replace(value)
	return fmt.Sprintf("@%s:{%s}", key, escaped)
}

func buildNumericFilter(key string, r query.Range) string {
	minBound := "-inf"
	maxBound := "+inf"

	if r.GT() != nil {
		minBound = fmt.Sprintf("(%g", *r.GT())
	} else if r.GTE() != nil {
		minBound = fmt.Sprintf("%g", *r.GTE())
	}

	if r.LT() != nil {
		maxBound = fmt.Sprintf("(%g", *r.LT())
	} else if r.LTE() != nil {
		maxBound = fmt.Sprintf("%g", *r.LTE())
	}

	return fmt.Sprintf("@%s:[%s %s]", key, minBound, maxBound)
}

// --- Query helpers ---

var tagEscaper = strings.NewReplacer(
	",", "\\,",
	".", "\\.",
	"<", "\\<",
	">", "\\>",
	"{", "\\{",
	"}", "\\}",
	"\"", "\\\"",
	"'", "\\'",
	":", "\\:",
	";", "\\;",
	"!", "\\!",
	"@", "\\@",
	"#", "\\#",
	"$", "\\$",
	"%", "\\%",
	"^", "\\^",
	"&", "\\&",
	"*", "\\*",
	"(", "\\(",
	")", "\\)",
	"-", "\\-",
	"+", "\\+",
	"=", "\\=",
	"~", "\\~",
	"|", "\\|",
	" ", "\\ ",
)

func escapeQuery(s string) string {
	return queryEscaper.Replace(s)
}

var queryEscaper = strings.NewReplacer(
	`\`, `\\`,
	`'`, `\'`,
	`"`, `\"`,
	`@`, `\@`,
	`{`, `\{`,
	`}`, `\}`,
	`(`, `\(`,
	`)`, `\)`,
	`|`, `\|`,
	`-`, `\-`,
	`~`, `\~`,
	`*`, `\*`,
	`[`, `\[`,
	`]`, `\]`,
	`!`, `\!`,
	`%`, `\%`,
	`^`, `\^`,
	`$`, `\$`,
	`<`, `\<`,
	`>`, `\>`,
	`=`, `\=`,
	`;`, `\;`,
	`+`, `\+`,
	`:`, `\:`,
	`.`, `\.`,
	`,`, `\,`,
)

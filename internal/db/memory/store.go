// Package memory is an in-process document store with the same optimistic
// concurrency semantics as the network drivers: per-document sequence numbers
// starting at 0, a primary term of 1, create-only and compare-and-swap writes.
// Writes are visible to search as soon as they return.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/kailas-cloud/occdex/internal/db"
)

// Compile-time check: Store implements db.Store.
var _ db.Store = (*Store)(nil)

// primaryTerm is constant: an in-process store never changes ownership.
const primaryTerm int64 = 1

type document struct {
	id     string
	seqNo  int64
	source json.RawMessage
	fields map[string]any
}

type index struct {
	def   *db.IndexDefinition
	docs  map[string]*document
	order []string
}

// Store implements db.Store in memory.
type Store struct {
	mu      sync.RWMutex
	indices map[string]*index
	closed  bool
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{indices: make(map[string]*index)}
}

// Ping fails only after Close.
func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return &db.Error{Op: db.OpPing, Err: errors.New("store is closed")}
	}
	return nil
}

// Close marks the store closed.
func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// WaitForReady returns immediately: the store is always ready.
func (s *Store) WaitForReady(ctx context.Context, _ time.Duration) error {
	return s.Ping(ctx)
}

// CreateIndex registers an index definition.
func (s *Store) CreateIndex(_ context.Context, def *db.IndexDefinition) error {
	if err := def.Validate(); err != nil {
		return &db.Error{Op: db.OpCreateIndex, Err: err}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.indices[def.Name]; ok {
		return db.ErrIndexExists
	}
	s.indices[def.Name] = newIndex(def)
	return nil
}

// DropIndex removes an index and all its documents.
func (s *Store) DropIndex(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.indices[name]; !ok {
		return db.ErrIndexNotFound
	}
	delete(s.indices, name)
	return nil
}

// IndexExists reports whether the index has been created.
func (s *Store) IndexExists(_ context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.indices[name]
	return ok, nil
}

// Index applies a single write.
func (s *Store) Index(_ context.Context, req *db.WriteRequest) (db.WriteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, _, err := s.apply(req)
	if err != nil {
		return db.WriteResult{}, &db.Error{Op: db.OpIndex, Err: err}
	}
	return res, nil
}

// Bulk applies every write in order; a failing item does not stop the others.
func (s *Store) Bulk(_ context.Context, reqs []db.WriteRequest, _ db.Refresh) ([]db.BulkItemResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, &db.Error{Op: db.OpBulk, Err: errors.New("store is closed")}
	}

	out := make([]db.BulkItemResult, len(reqs))
	for i := range reqs {
		req := &reqs[i]
		res, status, err := s.apply(req)
		item := db.BulkItemResult{
			Index:       req.Index,
			ID:          req.ID,
			SeqNo:       res.SeqNo,
			PrimaryTerm: res.PrimaryTerm,
			Status:      status,
		}
		if err != nil {
			item.SeqNo = db.UnassignedSeqNo
			item.PrimaryTerm = db.UnassignedPrimaryTerm
			item.Err = err
		}
		out[i] = item
	}
	return out, nil
}

// apply runs one write under the write lock and returns an HTTP-like status.
func (s *Store) apply(req *db.WriteRequest) (db.WriteResult, int, error) {
	if s.closed {
		return db.WriteResult{}, http.StatusServiceUnavailable, errors.New("store is closed")
	}
	if err := validateWrite(req); err != nil {
		return db.WriteResult{}, http.StatusBadRequest, err
	}

	var fields map[string]any
	if err := json.Unmarshal(req.Body, &fields); err != nil {
		return db.WriteResult{}, http.StatusBadRequest, fmt.Errorf("parse body: %w", err)
	}

	idx, ok := s.indices[req.Index]
	if !ok {
		idx = newIndex(nil)
		s.indices[req.Index] = idx
	}

	cur, exists := idx.docs[req.ID]
	if err := checkPrecondition(req, cur, exists); err != nil {
		return db.WriteResult{}, http.StatusConflict, err
	}

	next := &document{
		id:     req.ID,
		source: append(json.RawMessage(nil), req.Body...),
		fields: fields,
	}
	status := http.StatusCreated
	if exists {
		next.seqNo = cur.seqNo + 1
		status = http.StatusOK
	} else {
		idx.order = append(idx.order, req.ID)
	}
	idx.docs[req.ID] = next

	return db.WriteResult{SeqNo: next.seqNo, PrimaryTerm: primaryTerm}, status, nil
}

func checkPrecondition(req *db.WriteRequest, cur *document, exists bool) error {
	if req.OpType == db.OpTypeCreate && exists {
		return fmt.Errorf("[%s]: %w: document already exists (current seq_no [%d])",
			req.ID, db.ErrVersionConflict, cur.seqNo)
	}
	if !req.HasPrecondition {
		return nil
	}
	if !exists {
		return fmt.Errorf("[%s]: %w: required seq_no [%d], primary term [%d] but no document was found",
			req.ID, db.ErrVersionConflict, req.IfSeqNo, req.IfPrimaryTerm)
	}
	if cur.seqNo != req.IfSeqNo || primaryTerm != req.IfPrimaryTerm {
		return fmt.Errorf(
			"[%s]: %w: required seq_no [%d], primary term [%d]; current document has seq_no [%d] and primary term [%d]",
			req.ID, db.ErrVersionConflict, req.IfSeqNo, req.IfPrimaryTerm, cur.seqNo, primaryTerm)
	}
	return nil
}

func validateWrite(req *db.WriteRequest) error {
	if req.Index == "" {
		return errors.New("index is required")
	}
	if req.ID == "" {
		return errors.New("document id is required")
	}
	if req.ContentType != "" && req.ContentType != db.ContentTypeJSON {
		return fmt.Errorf("unsupported content type %q", req.ContentType)
	}
	return nil
}

// Search evaluates the query over every requested index.
func (s *Store) Search(_ context.Context, req *db.SearchRequest) (*db.SearchResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, &db.Error{Op: db.OpSearch, Err: errors.New("store is closed")}
	}
	if len(req.Indices) == 0 {
		return nil, &db.Error{Op: db.OpSearch, Err: errors.New("at least one index is required")}
	}

	var matched []db.Hit
	for _, name := range req.Indices {
		idx, ok := s.indices[name]
		if !ok {
			return nil, &db.Error{Op: db.OpSearch, Err: fmt.Errorf("%s: %w", name, db.ErrIndexNotFound)}
		}
		for _, id := range idx.order {
			doc := idx.docs[id]
			ok, err := evaluate(req.Query, doc)
			if err != nil {
				return nil, &db.Error{Op: db.OpSearch, Err: err}
			}
			if !ok {
				continue
			}
			hit := db.Hit{
				Index:       name,
				ID:          doc.id,
				SeqNo:       db.UnassignedSeqNo,
				PrimaryTerm: db.UnassignedPrimaryTerm,
				Source:      append(json.RawMessage(nil), doc.source...),
			}
			if req.SeqNoPrimaryTerm {
				hit.SeqNo = doc.seqNo
				hit.PrimaryTerm = primaryTerm
			}
			matched = append(matched, hit)
		}
	}

	return &db.SearchResponse{Total: len(matched), Hits: page(matched, req.From, req.Size)}, nil
}

func page(hits []db.Hit, from, size int) []db.Hit {
	if from < 0 {
		from = 0
	}
	if from >= len(hits) || size <= 0 {
		return []db.Hit{}
	}
	end := min(from+size, len(hits))
	return hits[from:end]
}

func newIndex(def *db.IndexDefinition) *index {
	return &index{def: def, docs: make(map[string]*document)}
}

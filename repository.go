package occdex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/kailas-cloud/occdex/internal/db"
	"github.com/kailas-cloud/occdex/pkg/query"
)

// Refresh controls when a write becomes visible to search.
type Refresh = db.Refresh

// Refresh policies.
const (
	RefreshNone    = db.RefreshNone
	RefreshTrue    = db.RefreshTrue
	RefreshWaitFor = db.RefreshWaitFor
)

// Store is the document store consumed by the repository.
type Store interface {
	db.Writer
	db.BulkWriter
	db.Searcher
}

// Repository stores and searches documents of type T with optimistic
// concurrency control.
//
// It keeps no per-document state, never retries and never locks: every call
// is one request to the store. Concurrent use is safe.
type Repository[T Versioned] struct {
	store        Store
	mapping      *Mapping
	entity       EntityMapper
	results      *VersionAwareMapper[T]
	exec         *Executor
	indexRefresh db.Refresh
	bulkRefresh  db.Refresh
	logger       *zap.Logger
}

// RepositoryOption configures a Repository.
type RepositoryOption func(*repositoryConfig)

type repositoryConfig struct {
	pageSize     int
	entity       EntityMapper
	indexRefresh Refresh
	bulkRefresh  Refresh
	logger       *zap.Logger
}

func defaultRepositoryConfig() repositoryConfig {
	return repositoryConfig{
		pageSize:     DefaultPageSize,
		entity:       JSONEntityMapper{},
		indexRefresh: RefreshWaitFor,
		bulkRefresh:  RefreshNone,
		logger:       zap.NewNop(),
	}
}

// WithPageSize overrides the number of hits Search returns. Default: 50.
func WithPageSize(n int) RepositoryOption {
	return func(c *repositoryConfig) { c.pageSize = n }
}

// WithEntityMapper replaces the JSON object mapper.
func WithEntityMapper(m EntityMapper) RepositoryOption {
	return func(c *repositoryConfig) { c.entity = m }
}

// WithIndexRefresh sets the visibility policy of Index. Default: wait_for,
// so a Search issued after Index returns observes the write.
func WithIndexRefresh(r Refresh) RepositoryOption {
	return func(c *repositoryConfig) { c.indexRefresh = r }
}

// WithBulkRefresh sets the visibility policy of BulkIndex. Default: none.
func WithBulkRefresh(r Refresh) RepositoryOption {
	return func(c *repositoryConfig) { c.bulkRefresh = r }
}

// WithLogger enables structured logging of writes. Default: no-op.
func WithLogger(l *zap.Logger) RepositoryOption {
	return func(c *repositoryConfig) { c.logger = l }
}

// NewRepository creates a repository for T. T must be registered in reg.
func NewRepository[T Versioned](store Store, reg *Registry, opts ...RepositoryOption) (*Repository[T], error) {
	mapping, err := MappingFor[T](reg)
	if err != nil {
		return nil, err
	}

	cfg := defaultRepositoryConfig()
	for _, o := range opts {
		o(&cfg)
	}

	return &Repository[T]{
		store:        store,
		mapping:      mapping,
		entity:       cfg.entity,
		results:      NewVersionAwareMapper(NewResultMapper[T](cfg.entity)),
		exec:         NewExecutor(store, cfg.pageSize),
		indexRefresh: cfg.indexRefresh,
		bulkRefresh:  cfg.bulkRefresh,
		logger:       cfg.logger.With(zap.String("index", mapping.Index)),
	}, nil
}

// IndexName returns the index T is stored in.
func (r *Repository[T]) IndexName() string { return r.mapping.Index }

// Search returns at most one page of documents matching q, each carrying the
// token of its stored version. No match yields an empty slice. Store failures
// are returned unchanged.
func (r *Repository[T]) Search(ctx context.Context, q query.Query) ([]T, error) {
	return Execute(ctx, r.exec, []string{r.mapping.Index},
		func() query.Query { return q },
		r.results.MapResults,
	)
}

// Index writes doc conditionally and stores the new token back into it.
//
// A doc that was never persisted is created only if its id is free. A doc with
// a token is written only if the stored document still has that exact token.
// Either mismatch returns *ConflictError and leaves doc untouched. Any other
// failure returns *StoreError.
func (r *Repository[T]) Index(ctx context.Context, doc T) (T, error) {
	var zero T

	req, err := r.writeRequest(doc, r.indexRefresh)
	if err != nil {
		return zero, &StoreError{Op: "index", Index: r.mapping.Index, ID: doc.DocumentID(), Err: err}
	}

	res, err := r.store.Index(ctx, &req)
	if err != nil {
		return zero, r.classify(doc, err)
	}

	doc.SetVersion(res.SeqNo, res.PrimaryTerm)
	r.logger.Debug("document indexed",
		zap.String("id", req.ID),
		zap.Int64("seq_no", res.SeqNo),
		zap.Int64("primary_term", res.PrimaryTerm),
	)
	return doc, nil
}

// BulkIndex submits one conditional write per doc as a single batch.
//
// docs are not modified: new tokens are only reported in the result. Item
// failures, conflicts included, are data in the result; an error is returned
// only when the batch could not be submitted.
func (r *Repository[T]) BulkIndex(ctx context.Context, docs []T) (*BulkResult, error) {
	result := &BulkResult{Items: make([]BulkItem, len(docs))}

	reqs := make([]db.WriteRequest, 0, len(docs))
	pos := make([]int, 0, len(docs))
	for i, doc := range docs {
		req, err := r.writeRequest(doc, r.bulkRefresh)
		if err != nil {
			result.Items[i] = BulkItem{
				Index:       r.mapping.Index,
				ID:          doc.DocumentID(),
				SeqNo:       UnassignedSeqNo,
				PrimaryTerm: UnassignedPrimaryTerm,
				Status:      http.StatusBadRequest,
				Failure:     bulkFailure(http.StatusBadRequest, err),
			}
			continue
		}
		reqs = append(reqs, req)
		pos = append(pos, i)
	}

	if len(reqs) > 0 {
		outcomes, err := r.store.Bulk(ctx, reqs, r.bulkRefresh)
		if err != nil {
			r.logger.Error("bulk submission failed", zap.Int("items", len(reqs)), zap.Error(err))
			return nil, &StoreError{Op: "bulk", Index: r.mapping.Index, Err: err}
		}
		if len(outcomes) != len(reqs) {
			return nil, &StoreError{Op: "bulk", Index: r.mapping.Index,
				Err: fmt.Errorf("store returned %d outcomes for %d documents", len(outcomes), len(reqs))}
		}

		for j, o := range outcomes {
			item := BulkItem{
				Index:       r.mapping.Index,
				ID:          reqs[j].ID,
				SeqNo:       o.SeqNo,
				PrimaryTerm: o.PrimaryTerm,
				Status:      o.Status,
			}
			if o.Err != nil {
				item.SeqNo, item.PrimaryTerm = UnassignedSeqNo, UnassignedPrimaryTerm
				item.Failure = bulkFailure(o.Status, o.Err)
			}
			result.Items[pos[j]] = item
		}
	}

	if result.HasFailures() {
		r.logger.Info("bulk completed with failures",
			zap.Int("items", len(result.Items)),
			zap.Int("failed", len(result.Failed())),
		)
	}
	return result, nil
}

func (r *Repository[T]) writeRequest(doc T, refresh db.Refresh) (db.WriteRequest, error) {
	id := doc.DocumentID()
	if id == "" {
		return db.WriteRequest{}, errors.New("document id is required")
	}

	fields, err := r.entity.MapObject(doc)
	if err != nil {
		return db.WriteRequest{}, err
	}
	body, err := json.Marshal(fields)
	if err != nil {
		return db.WriteRequest{}, fmt.Errorf("encode %s: %w", id, err)
	}

	req := db.WriteRequest{
		Index:         r.mapping.Index,
		ID:            id,
		Body:          body,
		ContentType:   db.ContentTypeJSON,
		OpType:        db.OpTypeCreate,
		IfSeqNo:       UnassignedSeqNo,
		IfPrimaryTerm: UnassignedPrimaryTerm,
		Refresh:       refresh,
	}
	if IsPersisted(doc) {
		req.OpType = db.OpTypeIndex
		req.HasPrecondition = true
		req.IfSeqNo = doc.SeqNo()
		req.IfPrimaryTerm = doc.PrimaryTerm()
	}
	return req, nil
}

// classify turns a store write error into ConflictError or StoreError.
func (r *Repository[T]) classify(doc T, err error) error {
	id := doc.DocumentID()
	if db.IsVersionConflict(err) {
		r.logger.Info("version conflict",
			zap.String("id", id),
			zap.Int64("seq_no", doc.SeqNo()),
			zap.Int64("primary_term", doc.PrimaryTerm()),
		)
		return &ConflictError{
			Index:       r.mapping.Index,
			ID:          id,
			SeqNo:       doc.SeqNo(),
			PrimaryTerm: doc.PrimaryTerm(),
			Err:         err,
		}
	}
	r.logger.Error("index failed", zap.String("id", id), zap.Error(err))
	return &StoreError{Op: "index", Index: r.mapping.Index, ID: id, Err: err}
}

func bulkFailure(status int, err error) *BulkItemFailure {
	f := &BulkItemFailure{Kind: FailureOther, Status: status, Reason: err.Error(), Err: err}
	if db.IsVersionConflict(err) {
		f.Kind = FailureConflict
	}
	return f
}

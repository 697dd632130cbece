// Package instrumented decorates a db.Store with Prometheus metrics,
// OpenTelemetry spans and zap debug logs.
package instrumented

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/kailas-cloud/occdex/internal/db"
	"github.com/kailas-cloud/occdex/internal/metrics"
)

const tracerName = "github.com/kailas-cloud/occdex/internal/db"

// Compile-time check: Store implements db.Store.
var _ db.Store = (*Store)(nil)

// Store is a decorator that adds instrumentation to a db.Store.
type Store struct {
	Next   db.Store
	Tracer trace.Tracer
	Logger *zap.Logger
}

// New wraps next. A nil logger disables logging; spans go to the global tracer provider.
func New(next db.Store, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		Next:   next,
		Tracer: otel.Tracer(tracerName),
		Logger: logger,
	}
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	ctx, span := s.start(ctx, "store.ping")
	defer span.End()

	start := time.Now()
	err := s.Next.Ping(ctx)
	s.observe(span, db.OpPing, "", start, err)
	return err
}

// Close closes the wrapped store.
func (s *Store) Close() { s.Next.Close() }

// WaitForReady waits on the wrapped store.
func (s *Store) WaitForReady(ctx context.Context, timeout time.Duration) error {
	return s.Next.WaitForReady(ctx, timeout)
}

// Index records one conditional write.
func (s *Store) Index(ctx context.Context, req *db.WriteRequest) (db.WriteResult, error) {
	ctx, span := s.start(ctx, "store.index",
		attribute.String("index", req.Index),
		attribute.String("id", req.ID),
		attribute.String("op_type", string(req.OpType)),
		attribute.Bool("precondition", req.HasPrecondition),
	)
	defer span.End()

	start := time.Now()
	res, err := s.Next.Index(ctx, req)
	s.observe(span, db.OpIndex, req.Index, start, err)
	if err == nil {
		span.SetAttributes(
			attribute.Int64("seq_no", res.SeqNo),
			attribute.Int64("primary_term", res.PrimaryTerm),
		)
		s.Logger.Debug("store index",
			zap.String("index", req.Index),
			zap.String("id", req.ID),
			zap.Int64("seq_no", res.SeqNo),
			zap.Int64("primary_term", res.PrimaryTerm),
		)
	}
	return res, err
}

// Bulk records one batch and the outcome of every item.
func (s *Store) Bulk(ctx context.Context, reqs []db.WriteRequest, refresh db.Refresh) ([]db.BulkItemResult, error) {
	ctx, span := s.start(ctx, "store.bulk",
		attribute.Int("items", len(reqs)),
		attribute.String("refresh", string(refresh)),
	)
	defer span.End()

	start := time.Now()
	items, err := s.Next.Bulk(ctx, reqs, refresh)
	s.observe(span, db.OpBulk, bulkIndex(reqs), start, err)
	if err != nil {
		return items, err
	}

	failed := 0
	for i := range items {
		outcome := outcomeOf(items[i].Err)
		if outcome != metrics.OutcomeOK {
			failed++
		}
		metrics.StoreBulkItemsTotal.WithLabelValues(items[i].Index, outcome).Inc()
	}
	span.SetAttributes(attribute.Int("failed", failed))
	s.Logger.Debug("store bulk", zap.Int("items", len(items)), zap.Int("failed", failed))
	return items, nil
}

// Search records one query and the number of hits returned.
func (s *Store) Search(ctx context.Context, req *db.SearchRequest) (*db.SearchResponse, error) {
	index := strings.Join(req.Indices, ",")
	ctx, span := s.start(ctx, "store.search",
		attribute.StringSlice("indices", req.Indices),
		attribute.Int("from", req.From),
		attribute.Int("size", req.Size),
	)
	defer span.End()

	start := time.Now()
	resp, err := s.Next.Search(ctx, req)
	s.observe(span, db.OpSearch, index, start, err)
	if err == nil {
		span.SetAttributes(attribute.Int("hits", len(resp.Hits)), attribute.Int("total", resp.Total))
		metrics.StoreSearchHits.WithLabelValues(index).Observe(float64(len(resp.Hits)))
	}
	return resp, err
}

// CreateIndex records index creation.
func (s *Store) CreateIndex(ctx context.Context, def *db.IndexDefinition) error {
	ctx, span := s.start(ctx, "store.create_index", attribute.String("index", def.Name))
	defer span.End()

	start := time.Now()
	err := s.Next.CreateIndex(ctx, def)
	s.observe(span, db.OpCreateIndex, def.Name, start, err)
	return err
}

// DropIndex records index removal.
func (s *Store) DropIndex(ctx context.Context, name string) error {
	ctx, span := s.start(ctx, "store.drop_index", attribute.String("index", name))
	defer span.End()

	start := time.Now()
	err := s.Next.DropIndex(ctx, name)
	s.observe(span, db.OpDropIndex, name, start, err)
	return err
}

// IndexExists records an existence probe.
func (s *Store) IndexExists(ctx context.Context, name string) (bool, error) {
	ctx, span := s.start(ctx, "store.index_exists", attribute.String("index", name))
	defer span.End()

	start := time.Now()
	ok, err := s.Next.IndexExists(ctx, name)
	s.observe(span, db.OpIndexInfo, name, start, err)
	return ok, err
}

func (s *Store) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.Tracer.Start(ctx, name, trace.WithAttributes(attrs...), trace.WithSpanKind(trace.SpanKindClient))
}

func (s *Store) observe(span trace.Span, op, index string, start time.Time, err error) {
	outcome := outcomeOf(err)
	metrics.StoreOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	metrics.StoreOperationsTotal.WithLabelValues(op, index, outcome).Inc()

	switch outcome {
	case metrics.OutcomeConflict:
		// Conflicts are an expected outcome, not a span error.
		span.SetAttributes(attribute.Bool("conflict", true))
		s.Logger.Debug("store version conflict", zap.String("op", op), zap.String("index", index), zap.Error(err))
	case metrics.OutcomeError:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.Logger.Warn("store operation failed", zap.String("op", op), zap.String("index", index), zap.Error(err))
	}
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case db.IsVersionConflict(err):
		return metrics.OutcomeConflict
	default:
		return metrics.OutcomeError
	}
}

// bulkIndex labels a batch with its index when every request targets the same one.
func bulkIndex(reqs []db.WriteRequest) string {
	if len(reqs) == 0 {
		return ""
	}
	name := reqs[0].Index
	for i := range reqs {
		if reqs[i].Index != name {
			return "mixed"
		}
	}
	return name
}

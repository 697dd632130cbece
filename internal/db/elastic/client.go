// Package elastic implements db.Store on Elasticsearch via the esapi request
// structs of go-elasticsearch. Sequence numbers and primary terms are the
// cluster's own, so conflicts are detected server-side.
package elastic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/kailas-cloud/occdex/internal/db"
)

// Compile-time check: Store implements db.Store.
var _ db.Store = (*Store)(nil)

// Config holds connection parameters for an Elasticsearch cluster.
type Config struct {
	Addrs    []string
	Username string
	Password string
}

// Store implements db.Store via go-elasticsearch.
type Store struct {
	client *elasticsearch.Client
}

// NewStore creates an Elasticsearch store.
func NewStore(cfg Config) (*Store, error) {
	if len(cfg.Addrs) == 0 {
		return nil, fmt.Errorf("addrs is required")
	}

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addrs,
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	return &Store{client: client}, nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	res, err := esapi.PingRequest{}.Do(ctx, s.client)
	if err != nil {
		return &db.Error{Op: db.OpPing, Err: err}
	}
	defer closeBody(res)
	if res.IsError() {
		return &db.Error{Op: db.OpPing, Err: fmt.Errorf("ping: status %d", res.StatusCode)}
	}
	return nil
}

// Close is a no-op: the HTTP transport holds no dedicated resources.
func (s *Store) Close() {}

// WaitForReady polls Ping until the cluster responds or timeout expires.
func (s *Store) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for database: %w", ctx.Err())
		case <-ticker.C:
			if err := s.Ping(ctx); err == nil {
				return nil
			}
		}
	}
}

// errorBody is the error envelope of a failed request.
type errorBody struct {
	Error  errorCause `json:"error"`
	Status int        `json:"status"`
}

type errorCause struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

const (
	typeVersionConflict    = "version_conflict_engine_exception"
	typeIndexNotFound      = "index_not_found_exception"
	typeIndexAlreadyExists = "resource_already_exists_exception"
)

// responseError decodes a failed response and maps the well-known error types
// onto the db sentinels.
func responseError(res *esapi.Response) error {
	raw, err := io.ReadAll(res.Body)
	if err != nil {
		if res.StatusCode == http.StatusConflict {
			return fmt.Errorf("%w: read error body: %v", db.ErrVersionConflict, err)
		}
		return fmt.Errorf("status %d: read error body: %w", res.StatusCode, err)
	}

	var body errorBody
	if err := json.Unmarshal(raw, &body); err != nil || body.Error.Type == "" {
		return fmt.Errorf("status %d: %s", res.StatusCode, string(raw))
	}
	return causeError(res.StatusCode, body.Error)
}

func causeError(status int, cause errorCause) error {
	msg := cause.Type + ": " + cause.Reason
	switch {
	case cause.Type == typeVersionConflict || status == http.StatusConflict:
		return fmt.Errorf("%w: %s", db.ErrVersionConflict, msg)
	case cause.Type == typeIndexNotFound:
		return fmt.Errorf("%w: %s", db.ErrIndexNotFound, msg)
	case cause.Type == typeIndexAlreadyExists:
		return fmt.Errorf("%w: %s", db.ErrIndexExists, msg)
	default:
		return fmt.Errorf("status %d: %s", status, msg)
	}
}

// intParam narrows a token half to the int parameters esapi takes. It only
// fails where int is 32 bits wide.
func intParam(v int64) (int, error) {
	if int64(int(v)) != v {
		return 0, fmt.Errorf("value %d overflows int", v)
	}
	return int(v), nil
}

func closeBody(res *esapi.Response) {
	if res != nil && res.Body != nil {
		_, _ = io.Copy(io.Discard, res.Body)
		_ = res.Body.Close()
	}
}

func isIndexNotFound(err error) bool {
	return errors.Is(err, db.ErrIndexNotFound)
}

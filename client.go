package occdex

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/occdex/internal/db"
	dbElastic "github.com/kailas-cloud/occdex/internal/db/elastic"
	"github.com/kailas-cloud/occdex/internal/db/instrumented"
	"github.com/kailas-cloud/occdex/internal/db/memory"
	dbRedis "github.com/kailas-cloud/occdex/internal/db/redis"
)

const defaultReadinessTimeout = 10 * time.Second

// Client owns a store connection and the type registry shared by the
// repositories opened from it.
type Client struct {
	store    db.Store
	registry *Registry
	repoOpts []RepositoryOption
	logger   *zap.Logger
}

// New creates a Client and waits until the store answers.
func New(opts ...Option) (*Client, error) {
	cfg := &clientConfig{readinessTimeout: defaultReadinessTimeout}
	for _, o := range opts {
		o.apply(cfg)
	}

	if cfg.driver == "" {
		return nil, errors.New("occdex: store driver required (use WithRedis, WithElastic or WithMemory)")
	}

	store, err := createStore(cfg)
	if err != nil {
		return nil, err
	}

	if err := store.WaitForReady(context.Background(), cfg.readinessTimeout); err != nil {
		store.Close()
		return nil, fmt.Errorf("occdex: store not ready: %w", err)
	}

	return wireClient(store, cfg), nil
}

// NewWithStore creates a Client over an already connected store.
func NewWithStore(store db.Store, opts ...Option) *Client {
	cfg := &clientConfig{}
	for _, o := range opts {
		o.apply(cfg)
	}
	return wireClient(store, cfg)
}

func createStore(cfg *clientConfig) (db.Store, error) {
	switch cfg.driver {
	case "redis":
		if len(cfg.addrs) == 0 {
			return nil, errors.New("occdex: redis address required")
		}
		s, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:     cfg.addrs,
			Username:  cfg.username,
			Password:  cfg.password,
			KeyPrefix: cfg.keyPrefix,
		})
		if err != nil {
			return nil, fmt.Errorf("occdex: create redis store: %w", err)
		}
		return s, nil
	case "elastic":
		if len(cfg.addrs) == 0 {
			return nil, errors.New("occdex: elasticsearch address required")
		}
		s, err := dbElastic.NewStore(dbElastic.Config{
			Addrs:    cfg.addrs,
			Username: cfg.username,
			Password: cfg.password,
		})
		if err != nil {
			return nil, fmt.Errorf("occdex: create elastic store: %w", err)
		}
		return s, nil
	case "memory":
		return memory.NewStore(), nil
	default:
		return nil, fmt.Errorf("occdex: unknown driver %q", cfg.driver)
	}
}

func wireClient(store db.Store, cfg *clientConfig) *Client {
	logger := repositoryLogger(cfg.repoOpts)
	if cfg.instrument {
		store = instrumented.New(store, logger)
	}
	reg := cfg.registry
	if reg == nil {
		reg = NewRegistry()
	}
	return &Client{
		store:    store,
		registry: reg,
		repoOpts: cfg.repoOpts,
		logger:   logger,
	}
}

// repositoryLogger extracts the logger set through WithLogger, if any.
func repositoryLogger(opts []RepositoryOption) *zap.Logger {
	rc := defaultRepositoryConfig()
	for _, o := range opts {
		o(&rc)
	}
	return rc.logger
}

// Close releases the store connection.
func (c *Client) Close() {
	if c.store != nil {
		c.store.Close()
	}
}

// Ping checks store connectivity.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.store.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Registry returns the type registry used by Open.
func (c *Client) Registry() *Registry { return c.registry }

// Store returns the underlying store.
func (c *Client) Store() db.Store { return c.store }

// Executor returns a query executor over the client's store.
func (c *Client) Executor() *Executor {
	rc := defaultRepositoryConfig()
	for _, o := range c.repoOpts {
		o(&rc)
	}
	return NewExecutor(c.store, rc.pageSize)
}

// EnsureIndexes creates the index of every registered type that does not exist yet.
func (c *Client) EnsureIndexes(ctx context.Context) error {
	for _, def := range c.registry.Definitions() {
		err := c.store.CreateIndex(ctx, def)
		if err == nil {
			c.logger.Info("index created", zap.String("index", def.Name), zap.Stringer("definition", def))
			continue
		}
		if !errors.Is(err, db.ErrIndexExists) {
			return fmt.Errorf("ensure index %q: %w", def.Name, err)
		}
	}
	return nil
}

// Open returns a repository for T using the client's store, registry and
// repository defaults. opts override the client defaults.
func Open[T Versioned](c *Client, opts ...RepositoryOption) (*Repository[T], error) {
	all := make([]RepositoryOption, 0, len(c.repoOpts)+len(opts))
	all = append(all, c.repoOpts...)
	all = append(all, opts...)
	return NewRepository[T](c.store, c.registry, all...)
}

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/occdex"
	"github.com/kailas-cloud/occdex/internal/config"
	"github.com/kailas-cloud/occdex/internal/db"
	dompost "github.com/kailas-cloud/occdex/internal/domain/post"
	logpkg "github.com/kailas-cloud/occdex/internal/logger"
	"github.com/kailas-cloud/occdex/internal/metrics"
)

// app holds what every command needs: configuration, logger and a connected client.
type app struct {
	env    string
	cfg    config.Config
	logger *zap.Logger
	client *occdex.Client
}

func loadApp(cmd *cobra.Command) (*app, error) {
	env, _ := cmd.Flags().GetString("env")
	if env == "" {
		env = config.GetEnv()
	}

	cfg, err := config.Load(env)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	client, err := newClient(cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}

	return &app{env: env, cfg: cfg, logger: logger, client: client}, nil
}

func (a *app) close() {
	a.client.Close()
	_ = a.logger.Sync()
}

// newClient connects to the configured store and registers the post type.
func newClient(cfg config.Config, logger *zap.Logger) (*occdex.Client, error) {
	indexRefresh, _ := db.ParseRefresh(cfg.Repository.IndexRefresh)
	bulkRefresh, _ := db.ParseRefresh(cfg.Repository.BulkRefresh)

	opts := []occdex.Option{
		occdex.WithReadinessTimeout(time.Duration(cfg.Database.ReadinessTimeout) * time.Second),
		occdex.WithPageSize(cfg.Repository.PageSize),
		occdex.WithIndexRefresh(indexRefresh),
		occdex.WithBulkRefresh(bulkRefresh),
		occdex.WithLogger(logger),
	}

	switch cfg.Database.Driver {
	case config.DriverRedis:
		opts = append(opts,
			occdex.WithRedis(cfg.Database.Addrs[0], cfg.Database.Password),
			occdex.WithKeyPrefix(cfg.Database.KeyPrefix),
		)
	case config.DriverElastic:
		opts = append(opts, occdex.WithElastic(cfg.Database.Addrs, cfg.Database.Username, cfg.Database.Password))
	case config.DriverMemory:
		opts = append(opts, occdex.WithMemory())
	}

	if cfg.Database.Instrument {
		metrics.RegisterStoreMetrics()
		opts = append(opts, occdex.WithInstrumentation())
	}

	client, err := occdex.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", cfg.Database.Driver, err)
	}

	if err := dompost.Register(client.Registry()); err != nil {
		client.Close()
		return nil, fmt.Errorf("register post: %w", err)
	}

	logger.Info("Connected to database",
		zap.String("db_driver", cfg.Database.Driver),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)
	return client, nil
}

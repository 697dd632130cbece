package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/occdex"
	dompost "github.com/kailas-cloud/occdex/internal/domain/post"
	"github.com/kailas-cloud/occdex/internal/metrics"
	chiTransport "github.com/kailas-cloud/occdex/internal/transport/chi"
	healthuc "github.com/kailas-cloud/occdex/internal/usecase/health"
	postuc "github.com/kailas-cloud/occdex/internal/usecase/post"
	"github.com/kailas-cloud/occdex/internal/version"
)

func serveCmd() *cobra.Command {
	var ensureIndexes bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if ensureIndexes {
				if err := a.client.EnsureIndexes(ctx); err != nil {
					return fmt.Errorf("ensure indexes: %w", err)
				}
			}
			return serve(ctx, a)
		},
	}

	cmd.Flags().BoolVar(&ensureIndexes, "ensure-indexes", true, "create missing indexes before serving")
	return cmd
}

func serve(ctx context.Context, a *app) error {
	logger := a.logger
	logger.Info("Starting occdex API server",
		zap.String("commit", version.Commit),
		zap.String("env", a.env),
		zap.Int("http_port", a.cfg.HTTP.Port),
	)

	repo, err := occdex.Open[*dompost.Post](a.client)
	if err != nil {
		return fmt.Errorf("open post repository: %w", err)
	}

	postSvc := postuc.New(repo, a.client.Executor()).
		WithMaxBulkSize(a.cfg.Repository.MaxBulkSize)
	healthSvc := healthuc.New(a.client.Store(), a.client.Store(), dompost.Index)

	server := chiTransport.NewServer(postSvc, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(chiTransport.JSONRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(chiTransport.WideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(a.cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", a.cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(a.cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(a.cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Received shutdown signal")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(a.cfg.HTTP.ShutdownSec)*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		logger.Info("Server stopped gracefully")
		return nil
	})

	return g.Wait()
}

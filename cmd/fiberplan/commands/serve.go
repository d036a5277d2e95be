// Package commands implements the fiberplan CLI commands.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/fiberplan/internal/apperr"
	"github.com/Sumatoshi-tech/fiberplan/internal/batch"
	"github.com/Sumatoshi-tech/fiberplan/internal/config"
	"github.com/Sumatoshi-tech/fiberplan/internal/httpapi"
	"github.com/Sumatoshi-tech/fiberplan/internal/observability"
	"github.com/Sumatoshi-tech/fiberplan/internal/routing"
	"github.com/Sumatoshi-tech/fiberplan/internal/spatial"
	"github.com/Sumatoshi-tech/fiberplan/pkg/version"
)

const serviceName = "fiberplan"

// NewServeCommand creates the serve command running the HTTP service.
func NewServeCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the fiber planning HTTP service",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runServe(configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")

	return cmd
}

func runServe(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	obs, err := observability.Init(observability.Config{
		ServiceName:    serviceName,
		ServiceVersion: version.Version,
		LogLevel:       observability.ParseLevel(cfg.LogLevel),
		LogJSON:        cfg.LogJSON,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		OTLPInsecure:   cfg.OTLPInsecure,
	})
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}

	logger := obs.Logger
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	store := batch.NewPgStore(pool)

	err = store.EnsureSchema(ctx)
	if err != nil {
		return fmt.Errorf("prepare job schema: %w", err)
	}

	// Jobs interrupted by the previous shutdown can never resume.
	recovered, err := store.MarkIncompleteJobsFailed(ctx)
	if err != nil {
		return fmt.Errorf("recover incomplete jobs: %w", err)
	}

	if recovered > 0 {
		logger.Warn("recovered incomplete jobs", slog.Int64("recovered_jobs", recovered))
	}

	metrics, err := observability.NewBatchMetrics(obs.Meter)
	if err != nil {
		return fmt.Errorf("create batch metrics: %w", err)
	}

	gateway := spatial.NewGateway(pool)
	planner := routing.NewPlanner(gateway, cfg.DefaultCostPerMeter)

	cache := batch.NewCache(
		time.Duration(cfg.JobRetentionSec)*time.Second,
		cfg.MaxStoredResultsMemoryMB,
		logger,
		func(count int) {
			metrics.CacheEvictions.Add(context.Background(), int64(count))
		},
	)

	jobPool := batch.NewPool("job", cfg.ExecutorMaxWorkers, cfg.MaxActiveJobs, logger)
	chunkPool := batch.NewPool("chunk", cfg.ChunkExecutorMaxWorkers, 2*cfg.ChunkExecutorMaxWorkers, logger)

	orchestrator := batch.NewOrchestrator(
		batch.Options{
			ChunkSize:          cfg.BatchChunkSize,
			MaxActiveJobs:      cfg.MaxActiveJobs,
			ChunkTimeout:       time.Duration(cfg.ChunkTimeoutSec) * time.Second,
			ExecutorMaxWorkers: cfg.ExecutorMaxWorkers,
		},
		cache, store, buildProcessor(cfg, planner), jobPool, chunkPool,
		logger, obs.Tracer, metrics,
	)

	handlers := httpapi.NewHandlers(gateway, planner, orchestrator, logger)
	server := httpapi.NewServer(cfg, handlers, obs.Registry, obs.Tracer, logger)

	serveErr := make(chan error, 1)

	go func() {
		serveErr <- server.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err = <-serveErr:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}

		return nil
	case sig := <-stop:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
	}

	shutdownCtx := context.Background()

	shutdownErr := server.Shutdown(shutdownCtx)
	orchestrator.Close()

	obsErr := obs.Shutdown(shutdownCtx)

	joined := errors.Join(shutdownErr, obsErr)
	if joined != nil {
		return fmt.Errorf("shutdown: %w", joined)
	}

	logger.Info("shutdown complete")

	return nil
}

// buildProcessor binds the configured chunk processor: the delay-based mock
// or the real per-point route pipeline.
func buildProcessor(cfg *config.Config, planner *routing.Planner) batch.Processor {
	if cfg.ChunkProcessor == config.ProcessorRouting {
		return batch.NewRouteProcessor(
			func(ctx context.Context, lon, lat float64) error {
				_, err := planner.Route(ctx, lon, lat)

				return err
			},
			func(err error) bool {
				var appErr *apperr.Error

				return errors.As(err, &appErr)
			},
		)
	}

	return batch.NewMockProcessor(time.Duration(cfg.MockChunkDelaySec * float64(time.Second)))
}

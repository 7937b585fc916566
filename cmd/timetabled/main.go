package main

import (
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/joseph-ayodele/timetable-extractor/internal/async"
	"github.com/joseph-ayodele/timetable-extractor/internal/common"
	"github.com/joseph-ayodele/timetable-extractor/internal/ingest"
	"github.com/joseph-ayodele/timetable-extractor/internal/metrics"
	"github.com/joseph-ayodele/timetable-extractor/internal/pipeline"
	"github.com/joseph-ayodele/timetable-extractor/internal/repository"
	"github.com/joseph-ayodele/timetable-extractor/internal/server"
)

func main() {
	os.Exit(run())
}

// run returns the process exit code so deferred cleanup completes before exit:
// 2 for configuration errors, 1 for any other startup failure.
func run() int {
	cfg, err := common.LoadConfig()
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 2
	}
	logger, closeLog := common.SetupLogger(cfg.Log.File, common.ParseLevel(cfg.Log.Level))
	defer closeLog()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open job store", "error", err)
		return 1
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close job store", "error", err)
		}
	}()

	collector := metrics.NewCollector()
	stages, err := pipeline.FromConfig(ctx, cfg, store, collector, logger)
	if err != nil {
		logger.Error("failed to build pipeline", "error", err)
		return 1
	}

	queue := async.NewQueue(store, stages.Processor, logger,
		async.WithConfig(cfg.Queue),
		async.WithMetrics(collector),
	)
	if n, err := queue.Recover(ctx); err != nil {
		logger.Warn("failed to recover unfinished jobs", "recovered", n, "error", err)
	}

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		logger.Error("failed to listen on address", "addr", cfg.Server.GRPCAddr, "error", err)
		return 1
	}
	grpcServer, healthServer := server.NewGRPCServer(server.NewExtractionService(queue, collector, logger), logger)

	logger.Info("timetabled listening", "addr", cfg.Server.GRPCAddr, "workers", cfg.Queue.Workers,
		"providers", stages.Chain.Providers(), "embeddings", stages.Embedder != nil)
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC serve error", "error", err)
			stop()
		}
	}()

	if dirs := cfg.Ingest.WatchDirs; len(dirs) > 0 {
		go func() {
			err := ingest.NewIngestor(queue, logger).Run(ctx, ingest.WatchConfig{
				Roots:       dirs,
				InitialScan: cfg.Ingest.InitialScan,
				SkipHidden:  cfg.Ingest.SkipHidden,
				Debounce:    cfg.Ingest.Debounce,
			})
			if err != nil {
				logger.Error("directory watcher stopped", "error", err)
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down...")
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

	// the queue enforces its own grace period; the extra second covers the forced drain
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Queue.ShutdownGrace+time.Second)
	defer cancel()
	if err := queue.Shutdown(shutdownCtx); err != nil {
		logger.Warn("queue shutdown", "error", err)
	}
	grpcServer.GracefulStop()

	for _, op := range collector.Snapshot().Operations {
		logger.Info("metrics", "op", op.Name, "count", op.Count, "errors", op.Errors,
			"avg_ms", op.AvgTimeMs, "p95_ms", op.P95TimeMs, "max_ms", op.MaxTimeMs)
	}
	return 0
}

func openStore(ctx context.Context, cfg *common.Config, logger *slog.Logger) (repository.Store, error) {
	if cfg.Database.DSN == "" {
		logger.Info("no database configured, using in-memory job store")
		return repository.NewMemoryStore(), nil
	}
	db, err := repository.Open(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	if err := db.HealthCheck(ctx, 5*time.Second); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repository.NewSQLStore(ctx, db, logger)
}

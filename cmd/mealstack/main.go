package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mealstack/mealstack/internal/commands"
	"github.com/mealstack/mealstack/internal/eventstore"
	"github.com/mealstack/mealstack/internal/projections"
	"github.com/mealstack/mealstack/internal/queries"
	"github.com/mealstack/mealstack/internal/relay"
	"github.com/mealstack/mealstack/internal/services/web"
	"github.com/mealstack/mealstack/internal/shared/config"
	"github.com/mealstack/mealstack/internal/shared/infra/kafka"
	"github.com/mealstack/mealstack/internal/shared/infra/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	slog.Info("starting mealstack",
		"web_port", cfg.PortWeb,
		"relay_enabled", cfg.RelayEnabled,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := postgres.Migrate(cfg.DatabaseURL); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	pg, err := postgres.NewClient(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		slog.Error("failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer pg.Close()
	pool := pg.Pool()

	// Command side.
	store := eventstore.NewPostgresStore(pool, logger)
	sideTables := commands.NewPostgresSideTables(logger)
	outboxRepo := relay.NewOutboxRepo(pool, logger)

	var outboxWriter commands.OutboxWriter
	if cfg.RelayEnabled {
		outboxWriter = outboxRepo
	}
	cmds := commands.NewHandlers(pool, store, sideTables, outboxWriter, logger)

	// Projection side. The runner holds a dedicated LISTEN connection; it
	// cannot come from the pool because it stays open indefinitely.
	projListenConn, err := pgx.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to create projection LISTEN connection", "error", err)
		os.Exit(1)
	}
	defer projListenConn.Close(context.Background())

	runner := projections.NewRunner(
		pool,
		store,
		projections.NewPostgresCursorStore(pool, logger),
		projections.AllHandlers(),
		projListenConn,
		projections.RunnerConfig{
			PollInterval: cfg.ProjectionPollInterval,
			BatchSize:    cfg.ProjectionBatchSize,
		},
		logger,
	)
	go func() {
		if err := runner.Run(ctx); err != nil {
			slog.Error("projection runner error", "error", err)
		}
	}()

	// Optional integration-event relay.
	var producer *kafka.Producer
	if cfg.RelayEnabled {
		producer, err = kafka.NewProducer(cfg.KafkaBrokers, logger)
		if err != nil {
			slog.Error("failed to create Kafka producer", "error", err)
			os.Exit(1)
		}
		defer producer.Close()

		relayListenConn, err := pgx.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to create relay LISTEN connection", "error", err)
			os.Exit(1)
		}
		defer relayListenConn.Close(context.Background())

		proc := relay.NewProcessor(outboxRepo, producer, relayListenConn, relay.ProcessorConfig{
			BatchSize:    cfg.RelayBatchSize,
			MaxRetries:   cfg.RelayMaxRetries,
			PollInterval: cfg.RelayPollInterval,
		}, logger)
		go func() {
			if err := proc.Start(ctx); err != nil {
				slog.Error("relay error", "error", err)
			}
		}()
	}

	// HTTP surface.
	webSvc, err := web.Start(ctx, web.Config{Port: cfg.PortWeb}, cmds, queries.New(pool, logger), logger)
	if err != nil {
		slog.Error("failed to start web service", "error", err)
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		slog.Info("context cancelled")
	}

	slog.Info("shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := webSvc.Shutdown(shutdownCtx); err != nil {
		slog.Error("web service shutdown error", "error", err)
	}
	// Cancelling the root context stops the runner and relay between
	// delivery transactions; in-flight transactions roll back and their
	// events are redelivered on next start.
	cancel()

	slog.Info("mealstack stopped")
}

// newLogger creates a structured logger based on configuration.
func newLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

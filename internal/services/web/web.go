// Package web is the HTTP boundary. It stays thin: handlers decode
// requests, call the command layer or the read-model queries, and encode
// results. No domain decisions are made here.
package web

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mealstack/mealstack/internal/commands"
	"github.com/mealstack/mealstack/internal/queries"
)

// Config holds configuration for the web service.
type Config struct {
	Port int
}

// RunningService represents a started web service.
type RunningService struct {
	// Shutdown stops the HTTP server gracefully.
	Shutdown func(ctx context.Context) error
}

// Start starts the web HTTP server.
func Start(ctx context.Context, cfg Config, cmds *commands.Handlers, q *queries.Queries, logger *slog.Logger) (*RunningService, error) {
	logger = logger.With("service", "web")

	handler := NewHandler(cmds, q, logger)

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting web server", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("web server error", "error", err)
		}
	}()

	return &RunningService{
		Shutdown: func(shutdownCtx context.Context) error {
			logger.Info("shutting down web service")
			return server.Shutdown(shutdownCtx)
		},
	}, nil
}

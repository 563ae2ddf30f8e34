// Package main is the entry point for the idea-match API server.
//
// main stays minimal:
//  1. Load configuration (.env file, environment, defaults)
//  2. Create the logger and tracing
//  3. Build and start the server
//
// All actual logic lives in internal/.
package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/krzysztofKolodziej/idea-match/internal/config"
	"github.com/krzysztofKolodziej/idea-match/internal/server"
	"github.com/krzysztofKolodziej/idea-match/internal/telemetry"
)

func main() {
	cfg, err := config.Load(config.DefaultEnvFile)
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	if cfg.DBPath != ":memory:" {
		dbDir := filepath.Dir(cfg.DBPath)
		if err := os.MkdirAll(dbDir, 0o755); err != nil {
			logger.Error("failed to create database directory",
				slog.String("dir", dbDir),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	shutdownTracing, err := telemetry.Setup(context.Background(), cfg.ServiceName, cfg.Telemetry.Endpoint)
	if err != nil {
		logger.Warn("tracing disabled", slog.String("error", err.Error()))
	}

	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start blocks until SIGINT/SIGTERM.
	runErr := srv.Start()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdownTracing(ctx); err != nil {
		logger.Warn("flushing traces", slog.String("error", err.Error()))
	}

	if runErr != nil {
		logger.Error("server error", slog.String("error", runErr.Error()))
		os.Exit(1)
	}
}

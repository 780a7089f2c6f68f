package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"envelopes/internal/config"
	"envelopes/internal/log"
	"envelopes/internal/services"
	"envelopes/internal/storage"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := log.New(log.Config{
		Level:     slog.LevelInfo,
		Component: log.ComponentWorker,
	})
	log.SetDefault(logger)

	logger.Info("Starting recurring-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err.Error())
		os.Exit(1)
	}
	if cfg.DataBackend != "sqlite" {
		logger.Error("Recurring worker requires the sqlite backend", "backend", cfg.DataBackend)
		os.Exit(1)
	}
	loc := cfg.Location()

	if err := storage.RunMigrations(cfg.SQLiteDBPath); err != nil {
		logger.Error("Migrations failed", log.FieldError, err.Error(), "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	db, err := storage.Open(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to open database", log.FieldError, err.Error(), "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer db.Close()
	repo := storage.NewRepository(db, loc, logger.WithComponent(log.ComponentStorage))

	roller := services.NewAllocationRoller(repo, loc, logger.WithComponent(log.ComponentWorker))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())
		cancel()
	}()

	logger.Info("Rollover loop started", "interval", cfg.RolloverInterval.String())
	roller.Run(ctx, cfg.RolloverInterval)
	logger.Info("Recurring worker stopped gracefully")
}

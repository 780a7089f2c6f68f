package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"envelopes/internal/amqp"
	"envelopes/internal/analytics"
	"envelopes/internal/config"
	apphttp "envelopes/internal/http"
	"envelopes/internal/log"
	"envelopes/internal/memory"
	"envelopes/internal/services"
	"envelopes/internal/storage"
)

// dataStore is everything the server needs from a backend.
type dataStore interface {
	analytics.Loader
	apphttp.Store
	services.LedgerStore
}

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := log.New(log.Config{
		Level:     slog.LevelInfo,
		Component: log.ComponentApp,
	})
	log.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err.Error())
		os.Exit(1)
	}
	loc := cfg.Location()

	var store dataStore
	switch cfg.DataBackend {
	case "sqlite":
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
		store = storage.NewRepository(db, loc, logger.WithComponent(log.ComponentStorage))
		logger.Info("Initialized sqlite backend", "path", cfg.SQLiteDBPath)
	default:
		store = memory.NewStore(loc)
		logger.Info("Initialized memory backend")
	}

	// The broker is optional: without it, ledger writes still succeed and the
	// export worker relies on its poll cycle.
	var publisher services.SyncPublisher
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue,
			logger.WithComponent(log.ComponentAMQP))
		if err != nil {
			logger.Warn("AMQP unavailable, continuing without sync nudges", log.FieldError, err.Error())
		} else {
			defer amqpClient.Close()
			publisher = amqpClient
		}
	}

	engine := analytics.NewEngine(store, analytics.DefaultThresholds(), loc,
		logger.WithComponent(log.ComponentAnalytics))
	ledger := services.NewLedgerService(store, publisher, logger.WithComponent(log.ComponentLedger))

	srv := apphttp.NewServer(apphttp.Options{
		Addr:              ":" + cfg.Port,
		Location:          loc,
		DashboardCacheTTL: cfg.DashboardCacheTTL,
	}, engine, ledger, store, logger.WithComponent(log.ComponentHTTP))

	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err.Error())
		}
		cancel()
	}()

	logger.Info("Starting envelopes server", "port", cfg.Port, "backend", cfg.DataBackend)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", log.FieldError, err.Error(), "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Server stopped gracefully")
}

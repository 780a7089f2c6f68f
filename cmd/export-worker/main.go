package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"envelopes/internal/amqp"
	"envelopes/internal/config"
	"envelopes/internal/log"
	"envelopes/internal/services"
	"envelopes/internal/sheets"
	gsheet "envelopes/internal/sheets/google"
	memmirror "envelopes/internal/sheets/memory"
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

	logger.Info("Starting export-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err.Error())
		os.Exit(1)
	}
	if cfg.DataBackend != "sqlite" {
		logger.Error("Export worker requires the sqlite backend", "backend", cfg.DataBackend)
		os.Exit(1)
	}
	loc := cfg.Location()

	db, err := storage.Open(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to open database", log.FieldError, err.Error(), "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer db.Close()
	repo := storage.NewRepository(db, loc, logger.WithComponent(log.ComponentStorage))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		writer  sheets.LedgerWriter
		remover sheets.LedgerRemover
	)
	if cfg.GoogleSpreadsheetID != "" {
		client, err := gsheet.New(ctx, gsheet.Options{
			SpreadsheetID:   cfg.GoogleSpreadsheetID,
			SheetName:       cfg.GoogleSheetName,
			CredentialsJSON: []byte(cfg.GoogleOAuthClientJSON),
			CredentialsFile: cfg.GoogleOAuthClientFile,
		}, logger.WithComponent(log.ComponentSheets))
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", log.FieldError, err.Error())
			os.Exit(1)
		}
		writer, remover = client, client
		logger.Info("Google Sheets mirror initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		mirror := memmirror.NewMirror()
		writer, remover = mirror, mirror
		logger.Warn("No GOOGLE_SPREADSHEET_ID provided, mirroring to in-process store")
	}

	processor := services.NewExportProcessor(repo, writer, remover, services.ExportProcessorConfig{
		PollInterval: cfg.SyncInterval,
		BatchSize:    cfg.SyncBatchSize,
		MaxRetries:   services.DefaultExportProcessorConfig().MaxRetries,
	}, logger.WithComponent(log.ComponentWorker))

	if err := processor.Start(ctx); err != nil {
		logger.Error("Failed to start export processor", log.FieldError, err.Error())
		os.Exit(1)
	}

	// AMQP nudges are optional; the poll loop alone keeps the mirror correct.
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue,
			logger.WithComponent(log.ComponentAMQP))
		if err != nil {
			logger.Warn("AMQP unavailable, relying on poll cycle only", log.FieldError, err.Error())
		} else {
			defer amqpClient.Close()
			go func() {
				err := amqpClient.ConsumeLedgerSync(ctx, func(msg *amqp.LedgerSyncMessage) error {
					return processor.HandleMessage(ctx, msg)
				})
				if err != nil && ctx.Err() == nil {
					logger.Error("Consumer stopped", log.FieldError, err.Error())
				}
			}()
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("Shutdown signal received", "signal", sig.String())
	cancel()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	if err := processor.Stop(stopCtx); err != nil {
		logger.Error("Processor shutdown error", log.FieldError, err.Error())
	}
	logger.Info("Export worker stopped gracefully")
}

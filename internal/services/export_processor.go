package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"envelopes/internal/amqp"
	"envelopes/internal/core"
	"envelopes/internal/log"
	"envelopes/internal/sheets"
	"envelopes/internal/storage"
)

// ExportStore is the slice of the repository the export worker needs.
type ExportStore interface {
	PendingSync(ctx context.Context, limit int) ([]storage.PendingTransaction, error)
	GetTransaction(ctx context.Context, id string) (core.Transaction, error)
	Categories(ctx context.Context) ([]core.Category, error)
	MarkSynced(ctx context.Context, id string, version int64) error
	MarkSyncError(ctx context.Context, id string) error
}

// ExportProcessorConfig holds configuration for the export processor
type ExportProcessorConfig struct {
	// PollInterval is how often to check for pending rows (default: 30s)
	PollInterval time.Duration

	// BatchSize is the max number of rows to mirror per cycle (default: 10)
	BatchSize int

	// MaxRetries is the number of attempts before a row is marked as errored
	MaxRetries int
}

// DefaultExportProcessorConfig returns sensible defaults
func DefaultExportProcessorConfig() ExportProcessorConfig {
	return ExportProcessorConfig{
		PollInterval: 30 * time.Second,
		BatchSize:    10,
		MaxRetries:   3,
	}
}

// ExportProcessor mirrors pending ledger rows to the external sheet. It runs
// a poll loop and additionally reacts to AMQP nudges so fresh rows land in
// the sheet without waiting a full poll interval.
type ExportProcessor struct {
	store   ExportStore
	writer  sheets.LedgerWriter
	remover sheets.LedgerRemover
	config  ExportProcessorConfig
	logger  *log.Logger

	// Lifecycle management
	mu       sync.Mutex
	running  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
	attempts map[string]int
}

func NewExportProcessor(
	store ExportStore,
	writer sheets.LedgerWriter,
	remover sheets.LedgerRemover,
	config ExportProcessorConfig,
	logger *log.Logger,
) *ExportProcessor {
	if logger == nil {
		logger = log.New(log.DefaultConfig()).WithComponent(log.ComponentWorker)
	}
	return &ExportProcessor{
		store:    store,
		writer:   writer,
		remover:  remover,
		config:   config,
		logger:   logger,
		attempts: make(map[string]int),
	}
}

// Start begins the processing loop. Returns an error if already running.
func (p *ExportProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return errors.New("export processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	p.logger.InfoContext(ctx, "Export processor started",
		"poll_interval", p.config.PollInterval.String(),
		"batch_size", p.config.BatchSize)

	return nil
}

// Stop gracefully stops the processor and waits for completion.
func (p *ExportProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	close(p.stopCh)

	select {
	case <-p.doneCh:
		p.logger.InfoContext(ctx, "Export processor stopped gracefully")
	case <-ctx.Done():
		p.logger.WarnContext(ctx, "Export processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	return nil
}

// IsRunning returns whether the processor is currently running
func (p *ExportProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// HandleMessage reacts to one AMQP nudge by running a batch immediately.
// The message carries only id and version; the batch re-reads pending rows
// from the store, so stale messages are harmless.
func (p *ExportProcessor) HandleMessage(ctx context.Context, msg *amqp.LedgerSyncMessage) error {
	p.logger.DebugContext(ctx, "Sync nudge received",
		log.FieldTxID, msg.ID,
		"version", msg.Version)
	return p.ProcessBatch(ctx)
}

func (p *ExportProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	// Process immediately on startup
	if err := p.ProcessBatch(ctx); err != nil {
		p.logger.ErrorContext(ctx, "Initial export batch failed", log.FieldError, err.Error())
	}

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.ProcessBatch(ctx); err != nil {
				p.logger.ErrorContext(ctx, "Export batch failed", log.FieldError, err.Error())
			}
		}
	}
}

// ProcessBatch mirrors one batch of pending rows.
func (p *ExportProcessor) ProcessBatch(ctx context.Context) error {
	pending, err := p.store.PendingSync(ctx, p.config.BatchSize)
	if err != nil {
		return fmt.Errorf("fetch pending rows: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	categories, err := p.store.Categories(ctx)
	if err != nil {
		return fmt.Errorf("load categories: %w", err)
	}
	names := make(map[string]string, len(categories))
	for _, c := range categories {
		names[c.ID] = c.Name
	}

	p.logger.DebugContext(ctx, "Mirroring ledger batch", "count", len(pending))

	for _, row := range pending {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := p.mirrorRow(ctx, row, names); err != nil {
			p.handleFailure(ctx, row, err)
		} else {
			p.handleSuccess(ctx, row)
		}
	}
	return nil
}

func (p *ExportProcessor) mirrorRow(ctx context.Context, row storage.PendingTransaction, names map[string]string) error {
	// A row no longer readable was soft-deleted after being mirrored:
	// remove the sheet line instead of appending.
	_, err := p.store.GetTransaction(ctx, row.Transaction.ID)
	if IsNotFound(err) {
		if p.remover == nil {
			p.logger.WarnContext(ctx, "No remover configured, skipping removal",
				log.FieldTxID, row.Transaction.ID)
			return nil
		}
		return p.remover.Remove(ctx, row.Transaction.ID)
	}
	if err != nil {
		return fmt.Errorf("get transaction %s: %w", row.Transaction.ID, err)
	}

	name := names[row.Transaction.CategoryID]
	if name == "" {
		name = core.Uncategorized().Name
	}
	ref, err := p.writer.Append(ctx, row.Transaction, name)
	if err != nil {
		return fmt.Errorf("append to sheet: %w", err)
	}

	p.logger.InfoContext(ctx, "Mirrored ledger row",
		log.FieldTxID, row.Transaction.ID,
		log.FieldSheetsRef, ref)
	return nil
}

func (p *ExportProcessor) handleSuccess(ctx context.Context, row storage.PendingTransaction) {
	p.mu.Lock()
	delete(p.attempts, row.Transaction.ID)
	p.mu.Unlock()

	if err := p.store.MarkSynced(ctx, row.Transaction.ID, row.Version); err != nil {
		p.logger.ErrorContext(ctx, "Failed to mark row synced",
			log.FieldTxID, row.Transaction.ID,
			log.FieldError, err.Error())
	}
}

func (p *ExportProcessor) handleFailure(ctx context.Context, row storage.PendingTransaction, mirrorErr error) {
	p.mu.Lock()
	p.attempts[row.Transaction.ID]++
	attempt := p.attempts[row.Transaction.ID]
	p.mu.Unlock()

	p.logger.WarnContext(ctx, "Mirror attempt failed",
		log.FieldTxID, row.Transaction.ID,
		"attempt", attempt,
		log.FieldError, mirrorErr.Error())

	if attempt < p.config.MaxRetries {
		// Row stays pending; the next cycle retries it.
		return
	}

	p.mu.Lock()
	delete(p.attempts, row.Transaction.ID)
	p.mu.Unlock()

	if err := p.store.MarkSyncError(ctx, row.Transaction.ID); err != nil {
		p.logger.ErrorContext(ctx, "Failed to mark row errored",
			log.FieldTxID, row.Transaction.ID,
			log.FieldError, err.Error())
	}
	p.logger.ErrorContext(ctx, "Row failed permanently after max retries",
		log.FieldTxID, row.Transaction.ID,
		"attempts", attempt)
}

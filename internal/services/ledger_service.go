// Package services orchestrates writes across storage, the message broker
// and the sheets mirror.
package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"envelopes/internal/core"
	"envelopes/internal/log"
	"envelopes/internal/storage"
)

// LedgerStore is the slice of the repository the ledger service writes to.
type LedgerStore interface {
	CreateTransaction(ctx context.Context, t core.Transaction) error
	DeleteTransaction(ctx context.Context, id string) error
	GetTransaction(ctx context.Context, id string) (core.Transaction, error)
	ListTransactions(ctx context.Context, month core.MonthKey, search string) ([]core.Transaction, error)
}

// SyncPublisher publishes sync nudges for the export worker. The broker is
// optional: a nil publisher means rows wait for the worker's poll cycle.
type SyncPublisher interface {
	PublishLedgerSync(ctx context.Context, id string, version int64) error
}

// LedgerService saves ledger rows locally first, then nudges the export
// worker. A broker outage never fails the user-facing write.
type LedgerService struct {
	store     LedgerStore
	publisher SyncPublisher
	logger    *log.Logger
}

func NewLedgerService(store LedgerStore, publisher SyncPublisher, logger *log.Logger) *LedgerService {
	if logger == nil {
		logger = log.New(log.DefaultConfig()).WithComponent(log.ComponentLedger)
	}
	return &LedgerService{store: store, publisher: publisher, logger: logger}
}

// CreateTransaction assigns an id, saves the row and publishes a sync
// message. Returns the stored transaction.
func (s *LedgerService) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	if t.ID == "" {
		t.ID = newTransactionID()
	}
	if err := s.store.CreateTransaction(ctx, t); err != nil {
		return core.Transaction{}, fmt.Errorf("save transaction: %w", err)
	}

	s.publishSync(ctx, t.ID, 1)
	return t, nil
}

// DeleteTransaction soft-deletes a row and publishes a sync message so the
// mirror removes it.
func (s *LedgerService) DeleteTransaction(ctx context.Context, id string) error {
	if err := s.store.DeleteTransaction(ctx, id); err != nil {
		return err
	}
	s.publishSync(ctx, id, 2)
	return nil
}

func (s *LedgerService) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	return s.store.GetTransaction(ctx, id)
}

func (s *LedgerService) ListTransactions(ctx context.Context, month core.MonthKey, search string) ([]core.Transaction, error) {
	return s.store.ListTransactions(ctx, month, search)
}

func (s *LedgerService) publishSync(ctx context.Context, id string, version int64) {
	if s.publisher == nil {
		s.logger.DebugContext(ctx, "No publisher configured, relying on poll cycle",
			log.FieldTxID, id)
		return
	}
	if err := s.publisher.PublishLedgerSync(ctx, id, version); err != nil {
		// The row stays pending; the export worker's poll loop picks it up.
		s.logger.ErrorContext(ctx, "Failed to publish sync message",
			log.FieldTxID, id,
			log.FieldError, err.Error())
	}
}

// IsNotFound reports whether err means the requested row does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, storage.ErrNotFound)
}

func newTransactionID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "txn_00000000"
	}
	return "txn_" + hex.EncodeToString(b)
}

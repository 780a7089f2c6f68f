// Package memory is an in-process ledger mirror used in development and in
// the export worker tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"envelopes/internal/core"
	ports "envelopes/internal/sheets"
)

type Mirror struct {
	mu   sync.Mutex
	rows map[string]Row // keyed by transaction id
	next int
}

// Row is one mirrored ledger line.
type Row struct {
	Ref          string
	Transaction  core.Transaction
	CategoryName string
}

var (
	_ ports.LedgerWriter  = (*Mirror)(nil)
	_ ports.LedgerRemover = (*Mirror)(nil)
)

func NewMirror() *Mirror {
	return &Mirror{rows: make(map[string]Row)}
}

func (m *Mirror) Append(ctx context.Context, t core.Transaction, categoryName string) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	ref := fmt.Sprintf("Ledger!A%d:G%d", m.next, m.next)
	m.rows[t.ID] = Row{Ref: ref, Transaction: t, CategoryName: categoryName}
	return ref, nil
}

func (m *Mirror) Remove(ctx context.Context, transactionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, transactionID)
	return nil
}

// Rows returns a copy of the mirrored rows, keyed by transaction id.
func (m *Mirror) Rows() map[string]Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]Row, len(m.rows))
	for id, r := range m.rows {
		out[id] = r
	}
	return out
}

// Package memory is an in-process store with the same surface as the SQLite
// repository. It backs the memory data backend used for local development
// and the handler tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"envelopes/internal/core"
	"envelopes/internal/storage"
)

// Store keeps everything in maps guarded by one mutex. Reads return copies,
// never internal slices.
type Store struct {
	mu          sync.RWMutex
	loc         *time.Location
	categories  map[string]core.Category
	budgets     map[core.MonthKey]core.Budget
	txs         map[string]core.Transaction
	deleted     map[string]bool
	syncStatus  map[string]storage.SyncStatus
	syncVersion map[string]int64
	order       []string // transaction ids in insertion order
}

func NewStore(loc *time.Location) *Store {
	if loc == nil {
		loc = time.Local
	}
	return &Store{
		loc:         loc,
		categories:  make(map[string]core.Category),
		budgets:     make(map[core.MonthKey]core.Budget),
		txs:         make(map[string]core.Transaction),
		deleted:     make(map[string]bool),
		syncStatus:  make(map[string]storage.SyncStatus),
		syncVersion: make(map[string]int64),
	}
}

func (s *Store) BudgetMonthBounds(ctx context.Context) (core.MonthKey, core.MonthKey, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var earliest, latest core.MonthKey
	for m := range s.budgets {
		if earliest == "" || m.Before(earliest) {
			earliest = m
		}
		if latest == "" || m.After(latest) {
			latest = m
		}
	}
	return earliest, latest, earliest != "", nil
}

func (s *Store) TransactionBounds(ctx context.Context) (time.Time, time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var earliest, latest time.Time
	for id, t := range s.txs {
		if s.deleted[id] {
			continue
		}
		if earliest.IsZero() || t.OccurredOn.Before(earliest) {
			earliest = t.OccurredOn
		}
		if latest.IsZero() || t.OccurredOn.After(latest) {
			latest = t.OccurredOn
		}
	}
	return earliest, latest, !earliest.IsZero(), nil
}

func (s *Store) Categories(ctx context.Context) ([]core.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Category, 0, len(s.categories))
	for _, c := range s.categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Section != out[j].Section {
			return out[i].Section < out[j].Section
		}
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) CreateCategory(ctx context.Context, c core.Category) error {
	if err := c.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.categories[c.ID]; exists {
		return fmt.Errorf("category %s already exists", c.ID)
	}
	s.categories[c.ID] = c
	return nil
}

func (s *Store) BudgetsInRange(ctx context.Context, from, to core.MonthKey) ([]core.Budget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Budget
	for m, b := range s.budgets {
		if m.Before(from) || m.After(to) {
			continue
		}
		out = append(out, copyBudget(b))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month.Before(out[j].Month) })
	return out, nil
}

func (s *Store) GetBudget(ctx context.Context, month core.MonthKey) (core.Budget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.budgets[month]
	if !ok {
		return core.Budget{}, fmt.Errorf("budget %s: %w", month, storage.ErrNotFound)
	}
	return copyBudget(b), nil
}

func (s *Store) SaveBudget(ctx context.Context, b core.Budget) error {
	if err := b.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.budgets[b.Month] = copyBudget(b)
	return nil
}

func (s *Store) TransactionsInRange(ctx context.Context, from, to time.Time) ([]core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Transaction
	for _, id := range s.order {
		if s.deleted[id] {
			continue
		}
		t := s.txs[id]
		if t.OccurredOn.Before(from) || !t.OccurredOn.Before(to) {
			continue
		}
		out = append(out, copyTransaction(t))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].OccurredOn.Equal(out[j].OccurredOn) {
			return out[i].OccurredOn.Before(out[j].OccurredOn)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) ListTransactions(ctx context.Context, month core.MonthKey, search string) ([]core.Transaction, error) {
	all, err := s.TransactionsInRange(ctx, month.Start(s.loc), month.Next().Start(s.loc))
	if err != nil {
		return nil, err
	}
	search = strings.TrimSpace(strings.ToLower(search))
	var out []core.Transaction
	for _, t := range all {
		if search != "" &&
			!strings.Contains(strings.ToLower(t.Merchant), search) &&
			!strings.Contains(strings.ToLower(t.Description), search) {
			continue
		}
		out = append(out, t)
	}
	// Newest first, matching the SQLite listing order.
	sort.Slice(out, func(i, j int) bool {
		if !out[i].OccurredOn.Equal(out[j].OccurredOn) {
			return out[i].OccurredOn.After(out[j].OccurredOn)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *Store) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.txs[id]
	if !ok || s.deleted[id] {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", id, storage.ErrNotFound)
	}
	return copyTransaction(t), nil
}

func (s *Store) CreateTransaction(ctx context.Context, t core.Transaction) error {
	if err := t.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.txs[t.ID]; exists {
		return fmt.Errorf("transaction %s already exists", t.ID)
	}
	s.txs[t.ID] = copyTransaction(t)
	s.order = append(s.order, t.ID)
	s.syncStatus[t.ID] = storage.SyncPending
	s.syncVersion[t.ID] = 1
	return nil
}

func (s *Store) DeleteTransaction(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.txs[id]; !ok || s.deleted[id] {
		return fmt.Errorf("transaction %s: %w", id, storage.ErrNotFound)
	}
	s.deleted[id] = true
	s.syncStatus[id] = storage.SyncPending
	s.syncVersion[id]++
	return nil
}

func (s *Store) PendingSync(ctx context.Context, limit int) ([]storage.PendingTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []storage.PendingTransaction
	for _, id := range s.order {
		if s.syncStatus[id] != storage.SyncPending {
			continue
		}
		out = append(out, storage.PendingTransaction{
			Transaction: copyTransaction(s.txs[id]),
			Version:     s.syncVersion[id],
		})
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) MarkSynced(ctx context.Context, id string, version int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.syncVersion[id] == version {
		s.syncStatus[id] = storage.SyncSynced
	}
	return nil
}

func (s *Store) MarkSyncError(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.txs[id]; ok {
		s.syncStatus[id] = storage.SyncError
	}
	return nil
}

func copyBudget(b core.Budget) core.Budget {
	out := core.Budget{Month: b.Month}
	out.Allocations = append([]core.Allocation(nil), b.Allocations...)
	out.Incomes = append([]core.Income(nil), b.Incomes...)
	return out
}

func copyTransaction(t core.Transaction) core.Transaction {
	out := t
	out.Splits = append([]core.Split(nil), t.Splits...)
	return out
}

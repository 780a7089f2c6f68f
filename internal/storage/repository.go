// Package storage persists budgets, categories and the transaction ledger in
// SQLite. Money is stored as integer cents; dates as YYYY-MM-DD text so that
// range scans stay lexicographic.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"envelopes/internal/core"
	"envelopes/internal/log"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

const dateLayout = "2006-01-02"

// SyncStatus tracks whether a ledger row has been mirrored to the external
// sheet yet.
type SyncStatus string

const (
	SyncPending SyncStatus = "pending"
	SyncSynced  SyncStatus = "synced"
	SyncError   SyncStatus = "error"
)

// PendingTransaction is a ledger row awaiting mirroring, with the version
// counter used to detect concurrent edits between publish and confirm.
type PendingTransaction struct {
	Transaction core.Transaction
	Version     int64
}

// Open opens the SQLite database at path with the pragmas the application
// depends on (foreign keys, WAL, a busy timeout for the worker processes).
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// Repository is the SQLite-backed store. It implements the read interface of
// the analytics engine plus the mutations used by the HTTP and worker layers.
type Repository struct {
	db     *sql.DB
	loc    *time.Location
	logger *log.Logger
}

// NewRepository wraps an open database. A nil location means time.Local.
func NewRepository(db *sql.DB, loc *time.Location, logger *log.Logger) *Repository {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = log.New(log.DefaultConfig()).WithComponent(log.ComponentStorage)
	}
	return &Repository{db: db, loc: loc, logger: logger}
}

// BudgetMonthBounds returns the earliest and latest budget months on record.
func (r *Repository) BudgetMonthBounds(ctx context.Context) (core.MonthKey, core.MonthKey, bool, error) {
	var earliest, latest sql.NullString
	err := r.db.QueryRowContext(ctx, `SELECT MIN(month), MAX(month) FROM budgets`).Scan(&earliest, &latest)
	if err != nil {
		return "", "", false, fmt.Errorf("query budget bounds: %w", err)
	}
	if !earliest.Valid || !latest.Valid {
		return "", "", false, nil
	}
	return core.MonthKey(earliest.String), core.MonthKey(latest.String), true, nil
}

// TransactionBounds returns the earliest and latest ledger dates, ignoring
// soft-deleted rows.
func (r *Repository) TransactionBounds(ctx context.Context) (time.Time, time.Time, bool, error) {
	var earliest, latest sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT MIN(occurred_on), MAX(occurred_on) FROM transactions WHERE deleted_at IS NULL`).
		Scan(&earliest, &latest)
	if err != nil {
		return time.Time{}, time.Time{}, false, fmt.Errorf("query transaction bounds: %w", err)
	}
	if !earliest.Valid || !latest.Valid {
		return time.Time{}, time.Time{}, false, nil
	}
	from, err := time.ParseInLocation(dateLayout, earliest.String, r.loc)
	if err != nil {
		return time.Time{}, time.Time{}, false, fmt.Errorf("parse earliest date %q: %w", earliest.String, err)
	}
	to, err := time.ParseInLocation(dateLayout, latest.String, r.loc)
	if err != nil {
		return time.Time{}, time.Time{}, false, fmt.Errorf("parse latest date %q: %w", latest.String, err)
	}
	return from, to, true, nil
}

// Categories returns all categories ordered by section then name.
func (r *Repository) Categories(ctx context.Context) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, emoji, section FROM categories ORDER BY section, name, id`)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()

	var out []core.Category
	for rows.Next() {
		var c core.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Emoji, &c.Section); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CreateCategory inserts a category.
func (r *Repository) CreateCategory(ctx context.Context, c core.Category) error {
	if err := c.Validate(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO categories (id, name, emoji, section) VALUES (?, ?, ?, ?)`,
		c.ID, c.Name, c.Emoji, string(c.Section))
	if err != nil {
		return fmt.Errorf("insert category %s: %w", c.ID, err)
	}
	return nil
}

// BudgetsInRange returns every budget with month in [from, to], allocations
// and incomes attached.
func (r *Repository) BudgetsInRange(ctx context.Context, from, to core.MonthKey) ([]core.Budget, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT month FROM budgets WHERE month >= ? AND month <= ? ORDER BY month`,
		string(from), string(to))
	if err != nil {
		return nil, fmt.Errorf("query budgets: %w", err)
	}
	defer rows.Close()

	var months []core.MonthKey
	index := make(map[core.MonthKey]int)
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, fmt.Errorf("scan budget month: %w", err)
		}
		index[core.MonthKey(m)] = len(months)
		months = append(months, core.MonthKey(m))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(months) == 0 {
		return nil, nil
	}

	budgets := make([]core.Budget, len(months))
	for i, m := range months {
		budgets[i] = core.Budget{Month: m}
	}

	allocRows, err := r.db.QueryContext(ctx,
		`SELECT budget_month, category_id, section, planned_cents, spent_cents, carry_forward, repeat_cadence
		 FROM allocations WHERE budget_month >= ? AND budget_month <= ?
		 ORDER BY budget_month, category_id`,
		string(from), string(to))
	if err != nil {
		return nil, fmt.Errorf("query allocations: %w", err)
	}
	defer allocRows.Close()
	for allocRows.Next() {
		var (
			month   string
			a       core.Allocation
			carry   int64
			cadence string
		)
		if err := allocRows.Scan(&month, &a.CategoryID, &a.Section, &a.Planned.Cents, &a.Spent.Cents, &carry, &cadence); err != nil {
			return nil, fmt.Errorf("scan allocation: %w", err)
		}
		a.CarryForward = carry != 0
		a.RepeatCadence = core.Cadence(cadence)
		if i, ok := index[core.MonthKey(month)]; ok {
			budgets[i].Allocations = append(budgets[i].Allocations, a)
		}
	}
	if err := allocRows.Err(); err != nil {
		return nil, err
	}

	incomeRows, err := r.db.QueryContext(ctx,
		`SELECT budget_month, source, amount_cents
		 FROM incomes WHERE budget_month >= ? AND budget_month <= ?
		 ORDER BY budget_month, id`,
		string(from), string(to))
	if err != nil {
		return nil, fmt.Errorf("query incomes: %w", err)
	}
	defer incomeRows.Close()
	for incomeRows.Next() {
		var (
			month string
			in    core.Income
		)
		if err := incomeRows.Scan(&month, &in.Source, &in.Amount.Cents); err != nil {
			return nil, fmt.Errorf("scan income: %w", err)
		}
		if i, ok := index[core.MonthKey(month)]; ok {
			budgets[i].Incomes = append(budgets[i].Incomes, in)
		}
	}
	return budgets, incomeRows.Err()
}

// GetBudget returns the budget for one month, or ErrNotFound.
func (r *Repository) GetBudget(ctx context.Context, month core.MonthKey) (core.Budget, error) {
	budgets, err := r.BudgetsInRange(ctx, month, month)
	if err != nil {
		return core.Budget{}, err
	}
	if len(budgets) == 0 {
		return core.Budget{}, fmt.Errorf("budget %s: %w", month, ErrNotFound)
	}
	return budgets[0], nil
}

// SaveBudget writes the whole budget for a month, replacing any previous
// allocations and incomes in one transaction.
func (r *Repository) SaveBudget(ctx context.Context, b core.Budget) error {
	if err := b.Validate(); err != nil {
		return err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO budgets (month) VALUES (?) ON CONFLICT (month) DO NOTHING`,
		string(b.Month)); err != nil {
		return fmt.Errorf("upsert budget %s: %w", b.Month, err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM allocations WHERE budget_month = ?`, string(b.Month)); err != nil {
		return fmt.Errorf("clear allocations: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM incomes WHERE budget_month = ?`, string(b.Month)); err != nil {
		return fmt.Errorf("clear incomes: %w", err)
	}

	for _, a := range b.Allocations {
		cadence := a.RepeatCadence
		if cadence == "" {
			cadence = core.CadenceNone
		}
		carry := 0
		if a.CarryForward {
			carry = 1
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO allocations (budget_month, category_id, section, planned_cents, spent_cents, carry_forward, repeat_cadence)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			string(b.Month), a.CategoryID, string(a.Section), a.Planned.Cents, a.Spent.Cents, carry, string(cadence)); err != nil {
			return fmt.Errorf("insert allocation %s/%s: %w", b.Month, a.CategoryID, err)
		}
	}
	for _, in := range b.Incomes {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO incomes (budget_month, source, amount_cents) VALUES (?, ?, ?)`,
			string(b.Month), in.Source, in.Amount.Cents); err != nil {
			return fmt.Errorf("insert income %s: %w", b.Month, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit budget %s: %w", b.Month, err)
	}
	return nil
}

// TransactionsInRange returns ledger rows with occurredOn in [from, to),
// splits attached, excluding soft-deleted rows.
func (r *Repository) TransactionsInRange(ctx context.Context, from, to time.Time) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, occurred_on, amount_cents, type, merchant, description, category_id
		 FROM transactions
		 WHERE deleted_at IS NULL AND occurred_on >= ? AND occurred_on < ?
		 ORDER BY occurred_on, id`,
		from.In(r.loc).Format(dateLayout), to.In(r.loc).Format(dateLayout))
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var (
		out   []core.Transaction
		index = make(map[string]int)
	)
	for rows.Next() {
		t, err := r.scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		index[t.ID] = len(out)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	if err := r.attachSplits(ctx, out, index); err != nil {
		return nil, err
	}
	return out, nil
}

// ListTransactions returns the rows of one calendar month, newest first,
// optionally filtered by a case-insensitive substring of merchant or
// description.
func (r *Repository) ListTransactions(ctx context.Context, month core.MonthKey, search string) ([]core.Transaction, error) {
	query := `SELECT id, occurred_on, amount_cents, type, merchant, description, category_id
		 FROM transactions
		 WHERE deleted_at IS NULL AND occurred_on >= ? AND occurred_on < ?`
	args := []any{
		month.Start(r.loc).Format(dateLayout),
		month.Next().Start(r.loc).Format(dateLayout),
	}
	if search = strings.TrimSpace(search); search != "" {
		query += ` AND (merchant LIKE ? COLLATE NOCASE OR description LIKE ? COLLATE NOCASE)`
		pattern := "%" + search + "%"
		args = append(args, pattern, pattern)
	}
	query += ` ORDER BY occurred_on DESC, id DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var (
		out   []core.Transaction
		index = make(map[string]int)
	)
	for rows.Next() {
		t, err := r.scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		index[t.ID] = len(out)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	if err := r.attachSplits(ctx, out, index); err != nil {
		return nil, err
	}
	return out, nil
}

// GetTransaction returns one ledger row with splits, or ErrNotFound.
func (r *Repository) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, occurred_on, amount_cents, type, merchant, description, category_id
		 FROM transactions WHERE id = ? AND deleted_at IS NULL`, id)
	t, err := r.scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return core.Transaction{}, err
	}
	txs := []core.Transaction{t}
	if err := r.attachSplits(ctx, txs, map[string]int{t.ID: 0}); err != nil {
		return core.Transaction{}, err
	}
	return txs[0], nil
}

// CreateTransaction inserts a ledger row with its splits. The row starts in
// sync status pending so the export worker picks it up.
func (r *Repository) CreateTransaction(ctx context.Context, t core.Transaction) error {
	if err := t.Validate(); err != nil {
		return err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO transactions (id, occurred_on, amount_cents, type, merchant, description, category_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.OccurredOn.In(r.loc).Format(dateLayout), t.Amount.Cents,
		string(t.Type), t.Merchant, t.Description, nullableString(t.CategoryID)); err != nil {
		return fmt.Errorf("insert transaction %s: %w", t.ID, err)
	}
	for _, s := range t.Splits {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO splits (transaction_id, category_id, amount_cents) VALUES (?, ?, ?)`,
			t.ID, nullableString(s.CategoryID), s.Amount.Cents); err != nil {
			return fmt.Errorf("insert split for %s: %w", t.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction %s: %w", t.ID, err)
	}
	return nil
}

// DeleteTransaction soft-deletes a ledger row and bumps its sync version so
// the mirror learns about the removal.
func (r *Repository) DeleteTransaction(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE transactions
		 SET deleted_at = CURRENT_TIMESTAMP, sync_status = 'pending', sync_version = sync_version + 1
		 WHERE id = ? AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("delete transaction %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("transaction %s: %w", id, ErrNotFound)
	}
	return nil
}

// PendingSync returns up to limit ledger rows waiting to be mirrored,
// oldest first. Soft-deleted rows are included: the mirror needs them to
// remove the corresponding sheet lines.
func (r *Repository) PendingSync(ctx context.Context, limit int) ([]PendingTransaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, occurred_on, amount_cents, type, merchant, description, category_id, sync_version
		 FROM transactions WHERE sync_status = 'pending'
		 ORDER BY created_at, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending sync: %w", err)
	}
	defer rows.Close()

	var out []PendingTransaction
	for rows.Next() {
		var (
			t          core.Transaction
			occurredOn string
			categoryID sql.NullString
			version    int64
		)
		if err := rows.Scan(&t.ID, &occurredOn, &t.Amount.Cents, &t.Type,
			&t.Merchant, &t.Description, &categoryID, &version); err != nil {
			return nil, fmt.Errorf("scan pending transaction: %w", err)
		}
		t.OccurredOn, err = time.ParseInLocation(dateLayout, occurredOn, r.loc)
		if err != nil {
			return nil, fmt.Errorf("parse date %q: %w", occurredOn, err)
		}
		t.CategoryID = categoryID.String
		out = append(out, PendingTransaction{Transaction: t, Version: version})
	}
	return out, rows.Err()
}

// MarkSynced records a successful mirror for the given version. A row edited
// since publish keeps status pending and is picked up again.
func (r *Repository) MarkSynced(ctx context.Context, id string, version int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET sync_status = 'synced' WHERE id = ? AND sync_version = ?`,
		id, version)
	if err != nil {
		return fmt.Errorf("mark synced %s: %w", id, err)
	}
	return nil
}

// MarkSyncError flags a row whose mirror attempt failed permanently.
func (r *Repository) MarkSyncError(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET sync_status = 'error' WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark sync error %s: %w", id, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *Repository) scanTransaction(row rowScanner) (core.Transaction, error) {
	var (
		t          core.Transaction
		occurredOn string
		categoryID sql.NullString
	)
	if err := row.Scan(&t.ID, &occurredOn, &t.Amount.Cents, &t.Type,
		&t.Merchant, &t.Description, &categoryID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Transaction{}, err
		}
		return core.Transaction{}, fmt.Errorf("scan transaction: %w", err)
	}
	var err error
	t.OccurredOn, err = time.ParseInLocation(dateLayout, occurredOn, r.loc)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("parse date %q: %w", occurredOn, err)
	}
	t.CategoryID = categoryID.String
	return t, nil
}

func (r *Repository) attachSplits(ctx context.Context, txs []core.Transaction, index map[string]int) error {
	ids := make([]any, 0, len(index))
	placeholders := make([]string, 0, len(index))
	for id := range index {
		ids = append(ids, id)
		placeholders = append(placeholders, "?")
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT transaction_id, category_id, amount_cents FROM splits
		 WHERE transaction_id IN (`+strings.Join(placeholders, ",")+`) ORDER BY id`,
		ids...)
	if err != nil {
		return fmt.Errorf("query splits: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			txID       string
			categoryID sql.NullString
			s          core.Split
		)
		if err := rows.Scan(&txID, &categoryID, &s.Amount.Cents); err != nil {
			return fmt.Errorf("scan split: %w", err)
		}
		s.CategoryID = categoryID.String
		if i, ok := index[txID]; ok {
			txs[i].Splits = append(txs[i].Splits, s)
		}
	}
	return rows.Err()
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

package core

import (
	"errors"
	"strings"
	"time"
)

const (
	SectionExpenses  Section = "expenses"
	SectionRecurring Section = "recurring"
	SectionSavings   Section = "savings"
	SectionDebt      Section = "debt"
)

const (
	TypeExpense TransactionType = "EXPENSE"
	TypeIncome  TransactionType = "INCOME"
)

const (
	CadenceNone    Cadence = "none"
	CadenceMonthly Cadence = "monthly"
)

// UncategorizedID is the sentinel category id used whenever a transaction or
// split references no category (or one that no longer exists).
const UncategorizedID = "uncategorized"

type (
	Section         string
	TransactionType string
	Cadence         string

	Money struct {
		Cents int64
	}

	Category struct {
		ID      string
		Name    string
		Emoji   string
		Section Section
	}

	// Allocation is one envelope inside a monthly budget: the planned amount
	// for a category plus the spent amount tracked on the budget itself.
	Allocation struct {
		CategoryID    string
		Section       Section
		Planned       Money
		Spent         Money
		CarryForward  bool
		RepeatCadence Cadence
	}

	Income struct {
		Source string
		Amount Money
	}

	Budget struct {
		Month       MonthKey
		Allocations []Allocation
		Incomes     []Income
	}

	Split struct {
		CategoryID string
		Amount     Money
	}

	Transaction struct {
		ID          string
		OccurredOn  time.Time
		Amount      Money
		Type        TransactionType
		Merchant    string
		Description string
		CategoryID  string
		Splits      []Split
	}
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidSection   = errors.New("invalid section")
	ErrInvalidType      = errors.New("invalid transaction type")
	ErrInvalidDate      = errors.New("invalid date")
	ErrEmptyCategory    = errors.New("empty category name")
	ErrEmptyDescription = errors.New("empty description")
)

// Uncategorized returns the well-known fallback category record. It is built
// fresh on each call so callers can never mutate shared state.
func Uncategorized() Category {
	return Category{
		ID:      UncategorizedID,
		Name:    "Uncategorized",
		Emoji:   "❓",
		Section: SectionExpenses,
	}
}

func (s Section) IsValid() bool {
	switch s {
	case SectionExpenses, SectionRecurring, SectionSavings, SectionDebt:
		return true
	default:
		return false
	}
}

func (t TransactionType) IsValid() bool {
	return t == TypeExpense || t == TypeIncome
}

func (c Cadence) IsValid() bool {
	return c == CadenceNone || c == CadenceMonthly
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyCategory
	}
	if !c.Section.IsValid() {
		return ErrInvalidSection
	}
	return nil
}

func (a Allocation) Validate() error {
	if a.CategoryID == "" {
		return ErrEmptyCategory
	}
	if !a.Section.IsValid() {
		return ErrInvalidSection
	}
	if a.Planned.Cents < 0 || a.Spent.Cents < 0 {
		return ErrInvalidAmount
	}
	if a.RepeatCadence != "" && !a.RepeatCadence.IsValid() {
		return errors.New("invalid repeat cadence")
	}
	return nil
}

func (b Budget) Validate() error {
	if err := b.Month.Validate(); err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(b.Allocations))
	for _, a := range b.Allocations {
		if err := a.Validate(); err != nil {
			return err
		}
		// One allocation per category per month.
		if _, dup := seen[a.CategoryID]; dup {
			return errors.New("duplicate allocation for category " + a.CategoryID)
		}
		seen[a.CategoryID] = struct{}{}
	}
	for _, in := range b.Incomes {
		if in.Amount.Cents < 0 {
			return ErrInvalidAmount
		}
	}
	return nil
}

func (t Transaction) Validate() error {
	if t.OccurredOn.IsZero() {
		return ErrInvalidDate
	}
	if !t.Type.IsValid() {
		return ErrInvalidType
	}
	if t.Amount.Cents <= 0 {
		return ErrInvalidAmount
	}
	desc := strings.TrimSpace(t.Description)
	if desc == "" && strings.TrimSpace(t.Merchant) == "" {
		return ErrEmptyDescription
	}
	if len(desc) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	var splitTotal int64
	for _, s := range t.Splits {
		if s.Amount.Cents <= 0 {
			return ErrInvalidAmount
		}
		splitTotal += s.Amount.Cents
	}
	if len(t.Splits) > 0 && splitTotal > t.Amount.Cents {
		return errors.New("split amounts exceed transaction amount")
	}
	return nil
}

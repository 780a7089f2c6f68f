package services

import (
	"context"
	"fmt"
	"time"

	"envelopes/internal/core"
	"envelopes/internal/log"
)

// RolloverStore is the slice of the repository the allocation roller needs.
type RolloverStore interface {
	GetBudget(ctx context.Context, month core.MonthKey) (core.Budget, error)
	SaveBudget(ctx context.Context, b core.Budget) error
}

// AllocationRoller seeds each new month's budget from the previous one:
// allocations marked with a monthly cadence repeat, and carry-forward
// envelopes add their unspent remainder to the new month's planned amount.
type AllocationRoller struct {
	store  RolloverStore
	loc    *time.Location
	logger *log.Logger
}

func NewAllocationRoller(store RolloverStore, loc *time.Location, logger *log.Logger) *AllocationRoller {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = log.New(log.DefaultConfig()).WithComponent(log.ComponentWorker)
	}
	return &AllocationRoller{store: store, loc: loc, logger: logger}
}

// Run processes rollovers on every tick until the context is cancelled.
func (r *AllocationRoller) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if _, err := r.EnsureMonth(ctx, core.MonthKeyOf(time.Now().In(r.loc))); err != nil {
		r.logger.ErrorContext(ctx, "Initial rollover failed", log.FieldError, err.Error())
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			month := core.MonthKeyOf(time.Now().In(r.loc))
			if _, err := r.EnsureMonth(ctx, month); err != nil {
				r.logger.ErrorContext(ctx, "Rollover failed",
					log.FieldMonth, string(month),
					log.FieldError, err.Error())
			}
		}
	}
}

// EnsureMonth makes sure the given month carries every repeating allocation
// from the previous month. Returns the number of allocations added. Existing
// allocations are never overwritten: a user edit beats the template.
func (r *AllocationRoller) EnsureMonth(ctx context.Context, month core.MonthKey) (int, error) {
	prev, err := r.store.GetBudget(ctx, month.Prev())
	if IsNotFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load previous budget: %w", err)
	}

	current, err := r.store.GetBudget(ctx, month)
	if IsNotFound(err) {
		current = core.Budget{Month: month}
	} else if err != nil {
		return 0, fmt.Errorf("load current budget: %w", err)
	}

	existing := make(map[string]struct{}, len(current.Allocations))
	for _, a := range current.Allocations {
		existing[a.CategoryID] = struct{}{}
	}

	added := 0
	for _, a := range prev.Allocations {
		if a.RepeatCadence != core.CadenceMonthly {
			continue
		}
		if _, ok := existing[a.CategoryID]; ok {
			continue
		}

		next := core.Allocation{
			CategoryID:    a.CategoryID,
			Section:       a.Section,
			Planned:       a.Planned,
			CarryForward:  a.CarryForward,
			RepeatCadence: a.RepeatCadence,
		}
		if a.CarryForward {
			if leftover := a.Planned.Cents - a.Spent.Cents; leftover > 0 {
				next.Planned.Cents += leftover
			}
		}
		current.Allocations = append(current.Allocations, next)
		added++

		r.logger.InfoContext(ctx, "Rolled allocation forward",
			log.FieldMonth, string(month),
			log.FieldCategory, a.CategoryID,
			log.FieldAmountCents, next.Planned.Cents)
	}

	if added == 0 {
		return 0, nil
	}
	if err := r.store.SaveBudget(ctx, current); err != nil {
		return 0, fmt.Errorf("save budget %s: %w", month, err)
	}

	r.logger.InfoContext(ctx, "Rollover complete",
		log.FieldMonth, string(month),
		"added", added,
		log.FieldOperation, log.OpRollover)
	return added, nil
}

package http

import (
	"errors"
	"net/http"
	"strings"

	"envelopes/internal/core"
	"envelopes/internal/log"
	"envelopes/internal/services"
)

type allocationPayload struct {
	CategoryID    string `json:"categoryId"`
	Section       string `json:"section"`
	Planned       string `json:"planned"`
	CarryForward  bool   `json:"carryForward"`
	RepeatCadence string `json:"repeatCadence"`
}

type incomePayload struct {
	Source string `json:"source"`
	Amount string `json:"amount"`
}

type budgetPayload struct {
	Allocations []allocationPayload `json:"allocations"`
	Incomes     []incomePayload     `json:"incomes"`
}

type allocationView struct {
	CategoryID    string  `json:"categoryId"`
	Section       string  `json:"section"`
	Planned       float64 `json:"planned"`
	Spent         float64 `json:"spent"`
	CarryForward  bool    `json:"carryForward"`
	RepeatCadence string  `json:"repeatCadence,omitempty"`
}

type incomeView struct {
	Source string  `json:"source"`
	Amount float64 `json:"amount"`
}

type budgetView struct {
	Month       string           `json:"month"`
	Allocations []allocationView `json:"allocations"`
	Incomes     []incomeView     `json:"incomes"`
}

func budgetViewOf(b core.Budget) budgetView {
	v := budgetView{
		Month:       string(b.Month),
		Allocations: make([]allocationView, 0, len(b.Allocations)),
		Incomes:     make([]incomeView, 0, len(b.Incomes)),
	}
	for _, a := range b.Allocations {
		v.Allocations = append(v.Allocations, allocationView{
			CategoryID:    a.CategoryID,
			Section:       string(a.Section),
			Planned:       a.Planned.Amount(),
			Spent:         a.Spent.Amount(),
			CarryForward:  a.CarryForward,
			RepeatCadence: string(a.RepeatCadence),
		})
	}
	for _, in := range b.Incomes {
		v.Incomes = append(v.Incomes, incomeView{Source: in.Source, Amount: in.Amount.Amount()})
	}
	return v
}

// handleBudgetByMonth serves GET and PUT for /api/budgets/{month}.
func (s *Server) handleBudgetByMonth(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimPrefix(r.URL.Path, "/api/budgets/")
	month, err := core.ParseMonthKey(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid month, expected YYYY-MM")
		return
	}

	switch r.Method {
	case http.MethodGet:
		b, err := s.store.GetBudget(r.Context(), month)
		if services.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "no budget for "+string(month))
			return
		}
		if err != nil {
			s.logger.ErrorContext(r.Context(), "Budget load failed",
				log.FieldMonth, string(month),
				log.FieldError, err.Error())
			writeError(w, http.StatusInternalServerError, "failed to load budget")
			return
		}
		writeJSON(w, http.StatusOK, budgetViewOf(b))
	case http.MethodPut:
		var payload budgetPayload
		if err := readJSON(r, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		b, err := budgetFromPayload(month, payload)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := s.store.SaveBudget(r.Context(), b); err != nil {
			s.logger.ErrorContext(r.Context(), "Budget save failed",
				log.FieldMonth, string(month),
				log.FieldError, err.Error())
			writeError(w, http.StatusInternalServerError, "failed to save budget")
			return
		}
		s.invalidateDashboard()
		writeJSON(w, http.StatusOK, budgetViewOf(b))
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func budgetFromPayload(month core.MonthKey, p budgetPayload) (core.Budget, error) {
	b := core.Budget{Month: month}
	for _, a := range p.Allocations {
		planned, err := parseAmountAllowZero(a.Planned)
		if err != nil {
			return core.Budget{}, errors.New("invalid planned amount for " + a.CategoryID)
		}
		cadence := core.Cadence(strings.TrimSpace(a.RepeatCadence))
		if cadence == "" {
			cadence = core.CadenceNone
		}
		b.Allocations = append(b.Allocations, core.Allocation{
			CategoryID:    sanitizeInput(a.CategoryID),
			Section:       core.Section(strings.ToLower(strings.TrimSpace(a.Section))),
			Planned:       core.Money{Cents: planned},
			CarryForward:  a.CarryForward,
			RepeatCadence: cadence,
		})
	}
	for _, in := range p.Incomes {
		amount, err := parseAmountAllowZero(in.Amount)
		if err != nil {
			return core.Budget{}, errors.New("invalid income amount for " + in.Source)
		}
		b.Incomes = append(b.Incomes, core.Income{
			Source: sanitizeInput(in.Source),
			Amount: core.Money{Cents: amount},
		})
	}
	if err := b.Validate(); err != nil {
		return core.Budget{}, err
	}
	return b, nil
}

// parseAmountAllowZero parses a decimal amount where zero is a legal value.
// A zero planned amount is how an envelope exists without funding.
func parseAmountAllowZero(s string) (int64, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return 0, nil
	}
	if allZero(trimmed) {
		return 0, nil
	}
	return core.ParseDecimalToCents(trimmed)
}

func allZero(s string) bool {
	s = strings.ReplaceAll(s, ",", ".")
	for _, r := range s {
		if r != '0' && r != '.' {
			return false
		}
	}
	return true
}

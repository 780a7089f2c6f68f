package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"envelopes/internal/core"
	"envelopes/internal/log"
	"envelopes/internal/services"
)

type splitPayload struct {
	CategoryID string `json:"categoryId"`
	Amount     string `json:"amount"`
}

type transactionPayload struct {
	Date        string         `json:"date"`
	Amount      string         `json:"amount"`
	Type        string         `json:"type"`
	Merchant    string         `json:"merchant"`
	Description string         `json:"description"`
	CategoryID  string         `json:"categoryId"`
	Splits      []splitPayload `json:"splits"`
}

type splitView struct {
	CategoryID string  `json:"categoryId"`
	Amount     float64 `json:"amount"`
}

type transactionView struct {
	ID          string      `json:"id"`
	Date        string      `json:"date"`
	Amount      float64     `json:"amount"`
	Type        string      `json:"type"`
	Merchant    string      `json:"merchant,omitempty"`
	Description string      `json:"description,omitempty"`
	CategoryID  string      `json:"categoryId,omitempty"`
	Splits      []splitView `json:"splits,omitempty"`
}

func viewOf(t core.Transaction) transactionView {
	v := transactionView{
		ID:          t.ID,
		Date:        t.OccurredOn.Format("2006-01-02"),
		Amount:      t.Amount.Amount(),
		Type:        string(t.Type),
		Merchant:    t.Merchant,
		Description: t.Description,
		CategoryID:  t.CategoryID,
	}
	for _, sp := range t.Splits {
		v.Splits = append(v.Splits, splitView{CategoryID: sp.CategoryID, Amount: sp.Amount.Amount()})
	}
	return v
}

// handleTransactions lists a month's ledger (GET) or records a new
// transaction (POST).
func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listTransactions(w, r)
	case http.MethodPost:
		s.createTransaction(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) listTransactions(w http.ResponseWriter, r *http.Request) {
	month, err := parseMonthParam(r, s.loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid month, expected YYYY-MM")
		return
	}
	search := sanitizeInput(r.URL.Query().Get("search"))

	txs, err := s.ledger.ListTransactions(r.Context(), month, search)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Transaction list failed",
			log.FieldMonth, string(month),
			log.FieldError, err.Error())
		writeError(w, http.StatusInternalServerError, "failed to list transactions")
		return
	}

	views := make([]transactionView, 0, len(txs))
	for _, t := range txs {
		views = append(views, viewOf(t))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) createTransaction(w http.ResponseWriter, r *http.Request) {
	var payload transactionPayload
	if err := readJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	t, err := s.transactionFromPayload(payload)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := s.ledger.CreateTransaction(r.Context(), t)
	if err != nil {
		if isValidationError(err) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.ErrorContext(r.Context(), "Transaction create failed",
			log.FieldError, err.Error())
		writeError(w, http.StatusInternalServerError, "failed to save transaction")
		return
	}

	s.invalidateDashboard()
	writeJSON(w, http.StatusCreated, viewOf(created))
}

// handleTransactionByID serves GET and DELETE for /api/transactions/{id}.
func (s *Server) handleTransactionByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/transactions/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		t, err := s.ledger.GetTransaction(r.Context(), id)
		if services.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "transaction not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to load transaction")
			return
		}
		writeJSON(w, http.StatusOK, viewOf(t))
	case http.MethodDelete:
		err := s.ledger.DeleteTransaction(r.Context(), id)
		if services.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "transaction not found")
			return
		}
		if err != nil {
			s.logger.ErrorContext(r.Context(), "Transaction delete failed",
				log.FieldTxID, id,
				log.FieldError, err.Error())
			writeError(w, http.StatusInternalServerError, "failed to delete transaction")
			return
		}
		s.invalidateDashboard()
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) transactionFromPayload(p transactionPayload) (core.Transaction, error) {
	occurredOn, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(p.Date), s.loc)
	if err != nil {
		return core.Transaction{}, errors.New("invalid date, expected YYYY-MM-DD")
	}

	cents, err := core.ParseDecimalToCents(p.Amount)
	if err != nil {
		return core.Transaction{}, errors.New("invalid amount")
	}

	t := core.Transaction{
		OccurredOn:  occurredOn,
		Amount:      core.Money{Cents: cents},
		Type:        core.TransactionType(strings.ToUpper(strings.TrimSpace(p.Type))),
		Merchant:    sanitizeInput(p.Merchant),
		Description: sanitizeInput(p.Description),
		CategoryID:  sanitizeInput(p.CategoryID),
	}
	for _, sp := range p.Splits {
		spCents, err := core.ParseDecimalToCents(sp.Amount)
		if err != nil {
			return core.Transaction{}, errors.New("invalid split amount")
		}
		t.Splits = append(t.Splits, core.Split{
			CategoryID: sanitizeInput(sp.CategoryID),
			Amount:     core.Money{Cents: spCents},
		})
	}

	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}
	return t, nil
}

func isValidationError(err error) bool {
	return errors.Is(err, core.ErrInvalidAmount) ||
		errors.Is(err, core.ErrInvalidType) ||
		errors.Is(err, core.ErrInvalidDate) ||
		errors.Is(err, core.ErrEmptyDescription)
}

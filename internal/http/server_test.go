package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"envelopes/internal/analytics"
	"envelopes/internal/core"
	memstore "envelopes/internal/memory"
	"envelopes/internal/services"
)

func newTestServer(t *testing.T) (*Server, *memstore.Store) {
	t.Helper()
	store := memstore.NewStore(time.UTC)
	engine := analytics.NewEngine(store, analytics.DefaultThresholds(), time.UTC, nil)
	ledger := services.NewLedgerService(store, nil, nil)
	srv := NewServer(Options{Addr: ":0", Location: time.UTC, DashboardCacheTTL: time.Minute},
		engine, ledger, store, nil)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv, store
}

func doRequest(t *testing.T, srv *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Server.Handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func TestHealthEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)
	for _, path := range []string{"/healthz", "/readyz"} {
		rec := doRequest(t, srv, http.MethodGet, path, "")
		if rec.Code != http.StatusOK {
			t.Errorf("%s = %d", path, rec.Code)
		}
	}
}

func TestSecurityHeaders(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(t, srv, http.MethodGet, "/api/categories", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	for header, want := range map[string]string{
		"X-Content-Type-Options":  "nosniff",
		"X-Frame-Options":         "DENY",
		"Content-Security-Policy": "default-src 'none'",
	} {
		if got := rec.Header().Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}
}

func TestCategoryLifecycle(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/categories",
		`{"name":"Groceries","emoji":"🛒","section":"expenses"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create = %d: %s", rec.Code, rec.Body.String())
	}
	var created categoryView
	decodeBody(t, rec, &created)
	if created.ID != "groceries" {
		t.Errorf("slugified id = %q", created.ID)
	}

	// Duplicate id conflicts.
	rec = doRequest(t, srv, http.MethodPost, "/api/categories",
		`{"id":"groceries","name":"Other","section":"expenses"}`)
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate = %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/categories", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list = %d", rec.Code)
	}
	var list []categoryView
	decodeBody(t, rec, &list)
	if len(list) != 1 || list[0].Name != "Groceries" {
		t.Errorf("list = %+v", list)
	}
}

func TestCategoryValidation(t *testing.T) {
	srv, _ := newTestServer(t)
	tests := []struct {
		name string
		body string
		code int
	}{
		{"reserved id", `{"id":"uncategorized","name":"X","section":"expenses"}`, http.StatusBadRequest},
		{"empty name", `{"section":"expenses"}`, http.StatusBadRequest},
		{"bad section", `{"name":"X","section":"misc"}`, http.StatusBadRequest},
		{"unknown field", `{"name":"X","section":"expenses","extra":1}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, srv, http.MethodPost, "/api/categories", tt.body)
			if rec.Code != tt.code {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.code, rec.Body.String())
			}
		})
	}
}

func TestTransactionLifecycle(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/transactions",
		`{"date":"2026-09-10","amount":"45.99","type":"expense","merchant":"Corner Market","categoryId":"groceries"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create = %d: %s", rec.Code, rec.Body.String())
	}
	var created transactionView
	decodeBody(t, rec, &created)
	if created.ID == "" || created.Amount != 45.99 || created.Type != "EXPENSE" {
		t.Errorf("created = %+v", created)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/transactions?month=2026-09", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list = %d", rec.Code)
	}
	var list []transactionView
	decodeBody(t, rec, &list)
	if len(list) != 1 || list[0].ID != created.ID {
		t.Errorf("list = %+v", list)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/transactions/"+created.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get = %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodDelete, "/api/transactions/"+created.ID, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete = %d", rec.Code)
	}
	rec = doRequest(t, srv, http.MethodGet, "/api/transactions/"+created.ID, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d", rec.Code)
	}
}

func TestTransactionSearch(t *testing.T) {
	srv, _ := newTestServer(t)
	for _, body := range []string{
		`{"date":"2026-09-02","amount":"12.00","type":"expense","merchant":"Corner Market"}`,
		`{"date":"2026-09-03","amount":"30.00","type":"expense","merchant":"Hardware & Sons"}`,
	} {
		if rec := doRequest(t, srv, http.MethodPost, "/api/transactions", body); rec.Code != http.StatusCreated {
			t.Fatalf("create = %d: %s", rec.Code, rec.Body.String())
		}
	}

	rec := doRequest(t, srv, http.MethodGet, "/api/transactions?month=2026-09&search=hardware", "")
	var list []transactionView
	decodeBody(t, rec, &list)
	if len(list) != 1 || list[0].Merchant != "Hardware & Sons" {
		t.Errorf("search result = %+v", list)
	}
}

func TestTransactionValidation(t *testing.T) {
	srv, _ := newTestServer(t)
	tests := []struct {
		name string
		body string
	}{
		{"bad date", `{"date":"10/09/2026","amount":"10","type":"expense","merchant":"X"}`},
		{"bad amount", `{"date":"2026-09-10","amount":"-5","type":"expense","merchant":"X"}`},
		{"bad type", `{"date":"2026-09-10","amount":"10","type":"transfer","merchant":"X"}`},
		{"no merchant or description", `{"date":"2026-09-10","amount":"10","type":"expense"}`},
		{"split exceeds amount", `{"date":"2026-09-10","amount":"10","type":"expense","merchant":"X","splits":[{"categoryId":"a","amount":"11"}]}`},
		{"not json", `date=2026-09-10`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, srv, http.MethodPost, "/api/transactions", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d: %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestTransactionMethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t)
	if rec := doRequest(t, srv, http.MethodPut, "/api/transactions", "{}"); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d", rec.Code)
	}
	if rec := doRequest(t, srv, http.MethodPost, "/api/transactions/abc", "{}"); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestBudgetRoundTrip(t *testing.T) {
	srv, _ := newTestServer(t)

	body := `{
		"allocations":[
			{"categoryId":"groceries","section":"expenses","planned":"500.00","repeatCadence":"monthly"},
			{"categoryId":"vault","section":"savings","planned":"0","carryForward":true}
		],
		"incomes":[{"source":"Salary","amount":"3000.00"}]
	}`
	rec := doRequest(t, srv, http.MethodPut, "/api/budgets/2026-09", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("put = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/budgets/2026-09", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get = %d", rec.Code)
	}
	var b budgetView
	decodeBody(t, rec, &b)
	if b.Month != "2026-09" || len(b.Allocations) != 2 {
		t.Fatalf("budget = %+v", b)
	}
	if b.Allocations[0].Planned != 500 || b.Allocations[0].RepeatCadence != "monthly" {
		t.Errorf("allocation = %+v", b.Allocations[0])
	}
	// Zero planned is a legal envelope, not an error.
	if b.Allocations[1].Planned != 0 || !b.Allocations[1].CarryForward {
		t.Errorf("zero allocation = %+v", b.Allocations[1])
	}
	if len(b.Incomes) != 1 || b.Incomes[0].Amount != 3000 {
		t.Errorf("incomes = %+v", b.Incomes)
	}
}

func TestBudgetErrors(t *testing.T) {
	srv, _ := newTestServer(t)
	tests := []struct {
		name   string
		method string
		target string
		body   string
		code   int
	}{
		{"missing budget", http.MethodGet, "/api/budgets/2026-01", "", http.StatusNotFound},
		{"bad month", http.MethodGet, "/api/budgets/2026-1", "", http.StatusBadRequest},
		{"bad amount", http.MethodPut, "/api/budgets/2026-09",
			`{"allocations":[{"categoryId":"a","section":"expenses","planned":"abc"}]}`, http.StatusBadRequest},
		{"duplicate category", http.MethodPut, "/api/budgets/2026-09",
			`{"allocations":[{"categoryId":"a","section":"expenses","planned":"1"},{"categoryId":"a","section":"expenses","planned":"2"}]}`,
			http.StatusBadRequest},
		{"method not allowed", http.MethodDelete, "/api/budgets/2026-09", "", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, srv, tt.method, tt.target, tt.body)
			if rec.Code != tt.code {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.code, rec.Body.String())
			}
		})
	}
}

func TestDashboardCaching(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/dashboard?asOf=2026-09-10", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("dashboard = %d: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("X-Cache"); got != "MISS" {
		t.Errorf("first request X-Cache = %q", got)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/dashboard?asOf=2026-09-10", "")
	if got := rec.Header().Get("X-Cache"); got != "HIT" {
		t.Errorf("second request X-Cache = %q", got)
	}

	// A write flushes the cache.
	create := doRequest(t, srv, http.MethodPost, "/api/transactions",
		`{"date":"2026-09-10","amount":"10.00","type":"expense","merchant":"Corner Market"}`)
	if create.Code != http.StatusCreated {
		t.Fatalf("create = %d", create.Code)
	}
	rec = doRequest(t, srv, http.MethodGet, "/api/dashboard?asOf=2026-09-10", "")
	if got := rec.Header().Get("X-Cache"); got != "MISS" {
		t.Errorf("post-write X-Cache = %q, cache must be flushed", got)
	}
}

func TestDashboardPayload(t *testing.T) {
	srv, store := newTestServer(t)
	ctx := context.Background()

	if err := store.CreateCategory(ctx, core.Category{ID: "groceries", Name: "Groceries", Section: core.SectionExpenses}); err != nil {
		t.Fatalf("CreateCategory: %v", err)
	}
	if err := store.SaveBudget(ctx, core.Budget{
		Month: "2026-09",
		Allocations: []core.Allocation{{
			CategoryID: "groceries", Section: core.SectionExpenses,
			Planned: core.Money{Cents: 50000}, Spent: core.Money{Cents: 45000},
		}},
	}); err != nil {
		t.Fatalf("SaveBudget: %v", err)
	}
	if err := store.CreateTransaction(ctx, core.Transaction{
		ID: "txn_1", OccurredOn: time.Date(2026, 9, 5, 0, 0, 0, 0, time.UTC),
		Amount: core.Money{Cents: 48000}, Type: core.TypeExpense,
		Merchant: "Corner Market", CategoryID: "groceries",
	}); err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}

	rec := doRequest(t, srv, http.MethodGet, "/api/dashboard?asOf=2026-09-10", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("dashboard = %d: %s", rec.Code, rec.Body.String())
	}

	var d analytics.Dashboard
	decodeBody(t, rec, &d)
	if d.Summary.MonthKey != "2026-09" {
		t.Errorf("summary month = %s", d.Summary.MonthKey)
	}
	if len(d.CategoryPlanActual.Categories) != 1 {
		t.Fatalf("plan-actual = %+v", d.CategoryPlanActual.Categories)
	}
	entry := d.CategoryPlanActual.Categories[0]
	if entry.CategoryID != "groceries" || entry.Actual != 480 {
		t.Errorf("entry = %+v", entry)
	}
	if len(d.TopVendors) != 1 || d.TopVendors[0].Label != "Corner Market" {
		t.Errorf("vendors = %+v", d.TopVendors)
	}
}

func TestDashboardBadRequests(t *testing.T) {
	srv, _ := newTestServer(t)
	if rec := doRequest(t, srv, http.MethodGet, "/api/dashboard?asOf=september", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad asOf = %d", rec.Code)
	}
	if rec := doRequest(t, srv, http.MethodPost, "/api/dashboard", "{}"); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("post = %d", rec.Code)
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Groceries", "groceries"},
		{"Dining Out", "dining-out"},
		{"  Savings!  ", "savings"},
		{"--", ""},
		{"Auto_Insurance", "auto-insurance"},
	}
	for _, tt := range tests {
		if got := slugify(tt.in); got != tt.want {
			t.Errorf("slugify(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSanitizeInput(t *testing.T) {
	if got := sanitizeInput("  a\x00b\x1fc  "); got != "abc" {
		t.Errorf("sanitizeInput = %q", got)
	}
	if got := sanitizeInput("line1\nline2"); got != "line1\nline2" {
		t.Errorf("newlines must survive, got %q", got)
	}
}

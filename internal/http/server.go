// Package http exposes the budgeting API: the dashboard aggregate, the
// transaction ledger, monthly budgets and categories. Everything is JSON.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"envelopes/internal/analytics"
	"envelopes/internal/cache"
	"envelopes/internal/core"
	"envelopes/internal/log"
	"envelopes/internal/services"
)

// Store is the read/write surface the handlers need beyond the ledger
// service. Both the SQLite repository and the in-memory store satisfy it.
type Store interface {
	Categories(ctx context.Context) ([]core.Category, error)
	CreateCategory(ctx context.Context, c core.Category) error
	GetBudget(ctx context.Context, month core.MonthKey) (core.Budget, error)
	SaveBudget(ctx context.Context, b core.Budget) error
}

type Server struct {
	http.Server
	engine      *analytics.Engine
	ledger      *services.LedgerService
	store       Store
	loc         *time.Location
	logger      *log.Logger
	rateLimiter *rateLimiter
	metrics     *securityMetrics

	// Dashboard payloads keyed by as-of date. Flushed on every write since
	// any mutation can move every derived number.
	dashboardCache *cache.LRUCache[*analytics.Dashboard]
	cacheManager   *cache.Manager

	shutdownOnce sync.Once
}

// Options configures the server beyond its collaborators.
type Options struct {
	Addr              string
	Location          *time.Location
	DashboardCacheTTL time.Duration
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server.
func NewServer(opts Options, engine *analytics.Engine, ledger *services.LedgerService, store Store, logger *log.Logger) *Server {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.DashboardCacheTTL <= 0 {
		opts.DashboardCacheTTL = time.Minute
	}
	if logger == nil {
		logger = log.New(log.DefaultConfig()).WithComponent(log.ComponentHTTP)
	}

	mux := http.NewServeMux()
	s := &Server{
		Server: http.Server{
			Addr:    opts.Addr,
			Handler: mux,
		},
		engine:         engine,
		ledger:         ledger,
		store:          store,
		loc:            opts.Location,
		logger:         logger,
		rateLimiter:    newRateLimiter(),
		metrics:        &securityMetrics{},
		dashboardCache: cache.NewLRUCache[*analytics.Dashboard](16, opts.DashboardCacheTTL),
		cacheManager:   cache.NewManager(),
	}

	s.cacheManager.Register(s.dashboardCache)
	s.cacheManager.StartCleanup(10 * time.Minute)

	mux.HandleFunc("/healthz", handleHealth)
	mux.HandleFunc("/readyz", handleReady)
	mux.HandleFunc("/api/dashboard", s.withMiddleware(s.handleDashboard))
	mux.HandleFunc("/api/transactions", s.withMiddleware(s.handleTransactions))
	mux.HandleFunc("/api/transactions/", s.withMiddleware(s.handleTransactionByID))
	mux.HandleFunc("/api/budgets/", s.withMiddleware(s.handleBudgetByMonth))
	mux.HandleFunc("/api/categories", s.withMiddleware(s.handleCategories))

	return s
}

// withMiddleware adds security headers, rate limiting on writes, and request
// logging.
func (s *Server) withMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		clientIP := extractClientIP(r)
		requestID := generateRequestID()

		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		s.logger.DebugContext(ctx, "Request started",
			log.FieldRequestID, requestID,
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path,
			log.FieldClientIP, clientIP)

		// Writes are rate limited per client IP; reads are not.
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			if !s.rateLimiter.allow(clientIP, s.metrics) {
				s.logger.WarnContext(ctx, "Rate limit exceeded",
					log.FieldClientIP, clientIP,
					log.FieldMethod, r.Method,
					log.FieldPath, r.URL.Path)
				w.Header().Set("Retry-After", "60")
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded, try again later")
				return
			}
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		s.logger.InfoContext(ctx, "Request completed",
			log.FieldRequestID, requestID,
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path,
			log.FieldStatusCode, rw.statusCode,
			log.FieldDuration, time.Since(start).Milliseconds(),
			log.FieldClientIP, clientIP)
	}
}

// invalidateDashboard drops all cached dashboard payloads after a write.
func (s *Server) invalidateDashboard() {
	s.dashboardCache.Flush()
}

// Shutdown gracefully shuts down the server and cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

type requestIDKey struct{}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

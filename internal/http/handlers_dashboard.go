package http

import (
	"net/http"
	"strings"
	"time"

	"envelopes/internal/log"
)

// handleDashboard serves the full dashboard aggregate. Payloads are cached
// per as-of date; any write through this server flushes the cache.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	asOf := time.Now().In(s.loc)
	if raw := strings.TrimSpace(r.URL.Query().Get("asOf")); raw != "" {
		parsed, err := time.ParseInLocation("2006-01-02", raw, s.loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid asOf date, expected YYYY-MM-DD")
			return
		}
		asOf = parsed
	}

	key := asOf.Format("2006-01-02")
	if cached, ok := s.dashboardCache.Get(key); ok {
		w.Header().Set("X-Cache", "HIT")
		writeJSON(w, http.StatusOK, cached)
		return
	}

	dashboard, err := s.engine.BuildDashboard(r.Context(), asOf)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Dashboard build failed",
			log.FieldError, err.Error())
		writeError(w, http.StatusInternalServerError, "failed to build dashboard")
		return
	}

	s.dashboardCache.Set(key, dashboard)
	w.Header().Set("X-Cache", "MISS")
	writeJSON(w, http.StatusOK, dashboard)
}

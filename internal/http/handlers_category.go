package http

import (
	"net/http"
	"strings"

	"envelopes/internal/core"
	"envelopes/internal/log"
)

type categoryPayload struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Emoji   string `json:"emoji"`
	Section string `json:"section"`
}

type categoryView struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Emoji   string `json:"emoji,omitempty"`
	Section string `json:"section"`
}

// handleCategories lists categories (GET) or creates one (POST).
func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		categories, err := s.store.Categories(r.Context())
		if err != nil {
			s.logger.ErrorContext(r.Context(), "Category list failed",
				log.FieldError, err.Error())
			writeError(w, http.StatusInternalServerError, "failed to list categories")
			return
		}
		views := make([]categoryView, 0, len(categories))
		for _, c := range categories {
			views = append(views, categoryView{
				ID:      c.ID,
				Name:    c.Name,
				Emoji:   c.Emoji,
				Section: string(c.Section),
			})
		}
		writeJSON(w, http.StatusOK, views)
	case http.MethodPost:
		var payload categoryPayload
		if err := readJSON(r, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		c := core.Category{
			ID:      sanitizeInput(payload.ID),
			Name:    sanitizeInput(payload.Name),
			Emoji:   strings.TrimSpace(payload.Emoji),
			Section: core.Section(strings.ToLower(strings.TrimSpace(payload.Section))),
		}
		if c.ID == "" {
			c.ID = slugify(c.Name)
		}
		if c.ID == "" || c.ID == core.UncategorizedID {
			writeError(w, http.StatusBadRequest, "invalid category id")
			return
		}
		if err := c.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := s.store.CreateCategory(r.Context(), c); err != nil {
			s.logger.ErrorContext(r.Context(), "Category create failed",
				log.FieldCategory, c.ID,
				log.FieldError, err.Error())
			writeError(w, http.StatusConflict, "failed to create category")
			return
		}
		s.invalidateDashboard()
		writeJSON(w, http.StatusCreated, categoryView{
			ID:      c.ID,
			Name:    c.Name,
			Emoji:   c.Emoji,
			Section: string(c.Section),
		})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// slugify derives a category id from its name: lowercase, spaces become
// hyphens, everything outside [a-z0-9-] dropped.
func slugify(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteByte('-')
		}
	}
	return strings.Trim(b.String(), "-")
}

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mini-waf/waf-go/internal/db"
)

// RuleHandler serves rule listing and the enabled toggle.
type RuleHandler struct {
	db     *db.DB
	logger *slog.Logger
}

// NewRuleHandler creates a rule handler.
func NewRuleHandler(database *db.DB, logger *slog.Logger) *RuleHandler {
	return &RuleHandler{db: database, logger: logger}
}

// List handles GET /api/rules, oldest first.
func (rh *RuleHandler) List(w http.ResponseWriter, r *http.Request) {
	rules, err := rh.db.ListRules(r.Context())
	if err != nil {
		rh.logger.Error("failed to list rules", "err", err)
		jsonError(w, "failed to fetch rules", http.StatusInternalServerError)
		return
	}
	if rules == nil {
		rules = []db.Rule{}
	}
	writeJSON(w, http.StatusOK, rules)
}

// Toggle handles PATCH /api/rules/{id}/toggle and returns the updated rule.
// Disabling takes effect on the next inspection; existing logs are untouched.
func (rh *RuleHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rule, err := rh.db.ToggleRule(r.Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		jsonError(w, "Rule not found", http.StatusNotFound)
		return
	}
	if err != nil {
		rh.logger.Error("failed to toggle rule", "id", id, "err", err)
		jsonError(w, "failed to toggle rule", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

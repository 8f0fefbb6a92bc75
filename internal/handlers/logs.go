package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/mini-waf/waf-go/internal/db"
)

// LogHandler serves attack-log listing and aggregate stats.
type LogHandler struct {
	db     *db.DB
	logger *slog.Logger
}

// NewLogHandler creates a log handler.
func NewLogHandler(database *db.DB, logger *slog.Logger) *LogHandler {
	return &LogHandler{db: database, logger: logger}
}

// List handles GET /api/logs?limit=1..200&offset>=0, most recent first.
func (lh *LogHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 50)
	if err != nil || limit < 1 || limit > 200 {
		jsonError(w, "limit must be between 1 and 200", http.StatusBadRequest)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		jsonError(w, "offset must be >= 0", http.StatusBadRequest)
		return
	}

	logs, err := lh.db.ListLogs(r.Context(), limit, offset)
	if err != nil {
		lh.logger.Error("failed to list logs", "err", err)
		jsonError(w, "failed to fetch logs", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

// Stats handles GET /api/stats.
func (lh *LogHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := lh.db.GetStats(r.Context())
	if err != nil {
		lh.logger.Error("failed to compute stats", "err", err)
		jsonError(w, "failed to fetch stats", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

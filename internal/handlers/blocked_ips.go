package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mini-waf/waf-go/internal/db"
)

// BlockedIPHandler serves the hard blocklist admin surface.
type BlockedIPHandler struct {
	db     *db.DB
	logger *slog.Logger
}

// NewBlockedIPHandler creates a blocked-IP handler.
func NewBlockedIPHandler(database *db.DB, logger *slog.Logger) *BlockedIPHandler {
	return &BlockedIPHandler{db: database, logger: logger}
}

// List handles GET /api/blocked-ips, newest first.
func (bh *BlockedIPHandler) List(w http.ResponseWriter, r *http.Request) {
	ips, err := bh.db.ListBlockedIPs(r.Context())
	if err != nil {
		bh.logger.Error("failed to list blocked ips", "err", err)
		jsonError(w, "failed to fetch blocked IPs", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, ips)
}

// Delete handles DELETE /api/blocked-ips/{ip}.
func (bh *BlockedIPHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ip := chi.URLParam(r, "ip")
	err := bh.db.DeleteBlockedIP(r.Context(), ip)
	if errors.Is(err, db.ErrNotFound) {
		jsonError(w, "IP not found in blocklist", http.StatusNotFound)
		return
	}
	if err != nil {
		bh.logger.Error("failed to unblock ip", "ip", ip, "err", err)
		jsonError(w, "failed to unblock IP", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("%s has been unblocked", ip),
	})
}

package handlers

import (
	"context"
	"net/http"
	"time"
)

// Pinger is a connectivity probe on a shared client.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves liveness and readiness.
type HealthHandler struct {
	db    Pinger
	redis Pinger
}

// NewHealthHandler creates a health handler over the two backing stores.
func NewHealthHandler(db, redis Pinger) *HealthHandler {
	return &HealthHandler{db: db, redis: redis}
}

// Health handles GET /health.
func (h *HealthHandler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "mini-waf",
	})
}

// Ready handles GET /ready: 200 when both stores answer, 503 otherwise,
// with per-component status either way.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	dbStatus, redisStatus := "ok", "ok"
	if err := h.db.Ping(ctx); err != nil {
		dbStatus = "error"
	}
	if err := h.redis.Ping(ctx); err != nil {
		redisStatus = "error"
	}

	code := http.StatusOK
	if dbStatus != "ok" || redisStatus != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"db": dbStatus, "redis": redisStatus})
}

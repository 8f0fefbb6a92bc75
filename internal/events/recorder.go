// Package events persists every inspection decision and fans it out to
// realtime subscribers.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/mini-waf/waf-go/internal/db"
	"github.com/mini-waf/waf-go/internal/metrics"
)

// LogStore is the attack-log write surface of the persistent store.
type LogStore interface {
	InsertAttackLog(ctx context.Context, entry *db.AttackLog) error
}

// Broadcaster pushes a message to every realtime subscriber.
type Broadcaster interface {
	Broadcast(message []byte)
}

// Recorder commits a log row and then publishes a new_log event. The
// publish happens strictly after the commit and its failure is swallowed;
// the row is the source of truth, the event is best-effort.
type Recorder struct {
	store  LogStore
	hub    Broadcaster
	logger *slog.Logger
}

// NewRecorder creates a Recorder. hub may be nil (no realtime fan-out).
func NewRecorder(store LogStore, hub Broadcaster, logger *slog.Logger) *Recorder {
	return &Recorder{store: store, hub: hub, logger: logger}
}

// logEvent is the payload of the new_log websocket event.
type logEvent struct {
	ID          string   `json:"id"`
	IPAddress   string   `json:"ip_address"`
	Method      string   `json:"method"`
	Endpoint    string   `json:"endpoint"`
	ThreatScore int      `json:"threat_score"`
	ActionTaken string   `json:"action_taken"`
	ThreatTypes []string `json:"threat_types"`
	CreatedAt   string   `json:"created_at"`
}

// Record inserts the attack log row and broadcasts it. The returned error
// reports a failed insert; callers must not fail the request on it — the
// loss is counted in metrics.
func (r *Recorder) Record(ctx context.Context, entry *db.AttackLog) error {
	if entry.ThreatTypes == nil {
		entry.ThreatTypes = []string{}
	}

	if err := r.store.InsertAttackLog(ctx, entry); err != nil {
		metrics.LogWriteFailures.Inc()
		return err
	}
	metrics.RequestsTotal.WithLabelValues(entry.ActionTaken).Inc()

	if r.hub == nil {
		return nil
	}
	msg, err := json.Marshal(map[string]any{
		"type": "new_log",
		"data": logEvent{
			ID:          entry.ID,
			IPAddress:   entry.IPAddress,
			Method:      entry.Method,
			Endpoint:    entry.Endpoint,
			ThreatScore: entry.ThreatScore,
			ActionTaken: entry.ActionTaken,
			ThreatTypes: entry.ThreatTypes,
			CreatedAt:   entry.CreatedAt.UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		r.logger.Error("marshal new_log event", "err", err)
		return nil
	}
	r.hub.Broadcast(msg)
	return nil
}

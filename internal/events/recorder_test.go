package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mini-waf/waf-go/internal/db"
)

type stubStore struct {
	err error
}

func (s *stubStore) InsertAttackLog(_ context.Context, entry *db.AttackLog) error {
	if s.err != nil {
		return s.err
	}
	entry.ID = "11111111-2222-3333-4444-555555555555"
	entry.CreatedAt = time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	return nil
}

type stubHub struct {
	messages [][]byte
}

func (h *stubHub) Broadcast(message []byte) {
	h.messages = append(h.messages, message)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRecordPublishesAfterCommit(t *testing.T) {
	hub := &stubHub{}
	rec := NewRecorder(&stubStore{}, hub, discardLogger())

	entry := &db.AttackLog{
		IPAddress:   "1.2.3.4",
		Method:      "GET",
		Endpoint:    "/users",
		ThreatScore: 60,
		ActionTaken: "block",
		ThreatTypes: []string{"SQLi"},
	}
	require.NoError(t, rec.Record(context.Background(), entry))
	require.Len(t, hub.messages, 1)

	var event struct {
		Type string `json:"type"`
		Data struct {
			ID          string   `json:"id"`
			IPAddress   string   `json:"ip_address"`
			Method      string   `json:"method"`
			Endpoint    string   `json:"endpoint"`
			ThreatScore int      `json:"threat_score"`
			ActionTaken string   `json:"action_taken"`
			ThreatTypes []string `json:"threat_types"`
			CreatedAt   string   `json:"created_at"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(hub.messages[0], &event))
	assert.Equal(t, "new_log", event.Type)
	assert.Equal(t, entry.ID, event.Data.ID)
	assert.Equal(t, "1.2.3.4", event.Data.IPAddress)
	assert.Equal(t, 60, event.Data.ThreatScore)
	assert.Equal(t, "block", event.Data.ActionTaken)
	assert.Equal(t, []string{"SQLi"}, event.Data.ThreatTypes)
	assert.Equal(t, "2026-08-24T12:00:00Z", event.Data.CreatedAt)
}

func TestRecordInsertFailureSkipsBroadcast(t *testing.T) {
	hub := &stubHub{}
	rec := NewRecorder(&stubStore{err: errors.New("constraint violation")}, hub, discardLogger())

	err := rec.Record(context.Background(), &db.AttackLog{ActionTaken: "allow"})
	assert.Error(t, err)
	assert.Empty(t, hub.messages, "nothing is published when the row was not committed")
}

func TestRecordNormalizesNilThreatTypes(t *testing.T) {
	hub := &stubHub{}
	rec := NewRecorder(&stubStore{}, hub, discardLogger())

	entry := &db.AttackLog{ActionTaken: "allow"}
	require.NoError(t, rec.Record(context.Background(), entry))
	assert.NotNil(t, entry.ThreatTypes)
	assert.Contains(t, string(hub.messages[0]), `"threat_types":[]`)
}

func TestRecordWithoutHub(t *testing.T) {
	rec := NewRecorder(&stubStore{}, nil, discardLogger())
	assert.NoError(t, rec.Record(context.Background(), &db.AttackLog{ActionTaken: "allow"}))
}

package blocklist

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mini-waf/waf-go/internal/db"
)

type stubSoft struct {
	hit    bool
	err    error
	called bool
}

func (s *stubSoft) GetBlocked(context.Context, string) (bool, error) {
	s.called = true
	return s.hit, s.err
}

type stubHard struct {
	entry  *db.BlockedIP
	err    error
	called bool
}

func (s *stubHard) LookupBlockedIP(context.Context, string) (*db.BlockedIP, error) {
	s.called = true
	return s.entry, s.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSoftHitShortCircuits(t *testing.T) {
	soft := &stubSoft{hit: true}
	hard := &stubHard{err: db.ErrNotFound}
	c := NewChecker(soft, hard, discardLogger())

	blocked, err := c.Check(context.Background(), "9.9.9.9")
	require.NoError(t, err)
	assert.True(t, blocked)
	assert.False(t, hard.called, "hard tier must not be consulted after a soft hit")
}

func TestHardHitBlocks(t *testing.T) {
	soft := &stubSoft{}
	hard := &stubHard{entry: &db.BlockedIP{IPAddress: "2001:db8::1"}}
	c := NewChecker(soft, hard, discardLogger())

	blocked, err := c.Check(context.Background(), "2001:db8::1")
	require.NoError(t, err)
	assert.True(t, blocked)
	assert.True(t, soft.called, "soft tier is consulted first")
}

func TestNoHitAllows(t *testing.T) {
	c := NewChecker(&stubSoft{}, &stubHard{err: db.ErrNotFound}, discardLogger())

	blocked, err := c.Check(context.Background(), "1.2.3.4")
	require.NoError(t, err)
	assert.False(t, blocked)
}

func TestSoftFailureFailsOpen(t *testing.T) {
	soft := &stubSoft{err: errors.New("connection refused")}
	hard := &stubHard{err: db.ErrNotFound}
	c := NewChecker(soft, hard, discardLogger())

	blocked, err := c.Check(context.Background(), "1.2.3.4")
	require.NoError(t, err)
	assert.False(t, blocked)
	assert.True(t, hard.called, "hard tier still consulted when the soft tier is down")
}

func TestHardFailurePropagates(t *testing.T) {
	hard := &stubHard{err: errors.New("query timeout")}
	c := NewChecker(&stubSoft{}, hard, discardLogger())

	_, err := c.Check(context.Background(), "1.2.3.4")
	assert.Error(t, err)
}

func TestNilSoftTier(t *testing.T) {
	c := NewChecker(nil, &stubHard{err: db.ErrNotFound}, discardLogger())

	blocked, err := c.Check(context.Background(), "1.2.3.4")
	require.NoError(t, err)
	assert.False(t, blocked)
}

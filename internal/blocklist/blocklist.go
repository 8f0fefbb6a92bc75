// Package blocklist answers one question per request: is this client IP
// blocked? Two tiers are consulted in order — the ephemeral soft tier
// (TTL-based Redis entries) and the persistent hard tier (blocked_ips rows).
// The first hit short-circuits.
package blocklist

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mini-waf/waf-go/internal/db"
)

// SoftTier is the ephemeral-store lookup.
type SoftTier interface {
	GetBlocked(ctx context.Context, ip string) (bool, error)
}

// HardTier is the persistent-store lookup. Implementations must treat
// expired rows as absent.
type HardTier interface {
	LookupBlockedIP(ctx context.Context, ip string) (*db.BlockedIP, error)
}

// Checker combines the two tiers.
type Checker struct {
	soft   SoftTier
	hard   HardTier
	logger *slog.Logger
}

// NewChecker creates a blocklist checker.
func NewChecker(soft SoftTier, hard HardTier, logger *slog.Logger) *Checker {
	return &Checker{soft: soft, hard: hard, logger: logger}
}

// Check reports whether ip is blocked. A soft-tier transport failure fails
// open with a warning; a hard-tier failure is returned to the caller, which
// must fail the request (the persistent store also backs the rule set, so
// inspection cannot proceed either).
func (c *Checker) Check(ctx context.Context, ip string) (bool, error) {
	if c.soft != nil {
		hit, err := c.soft.GetBlocked(ctx, ip)
		if err != nil {
			c.logger.Warn("soft blocklist unavailable, failing open", "ip", ip, "err", err)
		} else if hit {
			return true, nil
		}
	}

	_, err := c.hard.LookupBlockedIP(ctx, ip)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, db.ErrNotFound) {
		return false, nil
	}
	return false, err
}

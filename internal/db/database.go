// Package db wraps a pgx connection pool and provides typed access to the
// WAF's persistent state: rules, attack logs, and the hard IP blocklist.
package db

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a queried entity does not exist.
var ErrNotFound = errors.New("not found")

//go:embed migrations/*.sql
var migrations embed.FS

// DB wraps a pgx connection pool. Every query acquires its own pooled
// connection, so a slow inspection never holds up a log write.
type DB struct {
	Pool   *pgxpool.Pool
	logger *slog.Logger
}

// Connect opens a connection pool against dsn, verifies connectivity, and
// applies the embedded schema migration.
func Connect(ctx context.Context, dsn string, logger *slog.Logger) (*DB, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	config.MaxConns = 20
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	db := &DB{Pool: pool, logger: logger}
	if err := db.Migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Migrate executes the embedded SQL migration.
func (db *DB) Migrate(ctx context.Context) error {
	sql, err := migrations.ReadFile("migrations/001_init.sql")
	if err != nil {
		return fmt.Errorf("read migration: %w", err)
	}
	if _, err := db.Pool.Exec(ctx, string(sql)); err != nil {
		return fmt.Errorf("exec migration: %w", err)
	}
	db.logger.Info("database migrated")
	return nil
}

// Close shuts down the connection pool.
func (db *DB) Close() {
	db.Pool.Close()
}

// Ping checks the database connection; used by the readiness probe.
func (db *DB) Ping(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// ---------------------------------------------------------------------------
// Rules
// ---------------------------------------------------------------------------

const ruleColumns = `id, name, type, pattern, score, action, enabled, created_at`

func scanRule(row pgx.Row) (*Rule, error) {
	var r Rule
	err := row.Scan(&r.ID, &r.Name, &r.Type, &r.Pattern, &r.Score, &r.Action, &r.Enabled, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ListRules returns every rule, enabled or not, oldest first.
func (db *DB) ListRules(ctx context.Context) ([]Rule, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT `+ruleColumns+` FROM waf_rules ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()
	return collectRules(rows)
}

// ListEnabledRules returns the rules the inspection engine evaluates,
// oldest first.
func (db *DB) ListEnabledRules(ctx context.Context) ([]Rule, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT `+ruleColumns+` FROM waf_rules WHERE enabled ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list enabled rules: %w", err)
	}
	defer rows.Close()
	return collectRules(rows)
}

func collectRules(rows pgx.Rows) ([]Rule, error) {
	var rules []Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		rules = append(rules, *r)
	}
	return rules, rows.Err()
}

// ToggleRule flips the enabled flag of a rule and returns the updated row.
func (db *DB) ToggleRule(ctx context.Context, id string) (*Rule, error) {
	row := db.Pool.QueryRow(ctx,
		`UPDATE waf_rules SET enabled = NOT enabled WHERE id = $1 RETURNING `+ruleColumns, id)
	r, err := scanRule(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("toggle rule: %w", err)
	}
	return r, nil
}

// ---------------------------------------------------------------------------
// Attack logs
// ---------------------------------------------------------------------------

// InsertAttackLog writes a new log row. The entry's ID and CreatedAt are
// filled in on success.
func (db *DB) InsertAttackLog(ctx context.Context, entry *AttackLog) error {
	entry.ID = uuid.NewString()
	if entry.ThreatTypes == nil {
		entry.ThreatTypes = []string{}
	}
	err := db.Pool.QueryRow(ctx,
		`INSERT INTO attack_logs
		   (id, ip_address, method, endpoint, headers, request_body, threat_score, action_taken, threat_types)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING created_at`,
		entry.ID, entry.IPAddress, entry.Method, entry.Endpoint, entry.Headers,
		entry.RequestBody, entry.ThreatScore, entry.ActionTaken, entry.ThreatTypes,
	).Scan(&entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert attack log: %w", err)
	}
	return nil
}

// ListLogs returns attack logs most-recent-first. Headers and body are not
// selected; the list view only needs the summary columns.
func (db *DB) ListLogs(ctx context.Context, limit, offset int) ([]AttackLog, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT id, ip_address, method, endpoint, threat_score, action_taken,
		        COALESCE(threat_types, '{}'), created_at
		 FROM attack_logs ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list logs: %w", err)
	}
	defer rows.Close()

	logs := []AttackLog{}
	for rows.Next() {
		var l AttackLog
		if err := rows.Scan(&l.ID, &l.IPAddress, &l.Method, &l.Endpoint,
			&l.ThreatScore, &l.ActionTaken, &l.ThreatTypes, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan log: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// GetStats aggregates totals, top attacking IPs, the threat-type histogram,
// and an hourly request series over the last 24 hours.
func (db *DB) GetStats(ctx context.Context) (*Stats, error) {
	s := &Stats{
		TopIPs:             []IPCount{},
		ThreatDistribution: []TypeCount{},
		RequestsOverTime:   []HourCount{},
	}

	err := db.Pool.QueryRow(ctx,
		`SELECT count(*),
		        count(*) FILTER (WHERE action_taken = 'block'),
		        count(*) FILTER (WHERE action_taken = 'allow')
		 FROM attack_logs`).Scan(&s.TotalRequests, &s.BlockedRequests, &s.AllowedRequests)
	if err != nil {
		return nil, fmt.Errorf("stats totals: %w", err)
	}

	rows, err := db.Pool.Query(ctx,
		`SELECT ip_address, count(*) AS count FROM attack_logs
		 GROUP BY ip_address ORDER BY count DESC LIMIT 5`)
	if err != nil {
		return nil, fmt.Errorf("stats top ips: %w", err)
	}
	for rows.Next() {
		var c IPCount
		if err := rows.Scan(&c.IP, &c.Count); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan top ip: %w", err)
		}
		s.TopIPs = append(s.TopIPs, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = db.Pool.Query(ctx,
		`SELECT t, count(*) FROM attack_logs, unnest(threat_types) AS t
		 GROUP BY t ORDER BY count(*) DESC`)
	if err != nil {
		return nil, fmt.Errorf("stats threat distribution: %w", err)
	}
	for rows.Next() {
		var c TypeCount
		if err := rows.Scan(&c.Type, &c.Count); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan threat type: %w", err)
		}
		s.ThreatDistribution = append(s.ThreatDistribution, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = db.Pool.Query(ctx,
		`SELECT date_trunc('hour', created_at) AS hour, count(*)
		 FROM attack_logs
		 WHERE created_at >= now() - interval '24 hours'
		 GROUP BY hour ORDER BY hour`)
	if err != nil {
		return nil, fmt.Errorf("stats hourly series: %w", err)
	}
	for rows.Next() {
		var hour time.Time
		var count int64
		if err := rows.Scan(&hour, &count); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan hourly bucket: %w", err)
		}
		s.RequestsOverTime = append(s.RequestsOverTime, HourCount{
			Hour:  hour.UTC().Format("15:04"),
			Count: count,
		})
	}
	rows.Close()
	return s, rows.Err()
}

// ---------------------------------------------------------------------------
// Blocked IPs (hard tier)
// ---------------------------------------------------------------------------

const blockedIPColumns = `id, ip_address, reason, expires_at, created_at`

// LookupBlockedIP returns the active hard-block row for ip, or ErrNotFound.
// Expired rows are treated as non-blocking.
func (db *DB) LookupBlockedIP(ctx context.Context, ip string) (*BlockedIP, error) {
	var b BlockedIP
	err := db.Pool.QueryRow(ctx,
		`SELECT `+blockedIPColumns+` FROM blocked_ips
		 WHERE ip_address = $1 AND (expires_at IS NULL OR expires_at > now())`, ip).
		Scan(&b.ID, &b.IPAddress, &b.Reason, &b.ExpiresAt, &b.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup blocked ip: %w", err)
	}
	return &b, nil
}

// ListBlockedIPs returns all hard-block rows, newest first.
func (db *DB) ListBlockedIPs(ctx context.Context) ([]BlockedIP, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT `+blockedIPColumns+` FROM blocked_ips ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list blocked ips: %w", err)
	}
	defer rows.Close()

	ips := []BlockedIP{}
	for rows.Next() {
		var b BlockedIP
		if err := rows.Scan(&b.ID, &b.IPAddress, &b.Reason, &b.ExpiresAt, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan blocked ip: %w", err)
		}
		ips = append(ips, b)
	}
	return ips, rows.Err()
}

// DeleteBlockedIP removes a hard-block row by IP address.
func (db *DB) DeleteBlockedIP(ctx context.Context, ip string) error {
	tag, err := db.Pool.Exec(ctx, `DELETE FROM blocked_ips WHERE ip_address = $1`, ip)
	if err != nil {
		return fmt.Errorf("delete blocked ip: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteExpiredBlockedIPs sweeps rows whose expiry has passed. The read path
// already ignores them; this keeps the table from growing unbounded.
func (db *DB) DeleteExpiredBlockedIPs(ctx context.Context) (int64, error) {
	tag, err := db.Pool.Exec(ctx,
		`DELETE FROM blocked_ips WHERE expires_at IS NOT NULL AND expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("sweep expired blocked ips: %w", err)
	}
	return tag.RowsAffected(), nil
}

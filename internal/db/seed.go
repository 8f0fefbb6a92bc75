package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// SeedRule is one default rule definition applied on first boot.
type SeedRule struct {
	Name    string
	Type    string
	Pattern string
	Score   int
	Action  string
}

// DefaultRules are the baseline rules covering the most common web attack
// vectors. Each pattern is matched case-insensitively against the inspection
// corpus (method + path + query + body). The regex strings are part of the
// external contract and must not be reworded.
var DefaultRules = []SeedRule{
	// SQL injection
	{
		Name:    "SQLi – UNION SELECT",
		Type:    "SQLi",
		Pattern: `union\s+(all\s+)?select`,
		Score:   60,
		Action:  "block",
	},
	{
		Name:    "SQLi – Tautology (OR 1=1)",
		Type:    "SQLi",
		Pattern: `\b(or|and)\b\s+[\w'"]+\s*=\s*[\w'"]+`,
		Score:   40,
		Action:  "block",
	},
	{
		Name:    "SQLi – Inline Comment",
		Type:    "SQLi",
		Pattern: `(--|#|/\*|\*/)`,
		Score:   20,
		Action:  "log",
	},
	{
		Name:    "SQLi – Stacked Queries",
		Type:    "SQLi",
		Pattern: `;\s*(select|insert|update|delete|drop|exec)`,
		Score:   60,
		Action:  "block",
	},
	// Cross-site scripting
	{
		Name:    "XSS – Script Tag",
		Type:    "XSS",
		Pattern: `<\s*script[^>]*>`,
		Score:   60,
		Action:  "block",
	},
	{
		Name:    "XSS – Inline Event Handler",
		Type:    "XSS",
		Pattern: `\bon(load|error|click|mouseover|focus|blur|submit|keydown|keyup)\s*=`,
		Score:   50,
		Action:  "block",
	},
	{
		Name:    "XSS – javascript: Protocol",
		Type:    "XSS",
		Pattern: `javascript\s*:`,
		Score:   50,
		Action:  "block",
	},
	// Path traversal
	{
		Name:    "Path Traversal – Dot-Dot Slash",
		Type:    "PathTraversal",
		Pattern: `(\.\./|\.\.\\|%2e%2e%2f|%2e%2e%5c|\.\.%2f|\.\.%5c)`,
		Score:   50,
		Action:  "block",
	},
	{
		Name:    "Path Traversal – Sensitive Files",
		Type:    "PathTraversal",
		Pattern: `(etc/passwd|etc/shadow|proc/self|win\.ini|system32)`,
		Score:   70,
		Action:  "block",
	},
	// Command injection
	{
		Name:    "CmdInjection – Shell Metacharacters",
		Type:    "CmdInjection",
		Pattern: "[;&|`$]\\s*(ls|cat|id|whoami|uname|curl|wget|bash|sh|cmd|powershell)",
		Score:   70,
		Action:  "block",
	},
	{
		Name:    "CmdInjection – Subshell",
		Type:    "CmdInjection",
		Pattern: "(\\$\\(|`)[^)]*[)|`]",
		Score:   60,
		Action:  "block",
	},
	// SSRF
	{
		Name:    "SSRF – Internal Address",
		Type:    "SSRF",
		Pattern: `(https?://)?(localhost|127\.0\.0\.1|0\.0\.0\.0|169\.254\.|10\.\d+\.\d+\.\d+|172\.(1[6-9]|2\d|3[01])\.\d+\.\d+|192\.168\.)`,
		Score:   40,
		Action:  "log",
	},
}

// SeedDefaultRules inserts DefaultRules when the waf_rules table is empty.
// The count and inserts run inside one transaction, so concurrent boots of
// multiple replicas result in exactly one successful seed.
func (db *DB) SeedDefaultRules(ctx context.Context) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("seed: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var count int64
	if err := tx.QueryRow(ctx, `SELECT count(*) FROM waf_rules`).Scan(&count); err != nil {
		return fmt.Errorf("seed: count rules: %w", err)
	}
	if count > 0 {
		return nil
	}

	for _, r := range DefaultRules {
		if _, err := tx.Exec(ctx,
			`INSERT INTO waf_rules (id, name, type, pattern, score, action, enabled)
			 VALUES ($1, $2, $3, $4, $5, $6, TRUE)`,
			uuid.NewString(), r.Name, r.Type, r.Pattern, r.Score, r.Action); err != nil {
			return fmt.Errorf("seed: insert %q: %w", r.Name, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("seed: commit: %w", err)
	}
	db.logger.Info("seeded default rules", "count", len(DefaultRules))
	return nil
}

// Package engine scores a normalized request against the enabled rule set.
// Inspection is a pure function of the rule set and the request triple; the
// engine performs no I/O.
package engine

import (
	"net/url"
	"regexp"
	"strings"
	"sync"

	"github.com/mini-waf/waf-go/internal/db"
)

// Decision values for Result.Action and AttackLog.ActionTaken.
const (
	ActionAllow = "allow"
	ActionBlock = "block"
)

// Result is the outcome of inspecting one request.
type Result struct {
	Score  int
	Types  []string
	Action string
}

// Engine evaluates rules against an inspection corpus. Compiled patterns are
// cached by pattern text; a malformed pattern is cached as nil and skipped
// on every subsequent request.
type Engine struct {
	threshold int

	mu    sync.RWMutex
	cache map[string]*regexp.Regexp
}

// New creates an engine that blocks at score >= threshold.
func New(threshold int) *Engine {
	return &Engine{
		threshold: threshold,
		cache:     make(map[string]*regexp.Regexp),
	}
}

// Threshold returns the configured block threshold.
func (e *Engine) Threshold() int {
	return e.threshold
}

// Inspect scores the request against every rule in rules. All rules are
// evaluated (no short-circuit); the score is the sum across matches and the
// returned types are deduplicated in first-match order. The action is
// ActionBlock iff the total score reaches the threshold.
func (e *Engine) Inspect(rules []db.Rule, method, path, query, body string) Result {
	corpus := buildCorpus(method, path, query, body)

	res := Result{Types: []string{}, Action: ActionAllow}
	seen := make(map[string]bool)

	for _, rule := range rules {
		re := e.compiled(rule.Pattern)
		if re == nil {
			continue
		}
		if re.MatchString(corpus) {
			res.Score += rule.Score
			if !seen[rule.Type] {
				seen[rule.Type] = true
				res.Types = append(res.Types, rule.Type)
			}
		}
	}

	if res.Score >= e.threshold {
		res.Action = ActionBlock
	}
	return res
}

// buildCorpus joins method, path, query, and body with newlines, skipping
// empty query and body. Headers are deliberately excluded to avoid false
// positives from values like Content-Type. The query is inspected through a
// percent-decoded view so that encoded payloads ("UNION%20SELECT") cannot
// slip past whitespace patterns; if decoding fails the raw string is used.
func buildCorpus(method, path, query, body string) string {
	parts := []string{method, path}
	if query != "" {
		if decoded, err := url.QueryUnescape(query); err == nil {
			query = decoded
		}
		parts = append(parts, query)
	}
	if body != "" {
		parts = append(parts, body)
	}
	return strings.Join(parts, "\n")
}

// compiled returns the case-insensitive compiled form of pattern, or nil if
// the pattern does not compile. Malformed patterns are never fatal.
func (e *Engine) compiled(pattern string) *regexp.Regexp {
	e.mu.RLock()
	re, ok := e.cache[pattern]
	e.mu.RUnlock()
	if ok {
		return re
	}

	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		re = nil
	}
	e.mu.Lock()
	e.cache[pattern] = re
	e.mu.Unlock()
	return re
}

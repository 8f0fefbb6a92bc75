package db

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRulesIntegrity(t *testing.T) {
	require.Len(t, DefaultRules, 12)

	names := map[string]bool{}
	categories := map[string]int{}
	for _, r := range DefaultRules {
		assert.False(t, names[r.Name], "duplicate rule name %q", r.Name)
		names[r.Name] = true
		categories[r.Type]++

		assert.NotEmpty(t, r.Pattern, "%s has an empty pattern", r.Name)
		_, err := regexp.Compile("(?i)" + r.Pattern)
		assert.NoError(t, err, "%s pattern must compile", r.Name)

		assert.GreaterOrEqual(t, r.Score, 0, "%s score must be non-negative", r.Name)
		assert.Contains(t, []string{"block", "log"}, r.Action, "%s action", r.Name)
	}

	assert.Equal(t, map[string]int{
		"SQLi":          4,
		"XSS":           3,
		"PathTraversal": 2,
		"CmdInjection":  2,
		"SSRF":          1,
	}, categories)
}

func TestDefaultRuleScores(t *testing.T) {
	scores := map[string]int{}
	for _, r := range DefaultRules {
		scores[r.Name] = r.Score
	}

	// These exact values are part of the external contract.
	assert.Equal(t, 60, scores["SQLi – UNION SELECT"])
	assert.Equal(t, 40, scores["SQLi – Tautology (OR 1=1)"])
	assert.Equal(t, 20, scores["SQLi – Inline Comment"])
	assert.Equal(t, 60, scores["SQLi – Stacked Queries"])
	assert.Equal(t, 60, scores["XSS – Script Tag"])
	assert.Equal(t, 50, scores["XSS – Inline Event Handler"])
	assert.Equal(t, 50, scores["XSS – javascript: Protocol"])
	assert.Equal(t, 50, scores["Path Traversal – Dot-Dot Slash"])
	assert.Equal(t, 70, scores["Path Traversal – Sensitive Files"])
	assert.Equal(t, 70, scores["CmdInjection – Shell Metacharacters"])
	assert.Equal(t, 60, scores["CmdInjection – Subshell"])
	assert.Equal(t, 40, scores["SSRF – Internal Address"])
}

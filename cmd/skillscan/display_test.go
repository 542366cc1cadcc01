package main

import (
	"bytes"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/skill-scanner/internal/model"
	"github.com/yourorg/skill-scanner/internal/scanner"
)

func TestSplitRepo(t *testing.T) {
	for _, arg := range []string{"acme/tools", "https://github.com/acme/tools", "github.com/acme/tools.git", "acme/tools/"} {
		owner, repo, err := splitRepo(arg)
		require.NoError(t, err, arg)
		assert.Equal(t, "acme", owner)
		assert.Equal(t, "tools", repo)
	}
	for _, arg := range []string{"acme", "/tools", "acme/tools/extra"} {
		_, _, err := splitRepo(arg)
		assert.Error(t, err, arg)
	}
}

func TestPrintVerdict(t *testing.T) {
	color.NoColor = true
	p := &model.ResultPayload{
		Owner: "acme", Name: "deploy", TrustStatus: model.TrustCaution,
		RiskScore: 5.5, Confidence: 80, Summary: "Reads env and posts it.",
		Details: model.ResultDetails{Categories: map[string]model.Evidence{
			model.CategorySecretAccess:     {Detected: true, Evidence: []string{"index.js:1 reads .env"}},
			model.CategoryDataExfiltration: {Detected: true, Evidence: []string{"index.js:2 fetch"}},
			model.CategoryObfuscation:      {Detected: false},
		}},
	}
	var buf bytes.Buffer
	printVerdict(&buf, p)
	out := buf.String()

	assert.Contains(t, out, "⚠ acme/deploy caution risk=5.5 confidence=80%")
	assert.Contains(t, out, "index.js:1 reads .env")
	assert.NotContains(t, out, model.CategoryObfuscation)
	assert.Less(t, bytes.Index(buf.Bytes(), []byte(model.CategoryDataExfiltration)), bytes.Index(buf.Bytes(), []byte(model.CategorySecretAccess)))
}

func TestMerge(t *testing.T) {
	total := &scanner.Outcome{}
	merge(total, nil)
	merge(total, &scanner.Outcome{Scanned: 1, Failed: 2})
	merge(total, &scanner.Outcome{Skipped: 3})
	assert.Equal(t, 1, total.Scanned)
	assert.Equal(t, 3, total.Skipped)
	assert.Equal(t, 2, total.Failed)
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/skill-scanner/internal/clawhub"
	"github.com/yourorg/skill-scanner/internal/db"
)

type stubRegistry struct {
	detail *clawhub.Detail
	err    error
}

func (r stubRegistry) Skill(ctx context.Context, slug string) (*clawhub.Detail, error) {
	return r.detail, r.err
}

type recordingResults struct {
	written map[string]json.RawMessage
}

func (r *recordingResults) UpdateResultDetails(ctx context.Context, id string, details json.RawMessage) error {
	if r.written == nil {
		r.written = map[string]json.RawMessage{}
	}
	r.written[id] = details
	return nil
}

func candidate(details string) db.BackfillCandidate {
	id := "r1"
	return db.BackfillCandidate{SkillID: "s1", Owner: "alice", Name: "weather", Slug: "weather", ResultID: &id, Details: json.RawMessage(details)}
}

var moderated = &clawhub.Detail{
	Summary:    clawhub.Summary{Slug: "weather"},
	Moderation: &clawhub.Moderation{IsSuspicious: true},
}

func TestBackfillMergesExternalScans(t *testing.T) {
	store := &recordingResults{}
	res, err := backfillOne(t.Context(), stubRegistry{detail: moderated}, store,
		candidate(`{"obfuscation":{"detected":false,"evidence":[]}}`), false, time.Now())
	require.NoError(t, err)
	assert.Equal(t, updated, res)

	var got map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(store.written["r1"], &got))
	assert.Contains(t, got, "obfuscation")
	assert.Contains(t, string(got["external_scans"]), `"suspicious"`)
}

func TestBackfillSkips(t *testing.T) {
	store := &recordingResults{}

	res, err := backfillOne(t.Context(), stubRegistry{detail: moderated}, store,
		candidate(`{"external_scans":{"providers":[]}}`), false, time.Now())
	require.NoError(t, err)
	assert.Equal(t, alreadyHas, res)

	noResult := candidate("")
	noResult.ResultID = nil
	res, err = backfillOne(t.Context(), stubRegistry{detail: moderated}, store, noResult, false, time.Now())
	require.NoError(t, err)
	assert.Equal(t, skipped, res)

	res, err = backfillOne(t.Context(), stubRegistry{detail: &clawhub.Detail{}}, store, candidate(`{}`), false, time.Now())
	require.NoError(t, err)
	assert.Equal(t, skipped, res)

	res, err = backfillOne(t.Context(), stubRegistry{detail: moderated}, store, candidate(`{}`), true, time.Now())
	require.NoError(t, err)
	assert.Equal(t, updated, res)
	assert.Empty(t, store.written)
}

func TestBackfillRegistryFailure(t *testing.T) {
	res, err := backfillOne(t.Context(), stubRegistry{err: errors.New("502")}, &recordingResults{}, candidate(`{}`), false, time.Now())
	assert.Error(t, err)
	assert.Equal(t, failed, res)
}

package db

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/skill-scanner/internal/model"
)

func TestSplitProgress(t *testing.T) {
	stage, detail := splitProgress("analyze: acme/tools: fmt")
	assert.Equal(t, "analyze", stage)
	assert.Equal(t, "acme/tools: fmt", detail)

	stage, detail = splitProgress("done")
	assert.Equal(t, "done", stage)
	assert.Empty(t, detail)
}

// openTestStore connects to TEST_DATABASE_URL and skips when it is unset.
func openTestStore(t *testing.T) *Store {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	s, err := Open(t.Context(), url)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	require.NoError(t, s.EnsureSchema(t.Context()))
	_, err = s.Pool.Exec(t.Context(), `TRUNCATE skills CASCADE`)
	require.NoError(t, err)
	return s
}

func TestQueueLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := t.Context()

	id, created, err := s.Enqueue(ctx, model.JobRequest{Owner: "acme", Name: "tools", Repo: "acme/tools"})
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := s.Enqueue(ctx, model.JobRequest{Owner: "acme", Name: "tools"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, id, again)

	jobs, err := s.FetchQueued(ctx, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "acme", jobs[0].Owner)
	require.NotNil(t, jobs[0].Repo)
	assert.Equal(t, "acme/tools", *jobs[0].Repo)

	ok, err := s.Claim(ctx, id, "m")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.Claim(ctx, id, "m")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.UpdateProgress(ctx, id, 60, "analyze: tools"))

	_, err = s.Pool.Exec(ctx, `UPDATE scan_jobs SET started_at=now() - interval '2 hours', error_message='boom' WHERE id=$1`, id)
	require.NoError(t, err)
	n, err := s.ResetStale(ctx, 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	var status string
	var errMsg *string
	require.NoError(t, s.Pool.QueryRow(ctx, `SELECT status, error_message FROM scan_jobs WHERE id=$1`, id).Scan(&status, &errMsg))
	assert.Equal(t, model.JobQueued, status)
	assert.Nil(t, errMsg)

	require.NoError(t, s.MarkFailed(ctx, id, "late failure from a reclaimed run"))
	require.NoError(t, s.Pool.QueryRow(ctx, `SELECT status FROM scan_jobs WHERE id=$1`, id).Scan(&status))
	assert.Equal(t, model.JobQueued, status)

	ok, err = s.Claim(ctx, id, "m")
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, s.MarkCompleted(ctx, id))
	require.NoError(t, s.MarkFailed(ctx, id, "late"))
	require.NoError(t, s.Pool.QueryRow(ctx, `SELECT status FROM scan_jobs WHERE id=$1`, id).Scan(&status))
	assert.Equal(t, model.JobCompleted, status)
}

package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yourorg/skill-scanner/internal/model"
)

type Store struct{ Pool *pgxpool.Pool }

func Open(ctx context.Context, url string) (*Store, error) {
	p, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, err
	}
	return &Store{Pool: p}, nil
}

func (s *Store) Close() { s.Pool.Close() }

func (s *Store) notifyJobChanged(ctx context.Context, id string) {
	_, _ = s.Pool.Exec(ctx, `SELECT pg_notify('job_events', $1)`, id)
}

// ResetStale requeues running jobs whose start is older than olderThan.
// Their start time and error are cleared so the next claim starts fresh.
func (s *Store) ResetStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	seconds := int64(olderThan.Seconds())
	if seconds <= 0 {
		return 0, nil
	}
	tag, err := s.Pool.Exec(ctx, `
		UPDATE scan_jobs
		SET status='queued',
		    started_at=NULL,
		    error_message=NULL,
		    progress_pct=0,
		    progress_msg='re-queued: previous run went stale'
		WHERE status='running'
		  AND started_at < now() - ($1::bigint * interval '1 second')
	`, seconds)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// FetchQueued returns the oldest queued jobs joined with their skill.
func (s *Store) FetchQueued(ctx context.Context, limit int) ([]model.QueuedJob, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.Pool.Query(ctx, `
		SELECT j.id::text, j.skill_id::text, j.status, COALESCE(j.source, ''), j.created_at, j.started_at, j.error_message,
		       sk.owner, sk.name, sk.repo, sk.source, sk.clawhub_slug
		FROM scan_jobs j
		JOIN skills sk ON sk.id = j.skill_id
		WHERE j.status='queued'
		ORDER BY j.created_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.QueuedJob, 0, limit)
	for rows.Next() {
		var j model.QueuedJob
		if err := rows.Scan(&j.ID, &j.SkillID, &j.Status, &j.Source, &j.CreatedAt, &j.StartedAt, &j.ErrorMessage,
			&j.Owner, &j.Name, &j.Repo, &j.SkillSource, &j.ClawHubSlug); err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Claim moves a job from queued to running. Only one caller can win.
func (s *Store) Claim(ctx context.Context, id, modelID string) (bool, error) {
	tag, err := s.Pool.Exec(ctx, `
		UPDATE scan_jobs
		SET status='running', started_at=now(), model=$2, progress_pct=0, progress_msg='starting'
		WHERE id=$1
		  AND status='queued'
	`, id, modelID)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	s.notifyJobChanged(ctx, id)
	return true, nil
}

// UpdateProgress raises the job's progress and appends a scan event in one
// round trip. Progress never moves backwards.
func (s *Store) UpdateProgress(ctx context.Context, id string, pct int, msg string) error {
	stage, detail := splitProgress(msg)
	b := &pgx.Batch{}
	b.Queue(`
		UPDATE scan_jobs
		SET progress_pct=GREATEST(progress_pct, $2),
		    progress_msg=CASE WHEN $2 >= progress_pct THEN $3 ELSE progress_msg END
		WHERE id=$1
		  AND status='running'
	`, id, pct, msg)
	b.Queue(`
		INSERT INTO scan_events (job_id, ts, stage, detail, pct)
		VALUES ($1, now(), $2, $3, $4)
	`, id, stage, detail, pct)
	return s.Pool.SendBatch(ctx, b).Close()
}

func splitProgress(msg string) (stage, detail string) {
	stage, detail, _ = strings.Cut(msg, ": ")
	return stage, detail
}

func (s *Store) MarkCompleted(ctx context.Context, id string) error {
	_, err := s.Pool.Exec(ctx, `
		UPDATE scan_jobs
		SET status='completed',
		    completed_at=now(),
		    progress_pct=100,
		    progress_msg='done'
		WHERE id=$1
		  AND status='running'
	`, id)
	if err == nil {
		s.notifyJobChanged(ctx, id)
	}
	return err
}

func (s *Store) MarkFailed(ctx context.Context, id, errMsg string) error {
	_, err := s.Pool.Exec(ctx, `
		UPDATE scan_jobs
		SET status='failed',
		    completed_at=now(),
		    error_message=$2,
		    progress_msg=COALESCE(progress_msg, $2)
		WHERE id=$1
		  AND status='running'
	`, id, errMsg)
	if err == nil {
		s.notifyJobChanged(ctx, id)
	}
	return err
}

// Enqueue records the skill if it is new and queues a scan for it. A skill
// that already has a queued or running job gets that job's id back with
// created=false.
func (s *Store) Enqueue(ctx context.Context, req model.JobRequest) (id string, created bool, err error) {
	if req.Source == "" {
		req.Source = model.SourceGitHub
	}
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return "", false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var skillID string
	err = tx.QueryRow(ctx, `
		INSERT INTO skills (id, owner, name, repo, source, clawhub_slug)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, NULLIF($6, ''))
		ON CONFLICT (owner, name) DO UPDATE
		SET repo=COALESCE(EXCLUDED.repo, skills.repo),
		    clawhub_slug=COALESCE(EXCLUDED.clawhub_slug, skills.clawhub_slug)
		RETURNING id::text
	`, uuid.NewString(), req.Owner, req.Name, req.Repo, req.Source, req.ClawHubSlug).Scan(&skillID)
	if err != nil {
		return "", false, fmt.Errorf("upsert skill %s/%s: %w", req.Owner, req.Name, err)
	}

	err = tx.QueryRow(ctx, `
		SELECT id::text FROM scan_jobs
		WHERE skill_id=$1 AND status IN ('queued','running')
		ORDER BY created_at
		LIMIT 1
	`, skillID).Scan(&id)
	switch {
	case err == nil:
		return id, false, tx.Commit(ctx)
	case !errors.Is(err, pgx.ErrNoRows):
		return "", false, err
	}

	id = uuid.NewString()
	if _, err := tx.Exec(ctx, `
		INSERT INTO scan_jobs (id, skill_id, status, source)
		VALUES ($1, $2, 'queued', $3)
	`, id, skillID, req.Source); err != nil {
		return "", false, fmt.Errorf("insert job: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return "", false, err
	}
	s.notifyJobChanged(ctx, id)
	return id, true, nil
}

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.Pool.Ping(ctx)
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.Pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS skills (
  id UUID PRIMARY KEY,
  owner TEXT NOT NULL,
  name TEXT NOT NULL,
  repo TEXT,
  source TEXT NOT NULL DEFAULT 'github' CHECK (source IN ('github','clawhub')),
  clawhub_slug TEXT,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  UNIQUE(owner, name)
);

CREATE TABLE IF NOT EXISTS scan_jobs (
  id UUID PRIMARY KEY,
  skill_id UUID NOT NULL REFERENCES skills(id) ON DELETE CASCADE,
  status TEXT NOT NULL CHECK (status IN ('queued','running','completed','failed')),
  source TEXT,
  model TEXT,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  started_at TIMESTAMPTZ,
  completed_at TIMESTAMPTZ,
  progress_pct INTEGER NOT NULL DEFAULT 0 CHECK (progress_pct BETWEEN 0 AND 100),
  progress_msg TEXT,
  error_message TEXT
);

CREATE INDEX IF NOT EXISTS idx_scan_jobs_status_created ON scan_jobs (status, created_at);
CREATE INDEX IF NOT EXISTS idx_scan_jobs_skill_status ON scan_jobs (skill_id, status);

CREATE TABLE IF NOT EXISTS scan_events (
  id BIGSERIAL PRIMARY KEY,
  job_id UUID NOT NULL REFERENCES scan_jobs(id) ON DELETE CASCADE,
  ts TIMESTAMPTZ NOT NULL DEFAULT now(),
  stage TEXT NOT NULL,
  detail TEXT NOT NULL,
  pct SMALLINT
);

CREATE INDEX IF NOT EXISTS idx_scan_events_job_ts ON scan_events (job_id, ts);

CREATE TABLE IF NOT EXISTS scan_results (
  id UUID PRIMARY KEY,
  skill_id UUID NOT NULL REFERENCES skills(id) ON DELETE CASCADE,
  commit_hash TEXT NOT NULL,
  trust_status TEXT NOT NULL,
  risk_score DOUBLE PRECISION NOT NULL,
  details JSONB NOT NULL DEFAULT '{}'::jsonb,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_scan_results_skill_created ON scan_results (skill_id, created_at DESC);
`)
	return err
}

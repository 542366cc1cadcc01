// Package localdb is a SQLite scan queue for running the worker without a
// PostgreSQL server. It implements the same conditional transitions as the
// server store.
package localdb

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/yourorg/skill-scanner/internal/model"
)

type Store struct {
	db  *sql.DB
	now func() time.Time

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// Open opens or creates the queue database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	s := &Store{db: db, now: time.Now, entropy: ulid.Monotonic(rand.Reader, 0)}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.db.PingContext(ctx)
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS skills (
	  id           TEXT PRIMARY KEY,
	  owner        TEXT NOT NULL,
	  name         TEXT NOT NULL,
	  repo         TEXT,
	  source       TEXT NOT NULL DEFAULT 'github',
	  clawhub_slug TEXT,
	  created_at   INTEGER NOT NULL,
	  UNIQUE(owner, name)
	);

	CREATE TABLE IF NOT EXISTS scan_jobs (
	  id            TEXT PRIMARY KEY,
	  skill_id      TEXT NOT NULL REFERENCES skills(id) ON DELETE CASCADE,
	  status        TEXT NOT NULL,
	  source        TEXT,
	  model         TEXT,
	  created_at    INTEGER NOT NULL,
	  started_at    INTEGER,
	  completed_at  INTEGER,
	  progress_pct  INTEGER NOT NULL DEFAULT 0,
	  progress_msg  TEXT,
	  error_message TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_scan_jobs_status_created ON scan_jobs(status, created_at);

	CREATE TABLE IF NOT EXISTS scan_events (
	  id      INTEGER PRIMARY KEY AUTOINCREMENT,
	  job_id  TEXT NOT NULL REFERENCES scan_jobs(id) ON DELETE CASCADE,
	  ts      INTEGER NOT NULL,
	  stage   TEXT NOT NULL,
	  detail  TEXT NOT NULL,
	  pct     INTEGER
	);
	`)
	if err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}
	return nil
}

func (s *Store) newID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(s.now()), s.entropy).String()
}

func (s *Store) stamp() int64 { return s.now().UnixMilli() }

// Enqueue records the skill if new and queues a scan for it, returning the
// existing job when one is already queued or running.
func (s *Store) Enqueue(ctx context.Context, req model.JobRequest) (id string, created bool, err error) {
	if req.Source == "" {
		req.Source = model.SourceGitHub
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", false, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO skills (id, owner, name, repo, source, clawhub_slug, created_at)
		VALUES (?, ?, ?, NULLIF(?, ''), ?, NULLIF(?, ''), ?)
		ON CONFLICT (owner, name) DO UPDATE
		SET repo=COALESCE(excluded.repo, skills.repo),
		    clawhub_slug=COALESCE(excluded.clawhub_slug, skills.clawhub_slug)
	`, s.newID(), req.Owner, req.Name, req.Repo, req.Source, req.ClawHubSlug, s.stamp())
	if err != nil {
		return "", false, fmt.Errorf("upsert skill %s/%s: %w", req.Owner, req.Name, err)
	}
	var skillID string
	if err := tx.QueryRowContext(ctx, `SELECT id FROM skills WHERE owner=? AND name=?`, req.Owner, req.Name).Scan(&skillID); err != nil {
		return "", false, err
	}

	err = tx.QueryRowContext(ctx, `
		SELECT id FROM scan_jobs
		WHERE skill_id=? AND status IN ('queued','running')
		ORDER BY created_at, id
		LIMIT 1
	`, skillID).Scan(&id)
	switch {
	case err == nil:
		return id, false, tx.Commit()
	case !errors.Is(err, sql.ErrNoRows):
		return "", false, err
	}

	id = s.newID()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO scan_jobs (id, skill_id, status, source, created_at)
		VALUES (?, ?, 'queued', ?, ?)
	`, id, skillID, req.Source, s.stamp()); err != nil {
		return "", false, fmt.Errorf("insert job: %w", err)
	}
	return id, true, tx.Commit()
}

func (s *Store) ResetStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, nil
	}
	cutoff := s.now().Add(-olderThan).UnixMilli()
	res, err := s.db.ExecContext(ctx, `
		UPDATE scan_jobs
		SET status='queued', started_at=NULL, error_message=NULL, progress_pct=0,
		    progress_msg='re-queued: previous run went stale'
		WHERE status='running' AND started_at < ?
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) FetchQueued(ctx context.Context, limit int) ([]model.QueuedJob, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT j.id, j.skill_id, j.status, COALESCE(j.source, ''), j.created_at, j.started_at, j.error_message,
		       sk.owner, sk.name, sk.repo, sk.source, sk.clawhub_slug
		FROM scan_jobs j
		JOIN skills sk ON sk.id = j.skill_id
		WHERE j.status='queued'
		ORDER BY j.created_at, j.id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.QueuedJob
	for rows.Next() {
		var (
			j       model.QueuedJob
			created int64
			started sql.NullInt64
			errMsg  sql.NullString
			repo    sql.NullString
			slug    sql.NullString
		)
		if err := rows.Scan(&j.ID, &j.SkillID, &j.Status, &j.Source, &created, &started, &errMsg,
			&j.Owner, &j.Name, &repo, &j.SkillSource, &slug); err != nil {
			return nil, err
		}
		j.CreatedAt = time.UnixMilli(created)
		if started.Valid {
			t := time.UnixMilli(started.Int64)
			j.StartedAt = &t
		}
		j.ErrorMessage = nullable(errMsg)
		j.Repo = nullable(repo)
		j.ClawHubSlug = nullable(slug)
		out = append(out, j)
	}
	return out, rows.Err()
}

func nullable(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}

func (s *Store) Claim(ctx context.Context, id, modelID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE scan_jobs
		SET status='running', started_at=?, model=?, progress_pct=0, progress_msg='starting'
		WHERE id=? AND status='queued'
	`, s.stamp(), modelID, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (s *Store) UpdateProgress(ctx context.Context, id string, pct int, msg string) error {
	stage, detail, _ := strings.Cut(msg, ": ")
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `
		UPDATE scan_jobs
		SET progress_msg=CASE WHEN ? >= progress_pct THEN ? ELSE progress_msg END,
		    progress_pct=MAX(progress_pct, ?)
		WHERE id=? AND status='running'
	`, pct, msg, pct, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO scan_events (job_id, ts, stage, detail, pct) VALUES (?, ?, ?, ?, ?)
	`, id, s.stamp(), stage, detail, pct); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) MarkCompleted(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE scan_jobs
		SET status='completed', completed_at=?, progress_pct=100, progress_msg='done'
		WHERE id=? AND status='running'
	`, s.stamp(), id)
	return err
}

func (s *Store) MarkFailed(ctx context.Context, id, errMsg string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE scan_jobs
		SET status='failed', completed_at=?, error_message=?, progress_msg=COALESCE(progress_msg, ?)
		WHERE id=? AND status='running'
	`, s.stamp(), errMsg, errMsg, id)
	return err
}

// JobStatus is a job's row as shown by the CLI.
type JobStatus struct {
	ID          string
	Owner       string
	Name        string
	Status      string
	ProgressPct int
	Error       *string
}

// Jobs lists jobs newest first.
func (s *Store) Jobs(ctx context.Context, limit int) ([]JobStatus, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT j.id, sk.owner, sk.name, j.status, j.progress_pct, j.error_message
		FROM scan_jobs j JOIN skills sk ON sk.id = j.skill_id
		ORDER BY j.created_at DESC, j.id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []JobStatus
	for rows.Next() {
		var (
			js     JobStatus
			errMsg sql.NullString
		)
		if err := rows.Scan(&js.ID, &js.Owner, &js.Name, &js.Status, &js.ProgressPct, &errMsg); err != nil {
			return nil, err
		}
		js.Error = nullable(errMsg)
		out = append(out, js)
	}
	return out, rows.Err()
}

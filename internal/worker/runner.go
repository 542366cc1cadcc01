// Package worker drains the scan job queue: it recovers stale jobs, claims
// queued ones, dispatches each to the matching scan flow and records the
// outcome.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/yourorg/skill-scanner/internal/model"
	"github.com/yourorg/skill-scanner/internal/scanner"
)

// MaxErrorLen bounds the error message stored on a failed job.
const MaxErrorLen = 2000

// ErrClaimLost means another consumer moved the job out of queued first.
var ErrClaimLost = errors.New("job no longer queued")

type ProgressStore interface {
	UpdateProgress(ctx context.Context, jobID string, pct int, msg string) error
}

// JobStore is the queue. Every transition is conditional on the job's
// current status.
type JobStore interface {
	ProgressStore
	// ResetStale moves running jobs started before now-olderThan back to
	// queued with their start time and error cleared.
	ResetStale(ctx context.Context, olderThan time.Duration) (int64, error)
	// FetchQueued returns up to limit queued jobs, oldest first.
	FetchQueued(ctx context.Context, limit int) ([]model.QueuedJob, error)
	// Claim moves a job from queued to running. It reports false when the
	// job was no longer queued.
	Claim(ctx context.Context, jobID, modelID string) (bool, error)
	MarkCompleted(ctx context.Context, jobID string) error
	MarkFailed(ctx context.Context, jobID, msg string) error
}

type Flows interface {
	ScanRepo(ctx context.Context, owner, repo string, opts scanner.Options, report scanner.Reporter) (*scanner.Outcome, error)
	ScanPackage(ctx context.Context, slug string, opts scanner.Options, report scanner.Reporter) (*scanner.Outcome, error)
}

type Options struct {
	Limit      int
	StaleAfter time.Duration
	// MaxIdle caps the poll backoff of RunForever.
	MaxIdle time.Duration
	Model   string
	DryRun  bool
	Force   bool
}

type Runner struct {
	store JobStore
	flows Flows
	opts  Options
}

func NewRunner(store JobStore, flows Flows, opts Options) *Runner {
	if opts.Limit <= 0 {
		opts.Limit = 10
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = 30 * time.Minute
	}
	if opts.MaxIdle <= 0 {
		opts.MaxIdle = 5 * time.Second
	}
	return &Runner{store: store, flows: flows, opts: opts}
}

// Summary counts the jobs one Drain call handled.
type Summary struct {
	Fetched   int
	Completed int
	Failed    int
	Lost      int
}

// Drain processes one batch of queued jobs in creation order. A failing job
// is recorded and never aborts the batch; only store errors before the
// batch starts are returned.
func (r *Runner) Drain(ctx context.Context) (Summary, error) {
	var sum Summary
	if !r.opts.DryRun {
		n, err := r.store.ResetStale(ctx, r.opts.StaleAfter)
		if err != nil {
			return sum, fmt.Errorf("reset stale jobs: %w", err)
		}
		if n > 0 {
			log.Printf("reset %d stale job(s) to queued", n)
		}
	}

	jobs, err := r.store.FetchQueued(ctx, r.opts.Limit)
	if err != nil {
		return sum, fmt.Errorf("fetch queued jobs: %w", err)
	}
	sum.Fetched = len(jobs)
	for _, j := range jobs {
		if ctx.Err() != nil {
			break
		}
		err := r.process(ctx, j)
		switch {
		case errors.Is(err, ErrClaimLost):
			log.Printf("job %s: claimed by another consumer, skipping", j.ID)
			sum.Lost++
		case err != nil:
			sum.Failed++
		default:
			sum.Completed++
		}
	}
	if sum.Fetched > 0 {
		log.Printf("queue batch: %d completed, %d failed, %d skipped", sum.Completed, sum.Failed, sum.Lost)
	}
	return sum, nil
}

func (r *Runner) process(ctx context.Context, j model.QueuedJob) error {
	if !r.opts.DryRun {
		ok, err := r.store.Claim(ctx, j.ID, r.opts.Model)
		if err != nil {
			return fmt.Errorf("claim: %w", err)
		}
		if !ok {
			return ErrClaimLost
		}
	}
	log.Printf("job %s: starting (%s/%s source=%s)", j.ID, j.Owner, j.Name, sourceOf(j))

	report, stop := r.reporter(ctx, j.ID)
	report("start", j.Owner+"/"+j.Name)
	err := r.dispatch(ctx, j, report)
	stop()

	if r.opts.DryRun {
		if err != nil {
			log.Printf("job %s: failed: %v", j.ID, err)
		}
		return err
	}

	dbctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err != nil {
		log.Printf("job %s: failed: %v", j.ID, err)
		if merr := r.store.MarkFailed(dbctx, j.ID, Truncate(err.Error(), MaxErrorLen)); merr != nil {
			log.Printf("job %s: mark failed error: %v", j.ID, merr)
		}
		return err
	}
	if err := r.store.MarkCompleted(dbctx, j.ID); err != nil {
		log.Printf("job %s: mark completed error: %v", j.ID, err)
		_ = r.store.MarkFailed(dbctx, j.ID, Truncate("mark completed: "+err.Error(), MaxErrorLen))
		return err
	}
	log.Printf("job %s: completed", j.ID)
	return nil
}

func (r *Runner) reporter(ctx context.Context, jobID string) (scanner.Reporter, func()) {
	if r.opts.DryRun {
		return func(stage, detail string) {
			log.Printf("job %s: %s %s", jobID, stage, detail)
		}, func() {}
	}
	return TrackProgress(ctx, r.store, jobID)
}

func sourceOf(j model.QueuedJob) string {
	if j.Source != "" {
		return j.Source
	}
	return j.SkillSource
}

// Target is where a job's flow points.
type Target struct {
	Source string
	Slug   string
	Owner  string
	Repo   string
}

// Resolve maps a job onto its flow target. Registry jobs fall back to
// owner/name as the slug; repository jobs split the stored owner/repo and
// fall back to the skill's own owner and name when it is malformed.
func Resolve(j model.QueuedJob) Target {
	t := Target{Source: sourceOf(j)}
	if t.Source == model.SourceClawHub {
		t.Slug = j.Owner + "/" + j.Name
		if j.ClawHubSlug != nil && *j.ClawHubSlug != "" {
			t.Slug = *j.ClawHubSlug
		}
		return t
	}
	t.Owner, t.Repo = j.Owner, j.Name
	if j.Repo != nil {
		if owner, repo, ok := strings.Cut(*j.Repo, "/"); ok && owner != "" && repo != "" && !strings.Contains(repo, "/") {
			t.Owner, t.Repo = owner, repo
		}
	}
	return t
}

func (r *Runner) dispatch(ctx context.Context, j model.QueuedJob, report scanner.Reporter) error {
	opts := scanner.Options{DryRun: r.opts.DryRun, Force: r.opts.Force}
	t := Resolve(j)
	var (
		out *scanner.Outcome
		err error
	)
	if t.Source == model.SourceClawHub {
		out, err = r.flows.ScanPackage(ctx, t.Slug, opts, report)
	} else {
		out, err = r.flows.ScanRepo(ctx, t.Owner, t.Repo, opts, report)
	}
	if err != nil {
		return err
	}
	if out != nil {
		log.Printf("job %s: %d scanned, %d skipped, %d failed", j.ID, out.Scanned, out.Skipped, out.Failed)
	}
	return nil
}

// RunForever drains the queue until ctx is cancelled, backing off while
// the queue is empty or the store is unreachable.
func (r *Runner) RunForever(ctx context.Context) error {
	initial := min(500*time.Millisecond, r.opts.MaxIdle)
	backoff := initial
	for {
		if ctx.Err() != nil {
			return nil
		}
		sum, err := r.Drain(ctx)
		if err != nil {
			log.Printf("warning: %v", err)
		}
		if err == nil && sum.Fetched > 0 {
			backoff = initial
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, r.opts.MaxIdle)
	}
}

// Truncate cuts s to at most n bytes without splitting a rune.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

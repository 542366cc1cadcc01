package model

import "time"

const (
	JobQueued    = "queued"
	JobRunning   = "running"
	JobCompleted = "completed"
	JobFailed    = "failed"

	SourceGitHub  = "github"
	SourceClawHub = "clawhub"
)

// QueuedJob is a scan_jobs row joined with the identity of the skill it targets.
type QueuedJob struct {
	ID           string
	SkillID      string
	Status       string
	Source       string
	CreatedAt    time.Time
	StartedAt    *time.Time
	ErrorMessage *string

	Owner       string
	Name        string
	Repo        *string
	SkillSource string
	ClawHubSlug *string
}

// JobRequest identifies the skill a new scan job targets. Repo is
// "owner/repo" for GitHub skills; ClawHubSlug is set for registry packages.
type JobRequest struct {
	Owner       string
	Name        string
	Repo        string
	Source      string
	ClawHubSlug string
}

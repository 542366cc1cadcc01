// Package scanner runs the two end-to-end scan flows: a GitHub repository,
// which may hold several skills, and a single registry package.
package scanner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/yourorg/skill-scanner/internal/analysis"
	"github.com/yourorg/skill-scanner/internal/clawhub"
	"github.com/yourorg/skill-scanner/internal/codecache"
	"github.com/yourorg/skill-scanner/internal/depscan"
	"github.com/yourorg/skill-scanner/internal/engine"
	"github.com/yourorg/skill-scanner/internal/github"
	"github.com/yourorg/skill-scanner/internal/model"
	"github.com/yourorg/skill-scanner/internal/rules"
	"github.com/yourorg/skill-scanner/internal/s3"
	"github.com/yourorg/skill-scanner/internal/sink"
)

// SkillCodeBytes bounds the code shown to the engine for one skill.
const SkillCodeBytes = 150 * 1024

// Stages reported while a flow runs.
const (
	StageFetch    = "fetch"
	StageDiscover = "discover"
	StagePreScan  = "prescan"
	StageAnalyze  = "analyze"
	StageSubmit   = "submit"
	StageDone     = "done"
)

type Repos interface {
	LatestCommit(ctx context.Context, owner, repo string) (string, error)
	Repo(ctx context.Context, owner, repo string) (*github.RepoMeta, error)
	Tree(ctx context.Context, owner, repo, sha string) (*github.Tree, error)
	FetchCode(ctx context.Context, owner, repo string, t *github.Tree, scoped []string) (*github.Fetched, error)
}

type Registry interface {
	Skill(ctx context.Context, slug string) (*clawhub.Detail, error)
	FetchCode(ctx context.Context, d *clawhub.Detail) (*codecache.Cache, bool, error)
}

type Sink interface {
	CanSubmit() bool
	Exists(ctx context.Context, owner, name, commit string) bool
	Submit(ctx context.Context, p *model.ResultPayload) error
}

// Archive keeps a copy of every submitted payload.
type Archive interface {
	PutJSON(ctx context.Context, key string, v any) error
}

type Options struct {
	DryRun bool
	// Force rescans skills the sink already holds a result for.
	Force bool
}

// Reporter receives stage transitions. A nil Reporter is ignored.
type Reporter func(stage, detail string)

func (r Reporter) emit(stage, detail string) {
	if r != nil {
		r(stage, detail)
	}
}

type Scanner struct {
	Repos    Repos
	Registry Registry
	Sink     Sink
	Archive  Archive
	Engine   engine.Engine
	Model    string
	Deps     *depscan.Scanner
	// Out receives dry-run payloads as indented JSON.
	Out io.Writer
	Now func() time.Time
}

// Outcome counts what a flow did with the skills it found.
type Outcome struct {
	Scanned  int
	Skipped  int
	Failed   int
	Payloads []*model.ResultPayload
}

func (s *Scanner) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

type preScan struct {
	static  rules.Result
	flags   []model.StaticFinding
	deps    depscan.Result
	context string
}

func (s *Scanner) preScan(ctx context.Context, cache *codecache.Cache) preScan {
	files := cache.Files()
	p := preScan{static: rules.Run(files), flags: rules.Flags(files)}
	sum := p.static.Summary
	log.Printf("static rules: %d critical, %d warning, %d info", sum.Critical, sum.Warning, sum.Info)
	if s.Deps != nil {
		p.deps = s.Deps.Scan(ctx, files)
		if p.deps.Error != "" {
			log.Printf("warning: dependency scan: %s", p.deps.Error)
		} else {
			log.Printf("dependency scan: %d vulns in %d packages", len(p.deps.Vulnerabilities), p.deps.ScannedPackages)
		}
	}
	p.context = analysis.PreScanContext(p.static, p.deps)
	return p
}

// payload assembles the sink body shared by both flows.
func (s *Scanner) payload(owner, name string, v *model.ScanOutput, pre preScan) *model.ResultPayload {
	details := model.ResultDetails{
		Categories:     v.Details,
		StaticFindings: pre.static.Findings,
		Assessment:     v.StaticFindingsAssessment,
	}
	if pre.static.Summary.Total > 0 {
		sum := pre.static.Summary
		details.StaticSummary = &sum
	}
	about := v.SkillAbout
	return &model.ResultPayload{
		Owner:                    owner,
		Name:                     name,
		TrustStatus:              v.TrustStatus,
		Recommendation:           v.Recommendation,
		RiskScore:                v.RiskScore,
		Summary:                  v.Summary,
		Details:                  details,
		SkillAbout:               &about,
		Model:                    s.Model,
		Confidence:               v.Confidence,
		DependencyVulns:          pre.deps.Vulnerabilities,
		StaticFindingsAssessment: v.StaticFindingsAssessment,
		Intent:                   v.Intent,
		Category:                 v.Category,
		EnforcementNotes:         v.Corrections,
	}
}

// deliver archives and submits p, or prints it in dry-run mode.
func (s *Scanner) deliver(ctx context.Context, p *model.ResultPayload, opts Options, report Reporter) error {
	if opts.DryRun {
		if s.Out != nil {
			b, err := json.MarshalIndent(p, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintf(s.Out, "%s\n", b)
		}
		return nil
	}
	if s.Archive != nil {
		key := s3.ReportKey(p.Owner, p.Name, s.now())
		rep := model.ArchivedReport{ResultPayload: p, EnforcementNotes: p.EnforcementNotes}
		if err := s.Archive.PutJSON(ctx, key, rep); err != nil {
			log.Printf("warning: archiving %s/%s: %v", p.Owner, p.Name, err)
		}
	}
	report.emit(StageSubmit, p.Name)
	return s.Sink.Submit(ctx, p)
}

func (s *Scanner) requireSink(opts Options) error {
	if opts.DryRun || (s.Sink != nil && s.Sink.CanSubmit()) {
		return nil
	}
	return sink.ErrNoAPIKey
}

// finish applies the failure policy: a flow fails only when every skill it
// attempted failed.
func finish(out *Outcome, errs []error) (*Outcome, error) {
	if out.Failed > 0 && out.Scanned == 0 {
		return out, errors.Join(errs...)
	}
	for _, err := range errs {
		log.Printf("warning: %v", err)
	}
	return out, nil
}

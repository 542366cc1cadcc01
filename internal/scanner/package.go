package scanner

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/yourorg/skill-scanner/internal/analysis"
	"github.com/yourorg/skill-scanner/internal/clawhub"
	"github.com/yourorg/skill-scanner/internal/model"
)

// ScanPackage scans the latest version of one registry package. The version
// stands in for a commit in the dedup check and the stored result.
func (s *Scanner) ScanPackage(ctx context.Context, slug string, opts Options, report Reporter) (*Outcome, error) {
	report.emit(StageFetch, slug)
	d, err := s.Registry.Skill(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("registry detail for %s: %w", slug, err)
	}
	if err := s.requireSink(opts); err != nil {
		return nil, err
	}
	owner, name := d.Owner.Handle, d.Name
	log.Printf("processing %s/%s (%s)", owner, name, slug)

	if !opts.Force && !opts.DryRun && s.Sink.Exists(ctx, owner, name, d.LatestVersion) {
		log.Printf("skipping %s: already scanned at version %s", slug, d.LatestVersion)
		return &Outcome{Skipped: 1}, nil
	}

	cache, truncated, err := s.Registry.FetchCode(ctx, d)
	if err != nil {
		return nil, err
	}

	report.emit(StagePreScan, slug)
	pre := s.preScan(ctx, cache)

	report.emit(StageAnalyze, slug)
	verdict, err := analysis.New(s.Engine, s.Model).Analyze(ctx, analysis.Target{
		Owner:   owner,
		Repo:    name,
		Code:    cache.AllCode(),
		PreScan: pre.context,
	})
	if err != nil {
		return &Outcome{Failed: 1}, fmt.Errorf("analyze %s: %w", slug, err)
	}

	p := s.payload(owner, name, verdict, pre)
	fillPackage(p, d, s.now())
	p.WasTruncated = truncated
	if err := s.deliver(ctx, p, opts, report); err != nil {
		return &Outcome{Failed: 1}, fmt.Errorf("submit %s: %w", slug, err)
	}
	report.emit(StageDone, slug)
	return &Outcome{Scanned: 1, Payloads: []*model.ResultPayload{p}}, nil
}

// fillPackage sets the registry identity and its external scan verdicts.
func fillPackage(p *model.ResultPayload, d *clawhub.Detail, now time.Time) {
	downloads, stars := d.Downloads, d.Stars
	p.Description = d.Description
	p.CommitHash = d.LatestVersion
	p.Version = d.LatestVersion
	p.Source = model.SourceClawHub
	p.ClawHubSlug = d.Slug
	p.ClawHubVersion = d.LatestVersion
	p.ClawHubDownloads = &downloads
	p.ClawHubStars = &stars
	p.ClawHubURL = d.URL()
	if d.Security != nil {
		p.ClawHubContentHash = d.Security.SHA256
	}
	p.Details.ExternalScans = clawhub.ExternalScans(d, now)
}

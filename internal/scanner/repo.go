package scanner

import (
	"context"
	"fmt"
	"log"

	"golang.org/x/sync/errgroup"

	"github.com/yourorg/skill-scanner/internal/analysis"
	"github.com/yourorg/skill-scanner/internal/discovery"
	"github.com/yourorg/skill-scanner/internal/github"
	"github.com/yourorg/skill-scanner/internal/model"
)

// ScanRepo scans every skill in owner/repo at its latest commit.
func (s *Scanner) ScanRepo(ctx context.Context, owner, repo string, opts Options, report Reporter) (*Outcome, error) {
	full := owner + "/" + repo
	report.emit(StageFetch, full)

	var (
		commit string
		meta   *github.RepoMeta
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c, err := s.Repos.LatestCommit(gctx, owner, repo)
		if err != nil {
			return fmt.Errorf("latest commit of %s: %w", full, err)
		}
		commit = c
		return nil
	})
	g.Go(func() error {
		m, err := s.Repos.Repo(gctx, owner, repo)
		if err != nil {
			log.Printf("warning: repo metadata for %s: %v", full, err)
			return nil
		}
		meta = m
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	log.Printf("%s: latest commit %s", full, short(commit))

	tree, err := s.Repos.Tree(ctx, owner, repo, commit)
	if err != nil {
		return nil, fmt.Errorf("tree of %s: %w", full, err)
	}
	if tree.Truncated {
		log.Printf("warning: tree of %s is truncated, some files are missing", full)
	}
	paths := tree.Paths()
	if discovery.IsDocumentationOnly(paths) {
		log.Printf("%s: documentation only, nothing to scan", full)
		return &Outcome{}, nil
	}
	if err := s.requireSink(opts); err != nil {
		return nil, err
	}

	var (
		fetched *github.Fetched
		skills  = discovery.FromTree(paths)
	)
	if len(skills) > 0 {
		log.Printf("%s: %d skill(s) found by path", full, len(skills))
		fetched, err = s.Repos.FetchCode(ctx, owner, repo, tree, discovery.Union(skills))
		if err != nil {
			return nil, err
		}
		skills = discovery.Constrain(skills, fetched.Cache)
		for i, sk := range skills {
			if sk.SkillMD == "" {
				continue
			}
			if content, ok := fetched.Cache.Content(sk.SkillMD); ok {
				if d := discovery.Describe(content); d != "" {
					skills[i].Description = d
				}
			}
		}
		if len(skills) == 0 {
			skills = []discovery.Skill{discovery.Implicit(repo, fetched.Cache)}
		}
	} else {
		fetched, err = s.Repos.FetchCode(ctx, owner, repo, tree, nil)
		if err != nil {
			return nil, err
		}
		report.emit(StageDiscover, full)
		d := &discovery.Discoverer{Engine: s.Engine, Model: s.Model}
		skills, err = d.Discover(ctx, owner, repo, fetched.Cache)
		if err != nil {
			return nil, err
		}
	}
	cache := fetched.Cache

	report.emit(StagePreScan, full)
	pre := s.preScan(ctx, cache)
	analyzer := analysis.New(s.Engine, s.Model)

	out := &Outcome{}
	var errs []error
	for _, sk := range skills {
		if !opts.Force && !opts.DryRun && s.Sink.Exists(ctx, owner, sk.Name, commit) {
			log.Printf("skipping %q: already scanned at commit %s", sk.Name, short(commit))
			out.Skipped++
			continue
		}

		report.emit(StageAnalyze, sk.Name)
		t := analysis.Target{Owner: owner, Repo: repo, PreScan: pre.context}
		truncated := fetched.Truncated
		if sk.Implicit {
			t.Code = cache.AllCode()
		} else {
			view := cache.ScopedView(sk.RelevantFiles, SkillCodeBytes)
			t.Skill, t.Description, t.Code = sk.Name, sk.Description, view.Code
			truncated = truncated || view.Truncated
		}
		verdict, err := analyzer.Analyze(ctx, t)
		if err != nil {
			out.Failed++
			errs = append(errs, fmt.Errorf("analyze %s in %s: %w", sk.Name, full, err))
			continue
		}

		p := s.payload(owner, sk.Name, verdict, pre)
		p.Description = sk.Description
		p.Repo = full
		p.CommitHash = commit
		p.Source = model.SourceGitHub
		p.WasTruncated = truncated
		p.PreScanFlags = pre.flags
		if meta != nil {
			stars, forks, private := meta.Stars, meta.Forks, meta.Private
			p.GitHubStars, p.GitHubForks, p.GitHubIsPrivate = &stars, &forks, &private
		}
		if err := s.deliver(ctx, p, opts, report); err != nil {
			out.Failed++
			errs = append(errs, fmt.Errorf("submit %s in %s: %w", sk.Name, full, err))
			continue
		}
		out.Scanned++
		out.Payloads = append(out.Payloads, p)
	}
	if out.Skipped > 0 {
		log.Printf("%s: skipped %d already-scanned skill(s)", full, out.Skipped)
	}
	report.emit(StageDone, full)
	return finish(out, errs)
}

func short(sha string) string {
	if len(sha) > 12 {
		return sha[:12]
	}
	return sha
}

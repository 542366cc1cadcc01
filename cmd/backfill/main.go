// Command backfill copies registry external-scan verdicts onto the latest
// stored result of every registry skill, without rescanning.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"time"

	"github.com/yourorg/skill-scanner/internal/app"
	"github.com/yourorg/skill-scanner/internal/clawhub"
	"github.com/yourorg/skill-scanner/internal/config"
	"github.com/yourorg/skill-scanner/internal/db"
)

func main() {
	var (
		batchSize = flag.Int("batch-size", 25, "number of skills to read per batch")
		maxSkills = flag.Int("limit", 0, "maximum skills to process (0 = unlimited)")
		dryRun    = flag.Bool("dry-run", false, "print what would be written without updating")
	)
	flag.Parse()

	app.LoadEnv()
	cfg := config.Load()
	cfg.MustDatabase()
	ctx := context.Background()

	store, err := app.OpenPostgres(ctx, cfg)
	if err != nil {
		log.Fatalf("db open: %v", err)
	}
	defer store.Close()

	reg := clawhub.New(cfg.ClawHubURL, cfg.ClawHubConvexURL)

	var (
		total  int
		counts = map[outcome]int{}
		after  string
	)
	for {
		if *maxSkills > 0 && total >= *maxSkills {
			break
		}
		limit := *batchSize
		if limit <= 0 {
			limit = 25
		}
		if *maxSkills > 0 && total+limit > *maxSkills {
			limit = *maxSkills - total
		}

		listCtx, listCancel := context.WithTimeout(ctx, 20*time.Second)
		candidates, err := store.ListBackfillCandidates(listCtx, after, limit)
		listCancel()
		if err != nil {
			log.Fatalf("list candidates: %v", err)
		}
		if len(candidates) == 0 {
			break
		}

		for _, c := range candidates {
			total++
			after = c.SkillID
			res, err := backfillOne(ctx, reg, store, c, *dryRun, time.Now())
			counts[res]++
			if err != nil {
				log.Printf("backfill %s/%s (%s) failed: %v", c.Owner, c.Name, c.Slug, err)
			}
		}
	}

	log.Printf("backfill complete: processed=%d updated=%d skipped=%d already=%d failed=%d",
		total, counts[updated], counts[skipped], counts[alreadyHas], counts[failed])
}

type registry interface {
	Skill(ctx context.Context, slug string) (*clawhub.Detail, error)
}

type results interface {
	UpdateResultDetails(ctx context.Context, resultID string, details json.RawMessage) error
}

type outcome int

const (
	updated outcome = iota
	skipped
	alreadyHas
	failed
)

func backfillOne(ctx context.Context, reg registry, store results, c db.BackfillCandidate, dryRun bool, now time.Time) (outcome, error) {
	if c.ResultID == nil {
		log.Printf("%s/%s: no scan result, skipping", c.Owner, c.Name)
		return skipped, nil
	}
	details := map[string]json.RawMessage{}
	if len(c.Details) > 0 {
		if err := json.Unmarshal(c.Details, &details); err != nil {
			return failed, err
		}
	}
	if _, ok := details["external_scans"]; ok {
		return alreadyHas, nil
	}

	d, err := reg.Skill(ctx, c.Slug)
	if err != nil {
		return failed, err
	}
	scans := clawhub.ExternalScans(d, now)
	if scans == nil {
		log.Printf("%s/%s: no security data from registry, skipping", c.Owner, c.Name)
		return skipped, nil
	}
	raw, err := json.Marshal(scans)
	if err != nil {
		return failed, err
	}
	if dryRun {
		log.Printf("%s/%s: would write external_scans %s", c.Owner, c.Name, raw)
		return updated, nil
	}

	details["external_scans"] = raw
	merged, err := json.Marshal(details)
	if err != nil {
		return failed, err
	}
	upCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()
	if err := store.UpdateResultDetails(upCtx, *c.ResultID, merged); err != nil {
		return failed, err
	}
	log.Printf("%s/%s: updated VT=%s OC=%s", c.Owner, c.Name, scans.Providers[0].Status, scans.Providers[1].Status)
	return updated, nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/yourorg/skill-scanner/internal/app"
	"github.com/yourorg/skill-scanner/internal/localdb"
	"github.com/yourorg/skill-scanner/internal/model"
	"github.com/yourorg/skill-scanner/internal/worker"
)

var queueLimit int

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Process queued scan jobs once and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		q, closeQueue, err := app.OpenQueue(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeQueue()

		sc, err := app.NewScanner(cfg, modelFlag, os.Stdout)
		if err != nil {
			return err
		}
		limit := queueLimit
		if limit <= 0 {
			limit = cfg.QueueLimit
		}
		sum, err := worker.NewRunner(q, sc, worker.Options{
			Limit:      limit,
			StaleAfter: cfg.StaleTimeout,
			Model:      sc.Model,
			DryRun:     dryRun,
			Force:      force,
		}).Drain(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "jobs: %d fetched, %s completed, %s failed, %d lost\n",
			sum.Fetched, color.GreenString("%d", sum.Completed), color.RedString("%d", sum.Failed), sum.Lost)
		return nil
	},
}

var enqueueReq model.JobRequest

var enqueueCmd = &cobra.Command{
	Use:   "enqueue <owner/name>",
	Short: "Add a scan job for a skill",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, name, ok := strings.Cut(args[0], "/")
		if !ok || owner == "" || name == "" {
			return fmt.Errorf("expected owner/name, got %q", args[0])
		}
		req := enqueueReq
		req.Owner, req.Name = owner, name
		if req.Source == "" {
			req.Source = model.SourceGitHub
			if req.ClawHubSlug != "" {
				req.Source = model.SourceClawHub
			}
		}
		if req.Source == model.SourceGitHub && req.Repo == "" {
			req.Repo = owner + "/" + name
		}

		ctx := cmd.Context()
		q, closeQueue, err := app.OpenQueue(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeQueue()

		id, created, err := q.Enqueue(ctx, req)
		if err != nil {
			return err
		}
		if created {
			fmt.Printf("%s queued %s as job %s\n", color.GreenString("✓"), args[0], id)
		} else {
			fmt.Printf("%s already pending as job %s\n", color.YellowString("•"), id)
		}
		return nil
	},
}

var jobsLimit int

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List recent jobs in the local queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.DatabaseURL != "" {
			return errors.New("jobs lists the local queue; unset DATABASE_URL to use it")
		}
		store, err := localdb.Open(cfg.LocalQueuePath)
		if err != nil {
			return err
		}
		defer store.Close()
		return printJobs(cmd.Context(), store)
	},
}

func printJobs(ctx context.Context, store *localdb.Store) error {
	jobs, err := store.Jobs(ctx, jobsLimit)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		fmt.Println(color.HiBlackString("No jobs"))
		return nil
	}
	fmt.Printf("%-26s %-30s %-10s %4s  %s\n", "ID", "SKILL", "STATUS", "PCT", "ERROR")
	for _, j := range jobs {
		errMsg := ""
		if j.Error != nil {
			errMsg = worker.Truncate(*j.Error, 60)
		}
		fmt.Printf("%-26s %-30s %-10s %3d%%  %s\n", j.ID, j.Owner+"/"+j.Name, statusColor(j.Status)(j.Status), j.ProgressPct, errMsg)
	}
	return nil
}

func init() {
	queueCmd.Flags().IntVar(&queueLimit, "limit", 0, "jobs to take from the queue (default QUEUE_LIMIT)")

	enqueueCmd.Flags().StringVar(&enqueueReq.Repo, "repo", "", "GitHub owner/repo to scan (default owner/name)")
	enqueueCmd.Flags().StringVar(&enqueueReq.Source, "source", "", "github or clawhub (inferred from --slug)")
	enqueueCmd.Flags().StringVar(&enqueueReq.ClawHubSlug, "slug", "", "ClawHub registry slug")

	jobsCmd.Flags().IntVar(&jobsLimit, "limit", 20, "jobs to show")
}

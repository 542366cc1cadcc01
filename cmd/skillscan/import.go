package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/yourorg/skill-scanner/internal/app"
	"github.com/yourorg/skill-scanner/internal/clawhub"
	"github.com/yourorg/skill-scanner/internal/scanner"
)

var (
	importSort  string
	importLimit int
	importBatch int
)

var importCmd = &cobra.Command{
	Use:   "import [slug...]",
	Short: "Scan ClawHub registry packages",
	Long: `With slugs, scans those packages. Without, walks the registry listing in
the chosen order and scans up to --limit packages.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sc, err := app.NewScanner(cfg, modelFlag, os.Stdout)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		total := &scanner.Outcome{}
		var errs []error
		scan := func(slug string) {
			out, err := sc.ScanPackage(ctx, slug, options(), stageLogger(os.Stderr))
			merge(total, out)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s %s: %v\n", color.RedString("✗"), slug, err)
				errs = append(errs, err)
			}
		}

		if len(args) > 0 {
			for _, slug := range args {
				scan(slug)
			}
		} else {
			reg := clawhub.New(cfg.ClawHubURL, cfg.ClawHubConvexURL)
			err := reg.ListAll(ctx, clawhub.Sort(importSort), importBatch, importLimit, func(batch []clawhub.Summary) error {
				for _, s := range batch {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					scan(s.Slug)
				}
				return nil
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("listing registry: %w", err)
			}
		}

		printOutcome(os.Stderr, total)
		if len(errs) > 0 && total.Scanned == 0 && total.Skipped == 0 {
			return errors.Join(errs...)
		}
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importSort, "sort", string(clawhub.SortDownloads), "listing order: trending, updated, downloads or stars")
	importCmd.Flags().IntVar(&importLimit, "limit", 20, "maximum packages to scan from the listing (0 = all)")
	importCmd.Flags().IntVar(&importBatch, "batch", 25, "listing page size")
}

func merge(total, out *scanner.Outcome) {
	if out == nil {
		return
	}
	total.Scanned += out.Scanned
	total.Skipped += out.Skipped
	total.Failed += out.Failed
	total.Payloads = append(total.Payloads, out.Payloads...)
}

package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yourorg/skill-scanner/internal/app"
	"github.com/yourorg/skill-scanner/internal/model"
)

var reportCmd = &cobra.Command{
	Use:   "report <owner/name>",
	Short: "Show the latest archived report for a skill",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, name, ok := strings.Cut(args[0], "/")
		if !ok || owner == "" || name == "" {
			return fmt.Errorf("expected owner/name, got %q", args[0])
		}
		if !cfg.ArchiveEnabled() {
			return errors.New("report archive is not configured (set S3_ENDPOINT and REPORTS_BUCKET)")
		}
		arch, err := app.NewArchive(cfg)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		key, err := arch.Latest(ctx, owner, name)
		if err != nil {
			return err
		}
		if key == "" {
			return fmt.Errorf("no archived report for %s", args[0])
		}
		var rep model.ArchivedReport
		if err := arch.GetJSON(ctx, key, &rep); err != nil {
			return err
		}
		if rep.ResultPayload == nil {
			return fmt.Errorf("archived report %s is empty", key)
		}
		printVerdict(os.Stdout, rep.ResultPayload)
		for _, note := range rep.EnforcementNotes {
			fmt.Printf("  corrected: %s\n", note)
		}
		fmt.Printf("  %s\n", key)
		return nil
	},
}

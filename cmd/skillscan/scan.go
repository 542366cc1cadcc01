package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yourorg/skill-scanner/internal/app"
	"github.com/yourorg/skill-scanner/internal/scanner"
)

var scanCmd = &cobra.Command{
	Use:   "scan <owner/repo>",
	Short: "Scan every skill in a GitHub repository",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, repo, err := splitRepo(args[0])
		if err != nil {
			return err
		}
		sc, err := app.NewScanner(cfg, modelFlag, os.Stdout)
		if err != nil {
			return err
		}
		out, err := sc.ScanRepo(cmd.Context(), owner, repo, options(), stageLogger(os.Stderr))
		printOutcome(os.Stderr, out)
		return err
	},
}

func options() scanner.Options {
	return scanner.Options{DryRun: dryRun, Force: force}
}

// splitRepo accepts owner/repo, optionally as a github.com URL.
func splitRepo(arg string) (string, string, error) {
	s := strings.TrimSuffix(strings.TrimSpace(arg), "/")
	s = strings.TrimSuffix(s, ".git")
	for _, p := range []string{"https://", "http://", "github.com/"} {
		s = strings.TrimPrefix(s, p)
	}
	owner, repo, ok := strings.Cut(s, "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return "", "", fmt.Errorf("expected owner/repo, got %q", arg)
	}
	return owner, repo, nil
}

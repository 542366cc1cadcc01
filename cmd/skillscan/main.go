// Command skillscan scans agent skills from the command line: a GitHub
// repository, registry packages, or the jobs waiting in the queue.
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/yourorg/skill-scanner/internal/app"
	"github.com/yourorg/skill-scanner/internal/config"
)

var (
	cfg config.Config

	modelFlag string
	dryRun    bool
	force     bool
	noColor   bool
)

var rootCmd = &cobra.Command{
	Use:   "skillscan",
	Short: "Security scanner for AI agent skills",
	Long: `skillscan fetches agent skills from GitHub or the ClawHub registry,
runs static rules and a dependency audit over their code, asks a model for a
verdict, and submits the result.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor {
			color.NoColor = true
		}
		app.LoadEnv()
		cfg = config.Load()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&modelFlag, "model", "", "model alias or id (overrides SCAN_MODEL)")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "print payloads instead of submitting")
	rootCmd.PersistentFlags().BoolVar(&force, "force", false, "rescan skills that already have a result")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(scanCmd, importCmd, queueCmd, enqueueCmd, jobsCmd, reportCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", color.RedString("Error:"), err)
		os.Exit(1)
	}
}

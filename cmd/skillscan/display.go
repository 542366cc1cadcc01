package main

import (
	"fmt"
	"io"
	"log"
	"slices"
	"sort"

	"github.com/fatih/color"

	"github.com/yourorg/skill-scanner/internal/model"
	"github.com/yourorg/skill-scanner/internal/scanner"
)

func stageLogger(w io.Writer) scanner.Reporter {
	gray := color.New(color.FgHiBlack).SprintFunc()
	return func(stage, detail string) {
		fmt.Fprintf(w, "%s %s\n", gray("["+stage+"]"), detail)
	}
}

func statusColor(status string) func(a ...any) string {
	switch status {
	case model.TrustVerified, model.JobCompleted:
		return color.New(color.FgGreen).SprintFunc()
	case model.TrustCaution, model.JobRunning:
		return color.New(color.FgYellow).SprintFunc()
	case model.TrustFailed: // also JobFailed
		return color.New(color.FgRed, color.Bold).SprintFunc()
	default:
		return color.New(color.FgHiBlack).SprintFunc()
	}
}

func statusIcon(status string) string {
	switch status {
	case model.TrustVerified:
		return "✓"
	case model.TrustCaution:
		return "⚠"
	case model.TrustFailed:
		return "✗"
	}
	return "○"
}

// detected returns the categories with evidence, in report order.
func detected(d model.ResultDetails) []string {
	var out []string
	for _, c := range model.ThreatCategories {
		if d.Categories[c].Detected {
			out = append(out, c)
		}
	}
	var extra []string
	for c, ev := range d.Categories {
		if ev.Detected && !slices.Contains(model.ThreatCategories, c) {
			extra = append(extra, c)
		}
	}
	sort.Strings(extra)
	return append(out, extra...)
}

func printVerdict(w io.Writer, p *model.ResultPayload) {
	c := statusColor(p.TrustStatus)
	fmt.Fprintf(w, "%s %s/%s %s risk=%.1f confidence=%.0f%%\n",
		c(statusIcon(p.TrustStatus)), p.Owner, p.Name, c(p.TrustStatus), p.RiskScore, p.Confidence)
	if p.Summary != "" {
		fmt.Fprintf(w, "  %s\n", p.Summary)
	}
	for _, cat := range detected(p.Details) {
		ev := p.Details.Categories[cat]
		fmt.Fprintf(w, "  %s %s\n", color.YellowString("•"), cat)
		for _, e := range ev.Evidence {
			fmt.Fprintf(w, "      %s\n", e)
		}
	}
	if n := len(p.DependencyVulns); n > 0 {
		fmt.Fprintf(w, "  %s %d vulnerable dependencies\n", color.YellowString("•"), n)
	}
	if s := p.Details.ExternalScans; s != nil {
		for _, pr := range s.Providers {
			fmt.Fprintf(w, "  %s: %s\n", pr.Provider, pr.Status)
		}
	}
}

func printOutcome(w io.Writer, out *scanner.Outcome) {
	if out == nil {
		return
	}
	if !dryRun {
		for _, p := range out.Payloads {
			printVerdict(w, p)
		}
	}
	log.Printf("scanned=%d skipped=%d failed=%d", out.Scanned, out.Skipped, out.Failed)
}

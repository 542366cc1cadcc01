// Package rules is the deterministic pre-scan: a fixed table of line-level
// regular expressions run over every cached file before the AI pass.
package rules

import (
	"regexp"
	"sort"
	"strings"

	"github.com/yourorg/skill-scanner/internal/codecache"
	"github.com/yourorg/skill-scanner/internal/model"
)

type Rule struct {
	ID       string
	Severity string
	Category string
	Message  string
	Pattern  *regexp.Regexp
	// FileFilter restricts the rule to matching paths when set.
	FileFilter *regexp.Regexp
}

func (r Rule) appliesTo(path string) bool {
	return r.FileFilter == nil || r.FileFilter.MatchString(path)
}

var packageJSON = regexp.MustCompile(`package\.json$`)

// Table is ordered by tier. Lookaheads are expressed as negated classes
// since RE2 has none.
var Table = []Rule{
	// critical
	{
		ID: "BIDI-001", Severity: model.SeverityCritical, Category: model.CategoryObfuscation,
		Message: "Unicode BiDi override character detected (Trojan Source attack)",
		Pattern: regexp.MustCompile(`[\x{202A}-\x{202E}\x{2066}-\x{2069}]`),
	},
	{
		ID: "ZERO-WIDTH-001", Severity: model.SeverityCritical, Category: model.CategoryPromptInjection,
		Message: "Zero-width character detected (hidden text in tool descriptions)",
		Pattern: regexp.MustCompile(`[\x{200B}\x{200C}\x{200D}\x{FEFF}]`),
	},
	{
		ID: "EXEC-001", Severity: model.SeverityCritical, Category: model.CategoryDestructiveCommands,
		Message: "Dynamic code execution via eval() or new Function()",
		Pattern: regexp.MustCompile(`\beval\s*\(|new\s+Function\s*\(`),
	},
	{
		ID: "EXEC-002", Severity: model.SeverityCritical, Category: model.CategoryDestructiveCommands,
		Message: "Shell execution via child_process",
		Pattern: regexp.MustCompile(`(?:require\s*\(\s*['"]child_process['"]\s*\)|from\s+['"]child_process['"]).*(?:exec|spawn|execFile|execSync|spawnSync)`),
	},
	{
		ID: "INSTALL-001", Severity: model.SeverityCritical, Category: model.CategoryDestructiveCommands,
		Message:    "Install hook detected in package.json (supply chain attack vector)",
		Pattern:    regexp.MustCompile(`["'](?:pre|post)install["']\s*:`),
		FileFilter: packageJSON,
	},
	{
		ID: "INSTALL-002", Severity: model.SeverityCritical, Category: model.CategoryDataExfiltration,
		Message:    "URL or download command in install scripts",
		Pattern:    regexp.MustCompile(`["'](?:pre|post)install["']\s*:\s*["'][^"']*(?:curl|wget|https?://)[^"']*`),
		FileFilter: packageJSON,
	},
	{
		ID: "OBFUSC-001", Severity: model.SeverityCritical, Category: model.CategoryObfuscation,
		Message: "Hex-encoded string sequence (5+ bytes)",
		Pattern: regexp.MustCompile(`(?:\\x[0-9a-fA-F]{2}){5,}`),
	},
	{
		ID: "OBFUSC-002", Severity: model.SeverityCritical, Category: model.CategoryObfuscation,
		Message: "Suspiciously long Base64 string (>100 chars)",
		Pattern: regexp.MustCompile("['\"`][A-Za-z0-9+/]{100,}={0,2}['\"`]"),
	},
	{
		ID: "OBFUSC-003", Severity: model.SeverityCritical, Category: model.CategoryObfuscation,
		Message: "String.fromCharCode with 5+ arguments (character assembly)",
		Pattern: regexp.MustCompile(`String\.fromCharCode\s*\(\s*(?:\d+\s*,\s*){4,}\d+\s*\)`),
	},
	{
		ID: "OBFUSC-004", Severity: model.SeverityCritical, Category: model.CategoryObfuscation,
		Message: "Obfuscated variable names (_0x pattern)",
		Pattern: regexp.MustCompile(`\b_0x[0-9a-fA-F]{4,}\b`),
	},
	{
		ID: "EXFIL-001", Severity: model.SeverityCritical, Category: model.CategoryDataExfiltration,
		Message: "Cloud metadata endpoint access (SSRF vector)",
		Pattern: regexp.MustCompile(`169\.254\.169\.254|metadata\.google\.internal`),
	},
	{
		ID: "SECRET-001", Severity: model.SeverityCritical, Category: model.CategorySecretAccess,
		Message: "Access to sensitive credential paths",
		Pattern: regexp.MustCompile(`(?:\.ssh/|\.aws/|\.gnupg/|\.npmrc\b|\.env\b)`),
	},
	{
		ID: "POISON-001", Severity: model.SeverityCritical, Category: model.CategoryPromptInjection,
		Message: "<IMPORTANT> tag detected (tool poisoning technique)",
		Pattern: regexp.MustCompile(`(?i)<IMPORTANT>`),
	},
	{
		ID: "POISON-002", Severity: model.SeverityCritical, Category: model.CategoryPromptInjection,
		Message: "Concealment instruction detected",
		Pattern: regexp.MustCompile(`(?i)do\s+not\s+(?:mention|tell|reveal|show|display)\s+(?:to\s+)?the\s+user`),
	},

	// warning
	{
		ID: "NET-001", Severity: model.SeverityWarning, Category: model.CategoryDataExfiltration,
		Message: "Network request detected (verify if legitimate for skill purpose)",
		Pattern: regexp.MustCompile(`\bfetch\s*\(|axios\.\w+\s*\(|https?\.request\s*\(`),
	},
	{
		ID: "FS-001", Severity: model.SeverityWarning, Category: model.CategorySecretAccess,
		Message: "File read with non-literal path (potential path traversal)",
		// Whitespace after the paren counts as a non-literal start.
		Pattern: regexp.MustCompile("fs\\.readFile(?:Sync)?\\s*\\((?:[^'\"`]|$)"),
	},
	{
		ID: "CRYPTO-001", Severity: model.SeverityWarning, Category: model.CategoryObfuscation,
		Message: "Math.random() usage (weak randomness)",
		Pattern: regexp.MustCompile(`Math\.random\s*\(\s*\)`),
	},
	{
		ID: "POISON-003", Severity: model.SeverityWarning, Category: model.CategoryPromptInjection,
		Message: "Prompt injection pattern in text",
		Pattern: regexp.MustCompile(`(?i)ignore\s+(?:previous|prior|above|all)\s+instructions`),
	},

	// info
	{
		ID: "ENV-001", Severity: model.SeverityInfo, Category: model.CategorySecretAccess,
		Message: "Environment variable access (informational)",
		Pattern: regexp.MustCompile(`process\.env\b`),
	},
	{
		ID: "DYN-001", Severity: model.SeverityInfo, Category: model.CategoryDestructiveCommands,
		Message: "Dynamic module loading (non-literal require/import)",
		Pattern: regexp.MustCompile("(?:require|import)\\s*\\((?:[^'\"`]|$)"),
	},
}

const maxMatchLen = 200

type Result struct {
	Findings []model.StaticFinding `json:"findings"`
	Summary  model.StaticSummary   `json:"summary"`
}

func severityRank(s string) int {
	switch s {
	case model.SeverityCritical:
		return 0
	case model.SeverityWarning:
		return 1
	default:
		return 2
	}
}

// Run applies Table to every file, line by line.
func Run(files []codecache.CachedFile) Result {
	return RunRules(Table, files)
}

// RunRules applies an arbitrary rule table. Findings are ordered critical,
// warning, info; within a tier they keep file and line order.
func RunRules(table []Rule, files []codecache.CachedFile) Result {
	findings := []model.StaticFinding{}
	for _, f := range files {
		applicable := make([]Rule, 0, len(table))
		for _, r := range table {
			if r.appliesTo(f.Path) {
				applicable = append(applicable, r)
			}
		}
		for i, line := range strings.Split(f.Content, "\n") {
			for _, r := range applicable {
				if !r.Pattern.MatchString(line) {
					continue
				}
				findings = append(findings, model.StaticFinding{
					RuleID:   r.ID,
					Severity: r.Severity,
					Category: r.Category,
					Message:  r.Message,
					File:     f.Path,
					Line:     i + 1,
					Match:    clip(strings.TrimSpace(line), maxMatchLen),
				})
			}
		}
	}
	sort.SliceStable(findings, func(i, j int) bool {
		return severityRank(findings[i].Severity) < severityRank(findings[j].Severity)
	})
	return Result{Findings: findings, Summary: Summarize(findings)}
}

func Summarize(findings []model.StaticFinding) model.StaticSummary {
	var s model.StaticSummary
	for _, f := range findings {
		switch f.Severity {
		case model.SeverityCritical:
			s.Critical++
		case model.SeverityWarning:
			s.Warning++
		case model.SeverityInfo:
			s.Info++
		}
	}
	s.Total = len(findings)
	return s
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

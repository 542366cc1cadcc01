package rules

import (
	"path"
	"regexp"
	"strings"

	"github.com/yourorg/skill-scanner/internal/codecache"
	"github.com/yourorg/skill-scanner/internal/model"
)

// FlagTable is the coarse first-pass table whose hits are stored with each
// result as pre-scan flags. Unlike Table, every occurrence on a line is
// recorded with the exact text matched.
var FlagTable = []Rule{
	{ID: "CLOUD_METADATA", Severity: model.SeverityCritical, Category: model.CategorySecretAccess,
		Message: "Cloud metadata endpoint access", Pattern: regexp.MustCompile(`169\.254\.169\.254|metadata\.google\.internal`)},
	{ID: "REVERSE_SHELL", Severity: model.SeverityCritical, Category: model.CategoryDestructiveCommands,
		Message: "Potential reverse shell", Pattern: regexp.MustCompile(`bash\s+-i|nc\s+-e|/dev/tcp`)},
	{ID: "KEYLOGGER", Severity: model.SeverityCritical, Category: model.CategoryExcessivePermissions,
		Message: "Keylogger or screen capture pattern", Pattern: regexp.MustCompile(`(?i)keylog|screenshot|screen\.capture`)},

	{ID: "EVAL_FUNCTION", Severity: model.SeverityWarning, Category: model.CategoryObfuscation,
		Message: "Dynamic code evaluation", Pattern: regexp.MustCompile(`\beval\s*\(|new\s+Function\s*\(|\bFunction\s*\(`)},
	{ID: "SHELL_EXEC", Severity: model.SeverityWarning, Category: model.CategoryExcessivePermissions,
		Message: "Shell command execution", Pattern: regexp.MustCompile(`\bexec\s*\(|\bexecSync\s*\(|\bspawn\s*\(`)},
	{ID: "SUSPICIOUS_SCRIPTS", Severity: model.SeverityWarning, Category: model.CategoryObfuscation,
		Message: "Suspicious npm lifecycle script", Pattern: regexp.MustCompile(`"(?:postinstall|preinstall)"\s*:\s*"[^"]*(?:sh |bash |node |curl |wget )`)},
	{ID: "ENV_READ", Severity: model.SeverityWarning, Category: model.CategorySecretAccess,
		Message: "Environment file reading", Pattern: regexp.MustCompile(`readFile.*\.env|dotenv`)},
	{ID: "HEX_OBFUSCATION", Severity: model.SeverityWarning, Category: model.CategoryObfuscation,
		Message: "Obfuscated hex string sequences", Pattern: regexp.MustCompile(`(?:\\x[0-9a-fA-F]{2}){4,}`)},
	{ID: "DYNAMIC_IMPORT", Severity: model.SeverityWarning, Category: model.CategoryObfuscation,
		Message: "Dynamic import with variable URL", Pattern: regexp.MustCompile("import\\s*\\(\\s*[^\"'`\\s)]")},

	{ID: "HTTP_REQUEST", Severity: model.SeverityInfo, Category: model.CategoryDataExfiltration,
		Message: "HTTP request capability", Pattern: regexp.MustCompile(`\bfetch\s*\(|require\s*\(\s*['"](?:axios|node-fetch)['"]\)`)},
	{ID: "FS_ACCESS", Severity: model.SeverityInfo, Category: model.CategoryExcessivePermissions,
		Message: "File system access", Pattern: regexp.MustCompile(`\breadFile\b|\bwriteFile\b|\bunlink\b`)},
}

// Flags runs FlagTable. Markdown other than SKILL.md is skipped. Flags come
// out in file, rule, line order.
func Flags(files []codecache.CachedFile) []model.StaticFinding {
	flags := []model.StaticFinding{}
	for _, f := range files {
		if strings.EqualFold(path.Ext(f.Path), ".md") && !strings.Contains(f.Path, "SKILL.md") {
			continue
		}
		lines := strings.Split(f.Content, "\n")
		for _, r := range FlagTable {
			for i, line := range lines {
				for _, m := range r.Pattern.FindAllString(line, -1) {
					flags = append(flags, model.StaticFinding{
						RuleID:   r.ID,
						Severity: r.Severity,
						Category: r.Category,
						Message:  r.Message,
						File:     f.Path,
						Line:     i + 1,
						Match:    m,
					})
				}
			}
		}
	}
	return flags
}

// Package discovery decides which skills a repository exposes and which
// files belong to each.
package discovery

import (
	"path"
	"regexp"
	"strings"

	"github.com/yourorg/skill-scanner/internal/codecache"
)

const skillFile = "SKILL.md"

type Skill struct {
	Name          string   `json:"skill_name"`
	Description   string   `json:"description"`
	RelevantFiles []string `json:"relevant_files"`
	// SkillMD is the path of the skill's SKILL.md when it has one.
	SkillMD string `json:"-"`
	// Implicit marks the whole-repository fallback skill.
	Implicit bool `json:"-"`
}

type skillInfo struct {
	name     string
	basePath string
	skillMD  string
}

var layouts = []struct {
	re   *regexp.Regexp
	name func(m []string) string
}{
	{regexp.MustCompile(`^(\.claude/skills/([^/]+))/SKILL\.md$`), func(m []string) string { return m[2] }},
	{regexp.MustCompile(`^(skills/([^/]+))/SKILL\.md$`), func(m []string) string { return m[2] }},
	{regexp.MustCompile(`^(extensions/([^/]+)/skills/([^/]+))/SKILL\.md$`), func(m []string) string { return m[2] + "-" + m[3] }},
	{regexp.MustCompile(`^(extensions/([^/]+))/SKILL\.md$`), func(m []string) string { return m[2] }},
	{regexp.MustCompile(`^(\.agents/skills/([^/]+))/SKILL\.md$`), func(m []string) string { return m[2] }},
}

// skillAt maps a nested SKILL.md path to the skill it defines. A SKILL.md at
// the repository root follows no directory convention and is left to the AI
// pass.
func skillAt(p string) (skillInfo, bool) {
	for _, l := range layouts {
		if m := l.re.FindStringSubmatch(p); m != nil {
			return skillInfo{name: l.name(m), basePath: m[1], skillMD: p}, true
		}
	}
	dir, file := path.Split(p)
	dir = strings.TrimSuffix(dir, "/")
	if file != skillFile || dir == "" {
		return skillInfo{}, false
	}
	return skillInfo{name: path.Base(dir), basePath: dir, skillMD: p}, true
}

func isSharedRootFile(p string) bool {
	switch strings.ToLower(p) {
	case "readme.md", "package.json":
		return true
	}
	return false
}

// FromTree finds skills by directory convention. Each skill owns the files
// under its base directory, and a file under nested skills belongs to the
// innermost one; root README.md and package.json are shared by all. Skills keep the order their SKILL.md appears in the tree.
func FromTree(paths []string) []Skill {
	var (
		infos  []skillInfo
		shared []string
		names  = map[string]int{}
	)
	for _, p := range paths {
		if info, ok := skillAt(p); ok {
			if n := names[info.name]; n > 0 {
				info.name = strings.ReplaceAll(info.basePath, "/", "-")
			}
			names[info.name]++
			infos = append(infos, info)
		}
		if isSharedRootFile(p) {
			shared = append(shared, p)
		}
	}
	if len(infos) == 0 {
		return nil
	}

	skills := make([]Skill, len(infos))
	for i, info := range infos {
		skills[i] = Skill{
			Name:        info.name,
			Description: "Claude Code skill: " + info.name,
			SkillMD:     info.skillMD,
		}
	}
	for _, p := range paths {
		owner := -1
		for i, info := range infos {
			if strings.HasPrefix(p, info.basePath+"/") && (owner < 0 || len(info.basePath) > len(infos[owner].basePath)) {
				owner = i
			}
		}
		if owner >= 0 {
			skills[owner].RelevantFiles = append(skills[owner].RelevantFiles, p)
		}
	}
	for i := range skills {
		skills[i].RelevantFiles = append(skills[i].RelevantFiles, shared...)
	}
	return skills
}

var sourceExtensions = map[string]bool{
	".ts": true, ".tsx": true, ".js": true, ".jsx": true, ".mjs": true, ".cjs": true,
	".py": true, ".rs": true, ".go": true, ".rb": true,
	".sh": true, ".bash": true, ".zsh": true,
}

var textExtensions = map[string]bool{
	".json": true, ".yaml": true, ".yml": true, ".toml": true, ".md": true, ".txt": true,
}

// IsSourceFile reports whether p has a recognised source-code extension.
func IsSourceFile(p string) bool {
	return sourceExtensions[strings.ToLower(path.Ext(p))]
}

// IsAnalyzable reports whether p is worth downloading for analysis: source
// code plus manifests and prose.
func IsAnalyzable(p string) bool {
	ext := strings.ToLower(path.Ext(p))
	return sourceExtensions[ext] || textExtensions[ext]
}

// IsDocumentationOnly reports a tree with no SKILL.md and no source code.
// Such repositories are skipped before anything is downloaded.
func IsDocumentationOnly(paths []string) bool {
	for _, p := range paths {
		if path.Base(p) == skillFile || IsSourceFile(p) {
			return false
		}
	}
	return true
}

// Constrain intersects every skill's files with the cache and drops skills
// left with none.
func Constrain(skills []Skill, cache *codecache.Cache) []Skill {
	out := make([]Skill, 0, len(skills))
	for _, s := range skills {
		s.RelevantFiles = cache.ValidatePaths(s.RelevantFiles)
		if len(s.RelevantFiles) == 0 {
			continue
		}
		if s.SkillMD != "" && !cache.Has(s.SkillMD) {
			s.SkillMD = ""
		}
		out = append(out, s)
	}
	return out
}

// Union returns every file referenced by skills, first occurrence order.
func Union(skills []Skill) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, s := range skills {
		for _, f := range s.RelevantFiles {
			if _, ok := seen[f]; ok {
				continue
			}
			seen[f] = struct{}{}
			out = append(out, f)
		}
	}
	return out
}

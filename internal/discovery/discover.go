package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/yourorg/skill-scanner/internal/codecache"
	"github.com/yourorg/skill-scanner/internal/engine"
)

const SchemaName = "skill_discovery"

// Schema is the structured output the discovery call must produce.
func Schema() map[string]any {
	str := func(desc string) map[string]any {
		return map[string]any{"type": "string", "description": desc}
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"skills": map[string]any{
				"type":        "array",
				"description": "Every AI tool or skill implemented in the repository; empty when there are none",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"skill_name": str("Short lowercase hyphenated name, e.g. web-search"),
						"description": str("One sentence on what the skill does"),
						"relevant_files": map[string]any{
							"type":        "array",
							"items":       map[string]any{"type": "string"},
							"description": "Repository paths that implement or configure the skill",
						},
					},
					"required":             []string{"skill_name", "description", "relevant_files"},
					"additionalProperties": false,
				},
			},
		},
		"required":             []string{"skills"},
		"additionalProperties": false,
	}
}

func systemPrompt() string {
	return `<role>
You enumerate the distinct AI agent tools and skills a codebase exposes.
</role>

<guidelines>
- List only tools implemented in code, not ones planned or mentioned in comments
- One entry per distinct capability
- Copy file paths exactly as they appear in the listing
</guidelines>`
}

func prompt(owner, repo, code string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<task>\nIdentify every AI tool or skill in the repository **%s/%s**.\n</task>\n\n", owner, repo)
	b.WriteString(`<detection_patterns>
1. MCP tool registrations: server.tool(), @tool decorators, tool arrays in config
2. SKILL.md files. Each directory holding one is a separate skill, typically under
   .claude/skills/<name>/, skills/<name>/, extensions/<ext>/skills/<name>/ or .agents/skills/<name>/
3. Distinct capabilities the repository exposes, e.g. read-file, search-web, execute-sql
4. Manifests such as package.json with MCP fields or tool registration configs
5. READMEs listing tools or showing their usage
</detection_patterns>

<rules>
1. A skill is a distinct capability, not a helper or internal utility
2. Include every file that implements or directly supports the skill
3. A single-tool repository yields one entry
4. A repository with no AI tools (a library, a website) yields an empty list
5. Names are short, lowercase and hyphenated
6. Shared files such as server setup, config and types go under every skill that uses them
</rules>

`)
	fmt.Fprintf(&b, "<source_code>\n%s\n</source_code>\n\nList the AI tools and skills in this repository.", code)
	return b.String()
}

type Discoverer struct {
	Engine engine.Engine
	Model  string
}

// Discover asks the engine to enumerate the skills in cache. Paths the
// engine returns are checked against the cache and entries left without
// files are dropped. When nothing survives the whole repository becomes one
// implicit skill.
func (d *Discoverer) Discover(ctx context.Context, owner, repo string, cache *codecache.Cache) ([]Skill, error) {
	raw, err := d.Engine.Invoke(ctx, engine.Request{
		Prompt:       prompt(owner, repo, cache.AllCode()),
		SystemPrompt: systemPrompt(),
		SchemaName:   SchemaName,
		Schema:       Schema(),
		Model:        d.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("discover skills in %s/%s: %w", owner, repo, err)
	}

	var out struct {
		Skills []Skill `json:"skills"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		log.Printf("warning: discovery output unreadable (%v), treating %s/%s as one skill", err, owner, repo)
	}

	var skills []Skill
	for _, s := range out.Skills {
		s.Name = strings.TrimSpace(s.Name)
		files := cache.ValidatePaths(s.RelevantFiles)
		if s.Name == "" || len(files) == 0 {
			log.Printf("warning: skipping discovered skill %q: no matching files in repo", s.Name)
			continue
		}
		s.RelevantFiles = files
		for _, f := range files {
			if strings.HasSuffix(f, "/"+skillFile) || f == skillFile {
				s.SkillMD = f
				break
			}
		}
		skills = append(skills, s)
	}

	if len(skills) == 0 {
		log.Printf("no skills discovered in %s/%s, analyzing the whole repo", owner, repo)
		return []Skill{Implicit(repo, cache)}, nil
	}
	names := make([]string, len(skills))
	for i, s := range skills {
		names[i] = s.Name
	}
	log.Printf("discovered %d skill(s) in %s/%s: %s", len(skills), owner, repo, strings.Join(names, ", "))
	return skills, nil
}

// Implicit is the single skill standing in for a repository whose skills
// could not be told apart.
func Implicit(repo string, cache *codecache.Cache) Skill {
	files := cache.Files()
	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.Path
	}
	return Skill{
		Name:          repo,
		Description:   "Skills in " + repo,
		RelevantFiles: paths,
		Implicit:      true,
	}
}

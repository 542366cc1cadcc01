package discovery

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/skill-scanner/internal/codecache"
	"github.com/yourorg/skill-scanner/internal/engine"
)

func TestFromTreeSplitsSkillsByDirectory(t *testing.T) {
	paths := []string{
		"README.md",
		"package.json",
		"skills/alpha/SKILL.md",
		"skills/alpha/index.ts",
		"skills/beta/SKILL.md",
		"skills/beta/run.py",
		"docs/guide.md",
	}
	skills := FromTree(paths)
	require.Len(t, skills, 2)

	alpha, beta := skills[0], skills[1]
	assert.Equal(t, "alpha", alpha.Name)
	assert.Equal(t, "beta", beta.Name)
	assert.Equal(t, "skills/alpha/SKILL.md", alpha.SkillMD)
	assert.ElementsMatch(t, []string{"skills/alpha/SKILL.md", "skills/alpha/index.ts", "README.md", "package.json"}, alpha.RelevantFiles)
	assert.ElementsMatch(t, []string{"skills/beta/SKILL.md", "skills/beta/run.py", "README.md", "package.json"}, beta.RelevantFiles)

	for _, f := range alpha.RelevantFiles {
		if f == "README.md" || f == "package.json" {
			continue
		}
		assert.NotContains(t, beta.RelevantFiles, f)
	}
}

func TestFromTreeLayouts(t *testing.T) {
	tests := []struct {
		path string
		name string
	}{
		{".claude/skills/pdf/SKILL.md", "pdf"},
		{"skills/web-search/SKILL.md", "web-search"},
		{"extensions/github/skills/pr-review/SKILL.md", "github-pr-review"},
		{"extensions/slack/SKILL.md", "slack"},
		{".agents/skills/deploy/SKILL.md", "deploy"},
		{"tools/weather/SKILL.md", "weather"},
	}
	for _, tt := range tests {
		skills := FromTree([]string{tt.path})
		require.Len(t, skills, 1, tt.path)
		assert.Equal(t, tt.name, skills[0].Name, tt.path)
		assert.Equal(t, "Claude Code skill: "+tt.name, skills[0].Description)
	}
}

func TestFromTreeIgnoresRootSkillFile(t *testing.T) {
	assert.Empty(t, FromTree([]string{"SKILL.md", "index.js"}))
}

func TestFromTreeDisambiguatesNameCollisions(t *testing.T) {
	skills := FromTree([]string{"skills/search/SKILL.md", "plugins/search/SKILL.md"})
	require.Len(t, skills, 2)
	assert.Equal(t, "search", skills[0].Name)
	assert.Equal(t, "plugins-search", skills[1].Name)
}

func TestFromTreeNestedSkillOwnsItsFiles(t *testing.T) {
	skills := FromTree([]string{
		"README.md",
		"skills/a/SKILL.md",
		"skills/a/run.sh",
		"skills/a/sub/SKILL.md",
		"skills/a/sub/tool.py",
	})
	require.Len(t, skills, 2)
	assert.Equal(t, "a", skills[0].Name)
	assert.Equal(t, []string{"skills/a/SKILL.md", "skills/a/run.sh", "README.md"}, skills[0].RelevantFiles)
	assert.Equal(t, "sub", skills[1].Name)
	assert.Equal(t, []string{"skills/a/sub/SKILL.md", "skills/a/sub/tool.py", "README.md"}, skills[1].RelevantFiles)
}

func TestIsDocumentationOnly(t *testing.T) {
	assert.True(t, IsDocumentationOnly([]string{"README.md", "docs/a.md", "config.yaml", "data.json", "LICENSE"}))
	assert.False(t, IsDocumentationOnly([]string{"README.md", "main.go"}))
	assert.False(t, IsDocumentationOnly([]string{"README.md", "SKILL.md"}))
	assert.False(t, IsDocumentationOnly([]string{"scripts/install.SH"}))
	assert.True(t, IsDocumentationOnly(nil))
}

func TestDescribe(t *testing.T) {
	withFrontmatter := "---\nname: pdf\ndescription: |\n  Extract text\n  from PDFs.\n---\n# PDF\n\nIgnored paragraph.\n"
	assert.Equal(t, "Extract text from PDFs.", Describe(withFrontmatter))

	plain := "# Weather\n\nFetches the forecast\nfor a city.\n\nSecond paragraph.\n"
	assert.Equal(t, "Fetches the forecast for a city.", Describe(plain))

	emptyDesc := "---\nname: x\n---\n\nBody text here.\n"
	assert.Equal(t, "Body text here.", Describe(emptyDesc))

	assert.Empty(t, Describe("# Only a heading\n"))
}

func TestConstrainDropsSkillsWithoutFiles(t *testing.T) {
	cache := codecache.New([]codecache.CachedFile{{Path: "skills/a/SKILL.md", Content: "a"}, {Path: "README.md", Content: "r"}})
	skills := Constrain([]Skill{
		{Name: "a", RelevantFiles: []string{"skills/a/SKILL.md", "skills/a/huge.bin", "README.md"}, SkillMD: "skills/a/SKILL.md"},
		{Name: "b", RelevantFiles: []string{"skills/b/SKILL.md"}},
	}, cache)
	require.Len(t, skills, 1)
	assert.Equal(t, []string{"skills/a/SKILL.md", "README.md"}, skills[0].RelevantFiles)
	assert.Equal(t, []string{"skills/a/SKILL.md", "README.md"}, Union(skills))
}

type stubEngine struct {
	out string
	err error
	req engine.Request
}

func (s *stubEngine) Invoke(_ context.Context, req engine.Request) (json.RawMessage, error) {
	s.req = req
	return json.RawMessage(s.out), s.err
}

func testCache() *codecache.Cache {
	return codecache.New([]codecache.CachedFile{
		{Path: "src/server.ts", Content: "server.tool('search')"},
		{Path: "src/tools/search.ts", Content: "export function search() {}"},
		{Path: "README.md", Content: "# tools"},
	})
}

func TestDiscoverValidatesPaths(t *testing.T) {
	eng := &stubEngine{out: `{"skills":[
		{"skill_name":"web-search","description":"searches","relevant_files":["src/tools/search.ts","src/server.ts","src/ghost.ts"]},
		{"skill_name":"phantom","description":"nothing","relevant_files":["nope.ts"]}
	]}`}
	d := &Discoverer{Engine: eng, Model: "m"}
	skills, err := d.Discover(t.Context(), "acme", "tools", testCache())
	require.NoError(t, err)
	require.Len(t, skills, 1)
	assert.Equal(t, "web-search", skills[0].Name)
	assert.Equal(t, []string{"src/tools/search.ts", "src/server.ts"}, skills[0].RelevantFiles)
	assert.False(t, skills[0].Implicit)

	assert.Equal(t, SchemaName, eng.req.SchemaName)
	assert.Contains(t, eng.req.Prompt, "--- src/server.ts ---")
}

func TestDiscoverFallsBackToImplicitSkill(t *testing.T) {
	for _, out := range []string{`{"skills":[]}`, `garbage`, `{"skills":[{"skill_name":"x","description":"","relevant_files":["missing"]}]}`} {
		d := &Discoverer{Engine: &stubEngine{out: out}}
		skills, err := d.Discover(t.Context(), "acme", "tools", testCache())
		require.NoError(t, err, out)
		require.Len(t, skills, 1, out)
		assert.True(t, skills[0].Implicit)
		assert.Equal(t, "tools", skills[0].Name)
		assert.Len(t, skills[0].RelevantFiles, 3)
	}
}

func TestDiscoverPropagatesEngineErrors(t *testing.T) {
	d := &Discoverer{Engine: &stubEngine{err: &engine.ReportedError{Message: "down"}}}
	_, err := d.Discover(t.Context(), "acme", "tools", testCache())
	var reported *engine.ReportedError
	assert.ErrorAs(t, err, &reported)
}

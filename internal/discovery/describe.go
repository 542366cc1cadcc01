package discovery

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"
)

type frontmatter struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// splitFrontmatter separates a leading "---" YAML block from the body.
func splitFrontmatter(src []byte) (fm frontmatter, body []byte) {
	src = bytes.TrimPrefix(src, []byte("\ufeff"))
	if !bytes.HasPrefix(src, []byte("---")) {
		return fm, src
	}
	rest := src[3:]
	nl := bytes.IndexByte(rest, '\n')
	if nl < 0 || strings.TrimSpace(string(rest[:nl])) != "" {
		return fm, src
	}
	rest = rest[nl+1:]
	end := bytes.Index(rest, []byte("\n---"))
	if end < 0 {
		return fm, src
	}
	head := rest[:end]
	body = rest[end+4:]
	if nl := bytes.IndexByte(body, '\n'); nl >= 0 {
		body = body[nl+1:]
	} else {
		body = nil
	}
	if err := yaml.Unmarshal(head, &fm); err != nil {
		return frontmatter{}, body
	}
	return fm, body
}

// Describe extracts a one-line description from a SKILL.md: the frontmatter
// description when present, otherwise the first markdown paragraph.
func Describe(content string) string {
	fm, body := splitFrontmatter([]byte(content))
	if d := oneLine(fm.Description); d != "" {
		return d
	}
	return oneLine(firstParagraph(body))
}

func firstParagraph(src []byte) string {
	doc := goldmark.New().Parser().Parse(text.NewReader(src))
	var out string
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || n.Kind() != ast.KindParagraph {
			return ast.WalkContinue, nil
		}
		var b strings.Builder
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			b.Write(seg.Value(src))
		}
		out = b.String()
		return ast.WalkStop, nil
	})
	return out
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

package clawhub

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/yourorg/skill-scanner/internal/codecache"
)

// MaxCodeBytes caps the code fetched for one package.
const MaxCodeBytes = 200 * 1024

// SkillFiles are the paths tried for every package. The registry has no
// listing endpoint, so anything else is invisible to the scan.
var SkillFiles = []string{
	"SKILL.md",
	"index.ts",
	"index.js",
	"main.ts",
	"main.js",
	"index.py",
	"main.py",
	"package.json",
	"README.md",
}

// FetchCode downloads the candidate files of d's latest version. Missing
// files are skipped; the second result reports whether the budget cut the
// download short.
func (c *Client) FetchCode(ctx context.Context, d *Detail) (*codecache.Cache, bool, error) {
	var (
		files     []codecache.CachedFile
		total     int
		truncated bool
	)
	for _, p := range SkillFiles {
		if total >= MaxCodeBytes {
			truncated = true
			log.Printf("truncated %s: %dKB limit reached after %d files", d.Slug, MaxCodeBytes/1024, len(files))
			break
		}
		content, err := c.File(ctx, d.Slug, p, d.LatestVersion)
		if err != nil {
			if ctx.Err() != nil {
				return nil, false, ctx.Err()
			}
			continue
		}
		if remaining := MaxCodeBytes - total; len(content) > remaining {
			content = strings.ToValidUTF8(content[:remaining], "") + "\n[... truncated]"
			truncated = true
		}
		files = append(files, codecache.CachedFile{Path: p, Content: content})
		total += len(content)
	}
	if len(files) == 0 {
		return nil, false, fmt.Errorf("no files fetched for skill %s", d.Slug)
	}
	log.Printf("fetched %d files for %s (%.1fKB)", len(files), d.Slug, float64(total)/1024)
	return codecache.New(files), truncated, nil
}

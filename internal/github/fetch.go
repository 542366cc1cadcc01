package github

import (
	"context"
	"fmt"
	"log"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/yourorg/skill-scanner/internal/codecache"
	"github.com/yourorg/skill-scanner/internal/discovery"
)

const (
	// MaxCodeBytes caps a whole-repository sample.
	MaxCodeBytes = 200 * 1024
	// MaxFileBytes skips individual files larger than this.
	MaxFileBytes = 100_000
)

var skipPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:^|/)(?:node_modules|\.git|dist|build|\.next|coverage|\.turbo|vendor|__pycache__)/`),
	regexp.MustCompile(`\.lock$|lock\.json$|lock\.yaml$|-lock\.yml$`),
	regexp.MustCompile(`\.min\.(?:js|css)$|\.map$|\.wasm$`),
	regexp.MustCompile(`(?i)\.(?:png|jpe?g|gif|svg|ico|woff2?|ttf|eot|mp[34]|webm|webp|pdf|zip|gz)$|\.tar\.\w+$`),
}

var priorityNames = []string{"package.json", "readme.md", "readme", "manifest.json", "pyproject.toml", "cargo.toml", "go.mod"}

func skipped(p string) bool {
	for _, re := range skipPatterns {
		if re.MatchString(p) {
			return true
		}
	}
	return false
}

func wanted(e TreeEntry) bool {
	return !skipped(e.Path) && discovery.IsAnalyzable(e.Path) && e.Size <= MaxFileBytes
}

func priority(p string) int {
	name := strings.ToLower(path.Base(p))
	for _, n := range priorityNames {
		if strings.HasPrefix(name, n) {
			return 0
		}
	}
	return 1
}

// Candidates filters tree to analyzable files and orders manifests and
// READMEs first, since they reveal intent, then everything else by path.
func Candidates(t *Tree) []TreeEntry {
	var out []TreeEntry
	for _, e := range t.Blobs() {
		if wanted(e) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := priority(out[i].Path), priority(out[j].Path)
		if pi != pj {
			return pi < pj
		}
		return out[i].Path < out[j].Path
	})
	return out
}

// Fetched is the outcome of a code download.
type Fetched struct {
	Cache *codecache.Cache
	// Truncated is set when the byte budget cut the download short.
	Truncated bool
	Wanted    int
}

// FetchCode downloads file contents into a cache. With scoped paths only
// those files are fetched, in tree order and without a total budget;
// otherwise the prioritised Candidates are fetched until MaxCodeBytes is
// reached. A blob that fails to download is logged and skipped.
func (c *Client) FetchCode(ctx context.Context, owner, repo string, t *Tree, scoped []string) (*Fetched, error) {
	var entries []TreeEntry
	limit := 0
	if scoped != nil {
		want := make(map[string]struct{}, len(scoped))
		for _, p := range scoped {
			want[p] = struct{}{}
		}
		for _, e := range t.Blobs() {
			if _, ok := want[e.Path]; ok && !skipped(e.Path) && e.Size <= MaxFileBytes {
				entries = append(entries, e)
			}
		}
	} else {
		entries = Candidates(t)
		limit = MaxCodeBytes
	}

	res := &Fetched{Wanted: len(entries)}
	var (
		files []codecache.CachedFile
		total int
	)
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if limit > 0 && total >= limit {
			res.Truncated = true
			log.Printf("truncated %s/%s: %dKB limit reached after %d/%d files", owner, repo, limit/1024, len(files), len(entries))
			break
		}
		content, err := c.Blob(ctx, owner, repo, e.SHA)
		if err != nil {
			log.Printf("warning: failed to fetch %s: %v", e.Path, err)
			continue
		}
		if limit > 0 && len(content) > limit-total {
			content = strings.ToValidUTF8(content[:limit-total], "") + "\n[... truncated]"
			res.Truncated = true
		}
		files = append(files, codecache.CachedFile{Path: e.Path, Content: content})
		total += len(content)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no source files found in %s/%s", owner, repo)
	}
	log.Printf("fetched %d/%d files from %s/%s (%.1fKB)", len(files), len(entries), owner, repo, float64(total)/1024)
	res.Cache = codecache.New(files)
	return res, nil
}

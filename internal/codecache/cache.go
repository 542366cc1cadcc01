// Package codecache holds the files fetched for one repository or package so
// every consumer in a scan reads the same bytes without re-downloading.
package codecache

import (
	"fmt"
	"log"
	"strings"
)

type CachedFile struct {
	Path    string
	Content string
}

// Cache is immutable once built.
type Cache struct {
	files []CachedFile
	index map[string]struct{}
	total int
}

const separator = "\n\n"

func New(files []CachedFile) *Cache {
	c := &Cache{
		files: make([]CachedFile, 0, len(files)),
		index: make(map[string]struct{}, len(files)),
	}
	for _, f := range files {
		if _, dup := c.index[f.Path]; dup {
			continue
		}
		c.index[f.Path] = struct{}{}
		c.files = append(c.files, f)
		c.total += len(f.Content)
	}
	return c
}

func (c *Cache) FileCount() int  { return len(c.files) }
func (c *Cache) TotalBytes() int { return c.total }

// Files returns a copy of the cached files in fetch order.
func (c *Cache) Files() []CachedFile {
	out := make([]CachedFile, len(c.files))
	copy(out, c.files)
	return out
}

func (c *Cache) Has(path string) bool {
	_, ok := c.index[path]
	return ok
}

// Content returns the cached text of path.
func (c *Cache) Content(path string) (string, bool) {
	if !c.Has(path) {
		return "", false
	}
	for _, f := range c.files {
		if f.Path == path {
			return f.Content, true
		}
	}
	return "", false
}

func block(f CachedFile) string {
	return "--- " + f.Path + " ---\n" + f.Content
}

// AllCode renders every cached file.
func (c *Cache) AllCode() string {
	parts := make([]string, len(c.files))
	for i, f := range c.files {
		parts[i] = block(f)
	}
	return strings.Join(parts, separator)
}

// ValidatePaths keeps only the paths present in the cache, preserving order
// and dropping duplicates.
func (c *Cache) ValidatePaths(paths []string) []string {
	out := make([]string, 0, len(paths))
	seen := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		if _, ok := c.index[p]; !ok {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// Scoped is a rendered subset of the cache.
type Scoped struct {
	Code      string
	Included  int
	Matched   int
	Truncated bool
}

// TruncationNotice is appended when a scoped view runs out of budget.
func TruncationNotice(included, matched int) string {
	return fmt.Sprintf("%s[... truncated: %d of %d files included]", separator, included, matched)
}

// ScopedView renders the cached files named in paths, in cache order, until
// adding the next file would exceed maxBytes. maxBytes <= 0 disables the
// budget.
func (c *Cache) ScopedView(paths []string, maxBytes int) Scoped {
	want := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		want[p] = struct{}{}
	}

	var (
		b   strings.Builder
		res Scoped
	)
	for _, f := range c.files {
		if _, ok := want[f.Path]; !ok {
			continue
		}
		res.Matched++
		if res.Truncated {
			continue
		}
		chunk := block(f)
		if res.Included > 0 {
			chunk = separator + chunk
		}
		if maxBytes > 0 && b.Len()+len(chunk) > maxBytes {
			res.Truncated = true
			continue
		}
		b.WriteString(chunk)
		res.Included++
	}
	if res.Truncated {
		b.WriteString(TruncationNotice(res.Included, res.Matched))
		log.Printf("scoped code: included %d/%d files within %d bytes", res.Included, res.Matched, maxBytes)
	}
	res.Code = b.String()
	return res
}

// ScopedCode is ScopedView without the accounting.
func (c *Cache) ScopedCode(paths []string, maxBytes int) string {
	return c.ScopedView(paths, maxBytes).Code
}

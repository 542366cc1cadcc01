package github

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/skill-scanner/internal/retry"
)

type fakeRepo struct {
	blobs map[string]string
	tree  Tree
	fails atomic.Int32
}

func (f *fakeRepo) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/tools/commits", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1", r.URL.Query().Get("per_page"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode([]map[string]string{{"sha": "abc123"}})
	})
	mux.HandleFunc("GET /repos/acme/tools/git/trees/abc123", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1", r.URL.Query().Get("recursive"))
		json.NewEncoder(w).Encode(f.tree)
	})
	mux.HandleFunc("GET /repos/acme/tools/git/blobs/{sha}", func(w http.ResponseWriter, r *http.Request) {
		if f.fails.Load() > 0 {
			f.fails.Add(-1)
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		content, ok := f.blobs[r.PathValue("sha")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{
			"encoding": "base64",
			"content":  base64.StdEncoding.EncodeToString([]byte(content)),
		})
	})
	mux.HandleFunc("GET /repos/acme/tools", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"stargazers_count":42,"forks_count":3,"private":false}`))
	})
	return mux
}

func newTestClient(t *testing.T, f *fakeRepo) *Client {
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	c := New("tok")
	c.BaseURL = srv.URL
	c.Retry = retry.Options{BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
	return c
}

func entry(p, sha string, size int64) TreeEntry {
	return TreeEntry{Path: p, Type: "blob", SHA: sha, Size: size}
}

func TestClientReadsRepository(t *testing.T) {
	f := &fakeRepo{
		blobs: map[string]string{"s1": "console.log(1)"},
		tree:  Tree{SHA: "abc123", Entries: []TreeEntry{entry("index.js", "s1", 14), {Path: "src", Type: "tree"}}},
	}
	c := newTestClient(t, f)

	sha, err := c.LatestCommit(t.Context(), "acme", "tools")
	require.NoError(t, err)
	assert.Equal(t, "abc123", sha)

	tree, err := c.Tree(t.Context(), "acme", "tools", sha)
	require.NoError(t, err)
	assert.Equal(t, []string{"index.js"}, tree.Paths())

	content, err := c.Blob(t.Context(), "acme", "tools", "s1")
	require.NoError(t, err)
	assert.Equal(t, "console.log(1)", content)

	meta, err := c.Repo(t.Context(), "acme", "tools")
	require.NoError(t, err)
	assert.Equal(t, 42, meta.Stars)
}

func TestBlobRetriesTransientStatus(t *testing.T) {
	f := &fakeRepo{blobs: map[string]string{"s1": "x"}}
	f.fails.Store(2)
	c := newTestClient(t, f)
	content, err := c.Blob(t.Context(), "acme", "tools", "s1")
	require.NoError(t, err)
	assert.Equal(t, "x", content)
}

func TestBlobDoesNotRetryNotFound(t *testing.T) {
	c := newTestClient(t, &fakeRepo{})
	_, err := c.Blob(t.Context(), "acme", "tools", "missing")
	var se *retry.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.Status)
}

func TestCandidatesFilterAndOrder(t *testing.T) {
	tree := &Tree{Entries: []TreeEntry{
		entry("src/z.ts", "1", 10),
		entry("node_modules/x/index.js", "2", 10),
		entry("package-lock.json", "3", 10),
		entry("logo.PNG", "4", 10),
		entry("src/big.js", "5", MaxFileBytes+1),
		entry("README.md", "6", 10),
		entry("src/a.py", "7", 10),
		entry("package.json", "8", 10),
		entry("bin/tool.exe", "9", 10),
		entry("dist/out.js", "10", 10),
	}}
	var got []string
	for _, e := range Candidates(tree) {
		got = append(got, e.Path)
	}
	assert.Equal(t, []string{"README.md", "package.json", "src/a.py", "src/z.ts"}, got)
}

func TestFetchCodeAppliesBudget(t *testing.T) {
	big := strings.Repeat("a", 90_000)
	f := &fakeRepo{
		blobs: map[string]string{"1": big, "2": big, "3": big, "4": "tail"},
		tree: Tree{Entries: []TreeEntry{
			entry("a.js", "1", 90_000), entry("b.js", "2", 90_000), entry("c.js", "3", 90_000), entry("d.js", "4", 4),
		}},
	}
	c := newTestClient(t, f)
	got, err := c.FetchCode(t.Context(), "acme", "tools", &f.tree, nil)
	require.NoError(t, err)
	assert.True(t, got.Truncated)
	assert.Equal(t, 3, got.Cache.FileCount())
	assert.LessOrEqual(t, got.Cache.TotalBytes(), MaxCodeBytes+len("\n[... truncated]"))
	assert.False(t, got.Cache.Has("d.js"))
}

func TestFetchCodeScoped(t *testing.T) {
	f := &fakeRepo{
		blobs: map[string]string{"1": "skill", "2": "code", "3": "other"},
		tree: Tree{Entries: []TreeEntry{
			entry("skills/a/SKILL.md", "1", 5), entry("skills/a/run.sh", "2", 4), entry("skills/b/SKILL.md", "3", 5),
			entry("skills/a/icon.png", "4", 5),
		}},
	}
	c := newTestClient(t, f)
	got, err := c.FetchCode(t.Context(), "acme", "tools", &f.tree, []string{"skills/a/SKILL.md", "skills/a/run.sh", "skills/a/icon.png"})
	require.NoError(t, err)
	assert.False(t, got.Truncated)
	assert.Equal(t, 2, got.Cache.FileCount())
	assert.False(t, got.Cache.Has("skills/b/SKILL.md"))
}

func TestFetchCodeWithNothingToFetch(t *testing.T) {
	f := &fakeRepo{tree: Tree{Entries: []TreeEntry{entry("logo.png", "1", 5)}}}
	c := newTestClient(t, f)
	_, err := c.FetchCode(t.Context(), "acme", "tools", &f.tree, nil)
	assert.ErrorContains(t, err, "no source files")
}

func TestStalledRequestTimesOut(t *testing.T) {
	assert.Equal(t, DefaultTimeout, New("").HTTP.Timeout)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)
	c := New("")
	c.BaseURL = srv.URL
	c.HTTP.Timeout = 20 * time.Millisecond
	c.Retry = retry.Options{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}

	start := time.Now()
	_, err := c.Blob(t.Context(), "acme", "tools", "s1")
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

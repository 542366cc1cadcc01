// Package github reads repositories through the GitHub REST API: latest
// commit, recursive tree, blobs and public metadata.
package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yourorg/skill-scanner/internal/retry"
)

const DefaultBaseURL = "https://api.github.com"

// DefaultTimeout bounds each request attempt, body included.
const DefaultTimeout = 10 * time.Second

type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
	Retry   retry.Options
}

// New returns a client for api.github.com. token may be empty, which limits
// the client to unauthenticated rate limits.
func New(token string) *Client {
	return &Client{
		BaseURL: DefaultBaseURL,
		Token:   token,
		HTTP:    &http.Client{Timeout: DefaultTimeout},
	}
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	opts := c.Retry
	opts.Label = "github " + path
	return retry.Run(ctx, opts, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(c.BaseURL, "/")+path, nil)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Accept", "application/vnd.github.v3+json")
		req.Header.Set("User-Agent", "skill-scanner/1.0")
		if c.Token != "" {
			req.Header.Set("Authorization", "Bearer "+c.Token)
		}
		resp, err := c.HTTP.Do(req)
		if err != nil {
			return fmt.Errorf("github %s: %w", path, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return &retry.StatusError{Op: "github " + path, Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("github %s: decoding response: %w", path, err)
		}
		return nil
	})
}

// LatestCommit returns the SHA of the default branch head.
func (c *Client) LatestCommit(ctx context.Context, owner, repo string) (string, error) {
	var commits []struct {
		SHA string `json:"sha"`
	}
	if err := c.get(ctx, fmt.Sprintf("/repos/%s/%s/commits?per_page=1", owner, repo), &commits); err != nil {
		return "", err
	}
	if len(commits) == 0 {
		return "", fmt.Errorf("no commits found for %s/%s", owner, repo)
	}
	return commits[0].SHA, nil
}

type TreeEntry struct {
	Path string `json:"path"`
	Type string `json:"type"`
	SHA  string `json:"sha"`
	Size int64  `json:"size"`
}

type Tree struct {
	SHA       string      `json:"sha"`
	Entries   []TreeEntry `json:"tree"`
	Truncated bool        `json:"truncated"`
}

// Blobs returns the file entries, dropping directories and submodules.
func (t *Tree) Blobs() []TreeEntry {
	out := make([]TreeEntry, 0, len(t.Entries))
	for _, e := range t.Entries {
		if e.Type == "blob" {
			out = append(out, e)
		}
	}
	return out
}

// Paths lists every blob path in tree order.
func (t *Tree) Paths() []string {
	blobs := t.Blobs()
	out := make([]string, len(blobs))
	for i, b := range blobs {
		out[i] = b.Path
	}
	return out
}

// Tree fetches the recursive tree at sha. GitHub caps very large trees; the
// Truncated flag is passed through for the caller to log.
func (c *Client) Tree(ctx context.Context, owner, repo, sha string) (*Tree, error) {
	var t Tree
	if err := c.get(ctx, fmt.Sprintf("/repos/%s/%s/git/trees/%s?recursive=1", owner, repo, sha), &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// Blob returns the decoded content of one blob.
func (c *Client) Blob(ctx context.Context, owner, repo, sha string) (string, error) {
	var b struct {
		Content  string `json:"content"`
		Encoding string `json:"encoding"`
	}
	if err := c.get(ctx, fmt.Sprintf("/repos/%s/%s/git/blobs/%s", owner, repo, sha), &b); err != nil {
		return "", err
	}
	if b.Encoding != "base64" {
		return b.Content, nil
	}
	raw, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(b.Content, "\n", ""))
	if err != nil {
		return "", fmt.Errorf("decoding blob %s: %w", sha, err)
	}
	return string(raw), nil
}

type RepoMeta struct {
	Stars   int  `json:"stargazers_count"`
	Forks   int  `json:"forks_count"`
	Private bool `json:"private"`
}

// Repo fetches public repository metadata.
func (c *Client) Repo(ctx context.Context, owner, repo string) (*RepoMeta, error) {
	var m RepoMeta
	if err := c.get(ctx, fmt.Sprintf("/repos/%s/%s", owner, repo), &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Package clawhub is a self-throttling client for the ClawHub skill registry.
package clawhub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/yourorg/skill-scanner/internal/retry"
)

const (
	DefaultBaseURL   = "https://clawhub.ai/api/v1"
	DefaultConvexURL = "https://wry-manatee-359.convex.cloud/api/query"
	// SiteURL prefixes public skill pages.
	SiteURL = "https://clawhub.ai/skills/"

	// RequestInterval keeps the client under the registry's 120 requests
	// per minute.
	RequestInterval = 500 * time.Millisecond

	// DefaultTimeout bounds each request attempt.
	DefaultTimeout = 10 * time.Second
)

type Client struct {
	BaseURL   string
	ConvexURL string
	HTTP      *http.Client
	Retry     retry.Options
	limiter   *rate.Limiter
}

// New returns a client with its own limiter. Empty URLs select the public
// registry.
func New(baseURL, convexURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if convexURL == "" {
		convexURL = DefaultConvexURL
	}
	return &Client{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		ConvexURL: convexURL,
		HTTP:      &http.Client{Timeout: DefaultTimeout},
		limiter:   rate.NewLimiter(rate.Every(RequestInterval), 1),
	}
}

// SetInterval replaces the limiter, mostly so tests can run unthrottled.
func (c *Client) SetInterval(d time.Duration) {
	c.limiter = rate.NewLimiter(rate.Every(d), 1)
}

func (c *Client) fetch(ctx context.Context, path string, params url.Values, accept string) ([]byte, error) {
	u := c.BaseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	opts := c.Retry
	opts.Label = "clawhub " + path
	return retry.Do(ctx, opts, func(ctx context.Context) ([]byte, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		if accept != "" {
			req.Header.Set("Accept", accept)
		}
		req.Header.Set("User-Agent", "skill-scanner/1.0")
		resp, err := c.HTTP.Do(req)
		if err != nil {
			return nil, fmt.Errorf("clawhub %s: %w", path, err)
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("clawhub %s: reading body: %w", path, err)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, &retry.StatusError{Op: "clawhub " + path, Status: resp.StatusCode, Body: clip(string(body), 512)}
		}
		return body, nil
	})
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	body, err := c.fetch(ctx, path, params, "application/json")
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("clawhub %s: decoding response: %w", path, err)
	}
	return nil
}

// Sort orders registry listings.
type Sort string

const (
	SortTrending  Sort = "trending"
	SortUpdated   Sort = "updated"
	SortDownloads Sort = "downloads"
	SortStars     Sort = "stars"
)

type Page struct {
	Skills []Summary
	Total  int
	Cursor string
}

// List fetches one page of the registry listing.
func (c *Client) List(ctx context.Context, sort Sort, limit int, cursor string) (*Page, error) {
	params := url.Values{"sort": {string(sort)}, "limit": {strconv.Itoa(limit)}}
	if cursor != "" {
		params.Set("cursor", cursor)
	}
	var raw rawList
	if err := c.getJSON(ctx, "/skills", params, &raw); err != nil {
		return nil, err
	}
	page := &Page{Total: raw.Total, Skills: make([]Summary, len(raw.Items))}
	if raw.NextCursor != nil {
		page.Cursor = *raw.NextCursor
	}
	for i, it := range raw.Items {
		page.Skills[i] = it.summary()
	}
	return page, nil
}

// ListAll pages through the listing, handing each batch to fn, until the
// registry runs out or maxTotal skills were seen. maxTotal <= 0 means no cap.
func (c *Client) ListAll(ctx context.Context, sort Sort, batch, maxTotal int, fn func([]Summary) error) error {
	var (
		cursor  string
		fetched int
	)
	for {
		limit := batch
		if maxTotal > 0 {
			limit = min(batch, maxTotal-fetched)
		}
		if limit <= 0 {
			return nil
		}
		page, err := c.List(ctx, sort, limit, cursor)
		if err != nil {
			return err
		}
		if len(page.Skills) == 0 {
			return nil
		}
		if err := fn(page.Skills); err != nil {
			return err
		}
		fetched += len(page.Skills)
		if page.Cursor == "" || (maxTotal > 0 && fetched >= maxTotal) {
			return nil
		}
		cursor = page.Cursor
	}
}

// Skill fetches a skill's detail and, in parallel and best-effort, the
// security data the registry keeps for its latest version.
func (c *Client) Skill(ctx context.Context, slug string) (*Detail, error) {
	var (
		raw rawDetail
		sec *Security
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.getJSON(gctx, "/skills/"+url.PathEscape(slug), nil, &raw)
	})
	g.Go(func() error {
		sec = c.security(gctx, slug)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	d := raw.detail()
	d.Security = sec
	return d, nil
}

// File fetches one file of a published skill version.
func (c *Client) File(ctx context.Context, slug, path, version string) (string, error) {
	params := url.Values{"path": {path}}
	if version != "" {
		params.Set("version", version)
	}
	body, err := c.fetch(ctx, "/skills/"+url.PathEscape(slug)+"/file", params, "")
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// security asks the registry's Convex backend for scanner verdicts. Any
// failure yields nil.
func (c *Client) security(ctx context.Context, slug string) *Security {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	body, _ := json.Marshal(map[string]any{"path": "skills:getBySlug", "args": map[string]string{"slug": slug}})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.ConvexURL, bytes.NewReader(body))
	if err != nil {
		return nil
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTP.Do(req)
	if err != nil {
		log.Printf("warning: clawhub security data for %s: %v", slug, err)
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil
	}
	var out struct {
		Value *struct {
			LatestVersion *struct {
				SHA256Hash  *string      `json:"sha256hash"`
				VTAnalysis  *VTAnalysis  `json:"vtAnalysis"`
				LLMAnalysis *LLMAnalysis `json:"llmAnalysis"`
			} `json:"latestVersion"`
		} `json:"value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || out.Value == nil || out.Value.LatestVersion == nil {
		return nil
	}
	v := out.Value.LatestVersion
	s := &Security{VT: v.VTAnalysis, LLM: v.LLMAnalysis}
	if v.SHA256Hash != nil {
		s.SHA256 = *v.SHA256Hash
	}
	return s
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

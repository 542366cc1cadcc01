// Package sink submits scan results to the registry API and answers the
// dedup question of whether a result already exists.
package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/yourorg/skill-scanner/internal/model"
	"github.com/yourorg/skill-scanner/internal/retry"
)

const DefaultBaseURL = "https://scanner.pyxmate.com"

// DefaultTimeout bounds each request attempt.
const DefaultTimeout = 10 * time.Second

// ErrNoAPIKey is returned by Submit when no admin key is configured.
var ErrNoAPIKey = errors.New("sink: admin API key not configured")

type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
	Retry   retry.Options
}

func New(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: DefaultTimeout},
	}
}

// CanSubmit reports whether an admin key is configured.
func (c *Client) CanSubmit() bool { return c.APIKey != "" }

// Submit posts one result. A 409 means the sink already holds a result for
// this owner, name and commit, and is treated as success.
func (c *Client) Submit(ctx context.Context, p *model.ResultPayload) error {
	if c.APIKey == "" {
		return ErrNoAPIKey
	}
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}
	u := c.BaseURL + "/api/v1/scan-result"
	opts := c.Retry
	opts.Label = fmt.Sprintf("submit %s/%s", p.Owner, p.Name)
	return retry.Run(ctx, opts, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
		resp, err := c.HTTP.Do(req)
		if err != nil {
			return retry.Transient(fmt.Errorf("reaching %s: %w", u, err))
		}
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		switch {
		case resp.StatusCode == http.StatusConflict:
			log.Printf("result for %s/%s@%s already stored", p.Owner, p.Name, p.CommitHash)
			return nil
		case resp.StatusCode >= 300:
			return &retry.StatusError{Op: "submit " + p.Owner + "/" + p.Name, Status: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
		}
		log.Printf("result submitted for %s/%s", p.Owner, p.Name)
		return nil
	})
}

// Exists reports whether a result for owner/name at commit is already
// stored. Without an API key, or on any error, it answers false so a scan
// is never blocked by the dedup check.
func (c *Client) Exists(ctx context.Context, owner, name, commit string) bool {
	if c.APIKey == "" {
		return false
	}
	q := url.Values{"owner": {owner}, "name": {name}, "commit_hash": {commit}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/api/v1/scan-result/exists?"+q.Encode(), nil)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	resp, err := c.HTTP.Do(req)
	if err != nil {
		log.Printf("warning: dedup check for %s/%s: %v", owner, name, err)
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false
	}
	var out struct {
		Exists bool `json:"exists"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false
	}
	return out.Exists
}

// Ping checks that the sink is reachable at all. Any HTTP response counts.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodOptions, c.BaseURL+"/api/v1/scan-result", nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("cannot reach API at %s: %w", c.BaseURL, err)
	}
	resp.Body.Close()
	return nil
}

// Package depscan looks up declared npm dependencies in the OSV database.
// It never fails a scan: every error is folded into Result.Error.
package depscan

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/mod/semver"
	"golang.org/x/sync/errgroup"

	"github.com/yourorg/skill-scanner/internal/codecache"
	"github.com/yourorg/skill-scanner/internal/model"
)

const (
	DefaultBaseURL = "https://api.osv.dev"
	defaultTimeout = 10 * time.Second
	ecosystem      = "npm"
)

type Dependency struct {
	Name    string
	Version string
}

type Result struct {
	Vulnerabilities []model.DepVulnerability `json:"vulnerabilities"`
	ScannedPackages int                      `json:"scanned_packages"`
	Error           string                   `json:"error,omitempty"`
}

type Scanner struct {
	BaseURL string
	HTTP    *http.Client
	// Timeout bounds the whole lookup, batch query and hydration included.
	Timeout time.Duration
	// Hydrate is the number of concurrent advisory fetches.
	Hydrate int
}

func New(baseURL string) *Scanner {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Scanner{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{},
		Timeout: defaultTimeout,
		Hydrate: 4,
	}
}

var rangePrefix = regexp.MustCompile(`^[\^~>=<*| ]+`)

func stripRange(v string) string {
	return strings.TrimSpace(rangePrefix.ReplaceAllString(v, ""))
}

func skippable(raw, version string) bool {
	if version == "" || raw == "*" || version == "*" {
		return true
	}
	for _, p := range []string{"git", "file:", "workspace:", "link:", "http:", "https:", "npm:"} {
		if strings.HasPrefix(version, p) {
			return true
		}
	}
	return false
}

// ExtractDependencies reads runtime and dev dependencies from every
// package.json in files. A dev entry overrides a runtime entry of the same
// name. Invalid manifests are skipped.
func ExtractDependencies(files []codecache.CachedFile) []Dependency {
	var deps []Dependency
	for _, f := range files {
		if path.Base(f.Path) != "package.json" {
			continue
		}
		var manifest struct {
			Dependencies    map[string]any `json:"dependencies"`
			DevDependencies map[string]any `json:"devDependencies"`
		}
		if err := json.Unmarshal([]byte(f.Content), &manifest); err != nil {
			continue
		}
		merged := map[string]any{}
		for k, v := range manifest.Dependencies {
			merged[k] = v
		}
		for k, v := range manifest.DevDependencies {
			merged[k] = v
		}
		names := make([]string, 0, len(merged))
		for k := range merged {
			names = append(names, k)
		}
		sort.Strings(names)
		for _, name := range names {
			raw, ok := merged[name].(string)
			if !ok {
				continue
			}
			v := stripRange(raw)
			if skippable(strings.TrimSpace(raw), v) {
				continue
			}
			deps = append(deps, Dependency{Name: name, Version: v})
		}
	}
	return deps
}

// Scan extracts dependencies from files and looks them up.
func (s *Scanner) Scan(ctx context.Context, files []codecache.CachedFile) Result {
	return s.Query(ctx, ExtractDependencies(files))
}

// Query looks deps up with one batch call, then fetches full advisory
// records for bare batch hits.
func (s *Scanner) Query(ctx context.Context, deps []Dependency) Result {
	res := Result{Vulnerabilities: []model.DepVulnerability{}, ScannedPackages: len(deps)}
	if len(deps) == 0 {
		return res
	}
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req := osvBatchRequest{Queries: make([]osvQuery, len(deps))}
	for i, d := range deps {
		req.Queries[i] = osvQuery{Version: d.Version, Package: osvPackage{Name: d.Name, Ecosystem: ecosystem}}
	}
	var batch osvBatchResponse
	if err := s.postJSON(ctx, "/v1/querybatch", req, &batch); err != nil {
		res.Error = err.Error()
		return res
	}

	full, err := s.hydrate(ctx, batch)
	if err != nil {
		res.Error = err.Error()
	}

	seen := map[string]struct{}{}
	for i, r := range batch.Results {
		if i >= len(deps) {
			break
		}
		dep := deps[i]
		for _, v := range r.Vulns {
			key := v.ID + ":" + dep.Name
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			if f, ok := full[v.ID]; ok {
				v = f
			}
			res.Vulnerabilities = append(res.Vulnerabilities, toVulnerability(v, dep))
		}
	}
	sort.SliceStable(res.Vulnerabilities, func(i, j int) bool {
		return severityRank(res.Vulnerabilities[i].Severity) < severityRank(res.Vulnerabilities[j].Severity)
	})
	return res
}

// hydrate fetches /v1/vulns/{id} for every bare batch hit. A failed fetch
// leaves that advisory bare; only the first failure is reported.
func (s *Scanner) hydrate(ctx context.Context, batch osvBatchResponse) (map[string]osvVuln, error) {
	var ids []string
	seen := map[string]struct{}{}
	for _, r := range batch.Results {
		for _, v := range r.Vulns {
			if !v.minimal() {
				continue
			}
			if _, ok := seen[v.ID]; ok {
				continue
			}
			seen[v.ID] = struct{}{}
			ids = append(ids, v.ID)
		}
	}
	out := make(map[string]osvVuln, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var (
		mu       sync.Mutex
		firstErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	limit := s.Hydrate
	if limit <= 0 {
		limit = 1
	}
	g.SetLimit(limit)
	for _, id := range ids {
		g.Go(func() error {
			var v osvVuln
			err := s.getJSON(gctx, "/v1/vulns/"+id, &v)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("hydrate %s: %w", id, err)
				}
				return nil
			}
			out[id] = v
			return nil
		})
	}
	_ = g.Wait()
	return out, firstErr
}

func (s *Scanner) postJSON(ctx context.Context, p string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL+p, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return s.do(req, out)
}

func (s *Scanner) getJSON(ctx context.Context, p string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.BaseURL+p, nil)
	if err != nil {
		return err
	}
	return s.do(req, out)
}

func (s *Scanner) do(req *http.Request, out any) error {
	client := s.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("OSV API unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("OSV API returned %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("OSV API returned invalid JSON: %w", err)
	}
	return nil
}

func toVulnerability(v osvVuln, dep Dependency) model.DepVulnerability {
	summary := v.Summary
	if summary == "" {
		summary = firstLine(v.Details)
	}
	if summary == "" {
		summary = "No summary available"
	}
	ref := "https://osv.dev/vulnerability/" + v.ID
	if len(v.References) > 0 && v.References[0].URL != "" {
		ref = v.References[0].URL
	}
	return model.DepVulnerability{
		ID:               v.ID,
		PackageName:      dep.Name,
		InstalledVersion: dep.Version,
		Severity:         severityOf(v),
		Summary:          summary,
		FixedVersion:     fixedVersion(v, dep),
		ReferenceURL:     ref,
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

func severityFromScore(score float64) string {
	switch {
	case score >= 9:
		return model.VulnCritical
	case score >= 7:
		return model.VulnHigh
	case score >= 4:
		return model.VulnModerate
	default:
		return model.VulnLow
	}
}

// severityOf never drops an advisory: numeric score, then computed v3
// vector, then the database label, then MODERATE.
func severityOf(v osvVuln) string {
	for _, s := range v.Severity {
		if s.Type != "CVSS_V3" && s.Type != "CVSS_V2" {
			continue
		}
		if f, err := strconv.ParseFloat(strings.TrimSpace(s.Score), 64); err == nil {
			return severityFromScore(f)
		}
		if f, ok := cvss3BaseScore(s.Score); ok {
			return severityFromScore(f)
		}
	}
	switch strings.ToUpper(v.DatabaseSpecific.Severity) {
	case "CRITICAL":
		return model.VulnCritical
	case "HIGH":
		return model.VulnHigh
	case "MODERATE", "MEDIUM":
		return model.VulnModerate
	case "LOW":
		return model.VulnLow
	}
	return model.VulnModerate
}

func severityRank(s string) int {
	switch s {
	case model.VulnCritical:
		return 0
	case model.VulnHigh:
		return 1
	case model.VulnModerate:
		return 2
	default:
		return 3
	}
}

func canonical(v string) string {
	v = strings.TrimPrefix(strings.TrimSpace(v), "v")
	return "v" + v
}

// fixedVersion picks the lowest fixed release above the installed version,
// falling back to the lowest fixed release overall.
func fixedVersion(v osvVuln, dep Dependency) *string {
	var fixes []string
	for _, a := range v.Affected {
		if a.Package != nil && a.Package.Name != "" && a.Package.Name != dep.Name {
			continue
		}
		for _, r := range a.Ranges {
			for _, e := range r.Events {
				if e.Fixed != "" {
					fixes = append(fixes, e.Fixed)
				}
			}
		}
	}
	if len(fixes) == 0 {
		return nil
	}
	sort.SliceStable(fixes, func(i, j int) bool { return lessVersion(fixes[i], fixes[j]) })

	installed := canonical(dep.Version)
	if semver.IsValid(installed) {
		for _, f := range fixes {
			if c := canonical(f); semver.IsValid(c) && semver.Compare(c, installed) > 0 {
				return &f
			}
		}
	}
	return &fixes[0]
}

func lessVersion(a, b string) bool {
	ca, cb := canonical(a), canonical(b)
	va, vb := semver.IsValid(ca), semver.IsValid(cb)
	switch {
	case va && vb:
		return semver.Compare(ca, cb) < 0
	case va != vb:
		return va
	default:
		return a < b
	}
}

package clawhub

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/skill-scanner/internal/model"
	"github.com/yourorg/skill-scanner/internal/retry"
)

type registry struct {
	mu    sync.Mutex
	hits  []time.Time
	files map[string]string
	// unavailable answers that many listing requests with 503.
	unavailable int
}

func (r *registry) down() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.unavailable > 0 {
		r.unavailable--
		return true
	}
	return false
}

func (r *registry) record() {
	r.mu.Lock()
	r.hits = append(r.hits, time.Now())
	r.mu.Unlock()
}

func (r *registry) server(t *testing.T) (*httptest.Server, *httptest.Server) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /skills", func(w http.ResponseWriter, req *http.Request) {
		r.record()
		if r.down() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		cursor := req.URL.Query().Get("cursor")
		next := "c2"
		slug := "one"
		if cursor == "c2" {
			slug = "two"
			next = ""
		}
		resp := map[string]any{
			"items": []map[string]any{{
				"slug": slug, "summary": "desc " + slug,
				"stats":         map[string]int{"downloads": 10, "stars": 2},
				"latestVersion": map[string]any{"version": "1.0.0"},
				"updatedAt":     int64(1700000000000),
			}},
			"total": 2,
		}
		if next != "" {
			resp["nextCursor"] = next
		}
		json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("GET /skills/{slug}", func(w http.ResponseWriter, req *http.Request) {
		r.record()
		w.Write([]byte(`{
			"skill":{"slug":"weather","summary":"Forecasts","stats":{"downloads":120,"stars":7},"updatedAt":1700000000000},
			"latestVersion":{"version":"2.1.0"},
			"owner":{"handle":"alice","displayName":"Alice"},
			"moderation":{"isSuspicious":true,"isMalwareBlocked":false}
		}`))
	})
	mux.HandleFunc("GET /skills/{slug}/file", func(w http.ResponseWriter, req *http.Request) {
		r.record()
		assert.Equal(t, "2.1.0", req.URL.Query().Get("version"))
		content, ok := r.files[req.URL.Query().Get("path")]
		if !ok {
			http.NotFound(w, req)
			return
		}
		w.Write([]byte(content))
	})
	api := httptest.NewServer(mux)
	t.Cleanup(api.Close)

	convex := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Path string            `json:"path"`
			Args map[string]string `json:"args"`
		}
		json.NewDecoder(req.Body).Decode(&body)
		assert.Equal(t, "skills:getBySlug", body.Path)
		w.Write([]byte(`{"value":{"latestVersion":{
			"sha256hash":"deadbeef",
			"vtAnalysis":{"status":"clean","verdict":"benign","checkedAt":1700000000000},
			"llmAnalysis":{"status":"malicious","verdict":"malicious","summary":"steals tokens","confidence":"high"}
		}}}`))
	}))
	t.Cleanup(convex.Close)
	return api, convex
}

func newTestClient(t *testing.T, r *registry) *Client {
	api, convex := r.server(t)
	c := New(api.URL, convex.URL)
	c.SetInterval(time.Millisecond)
	c.Retry = retry.Options{BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
	return c
}

func TestSkillMergesSecurityData(t *testing.T) {
	c := newTestClient(t, &registry{})
	d, err := c.Skill(t.Context(), "weather")
	require.NoError(t, err)
	assert.Equal(t, "weather", d.Name)
	assert.Equal(t, "alice", d.Owner.Handle)
	assert.Equal(t, "2.1.0", d.LatestVersion)
	assert.Equal(t, 120, d.Downloads)
	require.NotNil(t, d.Security)
	assert.Equal(t, "deadbeef", d.Security.SHA256)
	assert.Equal(t, "https://clawhub.ai/skills/weather", d.URL())
}

func TestSkillWithoutSecurityBackend(t *testing.T) {
	api, _ := (&registry{}).server(t)
	c := New(api.URL, "http://127.0.0.1:1/unreachable")
	c.SetInterval(time.Millisecond)
	d, err := c.Skill(t.Context(), "weather")
	require.NoError(t, err)
	assert.Nil(t, d.Security)
}

func TestListAllFollowsCursor(t *testing.T) {
	c := newTestClient(t, &registry{})
	var slugs []string
	err := c.ListAll(t.Context(), SortTrending, 50, 0, func(batch []Summary) error {
		for _, s := range batch {
			slugs = append(slugs, s.Slug)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, slugs)

	slugs = nil
	require.NoError(t, c.ListAll(t.Context(), SortTrending, 50, 1, func(batch []Summary) error {
		for _, s := range batch {
			slugs = append(slugs, s.Slug)
		}
		return nil
	}))
	assert.Equal(t, []string{"one"}, slugs)
}

func TestRequestsAreThrottled(t *testing.T) {
	r := &registry{}
	c := newTestClient(t, r)
	c.SetInterval(40 * time.Millisecond)
	for range 3 {
		_, err := c.List(t.Context(), SortUpdated, 1, "")
		require.NoError(t, err)
	}
	r.mu.Lock()
	hits := append([]time.Time(nil), r.hits...)
	r.mu.Unlock()
	require.Len(t, hits, 3)
	for i := 1; i < len(hits); i++ {
		assert.GreaterOrEqual(t, hits[i].Sub(hits[i-1]), 30*time.Millisecond)
	}
}

func TestFetchCodeSkipsMissingFiles(t *testing.T) {
	r := &registry{files: map[string]string{"SKILL.md": "# weather", "index.js": "fetch(url)"}}
	c := newTestClient(t, r)
	d := &Detail{Summary: Summary{Slug: "weather", LatestVersion: "2.1.0"}}
	cache, truncated, err := c.FetchCode(t.Context(), d)
	require.NoError(t, err)
	assert.False(t, truncated)
	assert.Equal(t, 2, cache.FileCount())
	assert.True(t, cache.Has("index.js"))

	_, _, err = c.FetchCode(t.Context(), &Detail{Summary: Summary{Slug: "empty", LatestVersion: "2.1.0"}})
	assert.Error(t, err)
}

func TestExternalScans(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	assert.Nil(t, ExternalScans(&Detail{Summary: Summary{Slug: "x"}}, now))

	moderated := ExternalScans(&Detail{Summary: Summary{Slug: "x"}, Moderation: &Moderation{IsMalwareBlocked: true}}, now)
	require.NotNil(t, moderated)
	vt, oc := moderated.Providers[0], moderated.Providers[1]
	assert.Equal(t, model.ScanMalware, vt.Status)
	assert.Equal(t, "Malware blocked", *vt.Verdict)
	assert.Equal(t, "high", *vt.Confidence)
	assert.Equal(t, "https://clawhub.ai/skills/x", *vt.ReportURL)
	assert.Equal(t, model.ScanNotAvailable, oc.Status)
	assert.Nil(t, oc.CheckedAt)

	full := ExternalScans(&Detail{
		Summary: Summary{Slug: "x"},
		Security: &Security{
			SHA256: "abc",
			VT:     &VTAnalysis{Status: "suspicious", Verdict: "flagged", CheckedAt: 1700000000000},
			LLM:    &LLMAnalysis{Status: "pending", Verdict: "benign", Confidence: "low"},
		},
	}, now)
	vt, oc = full.Providers[0], full.Providers[1]
	assert.Equal(t, model.ScanSuspicious, vt.Status)
	assert.Equal(t, "flagged", *vt.Verdict)
	assert.Equal(t, "medium", *vt.Confidence)
	assert.Equal(t, "https://www.virustotal.com/gui/file/abc", *vt.ReportURL)
	assert.Equal(t, "2023-11-14T22:13:20Z", *vt.CheckedAt)
	assert.Equal(t, model.ScanUnknown, oc.Status)
	assert.Equal(t, "benign", *oc.Verdict)
	assert.Equal(t, "2026-01-02T03:04:05Z", *oc.CheckedAt)
	assert.Equal(t, "2026-01-02T03:04:05Z", full.FetchedAt)
}

func TestRetriedRequestsAreThrottled(t *testing.T) {
	r := &registry{unavailable: 1}
	c := newTestClient(t, r)
	c.SetInterval(40 * time.Millisecond)
	_, err := c.List(t.Context(), SortUpdated, 1, "")
	require.NoError(t, err)

	r.mu.Lock()
	hits := append([]time.Time(nil), r.hits...)
	r.mu.Unlock()
	require.Len(t, hits, 2)
	assert.GreaterOrEqual(t, hits[1].Sub(hits[0]), 30*time.Millisecond)
}

func TestDefaultTimeoutIsShort(t *testing.T) {
	c := New("", "")
	assert.Equal(t, DefaultTimeout, c.HTTP.Timeout)
	assert.LessOrEqual(t, c.HTTP.Timeout, 10*time.Second)
}

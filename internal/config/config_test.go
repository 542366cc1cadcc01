package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"SCAN_MODEL", "SCAN_ENGINE", "QUEUE_LIMIT", "POLL_INTERVAL", "STALE_TIMEOUT", "S3_ENDPOINT", "REPORTS_BUCKET"} {
		t.Setenv(k, "")
	}
	cfg := Load()
	assert.Equal(t, "sonnet", cfg.Model)
	assert.Equal(t, "api", cfg.Engine)
	assert.Equal(t, 10, cfg.QueueLimit)
	assert.Equal(t, 5*time.Second, cfg.PollInterval)
	assert.Equal(t, 30*time.Minute, cfg.StaleTimeout)
	assert.False(t, cfg.ArchiveEnabled())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("QUEUE_LIMIT", "25")
	t.Setenv("POLL_INTERVAL", "2s")
	t.Setenv("STALE_TIMEOUT", "not-a-duration")
	t.Setenv("S3_USE_SSL", "true")
	t.Setenv("S3_ENDPOINT", "minio:9000")
	t.Setenv("REPORTS_BUCKET", "reports")
	cfg := Load()
	assert.Equal(t, 25, cfg.QueueLimit)
	assert.Equal(t, 2*time.Second, cfg.PollInterval)
	assert.Equal(t, 30*time.Minute, cfg.StaleTimeout)
	assert.True(t, cfg.S3UseSSL)
	assert.True(t, cfg.ArchiveEnabled())
}

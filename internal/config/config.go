package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

type Config struct {
	DatabaseURL    string
	LocalQueuePath string

	S3Endpoint    string
	S3AccessKey   string
	S3SecretKey   string
	S3UseSSL      bool
	ReportsBucket string

	APIURL      string
	AdminAPIKey string
	GitHubToken string

	AnthropicAPIKey string
	Model           string
	Engine          string
	ClaudePath      string

	ClawHubURL       string
	ClawHubConvexURL string
	OSVURL           string

	QueueLimit   int
	PollInterval time.Duration
	StaleTimeout time.Duration
	HTTPAddr     string
}

func getBool(key, def string) bool {
	v := os.Getenv(key)
	if v == "" {
		v = def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false
	}
	return b
}

func getInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func getString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func Load() Config {
	return Config{
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		LocalQueuePath:   getString("LOCAL_QUEUE_PATH", ".skillscan/queue.db"),
		S3Endpoint:       os.Getenv("S3_ENDPOINT"),
		S3AccessKey:      os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:      os.Getenv("S3_SECRET_KEY"),
		S3UseSSL:         getBool("S3_USE_SSL", "false"),
		ReportsBucket:    os.Getenv("REPORTS_BUCKET"),
		APIURL:           os.Getenv("PYX_API_URL"),
		AdminAPIKey:      os.Getenv("PYX_ADMIN_API_KEY"),
		GitHubToken:      os.Getenv("GITHUB_TOKEN"),
		AnthropicAPIKey:  os.Getenv("ANTHROPIC_API_KEY"),
		Model:            getString("SCAN_MODEL", "sonnet"),
		Engine:           getString("SCAN_ENGINE", "api"),
		ClaudePath:       getString("CLAUDE_PATH", "claude"),
		ClawHubURL:       os.Getenv("CLAWHUB_URL"),
		ClawHubConvexURL: os.Getenv("CLAWHUB_CONVEX_URL"),
		OSVURL:           os.Getenv("OSV_URL"),
		QueueLimit:       getInt("QUEUE_LIMIT", 10),
		PollInterval:     getDuration("POLL_INTERVAL", 5*time.Second),
		StaleTimeout:     getDuration("STALE_TIMEOUT", 30*time.Minute),
		HTTPAddr:         os.Getenv("HTTP_ADDR"),
	}
}

// ArchiveEnabled reports whether report archiving is configured.
func (c Config) ArchiveEnabled() bool {
	return c.S3Endpoint != "" && c.ReportsBucket != ""
}

// MustDatabase exits when no database is configured.
func (c Config) MustDatabase() {
	if c.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}
}

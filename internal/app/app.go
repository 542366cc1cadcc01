// Package app builds the concrete components every binary shares from the
// environment configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/joho/godotenv"

	"github.com/yourorg/skill-scanner/internal/clawhub"
	"github.com/yourorg/skill-scanner/internal/config"
	"github.com/yourorg/skill-scanner/internal/db"
	"github.com/yourorg/skill-scanner/internal/depscan"
	"github.com/yourorg/skill-scanner/internal/engine"
	"github.com/yourorg/skill-scanner/internal/github"
	"github.com/yourorg/skill-scanner/internal/localdb"
	"github.com/yourorg/skill-scanner/internal/model"
	"github.com/yourorg/skill-scanner/internal/s3"
	"github.com/yourorg/skill-scanner/internal/scanner"
	"github.com/yourorg/skill-scanner/internal/sink"
	"github.com/yourorg/skill-scanner/internal/worker"
)

// LoadEnv reads .env files if present. The parent directory is tried too,
// for binaries run from cmd/<name>.
func LoadEnv() {
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load(".env")
	_ = godotenv.Load("../.env")
}

// NewEngine selects the analysis engine named by SCAN_ENGINE.
func NewEngine(cfg config.Config) (engine.Engine, error) {
	switch cfg.Engine {
	case "", "api":
		if cfg.AnthropicAPIKey == "" {
			return nil, errors.New("ANTHROPIC_API_KEY is required for SCAN_ENGINE=api")
		}
		return engine.NewAnthropic(cfg.AnthropicAPIKey), nil
	case "cli":
		return engine.NewCLI(cfg.ClaudePath), nil
	default:
		return nil, fmt.Errorf("unknown SCAN_ENGINE %q (want api or cli)", cfg.Engine)
	}
}

// NewSink returns the result sink client.
func NewSink(cfg config.Config) *sink.Client {
	return sink.New(cfg.APIURL, cfg.AdminAPIKey)
}

// NewScanner wires both scan flows. modelAlias overrides SCAN_MODEL when
// set; dry-run payloads go to out.
func NewScanner(cfg config.Config, modelAlias string, out io.Writer) (*scanner.Scanner, error) {
	eng, err := NewEngine(cfg)
	if err != nil {
		return nil, err
	}
	if modelAlias == "" {
		modelAlias = cfg.Model
	}
	sc := &scanner.Scanner{
		Repos:    github.New(cfg.GitHubToken),
		Registry: clawhub.New(cfg.ClawHubURL, cfg.ClawHubConvexURL),
		Sink:     NewSink(cfg),
		Engine:   eng,
		Model:    engine.ResolveModel(modelAlias),
		Deps:     depscan.New(cfg.OSVURL),
		Out:      out,
	}
	if cfg.ArchiveEnabled() {
		arch, err := NewArchive(cfg)
		if err != nil {
			return nil, err
		}
		sc.Archive = arch
	}
	return sc, nil
}

func NewArchive(cfg config.Config) (*s3.Client, error) {
	return s3.New(cfg.S3Endpoint, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3UseSSL, cfg.ReportsBucket)
}

// Queue is a job store that can also take new jobs.
type Queue interface {
	worker.JobStore
	Enqueue(ctx context.Context, req model.JobRequest) (id string, created bool, err error)
	Ping(ctx context.Context) error
}

// OpenQueue opens PostgreSQL when DATABASE_URL is set and the local SQLite
// queue otherwise. The returned func releases the connection.
func OpenQueue(ctx context.Context, cfg config.Config) (Queue, func(), error) {
	if cfg.DatabaseURL == "" {
		store, err := localdb.Open(cfg.LocalQueuePath)
		if err != nil {
			return nil, nil, err
		}
		log.Printf("using local queue at %s", cfg.LocalQueuePath)
		return store, func() { store.Close() }, nil
	}
	store, err := OpenPostgres(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return store, store.Close, nil
}

// OpenPostgres connects, pings and ensures the schema. A role without DDL
// rights is tolerated; the schema is then assumed to exist.
func OpenPostgres(ctx context.Context, cfg config.Config) (*db.Store, error) {
	store, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := store.Ping(ctx); err != nil {
		store.Close()
		return nil, err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		if !IsInsufficientPrivilege(err) {
			store.Close()
			return nil, err
		}
		log.Printf("ensure schema skipped due insufficient privilege: %v", err)
	}
	return store, nil
}

func IsInsufficientPrivilege(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "42501"
}

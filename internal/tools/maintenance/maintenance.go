package maintenance

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"grapevine/internal/storage"
	"grapevine/internal/storage/postgres"
	"grapevine/internal/storage/sqlite"
)

// Job names accepted by -job.
const (
	JobCleanup = "cleanup"
	JobDecay   = "decay"
	JobAll     = "all"
)

// Backend names accepted by -backend.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Config holds maintenance command configuration.
type Config struct {
	Job             string
	Backend         string
	EventsDBPath    string        `env:"GRAPEVINE_EVENTS_DB_PATH"`
	KnowledgeDBPath string        `env:"GRAPEVINE_KNOWLEDGE_DB_PATH"`
	PostgresURL     string        `env:"GRAPEVINE_POSTGRES_URL"`
	Timeout         time.Duration `env:"GRAPEVINE_MAINTENANCE_TIMEOUT" envDefault:"10m"`
	JSONOutput      bool
}

type envConfig struct {
	EventsDBPath    string        `env:"GRAPEVINE_EVENTS_DB_PATH"`
	KnowledgeDBPath string        `env:"GRAPEVINE_KNOWLEDGE_DB_PATH"`
	PostgresURL     string        `env:"GRAPEVINE_POSTGRES_URL"`
	Timeout         time.Duration `env:"GRAPEVINE_MAINTENANCE_TIMEOUT" envDefault:"10m"`
}

// ParseConfig parses environment defaults and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var envCfg envConfig
	if err := env.Parse(&envCfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	cfg := Config{
		EventsDBPath:    envCfg.EventsDBPath,
		KnowledgeDBPath: envCfg.KnowledgeDBPath,
		PostgresURL:     envCfg.PostgresURL,
		Timeout:         envCfg.Timeout,
	}
	if cfg.EventsDBPath == "" {
		cfg.EventsDBPath = filepath.Join("data", "reputation-events.db")
	}
	if cfg.KnowledgeDBPath == "" {
		cfg.KnowledgeDBPath = filepath.Join("data", "npc-knowledge.db")
	}

	fs.StringVar(&cfg.Job, "job", JobAll, "job to run (cleanup|decay|all)")
	fs.StringVar(&cfg.Backend, "backend", BackendSQLite, "storage backend (sqlite|postgres)")
	fs.StringVar(&cfg.EventsDBPath, "events-db-path", cfg.EventsDBPath, "path to events sqlite database (default: GRAPEVINE_EVENTS_DB_PATH or data/reputation-events.db)")
	fs.StringVar(&cfg.KnowledgeDBPath, "knowledge-db-path", cfg.KnowledgeDBPath, "path to knowledge sqlite database (default: GRAPEVINE_KNOWLEDGE_DB_PATH or data/npc-knowledge.db)")
	fs.StringVar(&cfg.PostgresURL, "postgres-url", cfg.PostgresURL, "postgres connection string (default: GRAPEVINE_POSTGRES_URL; required with -backend postgres)")
	fs.BoolVar(&cfg.JSONOutput, "json", false, "output JSON reports")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "overall timeout")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run executes the configured maintenance jobs.
func Run(ctx context.Context, cfg Config, out io.Writer, errOut io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	if errOut == nil {
		errOut = io.Discard
	}
	if err := validateJob(cfg.Job); err != nil {
		return err
	}

	switch cfg.Backend {
	case BackendSQLite:
		events, knowledge, err := openSQLiteStores(cfg.EventsDBPath, cfg.KnowledgeDBPath)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := events.Close(); closeErr != nil {
				fmt.Fprintf(errOut, "Error: close event store: %v\n", closeErr)
			}
			if closeErr := knowledge.Close(); closeErr != nil {
				fmt.Fprintf(errOut, "Error: close knowledge store: %v\n", closeErr)
			}
		}()
		return runWithDeps(ctx, cfg, events, knowledge, time.Now, out, errOut)
	case BackendPostgres:
		if strings.TrimSpace(cfg.PostgresURL) == "" {
			return errors.New("-postgres-url is required with -backend postgres")
		}
		client, err := postgres.New(ctx, cfg.PostgresURL)
		if err != nil {
			return fmt.Errorf("open postgres client: %w", err)
		}
		defer func() {
			if closeErr := client.Close(); closeErr != nil {
				fmt.Fprintf(errOut, "Error: close postgres client: %v\n", closeErr)
			}
		}()
		return runWithDeps(ctx, cfg, client, client, time.Now, out, errOut)
	default:
		return fmt.Errorf("unknown backend: %s", cfg.Backend)
	}
}

func validateJob(job string) error {
	switch job {
	case JobCleanup, JobDecay, JobAll:
		return nil
	default:
		return fmt.Errorf("unknown job: %s", job)
	}
}

// runResult is one job's report, serialized as-is with -json.
type runResult struct {
	Job     string         `json:"job"`
	Cleanup *CleanupResult `json:"cleanup,omitempty"`
	Decay   *DecayResult   `json:"decay,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// runWithDeps contains the core maintenance logic with injectable
// dependencies. A failing job reports and stops the run; the next
// scheduled invocation retries from scratch.
func runWithDeps(ctx context.Context, cfg Config, events storage.EventStore, knowledge storage.KnowledgeStore, now func() time.Time, out io.Writer, errOut io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	if errOut == nil {
		errOut = io.Discard
	}
	if now == nil {
		now = time.Now
	}
	if err := validateJob(cfg.Job); err != nil {
		return err
	}

	if cfg.Job == JobCleanup || cfg.Job == JobAll {
		result := runResult{Job: JobCleanup}
		report, err := CleanupExpiredEvents(ctx, events, knowledge, now())
		result.Cleanup = &report
		if err != nil {
			result.Error = err.Error()
		}
		printResult(cfg.JSONOutput, out, errOut, result)
		if err != nil {
			return fmt.Errorf("cleanup expired events: %w", err)
		}
	}

	if cfg.Job == JobDecay || cfg.Job == JobAll {
		result := runResult{Job: JobDecay}
		report, err := DecayOldEvents(ctx, knowledge, now())
		result.Decay = &report
		if err != nil {
			result.Error = err.Error()
		}
		printResult(cfg.JSONOutput, out, errOut, result)
		if err != nil {
			return fmt.Errorf("decay old events: %w", err)
		}
	}

	return nil
}

func printResult(jsonOutput bool, out io.Writer, errOut io.Writer, result runResult) {
	if jsonOutput {
		encoded, err := json.Marshal(result)
		if err != nil {
			fmt.Fprintf(errOut, "Error: encode report: %v\n", err)
			return
		}
		fmt.Fprintln(out, string(encoded))
		return
	}

	if result.Error != "" {
		fmt.Fprintf(errOut, "Error: %s: %s\n", result.Job, result.Error)
	}
	switch {
	case result.Cleanup != nil:
		fmt.Fprintf(out, "Cleanup: deleted %d expired events, scanned %d records, repaired %d (%d dangling entries dropped)\n",
			result.Cleanup.EventsDeleted, result.Cleanup.RecordsScanned, result.Cleanup.RecordsRepaired, result.Cleanup.EntriesDropped)
	case result.Decay != nil:
		fmt.Fprintf(out, "Decay: scanned %d records, decayed %d (%d entries forgotten)\n",
			result.Decay.RecordsScanned, result.Decay.RecordsDecayed, result.Decay.EntriesForgotten)
	}
}

func openSQLiteStores(eventsPath, knowledgePath string) (*sqlite.EventStore, *sqlite.KnowledgeStore, error) {
	events, err := openEventStore(eventsPath)
	if err != nil {
		return nil, nil, err
	}
	knowledge, err := openKnowledgeStore(knowledgePath)
	if err != nil {
		_ = events.Close()
		return nil, nil, err
	}
	return events, knowledge, nil
}

func openEventStore(path string) (*sqlite.EventStore, error) {
	cleanPath, err := ensureStorageDir(path, "events db path")
	if err != nil {
		return nil, err
	}
	store, err := sqlite.OpenEventStore(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("open event store: %w", err)
	}
	return store, nil
}

func openKnowledgeStore(path string) (*sqlite.KnowledgeStore, error) {
	cleanPath, err := ensureStorageDir(path, "knowledge db path")
	if err != nil {
		return nil, err
	}
	store, err := sqlite.OpenKnowledgeStore(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("open knowledge store: %w", err)
	}
	return store, nil
}

func ensureStorageDir(path, label string) (string, error) {
	cleanPath := filepath.Clean(path)
	if cleanPath == "." || cleanPath == "" {
		return "", fmt.Errorf("%s is required", label)
	}
	if dir := filepath.Dir(cleanPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create storage dir: %w", err)
		}
	}
	return cleanPath, nil
}

// Package main serves the reputation engine's MCP tools over stdio.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"grapevine/internal/config"
	"grapevine/internal/mcp"
	platformconfig "grapevine/internal/platform/config"
	"grapevine/internal/platform/otel"
	"grapevine/internal/service"
	"grapevine/internal/social"
	"grapevine/internal/spread"
	"grapevine/internal/storage"
	"grapevine/internal/storage/postgres"
	"grapevine/internal/storage/sqlite"
)

const serverVersion = "0.1.0"

type appConfig struct {
	Backend         string `env:"GRAPEVINE_STORAGE_BACKEND" envDefault:"sqlite"`
	EventsDBPath    string `env:"GRAPEVINE_EVENTS_DB_PATH"`
	KnowledgeDBPath string `env:"GRAPEVINE_KNOWLEDGE_DB_PATH"`
	SocialDBPath    string `env:"GRAPEVINE_SOCIAL_DB_PATH"`
	PostgresURL     string `env:"GRAPEVINE_POSTGRES_URL"`
	EventTypesPath  string `env:"GRAPEVINE_EVENT_TYPES_PATH"`
}

func main() {
	log.SetPrefix("[MCP] ")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		log.Fatalf("failed to serve MCP: %v", err)
	}
}

func run(ctx context.Context, args []string) error {
	var cfg appConfig
	if err := platformconfig.ParseEnv(&cfg); err != nil {
		return err
	}
	applyDefaults(&cfg)

	fs := flag.NewFlagSet("mcp", flag.ContinueOnError)
	fs.StringVar(&cfg.Backend, "backend", cfg.Backend, "storage backend (sqlite|postgres)")
	fs.StringVar(&cfg.EventsDBPath, "events-db-path", cfg.EventsDBPath, "path to events sqlite database")
	fs.StringVar(&cfg.KnowledgeDBPath, "knowledge-db-path", cfg.KnowledgeDBPath, "path to knowledge sqlite database")
	fs.StringVar(&cfg.SocialDBPath, "social-db-path", cfg.SocialDBPath, "path to social graph sqlite database")
	fs.StringVar(&cfg.PostgresURL, "postgres-url", cfg.PostgresURL, "postgres connection string (required with -backend postgres)")
	fs.StringVar(&cfg.EventTypesPath, "event-types", cfg.EventTypesPath, "path to an event-type table override (default: embedded table)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	shutdown, err := otel.Setup(ctx, "grapevine-mcp")
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			log.Printf("shutdown tracing: %v", err)
		}
	}()

	table, err := loadTable(cfg.EventTypesPath)
	if err != nil {
		return err
	}

	events, knowledge, graph, closeStores, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStores()

	spreader := spread.New(events, knowledge, graph, nil)
	svc := service.New(events, knowledge, graph, table, spreader)

	server := mcp.NewServer(svc, table, serverVersion)
	return server.Run(ctx, &sdk.StdioTransport{})
}

func applyDefaults(cfg *appConfig) {
	if cfg.EventsDBPath == "" {
		cfg.EventsDBPath = filepath.Join("data", "reputation-events.db")
	}
	if cfg.KnowledgeDBPath == "" {
		cfg.KnowledgeDBPath = filepath.Join("data", "npc-knowledge.db")
	}
	if cfg.SocialDBPath == "" {
		cfg.SocialDBPath = filepath.Join("data", "social-graph.db")
	}
}

func loadTable(path string) (*config.Table, error) {
	if strings.TrimSpace(path) == "" {
		return config.DefaultTable()
	}
	return config.LoadTable(path)
}

type socialGraph interface {
	social.Provider
	social.Directory
}

// openStores wires the configured backend and returns a close func that
// releases everything it opened.
func openStores(ctx context.Context, cfg appConfig) (storage.EventStore, storage.KnowledgeStore, socialGraph, func(), error) {
	switch cfg.Backend {
	case "sqlite":
		for _, path := range []string{cfg.EventsDBPath, cfg.KnowledgeDBPath, cfg.SocialDBPath} {
			if dir := filepath.Dir(filepath.Clean(path)); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return nil, nil, nil, nil, fmt.Errorf("create storage dir: %w", err)
				}
			}
		}
		events, err := sqlite.OpenEventStore(cfg.EventsDBPath)
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("open event store: %w", err)
		}
		knowledge, err := sqlite.OpenKnowledgeStore(cfg.KnowledgeDBPath)
		if err != nil {
			_ = events.Close()
			return nil, nil, nil, nil, fmt.Errorf("open knowledge store: %w", err)
		}
		graph, err := sqlite.OpenSocialStore(cfg.SocialDBPath)
		if err != nil {
			_ = events.Close()
			_ = knowledge.Close()
			return nil, nil, nil, nil, fmt.Errorf("open social store: %w", err)
		}
		closeAll := func() {
			if err := events.Close(); err != nil {
				log.Printf("close event store: %v", err)
			}
			if err := knowledge.Close(); err != nil {
				log.Printf("close knowledge store: %v", err)
			}
			if err := graph.Close(); err != nil {
				log.Printf("close social store: %v", err)
			}
		}
		return events, knowledge, graph, closeAll, nil
	case "postgres":
		if strings.TrimSpace(cfg.PostgresURL) == "" {
			return nil, nil, nil, nil, fmt.Errorf("-postgres-url is required with -backend postgres")
		}
		client, err := postgres.New(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("open postgres client: %w", err)
		}
		if err := client.EnsureSchema(ctx); err != nil {
			_ = client.Close()
			return nil, nil, nil, nil, fmt.Errorf("ensure schema: %w", err)
		}
		closeAll := func() {
			if err := client.Close(); err != nil {
				log.Printf("close postgres client: %v", err)
			}
		}
		return client, client, client, closeAll, nil
	default:
		return nil, nil, nil, nil, fmt.Errorf("unknown backend: %s", cfg.Backend)
	}
}

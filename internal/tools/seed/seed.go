// Package seed populates a demo world: frontier settlements, NPC
// households with family and acquaintance ties, and a scripted run of
// sample reputation events pushed through the real spreading engine.
// The same -seed value reproduces the same world.
package seed

import (
	"context"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"

	"grapevine/internal/config"
	"grapevine/internal/reputation"
	"grapevine/internal/service"
	"grapevine/internal/spread"
	"grapevine/internal/storage"
	"grapevine/internal/storage/sqlite"
)

// defaultNPCsPerSettlement keeps the demo world small enough to read a
// full spread trace by eye.
const defaultNPCsPerSettlement = 10

// Config holds seed command configuration.
type Config struct {
	Seed              int64
	NPCsPerSettlement int
	EventsDBPath      string        `env:"GRAPEVINE_EVENTS_DB_PATH"`
	KnowledgeDBPath   string        `env:"GRAPEVINE_KNOWLEDGE_DB_PATH"`
	SocialDBPath      string        `env:"GRAPEVINE_SOCIAL_DB_PATH"`
	Timeout           time.Duration `env:"GRAPEVINE_SEED_TIMEOUT" envDefault:"2m"`
}

type envConfig struct {
	EventsDBPath    string        `env:"GRAPEVINE_EVENTS_DB_PATH"`
	KnowledgeDBPath string        `env:"GRAPEVINE_KNOWLEDGE_DB_PATH"`
	SocialDBPath    string        `env:"GRAPEVINE_SOCIAL_DB_PATH"`
	Timeout         time.Duration `env:"GRAPEVINE_SEED_TIMEOUT" envDefault:"2m"`
}

// ParseConfig parses environment defaults and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var envCfg envConfig
	if err := env.Parse(&envCfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	cfg := Config{
		EventsDBPath:      envCfg.EventsDBPath,
		KnowledgeDBPath:   envCfg.KnowledgeDBPath,
		SocialDBPath:      envCfg.SocialDBPath,
		Timeout:           envCfg.Timeout,
		NPCsPerSettlement: defaultNPCsPerSettlement,
	}
	if cfg.EventsDBPath == "" {
		cfg.EventsDBPath = filepath.Join("data", "reputation-events.db")
	}
	if cfg.KnowledgeDBPath == "" {
		cfg.KnowledgeDBPath = filepath.Join("data", "npc-knowledge.db")
	}
	if cfg.SocialDBPath == "" {
		cfg.SocialDBPath = filepath.Join("data", "social-graph.db")
	}

	fs.Int64Var(&cfg.Seed, "seed", 1, "random seed for reproducible worlds")
	fs.IntVar(&cfg.NPCsPerSettlement, "npcs", cfg.NPCsPerSettlement, "NPCs per settlement")
	fs.StringVar(&cfg.EventsDBPath, "events-db-path", cfg.EventsDBPath, "path to events sqlite database")
	fs.StringVar(&cfg.KnowledgeDBPath, "knowledge-db-path", cfg.KnowledgeDBPath, "path to knowledge sqlite database")
	fs.StringVar(&cfg.SocialDBPath, "social-db-path", cfg.SocialDBPath, "path to social graph sqlite database")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "overall timeout")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Stores bundles the three stores the seeder writes.
type Stores struct {
	Events    storage.EventStore
	Knowledge storage.KnowledgeStore
	Social    storage.SocialStore
}

// Run opens the SQLite stores and seeds them.
func Run(ctx context.Context, cfg Config, out io.Writer, errOut io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	if errOut == nil {
		errOut = io.Discard
	}

	for _, path := range []string{cfg.EventsDBPath, cfg.KnowledgeDBPath, cfg.SocialDBPath} {
		if dir := filepath.Dir(filepath.Clean(path)); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create storage dir: %w", err)
			}
		}
	}

	events, err := sqlite.OpenEventStore(cfg.EventsDBPath)
	if err != nil {
		return fmt.Errorf("open event store: %w", err)
	}
	defer closeStore(errOut, "event store", events.Close)

	knowledge, err := sqlite.OpenKnowledgeStore(cfg.KnowledgeDBPath)
	if err != nil {
		return fmt.Errorf("open knowledge store: %w", err)
	}
	defer closeStore(errOut, "knowledge store", knowledge.Close)

	graph, err := sqlite.OpenSocialStore(cfg.SocialDBPath)
	if err != nil {
		return fmt.Errorf("open social store: %w", err)
	}
	defer closeStore(errOut, "social store", graph.Close)

	return runWithDeps(ctx, cfg, Stores{Events: events, Knowledge: knowledge, Social: graph}, out)
}

func closeStore(errOut io.Writer, label string, closeFn func() error) {
	if err := closeFn(); err != nil {
		fmt.Fprintf(errOut, "Error: close %s: %v\n", label, err)
	}
}

// scriptedEvent is one beat of the demo storyline.
type scriptedEvent struct {
	character int // index into demoCharacters
	eventType reputation.EventType
	location  int // index into settlements
}

// script walks both demo characters through a mix of infamy and good
// works across all three settlements.
var script = []scriptedEvent{
	{0, "theft", 0},
	{0, "public_brawl", 0},
	{0, "cheating_at_cards", 1},
	{0, "assault", 1},
	{1, "rescue", 0},
	{1, "generous_donation", 1},
	{1, "contract_fulfilled", 1},
	{1, "bounty_collected", 2},
}

// runWithDeps seeds the demo world and pushes the scripted events
// through the service, printing what the gossip network did with them.
func runWithDeps(ctx context.Context, cfg Config, stores Stores, out io.Writer) error {
	if cfg.NPCsPerSettlement <= 0 {
		cfg.NPCsPerSettlement = defaultNPCsPerSettlement
	}
	rng := rand.New(rand.NewSource(cfg.Seed))

	generated := buildWorld(rng, cfg.NPCsPerSettlement)
	for _, location := range generated.Locations {
		if err := stores.Social.PutLocation(ctx, location); err != nil {
			return fmt.Errorf("put location %s: %w", location.ID, err)
		}
	}
	for _, npc := range generated.NPCs {
		if err := stores.Social.PutNPC(ctx, npc); err != nil {
			return fmt.Errorf("put npc %s: %w", npc.ID, err)
		}
	}
	for _, edge := range generated.Connections {
		if err := stores.Social.PutConnection(ctx, edge); err != nil {
			return fmt.Errorf("put connection %s-%s: %w", edge.NPCID, edge.RelatedNPCID, err)
		}
	}
	fmt.Fprintf(out, "Seeded %d settlements, %d NPCs, %d connections (seed %d)\n",
		len(generated.Locations), len(generated.NPCs), len(generated.Connections), cfg.Seed)

	table, err := config.DefaultTable()
	if err != nil {
		return err
	}
	seedFunc := func() (int64, error) { return rng.Int63(), nil }
	spreader := spread.New(stores.Events, stores.Knowledge, stores.Social, seedFunc)
	svc := service.New(stores.Events, stores.Knowledge, stores.Social, table, spreader)

	for _, beat := range script {
		characterID := demoCharacters[beat.character]
		place := settlements[beat.location]
		witnesses, err := stores.Social.ListNPCsByLocation(ctx, place.ID)
		if err != nil {
			return fmt.Errorf("list npcs at %s: %w", place.ID, err)
		}
		if len(witnesses) == 0 {
			continue
		}
		witness := witnesses[rng.Intn(len(witnesses))]

		event, result, err := svc.CreateEvent(ctx, characterID, beat.eventType, place.ID, service.Options{
			OriginNPCID: witness.ID,
		})
		if err != nil {
			return fmt.Errorf("create %s event: %w", beat.eventType, err)
		}
		fmt.Fprintf(out, "%s by %s at %s: witnessed by %s, informed %d NPCs (hops %v)\n",
			event.Type, characterID, place.Name, witness.Name, result.NPCsInformed, result.HopDistribution)
	}

	for _, characterID := range demoCharacters {
		for _, place := range settlements {
			summary, err := svc.LocationReputation(ctx, characterID, place.ID)
			if err != nil {
				return fmt.Errorf("location reputation for %s: %w", characterID, err)
			}
			fmt.Fprintf(out, "%s at %s: reputation %.1f (%s), known by %d NPCs\n",
				characterID, place.Name, summary.OverallReputation, summary.DominantSentiment, summary.KnownByCount)
		}
	}
	return nil
}

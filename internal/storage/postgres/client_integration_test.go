//go:build integration

package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"grapevine/internal/reputation"
	"grapevine/internal/social"
	"grapevine/internal/storage"
)

// openTestClient connects to the database named by GRAPEVINE_POSTGRES_TEST_DSN
// and resets the reputation tables. The suite skips when the variable is unset
// so plain test runs never require a server.
func openTestClient(t *testing.T) *Client {
	t.Helper()
	dsn := os.Getenv("GRAPEVINE_POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("GRAPEVINE_POSTGRES_TEST_DSN not set")
	}

	ctx := context.Background()
	client, err := New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	if err := client.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	for _, table := range []string{"reputation_events", "npc_knowledge", "npc_connections", "npcs", "locations"} {
		if _, err := client.pool.Exec(ctx, "DELETE FROM "+table); err != nil {
			t.Fatalf("reset %s: %v", table, err)
		}
	}
	return client
}

func TestEventLifecycle(t *testing.T) {
	client := openTestClient(t)
	ctx := context.Background()
	now := time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)

	expiry := now.Add(24 * time.Hour)
	event := reputation.Event{
		ID:           "evt-1",
		CharacterID:  "char-1",
		Type:         "theft",
		Magnitude:    40,
		Sentiment:    -35,
		LocationID:   "loc-dustgulch",
		OriginNPCID:  "npc-bartender",
		SpreadRadius: 2,
		DecayRate:    0.25,
		Timestamp:    now,
		ExpiresAt:    &expiry,
	}
	if err := client.PutEvent(ctx, event); err != nil {
		t.Fatalf("put event: %v", err)
	}

	got, err := client.GetEvent(ctx, "evt-1")
	if err != nil {
		t.Fatalf("get event: %v", err)
	}
	if !got.Timestamp.Equal(now) || got.ExpiresAt == nil || !got.ExpiresAt.Equal(expiry) {
		t.Fatalf("timestamp round trip failed: %+v", got)
	}

	if err := client.UpdateEventSpread(ctx, "evt-1", 4, now.Add(time.Second)); err != nil {
		t.Fatalf("update spread: %v", err)
	}

	events, err := client.ListEventsByCharacterLocation(ctx, "char-1", "loc-dustgulch", now)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 1 || events[0].SpreadCount != 4 {
		t.Fatalf("unexpected listing: %+v", events)
	}

	existing, err := client.FilterExistingEventIDs(ctx, []string{"evt-1", "evt-x"})
	if err != nil {
		t.Fatalf("filter ids: %v", err)
	}
	if len(existing) != 1 {
		t.Fatalf("expected 1 existing id, got %d", len(existing))
	}

	deleted, err := client.DeleteExpiredEvents(ctx, expiry.Add(time.Minute))
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 deleted, got %d", deleted)
	}
	if _, err := client.GetEvent(ctx, "evt-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestKnowledgeVersioning(t *testing.T) {
	client := openTestClient(t)
	ctx := context.Background()
	now := time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC)

	record := reputation.Knowledge{
		NPCID:       "npc-1",
		CharacterID: "char-1",
		Events: []reputation.KnownEvent{{
			EventID:            "evt-1",
			Type:               "theft",
			PerceivedMagnitude: 40,
			PerceivedSentiment: -35,
			Source:             reputation.SourceWitnessed,
			LearnedAt:          now,
			Credibility:        100,
		}},
		OverallOpinion: -35,
		TrustLevel:     41,
		UpdatedAt:      now,
	}
	if err := client.UpsertKnowledge(ctx, record); err != nil {
		t.Fatalf("insert knowledge: %v", err)
	}
	if err := client.UpsertKnowledge(ctx, record); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("expected insert conflict, got %v", err)
	}

	current, err := client.GetKnowledge(ctx, "npc-1", "char-1")
	if err != nil {
		t.Fatalf("get knowledge: %v", err)
	}
	if current.Version != 1 || len(current.Events) != 1 {
		t.Fatalf("unexpected record: %+v", current)
	}

	stale := current
	if err := client.UpsertKnowledge(ctx, current); err != nil {
		t.Fatalf("update knowledge: %v", err)
	}
	if err := client.UpsertKnowledge(ctx, stale); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("expected stale update conflict, got %v", err)
	}

	if err := client.DeleteKnowledge(ctx, "npc-1", "char-1", 1); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("expected stale delete conflict, got %v", err)
	}
	if err := client.DeleteKnowledge(ctx, "npc-1", "char-1", 2); err != nil {
		t.Fatalf("delete knowledge: %v", err)
	}
	if err := client.DeleteKnowledge(ctx, "npc-1", "char-1", 2); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestKnowledgePagingAcrossCharacters(t *testing.T) {
	client := openTestClient(t)
	ctx := context.Background()
	now := time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		record := reputation.Knowledge{
			NPCID:       fmt.Sprintf("npc-%d", i),
			CharacterID: "char-1",
			TrustLevel:  50,
			UpdatedAt:   now,
		}
		if err := client.UpsertKnowledge(ctx, record); err != nil {
			t.Fatalf("insert knowledge %d: %v", i, err)
		}
	}

	first, err := client.ListKnowledgeByCharacter(ctx, "char-1", 2, "")
	if err != nil {
		t.Fatalf("first page: %v", err)
	}
	if len(first.Records) != 2 || first.NextPageToken == "" {
		t.Fatalf("unexpected first page: %d records", len(first.Records))
	}
	second, err := client.ListKnowledgeByCharacter(ctx, "char-1", 2, first.NextPageToken)
	if err != nil {
		t.Fatalf("second page: %v", err)
	}
	if len(second.Records) != 1 || second.NextPageToken != "" {
		t.Fatalf("unexpected second page: %d records", len(second.Records))
	}

	if _, err := client.ListKnowledgeByCharacter(ctx, "char-2", 2, first.NextPageToken); err == nil {
		t.Fatal("expected foreign token to be rejected")
	}

	scan, err := client.ScanKnowledge(ctx, 10, "")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(scan.Records) != 3 {
		t.Fatalf("expected 3 scanned records, got %d", len(scan.Records))
	}
}

func TestSocialGraph(t *testing.T) {
	client := openTestClient(t)
	ctx := context.Background()

	if err := client.PutLocation(ctx, storage.Location{ID: "loc-dustgulch", Name: "Dust Gulch", Faction: "lawmen"}); err != nil {
		t.Fatalf("put location: %v", err)
	}
	for _, npc := range []storage.NPC{
		{ID: "npc-bartender", Name: "Sal", LocationID: "loc-dustgulch"},
		{ID: "npc-sheriff", Name: "Dora", LocationID: "loc-dustgulch"},
	} {
		if err := client.PutNPC(ctx, npc); err != nil {
			t.Fatalf("put npc %s: %v", npc.ID, err)
		}
	}
	edge := social.Connection{NPCID: "npc-bartender", RelatedNPCID: "npc-sheriff", Strength: 8, IsFamily: true}
	if err := client.PutConnection(ctx, edge); err != nil {
		t.Fatalf("put connection: %v", err)
	}

	npcs, err := client.ListNPCsByLocation(ctx, "loc-dustgulch")
	if err != nil {
		t.Fatalf("list npcs: %v", err)
	}
	if len(npcs) != 2 {
		t.Fatalf("expected 2 npcs, got %d", len(npcs))
	}

	connections, err := client.Connections(ctx, "loc-dustgulch")
	if err != nil {
		t.Fatalf("connections: %v", err)
	}
	if len(connections) != 2 {
		t.Fatalf("expected mirrored edges, got %d", len(connections))
	}

	faction, err := client.LocationFaction(ctx, "loc-dustgulch")
	if err != nil || faction != "lawmen" {
		t.Fatalf("location faction = %q, %v", faction, err)
	}
	if _, err := client.NPCLocation(ctx, "npc-ghost"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

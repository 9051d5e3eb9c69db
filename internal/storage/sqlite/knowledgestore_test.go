package sqlite

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"grapevine/internal/reputation"
	"grapevine/internal/storage"
)

func openTestKnowledgeStore(t *testing.T) *KnowledgeStore {
	t.Helper()
	store, err := OpenKnowledgeStore(t.TempDir() + "/knowledge.db")
	if err != nil {
		t.Fatalf("open knowledge store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close knowledge store: %v", err)
		}
	})
	return store
}

func testKnowledge(npcID, characterID string, updatedAt time.Time) reputation.Knowledge {
	return reputation.Knowledge{
		NPCID:       npcID,
		CharacterID: characterID,
		Events: []reputation.KnownEvent{{
			EventID:            "evt-1",
			Type:               "theft",
			PerceivedMagnitude: 40,
			PerceivedSentiment: -35,
			Source:             reputation.SourceWitnessed,
			HopDistance:        0,
			LearnedAt:          updatedAt,
			Credibility:        100,
		}},
		OverallOpinion: -35,
		TrustLevel:     41.25,
		FearLevel:      5.6,
		UpdatedAt:      updatedAt,
	}
}

func TestKnowledgeInsertAndGet(t *testing.T) {
	store := openTestKnowledgeStore(t)
	now := time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC)

	if err := store.UpsertKnowledge(context.Background(), testKnowledge("npc-1", "char-1", now)); err != nil {
		t.Fatalf("insert knowledge: %v", err)
	}

	got, err := store.GetKnowledge(context.Background(), "npc-1", "char-1")
	if err != nil {
		t.Fatalf("get knowledge: %v", err)
	}
	if got.Version != 1 {
		t.Fatalf("expected version 1 after insert, got %d", got.Version)
	}
	if len(got.Events) != 1 {
		t.Fatalf("expected 1 known event, got %d", len(got.Events))
	}
	event := got.Events[0]
	if event.EventID != "evt-1" || event.Source != reputation.SourceWitnessed || event.Credibility != 100 {
		t.Fatalf("unexpected known event: %+v", event)
	}
	if !event.LearnedAt.Equal(now) {
		t.Fatalf("expected learned at %v, got %v", now, event.LearnedAt)
	}
	if got.OverallOpinion != -35 || got.TrustLevel != 41.25 || got.FearLevel != 5.6 {
		t.Fatalf("unexpected derived values: %+v", got)
	}
}

func TestKnowledgeGetNotFound(t *testing.T) {
	store := openTestKnowledgeStore(t)

	_, err := store.GetKnowledge(context.Background(), "npc-1", "char-1")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestKnowledgeVersionedUpdate(t *testing.T) {
	store := openTestKnowledgeStore(t)
	now := time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC)

	if err := store.UpsertKnowledge(context.Background(), testKnowledge("npc-1", "char-1", now)); err != nil {
		t.Fatalf("insert knowledge: %v", err)
	}

	current, err := store.GetKnowledge(context.Background(), "npc-1", "char-1")
	if err != nil {
		t.Fatalf("get knowledge: %v", err)
	}

	current.Events = append(current.Events, reputation.KnownEvent{
		EventID:            "evt-2",
		Type:               "rescue",
		PerceivedMagnitude: 52,
		PerceivedSentiment: 70,
		Source:             reputation.SourceHeard,
		HeardFrom:          "npc-2",
		HopDistance:        1,
		LearnedAt:          now.Add(time.Hour),
		Credibility:        80,
	})
	current.OverallOpinion = 18
	current.UpdatedAt = now.Add(time.Hour)

	if err := store.UpsertKnowledge(context.Background(), current); err != nil {
		t.Fatalf("update knowledge: %v", err)
	}

	got, err := store.GetKnowledge(context.Background(), "npc-1", "char-1")
	if err != nil {
		t.Fatalf("get knowledge after update: %v", err)
	}
	if got.Version != 2 {
		t.Fatalf("expected version 2 after update, got %d", got.Version)
	}
	if len(got.Events) != 2 {
		t.Fatalf("expected 2 known events, got %d", len(got.Events))
	}
	if got.Events[1].HeardFrom != "npc-2" {
		t.Fatalf("expected heard from npc-2, got %q", got.Events[1].HeardFrom)
	}
}

func TestKnowledgeStaleVersionConflict(t *testing.T) {
	store := openTestKnowledgeStore(t)
	now := time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC)

	if err := store.UpsertKnowledge(context.Background(), testKnowledge("npc-1", "char-1", now)); err != nil {
		t.Fatalf("insert knowledge: %v", err)
	}

	first, err := store.GetKnowledge(context.Background(), "npc-1", "char-1")
	if err != nil {
		t.Fatalf("get knowledge: %v", err)
	}
	second := first

	if err := store.UpsertKnowledge(context.Background(), first); err != nil {
		t.Fatalf("first writer: %v", err)
	}
	if err := store.UpsertKnowledge(context.Background(), second); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("expected ErrConflict for stale version, got %v", err)
	}
}

func TestKnowledgeInsertRaceConflict(t *testing.T) {
	store := openTestKnowledgeStore(t)
	now := time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC)

	record := testKnowledge("npc-1", "char-1", now)
	if err := store.UpsertKnowledge(context.Background(), record); err != nil {
		t.Fatalf("insert knowledge: %v", err)
	}
	if err := store.UpsertKnowledge(context.Background(), record); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate insert, got %v", err)
	}
}

func TestListKnowledgeByCharacterPaging(t *testing.T) {
	store := openTestKnowledgeStore(t)
	now := time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		record := testKnowledge(fmt.Sprintf("npc-%d", i), "char-1", now)
		if err := store.UpsertKnowledge(context.Background(), record); err != nil {
			t.Fatalf("insert knowledge %d: %v", i, err)
		}
	}
	if err := store.UpsertKnowledge(context.Background(), testKnowledge("npc-other", "char-2", now)); err != nil {
		t.Fatalf("insert other character: %v", err)
	}

	first, err := store.ListKnowledgeByCharacter(context.Background(), "char-1", 2, "")
	if err != nil {
		t.Fatalf("first page: %v", err)
	}
	if len(first.Records) != 2 {
		t.Fatalf("expected 2 records on first page, got %d", len(first.Records))
	}
	if first.NextPageToken == "" {
		t.Fatal("expected a next page token")
	}

	second, err := store.ListKnowledgeByCharacter(context.Background(), "char-1", 2, first.NextPageToken)
	if err != nil {
		t.Fatalf("second page: %v", err)
	}
	if len(second.Records) != 2 || second.NextPageToken == "" {
		t.Fatalf("expected a full second page with token, got %d records", len(second.Records))
	}

	last, err := store.ListKnowledgeByCharacter(context.Background(), "char-1", 2, second.NextPageToken)
	if err != nil {
		t.Fatalf("last page: %v", err)
	}
	if len(last.Records) != 1 {
		t.Fatalf("expected 1 record on last page, got %d", len(last.Records))
	}
	if last.NextPageToken != "" {
		t.Fatalf("expected no token on last page, got %q", last.NextPageToken)
	}

	seen := map[string]bool{}
	for _, page := range []storage.KnowledgePage{first, second, last} {
		for _, record := range page.Records {
			if record.CharacterID != "char-1" {
				t.Fatalf("unexpected character %q in page", record.CharacterID)
			}
			if seen[record.NPCID] {
				t.Fatalf("npc %q returned twice", record.NPCID)
			}
			seen[record.NPCID] = true
		}
	}
	if len(seen) != 5 {
		t.Fatalf("expected 5 distinct npcs across pages, got %d", len(seen))
	}
}

func TestListKnowledgeRejectsForeignToken(t *testing.T) {
	store := openTestKnowledgeStore(t)
	now := time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		if err := store.UpsertKnowledge(context.Background(), testKnowledge(fmt.Sprintf("npc-%d", i), "char-1", now)); err != nil {
			t.Fatalf("insert knowledge %d: %v", i, err)
		}
	}

	page, err := store.ListKnowledgeByCharacter(context.Background(), "char-1", 1, "")
	if err != nil {
		t.Fatalf("first page: %v", err)
	}
	if page.NextPageToken == "" {
		t.Fatal("expected a next page token")
	}

	if _, err := store.ListKnowledgeByCharacter(context.Background(), "char-2", 1, page.NextPageToken); err == nil {
		t.Fatal("expected token minted for char-1 to be rejected for char-2")
	}
}

func TestScanKnowledgeWalksAllCharacters(t *testing.T) {
	store := openTestKnowledgeStore(t)
	now := time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC)

	if err := store.UpsertKnowledge(context.Background(), testKnowledge("npc-1", "char-1", now)); err != nil {
		t.Fatalf("insert knowledge: %v", err)
	}
	if err := store.UpsertKnowledge(context.Background(), testKnowledge("npc-1", "char-2", now)); err != nil {
		t.Fatalf("insert knowledge: %v", err)
	}
	if err := store.UpsertKnowledge(context.Background(), testKnowledge("npc-2", "char-1", now)); err != nil {
		t.Fatalf("insert knowledge: %v", err)
	}

	var total int
	token := ""
	for {
		page, err := store.ScanKnowledge(context.Background(), 2, token)
		if err != nil {
			t.Fatalf("scan knowledge: %v", err)
		}
		total += len(page.Records)
		if page.NextPageToken == "" {
			break
		}
		token = page.NextPageToken
	}
	if total != 3 {
		t.Fatalf("expected to scan 3 records, got %d", total)
	}
}

func TestDeleteKnowledge(t *testing.T) {
	store := openTestKnowledgeStore(t)
	now := time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC)

	if err := store.UpsertKnowledge(context.Background(), testKnowledge("npc-1", "char-1", now)); err != nil {
		t.Fatalf("insert knowledge: %v", err)
	}
	if err := store.DeleteKnowledge(context.Background(), "npc-1", "char-1", 2); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("expected ErrConflict for stale version, got %v", err)
	}
	if err := store.DeleteKnowledge(context.Background(), "npc-1", "char-1", 1); err != nil {
		t.Fatalf("delete knowledge: %v", err)
	}
	if _, err := store.GetKnowledge(context.Background(), "npc-1", "char-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := store.DeleteKnowledge(context.Background(), "npc-1", "char-1", 1); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for second delete, got %v", err)
	}
}

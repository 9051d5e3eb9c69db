// Package maintenance implements the periodic cleanup and decay passes
// over the reputation stores, plus the CLI plumbing that runs them.
//
// Jobs are invoked by an external scheduler and follow an at-least-once
// model: every record mutation is idempotent, every scan is keyset-paged
// with a bounded working set, and a run that dies mid-pass leaves valid
// state for the next run to finish.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"time"

	"grapevine/internal/reputation"
	"grapevine/internal/storage"
)

// scanPageSize bounds how many knowledge records a job holds in memory at
// once while walking the store.
const scanPageSize = 200

// maxWriteAttempts bounds optimistic retries when a concurrent spread run
// touches a record between the job's read and write.
const maxWriteAttempts = 3

// knowledgeDecayAge is how old a recollection must be before the decay
// job starts eroding it.
const knowledgeDecayAge = 30 * 24 * time.Hour

// decayFactor is the fraction of perceived magnitude a recollection keeps
// per decay pass.
const decayFactor = 0.9

// magnitudeFloor is the perceived magnitude below which a decayed
// recollection is forgotten outright.
const magnitudeFloor = 10

// CleanupResult counts what one cleanup pass touched.
type CleanupResult struct {
	// EventsDeleted is how many expired events were removed.
	EventsDeleted int64 `json:"events_deleted"`
	// RecordsScanned is how many knowledge records the pass examined.
	RecordsScanned int `json:"records_scanned"`
	// RecordsRepaired is how many records lost at least one dangling entry.
	RecordsRepaired int `json:"records_repaired"`
	// EntriesDropped is how many dangling recollections were removed.
	EntriesDropped int `json:"entries_dropped"`
}

// DecayResult counts what one decay pass touched.
type DecayResult struct {
	// RecordsScanned is how many knowledge records the pass examined.
	RecordsScanned int `json:"records_scanned"`
	// RecordsDecayed is how many records had at least one entry eroded.
	RecordsDecayed int `json:"records_decayed"`
	// EntriesForgotten is how many recollections fell below the floor and
	// were dropped.
	EntriesForgotten int `json:"entries_forgotten"`
}

// CleanupExpiredEvents deletes events past their expiry, then walks the
// knowledge store dropping recollections whose event no longer resolves.
// Records touched by a concurrent writer mid-scan are re-read and
// re-evaluated on their current state, never overwritten blindly.
func CleanupExpiredEvents(ctx context.Context, events storage.EventStore, knowledge storage.KnowledgeStore, now time.Time) (CleanupResult, error) {
	var result CleanupResult
	if events == nil || knowledge == nil {
		return result, errors.New("event and knowledge stores are required")
	}
	now = now.UTC()

	deleted, err := events.DeleteExpiredEvents(ctx, now)
	if err != nil {
		return result, fmt.Errorf("delete expired events: %w", err)
	}
	result.EventsDeleted = deleted

	token := ""
	for {
		page, err := knowledge.ScanKnowledge(ctx, scanPageSize, token)
		if err != nil {
			return result, fmt.Errorf("scan knowledge: %w", err)
		}
		result.RecordsScanned += len(page.Records)

		missing, err := missingEventIDs(ctx, events, page.Records)
		if err != nil {
			return result, err
		}
		if len(missing) > 0 {
			for _, record := range page.Records {
				dropped, repaired, err := repairRecord(ctx, knowledge, record, missing, now)
				if errors.Is(err, storage.ErrConflict) {
					// Still contended after retries; the next
					// scheduled run picks it up.
					log.Printf("cleanup: knowledge %s/%s stayed contended, skipping", record.NPCID, record.CharacterID)
					continue
				}
				if err != nil {
					return result, err
				}
				if repaired {
					result.RecordsRepaired++
					result.EntriesDropped += dropped
				}
			}
		}

		if page.NextPageToken == "" {
			return result, nil
		}
		token = page.NextPageToken
	}
}

// missingEventIDs resolves every event id referenced by the page and
// returns the ones that no longer exist.
func missingEventIDs(ctx context.Context, events storage.EventStore, records []reputation.Knowledge) (map[string]struct{}, error) {
	referenced := make(map[string]struct{})
	for _, record := range records {
		for _, known := range record.Events {
			referenced[known.EventID] = struct{}{}
		}
	}
	if len(referenced) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(referenced))
	for id := range referenced {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	existing, err := events.FilterExistingEventIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("filter existing event ids: %w", err)
	}

	missing := make(map[string]struct{})
	for _, id := range ids {
		if _, ok := existing[id]; !ok {
			missing[id] = struct{}{}
		}
	}
	return missing, nil
}

// repairRecord drops the record's recollections of missing events and
// persists the result under the store's version guard. A lost race
// re-reads the record and repairs whatever is actually there now.
func repairRecord(ctx context.Context, knowledge storage.KnowledgeStore, record reputation.Knowledge, missing map[string]struct{}, now time.Time) (int, bool, error) {
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		working := record
		working.Events = append([]reputation.KnownEvent(nil), record.Events...)
		before := len(working.Events)
		changed := working.Forget(func(known reputation.KnownEvent) bool {
			_, gone := missing[known.EventID]
			return !gone
		})
		if !changed {
			return 0, false, nil
		}
		dropped := before - len(working.Events)

		err := writeOrDelete(ctx, knowledge, working, now)
		if err == nil {
			return dropped, true, nil
		}
		if errors.Is(err, storage.ErrNotFound) {
			// Deleted underneath us; nothing left to repair.
			return 0, false, nil
		}
		if !errors.Is(err, storage.ErrConflict) {
			return 0, false, fmt.Errorf("repair knowledge %s/%s: %w", record.NPCID, record.CharacterID, err)
		}

		fresh, err := knowledge.GetKnowledge(ctx, record.NPCID, record.CharacterID)
		if errors.Is(err, storage.ErrNotFound) {
			return 0, false, nil
		}
		if err != nil {
			return 0, false, fmt.Errorf("reread knowledge %s/%s: %w", record.NPCID, record.CharacterID, err)
		}
		record = fresh
	}
	return 0, false, storage.ErrConflict
}

// DecayOldEvents erodes recollections older than thirty days by ten
// percent per pass, forgetting any that fall below the floor. Records
// emptied by decay are deleted. Same batch and retry discipline as
// cleanup.
func DecayOldEvents(ctx context.Context, knowledge storage.KnowledgeStore, now time.Time) (DecayResult, error) {
	var result DecayResult
	if knowledge == nil {
		return result, errors.New("knowledge store is required")
	}
	now = now.UTC()
	cutoff := now.Add(-knowledgeDecayAge)

	token := ""
	for {
		page, err := knowledge.ScanKnowledge(ctx, scanPageSize, token)
		if err != nil {
			return result, fmt.Errorf("scan knowledge: %w", err)
		}
		result.RecordsScanned += len(page.Records)

		for _, record := range page.Records {
			forgotten, decayed, err := decayRecord(ctx, knowledge, record, cutoff, now)
			if errors.Is(err, storage.ErrConflict) {
				log.Printf("decay: knowledge %s/%s stayed contended, skipping", record.NPCID, record.CharacterID)
				continue
			}
			if err != nil {
				return result, err
			}
			if decayed {
				result.RecordsDecayed++
				result.EntriesForgotten += forgotten
			}
		}

		if page.NextPageToken == "" {
			return result, nil
		}
		token = page.NextPageToken
	}
}

// decayRecord applies one decay step to the record's stale recollections
// and persists the result under the version guard.
func decayRecord(ctx context.Context, knowledge storage.KnowledgeStore, record reputation.Knowledge, cutoff, now time.Time) (int, bool, error) {
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		working := record
		working.Events = append([]reputation.KnownEvent(nil), record.Events...)

		forgotten := 0
		changed := false
		kept := working.Events[:0]
		for _, known := range working.Events {
			if !known.LearnedAt.Before(cutoff) {
				kept = append(kept, known)
				continue
			}
			decayed := int(math.Round(decayFactor * float64(known.PerceivedMagnitude)))
			if decayed < magnitudeFloor {
				forgotten++
				changed = true
				continue
			}
			if decayed != known.PerceivedMagnitude {
				known.PerceivedMagnitude = decayed
				changed = true
			}
			kept = append(kept, known)
		}
		if !changed {
			return 0, false, nil
		}
		working.Events = kept
		working.Recalculate()

		err := writeOrDelete(ctx, knowledge, working, now)
		if err == nil {
			return forgotten, true, nil
		}
		if errors.Is(err, storage.ErrNotFound) {
			return 0, false, nil
		}
		if !errors.Is(err, storage.ErrConflict) {
			return 0, false, fmt.Errorf("decay knowledge %s/%s: %w", record.NPCID, record.CharacterID, err)
		}

		fresh, err := knowledge.GetKnowledge(ctx, record.NPCID, record.CharacterID)
		if errors.Is(err, storage.ErrNotFound) {
			return 0, false, nil
		}
		if err != nil {
			return 0, false, fmt.Errorf("reread knowledge %s/%s: %w", record.NPCID, record.CharacterID, err)
		}
		record = fresh
	}
	return 0, false, storage.ErrConflict
}

// writeOrDelete upserts the record, or deletes it when decay or repair
// emptied it.
func writeOrDelete(ctx context.Context, knowledge storage.KnowledgeStore, record reputation.Knowledge, now time.Time) error {
	if len(record.Events) == 0 {
		return knowledge.DeleteKnowledge(ctx, record.NPCID, record.CharacterID, record.Version)
	}
	record.UpdatedAt = now
	return knowledge.UpsertKnowledge(ctx, record)
}

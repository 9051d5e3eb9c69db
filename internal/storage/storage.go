// Package storage defines persistence contracts for reputation state: the
// event journal, per-(NPC, character) knowledge aggregates, and the
// reference social graph. Implementations live in the sqlite and postgres
// subpackages.
package storage

import (
	"context"
	"errors"
	"time"

	"grapevine/internal/reputation"
	"grapevine/internal/social"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")

// ErrConflict indicates a knowledge write lost a version race and should be
// retried from a fresh read.
var ErrConflict = errors.New("record version conflict")

// EventStore persists reputation events.
type EventStore interface {
	// PutEvent stores a new event.
	PutEvent(ctx context.Context, event reputation.Event) error
	// GetEvent returns one event by id.
	GetEvent(ctx context.Context, eventID string) (reputation.Event, error)
	// UpdateEventSpread records the outcome of a spread run.
	UpdateEventSpread(ctx context.Context, eventID string, spreadCount int, lastSpreadAt time.Time) error
	// ListEventsByCharacterLocation returns the character's non-expired
	// events at a location, newest first.
	ListEventsByCharacterLocation(ctx context.Context, characterID, locationID string, now time.Time) ([]reputation.Event, error)
	// FilterExistingEventIDs returns the subset of ids that still resolve.
	FilterExistingEventIDs(ctx context.Context, eventIDs []string) (map[string]struct{}, error)
	// DeleteExpiredEvents removes events past their expiry and returns how
	// many were deleted.
	DeleteExpiredEvents(ctx context.Context, now time.Time) (int64, error)
}

// KnowledgePage is one page of knowledge records from a keyset scan.
type KnowledgePage struct {
	Records       []reputation.Knowledge
	NextPageToken string
}

// KnowledgeStore persists per-(NPC, character) knowledge aggregates.
type KnowledgeStore interface {
	// GetKnowledge returns the record for one (npc, character) pair.
	GetKnowledge(ctx context.Context, npcID, characterID string) (reputation.Knowledge, error)
	// UpsertKnowledge writes a record guarded by its version: inserts when
	// Version is zero, otherwise updates only if the stored version still
	// matches, bumping it. Returns ErrConflict when the guard fails.
	UpsertKnowledge(ctx context.Context, knowledge reputation.Knowledge) error
	// ListKnowledgeByCharacter pages through every NPC's knowledge of one
	// character.
	ListKnowledgeByCharacter(ctx context.Context, characterID string, pageSize int, pageToken string) (KnowledgePage, error)
	// ScanKnowledge pages through the whole store in insertion order.
	// Maintenance jobs use it to bound their working set.
	ScanKnowledge(ctx context.Context, pageSize int, pageToken string) (KnowledgePage, error)
	// DeleteKnowledge removes one record, guarded by its version like
	// UpsertKnowledge: ErrConflict when the stored version has moved on,
	// ErrNotFound when the record is already gone.
	DeleteKnowledge(ctx context.Context, npcID, characterID string, version int64) error
}

// NPC is one resident of the reference world.
type NPC struct {
	ID         string
	Name       string
	LocationID string
}

// Location is one settlement in the reference world.
type Location struct {
	ID      string
	Name    string
	Faction string
}

// SocialStore persists the reference social graph. It satisfies both
// social.Provider and social.Directory; games with their own relationship
// system plug in their implementations instead.
type SocialStore interface {
	PutNPC(ctx context.Context, npc NPC) error
	PutLocation(ctx context.Context, location Location) error
	// PutConnection stores a symmetric edge, materializing both directions.
	PutConnection(ctx context.Context, connection social.Connection) error
	ListNPCsByLocation(ctx context.Context, locationID string) ([]NPC, error)
	Connections(ctx context.Context, locationID string) ([]social.Connection, error)
	NPCLocation(ctx context.Context, npcID string) (string, error)
	LocationFaction(ctx context.Context, locationID string) (string, error)
}

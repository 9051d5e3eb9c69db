// Package social defines the read-only contracts the reputation engine uses
// to see the NPC world: who is connected to whom and how strongly, where
// NPCs live, and which faction runs a location. The relationship data itself
// is owned elsewhere; reference SQL-backed implementations live in the
// storage backends.
package social

import "context"

// Connection is one directed view of a symmetric weighted edge between two
// NPCs. The owning system materializes both directions.
type Connection struct {
	NPCID        string
	RelatedNPCID string
	// Strength is how readily gossip crosses this edge, 0 to 10.
	Strength float64
	// IsFamily marks kin. Family always passes gossip along.
	IsFamily bool
	// IsSameFaction marks edges inside one faction.
	IsSameFaction bool
}

// Provider exposes the social graph around a location.
type Provider interface {
	// Connections returns every edge among NPCs present at the location.
	Connections(ctx context.Context, locationID string) ([]Connection, error)
}

// Directory resolves NPCs and locations to their wider world context.
// Lookups may fail for individual entries; callers treat misses as gaps,
// not errors.
type Directory interface {
	// NPCLocation returns the home location of an NPC.
	NPCLocation(ctx context.Context, npcID string) (string, error)
	// LocationFaction returns the dominant faction of a location.
	LocationFaction(ctx context.Context, locationID string) (string, error)
}

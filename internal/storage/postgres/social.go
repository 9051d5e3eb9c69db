package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"grapevine/internal/social"
	"grapevine/internal/storage"
)

// PutNPC inserts or updates an NPC roster entry.
func (c *Client) PutNPC(ctx context.Context, npc storage.NPC) error {
	if strings.TrimSpace(npc.ID) == "" {
		return fmt.Errorf("npc id is required")
	}
	if strings.TrimSpace(npc.LocationID) == "" {
		return fmt.Errorf("location id is required")
	}

	_, err := c.pool.Exec(ctx,
		`INSERT INTO npcs (id, name, location_id) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, location_id = EXCLUDED.location_id`,
		npc.ID,
		npc.Name,
		npc.LocationID,
	)
	if err != nil {
		return fmt.Errorf("upserting npc: %w", err)
	}
	return nil
}

// PutLocation inserts or updates a location.
func (c *Client) PutLocation(ctx context.Context, location storage.Location) error {
	if strings.TrimSpace(location.ID) == "" {
		return fmt.Errorf("location id is required")
	}

	_, err := c.pool.Exec(ctx,
		`INSERT INTO locations (id, name, faction) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, faction = EXCLUDED.faction`,
		location.ID,
		location.Name,
		location.Faction,
	)
	if err != nil {
		return fmt.Errorf("upserting location: %w", err)
	}
	return nil
}

// PutConnection stores an undirected edge as two directed rows.
func (c *Client) PutConnection(ctx context.Context, connection social.Connection) error {
	npcID := strings.TrimSpace(connection.NPCID)
	relatedNPCID := strings.TrimSpace(connection.RelatedNPCID)
	if npcID == "" {
		return fmt.Errorf("npc id is required")
	}
	if relatedNPCID == "" {
		return fmt.Errorf("related npc id is required")
	}
	if npcID == relatedNPCID {
		return fmt.Errorf("related npc id must differ from npc id")
	}
	if connection.Strength < 0 || connection.Strength > 10 {
		return fmt.Errorf("connection strength must be between 0 and 10")
	}

	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("putting connection: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, pair := range [][2]string{{npcID, relatedNPCID}, {relatedNPCID, npcID}} {
		if _, err := tx.Exec(ctx,
			`INSERT INTO npc_connections (npc_id, related_npc_id, strength, is_family, is_same_faction)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (npc_id, related_npc_id) DO UPDATE SET
			   strength = EXCLUDED.strength,
			   is_family = EXCLUDED.is_family,
			   is_same_faction = EXCLUDED.is_same_faction`,
			pair[0],
			pair[1],
			connection.Strength,
			connection.IsFamily,
			connection.IsSameFaction,
		); err != nil {
			return fmt.Errorf("putting connection: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("putting connection: %w", err)
	}
	return nil
}

// ListNPCsByLocation returns every NPC at a location ordered by id.
func (c *Client) ListNPCsByLocation(ctx context.Context, locationID string) ([]storage.NPC, error) {
	locationID = strings.TrimSpace(locationID)
	if locationID == "" {
		return nil, fmt.Errorf("location id is required")
	}

	rows, err := c.pool.Query(ctx,
		`SELECT id, name, location_id FROM npcs WHERE location_id = $1 ORDER BY id ASC`,
		locationID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing npcs: %w", err)
	}
	defer rows.Close()

	var npcs []storage.NPC
	for rows.Next() {
		var npc storage.NPC
		if err := rows.Scan(&npc.ID, &npc.Name, &npc.LocationID); err != nil {
			return nil, fmt.Errorf("scanning npc: %w", err)
		}
		npcs = append(npcs, npc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing npcs: %w", err)
	}
	return npcs, nil
}

// Connections returns every edge among NPCs present at the location.
func (c *Client) Connections(ctx context.Context, locationID string) ([]social.Connection, error) {
	locationID = strings.TrimSpace(locationID)
	if locationID == "" {
		return nil, fmt.Errorf("location id is required")
	}

	rows, err := c.pool.Query(ctx,
		`SELECT c.npc_id, c.related_npc_id, c.strength, c.is_family, c.is_same_faction
		 FROM npc_connections c
		 JOIN npcs a ON a.id = c.npc_id
		 JOIN npcs b ON b.id = c.related_npc_id
		 WHERE a.location_id = $1 AND b.location_id = $1
		 ORDER BY c.npc_id ASC, c.related_npc_id ASC`,
		locationID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing connections: %w", err)
	}
	defer rows.Close()

	var connections []social.Connection
	for rows.Next() {
		var connection social.Connection
		if err := rows.Scan(
			&connection.NPCID,
			&connection.RelatedNPCID,
			&connection.Strength,
			&connection.IsFamily,
			&connection.IsSameFaction,
		); err != nil {
			return nil, fmt.Errorf("scanning connection: %w", err)
		}
		connections = append(connections, connection)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing connections: %w", err)
	}
	return connections, nil
}

// NPCLocation returns the home location of an NPC.
func (c *Client) NPCLocation(ctx context.Context, npcID string) (string, error) {
	npcID = strings.TrimSpace(npcID)
	if npcID == "" {
		return "", fmt.Errorf("npc id is required")
	}

	var locationID string
	err := c.pool.QueryRow(ctx,
		`SELECT location_id FROM npcs WHERE id = $1`,
		npcID,
	).Scan(&locationID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", storage.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("getting npc location: %w", err)
	}
	return locationID, nil
}

// LocationFaction returns the controlling faction of a location. An empty
// faction means the location is unaligned.
func (c *Client) LocationFaction(ctx context.Context, locationID string) (string, error) {
	locationID = strings.TrimSpace(locationID)
	if locationID == "" {
		return "", fmt.Errorf("location id is required")
	}

	var faction string
	err := c.pool.QueryRow(ctx,
		`SELECT faction FROM locations WHERE id = $1`,
		locationID,
	).Scan(&faction)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", storage.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("getting location faction: %w", err)
	}
	return faction, nil
}

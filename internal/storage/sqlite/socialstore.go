package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"grapevine/internal/social"
	"grapevine/internal/storage"
)

// SocialStore persists the reference social graph in SQLite.
type SocialStore struct {
	sqlDB *sql.DB
}

// OpenSocialStore opens a SQLite social store and applies embedded migrations.
func OpenSocialStore(path string) (*SocialStore, error) {
	sqlDB, err := openDB(path, "social")
	if err != nil {
		return nil, err
	}
	return &SocialStore{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *SocialStore) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// PutNPC upserts one NPC.
func (s *SocialStore) PutNPC(ctx context.Context, npc storage.NPC) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	npcID := strings.TrimSpace(npc.ID)
	locationID := strings.TrimSpace(npc.LocationID)
	if npcID == "" {
		return fmt.Errorf("npc id is required")
	}
	if locationID == "" {
		return fmt.Errorf("location id is required")
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO npcs (id, name, location_id)
		 VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   name = excluded.name,
		   location_id = excluded.location_id`,
		npcID,
		npc.Name,
		locationID,
	)
	if err != nil {
		return fmt.Errorf("put npc: %w", err)
	}
	return nil
}

// PutLocation upserts one location.
func (s *SocialStore) PutLocation(ctx context.Context, location storage.Location) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	locationID := strings.TrimSpace(location.ID)
	if locationID == "" {
		return fmt.Errorf("location id is required")
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO locations (id, name, faction)
		 VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   name = excluded.name,
		   faction = excluded.faction`,
		locationID,
		location.Name,
		location.Faction,
	)
	if err != nil {
		return fmt.Errorf("put location: %w", err)
	}
	return nil
}

// PutConnection stores a symmetric edge, materializing both directions.
func (s *SocialStore) PutConnection(ctx context.Context, connection social.Connection) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
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

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("put connection: %w", err)
	}
	for _, pair := range [][2]string{{npcID, relatedNPCID}, {relatedNPCID, npcID}} {
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO npc_connections (npc_id, related_npc_id, strength, is_family, is_same_faction)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(npc_id, related_npc_id) DO UPDATE SET
			   strength = excluded.strength,
			   is_family = excluded.is_family,
			   is_same_faction = excluded.is_same_faction`,
			pair[0],
			pair[1],
			connection.Strength,
			boolToInt(connection.IsFamily),
			boolToInt(connection.IsSameFaction),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("put connection: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("put connection: %w", err)
	}
	return nil
}

// ListNPCsByLocation returns every NPC at a location ordered by id.
func (s *SocialStore) ListNPCsByLocation(ctx context.Context, locationID string) ([]storage.NPC, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	locationID = strings.TrimSpace(locationID)
	if locationID == "" {
		return nil, fmt.Errorf("location id is required")
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT id, name, location_id FROM npcs WHERE location_id = ? ORDER BY id ASC`,
		locationID,
	)
	if err != nil {
		return nil, fmt.Errorf("list npcs: %w", err)
	}
	defer rows.Close()

	var npcs []storage.NPC
	for rows.Next() {
		var npc storage.NPC
		if err := rows.Scan(&npc.ID, &npc.Name, &npc.LocationID); err != nil {
			return nil, fmt.Errorf("list npcs: %w", err)
		}
		npcs = append(npcs, npc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list npcs: %w", err)
	}
	return npcs, nil
}

// Connections returns every edge among NPCs present at the location.
func (s *SocialStore) Connections(ctx context.Context, locationID string) ([]social.Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	locationID = strings.TrimSpace(locationID)
	if locationID == "" {
		return nil, fmt.Errorf("location id is required")
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT c.npc_id, c.related_npc_id, c.strength, c.is_family, c.is_same_faction
		 FROM npc_connections c
		 JOIN npcs a ON a.id = c.npc_id
		 JOIN npcs b ON b.id = c.related_npc_id
		 WHERE a.location_id = ? AND b.location_id = ?
		 ORDER BY c.npc_id ASC, c.related_npc_id ASC`,
		locationID,
		locationID,
	)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	defer rows.Close()

	var connections []social.Connection
	for rows.Next() {
		var (
			connection    social.Connection
			isFamily      int
			isSameFaction int
		)
		if err := rows.Scan(
			&connection.NPCID,
			&connection.RelatedNPCID,
			&connection.Strength,
			&isFamily,
			&isSameFaction,
		); err != nil {
			return nil, fmt.Errorf("list connections: %w", err)
		}
		connection.IsFamily = isFamily != 0
		connection.IsSameFaction = isSameFaction != 0
		connections = append(connections, connection)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	return connections, nil
}

// NPCLocation returns the home location of an NPC.
func (s *SocialStore) NPCLocation(ctx context.Context, npcID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s == nil || s.sqlDB == nil {
		return "", fmt.Errorf("storage is not configured")
	}
	npcID = strings.TrimSpace(npcID)
	if npcID == "" {
		return "", fmt.Errorf("npc id is required")
	}

	var locationID string
	row := s.sqlDB.QueryRowContext(ctx, `SELECT location_id FROM npcs WHERE id = ?`, npcID)
	if err := row.Scan(&locationID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", storage.ErrNotFound
		}
		return "", fmt.Errorf("npc location: %w", err)
	}
	return locationID, nil
}

// LocationFaction returns the dominant faction of a location.
func (s *SocialStore) LocationFaction(ctx context.Context, locationID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s == nil || s.sqlDB == nil {
		return "", fmt.Errorf("storage is not configured")
	}
	locationID = strings.TrimSpace(locationID)
	if locationID == "" {
		return "", fmt.Errorf("location id is required")
	}

	var faction string
	row := s.sqlDB.QueryRowContext(ctx, `SELECT faction FROM locations WHERE id = ?`, locationID)
	if err := row.Scan(&faction); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", storage.ErrNotFound
		}
		return "", fmt.Errorf("location faction: %w", err)
	}
	return faction, nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

var _ storage.SocialStore = (*SocialStore)(nil)

package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"grapevine/internal/reputation"
	"grapevine/internal/storage"
)

const eventColumns = `id, character_id, event_type, magnitude, sentiment,
	location_id, origin_npc_id, faction, spread_radius, decay_rate,
	occurred_at, expires_at, spread_count, last_spread_at, description`

// PutEvent stores an event, replacing any previous record with the same id.
func (c *Client) PutEvent(ctx context.Context, event reputation.Event) error {
	if strings.TrimSpace(event.ID) == "" {
		return fmt.Errorf("event id is required")
	}

	query := `
INSERT INTO reputation_events (` + eventColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
ON CONFLICT (id) DO UPDATE SET
    character_id = EXCLUDED.character_id,
    event_type = EXCLUDED.event_type,
    magnitude = EXCLUDED.magnitude,
    sentiment = EXCLUDED.sentiment,
    location_id = EXCLUDED.location_id,
    origin_npc_id = EXCLUDED.origin_npc_id,
    faction = EXCLUDED.faction,
    spread_radius = EXCLUDED.spread_radius,
    decay_rate = EXCLUDED.decay_rate,
    occurred_at = EXCLUDED.occurred_at,
    expires_at = EXCLUDED.expires_at,
    spread_count = EXCLUDED.spread_count,
    last_spread_at = EXCLUDED.last_spread_at,
    description = EXCLUDED.description
`
	_, err := c.pool.Exec(ctx, query,
		event.ID,
		event.CharacterID,
		string(event.Type),
		event.Magnitude,
		event.Sentiment,
		event.LocationID,
		event.OriginNPCID,
		event.Faction,
		event.SpreadRadius,
		event.DecayRate,
		event.Timestamp,
		event.ExpiresAt,
		event.SpreadCount,
		event.LastSpreadAt,
		event.Description,
	)
	if err != nil {
		return fmt.Errorf("upserting event: %w", err)
	}
	return nil
}

// GetEvent returns one event by id.
func (c *Client) GetEvent(ctx context.Context, eventID string) (reputation.Event, error) {
	row := c.pool.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM reputation_events WHERE id = $1`,
		eventID,
	)
	event, err := scanEvent(row.Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return reputation.Event{}, storage.ErrNotFound
	}
	if err != nil {
		return reputation.Event{}, fmt.Errorf("getting event: %w", err)
	}
	return event, nil
}

// UpdateEventSpread records the result of a spread run.
func (c *Client) UpdateEventSpread(ctx context.Context, eventID string, spreadCount int, lastSpreadAt time.Time) error {
	tag, err := c.pool.Exec(ctx,
		`UPDATE reputation_events SET spread_count = $2, last_spread_at = $3 WHERE id = $1`,
		eventID,
		spreadCount,
		lastSpreadAt,
	)
	if err != nil {
		return fmt.Errorf("updating event spread: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListEventsByCharacterLocation returns the character's unexpired events at
// a location, newest first.
func (c *Client) ListEventsByCharacterLocation(ctx context.Context, characterID, locationID string, now time.Time) ([]reputation.Event, error) {
	rows, err := c.pool.Query(ctx,
		`SELECT `+eventColumns+`
		 FROM reputation_events
		 WHERE character_id = $1 AND location_id = $2
		   AND (expires_at IS NULL OR expires_at > $3)
		 ORDER BY occurred_at DESC`,
		characterID,
		locationID,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	defer rows.Close()

	var events []reputation.Event
	for rows.Next() {
		event, err := scanEvent(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	return events, nil
}

// FilterExistingEventIDs returns the subset of ids present in the store.
func (c *Client) FilterExistingEventIDs(ctx context.Context, eventIDs []string) (map[string]struct{}, error) {
	existing := make(map[string]struct{}, len(eventIDs))
	if len(eventIDs) == 0 {
		return existing, nil
	}

	rows, err := c.pool.Query(ctx,
		`SELECT id FROM reputation_events WHERE id = ANY($1)`,
		eventIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("filtering event ids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning event id: %w", err)
		}
		existing[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("filtering event ids: %w", err)
	}
	return existing, nil
}

// DeleteExpiredEvents removes events whose expiry has passed.
func (c *Client) DeleteExpiredEvents(ctx context.Context, now time.Time) (int64, error) {
	tag, err := c.pool.Exec(ctx,
		`DELETE FROM reputation_events WHERE expires_at IS NOT NULL AND expires_at <= $1`,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting expired events: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanEvent(scan func(dest ...any) error) (reputation.Event, error) {
	var (
		event        reputation.Event
		eventType    string
		expiresAt    *time.Time
		lastSpreadAt *time.Time
	)
	err := scan(
		&event.ID,
		&event.CharacterID,
		&eventType,
		&event.Magnitude,
		&event.Sentiment,
		&event.LocationID,
		&event.OriginNPCID,
		&event.Faction,
		&event.SpreadRadius,
		&event.DecayRate,
		&event.Timestamp,
		&expiresAt,
		&event.SpreadCount,
		&lastSpreadAt,
		&event.Description,
	)
	if err != nil {
		return reputation.Event{}, err
	}
	event.Type = reputation.EventType(eventType)
	event.Timestamp = event.Timestamp.UTC()
	if expiresAt != nil {
		utc := expiresAt.UTC()
		event.ExpiresAt = &utc
	}
	if lastSpreadAt != nil {
		utc := lastSpreadAt.UTC()
		event.LastSpreadAt = &utc
	}
	return event, nil
}

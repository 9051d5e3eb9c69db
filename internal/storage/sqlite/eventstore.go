package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"grapevine/internal/reputation"
	"grapevine/internal/storage"
)

// EventStore persists reputation events in SQLite.
type EventStore struct {
	sqlDB *sql.DB
}

// OpenEventStore opens a SQLite event store and applies embedded migrations.
func OpenEventStore(path string) (*EventStore, error) {
	sqlDB, err := openDB(path, "events")
	if err != nil {
		return nil, err
	}
	return &EventStore{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *EventStore) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// PutEvent stores a new event.
func (s *EventStore) PutEvent(ctx context.Context, event reputation.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(event.ID) == "" {
		return fmt.Errorf("event id is required")
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO reputation_events (
		   id, character_id, event_type, magnitude, sentiment, faction,
		   location_id, origin_npc_id, spread_radius, decay_rate,
		   timestamp, expires_at, description, spread_count, last_spread_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID,
		event.CharacterID,
		string(event.Type),
		event.Magnitude,
		event.Sentiment,
		event.Faction,
		event.LocationID,
		event.OriginNPCID,
		event.SpreadRadius,
		event.DecayRate,
		toMillis(event.Timestamp),
		toMillisPtr(event.ExpiresAt),
		event.Description,
		event.SpreadCount,
		toMillisPtr(event.LastSpreadAt),
	)
	if err != nil {
		return fmt.Errorf("put event: %w", err)
	}
	return nil
}

const eventColumns = `id, character_id, event_type, magnitude, sentiment, faction,
	location_id, origin_npc_id, spread_radius, decay_rate,
	timestamp, expires_at, description, spread_count, last_spread_at`

func scanEvent(scan func(dest ...any) error) (reputation.Event, error) {
	var (
		event        reputation.Event
		eventType    string
		timestamp    int64
		expiresAt    sql.NullInt64
		lastSpreadAt sql.NullInt64
	)
	err := scan(
		&event.ID,
		&event.CharacterID,
		&eventType,
		&event.Magnitude,
		&event.Sentiment,
		&event.Faction,
		&event.LocationID,
		&event.OriginNPCID,
		&event.SpreadRadius,
		&event.DecayRate,
		&timestamp,
		&expiresAt,
		&event.Description,
		&event.SpreadCount,
		&lastSpreadAt,
	)
	if err != nil {
		return reputation.Event{}, err
	}
	event.Type = reputation.EventType(eventType)
	event.Timestamp = fromMillis(timestamp)
	event.ExpiresAt = fromMillisPtr(expiresAt)
	event.LastSpreadAt = fromMillisPtr(lastSpreadAt)
	return event, nil
}

// GetEvent returns one event by id.
func (s *EventStore) GetEvent(ctx context.Context, eventID string) (reputation.Event, error) {
	if err := ctx.Err(); err != nil {
		return reputation.Event{}, err
	}
	if s == nil || s.sqlDB == nil {
		return reputation.Event{}, fmt.Errorf("storage is not configured")
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return reputation.Event{}, fmt.Errorf("event id is required")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT `+eventColumns+` FROM reputation_events WHERE id = ?`,
		eventID,
	)
	event, err := scanEvent(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return reputation.Event{}, storage.ErrNotFound
		}
		return reputation.Event{}, fmt.Errorf("get event: %w", err)
	}
	return event, nil
}

// UpdateEventSpread records the outcome of a spread run.
func (s *EventStore) UpdateEventSpread(ctx context.Context, eventID string, spreadCount int, lastSpreadAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return fmt.Errorf("event id is required")
	}

	result, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE reputation_events
		 SET spread_count = ?, last_spread_at = ?
		 WHERE id = ?`,
		spreadCount,
		toMillis(lastSpreadAt),
		eventID,
	)
	if err != nil {
		return fmt.Errorf("update event spread: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update event spread: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListEventsByCharacterLocation returns the character's non-expired events
// at a location, newest first.
func (s *EventStore) ListEventsByCharacterLocation(ctx context.Context, characterID, locationID string, now time.Time) ([]reputation.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	characterID = strings.TrimSpace(characterID)
	locationID = strings.TrimSpace(locationID)
	if characterID == "" {
		return nil, fmt.Errorf("character id is required")
	}
	if locationID == "" {
		return nil, fmt.Errorf("location id is required")
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT `+eventColumns+`
		 FROM reputation_events
		 WHERE character_id = ? AND location_id = ?
		   AND (expires_at IS NULL OR expires_at > ?)
		 ORDER BY timestamp DESC, id DESC`,
		characterID,
		locationID,
		toMillis(now),
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []reputation.Event
	for rows.Next() {
		event, err := scanEvent(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("list events: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

// FilterExistingEventIDs returns the subset of ids that still resolve.
func (s *EventStore) FilterExistingEventIDs(ctx context.Context, eventIDs []string) (map[string]struct{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	existing := make(map[string]struct{}, len(eventIDs))
	if len(eventIDs) == 0 {
		return existing, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(eventIDs)), ",")
	args := make([]any, len(eventIDs))
	for i, id := range eventIDs {
		args[i] = id
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT id FROM reputation_events WHERE id IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("filter event ids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("filter event ids: %w", err)
		}
		existing[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("filter event ids: %w", err)
	}
	return existing, nil
}

// DeleteExpiredEvents removes events past their expiry.
func (s *EventStore) DeleteExpiredEvents(ctx context.Context, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}

	result, err := s.sqlDB.ExecContext(
		ctx,
		`DELETE FROM reputation_events
		 WHERE expires_at IS NOT NULL AND expires_at <= ?`,
		toMillis(now),
	)
	if err != nil {
		return 0, fmt.Errorf("delete expired events: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired events: %w", err)
	}
	return deleted, nil
}

var _ storage.EventStore = (*EventStore)(nil)

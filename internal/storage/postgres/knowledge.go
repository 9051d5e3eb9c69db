package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"grapevine/internal/reputation"
	"grapevine/internal/storage"
	"grapevine/internal/storage/cursor"
)

// GetKnowledge returns the knowledge record for one NPC and character.
func (c *Client) GetKnowledge(ctx context.Context, npcID, characterID string) (reputation.Knowledge, error) {
	npcID = strings.TrimSpace(npcID)
	characterID = strings.TrimSpace(characterID)
	if npcID == "" {
		return reputation.Knowledge{}, fmt.Errorf("npc id is required")
	}
	if characterID == "" {
		return reputation.Knowledge{}, fmt.Errorf("character id is required")
	}

	row := c.pool.QueryRow(ctx,
		`SELECT npc_id, character_id, events_json, overall_opinion,
		        trust_level, fear_level, version, updated_at
		 FROM npc_knowledge
		 WHERE npc_id = $1 AND character_id = $2`,
		npcID,
		characterID,
	)
	knowledge, _, err := scanKnowledgeRow(row.Scan, false)
	if errors.Is(err, pgx.ErrNoRows) {
		return reputation.Knowledge{}, storage.ErrNotFound
	}
	if err != nil {
		return reputation.Knowledge{}, fmt.Errorf("getting knowledge: %w", err)
	}
	return knowledge, nil
}

// UpsertKnowledge writes a record guarded by its version. A zero version
// inserts; otherwise the update only lands when the stored version still
// matches, and the version is bumped. ErrConflict reports a lost race.
func (c *Client) UpsertKnowledge(ctx context.Context, knowledge reputation.Knowledge) error {
	npcID := strings.TrimSpace(knowledge.NPCID)
	characterID := strings.TrimSpace(knowledge.CharacterID)
	if npcID == "" {
		return fmt.Errorf("npc id is required")
	}
	if characterID == "" {
		return fmt.Errorf("character id is required")
	}

	events := knowledge.Events
	if events == nil {
		events = []reputation.KnownEvent{}
	}
	eventsJSON, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("marshaling known events: %w", err)
	}

	if knowledge.Version == 0 {
		_, err := c.pool.Exec(ctx,
			`INSERT INTO npc_knowledge (
			   npc_id, character_id, events_json, overall_opinion,
			   trust_level, fear_level, version, updated_at
			 ) VALUES ($1, $2, $3, $4, $5, $6, 1, $7)`,
			npcID,
			characterID,
			eventsJSON,
			knowledge.OverallOpinion,
			knowledge.TrustLevel,
			knowledge.FearLevel,
			knowledge.UpdatedAt,
		)
		if isUniqueViolation(err) {
			return storage.ErrConflict
		}
		if err != nil {
			return fmt.Errorf("inserting knowledge: %w", err)
		}
		return nil
	}

	tag, err := c.pool.Exec(ctx,
		`UPDATE npc_knowledge
		 SET events_json = $3, overall_opinion = $4, trust_level = $5,
		     fear_level = $6, version = version + 1, updated_at = $7
		 WHERE npc_id = $1 AND character_id = $2 AND version = $8`,
		npcID,
		characterID,
		eventsJSON,
		knowledge.OverallOpinion,
		knowledge.TrustLevel,
		knowledge.FearLevel,
		knowledge.UpdatedAt,
		knowledge.Version,
	)
	if err != nil {
		return fmt.Errorf("updating knowledge: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrConflict
	}
	return nil
}

// ListKnowledgeByCharacter pages through one character's records.
func (c *Client) ListKnowledgeByCharacter(ctx context.Context, characterID string, pageSize int, pageToken string) (storage.KnowledgePage, error) {
	characterID = strings.TrimSpace(characterID)
	if characterID == "" {
		return storage.KnowledgePage{}, fmt.Errorf("character id is required")
	}
	return c.pageKnowledge(ctx, characterID, pageSize, pageToken)
}

// ScanKnowledge pages through the whole store in insertion order.
func (c *Client) ScanKnowledge(ctx context.Context, pageSize int, pageToken string) (storage.KnowledgePage, error) {
	return c.pageKnowledge(ctx, "", pageSize, pageToken)
}

func (c *Client) pageKnowledge(ctx context.Context, characterID string, pageSize int, pageToken string) (storage.KnowledgePage, error) {
	if pageSize <= 0 {
		return storage.KnowledgePage{}, fmt.Errorf("page size must be positive")
	}

	var afterSeq uint64
	if pageToken != "" {
		decoded, err := cursor.Decode(pageToken)
		if err != nil {
			return storage.KnowledgePage{}, fmt.Errorf("decoding page token: %w", err)
		}
		if err := cursor.ValidateFilterHash(decoded, characterID); err != nil {
			return storage.KnowledgePage{}, err
		}
		afterSeq = decoded.Seq
	}

	query := `SELECT seq, npc_id, character_id, events_json, overall_opinion,
	                 trust_level, fear_level, version, updated_at
	          FROM npc_knowledge
	          WHERE seq > $1`
	args := []any{afterSeq}
	if characterID != "" {
		query += ` AND character_id = $2`
		args = append(args, characterID)
	}
	query += fmt.Sprintf(` ORDER BY seq ASC LIMIT %d`, pageSize+1)

	rows, err := c.pool.Query(ctx, query, args...)
	if err != nil {
		return storage.KnowledgePage{}, fmt.Errorf("listing knowledge: %w", err)
	}
	defer rows.Close()

	var (
		records []reputation.Knowledge
		seqs    []uint64
	)
	for rows.Next() {
		knowledge, seq, err := scanKnowledgeRow(rows.Scan, true)
		if err != nil {
			return storage.KnowledgePage{}, fmt.Errorf("scanning knowledge: %w", err)
		}
		records = append(records, knowledge)
		seqs = append(seqs, seq)
	}
	if err := rows.Err(); err != nil {
		return storage.KnowledgePage{}, fmt.Errorf("listing knowledge: %w", err)
	}

	page := storage.KnowledgePage{Records: records}
	if len(records) > pageSize {
		token, err := cursor.Encode(cursor.New(seqs[pageSize-1], characterID))
		if err != nil {
			return storage.KnowledgePage{}, fmt.Errorf("encoding page token: %w", err)
		}
		page.Records = records[:pageSize]
		page.NextPageToken = token
	}
	return page, nil
}

// DeleteKnowledge removes one record when its version still matches,
// reporting ErrConflict for stale versions and ErrNotFound for missing
// records.
func (c *Client) DeleteKnowledge(ctx context.Context, npcID, characterID string, version int64) error {
	npcID = strings.TrimSpace(npcID)
	characterID = strings.TrimSpace(characterID)
	if npcID == "" {
		return fmt.Errorf("npc id is required")
	}
	if characterID == "" {
		return fmt.Errorf("character id is required")
	}

	tag, err := c.pool.Exec(ctx,
		`DELETE FROM npc_knowledge WHERE npc_id = $1 AND character_id = $2 AND version = $3`,
		npcID,
		characterID,
		version,
	)
	if err != nil {
		return fmt.Errorf("deleting knowledge: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var stored int64
	err = c.pool.QueryRow(ctx,
		`SELECT version FROM npc_knowledge WHERE npc_id = $1 AND character_id = $2`,
		npcID,
		characterID,
	).Scan(&stored)
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("checking knowledge version: %w", err)
	}
	return storage.ErrConflict
}

func scanKnowledgeRow(scan func(dest ...any) error, withSeq bool) (reputation.Knowledge, uint64, error) {
	var (
		knowledge  reputation.Knowledge
		seq        uint64
		eventsJSON []byte
	)
	dest := []any{
		&knowledge.NPCID,
		&knowledge.CharacterID,
		&eventsJSON,
		&knowledge.OverallOpinion,
		&knowledge.TrustLevel,
		&knowledge.FearLevel,
		&knowledge.Version,
		&knowledge.UpdatedAt,
	}
	if withSeq {
		dest = append([]any{&seq}, dest...)
	}
	if err := scan(dest...); err != nil {
		return reputation.Knowledge{}, 0, err
	}
	if err := json.Unmarshal(eventsJSON, &knowledge.Events); err != nil {
		return reputation.Knowledge{}, 0, fmt.Errorf("unmarshaling known events: %w", err)
	}
	knowledge.UpdatedAt = knowledge.UpdatedAt.UTC()
	return knowledge, seq, nil
}

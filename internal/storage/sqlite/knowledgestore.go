package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"grapevine/internal/reputation"
	"grapevine/internal/storage"
	"grapevine/internal/storage/cursor"
)

// KnowledgeStore persists per-(NPC, character) knowledge in SQLite. The
// KnownEvent collection is stored as a JSON document; derived fields and
// the version guard are real columns.
type KnowledgeStore struct {
	sqlDB *sql.DB
}

// OpenKnowledgeStore opens a SQLite knowledge store and applies embedded
// migrations.
func OpenKnowledgeStore(path string) (*KnowledgeStore, error) {
	sqlDB, err := openDB(path, "knowledge")
	if err != nil {
		return nil, err
	}
	return &KnowledgeStore{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *KnowledgeStore) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// GetKnowledge returns the record for one (npc, character) pair.
func (s *KnowledgeStore) GetKnowledge(ctx context.Context, npcID, characterID string) (reputation.Knowledge, error) {
	if err := ctx.Err(); err != nil {
		return reputation.Knowledge{}, err
	}
	if s == nil || s.sqlDB == nil {
		return reputation.Knowledge{}, fmt.Errorf("storage is not configured")
	}
	npcID = strings.TrimSpace(npcID)
	characterID = strings.TrimSpace(characterID)
	if npcID == "" {
		return reputation.Knowledge{}, fmt.Errorf("npc id is required")
	}
	if characterID == "" {
		return reputation.Knowledge{}, fmt.Errorf("character id is required")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT npc_id, character_id, events_json, overall_opinion,
		        trust_level, fear_level, version, updated_at
		 FROM npc_knowledge
		 WHERE npc_id = ? AND character_id = ?`,
		npcID,
		characterID,
	)
	knowledge, _, err := scanKnowledge(row.Scan, false)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return reputation.Knowledge{}, storage.ErrNotFound
		}
		return reputation.Knowledge{}, fmt.Errorf("get knowledge: %w", err)
	}
	return knowledge, nil
}

// UpsertKnowledge writes a record guarded by its version. A zero version
// inserts; otherwise the update only lands when the stored version still
// matches, and the version is bumped. ErrConflict reports a lost race.
func (s *KnowledgeStore) UpsertKnowledge(ctx context.Context, knowledge reputation.Knowledge) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	npcID := strings.TrimSpace(knowledge.NPCID)
	characterID := strings.TrimSpace(knowledge.CharacterID)
	if npcID == "" {
		return fmt.Errorf("npc id is required")
	}
	if characterID == "" {
		return fmt.Errorf("character id is required")
	}

	eventsJSON, err := json.Marshal(knowledge.Events)
	if err != nil {
		return fmt.Errorf("marshal known events: %w", err)
	}

	if knowledge.Version == 0 {
		_, err := s.sqlDB.ExecContext(
			ctx,
			`INSERT INTO npc_knowledge (
			   npc_id, character_id, events_json, overall_opinion,
			   trust_level, fear_level, version, updated_at
			 ) VALUES (?, ?, ?, ?, ?, ?, 1, ?)`,
			npcID,
			characterID,
			string(eventsJSON),
			knowledge.OverallOpinion,
			knowledge.TrustLevel,
			knowledge.FearLevel,
			toMillis(knowledge.UpdatedAt),
		)
		if err != nil {
			if isUniqueViolation(err) {
				return storage.ErrConflict
			}
			return fmt.Errorf("insert knowledge: %w", err)
		}
		return nil
	}

	result, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE npc_knowledge
		 SET events_json = ?, overall_opinion = ?, trust_level = ?,
		     fear_level = ?, version = version + 1, updated_at = ?
		 WHERE npc_id = ? AND character_id = ? AND version = ?`,
		string(eventsJSON),
		knowledge.OverallOpinion,
		knowledge.TrustLevel,
		knowledge.FearLevel,
		toMillis(knowledge.UpdatedAt),
		npcID,
		characterID,
		knowledge.Version,
	)
	if err != nil {
		return fmt.Errorf("update knowledge: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update knowledge: %w", err)
	}
	if affected == 0 {
		return storage.ErrConflict
	}
	return nil
}

// ListKnowledgeByCharacter pages through every NPC's knowledge of one
// character in insertion order.
func (s *KnowledgeStore) ListKnowledgeByCharacter(ctx context.Context, characterID string, pageSize int, pageToken string) (storage.KnowledgePage, error) {
	characterID = strings.TrimSpace(characterID)
	if characterID == "" {
		return storage.KnowledgePage{}, fmt.Errorf("character id is required")
	}
	return s.pageKnowledge(ctx, characterID, pageSize, pageToken)
}

// ScanKnowledge pages through the whole store in insertion order.
func (s *KnowledgeStore) ScanKnowledge(ctx context.Context, pageSize int, pageToken string) (storage.KnowledgePage, error) {
	return s.pageKnowledge(ctx, "", pageSize, pageToken)
}

func (s *KnowledgeStore) pageKnowledge(ctx context.Context, characterID string, pageSize int, pageToken string) (storage.KnowledgePage, error) {
	if err := ctx.Err(); err != nil {
		return storage.KnowledgePage{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.KnowledgePage{}, fmt.Errorf("storage is not configured")
	}
	if pageSize <= 0 {
		return storage.KnowledgePage{}, fmt.Errorf("page size must be greater than zero")
	}

	var afterSeq uint64
	if pageToken = strings.TrimSpace(pageToken); pageToken != "" {
		decoded, err := cursor.Decode(pageToken)
		if err != nil {
			return storage.KnowledgePage{}, fmt.Errorf("decode page token: %w", err)
		}
		if err := cursor.ValidateFilterHash(decoded, characterID); err != nil {
			return storage.KnowledgePage{}, fmt.Errorf("validate page token: %w", err)
		}
		afterSeq = decoded.Seq
	}

	query := `SELECT seq, npc_id, character_id, events_json, overall_opinion,
	                 trust_level, fear_level, version, updated_at
	          FROM npc_knowledge
	          WHERE seq > ?`
	args := []any{afterSeq}
	if characterID != "" {
		query += ` AND character_id = ?`
		args = append(args, characterID)
	}
	query += ` ORDER BY seq ASC LIMIT ?`
	args = append(args, pageSize+1)

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return storage.KnowledgePage{}, fmt.Errorf("list knowledge: %w", err)
	}
	defer rows.Close()

	page := storage.KnowledgePage{
		Records: make([]reputation.Knowledge, 0, pageSize),
	}
	var seqs []uint64
	for rows.Next() {
		knowledge, seq, err := scanKnowledge(rows.Scan, true)
		if err != nil {
			return storage.KnowledgePage{}, fmt.Errorf("list knowledge: %w", err)
		}
		page.Records = append(page.Records, knowledge)
		seqs = append(seqs, seq)
	}
	if err := rows.Err(); err != nil {
		return storage.KnowledgePage{}, fmt.Errorf("list knowledge: %w", err)
	}

	if len(page.Records) > pageSize {
		page.Records = page.Records[:pageSize]
		token, err := cursor.Encode(cursor.New(seqs[pageSize-1], characterID))
		if err != nil {
			return storage.KnowledgePage{}, fmt.Errorf("encode page token: %w", err)
		}
		page.NextPageToken = token
	}
	return page, nil
}

func scanKnowledge(scan func(dest ...any) error, withSeq bool) (reputation.Knowledge, uint64, error) {
	var (
		knowledge  reputation.Knowledge
		seq        uint64
		eventsJSON string
		updatedAt  int64
	)
	dest := []any{
		&knowledge.NPCID,
		&knowledge.CharacterID,
		&eventsJSON,
		&knowledge.OverallOpinion,
		&knowledge.TrustLevel,
		&knowledge.FearLevel,
		&knowledge.Version,
		&updatedAt,
	}
	if withSeq {
		dest = append([]any{&seq}, dest...)
	}
	if err := scan(dest...); err != nil {
		return reputation.Knowledge{}, 0, err
	}
	if err := json.Unmarshal([]byte(eventsJSON), &knowledge.Events); err != nil {
		return reputation.Knowledge{}, 0, fmt.Errorf("unmarshal known events: %w", err)
	}
	knowledge.UpdatedAt = fromMillis(updatedAt)
	return knowledge, seq, nil
}

// DeleteKnowledge removes one record when its version still matches.
func (s *KnowledgeStore) DeleteKnowledge(ctx context.Context, npcID, characterID string, version int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	npcID = strings.TrimSpace(npcID)
	characterID = strings.TrimSpace(characterID)
	if npcID == "" {
		return fmt.Errorf("npc id is required")
	}
	if characterID == "" {
		return fmt.Errorf("character id is required")
	}

	result, err := s.sqlDB.ExecContext(
		ctx,
		`DELETE FROM npc_knowledge WHERE npc_id = ? AND character_id = ? AND version = ?`,
		npcID,
		characterID,
		version,
	)
	if err != nil {
		return fmt.Errorf("delete knowledge: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete knowledge rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var stored int64
	err = s.sqlDB.QueryRowContext(
		ctx,
		`SELECT version FROM npc_knowledge WHERE npc_id = ? AND character_id = ?`,
		npcID,
		characterID,
	).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("check knowledge version: %w", err)
	}
	return storage.ErrConflict
}

var _ storage.KnowledgeStore = (*KnowledgeStore)(nil)

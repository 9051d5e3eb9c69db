package postgres

import (
	"context"
	"fmt"
)

// EnsureSchema creates the reputation tables when they do not exist yet.
// The DDL runs in one call, which PostgreSQL wraps in an implicit
// transaction, and IF NOT EXISTS keeps repeated runs harmless.
func (c *Client) EnsureSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS reputation_events (
    id             TEXT PRIMARY KEY,
    character_id   TEXT NOT NULL,
    event_type     TEXT NOT NULL,
    magnitude      INTEGER NOT NULL,
    sentiment      INTEGER NOT NULL,
    location_id    TEXT NOT NULL,
    origin_npc_id  TEXT NOT NULL DEFAULT '',
    faction        TEXT NOT NULL DEFAULT '',
    spread_radius  INTEGER NOT NULL,
    decay_rate     DOUBLE PRECISION NOT NULL,
    occurred_at    TIMESTAMPTZ NOT NULL,
    expires_at     TIMESTAMPTZ,
    spread_count   INTEGER NOT NULL DEFAULT 0,
    last_spread_at TIMESTAMPTZ,
    description    TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_events_character_location
    ON reputation_events (character_id, location_id, occurred_at DESC);
CREATE INDEX IF NOT EXISTS idx_events_expires_at
    ON reputation_events (expires_at) WHERE expires_at IS NOT NULL;

CREATE TABLE IF NOT EXISTS npc_knowledge (
    seq             BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
    npc_id          TEXT NOT NULL,
    character_id    TEXT NOT NULL,
    events_json     JSONB NOT NULL DEFAULT '[]',
    overall_opinion DOUBLE PRECISION NOT NULL DEFAULT 0,
    trust_level     DOUBLE PRECISION NOT NULL DEFAULT 50,
    fear_level      DOUBLE PRECISION NOT NULL DEFAULT 0,
    version         BIGINT NOT NULL DEFAULT 1,
    updated_at      TIMESTAMPTZ NOT NULL,
    CONSTRAINT uq_knowledge_npc_character UNIQUE (npc_id, character_id)
);

CREATE INDEX IF NOT EXISTS idx_knowledge_character
    ON npc_knowledge (character_id, seq);

CREATE TABLE IF NOT EXISTS locations (
    id      TEXT PRIMARY KEY,
    name    TEXT NOT NULL,
    faction TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS npcs (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL,
    location_id TEXT NOT NULL REFERENCES locations(id)
);

CREATE INDEX IF NOT EXISTS idx_npcs_location ON npcs (location_id);

CREATE TABLE IF NOT EXISTS npc_connections (
    npc_id          TEXT NOT NULL,
    related_npc_id  TEXT NOT NULL,
    strength        DOUBLE PRECISION NOT NULL,
    is_family       BOOLEAN NOT NULL DEFAULT FALSE,
    is_same_faction BOOLEAN NOT NULL DEFAULT FALSE,
    PRIMARY KEY (npc_id, related_npc_id)
);
`
	if _, err := c.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("ensuring schema: %w", err)
	}
	return nil
}

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	msqlite "modernc.org/sqlite"
)

type opaqueWrapError struct {
	cause error
}

func (e opaqueWrapError) Error() string {
	return "wrapped database error"
}

func (e opaqueWrapError) Unwrap() error {
	return e.cause
}

type asSQLiteErrorWithUniqueMessage struct{}

func (e asSQLiteErrorWithUniqueMessage) Error() string {
	return "UNIQUE constraint failed: npc_knowledge.npc_id, npc_knowledge.character_id"
}

func (e asSQLiteErrorWithUniqueMessage) As(target any) bool {
	sqliteErrPtr, ok := target.(**msqlite.Error)
	if !ok {
		return false
	}
	// Zero value mimics an unexpected/non-unique code while preserving typed matching.
	*sqliteErrPtr = &msqlite.Error{}
	return true
}

func TestIsUniqueViolationDetectsWrappedDriverError(t *testing.T) {
	store := openTestKnowledgeStore(t)
	now := toMillis(time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC))

	insert := `INSERT INTO npc_knowledge (
	             npc_id, character_id, events_json, overall_opinion,
	             trust_level, fear_level, version, updated_at
	           ) VALUES (?, ?, '[]', 0, 50, 0, 1, ?)`
	if _, err := store.sqlDB.ExecContext(context.Background(), insert, "npc-1", "char-1", now); err != nil {
		t.Fatalf("seed knowledge: %v", err)
	}
	_, err := store.sqlDB.ExecContext(context.Background(), insert, "npc-1", "char-1", now)
	if err == nil {
		t.Fatal("expected unique constraint error")
	}

	wrapped := opaqueWrapError{cause: err}
	if !isUniqueViolation(wrapped) {
		t.Fatalf("isUniqueViolation(%T) = false, want true", wrapped)
	}
}

func TestIsUniqueViolationFallsBackToMessageWhenSQLiteCodeIsUnexpected(t *testing.T) {
	err := asSQLiteErrorWithUniqueMessage{}
	if !isUniqueViolation(err) {
		t.Fatalf("isUniqueViolation(%T) = false, want true", err)
	}
}

func TestIsUniqueViolationIgnoresOtherErrors(t *testing.T) {
	if isUniqueViolation(nil) {
		t.Fatal("isUniqueViolation(nil) = true, want false")
	}
	if isUniqueViolation(errors.New("disk I/O error")) {
		t.Fatal("expected plain error to not count as unique violation")
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := OpenEventStore(""); err == nil {
		t.Fatal("expected error for empty path")
	}
	if _, err := OpenKnowledgeStore("   "); err == nil {
		t.Fatal("expected error for blank path")
	}
}

func TestMillisRoundTrip(t *testing.T) {
	value := time.Date(2026, time.March, 2, 12, 30, 45, 0, time.UTC)
	if got := fromMillis(toMillis(value)); !got.Equal(value) {
		t.Fatalf("expected %v, got %v", value, got)
	}
	if toMillisPtr(nil) != nil {
		t.Fatal("expected nil for nil time pointer")
	}
	if got := fromMillisPtr(sql.NullInt64{}); got != nil {
		t.Fatalf("expected nil for null column, got %v", got)
	}
}

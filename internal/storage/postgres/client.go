// Package postgres provides a PostgreSQL-backed implementation of the
// reputation storage contracts on a single connection pool. It suits
// deployments where several game servers share one reputation database.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"grapevine/internal/storage"
)

var _ storage.EventStore = (*Client)(nil)
var _ storage.KnowledgeStore = (*Client)(nil)
var _ storage.SocialStore = (*Client)(nil)

// Client holds the pool shared by the event, knowledge, and social stores.
type Client struct {
	pool *pgxpool.Pool
}

// New connects to the database and verifies the connection. Callers own
// the schema lifecycle and should invoke EnsureSchema before first use.
func New(ctx context.Context, dsn string) (*Client, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("creating postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return &Client{pool: pool}, nil
}

// Close releases the pool.
func (c *Client) Close() error {
	if c == nil || c.pool == nil {
		return nil
	}
	c.pool.Close()
	return nil
}

// isUniqueViolation reports whether the error is a unique-constraint
// failure (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

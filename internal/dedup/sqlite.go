package dedup

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure Go driver
)

// SQLiteClient keeps claims in a local SQLite file. Intended for single-node
// and development deployments.
type SQLiteClient struct {
	db *sql.DB
}

// NewSQLiteClient opens (and if needed creates) the dedup table at path.
// Use ":memory:" for an ephemeral database.
func NewSQLiteClient(path string) (*SQLiteClient, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// :memory: databases are per connection
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS dedup_claims (
			event_id TEXT PRIMARY KEY,
			expires_at INTEGER NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}
	return &SQLiteClient{db: db}, nil
}

func (c *SQLiteClient) Exists(ctx context.Context, id string, now time.Time) (bool, error) {
	var one int
	err := c.db.QueryRowContext(ctx,
		`SELECT 1 FROM dedup_claims WHERE event_id = ? AND expires_at > ?`,
		id, now.Unix(),
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Claim inserts the row, or takes over an expired one. A live row leaves the
// statement without effect, which is reported as ErrAlreadyClaimed.
func (c *SQLiteClient) Claim(ctx context.Context, id string, expiresAt, now time.Time) error {
	res, err := c.db.ExecContext(ctx, `
		INSERT INTO dedup_claims (event_id, expires_at) VALUES (?, ?)
		ON CONFLICT(event_id) DO UPDATE SET expires_at = excluded.expires_at
		WHERE dedup_claims.expires_at <= ?
	`, id, expiresAt.Unix(), now.Unix())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrAlreadyClaimed
	}
	return nil
}

// DeleteExpired removes rows that expired before now and returns how many
// were removed.
func (c *SQLiteClient) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM dedup_claims WHERE expires_at <= ?`, now.Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (c *SQLiteClient) Close() error { return c.db.Close() }

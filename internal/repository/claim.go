package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/akave-ai/gameevents/internal/dedup"
	"github.com/akave-ai/gameevents/internal/model"
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ClaimRepository persists dedup claims in the dedup_claims table. It
// implements dedup.Client.
type ClaimRepository struct {
	db DBTX
}

// NewClaimRepository returns a ClaimRepository using the given pool.
func NewClaimRepository(db DBTX) *ClaimRepository {
	return &ClaimRepository{db: db}
}

// Exists reports whether a claim for id expires after now.
func (r *ClaimRepository) Exists(ctx context.Context, id string, now time.Time) (bool, error) {
	var live bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM dedup_claims WHERE event_id = $1 AND expires_at > $2
		)`, id, now.Unix()).Scan(&live)
	if err != nil {
		return false, err
	}
	return live, nil
}

// Claim inserts the claim or takes over an expired one. If a live claim
// exists the upsert touches no row and dedup.ErrAlreadyClaimed is returned.
func (r *ClaimRepository) Claim(ctx context.Context, id string, expiresAt, now time.Time) error {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO dedup_claims (event_id, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (event_id) DO UPDATE SET expires_at = EXCLUDED.expires_at
		WHERE dedup_claims.expires_at <= $3`,
		id, expiresAt.Unix(), now.Unix())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return dedup.ErrAlreadyClaimed
	}
	return nil
}

// GetByID returns one claim by identity, or nil if not found.
func (r *ClaimRepository) GetByID(ctx context.Context, id string) (*model.Claim, error) {
	var c model.Claim
	err := r.db.QueryRow(ctx, `
		SELECT event_id, expires_at FROM dedup_claims WHERE event_id = $1`, id).Scan(
		&c.EventID,
		&c.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// DeleteExpired removes claims that expired at or before now.
func (r *ClaimRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM dedup_claims WHERE expires_at <= $1`, now.Unix())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Close is a no-op; the pool is owned by the caller.
func (r *ClaimRepository) Close() error { return nil }

var (
	_ dedup.Client  = (*ClaimRepository)(nil)
	_ dedup.Expirer = (*ClaimRepository)(nil)
)

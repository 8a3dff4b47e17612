package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/and161185/gigmarket/internal/errs"
	"github.com/and161185/gigmarket/internal/model"
	"github.com/jackc/pgx/v5"
)

// RefreshRepo implements RefreshTokenRepository using PostgreSQL.
type RefreshRepo struct{ db *DB }

// NewRefreshRepo constructs a refresh token repository.
func NewRefreshRepo(db *DB) *RefreshRepo { return &RefreshRepo{db: db} }

// Save inserts a refresh record.
func (r *RefreshRepo) Save(ctx context.Context, rec *model.RefreshRecord) error {
	const q = `
INSERT INTO refresh_tokens (id_hash, account_id, expires_at)
VALUES ($1, $2, $3)`
	_, err := r.db.Pool.Exec(ctx, q, rec.IDHash, rec.AccountID, rec.ExpiresAt)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// Get selects a refresh record by jti hash.
func (r *RefreshRepo) Get(ctx context.Context, idHash []byte) (*model.RefreshRecord, error) {
	const q = `
SELECT id_hash, account_id, expires_at, revoked, created_at
FROM refresh_tokens WHERE id_hash=$1`
	var rec model.RefreshRecord
	err := r.db.Pool.QueryRow(ctx, q, idHash).
		Scan(&rec.IDHash, &rec.AccountID, &rec.ExpiresAt, &rec.Revoked, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// Revoke flips the revoked flag on a live record.
func (r *RefreshRepo) Revoke(ctx context.Context, idHash []byte) error {
	const q = `UPDATE refresh_tokens SET revoked = true WHERE id_hash = $1 AND NOT revoked`
	tag, err := r.db.Pool.Exec(ctx, q, idHash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// DeleteExpired purges records past expiry.
func (r *RefreshRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	const q = `DELETE FROM refresh_tokens WHERE expires_at < $1`
	tag, err := r.db.Pool.Exec(ctx, q, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

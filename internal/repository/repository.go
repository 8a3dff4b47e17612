// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"
	"time"

	"github.com/and161185/gigmarket/internal/model"
	"github.com/gofrs/uuid/v5"
)

// AccountRepository provides access to marketplace accounts.
type AccountRepository interface {
	// Create inserts a new account; errs.ErrAlreadyExists when the email is taken.
	Create(ctx context.Context, a *model.Account) error
	// GetByID loads an account by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Account, error)
	// GetByEmail loads an account by its lower-cased email.
	GetByEmail(ctx context.Context, email string) (*model.Account, error)
}

// RefreshTokenRepository tracks issued refresh tokens by jti hash.
type RefreshTokenRepository interface {
	// Save stores a newly issued refresh record.
	Save(ctx context.Context, r *model.RefreshRecord) error
	// Get loads a record by jti hash.
	Get(ctx context.Context, idHash []byte) (*model.RefreshRecord, error)
	// Revoke marks a record revoked. Revoking an unknown or revoked record is errs.ErrNotFound.
	Revoke(ctx context.Context, idHash []byte) error
	// DeleteExpired removes records that expired before the given time.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

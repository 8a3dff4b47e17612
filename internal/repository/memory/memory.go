// Package memory holds process-local repository implementations for dev servers and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/and161185/gigmarket/internal/errs"
	"github.com/and161185/gigmarket/internal/model"
	"github.com/and161185/gigmarket/internal/repository"
	"github.com/gofrs/uuid/v5"
)

// Accounts implements repository.AccountRepository.
type Accounts struct {
	mu      sync.RWMutex
	byID    map[uuid.UUID]*model.Account
	byEmail map[string]uuid.UUID
}

var _ repository.AccountRepository = (*Accounts)(nil)

// NewAccounts returns an empty account store.
func NewAccounts() *Accounts {
	return &Accounts{byID: map[uuid.UUID]*model.Account{}, byEmail: map[string]uuid.UUID{}}
}

func (r *Accounts) Create(_ context.Context, a *model.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byEmail[a.Email]; ok {
		return errs.ErrAlreadyExists
	}
	if _, ok := r.byID[a.ID]; ok {
		return errs.ErrAlreadyExists
	}
	c := *a
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	r.byID[a.ID] = &c
	r.byEmail[a.Email] = a.ID
	return nil
}

func (r *Accounts) GetByID(_ context.Context, id uuid.UUID) (*model.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byID[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := *a
	return &c, nil
}

func (r *Accounts) GetByEmail(ctx context.Context, email string) (*model.Account, error) {
	r.mu.RLock()
	id, ok := r.byEmail[email]
	r.mu.RUnlock()
	if !ok {
		return nil, errs.ErrNotFound
	}
	return r.GetByID(ctx, id)
}

// RefreshTokens implements repository.RefreshTokenRepository.
type RefreshTokens struct {
	mu   sync.Mutex
	recs map[string]*model.RefreshRecord
}

var _ repository.RefreshTokenRepository = (*RefreshTokens)(nil)

// NewRefreshTokens returns an empty refresh token store.
func NewRefreshTokens() *RefreshTokens {
	return &RefreshTokens{recs: map[string]*model.RefreshRecord{}}
}

func (r *RefreshTokens) Save(_ context.Context, rec *model.RefreshRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := string(rec.IDHash)
	if _, ok := r.recs[k]; ok {
		return errs.ErrAlreadyExists
	}
	c := *rec
	r.recs[k] = &c
	return nil
}

func (r *RefreshTokens) Get(_ context.Context, idHash []byte) (*model.RefreshRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.recs[string(idHash)]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := *rec
	return &c, nil
}

func (r *RefreshTokens) Revoke(_ context.Context, idHash []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.recs[string(idHash)]
	if !ok || rec.Revoked {
		return errs.ErrNotFound
	}
	rec.Revoked = true
	return nil
}

func (r *RefreshTokens) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for k, rec := range r.recs {
		if rec.ExpiresAt.Before(before) {
			delete(r.recs, k)
			n++
		}
	}
	return n, nil
}

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/and161185/gigmarket/internal/errs"
	"github.com/and161185/gigmarket/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
)

func TestRefreshRepo_SaveGet(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewRefreshRepo(db)
	ctx := context.Background()

	rec := &model.RefreshRecord{
		IDHash:    []byte("hash"),
		AccountID: uuid.Must(uuid.NewV4()),
		ExpiresAt: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	mock.ExpectExec(`INSERT INTO refresh_tokens \(id_hash, account_id, expires_at\) VALUES \(\$1, \$2, \$3\)`).
		WithArgs(rec.IDHash, rec.AccountID, rec.ExpiresAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, r.Save(ctx, rec))

	mock.ExpectQuery(`SELECT id_hash, account_id, expires_at, revoked, created_at FROM refresh_tokens WHERE id_hash=\$1`).
		WithArgs(rec.IDHash).
		WillReturnRows(pgxmock.NewRows([]string{"id_hash", "account_id", "expires_at", "revoked", "created_at"}).
			AddRow(rec.IDHash, rec.AccountID, rec.ExpiresAt, false, time.Now()))
	got, err := r.Get(ctx, rec.IDHash)
	require.NoError(t, err)
	require.Equal(t, rec.AccountID, got.AccountID)
	require.False(t, got.Revoked)

	mock.ExpectQuery(`FROM refresh_tokens WHERE id_hash=\$1`).
		WithArgs([]byte("missing")).
		WillReturnError(pgx.ErrNoRows)
	_, err = r.Get(ctx, []byte("missing"))
	require.ErrorIs(t, err, errs.ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshRepo_Revoke(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewRefreshRepo(db)
	ctx := context.Background()

	mock.ExpectExec(`UPDATE refresh_tokens SET revoked = true WHERE id_hash = \$1 AND NOT revoked`).
		WithArgs([]byte("h")).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, r.Revoke(ctx, []byte("h")))

	mock.ExpectExec(`UPDATE refresh_tokens SET revoked = true`).
		WithArgs([]byte("h")).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	require.ErrorIs(t, r.Revoke(ctx, []byte("h")), errs.ErrNotFound)
}

func TestRefreshRepo_DeleteExpired(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewRefreshRepo(db)
	before := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(`DELETE FROM refresh_tokens WHERE expires_at < \$1`).
		WithArgs(before).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))
	n, err := r.DeleteExpired(context.Background(), before)
	require.NoError(t, err)
	require.EqualValues(t, 3, n)
}

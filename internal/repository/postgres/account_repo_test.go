package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/and161185/gigmarket/internal/errs"
	"github.com/and161185/gigmarket/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
)

func newDB(t *testing.T) (*DB, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return &DB{Pool: mock}, mock
}

var accountCols = []string{"id", "email", "role", "name", "pwd_hash", "salt_auth", "created_at"}

func TestAccountRepo_Create_OK_and_UniqueViolation(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewAccountRepo(db)
	ctx := context.Background()
	a := &model.Account{
		ID:       uuid.Must(uuid.NewV4()),
		Email:    "ann@example.com",
		Role:     model.RoleFreelancer,
		Name:     "Ann",
		PwdHash:  []byte("h"),
		SaltAuth: []byte("s"),
	}

	mock.ExpectExec(`INSERT INTO accounts \(id, email, role, name, pwd_hash, salt_auth\) VALUES \(\$1, \$2, \$3, \$4, \$5, \$6\)`).
		WithArgs(a.ID, a.Email, "freelancer", a.Name, a.PwdHash, a.SaltAuth).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, r.Create(ctx, a))

	mock.ExpectExec(`INSERT INTO accounts`).
		WithArgs(a.ID, a.Email, "freelancer", a.Name, a.PwdHash, a.SaltAuth).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	require.ErrorIs(t, r.Create(ctx, a), errs.ErrAlreadyExists)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepo_GetByID(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewAccountRepo(db)
	ctx := context.Background()
	id := uuid.Must(uuid.NewV4())
	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT id, email, role, name, pwd_hash, salt_auth, created_at FROM accounts WHERE id=\$1`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(accountCols).
			AddRow(id, "ann@example.com", "client", "Ann", []byte("h"), []byte("s"), created))
	a, err := r.GetByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, id, a.ID)
	require.Equal(t, model.RoleClient, a.Role)
	require.Equal(t, created, a.CreatedAt)

	mock.ExpectQuery(`FROM accounts WHERE id=\$1`).
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)
	_, err = r.GetByID(ctx, id)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestAccountRepo_GetByEmail(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewAccountRepo(db)
	ctx := context.Background()
	id := uuid.Must(uuid.NewV4())

	mock.ExpectQuery(`FROM accounts WHERE email=\$1`).
		WithArgs("bob@example.com").
		WillReturnRows(pgxmock.NewRows(accountCols).
			AddRow(id, "bob@example.com", "freelancer", "", []byte("h"), []byte("s"), time.Now()))
	a, err := r.GetByEmail(ctx, "bob@example.com")
	require.NoError(t, err)
	require.Equal(t, "bob@example.com", a.Email)
	require.Equal(t, "bob@example.com", a.Profile().Email)

	mock.ExpectQuery(`FROM accounts WHERE email=\$1`).
		WithArgs("nobody@example.com").
		WillReturnError(pgx.ErrNoRows)
	_, err = r.GetByEmail(ctx, "nobody@example.com")
	require.ErrorIs(t, err, errs.ErrNotFound)

	boom := errors.New("conn reset")
	mock.ExpectQuery(`FROM accounts WHERE email=\$1`).
		WithArgs("x@example.com").
		WillReturnError(boom)
	_, err = r.GetByEmail(ctx, "x@example.com")
	require.ErrorIs(t, err, boom)
	require.NotErrorIs(t, err, errs.ErrNotFound)
}

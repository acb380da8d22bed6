package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/marmos91/homefs/pkg/store/account"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var accountColumns = []string{"id", "password_hash", "limit_bytes", "usage_bytes"}

func newStoreWithMock(t *testing.T) (*PostgresAccountStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresAccountStoreFromDB(db), mock
}

func q(query string) string {
	return regexp.QuoteMeta(query)
}

func TestGetAccount_Found(t *testing.T) {
	store, mock := newStoreWithMock(t)

	mock.ExpectQuery(q(selectAccount)).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows(accountColumns).AddRow("alice", "hash", int64(10<<20), int64(8<<20)))

	got, err := store.GetAccount(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, &account.Account{ID: "alice", PasswordHash: "hash", LimitBytes: 10 << 20, UsageBytes: 8 << 20}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAccount_NotFound(t *testing.T) {
	store, mock := newStoreWithMock(t)

	mock.ExpectQuery(q(selectAccount)).WithArgs("ghost").WillReturnError(sql.ErrNoRows)

	_, err := store.GetAccount(context.Background(), "ghost")
	assert.ErrorIs(t, err, account.ErrAccountNotFound)
}

func TestGetAccount_NegativeIsCorrupt(t *testing.T) {
	store, mock := newStoreWithMock(t)

	mock.ExpectQuery(q(selectAccount)).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows(accountColumns).AddRow("alice", "hash", int64(-1), int64(0)))

	_, err := store.GetAccount(context.Background(), "alice")
	assert.ErrorIs(t, err, account.ErrCorrupt)
}

func TestCreateAccount(t *testing.T) {
	tests := []struct {
		name     string
		affected int64
		wantErr  error
	}{
		{name: "inserted", affected: 1},
		{name: "conflict", affected: 0, wantErr: account.ErrAccountExists},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newStoreWithMock(t)

			mock.ExpectExec(q(insertAccount)).
				WithArgs("alice", "hash", int64(100), int64(0)).
				WillReturnResult(sqlmock.NewResult(0, tt.affected))

			err := store.CreateAccount(context.Background(), &account.Account{ID: "alice", PasswordHash: "hash", LimitBytes: 100})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestCreateAccount_DBError(t *testing.T) {
	store, mock := newStoreWithMock(t)

	mock.ExpectExec(q(insertAccount)).WillReturnError(errors.New("db down"))

	err := store.CreateAccount(context.Background(), &account.Account{ID: "alice"})
	require.Error(t, err)
	assert.Regexp(t, `db error: .*db down`, err.Error())
}

func TestUpdateAccount_Commits(t *testing.T) {
	store, mock := newStoreWithMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(q(selectAccountForUpdate)).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows(accountColumns).AddRow("alice", "hash", int64(100), int64(10)))
	mock.ExpectExec(q(updateAccount)).
		WithArgs("alice", "hash", int64(100), int64(30)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	got, err := store.UpdateAccount(context.Background(), "alice", func(acc *account.Account) error {
		acc.UsageBytes += 20
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(30), got.UsageBytes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateAccount_FuncErrorRollsBack(t *testing.T) {
	store, mock := newStoreWithMock(t)
	rejected := errors.New("over limit")

	mock.ExpectBegin()
	mock.ExpectQuery(q(selectAccountForUpdate)).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows(accountColumns).AddRow("alice", "hash", int64(100), int64(90)))
	mock.ExpectRollback()

	_, err := store.UpdateAccount(context.Background(), "alice", func(acc *account.Account) error {
		return rejected
	})
	assert.ErrorIs(t, err, rejected)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateAccount_MissingRollsBack(t *testing.T) {
	store, mock := newStoreWithMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(q(selectAccountForUpdate)).WithArgs("ghost").WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := store.UpdateAccount(context.Background(), "ghost", func(acc *account.Account) error { return nil })
	assert.ErrorIs(t, err, account.ErrAccountNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteAccount(t *testing.T) {
	store, mock := newStoreWithMock(t)

	mock.ExpectExec(q(deleteAccount)).WithArgs("alice").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q(deleteAccount)).WithArgs("alice").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.DeleteAccount(context.Background(), "alice"))
	assert.ErrorIs(t, store.DeleteAccount(context.Background(), "alice"), account.ErrAccountNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListAccounts(t *testing.T) {
	store, mock := newStoreWithMock(t)

	mock.ExpectQuery(q(listAccounts)).
		WillReturnRows(sqlmock.NewRows(accountColumns).
			AddRow("admin", "h1", int64(1<<40), int64(0)).
			AddRow("alice", "h2", int64(100), int64(5)))

	list, err := store.ListAccounts(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "admin", list[0].ID)
	assert.Equal(t, uint64(5), list[1].UsageBytes)
}

func TestRunMigrationsUsesSeam(t *testing.T) {
	store, _ := newStoreWithMock(t)

	orig := gooseUpContext
	t.Cleanup(func() { gooseUpContext = orig })

	var gotDir string
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		gotDir = dir
		return nil
	}

	require.NoError(t, store.RunMigrations(context.Background()))
	assert.Equal(t, ".", gotDir)
}

func TestNewPostgresAccountStore_RequiresDSN(t *testing.T) {
	_, err := NewPostgresAccountStore(context.Background(), PostgresAccountStoreConfig{})
	assert.Error(t, err)
}

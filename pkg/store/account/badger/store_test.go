package badger

import (
	"context"
	"testing"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/marmos91/homefs/pkg/store/account"
	accounttesting "github.com/marmos91/homefs/pkg/store/account/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBadgerAccountStore(t *testing.T) {
	suite := &accounttesting.StoreTestSuite{
		NewStore: func(t *testing.T) account.Store {
			store, err := NewBadgerAccountStore(context.Background(), BadgerAccountStoreConfig{
				DBPath: t.TempDir(),
			})
			require.NoError(t, err)
			return store
		},
	}
	suite.Run(t)
}

func TestPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := NewBadgerAccountStore(ctx, BadgerAccountStoreConfig{DBPath: dir})
	require.NoError(t, err)
	require.NoError(t, store.CreateAccount(ctx, &account.Account{ID: "alice", LimitBytes: 42}))
	require.NoError(t, store.Close())

	reopened, err := NewBadgerAccountStore(ctx, BadgerAccountStoreConfig{DBPath: dir})
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	got, err := reopened.GetAccount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), got.LimitBytes)
}

func TestCorruptValue(t *testing.T) {
	ctx := context.Background()
	store, err := NewBadgerAccountStore(ctx, BadgerAccountStoreConfig{InMemory: true})
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	require.NoError(t, store.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(keyAccount("broken"), []byte("{"))
	}))

	_, err = store.GetAccount(ctx, "broken")
	assert.ErrorIs(t, err, account.ErrCorrupt)
}

func TestRequiresPath(t *testing.T) {
	_, err := NewBadgerAccountStore(context.Background(), BadgerAccountStoreConfig{})
	assert.Error(t, err)
}

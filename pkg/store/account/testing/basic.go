package testing

import (
	"context"
	"testing"

	"github.com/marmos91/homefs/pkg/store/account"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunBasicTests covers create, get, list and delete.
func (suite *StoreTestSuite) RunBasicTests(t *testing.T) {
	t.Run("CreateAndGet", suite.testCreateAndGet)
	t.Run("CreateDuplicate", suite.testCreateDuplicate)
	t.Run("GetMissing", suite.testGetMissing)
	t.Run("ListSorted", suite.testListSorted)
	t.Run("Delete", suite.testDelete)
	t.Run("CancelledContext", suite.testCancelledContext)
}

func (suite *StoreTestSuite) testCreateAndGet(t *testing.T) {
	store := suite.newStore(t)
	ctx := testContext()

	require.NoError(t, store.CreateAccount(ctx, newAccount("alice", 10<<20)))

	got, err := store.GetAccount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.ID)
	assert.Equal(t, uint64(10<<20), got.LimitBytes)
	assert.Equal(t, uint64(0), got.UsageBytes)
	assert.Equal(t, "argon2id$c2FsdHNhbHQ$alice", got.PasswordHash)

	// Returned accounts are copies
	got.UsageBytes = 99
	again, err := store.GetAccount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), again.UsageBytes)
}

func (suite *StoreTestSuite) testCreateDuplicate(t *testing.T) {
	store := suite.newStore(t)
	ctx := testContext()

	require.NoError(t, store.CreateAccount(ctx, newAccount("alice", 1)))
	err := store.CreateAccount(ctx, newAccount("alice", 2))
	assert.ErrorIs(t, err, account.ErrAccountExists)

	got, err := store.GetAccount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), got.LimitBytes)
}

func (suite *StoreTestSuite) testGetMissing(t *testing.T) {
	store := suite.newStore(t)

	_, err := store.GetAccount(testContext(), "ghost")
	assert.ErrorIs(t, err, account.ErrAccountNotFound)
}

func (suite *StoreTestSuite) testListSorted(t *testing.T) {
	store := suite.newStore(t)
	ctx := testContext()

	for _, id := range []string{"carol", "alice", "bob"} {
		require.NoError(t, store.CreateAccount(ctx, newAccount(id, 1)))
	}

	list, err := store.ListAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "alice", list[0].ID)
	assert.Equal(t, "bob", list[1].ID)
	assert.Equal(t, "carol", list[2].ID)
}

func (suite *StoreTestSuite) testDelete(t *testing.T) {
	store := suite.newStore(t)
	ctx := testContext()

	require.NoError(t, store.CreateAccount(ctx, newAccount("alice", 1)))
	require.NoError(t, store.DeleteAccount(ctx, "alice"))

	_, err := store.GetAccount(ctx, "alice")
	assert.ErrorIs(t, err, account.ErrAccountNotFound)

	err = store.DeleteAccount(ctx, "alice")
	assert.ErrorIs(t, err, account.ErrAccountNotFound)

	list, err := store.ListAccounts(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func (suite *StoreTestSuite) testCancelledContext(t *testing.T) {
	store := suite.newStore(t)

	ctx, cancel := context.WithCancel(testContext())
	cancel()

	_, err := store.GetAccount(ctx, "alice")
	assert.ErrorIs(t, err, context.Canceled)

	err = store.CreateAccount(ctx, newAccount("alice", 1))
	assert.ErrorIs(t, err, context.Canceled)
}

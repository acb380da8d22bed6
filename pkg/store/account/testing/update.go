package testing

import (
	"errors"
	"sync"
	"testing"

	"github.com/marmos91/homefs/pkg/store/account"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errRejected = errors.New("rejected by update func")

// RunUpdateTests covers UpdateAccount semantics.
func (suite *StoreTestSuite) RunUpdateTests(t *testing.T) {
	t.Run("UpdatePersists", suite.testUpdatePersists)
	t.Run("UpdateFuncErrorLeavesRecord", suite.testUpdateFuncError)
	t.Run("UpdateMissing", suite.testUpdateMissing)
	t.Run("UpdateCannotChangeID", suite.testUpdateCannotChangeID)
}

func (suite *StoreTestSuite) testUpdatePersists(t *testing.T) {
	store := suite.newStore(t)
	ctx := testContext()

	require.NoError(t, store.CreateAccount(ctx, newAccount("alice", 100)))

	updated, err := store.UpdateAccount(ctx, "alice", func(acc *account.Account) error {
		acc.UsageBytes += 40
		acc.LimitBytes = 200
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(40), updated.UsageBytes)

	got, err := store.GetAccount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(40), got.UsageBytes)
	assert.Equal(t, uint64(200), got.LimitBytes)
}

func (suite *StoreTestSuite) testUpdateFuncError(t *testing.T) {
	store := suite.newStore(t)
	ctx := testContext()

	require.NoError(t, store.CreateAccount(ctx, newAccount("alice", 100)))

	_, err := store.UpdateAccount(ctx, "alice", func(acc *account.Account) error {
		acc.UsageBytes = 99
		return errRejected
	})
	assert.ErrorIs(t, err, errRejected)

	got, err := store.GetAccount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), got.UsageBytes)
}

func (suite *StoreTestSuite) testUpdateMissing(t *testing.T) {
	store := suite.newStore(t)

	called := false
	_, err := store.UpdateAccount(testContext(), "ghost", func(acc *account.Account) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, account.ErrAccountNotFound)
	assert.False(t, called)
}

func (suite *StoreTestSuite) testUpdateCannotChangeID(t *testing.T) {
	store := suite.newStore(t)
	ctx := testContext()

	require.NoError(t, store.CreateAccount(ctx, newAccount("alice", 100)))

	_, err := store.UpdateAccount(ctx, "alice", func(acc *account.Account) error {
		acc.ID = "mallory"
		return nil
	})
	require.NoError(t, err)

	_, err = store.GetAccount(ctx, "mallory")
	assert.ErrorIs(t, err, account.ErrAccountNotFound)
	_, err = store.GetAccount(ctx, "alice")
	assert.NoError(t, err)
}

// RunConcurrencyTests verifies UpdateAccount is atomic under contention.
func (suite *StoreTestSuite) RunConcurrencyTests(t *testing.T) {
	store := suite.newStore(t)
	ctx := testContext()

	const (
		workers = 8
		perWork = 25
		limit   = 100
	)
	require.NoError(t, store.CreateAccount(ctx, newAccount("alice", limit)))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWork; j++ {
				_, err := store.UpdateAccount(ctx, "alice", func(acc *account.Account) error {
					if acc.UsageBytes+1 > acc.LimitBytes {
						return errRejected
					}
					acc.UsageBytes++
					return nil
				})
				if err == nil {
					mu.Lock()
					accepted++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	got, err := store.GetAccount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(limit), got.UsageBytes)
	assert.Equal(t, limit, accepted)
}

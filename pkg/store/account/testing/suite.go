package testing

import (
	"context"
	"testing"

	"github.com/marmos91/homefs/pkg/store/account"
)

// StoreTestSuite is a reusable test suite for account.Store implementations.
// It tests the interface contract, not implementation details, so every backend
// (memory, jsonfile, badger, postgres) runs the same checks.
//
// Usage:
//
//	func TestMyAccountStore(t *testing.T) {
//	    suite := &accounttesting.StoreTestSuite{
//	        NewStore: func(t *testing.T) account.Store {
//	            return mystore.New(t.TempDir())
//	        },
//	    }
//	    suite.Run(t)
//	}
type StoreTestSuite struct {
	// NewStore creates a fresh, empty store for each test.
	NewStore func(t *testing.T) account.Store
}

// Run executes all tests in the suite.
func (suite *StoreTestSuite) Run(t *testing.T) {
	t.Run("BasicOperations", suite.RunBasicTests)
	t.Run("UpdateOperations", suite.RunUpdateTests)
	t.Run("Concurrency", suite.RunConcurrencyTests)
}

func (suite *StoreTestSuite) newStore(t *testing.T) account.Store {
	t.Helper()
	store := suite.NewStore(t)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// testContext returns a standard test context.
func testContext() context.Context {
	return context.Background()
}

func newAccount(id string, limit uint64) *account.Account {
	return &account.Account{
		ID:           id,
		PasswordHash: "argon2id$c2FsdHNhbHQ$" + id,
		LimitBytes:   limit,
	}
}

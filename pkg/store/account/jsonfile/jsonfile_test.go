package jsonfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/marmos91/homefs/pkg/store/account"
	accounttesting "github.com/marmos91/homefs/pkg/store/account/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T, path string) *JSONFileAccountStore {
	t.Helper()
	store, err := NewJSONFileAccountStore(context.Background(), JSONFileAccountStoreConfig{Path: path})
	require.NoError(t, err)
	return store
}

func TestJSONFileAccountStore(t *testing.T) {
	suite := &accounttesting.StoreTestSuite{
		NewStore: func(t *testing.T) account.Store {
			return newStore(t, filepath.Join(t.TempDir(), "users.json"))
		},
	}
	suite.Run(t)
}

func TestPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "users.json")

	store := newStore(t, path)
	require.NoError(t, store.CreateAccount(ctx, &account.Account{ID: "alice", PasswordHash: "h", LimitBytes: 10 << 20}))
	_, err := store.UpdateAccount(ctx, "alice", func(acc *account.Account) error {
		acc.UsageBytes = 8 << 20
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened := newStore(t, path)
	got, err := reopened.GetAccount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(8<<20), got.UsageBytes)
	assert.Equal(t, uint64(10<<20), got.LimitBytes)
	assert.Equal(t, "h", got.PasswordHash)
}

func TestLoadsLegacyDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	legacy := `{
    "quotas": {
        "admin": {"limit": 104857600000, "usage": 0},
        "alice": {"limit": 10485760.0, "usage": 8388608.0}
    },
    "passwords": {"admin": "admin", "alice": "pw1"}
}`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0644))

	store := newStore(t, path)
	list, err := store.ListAccounts(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)

	assert.Equal(t, "alice", list[1].ID)
	assert.Equal(t, uint64(10485760), list[1].LimitBytes)
	assert.Equal(t, uint64(8388608), list[1].UsageBytes)
	assert.Equal(t, "pw1", list[1].PasswordHash)
}

func TestCorruptDocumentIsReported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	_, err := NewJSONFileAccountStore(context.Background(), JSONFileAccountStoreConfig{Path: path})
	assert.ErrorIs(t, err, account.ErrCorrupt)

	// The corrupt file is left for the operator
	data, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	assert.Equal(t, "{not json", string(data))
}

func TestOutOfRangeQuotaIsCorrupt(t *testing.T) {
	tests := []struct {
		name  string
		quota string
	}{
		{"NegativeLimit", `{"limit": -1, "usage": 0}`},
		{"NegativeUsage", `{"limit": 10, "usage": -5}`},
		{"HugeLimit", `{"limit": 1e300, "usage": 0}`},
		{"HugeUsage", `{"limit": 10, "usage": 1e300}`},
		{"LimitAtUint64Bound", `{"limit": 18446744073709551616, "usage": 0}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "users.json")
			doc := `{"quotas": {"alice": ` + tt.quota + `}, "passwords": {"alice": "pw"}}`
			require.NoError(t, os.WriteFile(path, []byte(doc), 0644))

			_, err := NewJSONFileAccountStore(context.Background(), JSONFileAccountStoreConfig{Path: path})
			assert.ErrorIs(t, err, account.ErrCorrupt)
		})
	}
}

func TestFailedSaveKeepsMemoryState(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := newStore(t, filepath.Join(dir, "users.json"))
	require.NoError(t, store.CreateAccount(ctx, &account.Account{ID: "alice", LimitBytes: 10}))

	// Point the store at a directory that no longer exists so the rename fails
	store.path = filepath.Join(dir, "gone", "users.json")

	_, err := store.UpdateAccount(ctx, "alice", func(acc *account.Account) error {
		acc.UsageBytes = 5
		return nil
	})
	require.Error(t, err)

	got, err := store.GetAccount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), got.UsageBytes)
}

func TestMissingPath(t *testing.T) {
	_, err := NewJSONFileAccountStore(context.Background(), JSONFileAccountStoreConfig{})
	assert.Error(t, err)
}

package fs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/marmos91/homefs/pkg/store/content"
	contenttesting "github.com/marmos91/homefs/pkg/store/content/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *FSContentStore {
	t.Helper()
	store, err := NewFSContentStore(context.Background(), FSContentStoreConfig{Path: t.TempDir()})
	require.NoError(t, err)
	return store
}

func TestFSContentStore(t *testing.T) {
	suite := &contenttesting.StoreTestSuite{
		NewStore: func(t *testing.T) content.Store {
			return newStore(t)
		},
	}
	suite.Run(t)
}

func TestPhysicalLayout(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	require.NoError(t, store.EnsureHome(ctx, "alice"))
	require.NoError(t, store.Create(ctx, content.ID{Owner: "alice", Name: "a.txt"}, []byte("x")))

	data, err := os.ReadFile(filepath.Join(store.basePath, "alice_home", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))
	assert.Equal(t, filepath.Join(store.basePath, "alice_home"), store.HomePath("alice"))
}

func TestListSkipsHiddenAndDirectories(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	require.NoError(t, store.EnsureHome(ctx, "alice"))
	home := store.HomePath("alice")
	require.NoError(t, os.WriteFile(filepath.Join(home, ".DS_Store"), []byte("x"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(home, "nested"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(home, "visible.txt"), []byte("x"), 0644))

	names, err := store.ListHome(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"visible.txt"}, names)
}

func TestRequiresPath(t *testing.T) {
	_, err := NewFSContentStore(context.Background(), FSContentStoreConfig{})
	assert.Error(t, err)
}

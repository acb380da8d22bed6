package testing

import (
	"testing"

	"github.com/marmos91/homefs/pkg/store/content"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunHomeTests covers home container lifecycle.
func (suite *StoreTestSuite) RunHomeTests(t *testing.T) {
	t.Run("EnsureHomeIdempotent", suite.testEnsureHomeIdempotent)
	t.Run("ListMissingHome", suite.testListMissingHome)
	t.Run("ListSorted", suite.testListSorted)
	t.Run("RemoveHome", suite.testRemoveHome)
	t.Run("HomesAreIsolated", suite.testHomesAreIsolated)
	t.Run("InvalidOwner", suite.testInvalidOwner)
}

func (suite *StoreTestSuite) testEnsureHomeIdempotent(t *testing.T) {
	store := suite.newStore(t)
	ctx := testContext()

	exists, err := store.HomeExists(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, store.EnsureHome(ctx, "alice"))
	require.NoError(t, store.EnsureHome(ctx, "alice"))

	exists, err = store.HomeExists(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, exists)

	names, err := store.ListHome(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func (suite *StoreTestSuite) testListMissingHome(t *testing.T) {
	store := suite.newStore(t)

	_, err := store.ListHome(testContext(), "ghost")
	assert.ErrorIs(t, err, content.ErrHomeNotFound)
}

func (suite *StoreTestSuite) testListSorted(t *testing.T) {
	store := suite.newStore(t)
	ctx := testContext()

	require.NoError(t, store.EnsureHome(ctx, "alice"))
	for _, name := range []string{"c.txt", "a.txt", "b.txt"} {
		require.NoError(t, store.Create(ctx, content.ID{Owner: "alice", Name: name}, []byte(name)))
	}

	names, err := store.ListHome(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "b.txt", "c.txt"}, names)
}

func (suite *StoreTestSuite) testRemoveHome(t *testing.T) {
	store := suite.newStore(t)
	ctx := testContext()
	id := content.ID{Owner: "alice", Name: "a.txt"}

	require.NoError(t, store.EnsureHome(ctx, "alice"))
	require.NoError(t, store.Create(ctx, id, []byte("data")))

	require.NoError(t, store.RemoveHome(ctx, "alice"))

	exists, err := store.HomeExists(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, exists)

	exists, err = store.Exists(ctx, id)
	require.NoError(t, err)
	assert.False(t, exists)

	// Removing again is not an error
	assert.NoError(t, store.RemoveHome(ctx, "alice"))
}

func (suite *StoreTestSuite) testHomesAreIsolated(t *testing.T) {
	store := suite.newStore(t)
	ctx := testContext()

	require.NoError(t, store.EnsureHome(ctx, "alice"))
	require.NoError(t, store.EnsureHome(ctx, "alicia"))
	require.NoError(t, store.Create(ctx, content.ID{Owner: "alice", Name: "a.txt"}, []byte("a")))
	require.NoError(t, store.Create(ctx, content.ID{Owner: "alicia", Name: "b.txt"}, []byte("b")))

	names, err := store.ListHome(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt"}, names)

	require.NoError(t, store.RemoveHome(ctx, "alice"))

	names, err = store.ListHome(ctx, "alicia")
	require.NoError(t, err)
	assert.Equal(t, []string{"b.txt"}, names)
}

func (suite *StoreTestSuite) testInvalidOwner(t *testing.T) {
	store := suite.newStore(t)

	err := store.EnsureHome(testContext(), "../escape")
	assert.ErrorIs(t, err, content.ErrInvalidID)
}

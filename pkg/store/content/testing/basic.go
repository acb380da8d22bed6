package testing

import (
	"context"
	"testing"

	"github.com/marmos91/homefs/pkg/store/content"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunBasicTests covers create, read, exists and delete.
func (suite *StoreTestSuite) RunBasicTests(t *testing.T) {
	t.Run("CreateAndRead", suite.testCreateAndRead)
	t.Run("CreateWithoutHome", suite.testCreateWithoutHome)
	t.Run("CreateReplaces", suite.testCreateReplaces)
	t.Run("ReadMissing", suite.testReadMissing)
	t.Run("DeleteIdempotent", suite.testDeleteIdempotent)
	t.Run("InvalidName", suite.testInvalidName)
	t.Run("CancelledContext", suite.testCancelledContext)
}

func (suite *StoreTestSuite) testCreateAndRead(t *testing.T) {
	store := suite.newStore(t)
	ctx := testContext()
	id := content.ID{Owner: "alice", Name: "a.txt"}

	require.NoError(t, store.EnsureHome(ctx, "alice"))
	require.NoError(t, store.Create(ctx, id, []byte("hello")))

	exists, err := store.Exists(ctx, id)
	require.NoError(t, err)
	assert.True(t, exists)

	data, err := store.Read(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func (suite *StoreTestSuite) testCreateWithoutHome(t *testing.T) {
	store := suite.newStore(t)

	err := store.Create(testContext(), content.ID{Owner: "alice", Name: "a.txt"}, []byte("x"))
	assert.ErrorIs(t, err, content.ErrHomeNotFound)
}

func (suite *StoreTestSuite) testCreateReplaces(t *testing.T) {
	store := suite.newStore(t)
	ctx := testContext()
	id := content.ID{Owner: "alice", Name: "a.txt"}

	require.NoError(t, store.EnsureHome(ctx, "alice"))
	require.NoError(t, store.Create(ctx, id, []byte("first")))
	require.NoError(t, store.Create(ctx, id, []byte("2nd")))

	data, err := store.Read(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "2nd", string(data))
}

func (suite *StoreTestSuite) testReadMissing(t *testing.T) {
	store := suite.newStore(t)
	ctx := testContext()

	require.NoError(t, store.EnsureHome(ctx, "alice"))

	_, err := store.Read(ctx, content.ID{Owner: "alice", Name: "nope.txt"})
	assert.ErrorIs(t, err, content.ErrContentNotFound)

	exists, err := store.Exists(ctx, content.ID{Owner: "alice", Name: "nope.txt"})
	require.NoError(t, err)
	assert.False(t, exists)
}

func (suite *StoreTestSuite) testDeleteIdempotent(t *testing.T) {
	store := suite.newStore(t)
	ctx := testContext()
	id := content.ID{Owner: "alice", Name: "a.txt"}

	require.NoError(t, store.EnsureHome(ctx, "alice"))
	require.NoError(t, store.Create(ctx, id, []byte("x")))

	require.NoError(t, store.Delete(ctx, id))
	require.NoError(t, store.Delete(ctx, id))

	_, err := store.Read(ctx, id)
	assert.ErrorIs(t, err, content.ErrContentNotFound)

	// The home survives the deletion of its last file
	exists, err := store.HomeExists(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, exists)
}

func (suite *StoreTestSuite) testInvalidName(t *testing.T) {
	store := suite.newStore(t)
	ctx := testContext()

	require.NoError(t, store.EnsureHome(ctx, "alice"))

	for _, name := range []string{"", "..", "sub/dir.txt", ".hidden"} {
		err := store.Create(ctx, content.ID{Owner: "alice", Name: name}, []byte("x"))
		assert.ErrorIs(t, err, content.ErrInvalidID, "name %q", name)
	}
}

func (suite *StoreTestSuite) testCancelledContext(t *testing.T) {
	store := suite.newStore(t)

	ctx, cancel := context.WithCancel(testContext())
	cancel()

	err := store.EnsureHome(ctx, "alice")
	assert.ErrorIs(t, err, context.Canceled)

	_, err = store.Read(ctx, content.ID{Owner: "alice", Name: "a.txt"})
	assert.ErrorIs(t, err, context.Canceled)
}

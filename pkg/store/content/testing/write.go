package testing

import (
	"testing"

	"github.com/marmos91/homefs/pkg/store/content"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunWriteTests covers append, overwrite and truncate.
func (suite *StoreTestSuite) RunWriteTests(t *testing.T) {
	t.Run("Append", suite.testAppend)
	t.Run("Overwrite", suite.testOverwrite)
	t.Run("Truncate", suite.testTruncate)
	t.Run("MutateMissing", suite.testMutateMissing)
	t.Run("BinaryContent", suite.testBinaryContent)
}

func (suite *StoreTestSuite) createFile(t *testing.T, store content.Store, id content.ID, data string) {
	t.Helper()
	ctx := testContext()
	require.NoError(t, store.EnsureHome(ctx, id.Owner))
	require.NoError(t, store.Create(ctx, id, []byte(data)))
}

func (suite *StoreTestSuite) readString(t *testing.T, store content.Store, id content.ID) string {
	t.Helper()
	data, err := store.Read(testContext(), id)
	require.NoError(t, err)
	return string(data)
}

func (suite *StoreTestSuite) testAppend(t *testing.T) {
	store := suite.newStore(t)
	id := content.ID{Owner: "alice", Name: "a.txt"}
	suite.createFile(t, store, id, "line1")

	require.NoError(t, store.Append(testContext(), id, []byte("\nline2")))
	require.NoError(t, store.Append(testContext(), id, []byte("\nline3")))

	assert.Equal(t, "line1\nline2\nline3", suite.readString(t, store, id))
}

func (suite *StoreTestSuite) testOverwrite(t *testing.T) {
	store := suite.newStore(t)
	id := content.ID{Owner: "alice", Name: "a.txt"}
	suite.createFile(t, store, id, "a much longer original body")

	require.NoError(t, store.Overwrite(testContext(), id, []byte("short")))

	assert.Equal(t, "short", suite.readString(t, store, id))
}

func (suite *StoreTestSuite) testTruncate(t *testing.T) {
	store := suite.newStore(t)
	id := content.ID{Owner: "alice", Name: "a.txt"}
	suite.createFile(t, store, id, "content")

	require.NoError(t, store.Truncate(testContext(), id))

	assert.Equal(t, "", suite.readString(t, store, id))

	exists, err := store.Exists(testContext(), id)
	require.NoError(t, err)
	assert.True(t, exists)
}

func (suite *StoreTestSuite) testMutateMissing(t *testing.T) {
	store := suite.newStore(t)
	ctx := testContext()
	id := content.ID{Owner: "alice", Name: "missing.txt"}
	require.NoError(t, store.EnsureHome(ctx, "alice"))

	assert.ErrorIs(t, store.Append(ctx, id, []byte("x")), content.ErrContentNotFound)
	assert.ErrorIs(t, store.Overwrite(ctx, id, []byte("x")), content.ErrContentNotFound)
	assert.ErrorIs(t, store.Truncate(ctx, id), content.ErrContentNotFound)

	// None of the failed mutations may create the object
	exists, err := store.Exists(ctx, id)
	require.NoError(t, err)
	assert.False(t, exists)
}

func (suite *StoreTestSuite) testBinaryContent(t *testing.T) {
	store := suite.newStore(t)
	id := content.ID{Owner: "alice", Name: "blob.bin"}
	data := []byte{0x00, 0xff, 0xfe, 'a', 0x80}
	suite.createFile(t, store, id, string(data))

	got, err := store.Read(testContext(), id)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

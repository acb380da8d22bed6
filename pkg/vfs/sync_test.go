package vfs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/marmos91/homefs/pkg/store/account"
	accountmemory "github.com/marmos91/homefs/pkg/store/account/memory"
	contentfs "github.com/marmos91/homefs/pkg/store/content/fs"
	contentmemory "github.com/marmos91/homefs/pkg/store/content/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRestartRepopulatesIndex(t *testing.T) {
	accounts := accountmemory.NewMemoryAccountStore()
	store := contentmemory.NewMemoryContentStore()

	f := newFixtureOn(t, accounts, store)
	alice := f.user("alice", 10)
	_, err := f.engine.Create(f.ctx, alice, "/home/alice/a.txt", 3)
	require.NoError(t, err)
	_, err = f.engine.Create(f.ctx, alice, "/home/alice/b.txt", 2)
	require.NoError(t, err)

	// A new process over the same stores starts with an empty index
	restarted := newFixtureOn(t, accounts, store)
	alice = restarted.login("alice", "alice-pw")

	list, err := restarted.engine.List(restarted.ctx, alice)
	require.NoError(t, err)
	require.Len(t, list, 2)
	for i, name := range []string{"a.txt", "b.txt"} {
		assert.Equal(t, name, list[i].Name)
		assert.Equal(t, "/home/alice/"+name, list[i].Path)
		assert.Zero(t, list[i].Size, "sizes are not recoverable from physical storage")
	}
	assert.Equal(t, 5.0, restarted.usageMB("alice"), "persisted usage survives the restart")

	text, err := restarted.engine.Read(restarted.ctx, alice, "/home/alice/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "This file is 3 MB (simulation).", text)
}

func TestSync(t *testing.T) {
	t.Run("KeepsTrackedSizes", func(t *testing.T) {
		f := newFixture(t)
		alice := f.user("alice", 10)
		_, err := f.engine.Create(f.ctx, alice, "/home/alice/a", 3)
		require.NoError(t, err)
		require.NoError(t, f.content.Create(f.ctx, contentID("alice", "dropped-in"), nil))

		res, err := f.engine.Sync(f.ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Accounts)
		assert.Equal(t, 1, res.Discovered)
		assert.Zero(t, res.Dropped)

		list, err := f.engine.List(f.ctx, alice)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "a", list[0].Name)
		assert.Equal(t, 3.0, list[0].SizeMB())
		assert.Equal(t, "dropped-in", list[1].Name)
		assert.Zero(t, list[1].Size)
	})

	t.Run("DropsMissingKeepsUsage", func(t *testing.T) {
		f := newFixture(t)
		alice := f.user("alice", 10)
		_, err := f.engine.Create(f.ctx, alice, "/home/alice/a", 3)
		require.NoError(t, err)
		require.NoError(t, f.content.Delete(f.ctx, contentID("alice", "a")))

		res, err := f.engine.Sync(f.ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Dropped)
		assert.Empty(t, f.files(alice))
		assert.Equal(t, 3.0, f.usageMB("alice"))
	})

	t.Run("DropsMissingReleasesUsage", func(t *testing.T) {
		f := newFixture(t, withReleaseMissing())
		alice := f.user("alice", 10)
		_, err := f.engine.Create(f.ctx, alice, "/home/alice/a", 3)
		require.NoError(t, err)
		require.NoError(t, f.content.Delete(f.ctx, contentID("alice", "a")))

		_, err = f.engine.Sync(f.ctx)
		require.NoError(t, err)
		assert.Zero(t, f.usageMB("alice"))
	})

	t.Run("IgnoresHiddenEntries", func(t *testing.T) {
		store, err := contentfs.NewFSContentStore(context.Background(), contentfs.FSContentStoreConfig{Path: t.TempDir()})
		require.NoError(t, err)
		f := newFixtureOn(t, accountmemory.NewMemoryAccountStore(), store)
		alice := f.user("alice", 10)
		_, err = f.engine.Create(f.ctx, alice, "/home/alice/visible", 0)
		require.NoError(t, err)

		home := store.HomePath("alice")
		require.NoError(t, os.WriteFile(filepath.Join(home, ".DS_Store"), []byte("x"), 0644))
		require.NoError(t, os.Mkdir(filepath.Join(home, "subdir"), 0755))

		res, err := f.engine.Sync(f.ctx)
		require.NoError(t, err)
		assert.Zero(t, res.Discovered)
		assert.Equal(t, []string{"visible"}, f.files(alice))
	})

	t.Run("MissingHomeIsEmpty", func(t *testing.T) {
		f := newFixture(t)
		alice := f.user("alice", 10)
		_, err := f.engine.Create(f.ctx, alice, "/home/alice/a", 1)
		require.NoError(t, err)
		require.NoError(t, f.content.RemoveHome(f.ctx, "alice"))

		res, err := f.engine.Sync(f.ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Dropped)
		assert.Empty(t, res.Pruned)

		exists, err := f.quota.Exists(f.ctx, "alice")
		require.NoError(t, err)
		assert.True(t, exists, "accounts are kept unless pruning is enabled")
	})

	t.Run("PrunesOrphans", func(t *testing.T) {
		f := newFixture(t, withPruneOrphans())
		alice := f.user("alice", 10)
		f.user("bob", 10)
		require.NoError(t, f.content.RemoveHome(f.ctx, "alice"))

		res, err := f.engine.Sync(f.ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"alice"}, res.Pruned)
		assert.Equal(t, 1, res.Accounts)

		_, err = f.engine.Status(f.ctx, alice)
		assert.Error(t, err, "pruned sessions are revoked")
	})

	t.Run("ListFailureIsReported", func(t *testing.T) {
		f := newFixture(t)
		alice := f.user("alice", 10)
		f.user("bob", 10)
		_, err := f.engine.Create(f.ctx, alice, "/home/alice/a", 1)
		require.NoError(t, err)

		f.content.failOn("ListHome", errInjected)
		_, err = f.engine.Sync(f.ctx)
		assert.ErrorIs(t, err, errInjected)
		f.content.reset()

		assert.Equal(t, []string{"a"}, f.files(alice), "a failed pass leaves the index alone")
	})

	t.Run("PurgesVanishedAccounts", func(t *testing.T) {
		f := newFixture(t)
		alice := f.user("alice", 10)
		_, err := f.engine.Create(f.ctx, alice, "/home/alice/a", 1)
		require.NoError(t, err)

		// Account removed behind the engine's back
		require.NoError(t, f.accounts.DeleteAccount(f.ctx, "alice"))
		res, err := f.engine.Sync(f.ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Dropped)
		assert.Zero(t, f.engine.FileCount())
	})

	t.Run("KeepsAccountRegisteredDuringPass", func(t *testing.T) {
		f := newFixture(t)
		f.user("alice", 10)

		// bob appears after Sync listed the accounts
		var bob string
		f.content.on("ListHome", func(owner string) {
			if owner != "alice" || bob != "" {
				return
			}
			bob = f.user("bob", 10)
			_, err := f.engine.Create(f.ctx, bob, "/home/bob/a.txt", 8)
			require.NoError(t, err)
		})

		res, err := f.engine.Sync(f.ctx)
		require.NoError(t, err)
		require.NotEmpty(t, bob)
		assert.Zero(t, res.Dropped)
		f.content.reset()

		assert.Equal(t, []string{"a.txt"}, f.files(bob))
		_, err = f.engine.Read(f.ctx, bob, "/home/bob/a.txt")
		require.NoError(t, err)
		assert.Equal(t, 8.0, f.usageMB("bob"))

		require.NoError(t, f.engine.Delete(f.ctx, bob, "/home/bob/a.txt"))
		assert.Zero(t, f.usageMB("bob"))
	})

	t.Run("PruneWaitsForRegistration", func(t *testing.T) {
		f := newFixture(t, withPruneOrphans())

		type outcome struct {
			res *SyncResult
			err error
		}
		done := make(chan outcome, 1)

		// A pass starts while bob exists but his home does not yet
		f.content.on("EnsureHome", func(owner string) {
			if owner != "bob" {
				return
			}
			go func() {
				res, err := f.engine.Sync(f.ctx)
				done <- outcome{res, err}
			}()
			time.Sleep(50 * time.Millisecond)
		})

		_, err := f.engine.Register(f.ctx, f.adminToken, "bob", "bob-pw", nil)
		require.NoError(t, err)

		got := <-done
		require.NoError(t, got.err)
		assert.Empty(t, got.res.Pruned)
		f.content.reset()

		bob := f.login("bob", "bob-pw")
		_, err = f.engine.Create(f.ctx, bob, "/home/bob/a.txt", 1)
		assert.NoError(t, err)
	})

	t.Run("ReleaseSurvivesCancellation", func(t *testing.T) {
		f := newFixture(t, withReleaseMissing())
		alice := f.user("alice", 10)
		_, err := f.engine.Create(f.ctx, alice, "/home/alice/a", 3)
		require.NoError(t, err)
		require.NoError(t, f.content.Delete(f.ctx, contentID("alice", "a")))

		// The caller gives up right after the home was listed
		ctx, cancel := context.WithCancel(f.ctx)
		defer cancel()
		f.content.on("ListHome", func(owner string) {
			if owner == "alice" {
				cancel()
			}
		})

		res, _ := f.engine.Sync(ctx)
		f.content.reset()
		assert.Equal(t, 1, res.Dropped)
		assert.Zero(t, f.usageMB("alice"))
	})
}

var _ account.Store = (*faultyAccounts)(nil)

func TestDiffDoesNotMutate(t *testing.T) {
	f := newFixture(t, withReleaseMissing())
	alice := f.user("alice", 10)
	_, err := f.engine.Create(f.ctx, alice, "/home/alice/a", 3)
	require.NoError(t, err)
	require.NoError(t, f.content.Delete(f.ctx, contentID("alice", "a")))
	require.NoError(t, f.content.Create(f.ctx, contentID("alice", "b"), nil))

	res, err := f.engine.Diff(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Accounts)
	assert.Equal(t, 1, res.Discovered)
	assert.Equal(t, 1, res.Dropped)

	assert.Equal(t, []string{"a"}, f.files(alice))
	assert.Equal(t, 3.0, f.usageMB("alice"))
}

package vfs

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/marmos91/homefs/pkg/fserr"
	"github.com/marmos91/homefs/pkg/quota"
	"github.com/marmos91/homefs/pkg/store/content"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAliceQuotaScenario(t *testing.T) {
	f := newFixture(t)
	alice := f.user("alice", 10)

	_, err := f.engine.Create(f.ctx, alice, "/home/alice/a.txt", 8)
	require.NoError(t, err)
	assert.Equal(t, 8.0, f.usageMB("alice"))

	_, err = f.engine.Create(f.ctx, alice, "/home/alice/b.txt", 5)
	assert.ErrorIs(t, err, fserr.ErrQuotaExceeded)
	assert.Equal(t, 8.0, f.usageMB("alice"))
	assert.Equal(t, []string{"a.txt"}, f.files(alice))

	require.NoError(t, f.engine.Delete(f.ctx, alice, "/home/alice/a.txt"))
	assert.Zero(t, f.usageMB("alice"))

	_, err = f.engine.Create(f.ctx, alice, "/home/alice/b.txt", 5)
	require.NoError(t, err)
	assert.Equal(t, 5.0, f.usageMB("alice"))
	assert.Equal(t, []string{"b.txt"}, f.files(alice))
}

func TestCreate(t *testing.T) {
	t.Run("WritesPlaceholder", func(t *testing.T) {
		f := newFixture(t)
		alice := f.user("alice", 10)

		fi, err := f.engine.Create(f.ctx, alice, "/home/alice/a.txt", 2.5)
		require.NoError(t, err)
		assert.Equal(t, "/home/alice/a.txt", fi.Path)
		assert.Equal(t, "alice", fi.Owner)
		assert.Equal(t, uint64(2.5*quota.MB), fi.Size)
		assert.Equal(t, 2.5, fi.SizeMB())

		text, err := f.engine.Read(f.ctx, alice, "/home/alice/a.txt")
		require.NoError(t, err)
		assert.Equal(t, "This file is 2.5 MB (simulation).", text)
	})

	t.Run("ZeroSize", func(t *testing.T) {
		f := newFixture(t)
		alice := f.user("alice", 1)

		_, err := f.engine.Create(f.ctx, alice, "/home/alice/empty", 0)
		require.NoError(t, err)
		assert.Zero(t, f.usageMB("alice"))
	})

	t.Run("ExactlyFillsQuota", func(t *testing.T) {
		f := newFixture(t)
		alice := f.user("alice", 3)

		_, err := f.engine.Create(f.ctx, alice, "/home/alice/a", 3)
		require.NoError(t, err)
		_, err = f.engine.Create(f.ctx, alice, "/home/alice/b", 0.000001)
		assert.ErrorIs(t, err, fserr.ErrQuotaExceeded)
	})

	t.Run("AlreadyExists", func(t *testing.T) {
		f := newFixture(t)
		alice := f.user("alice", 10)

		_, err := f.engine.Create(f.ctx, alice, "/home/alice/a.txt", 1)
		require.NoError(t, err)
		_, err = f.engine.Create(f.ctx, alice, "/home/alice/./a.txt", 1)
		assert.ErrorIs(t, err, fserr.ErrAlreadyExists)
		assert.Equal(t, 1.0, f.usageMB("alice"))
	})

	t.Run("InvalidSize", func(t *testing.T) {
		f := newFixture(t)
		alice := f.user("alice", 10)

		for _, size := range []float64{-1, math.NaN(), math.Inf(1)} {
			_, err := f.engine.Create(f.ctx, alice, "/home/alice/a.txt", size)
			assert.ErrorIs(t, err, fserr.ErrInvalidArgument, "size %v", size)
		}
		assert.Empty(t, f.files(alice))
	})

	t.Run("RepairsMissingHome", func(t *testing.T) {
		f := newFixture(t)
		alice := f.user("alice", 10)
		require.NoError(t, f.content.Store.RemoveHome(f.ctx, "alice"))

		_, err := f.engine.Create(f.ctx, alice, "/home/alice/a.txt", 1)
		require.NoError(t, err)

		exists, err := f.content.Exists(f.ctx, content.ID{Owner: "alice", Name: "a.txt"})
		require.NoError(t, err)
		assert.True(t, exists)
	})
}

// TestCreateAllOrNothing injects a failure at each mutation step and checks
// that usage and the index are untouched.
func TestCreateAllOrNothing(t *testing.T) {
	tests := []struct {
		name   string
		inject func(f *fixture)
		code   fserr.ErrorCode
	}{
		{
			name:   "Reserve",
			inject: func(f *fixture) { f.accounts.failUpdates(errInjected) },
		},
		{
			name:   "HomeRepair",
			inject: func(f *fixture) { f.content.failOn("EnsureHome", errInjected) },
			code:   fserr.CodePhysicalIO,
		},
		{
			name:   "PhysicalWrite",
			inject: func(f *fixture) { f.content.failOn("Create", errInjected) },
			code:   fserr.CodePhysicalIO,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			alice := f.user("alice", 10)
			_, err := f.engine.Create(f.ctx, alice, "/home/alice/keep.txt", 1)
			require.NoError(t, err)

			beforeUsage := f.usageMB("alice")
			beforeFiles := f.files(alice)

			tt.inject(f)
			_, err = f.engine.Create(f.ctx, alice, "/home/alice/new.txt", 2)
			require.Error(t, err)
			assert.ErrorIs(t, err, errInjected)
			if tt.code != 0 {
				assert.Equal(t, tt.code, fserr.CodeOf(err))
			}

			f.accounts.failUpdates(nil)
			f.content.reset()

			assert.Equal(t, beforeUsage, f.usageMB("alice"))
			assert.Equal(t, beforeFiles, f.files(alice))

			exists, err := f.content.Exists(f.ctx, content.ID{Owner: "alice", Name: "new.txt"})
			require.NoError(t, err)
			assert.False(t, exists)
		})
	}
}

func TestDelete(t *testing.T) {
	t.Run("ReleasesRecordedSize", func(t *testing.T) {
		f := newFixture(t)
		alice := f.user("alice", 10)
		_, err := f.engine.Create(f.ctx, alice, "/home/alice/a", 3)
		require.NoError(t, err)
		_, err = f.engine.Create(f.ctx, alice, "/home/alice/b", 2)
		require.NoError(t, err)

		require.NoError(t, f.engine.Append(f.ctx, alice, "/home/alice/a", "more text"))
		require.NoError(t, f.engine.Delete(f.ctx, alice, "/home/alice/a"))

		assert.Equal(t, 2.0, f.usageMB("alice"))
		assert.Equal(t, []string{"b"}, f.files(alice))
	})

	t.Run("Missing", func(t *testing.T) {
		f := newFixture(t)
		alice := f.user("alice", 10)
		_, err := f.engine.Create(f.ctx, alice, "/home/alice/a", 1)
		require.NoError(t, err)

		err = f.engine.Delete(f.ctx, alice, "/home/alice/nope")
		assert.ErrorIs(t, err, fserr.ErrNotFound)
		assert.Equal(t, 1.0, f.usageMB("alice"))
		assert.Equal(t, []string{"a"}, f.files(alice))
	})

	t.Run("PhysicallyGone", func(t *testing.T) {
		f := newFixture(t)
		alice := f.user("alice", 10)
		_, err := f.engine.Create(f.ctx, alice, "/home/alice/a", 4)
		require.NoError(t, err)
		require.NoError(t, f.content.Store.Delete(f.ctx, content.ID{Owner: "alice", Name: "a"}))

		require.NoError(t, f.engine.Delete(f.ctx, alice, "/home/alice/a"))
		assert.Zero(t, f.usageMB("alice"))
		assert.Empty(t, f.files(alice))
	})

	t.Run("PhysicalFailureChangesNothing", func(t *testing.T) {
		f := newFixture(t)
		alice := f.user("alice", 10)
		_, err := f.engine.Create(f.ctx, alice, "/home/alice/a", 4)
		require.NoError(t, err)

		f.content.failOn("Delete", errInjected)
		err = f.engine.Delete(f.ctx, alice, "/home/alice/a")
		assert.ErrorIs(t, err, fserr.ErrPhysicalIO)
		f.content.reset()

		assert.Equal(t, 4.0, f.usageMB("alice"))
		assert.Equal(t, []string{"a"}, f.files(alice))
	})
}

func TestContentOperations(t *testing.T) {
	f := newFixture(t)
	alice := f.user("alice", 10)
	const p = "/home/alice/notes.txt"
	_, err := f.engine.Create(f.ctx, alice, p, 1)
	require.NoError(t, err)

	require.NoError(t, f.engine.Append(f.ctx, alice, p, "first"))
	text, err := f.engine.Read(f.ctx, alice, p)
	require.NoError(t, err)
	assert.Equal(t, "This file is 1 MB (simulation).\nfirst", text)

	require.NoError(t, f.engine.Overwrite(f.ctx, alice, p, "replaced"))
	text, err = f.engine.Read(f.ctx, alice, p)
	require.NoError(t, err)
	assert.Equal(t, "replaced", text)

	require.NoError(t, f.engine.Truncate(f.ctx, alice, p))
	text, err = f.engine.Read(f.ctx, alice, p)
	require.NoError(t, err)
	assert.Equal(t, "", text)

	assert.Equal(t, 1.0, f.usageMB("alice"), "content changes never touch usage")

	t.Run("MissingFile", func(t *testing.T) {
		const missing = "/home/alice/missing"
		assert.ErrorIs(t, f.engine.Append(f.ctx, alice, missing, "x"), fserr.ErrNotFound)
		assert.ErrorIs(t, f.engine.Overwrite(f.ctx, alice, missing, "x"), fserr.ErrNotFound)
		assert.ErrorIs(t, f.engine.Truncate(f.ctx, alice, missing), fserr.ErrNotFound)
		_, err := f.engine.Read(f.ctx, alice, missing)
		assert.ErrorIs(t, err, fserr.ErrNotFound)
	})

	t.Run("PhysicalMissing", func(t *testing.T) {
		const gone = "/home/alice/gone"
		_, err := f.engine.Create(f.ctx, alice, gone, 0)
		require.NoError(t, err)
		require.NoError(t, f.content.Store.Delete(f.ctx, content.ID{Owner: "alice", Name: "gone"}))

		_, err = f.engine.Read(f.ctx, alice, gone)
		assert.ErrorIs(t, err, fserr.ErrPhysicalMissing)
		assert.ErrorIs(t, f.engine.Append(f.ctx, alice, gone, "x"), fserr.ErrPhysicalMissing)
		assert.ErrorIs(t, f.engine.Overwrite(f.ctx, alice, gone, "x"), fserr.ErrPhysicalMissing)
		assert.ErrorIs(t, f.engine.Truncate(f.ctx, alice, gone), fserr.ErrPhysicalMissing)
	})
}

func TestReadReplacesInvalidUTF8(t *testing.T) {
	f := newFixture(t)
	alice := f.user("alice", 10)
	_, err := f.engine.Create(f.ctx, alice, "/home/alice/bin", 0)
	require.NoError(t, err)
	require.NoError(t, f.content.Store.Overwrite(f.ctx, content.ID{Owner: "alice", Name: "bin"}, []byte{'o', 'k', 0xff, 0xfe}))

	text, err := f.engine.Read(f.ctx, alice, "/home/alice/bin")
	require.NoError(t, err)
	assert.Equal(t, "ok\uFFFD", text)
}

func TestExecute(t *testing.T) {
	f := newFixture(t)
	alice := f.user("alice", 10)
	bob := f.user("bob", 10)
	_, err := f.engine.Create(f.ctx, alice, "/home/alice/run.sh", 0)
	require.NoError(t, err)

	assert.ErrorIs(t, f.engine.Execute(f.ctx, alice, "/home/alice/run.sh"), fserr.ErrPermissionDenied)
	assert.ErrorIs(t, f.engine.Execute(f.ctx, alice, "/home/alice/none"), fserr.ErrNotFound)
	assert.ErrorIs(t, f.engine.Execute(f.ctx, bob, "/home/alice/run.sh"), fserr.ErrAccessDenied)
	assert.ErrorIs(t, f.engine.Execute(f.ctx, f.adminToken, "/home/alice/run.sh"), fserr.ErrAdminForbidden)
}

func TestNonOwnerIsolation(t *testing.T) {
	f := newFixture(t)
	alice := f.user("alice", 10)
	bob := f.user("bob", 10)
	_, err := f.engine.Create(f.ctx, alice, "/home/alice/secret", 1)
	require.NoError(t, err)

	paths := []string{
		"/home/alice/secret",
		"/home/bob/../alice/secret",
		"/home/alice/./secret",
		"//home/alice/secret",
	}
	for _, p := range paths {
		t.Run(p, func(t *testing.T) {
			_, err := f.engine.Read(f.ctx, bob, p)
			assert.ErrorIs(t, err, fserr.ErrAccessDenied)
			assert.ErrorIs(t, f.engine.Append(f.ctx, bob, p, "x"), fserr.ErrAccessDenied)
			assert.ErrorIs(t, f.engine.Overwrite(f.ctx, bob, p, "x"), fserr.ErrAccessDenied)
			assert.ErrorIs(t, f.engine.Truncate(f.ctx, bob, p), fserr.ErrAccessDenied)
			assert.ErrorIs(t, f.engine.Delete(f.ctx, bob, p), fserr.ErrAccessDenied)
			_, err = f.engine.Create(f.ctx, bob, p, 1)
			assert.ErrorIs(t, err, fserr.ErrAccessDenied)
		})
	}

	text, err := f.engine.Read(f.ctx, alice, "/home/alice/secret")
	require.NoError(t, err)
	assert.Equal(t, "This file is 1 MB (simulation).", text)
	assert.Equal(t, 1.0, f.usageMB("alice"))
	assert.Zero(t, f.usageMB("bob"))
	assert.Empty(t, f.files(bob))
}

func TestAdminCannotUseFiles(t *testing.T) {
	f := newFixture(t)
	admin := f.adminToken
	const p = "/home/admin/a.txt"

	_, err := f.engine.Create(f.ctx, admin, p, 1)
	assert.ErrorIs(t, err, fserr.ErrAdminForbidden)
	assert.ErrorIs(t, f.engine.Append(f.ctx, admin, p, "x"), fserr.ErrAdminForbidden)
	assert.ErrorIs(t, f.engine.Overwrite(f.ctx, admin, p, "x"), fserr.ErrAdminForbidden)
	assert.ErrorIs(t, f.engine.Truncate(f.ctx, admin, p), fserr.ErrAdminForbidden)
	_, err = f.engine.Read(f.ctx, admin, p)
	assert.ErrorIs(t, err, fserr.ErrAdminForbidden)
	assert.ErrorIs(t, f.engine.Delete(f.ctx, admin, p), fserr.ErrAdminForbidden)
	assert.ErrorIs(t, f.engine.Execute(f.ctx, admin, p), fserr.ErrAdminForbidden)
	_, err = f.engine.List(f.ctx, admin)
	assert.ErrorIs(t, err, fserr.ErrAdminForbidden)
	_, err = f.engine.Status(f.ctx, admin)
	assert.ErrorIs(t, err, fserr.ErrAdminForbidden)
}

func TestRequiresSession(t *testing.T) {
	f := newFixture(t)

	for _, token := range []string{"", "not-a-token"} {
		_, err := f.engine.Create(f.ctx, token, "/home/alice/a", 1)
		assert.ErrorIs(t, err, fserr.ErrNotAuthenticated)
		_, err = f.engine.Read(f.ctx, token, "/home/alice/a")
		assert.ErrorIs(t, err, fserr.ErrNotAuthenticated)
		_, err = f.engine.List(f.ctx, token)
		assert.ErrorIs(t, err, fserr.ErrNotAuthenticated)
		_, err = f.engine.Status(f.ctx, token)
		assert.ErrorIs(t, err, fserr.ErrNotAuthenticated)
		assert.ErrorIs(t, f.engine.Logout(f.ctx, token), fserr.ErrNotAuthenticated)
		_, err = f.engine.ListUsers(f.ctx, token)
		assert.ErrorIs(t, err, fserr.ErrNotAuthenticated)
	}
}

func TestListAndStatus(t *testing.T) {
	f := newFixture(t)
	alice := f.user("alice", 10)
	bob := f.user("bob", 10)

	for _, name := range []string{"c", "a", "b"} {
		_, err := f.engine.Create(f.ctx, alice, "/home/alice/"+name, 1)
		require.NoError(t, err)
	}
	_, err := f.engine.Create(f.ctx, bob, "/home/bob/z", 1)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, f.files(alice))
	assert.Equal(t, []string{"z"}, f.files(bob))
	assert.Equal(t, 4, f.engine.FileCount())

	u, err := f.engine.Status(f.ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, quota.Usage{UserID: "alice", UsageMB: 3, LimitMB: 10}, u)
}

// TestConcurrentCreates checks the usage invariant under contention from
// several sessions of the same user.
func TestConcurrentCreates(t *testing.T) {
	f := newFixture(t)
	tokens := []string{f.user("alice", 10)}
	for i := 0; i < 3; i++ {
		tokens = append(tokens, f.login("alice", "alice-pw"))
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := "/home/alice/f" + string(rune('a'+i%26)) + string(rune('a'+i/26))
			_, err := f.engine.Create(context.Background(), tokens[i%len(tokens)], name, 0.5)
			switch {
			case err == nil:
				mu.Lock()
				created++
				mu.Unlock()
			case !errors.Is(err, fserr.ErrQuotaExceeded):
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 20, created)
	assert.Equal(t, 10.0, f.usageMB("alice"))
	assert.Len(t, f.files(tokens[0]), 20)
}

func TestAuditTrail(t *testing.T) {
	f := newFixture(t)
	alice := f.user("alice", 10)
	_, err := f.engine.Create(f.ctx, alice, "/home/alice/a", 1)
	require.NoError(t, err)
	require.NoError(t, f.engine.Delete(f.ctx, alice, "/home/alice/a"))

	assert.Equal(t, []string{"login", "register", "login", "create", "delete"}, f.auditor.actions())
}

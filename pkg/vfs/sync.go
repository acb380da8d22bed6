package vfs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/marmos91/homefs/internal/logger"
	"github.com/marmos91/homefs/pkg/quota"
	"github.com/marmos91/homefs/pkg/store/content"
)

// SyncResult summarizes one synchronization pass.
type SyncResult struct {
	// Accounts is the number of non-admin accounts visited
	Accounts int

	// Discovered counts physical objects added to the index with size 0
	Discovered int

	// Dropped counts index entries removed because their object was gone
	Dropped int

	// Pruned lists accounts deleted because their physical home was gone
	Pruned []string
}

// Sync reconciles the logical index with physical storage.
//
// Physical presence is authoritative: every visible object in a user's home is
// indexed (keeping the recorded size of entries already tracked, size 0 for new
// ones) and entries without an object are dropped. Index entries of accounts
// that no longer exist are purged.
//
// A failure on one home is logged and the pass continues; the joined errors are
// returned with the partial result.
func (e *Engine) Sync(ctx context.Context) (res *SyncResult, err error) {
	start := time.Now()
	res = &SyncResult{}
	defer func() {
		e.metrics.RecordReconcile(time.Since(start), res.Dropped, res.Discovered, err)
		e.observe("sync", start, err)
	}()

	// ========================================================================
	// Step 1: Optional pruning of accounts without a home
	// ========================================================================

	if e.pruneOrphans {
		pruned, err := e.quota.PruneOrphans(ctx, quota.PruneHooks{
			HasHome: e.content.HomeExists,
			Lock:    e.lockUser,
			Pruned: func(id string) {
				e.purge(id)
				e.sessions.RevokeUser(id)
				e.metrics.DeleteQuota(id)
			},
		})
		res.Pruned = pruned
		if err != nil {
			return res, fmt.Errorf("failed to prune orphaned accounts: %w", err)
		}
	}

	// ========================================================================
	// Step 2: Rebuild every home from physical storage
	// ========================================================================

	accounts, err := e.quota.ListAccounts(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to list accounts: %w", err)
	}

	known := make(map[string]bool, len(accounts))
	var errs []error
	for _, acc := range accounts {
		known[acc.UserID] = true
		if quota.IsAdmin(acc.UserID) {
			continue
		}
		res.Accounts++

		discovered, dropped, err := e.syncHome(ctx, acc.UserID)
		res.Discovered += discovered
		res.Dropped += dropped
		if err != nil {
			logger.Warn("Sync of %s failed: %v", HomeOf(acc.UserID), err)
			errs = append(errs, fmt.Errorf("%s: %w", acc.UserID, err))
			continue
		}
		e.publishQuota(ctx, acc.UserID)
	}

	// ========================================================================
	// Step 3: Drop index entries of vanished accounts
	// ========================================================================

	e.mu.RLock()
	var stale []string
	for owner := range e.index {
		if !known[owner] {
			stale = append(stale, owner)
		}
	}
	e.mu.RUnlock()
	for _, owner := range stale {
		dropped, err := e.purgeVanished(ctx, owner)
		res.Dropped += dropped
		if err != nil {
			logger.Warn("Cannot check account %s, keeping its index entries: %v", owner, err)
			errs = append(errs, fmt.Errorf("%s: %w", owner, err))
		}
	}

	logger.Info("Sync complete: %d accounts, %d files indexed, %d discovered, %d dropped",
		res.Accounts, e.FileCount(), res.Discovered, res.Dropped)
	return res, errors.Join(errs...)
}

// purgeVanished drops the index entries of owner if its account is gone.
// Accounts registered since the listing are left alone.
func (e *Engine) purgeVanished(ctx context.Context, owner string) (int, error) {
	unlock := e.lockUser(owner)
	defer unlock()

	exists, err := e.quota.Exists(ctx, owner)
	if err != nil {
		return 0, err
	}
	if exists {
		return 0, nil
	}
	return e.purge(owner), nil
}

// syncHome rebuilds the index of one home from physical storage.
// A missing home is treated as empty.
func (e *Engine) syncHome(ctx context.Context, user string) (discovered, dropped int, err error) {
	unlock := e.lockUser(user)
	defer unlock()
	return e.syncHomeLocked(ctx, user)
}

// syncHomeLocked is syncHome for callers already holding the user's lock.
func (e *Engine) syncHomeLocked(ctx context.Context, user string) (discovered, dropped int, err error) {
	names, err := e.listHome(ctx, user)
	if err != nil {
		return 0, 0, err
	}

	e.mu.Lock()
	next, discovered, missing := plan(user, names, e.index[user], e.now().UTC())
	if len(next) == 0 {
		delete(e.index, user)
	} else {
		e.index[user] = next
	}
	e.metrics.SetFiles(e.countLocked())
	e.mu.Unlock()

	for _, fi := range missing {
		logger.Warn("Physical object of %s is gone, dropping it from the index", fi.Path)
		if e.releaseMissing && fi.Size > 0 {
			if err := e.quota.Release(context.WithoutCancel(ctx), user, fi.Size); err != nil {
				logger.Error("Failed to release %d bytes of %s: %v", fi.Size, fi.Path, err)
			}
		}
	}

	return discovered, len(missing), nil
}

// Diff reports what Sync would change without touching the index or quotas.
func (e *Engine) Diff(ctx context.Context) (*SyncResult, error) {
	accounts, err := e.quota.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	res := &SyncResult{}
	for _, acc := range accounts {
		if quota.IsAdmin(acc.UserID) {
			continue
		}
		res.Accounts++

		names, err := e.listHome(ctx, acc.UserID)
		if err != nil {
			return res, fmt.Errorf("%s: %w", acc.UserID, err)
		}

		e.mu.RLock()
		_, discovered, missing := plan(acc.UserID, names, e.index[acc.UserID], time.Time{})
		e.mu.RUnlock()

		res.Discovered += discovered
		res.Dropped += len(missing)
		for _, fi := range missing {
			logger.Info("Sync would drop %s", fi.Path)
		}
	}
	return res, nil
}

// listHome lists a physical home, treating a missing home as empty.
func (e *Engine) listHome(ctx context.Context, user string) ([]string, error) {
	names, err := e.content.ListHome(ctx, user)
	if errors.Is(err, content.ErrHomeNotFound) {
		return nil, nil
	}
	return names, err
}

// plan computes the index of a home from its physical listing. Entries already
// tracked keep their size; new entries get size 0. Returns the new index, the
// number of discovered names and the entries that have no physical object.
func plan(user string, names []string, current map[string]*FileInfo, now time.Time) (map[string]*FileInfo, int, []*FileInfo) {
	next := make(map[string]*FileInfo, len(names))
	discovered := 0
	for _, name := range names {
		if fi, ok := current[name]; ok {
			next[name] = fi
			continue
		}
		next[name] = &FileInfo{
			Path:      LogicalPath(user, name),
			Name:      name,
			Owner:     user,
			CreatedAt: now,
		}
		discovered++
	}

	var missing []*FileInfo
	for name, fi := range current {
		if _, ok := next[name]; !ok {
			missing = append(missing, fi)
		}
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i].Name < missing[j].Name })
	return next, discovered, missing
}

// Package vfs implements the quota-enforced virtual filesystem engine.
//
// The Engine owns the logical index of files (/home/{owner}/{name} -> FileInfo)
// and orchestrates every operation across the session manager, the quota store
// and the physical content store:
//
//	resolve session -> check role and path scope -> reserve/release quota
//	-> mutate physical storage -> update index (or roll the reservation back)
//
// Mutations of one account are serialized by a per-user lock, so the reserve,
// write and index steps of an operation never interleave with another
// operation on the same home. The index itself is guarded by an RWMutex.
package vfs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/homefs/internal/logger"
	"github.com/marmos91/homefs/pkg/audit"
	"github.com/marmos91/homefs/pkg/fserr"
	"github.com/marmos91/homefs/pkg/metrics"
	"github.com/marmos91/homefs/pkg/quota"
	"github.com/marmos91/homefs/pkg/session"
	"github.com/marmos91/homefs/pkg/store/content"
)

// HomePrefix is the logical root of every home directory.
const HomePrefix = "/home/"

// FileInfo describes one logical file.
type FileInfo struct {
	// Path is the logical path, /home/{owner}/{name}
	Path string `json:"path"`

	// Name is the base name inside the owner's home
	Name string `json:"name"`

	// Owner is the account owning the file
	Owner string `json:"owner"`

	// Size is the number of bytes reserved for the file at creation
	Size uint64 `json:"size"`

	// CreatedAt is when the entry entered the index
	CreatedAt time.Time `json:"created_at"`
}

// SizeMB returns the reserved size in megabytes.
func (f FileInfo) SizeMB() float64 {
	return quota.ToMB(f.Size)
}

// Config wires an Engine to its collaborators.
type Config struct {
	// Quota is the authoritative quota and credential store (required)
	Quota *quota.Store

	// Content is the physical storage backend (required)
	Content content.Store

	// Sessions tracks authenticated tokens (required)
	Sessions *session.Manager

	// Auditor receives audit entries; nil disables auditing
	Auditor audit.Auditor

	// ReleaseMissing releases the reserved size of index entries dropped by Sync
	// because their physical object disappeared
	ReleaseMissing bool

	// PruneOrphans deletes accounts whose physical home is gone during Sync
	PruneOrphans bool
}

// Engine is the virtual filesystem.
//
// Thread Safety: Safe for concurrent use by any number of sessions.
type Engine struct {
	quota    *quota.Store
	content  content.Store
	sessions *session.Manager
	auditor  audit.Auditor
	metrics  metrics.VFSMetrics

	releaseMissing bool
	pruneOrphans   bool

	// mu guards index: owner -> name -> entry
	mu    sync.RWMutex
	index map[string]map[string]*FileInfo

	userLocks sync.Map

	now func() time.Time
}

// New creates an Engine. The index starts empty; call Startup or Sync to load
// the physical state.
//
// Parameters:
//   - cfg: Collaborators and behaviour flags
//   - m: Metrics sink, nil for no-op
//
// Returns:
//   - *Engine: Ready engine
//   - error: If a required collaborator is missing
func New(cfg Config, m metrics.VFSMetrics) (*Engine, error) {
	if cfg.Quota == nil {
		return nil, errors.New("vfs: quota store is required")
	}
	if cfg.Content == nil {
		return nil, errors.New("vfs: content store is required")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("vfs: session manager is required")
	}
	if cfg.Auditor == nil {
		cfg.Auditor = audit.Noop{}
	}
	if m == nil {
		m = metrics.NewNoopVFSMetrics()
	}

	return &Engine{
		quota:          cfg.Quota,
		content:        cfg.Content,
		sessions:       cfg.Sessions,
		auditor:        cfg.Auditor,
		metrics:        m,
		releaseMissing: cfg.ReleaseMissing,
		pruneOrphans:   cfg.PruneOrphans,
		index:          make(map[string]map[string]*FileInfo),
		now:            time.Now,
	}, nil
}

// Startup bootstraps the admin account and loads the physical state into the
// logical index.
func (e *Engine) Startup(ctx context.Context, adminPassword string) (*SyncResult, error) {
	if _, err := e.quota.Bootstrap(ctx, adminPassword); err != nil {
		return nil, fmt.Errorf("failed to bootstrap admin account: %w", err)
	}
	return e.Sync(ctx)
}

// ============================================================================
// Sessions and roles
// ============================================================================

// caller resolves token into the acting user id.
func (e *Engine) caller(token string) (string, error) {
	s, err := e.sessions.Resolve(token)
	if err != nil {
		return "", fserr.ErrNotAuthenticated
	}
	return s.UserID, nil
}

// fileCaller resolves token for a file operation. The admin owns no files.
func (e *Engine) fileCaller(token string) (string, error) {
	user, err := e.caller(token)
	if err != nil {
		return "", err
	}
	if quota.IsAdmin(user) {
		return "", fserr.New(fserr.CodeAdminForbidden, "admin cannot perform file operations", "")
	}
	return user, nil
}

// adminCaller resolves token for an account-management operation.
func (e *Engine) adminCaller(token string) error {
	user, err := e.caller(token)
	if err != nil {
		return err
	}
	if !quota.IsAdmin(user) {
		return fserr.New(fserr.CodeAdminForbidden, "operation requires the admin account", user)
	}
	return nil
}

// lockUser serializes mutations of one account and returns the unlock func.
func (e *Engine) lockUser(user string) func() {
	value, _ := e.userLocks.LoadOrStore(user, &sync.Mutex{})
	mu := value.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// ============================================================================
// Index
// ============================================================================

func (e *Engine) lookup(owner, name string) (*FileInfo, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	fi, ok := e.index[owner][name]
	if !ok {
		return nil, false
	}
	c := *fi
	return &c, true
}

func (e *Engine) insert(fi *FileInfo) {
	e.mu.Lock()
	defer e.mu.Unlock()

	home, ok := e.index[fi.Owner]
	if !ok {
		home = make(map[string]*FileInfo)
		e.index[fi.Owner] = home
	}
	home[fi.Name] = fi
	e.metrics.SetFiles(e.countLocked())
}

func (e *Engine) remove(owner, name string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.index[owner], name)
	if len(e.index[owner]) == 0 {
		delete(e.index, owner)
	}
	e.metrics.SetFiles(e.countLocked())
}

func (e *Engine) purge(owner string) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := len(e.index[owner])
	delete(e.index, owner)
	e.metrics.SetFiles(e.countLocked())
	return n
}

func (e *Engine) countLocked() int {
	n := 0
	for _, home := range e.index {
		n += len(home)
	}
	return n
}

// FileCount returns the number of files in the logical index.
func (e *Engine) FileCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.countLocked()
}

// ============================================================================
// Observability
// ============================================================================

func (e *Engine) observe(op string, start time.Time, err error) {
	e.metrics.RecordOperation(op, time.Since(start), err)
	if err != nil {
		logger.Debug("vfs %s failed: %v", op, err)
	}
}

func (e *Engine) audit(ctx context.Context, user, action, details string) {
	e.auditor.Record(ctx, audit.Entry{
		Time:    e.now().UTC(),
		UserID:  user,
		Action:  action,
		Details: details,
	})
}

// publishQuota refreshes the quota gauges of user. Failures are only logged.
func (e *Engine) publishQuota(ctx context.Context, user string) {
	u, err := e.quota.GetUsage(ctx, user)
	if err != nil {
		logger.Debug("Cannot publish quota of %s: %v", user, err)
		return
	}
	e.metrics.SetQuota(user, quota.ToBytes(u.UsageMB), quota.ToBytes(u.LimitMB))
}

// physicalErr translates a content store error into an fserr code.
func physicalErr(err error, logical string) error {
	if errors.Is(err, content.ErrContentNotFound) || errors.Is(err, content.ErrHomeNotFound) {
		return fserr.Wrap(fserr.CodePhysicalMissing, err, "physical file missing", logical)
	}
	return fserr.Wrap(fserr.CodePhysicalIO, err, "physical storage error", logical)
}

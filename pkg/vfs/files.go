package vfs

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/marmos91/homefs/internal/logger"
	"github.com/marmos91/homefs/pkg/fserr"
	"github.com/marmos91/homefs/pkg/quota"
	"github.com/marmos91/homefs/pkg/store/content"
)

// placeholder returns the content written to a freshly created file.
func placeholder(sizeMB float64) []byte {
	return []byte("This file is " + strconv.FormatFloat(sizeMB, 'f', -1, 64) + " MB (simulation).")
}

// Create reserves sizeMB of the caller's quota and creates the file at p.
//
// The operation is all-or-nothing: if the home cannot be repaired or the
// physical write fails, the reservation is released and no index entry is made.
//
// Parameters:
//   - token: Session token of a non-admin user
//   - p: Logical path inside the caller's home
//   - sizeMB: Nominal size to reserve, in MB
//
// Returns:
//   - *FileInfo: The new index entry
//   - error: NotAuthenticated, AdminForbidden, AccessDenied, InvalidArgument,
//     AlreadyExists, QuotaExceeded or PhysicalIOError
func (e *Engine) Create(ctx context.Context, token, p string, sizeMB float64) (fi *FileInfo, err error) {
	defer func(start time.Time) { e.observe("create", start, err) }(time.Now())

	// ========================================================================
	// Step 1: Session, scope and argument checks
	// ========================================================================

	user, err := e.fileCaller(token)
	if err != nil {
		return nil, err
	}
	logical, name, err := scope(user, p)
	if err != nil {
		return nil, err
	}
	if !quota.ValidMB(sizeMB) {
		return nil, fserr.New(fserr.CodeInvalidArgument, fmt.Sprintf("invalid size %v MB", sizeMB), logical)
	}

	unlock := e.lockUser(user)
	defer unlock()

	if _, exists := e.lookup(user, name); exists {
		return nil, fserr.New(fserr.CodeAlreadyExists, "file already exists", logical)
	}

	// ========================================================================
	// Step 2: Reserve quota
	// ========================================================================

	size := quota.ToBytes(sizeMB)
	if err := e.quota.Reserve(ctx, user, size); err != nil {
		return nil, err
	}

	// ========================================================================
	// Step 3: Physical mutation, rolling the reservation back on failure
	// ========================================================================

	id := content.ID{Owner: user, Name: name}
	if err := e.content.EnsureHome(ctx, user); err != nil {
		e.rollback(ctx, user, size)
		return nil, fserr.Wrap(fserr.CodePhysicalIO, err, "cannot prepare home directory", logical)
	}
	if err := e.content.Create(ctx, id, placeholder(sizeMB)); err != nil {
		e.rollback(ctx, user, size)
		return nil, fserr.Wrap(fserr.CodePhysicalIO, err, "cannot write file", logical)
	}

	// ========================================================================
	// Step 4: Index
	// ========================================================================

	fi = &FileInfo{
		Path:      logical,
		Name:      name,
		Owner:     user,
		Size:      size,
		CreatedAt: e.now().UTC(),
	}
	e.insert(fi)

	e.publishQuota(ctx, user)
	e.audit(ctx, user, "create", fmt.Sprintf("%s (%s MB)", logical, strconv.FormatFloat(sizeMB, 'f', -1, 64)))
	logger.Debug("Created %s (%d bytes reserved)", logical, size)

	c := *fi
	return &c, nil
}

// rollback releases a reservation after a failed physical mutation.
func (e *Engine) rollback(ctx context.Context, user string, size uint64) {
	// Release even when ctx was cancelled mid-operation
	if err := e.quota.Release(context.WithoutCancel(ctx), user, size); err != nil {
		logger.Error("Failed to roll back %d bytes reserved by %s: %v", size, user, err)
	}
}

// Append adds "\n"+text at the end of an existing file. Usage is unchanged.
func (e *Engine) Append(ctx context.Context, token, p, text string) (err error) {
	defer func(start time.Time) { e.observe("append", start, err) }(time.Now())

	return e.mutate(ctx, token, p, "append", func(id content.ID) error {
		return e.content.Append(ctx, id, []byte("\n"+text))
	})
}

// Overwrite replaces the content of an existing file. Usage is unchanged.
func (e *Engine) Overwrite(ctx context.Context, token, p, text string) (err error) {
	defer func(start time.Time) { e.observe("overwrite", start, err) }(time.Now())

	return e.mutate(ctx, token, p, "overwrite", func(id content.ID) error {
		return e.content.Overwrite(ctx, id, []byte(text))
	})
}

// Truncate empties an existing file. Usage is unchanged.
func (e *Engine) Truncate(ctx context.Context, token, p string) (err error) {
	defer func(start time.Time) { e.observe("truncate", start, err) }(time.Now())

	return e.mutate(ctx, token, p, "truncate", func(id content.ID) error {
		return e.content.Truncate(ctx, id)
	})
}

// mutate runs a content-only mutation on an owned, indexed file.
func (e *Engine) mutate(ctx context.Context, token, p, action string, fn func(content.ID) error) error {
	user, fi, unlock, err := e.owned(token, p)
	if err != nil {
		return err
	}
	defer unlock()

	if err := fn(content.ID{Owner: fi.Owner, Name: fi.Name}); err != nil {
		return physicalErr(err, fi.Path)
	}

	e.audit(ctx, user, action, fi.Path)
	return nil
}

// owned resolves token and p to an indexed file owned by the caller and
// returns it with the caller's lock held.
func (e *Engine) owned(token, p string) (string, *FileInfo, func(), error) {
	user, err := e.fileCaller(token)
	if err != nil {
		return "", nil, nil, err
	}
	logical, name, err := scope(user, p)
	if err != nil {
		return "", nil, nil, err
	}

	unlock := e.lockUser(user)
	fi, ok := e.lookup(user, name)
	if !ok {
		unlock()
		return "", nil, nil, fserr.New(fserr.CodeNotFound, "file not found", logical)
	}
	if fi.Owner != user {
		unlock()
		return "", nil, nil, fserr.New(fserr.CodeAccessDenied, "file is owned by another user", logical)
	}
	return user, fi, unlock, nil
}

// Read returns the content of a file. Invalid UTF-8 sequences are replaced
// with U+FFFD.
func (e *Engine) Read(ctx context.Context, token, p string) (text string, err error) {
	defer func(start time.Time) { e.observe("read", start, err) }(time.Now())

	user, fi, unlock, err := e.owned(token, p)
	if err != nil {
		return "", err
	}
	defer unlock()

	data, err := e.content.Read(ctx, content.ID{Owner: fi.Owner, Name: fi.Name})
	if err != nil {
		return "", physicalErr(err, fi.Path)
	}

	e.audit(ctx, user, "read", fi.Path)
	return strings.ToValidUTF8(string(data), "\uFFFD"), nil
}

// Delete removes a file and releases exactly the size it reserved.
//
// A physical object that is already gone is not an error. Any other physical
// failure aborts the operation with no state change.
func (e *Engine) Delete(ctx context.Context, token, p string) (err error) {
	defer func(start time.Time) { e.observe("delete", start, err) }(time.Now())

	user, fi, unlock, err := e.owned(token, p)
	if err != nil {
		return err
	}
	defer unlock()

	// ========================================================================
	// Step 1: Physical delete
	// ========================================================================

	if err := e.content.Delete(ctx, content.ID{Owner: fi.Owner, Name: fi.Name}); err != nil {
		return fserr.Wrap(fserr.CodePhysicalIO, err, "cannot delete file", fi.Path)
	}

	// ========================================================================
	// Step 2: Release and unindex
	// ========================================================================

	releaseErr := e.quota.Release(context.WithoutCancel(ctx), user, fi.Size)
	e.remove(user, fi.Name)

	e.publishQuota(ctx, user)
	e.audit(ctx, user, "delete", fi.Path)

	if releaseErr != nil {
		logger.Error("File %s deleted but releasing %d bytes failed: %v", fi.Path, fi.Size, releaseErr)
		return fmt.Errorf("file deleted but quota release failed: %w", releaseErr)
	}
	return nil
}

// Execute is never permitted. The file must exist and belong to the caller for
// the denial to be reported as PermissionDenied.
func (e *Engine) Execute(ctx context.Context, token, p string) (err error) {
	defer func(start time.Time) { e.observe("execute", start, err) }(time.Now())

	user, fi, unlock, err := e.owned(token, p)
	if err != nil {
		return err
	}
	unlock()

	e.audit(ctx, user, "execute_denied", fi.Path)
	return fserr.New(fserr.CodePermissionDenied, "execution is not permitted", fi.Path)
}

// List returns the caller's files sorted by name.
func (e *Engine) List(ctx context.Context, token string) (files []FileInfo, err error) {
	defer func(start time.Time) { e.observe("list", start, err) }(time.Now())

	user, err := e.fileCaller(token)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.RLock()
	files = make([]FileInfo, 0, len(e.index[user]))
	for _, fi := range e.index[user] {
		files = append(files, *fi)
	}
	e.mu.RUnlock()

	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// Status returns the caller's usage and limit.
func (e *Engine) Status(ctx context.Context, token string) (u quota.Usage, err error) {
	defer func(start time.Time) { e.observe("status", start, err) }(time.Now())

	user, err := e.fileCaller(token)
	if err != nil {
		return quota.Usage{}, err
	}
	return e.quota.GetUsage(ctx, user)
}

// Package fs implements filesystem-based content storage for homefs.
//
// Each owner's home is a directory named "<owner>_home" under the configured
// root, and every file is stored under its base name:
//
//	<root>/alice_home/a.txt
package fs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/marmos91/homefs/pkg/store/content"
)

// FSContentStoreConfig configures the filesystem backend.
type FSContentStoreConfig struct {
	// Path is the root directory holding all home directories
	Path string `mapstructure:"path"`

	// DirMode is the permission mode for created home directories (default 0755)
	DirMode os.FileMode `mapstructure:"dir_mode"`

	// FileMode is the permission mode for created files (default 0644)
	FileMode os.FileMode `mapstructure:"file_mode"`
}

// FSContentStore implements content.Store using the local filesystem.
//
// Thread Safety:
// The underlying filesystem operations are thread-safe at the OS level, but
// concurrent writes to the same file may interleave. Callers serialize access
// per owner.
type FSContentStore struct {
	basePath string
	dirMode  os.FileMode
	fileMode os.FileMode
}

// NewFSContentStore creates a new filesystem-based content store.
//
// The root directory is created if it doesn't exist.
//
// Parameters:
//   - ctx: Context for cancellation and timeouts
//   - cfg: Root path and permission modes
//
// Returns:
//   - *FSContentStore: Initialized store
//   - error: Returns error if directory creation fails or context is cancelled
func NewFSContentStore(ctx context.Context, cfg FSContentStoreConfig) (*FSContentStore, error) {
	// ========================================================================
	// Step 1: Check context before filesystem operation
	// ========================================================================

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if cfg.Path == "" {
		return nil, fmt.Errorf("filesystem content store: path is required")
	}

	dirMode := cfg.DirMode
	if dirMode == 0 {
		dirMode = 0755
	}
	fileMode := cfg.FileMode
	if fileMode == 0 {
		fileMode = 0644
	}

	// ========================================================================
	// Step 2: Create the root directory if it doesn't exist
	// ========================================================================

	if err := os.MkdirAll(cfg.Path, dirMode); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &FSContentStore{
		basePath: cfg.Path,
		dirMode:  dirMode,
		fileMode: fileMode,
	}, nil
}

// homePath returns the physical directory of an owner's home.
func (s *FSContentStore) homePath(owner string) string {
	return filepath.Join(s.basePath, owner+content.HomeSuffix)
}

// filePath returns the physical path of an object.
func (s *FSContentStore) filePath(id content.ID) string {
	return filepath.Join(s.homePath(id.Owner), id.Name)
}

// HomePath exposes the physical directory of an owner's home (diagnostics, tests).
func (s *FSContentStore) HomePath(owner string) string {
	return s.homePath(owner)
}

func (s *FSContentStore) EnsureHome(ctx context.Context, owner string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := content.ValidateOwner(owner); err != nil {
		return err
	}

	if err := os.MkdirAll(s.homePath(owner), s.dirMode); err != nil {
		return fmt.Errorf("failed to create home %s: %w", owner, err)
	}
	return nil
}

func (s *FSContentStore) HomeExists(ctx context.Context, owner string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := content.ValidateOwner(owner); err != nil {
		return false, err
	}

	info, err := os.Stat(s.homePath(owner))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat home %s: %w", owner, err)
	}
	return info.IsDir(), nil
}

func (s *FSContentStore) RemoveHome(ctx context.Context, owner string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := content.ValidateOwner(owner); err != nil {
		return err
	}

	if err := os.RemoveAll(s.homePath(owner)); err != nil {
		return fmt.Errorf("failed to remove home %s: %w", owner, err)
	}
	return nil
}

func (s *FSContentStore) ListHome(ctx context.Context, owner string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := content.ValidateOwner(owner); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(s.homePath(owner))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("home %s: %w", owner, content.ErrHomeNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list home %s: %w", owner, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if content.IsHidden(entry.Name()) || entry.IsDir() {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

func (s *FSContentStore) Create(ctx context.Context, id content.ID, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := content.ValidateID(id); err != nil {
		return err
	}

	err := os.WriteFile(s.filePath(id), data, s.fileMode)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("create %s: %w", id, content.ErrHomeNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", id, err)
	}
	return nil
}

func (s *FSContentStore) Append(ctx context.Context, id content.ID, data []byte) error {
	return s.writeExisting(ctx, id, os.O_WRONLY|os.O_APPEND, data)
}

func (s *FSContentStore) Overwrite(ctx context.Context, id content.ID, data []byte) error {
	return s.writeExisting(ctx, id, os.O_WRONLY|os.O_TRUNC, data)
}

func (s *FSContentStore) Truncate(ctx context.Context, id content.ID) error {
	return s.writeExisting(ctx, id, os.O_WRONLY|os.O_TRUNC, nil)
}

// writeExisting opens an existing file with flag (never O_CREATE) and writes data.
func (s *FSContentStore) writeExisting(ctx context.Context, id content.ID, flag int, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := content.ValidateID(id); err != nil {
		return err
	}

	f, err := os.OpenFile(s.filePath(id), flag, s.fileMode)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s: %w", id, content.ErrContentNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", id, err)
	}

	if len(data) > 0 {
		if _, err := f.Write(data); err != nil {
			_ = f.Close()
			return fmt.Errorf("failed to write %s: %w", id, err)
		}
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", id, err)
	}
	return nil
}

func (s *FSContentStore) Read(ctx context.Context, id content.ID) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := content.ValidateID(id); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.filePath(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", id, content.ErrContentNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", id, err)
	}
	return data, nil
}

func (s *FSContentStore) Delete(ctx context.Context, id content.ID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := content.ValidateID(id); err != nil {
		return err
	}

	err := os.Remove(s.filePath(id))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete %s: %w", id, err)
	}
	return nil
}

func (s *FSContentStore) Exists(ctx context.Context, id content.ID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := content.ValidateID(id); err != nil {
		return false, err
	}

	info, err := os.Stat(s.filePath(id))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat %s: %w", id, err)
	}
	return info.Mode().IsRegular(), nil
}

// Close is a no-op; the filesystem store holds no open descriptors.
func (s *FSContentStore) Close() error {
	return nil
}

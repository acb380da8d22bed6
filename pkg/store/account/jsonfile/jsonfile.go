// Package jsonfile persists accounts in a single JSON document.
//
// The document keeps the layout used by earlier homefs deployments:
//
//	{
//	    "quotas":    {"alice": {"limit": 10485760, "usage": 0}},
//	    "passwords": {"alice": "argon2id$..."}
//	}
//
// Every mutation rewrites the whole document through a temporary file that is
// fsynced and renamed over the original, so a crash leaves either the old or the
// new state on disk, never a torn file.
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/marmos91/homefs/internal/logger"
	"github.com/marmos91/homefs/pkg/store/account"
)

// JSONFileAccountStoreConfig configures the JSON file backend.
type JSONFileAccountStoreConfig struct {
	// Path is the location of the accounts document (e.g. /var/lib/homefs/users.json)
	Path string `mapstructure:"path"`
}

// JSONFileAccountStore implements account.Store on top of a JSON document.
//
// The full account set is held in memory and written back on every mutation.
// This is adequate for the small account counts homefs targets; use the badger
// or postgres backend for larger deployments.
type JSONFileAccountStore struct {
	path string

	mu       sync.Mutex
	accounts map[string]*account.Account
}

type quotaRecord struct {
	Limit float64 `json:"limit"`
	Usage float64 `json:"usage"`
}

type document struct {
	Quotas    map[string]quotaRecord `json:"quotas"`
	Passwords map[string]string      `json:"passwords"`
}

// NewJSONFileAccountStore opens (or prepares to create) the document at cfg.Path.
//
// A missing file is treated as an empty account set. A file that exists but
// cannot be decoded is reported as account.ErrCorrupt rather than silently
// replaced, so operators can recover it by hand.
func NewJSONFileAccountStore(ctx context.Context, cfg JSONFileAccountStoreConfig) (*JSONFileAccountStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg.Path == "" {
		return nil, fmt.Errorf("jsonfile account store: path is required")
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create account directory: %w", err)
	}

	store := &JSONFileAccountStore{
		path:     cfg.Path,
		accounts: make(map[string]*account.Account),
	}

	if err := store.load(); err != nil {
		return nil, err
	}

	logger.Debug("Loaded %d accounts from %s", len(store.accounts), cfg.Path)
	return store, nil
}

func (s *JSONFileAccountStore) load() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", s.path, err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: %s: %v", account.ErrCorrupt, s.path, err)
	}

	for id, q := range doc.Quotas {
		if !validBytes(q.Limit) || !validBytes(q.Usage) {
			return fmt.Errorf("%w: %s: quota of %q out of range", account.ErrCorrupt, s.path, id)
		}
		s.accounts[id] = &account.Account{
			ID:           id,
			PasswordHash: doc.Passwords[id],
			LimitBytes:   uint64(q.Limit),
			UsageBytes:   uint64(q.Usage),
		}
	}

	return nil
}

// validBytes reports whether v converts to a uint64 byte count without loss of range.
func validBytes(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v < math.MaxUint64
}

// save writes the current account set. Caller must hold s.mu.
func (s *JSONFileAccountStore) save(accounts map[string]*account.Account) error {
	doc := document{
		Quotas:    make(map[string]quotaRecord, len(accounts)),
		Passwords: make(map[string]string, len(accounts)),
	}
	for id, acc := range accounts {
		doc.Quotas[id] = quotaRecord{Limit: float64(acc.LimitBytes), Usage: float64(acc.UsageBytes)}
		doc.Passwords[id] = acc.PasswordHash
	}

	data, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode accounts: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".accounts-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write accounts: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync accounts: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", s.path, err)
	}

	return nil
}

// commit persists next and, only on success, makes it the live state.
// Caller must hold s.mu.
func (s *JSONFileAccountStore) commit(next map[string]*account.Account) error {
	if err := s.save(next); err != nil {
		return err
	}
	s.accounts = next
	return nil
}

func (s *JSONFileAccountStore) snapshot() map[string]*account.Account {
	next := make(map[string]*account.Account, len(s.accounts)+1)
	for id, acc := range s.accounts {
		next[id] = acc
	}
	return next
}

func (s *JSONFileAccountStore) GetAccount(ctx context.Context, id string) (*account.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[id]
	if !ok {
		return nil, account.ErrAccountNotFound
	}
	return acc.Clone(), nil
}

func (s *JSONFileAccountStore) CreateAccount(ctx context.Context, acc *account.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[acc.ID]; exists {
		return account.ErrAccountExists
	}

	next := s.snapshot()
	next[acc.ID] = acc.Clone()
	return s.commit(next)
}

func (s *JSONFileAccountStore) UpdateAccount(ctx context.Context, id string, fn account.UpdateFunc) (*account.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.accounts[id]
	if !ok {
		return nil, account.ErrAccountNotFound
	}

	updated := current.Clone()
	if err := fn(updated); err != nil {
		return nil, err
	}
	updated.ID = id

	next := s.snapshot()
	next[id] = updated
	if err := s.commit(next); err != nil {
		return nil, err
	}
	return updated.Clone(), nil
}

func (s *JSONFileAccountStore) DeleteAccount(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[id]; !ok {
		return account.ErrAccountNotFound
	}

	next := s.snapshot()
	delete(next, id)
	return s.commit(next)
}

func (s *JSONFileAccountStore) ListAccounts(ctx context.Context) ([]*account.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]*account.Account, 0, len(s.accounts))
	for _, acc := range s.accounts {
		result = append(result, acc.Clone())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *JSONFileAccountStore) Close() error {
	return nil
}

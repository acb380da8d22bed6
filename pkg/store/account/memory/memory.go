package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/marmos91/homefs/pkg/store/account"
)

// MemoryAccountStore implements account.Store entirely in memory.
//
// Suitable for tests and ephemeral deployments: nothing survives a restart.
// All operations are serialized by a single mutex, which also provides the
// per-account atomicity UpdateAccount requires.
type MemoryAccountStore struct {
	mu       sync.RWMutex
	accounts map[string]*account.Account
}

// NewMemoryAccountStore creates an empty in-memory account store.
func NewMemoryAccountStore() *MemoryAccountStore {
	return &MemoryAccountStore{
		accounts: make(map[string]*account.Account),
	}
}

func (s *MemoryAccountStore) GetAccount(ctx context.Context, id string) (*account.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	acc, ok := s.accounts[id]
	if !ok {
		return nil, account.ErrAccountNotFound
	}
	return acc.Clone(), nil
}

func (s *MemoryAccountStore) CreateAccount(ctx context.Context, acc *account.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[acc.ID]; exists {
		return account.ErrAccountExists
	}
	s.accounts[acc.ID] = acc.Clone()
	return nil
}

func (s *MemoryAccountStore) UpdateAccount(ctx context.Context, id string, fn account.UpdateFunc) (*account.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.accounts[id]
	if !ok {
		return nil, account.ErrAccountNotFound
	}

	// Mutate a copy so a failing fn leaves the stored record untouched
	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.ID = id
	s.accounts[id] = next
	return next.Clone(), nil
}

func (s *MemoryAccountStore) DeleteAccount(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[id]; !ok {
		return account.ErrAccountNotFound
	}
	delete(s.accounts, id)
	return nil
}

func (s *MemoryAccountStore) ListAccounts(ctx context.Context) ([]*account.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*account.Account, 0, len(s.accounts))
	for _, acc := range s.accounts {
		result = append(result, acc.Clone())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *MemoryAccountStore) Close() error {
	return nil
}

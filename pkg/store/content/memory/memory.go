// Package memory implements an in-memory content store for homefs.
//
// Nothing survives a restart, which makes it suitable for tests and demos.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/marmos91/homefs/pkg/store/content"
)

// MemoryContentStore implements content.Store with nested maps guarded by a
// single read-write mutex.
type MemoryContentStore struct {
	mu    sync.RWMutex
	homes map[string]map[string][]byte
}

// NewMemoryContentStore creates an empty in-memory content store.
func NewMemoryContentStore() *MemoryContentStore {
	return &MemoryContentStore{
		homes: make(map[string]map[string][]byte),
	}
}

func (s *MemoryContentStore) EnsureHome(ctx context.Context, owner string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := content.ValidateOwner(owner); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.homes[owner]; !ok {
		s.homes[owner] = make(map[string][]byte)
	}
	return nil
}

func (s *MemoryContentStore) HomeExists(ctx context.Context, owner string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := content.ValidateOwner(owner); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.homes[owner]
	return ok, nil
}

func (s *MemoryContentStore) RemoveHome(ctx context.Context, owner string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := content.ValidateOwner(owner); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.homes, owner)
	return nil
}

func (s *MemoryContentStore) ListHome(ctx context.Context, owner string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := content.ValidateOwner(owner); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	home, ok := s.homes[owner]
	if !ok {
		return nil, fmt.Errorf("home %s: %w", owner, content.ErrHomeNotFound)
	}

	names := make([]string, 0, len(home))
	for name := range home {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *MemoryContentStore) Create(ctx context.Context, id content.ID, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := content.ValidateID(id); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	home, ok := s.homes[id.Owner]
	if !ok {
		return fmt.Errorf("create %s: %w", id, content.ErrHomeNotFound)
	}
	home[id.Name] = append([]byte(nil), data...)
	return nil
}

func (s *MemoryContentStore) Append(ctx context.Context, id content.ID, data []byte) error {
	return s.mutate(ctx, id, func(old []byte) []byte {
		return append(append([]byte(nil), old...), data...)
	})
}

func (s *MemoryContentStore) Overwrite(ctx context.Context, id content.ID, data []byte) error {
	return s.mutate(ctx, id, func([]byte) []byte {
		return append([]byte(nil), data...)
	})
}

func (s *MemoryContentStore) Truncate(ctx context.Context, id content.ID) error {
	return s.mutate(ctx, id, func([]byte) []byte {
		return []byte{}
	})
}

func (s *MemoryContentStore) mutate(ctx context.Context, id content.ID, fn func(old []byte) []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := content.ValidateID(id); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.homes[id.Owner][id.Name]
	if !ok {
		return fmt.Errorf("%s: %w", id, content.ErrContentNotFound)
	}
	s.homes[id.Owner][id.Name] = fn(old)
	return nil
}

func (s *MemoryContentStore) Read(ctx context.Context, id content.ID) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := content.ValidateID(id); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.homes[id.Owner][id.Name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, content.ErrContentNotFound)
	}
	return append([]byte(nil), data...), nil
}

func (s *MemoryContentStore) Delete(ctx context.Context, id content.ID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := content.ValidateID(id); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if home, ok := s.homes[id.Owner]; ok {
		delete(home, id.Name)
	}
	return nil
}

func (s *MemoryContentStore) Exists(ctx context.Context, id content.ID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := content.ValidateID(id); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.homes[id.Owner][id.Name]
	return ok, nil
}

func (s *MemoryContentStore) Close() error {
	return nil
}

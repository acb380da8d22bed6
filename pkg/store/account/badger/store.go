package badger

import (
	"context"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/marmos91/homefs/pkg/store/account"
)

// maxConflictRetries bounds optimistic transaction retries in UpdateAccount.
const maxConflictRetries = 100

// BadgerAccountStore implements account.Store using BadgerDB for persistence.
//
// Accounts are stored as JSON values under prefixed keys (see keys.go).
// Atomicity of UpdateAccount comes from BadgerDB's serializable snapshot
// isolation: a read-modify-write transaction that races with another commit on
// the same key fails with badger.ErrConflict and is retried against the fresh
// value. Writes are synced before commit returns (SyncWrites), so a successful
// mutation is durable.
type BadgerAccountStore struct {
	db *badger.DB
}

// BadgerAccountStoreConfig contains configuration for creating a BadgerDB account store.
type BadgerAccountStoreConfig struct {
	// DBPath is the directory where BadgerDB will store its files
	DBPath string `mapstructure:"db_path"`

	// InMemory runs BadgerDB without touching disk (tests only)
	InMemory bool `mapstructure:"in_memory"`
}

// NewBadgerAccountStore opens (creating if needed) a BadgerDB account store.
//
// Parameters:
//   - ctx: Context for cancellation
//   - config: Database location
//
// Returns:
//   - *BadgerAccountStore: A store ready for use
//   - error: Error if the database cannot be opened
func NewBadgerAccountStore(ctx context.Context, config BadgerAccountStoreConfig) (*BadgerAccountStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var opts badger.Options
	if config.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if config.DBPath == "" {
			return nil, fmt.Errorf("badger account store: db_path is required")
		}
		opts = badger.DefaultOptions(config.DBPath).WithSyncWrites(true)
	}

	// Account records are tiny, compression is not worth the CPU
	opts = opts.WithLoggingLevel(badger.WARNING).WithCompression(options.None)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", config.DBPath, err)
	}

	return &BadgerAccountStore{db: db}, nil
}

func (s *BadgerAccountStore) GetAccount(ctx context.Context, id string) (*account.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var acc *account.Account
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		acc, err = getAccount(txn, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return acc, nil
}

func (s *BadgerAccountStore) CreateAccount(ctx context.Context, acc *account.Account) error {
	return s.retry(ctx, func(txn *badger.Txn) error {
		_, err := txn.Get(keyAccount(acc.ID))
		if err == nil {
			return account.ErrAccountExists
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("failed to check account: %w", err)
		}
		return putAccount(txn, acc)
	})
}

func (s *BadgerAccountStore) UpdateAccount(ctx context.Context, id string, fn account.UpdateFunc) (*account.Account, error) {
	var updated *account.Account

	err := s.retry(ctx, func(txn *badger.Txn) error {
		acc, err := getAccount(txn, id)
		if err != nil {
			return err
		}
		if err := fn(acc); err != nil {
			return err
		}
		acc.ID = id
		if err := putAccount(txn, acc); err != nil {
			return err
		}
		updated = acc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated.Clone(), nil
}

func (s *BadgerAccountStore) DeleteAccount(ctx context.Context, id string) error {
	return s.retry(ctx, func(txn *badger.Txn) error {
		if _, err := txn.Get(keyAccount(id)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return account.ErrAccountNotFound
			}
			return fmt.Errorf("failed to check account: %w", err)
		}
		if err := txn.Delete(keyAccount(id)); err != nil {
			return fmt.Errorf("failed to delete account: %w", err)
		}
		return nil
	})
}

func (s *BadgerAccountStore) ListAccounts(ctx context.Context) ([]*account.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var result []*account.Account
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixAccount)
		it := txn.NewIterator(opts)
		defer it.Close()

		// Keys iterate in byte order, so results are already sorted by id
		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var acc *account.Account
			err := it.Item().Value(func(val []byte) error {
				var err error
				acc, err = decodeAccount(val)
				return err
			})
			if err != nil {
				return err
			}
			result = append(result, acc)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = []*account.Account{}
	}
	return result, nil
}

// Close closes the BadgerDB database. The store must not be used afterwards.
func (s *BadgerAccountStore) Close() error {
	return s.db.Close()
}

// retry runs fn in a read-write transaction, retrying on optimistic conflicts.
func (s *BadgerAccountStore) retry(ctx context.Context, fn func(txn *badger.Txn) error) error {
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.db.Update(fn)
		if errors.Is(err, badger.ErrConflict) {
			continue
		}
		return err
	}
	return fmt.Errorf("account update aborted after %d conflicting attempts: %w", maxConflictRetries, badger.ErrConflict)
}

func getAccount(txn *badger.Txn, id string) (*account.Account, error) {
	item, err := txn.Get(keyAccount(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, account.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	var acc *account.Account
	err = item.Value(func(val []byte) error {
		var err error
		acc, err = decodeAccount(val)
		return err
	})
	if err != nil {
		return nil, err
	}
	return acc, nil
}

func putAccount(txn *badger.Txn, acc *account.Account) error {
	data, err := encodeAccount(acc)
	if err != nil {
		return err
	}
	if err := txn.Set(keyAccount(acc.ID), data); err != nil {
		return fmt.Errorf("failed to store account: %w", err)
	}
	return nil
}

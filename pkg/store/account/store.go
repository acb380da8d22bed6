// Package account defines the persistence contract for homefs accounts.
//
// An account couples a credential hash with a quota record. The quota layer
// (pkg/quota) enforces limits on top of this contract; stores only guarantee that
// each mutation is atomic per account and durable before it returns.
package account

import (
	"context"
	"errors"
)

var (
	// ErrAccountNotFound is returned when the requested account does not exist.
	ErrAccountNotFound = errors.New("account not found")

	// ErrAccountExists is returned by CreateAccount when the id is taken.
	ErrAccountExists = errors.New("account already exists")

	// ErrCorrupt is returned when persisted account data cannot be decoded.
	ErrCorrupt = errors.New("account data corrupt")
)

// Account is the persisted record of a single user.
type Account struct {
	// ID is the unique, immutable account identifier
	ID string `json:"id"`

	// PasswordHash is the encoded argon2id digest (see internal/credential)
	PasswordHash string `json:"password_hash"`

	// LimitBytes is the quota limit in bytes
	LimitBytes uint64 `json:"limit"`

	// UsageBytes is the number of bytes currently reserved by the account's files
	UsageBytes uint64 `json:"usage"`
}

// UpdateFunc mutates an account in place. Returning an error aborts the update
// and leaves the stored account untouched; the error is returned to the caller.
type UpdateFunc func(acc *Account) error

// Store is the persistence interface implemented by every account backend.
//
// Implementations must be safe for concurrent use. Every method checks the
// context before doing any work and returns ctx.Err() when it is done.
type Store interface {
	// GetAccount returns a copy of the account with the given id.
	// Returns ErrAccountNotFound if it does not exist.
	GetAccount(ctx context.Context, id string) (*Account, error)

	// CreateAccount persists a new account.
	// Returns ErrAccountExists if the id is already taken.
	CreateAccount(ctx context.Context, acc *Account) error

	// UpdateAccount loads the account, applies fn and persists the result as one
	// atomic step: no concurrent UpdateAccount on the same id can observe or
	// overwrite an intermediate state.
	// Returns ErrAccountNotFound if it does not exist, or the error returned by fn.
	UpdateAccount(ctx context.Context, id string, fn UpdateFunc) (*Account, error)

	// DeleteAccount removes the account.
	// Returns ErrAccountNotFound if it does not exist.
	DeleteAccount(ctx context.Context, id string) error

	// ListAccounts returns all accounts sorted by id.
	ListAccounts(ctx context.Context) ([]*Account, error)

	// Close releases resources held by the store.
	Close() error
}

// Clone returns a deep copy of acc.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	return &c
}

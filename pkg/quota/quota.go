// Package quota enforces per-account byte budgets and verifies credentials on
// top of an account.Store.
//
// All sizes crossing the package boundary as float64 are megabytes (MB =
// 1024*1024 bytes); Reserve and Release work in bytes. Every mutation goes
// through account.Store.UpdateAccount, so the check-and-increment of Reserve is
// a single atomic step in every backend and is durable before it returns.
package quota

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/marmos91/homefs/internal/credential"
	"github.com/marmos91/homefs/internal/logger"
	"github.com/marmos91/homefs/pkg/fserr"
	"github.com/marmos91/homefs/pkg/store/account"
	"github.com/marmos91/homefs/pkg/store/content"
)

const (
	// MB is the number of bytes in one megabyte.
	MB = 1024 * 1024

	// AdminID is the reserved administrative account id.
	AdminID = "admin"

	// DefaultQuotaMB is the limit assigned when registration does not specify one.
	DefaultQuotaMB = 100

	// AdminLimitMB is the nominal limit recorded for the admin account.
	// Reserve never checks it: the admin is unlimited.
	AdminLimitMB = 100000

	// DefaultAdminPassword is the bootstrap credential used when none is configured.
	DefaultAdminPassword = "admin"
)

// Usage is a read-only projection of an account's quota in megabytes.
type Usage struct {
	UserID  string  `json:"user_id"`
	UsageMB float64 `json:"usage_mb"`
	LimitMB float64 `json:"limit_mb"`
}

// Config configures a Store.
type Config struct {
	// DefaultQuotaMB is the limit for accounts created without one (default 100)
	DefaultQuotaMB float64
}

// Store is the authoritative quota and credential service.
type Store struct {
	accounts       account.Store
	defaultQuotaMB float64
}

// New creates a quota Store over accounts.
func New(accounts account.Store, cfg Config) *Store {
	def := cfg.DefaultQuotaMB
	if def <= 0 {
		def = DefaultQuotaMB
	}
	return &Store{accounts: accounts, defaultQuotaMB: def}
}

// ToBytes converts megabytes to bytes, truncating fractions of a byte.
func ToBytes(mb float64) uint64 {
	return uint64(mb * MB)
}

// ToMB converts bytes to megabytes.
func ToMB(b uint64) float64 {
	return float64(b) / MB
}

// ValidMB reports whether mb is a usable, non-negative size.
func ValidMB(mb float64) bool {
	return !math.IsNaN(mb) && !math.IsInf(mb, 0) && mb >= 0 && mb*MB < math.MaxInt64
}

// IsAdmin reports whether id is the administrative account.
func IsAdmin(id string) bool {
	return id == AdminID
}

// DefaultLimitMB returns the limit assigned when registration does not specify one.
func (s *Store) DefaultLimitMB() float64 {
	return s.defaultQuotaMB
}

// CreateAccount registers a new account and returns the assigned limit in MB.
//
// Parameters:
//   - id: Account id; must be a valid physical home name and not "admin"
//   - password: Plaintext password, hashed before it is stored
//   - limitMB: Optional limit; nil selects the default quota
//
// Returns:
//   - float64: The assigned limit in MB
//   - error: ReservedName, DuplicateAccount, InvalidArgument or a storage error
func (s *Store) CreateAccount(ctx context.Context, id, password string, limitMB *float64) (float64, error) {
	if IsAdmin(id) {
		return 0, fserr.New(fserr.CodeReservedName, "the admin account name is reserved", id)
	}
	if err := content.ValidateOwner(id); err != nil {
		return 0, fserr.Wrap(fserr.CodeInvalidArgument, err, "invalid user id", id)
	}
	if password == "" {
		return 0, fserr.New(fserr.CodeInvalidArgument, "password must not be empty", id)
	}

	assigned := s.defaultQuotaMB
	if limitMB != nil {
		if !ValidMB(*limitMB) {
			return 0, fserr.New(fserr.CodeInvalidArgument, fmt.Sprintf("invalid quota %v MB", *limitMB), id)
		}
		assigned = *limitMB
	}

	if err := s.create(ctx, id, password, ToBytes(assigned)); err != nil {
		return 0, err
	}

	logger.Info("Account %s created with %.2f MB quota", id, assigned)
	return assigned, nil
}

func (s *Store) create(ctx context.Context, id, password string, limit uint64) error {
	hash, err := credential.Hash(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	err = s.accounts.CreateAccount(ctx, &account.Account{
		ID:           id,
		PasswordHash: hash,
		LimitBytes:   limit,
	})
	if errors.Is(err, account.ErrAccountExists) {
		return fserr.New(fserr.CodeDuplicateAccount, "account already exists", id)
	}
	if err != nil {
		return fmt.Errorf("failed to create account %s: %w", id, err)
	}
	return nil
}

// Bootstrap creates the admin account if it does not exist yet.
// Returns true when the account was created.
func (s *Store) Bootstrap(ctx context.Context, adminPassword string) (bool, error) {
	if adminPassword == "" {
		adminPassword = DefaultAdminPassword
	}

	_, err := s.accounts.GetAccount(ctx, AdminID)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, account.ErrAccountNotFound) {
		return false, fmt.Errorf("failed to look up admin account: %w", err)
	}

	err = s.create(ctx, AdminID, adminPassword, ToBytes(AdminLimitMB))
	if errors.Is(err, fserr.ErrDuplicateAccount) {
		// Lost a race with another bootstrapper
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if adminPassword == DefaultAdminPassword {
		logger.Warn("Admin account bootstrapped with the default password; change accounts.admin_password")
	} else {
		logger.Info("Admin account bootstrapped")
	}
	return true, nil
}

// VerifyCredentials reports whether password matches the stored credential.
//
// Accounts migrated from plaintext stores are accepted once and rehashed in place.
// Returns UnknownUser if the account does not exist.
func (s *Store) VerifyCredentials(ctx context.Context, id, password string) (bool, error) {
	acc, err := s.get(ctx, id)
	if err != nil {
		return false, err
	}

	if credential.IsHash(acc.PasswordHash) {
		ok, err := credential.Verify(acc.PasswordHash, password)
		if err != nil {
			return false, fmt.Errorf("failed to verify credentials for %s: %w", id, err)
		}
		return ok, nil
	}

	if !legacyMatch(acc.PasswordHash, password) {
		return false, nil
	}

	if err := s.upgradeCredential(ctx, id, acc.PasswordHash, password); err != nil {
		logger.Warn("Failed to rehash legacy credential for %s: %v", id, err)
	}
	return true, nil
}

func (s *Store) upgradeCredential(ctx context.Context, id, legacy, password string) error {
	hash, err := credential.Hash(password)
	if err != nil {
		return err
	}
	_, err = s.accounts.UpdateAccount(ctx, id, func(acc *account.Account) error {
		// Only replace the exact legacy value we verified against
		if acc.PasswordHash == legacy {
			acc.PasswordHash = hash
		}
		return nil
	})
	if err == nil {
		logger.Info("Rehashed legacy credential for %s", id)
	}
	return err
}

// Reserve atomically checks usage+bytes <= limit and adds bytes to usage.
// The admin account always succeeds without recording usage.
func (s *Store) Reserve(ctx context.Context, id string, bytes uint64) error {
	if IsAdmin(id) {
		return nil
	}

	var before uint64
	updated, err := s.accounts.UpdateAccount(ctx, id, func(acc *account.Account) error {
		before = acc.UsageBytes
		if bytes > acc.LimitBytes || acc.UsageBytes > acc.LimitBytes-bytes {
			remaining := uint64(0)
			if acc.LimitBytes > acc.UsageBytes {
				remaining = acc.LimitBytes - acc.UsageBytes
			}
			return fserr.New(fserr.CodeQuotaExceeded, fmt.Sprintf(
				"quota exceeded (%.2f MB / %.2f MB used, %.2f MB available, %.2f MB requested)",
				ToMB(acc.UsageBytes), ToMB(acc.LimitBytes), ToMB(remaining), ToMB(bytes)), id)
		}
		acc.UsageBytes += bytes
		return nil
	})
	if err != nil {
		return s.mapErr(id, err)
	}

	logger.Debug("Usage of %s: %.2f MB -> %.2f MB", id, ToMB(before), ToMB(updated.UsageBytes))
	return nil
}

// Release subtracts bytes from usage, floored at zero.
// Releasing against an unknown account is a no-op.
func (s *Store) Release(ctx context.Context, id string, bytes uint64) error {
	if IsAdmin(id) || bytes == 0 {
		return nil
	}

	_, err := s.accounts.UpdateAccount(ctx, id, func(acc *account.Account) error {
		if bytes > acc.UsageBytes {
			logger.Debug("Release of %d bytes for %s exceeds usage %d; flooring at zero", bytes, id, acc.UsageBytes)
			acc.UsageBytes = 0
			return nil
		}
		acc.UsageBytes -= bytes
		return nil
	})
	if errors.Is(err, account.ErrAccountNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to release quota for %s: %w", id, err)
	}
	return nil
}

// SetLimit changes the account's limit. Rejects limits below current usage.
func (s *Store) SetLimit(ctx context.Context, id string, newLimitMB float64) error {
	if !ValidMB(newLimitMB) {
		return fserr.New(fserr.CodeInvalidArgument, fmt.Sprintf("invalid quota %v MB", newLimitMB), id)
	}
	newLimit := ToBytes(newLimitMB)

	_, err := s.accounts.UpdateAccount(ctx, id, func(acc *account.Account) error {
		if acc.UsageBytes > newLimit {
			return fserr.New(fserr.CodeLimitBelowUsage, fmt.Sprintf(
				"new quota (%.2f MB) cannot be below current usage (%.2f MB)",
				newLimitMB, ToMB(acc.UsageBytes)), id)
		}
		acc.LimitBytes = newLimit
		return nil
	})
	if err != nil {
		return s.mapErr(id, err)
	}

	logger.Info("Quota of %s set to %.2f MB", id, newLimitMB)
	return nil
}

// GetUsage returns the account's usage and limit in MB.
func (s *Store) GetUsage(ctx context.Context, id string) (Usage, error) {
	acc, err := s.get(ctx, id)
	if err != nil {
		return Usage{}, err
	}
	return usageOf(acc), nil
}

// DeleteAccount removes the credential and quota record.
func (s *Store) DeleteAccount(ctx context.Context, id string) error {
	if err := s.accounts.DeleteAccount(ctx, id); err != nil {
		return s.mapErr(id, err)
	}
	logger.Info("Account %s deleted", id)
	return nil
}

// Exists reports whether an account exists.
func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	_, err := s.accounts.GetAccount(ctx, id)
	if errors.Is(err, account.ErrAccountNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up account %s: %w", id, err)
	}
	return true, nil
}

// ListAccounts returns the usage of every account, sorted by id.
func (s *Store) ListAccounts(ctx context.Context) ([]Usage, error) {
	accounts, err := s.accounts.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	result := make([]Usage, 0, len(accounts))
	for _, acc := range accounts {
		result = append(result, usageOf(acc))
	}
	return result, nil
}

// PruneHooks lets the caller serialize pruning with its own per-user work.
type PruneHooks struct {
	// HasHome reports whether the physical home of id exists. Required.
	HasHome func(ctx context.Context, id string) (bool, error)

	// Lock, when set, is held around the check and delete of each account.
	Lock func(id string) (unlock func())

	// Pruned, when set, runs for each removed account with its lock still held.
	Pruned func(id string)
}

// PruneOrphans deletes every non-admin account whose physical home is gone
// and returns the removed ids. Accounts whose home cannot be checked are kept.
// Each candidate is re-read under hooks.Lock before HasHome is consulted.
func (s *Store) PruneOrphans(ctx context.Context, hooks PruneHooks) ([]string, error) {
	accounts, err := s.accounts.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	var removed []string
	for _, acc := range accounts {
		if IsAdmin(acc.ID) {
			continue
		}

		ok, err := s.pruneOne(ctx, acc.ID, hooks)
		if err != nil {
			return removed, err
		}
		if ok {
			removed = append(removed, acc.ID)
		}
	}

	if len(removed) > 0 {
		logger.Info("Pruned %d orphaned accounts", len(removed))
	}
	return removed, nil
}

func (s *Store) pruneOne(ctx context.Context, id string, hooks PruneHooks) (bool, error) {
	if hooks.Lock != nil {
		unlock := hooks.Lock(id)
		defer unlock()
	}

	if _, err := s.accounts.GetAccount(ctx, id); err != nil {
		if errors.Is(err, account.ErrAccountNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to load account %s: %w", id, err)
	}

	ok, err := hooks.HasHome(ctx, id)
	if err != nil {
		logger.Warn("Cannot check home of %s, keeping account: %v", id, err)
		return false, nil
	}
	if ok {
		return false, nil
	}

	logger.Warn("Physical home of %s is gone, removing account", id)
	if err := s.accounts.DeleteAccount(ctx, id); err != nil {
		if errors.Is(err, account.ErrAccountNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to prune account %s: %w", id, err)
	}
	if hooks.Pruned != nil {
		hooks.Pruned(id)
	}
	return true, nil
}

func (s *Store) get(ctx context.Context, id string) (*account.Account, error) {
	acc, err := s.accounts.GetAccount(ctx, id)
	if err != nil {
		return nil, s.mapErr(id, err)
	}
	return acc, nil
}

// mapErr translates store errors into fserr codes; domain errors pass through.
func (s *Store) mapErr(id string, err error) error {
	var fe *fserr.Error
	switch {
	case errors.As(err, &fe):
		return err
	case errors.Is(err, account.ErrAccountNotFound):
		return fserr.New(fserr.CodeUnknownUser, "unknown user", id)
	default:
		return fmt.Errorf("account %s: %w", id, err)
	}
}

func usageOf(acc *account.Account) Usage {
	return Usage{
		UserID:  acc.ID,
		UsageMB: ToMB(acc.UsageBytes),
		LimitMB: ToMB(acc.LimitBytes),
	}
}

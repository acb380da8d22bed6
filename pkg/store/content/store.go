// Package content defines the physical storage contract behind homefs home
// directories.
//
// Content is addressed by (owner, base name). Each owner has one flat home
// container; stores map it onto a directory (<root>/<owner>_home), an in-memory
// map, or an S3 key prefix. The virtual filesystem engine never sees physical
// paths, only IDs.
package content

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrContentNotFound is returned when the addressed object does not exist.
	ErrContentNotFound = errors.New("content not found")

	// ErrHomeNotFound is returned when the owner's home container does not exist.
	ErrHomeNotFound = errors.New("home not found")

	// ErrInvalidID is returned for owner or names that cannot be mapped safely
	// onto physical storage.
	ErrInvalidID = errors.New("invalid content id")
)

// HomeSuffix is appended to the owner id to form the physical home name.
const HomeSuffix = "_home"

// ID addresses one physical object.
type ID struct {
	// Owner is the account id owning the home container
	Owner string

	// Name is the base name of the file inside the home
	Name string
}

// String renders the ID as "<owner>_home/<name>" for logs and errors.
func (id ID) String() string {
	return id.Owner + HomeSuffix + "/" + id.Name
}

// Store is the interface implemented by every physical storage backend.
//
// Implementations must be safe for concurrent use. Serializing mutations of a
// single object is the caller's job (the engine holds a per-owner lock).
type Store interface {
	// EnsureHome creates the owner's home container if it is missing.
	EnsureHome(ctx context.Context, owner string) error

	// HomeExists reports whether the owner's home container exists.
	HomeExists(ctx context.Context, owner string) (bool, error)

	// RemoveHome deletes the owner's home and everything in it.
	// Removing a missing home is not an error.
	RemoveHome(ctx context.Context, owner string) error

	// ListHome returns the sorted names of the non-hidden objects in the home.
	// Returns ErrHomeNotFound if the home does not exist.
	ListHome(ctx context.Context, owner string) ([]string, error)

	// Create writes a new object, replacing any existing one.
	// Returns ErrHomeNotFound if the home does not exist.
	Create(ctx context.Context, id ID, data []byte) error

	// Append adds data at the end of an existing object.
	// Returns ErrContentNotFound if the object does not exist.
	Append(ctx context.Context, id ID, data []byte) error

	// Overwrite replaces the content of an existing object.
	// Returns ErrContentNotFound if the object does not exist.
	Overwrite(ctx context.Context, id ID, data []byte) error

	// Truncate empties an existing object.
	// Returns ErrContentNotFound if the object does not exist.
	Truncate(ctx context.Context, id ID) error

	// Read returns the full content of an object.
	// Returns ErrContentNotFound if the object does not exist.
	Read(ctx context.Context, id ID) ([]byte, error)

	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, id ID) error

	// Exists reports whether the object exists.
	Exists(ctx context.Context, id ID) (bool, error)

	// Close releases resources held by the store.
	Close() error
}

// ValidateOwner checks that owner can be used as a physical home name.
func ValidateOwner(owner string) error {
	if err := validateElement(owner); err != nil {
		return fmt.Errorf("%w: owner %q: %v", ErrInvalidID, owner, err)
	}
	return nil
}

// ValidateID checks that both parts of id can be used as physical names.
// Hidden names are rejected: they are reserved for store bookkeeping and are
// skipped by ListHome.
func ValidateID(id ID) error {
	if err := ValidateOwner(id.Owner); err != nil {
		return err
	}
	if err := validateElement(id.Name); err != nil {
		return fmt.Errorf("%w: name %q: %v", ErrInvalidID, id.Name, err)
	}
	return nil
}

// IsHidden reports whether name is a hidden entry.
func IsHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

func validateElement(s string) error {
	switch {
	case s == "":
		return errors.New("empty")
	case IsHidden(s):
		return errors.New("hidden names are reserved")
	case strings.ContainsAny(s, "/\\\x00"):
		return errors.New("contains a path separator or NUL")
	case len(s) > 255:
		return errors.New("longer than 255 bytes")
	}
	return nil
}

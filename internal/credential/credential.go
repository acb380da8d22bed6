// Package credential hashes and verifies account passwords with argon2id.
//
// Hashes are self-describing strings of the form
//
//	argon2id$<base64 salt>$<base64 key>
//
// so they can be stored as a single column or JSON field by every account backend.
package credential

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	scheme = "argon2id"

	saltLen = 16
	keyLen  = 32

	timeCost   = 1
	memoryCost = 64 * 1024
	threads    = 4
)

// ErrMalformedHash is returned when a stored hash cannot be parsed.
var ErrMalformedHash = errors.New("malformed credential hash")

var encoding = base64.RawStdEncoding

// Hash derives an argon2id key from password using a fresh random salt.
func Hash(password string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	return encode(salt, derive(password, salt)), nil
}

// Verify reports whether password matches the encoded hash.
// The comparison runs in constant time with respect to the derived key.
func Verify(encoded, password string) (bool, error) {
	salt, key, err := decode(encoded)
	if err != nil {
		return false, err
	}
	candidate := derive(password, salt)
	return subtle.ConstantTimeCompare(key, candidate) == 1, nil
}

// IsHash reports whether s looks like a hash produced by Hash.
// Used to migrate plaintext credentials found in legacy account files.
func IsHash(s string) bool {
	_, _, err := decode(s)
	return err == nil
}

func derive(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, timeCost, memoryCost, threads, keyLen)
}

func encode(salt, key []byte) string {
	return scheme + "$" + encoding.EncodeToString(salt) + "$" + encoding.EncodeToString(key)
}

func decode(encoded string) (salt, key []byte, err error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 3 || parts[0] != scheme {
		return nil, nil, ErrMalformedHash
	}

	salt, err = encoding.DecodeString(parts[1])
	if err != nil || len(salt) == 0 {
		return nil, nil, ErrMalformedHash
	}

	key, err = encoding.DecodeString(parts[2])
	if err != nil || len(key) != keyLen {
		return nil, nil, ErrMalformedHash
	}

	return salt, key, nil
}

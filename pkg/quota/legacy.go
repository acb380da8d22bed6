package quota

import "crypto/subtle"

// legacyMatch compares a plaintext credential inherited from an older account
// file. The stored value is rehashed after the first successful match.
func legacyMatch(stored, password string) bool {
	if stored == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(password)) == 1
}

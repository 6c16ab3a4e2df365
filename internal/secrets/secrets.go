// Package secrets generates and compares the opaque bearer credentials used
// on both the inbound and outbound webhook legs.
package secrets

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
)

// 24 random bytes encode to a 32-character base64url token (192 bits of
// entropy). URL-safe with no padding, so it survives headers and URL paths.
const secretBytes = 24

func New() string {
	b := make([]byte, secretBytes)
	if _, err := rand.Read(b); err != nil {
		panic("secrets: crypto/rand unavailable: " + err.Error())
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

// Equal compares a stored secret against a presented one without leaking
// the position of the first mismatching byte. The presented value is
// attacker-controlled on every inbound request.
func Equal(stored, presented string) bool {
	if len(stored) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(presented)) == 1
}

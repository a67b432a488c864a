// Package idgen provides cryptographically random ID generation.
package idgen

import (
	"crypto/rand"
	"encoding/hex"
)

const alphanum = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// EntityIDLength is the length of entity identifiers (quotes, products,
// payment links) exposed to API callers.
const EntityIDLength = 10

// NewEntityID generates an opaque 10-character alphanumeric identifier.
func NewEntityID() string {
	return Alnum(EntityIDLength)
}

// Alnum generates a random alphanumeric string of the given length.
func Alnum(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	for i := range b {
		b[i] = alphanum[int(b[i])%len(alphanum)]
	}
	return string(b)
}

// WithPrefix generates a random ID with a prefix (e.g. "txn_", "ntf_").
// Result is prefix + 24 hex chars (12 random bytes).
func WithPrefix(prefix string) string {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return prefix + hex.EncodeToString(b)
}

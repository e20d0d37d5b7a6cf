// Package util holds the minimal helper interfaces the core consumes for
// concerns explicitly out of scope in spec.md §1(f): UUID and random-byte
// generation (there are no base64 or hex helpers here; callers use the
// standard library directly). Implementations are thin wrappers around
// the standard library and google/uuid; callers needing a different
// source (e.g. deterministic bytes in a test) satisfy these interfaces
// directly rather than patching global state, except where §9 calls for
// a documented process-scope singleton (see RandSource below).
package util

import "crypto/rand"

// RandSource produces cryptographically random bytes. The SASL engine
// depends on this interface rather than crypto/rand directly, so tests can
// inject deterministic bytes.
type RandSource interface {
	Read(p []byte) (n int, err error)
}

// SystemRand is the default RandSource, backed by crypto/rand.
var SystemRand RandSource = cryptoRandSource{}

type cryptoRandSource struct{}

func (cryptoRandSource) Read(p []byte) (int, error) { return rand.Read(p) }

// RandomBytes returns n cryptographically random bytes read from src.
func RandomBytes(src RandSource, n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := src.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

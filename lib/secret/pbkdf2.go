// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"crypto/sha512"

	"golang.org/x/crypto/pbkdf2"
)

// MasterSecretSize is the size in bytes of the master secret derived
// by DeriveMasterSecret: 32 bytes of AES-256-GCM key followed by 16
// bytes of IV.
const MasterSecretSize = 48

// pbkdf2Iterations matches the wire-format contract used by the
// Secret backend wrapper: HMAC-SHA-512, 1000 iterations, 48-byte
// output. This is a fixed protocol parameter, not configurable —
// changing it would make previously written blobs undecryptable.
const pbkdf2Iterations = 1000

// DeriveMasterSecret derives a 48-byte master secret from password and
// salt via PBKDF2-HMAC-SHA-512 with 1000 iterations. The result is
// returned as a guarded Buffer: bytes [0:32) are the AES-256-GCM key,
// bytes [32:48) are the IV.
func DeriveMasterSecret(password, salt string) (*Buffer, error) {
	derived := pbkdf2.Key([]byte(password), []byte(salt), pbkdf2Iterations, MasterSecretSize, sha512.New)
	return NewFromBytes(derived)
}

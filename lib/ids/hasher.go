// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ids

import (
	"crypto/sha512"
	"encoding/hex"
	"hash"
)

// StreamHasher incrementally computes the ContentId of a byte stream
// too large, or not yet fully available, to hash in one call. It
// implements io.Writer so it can sit in an io.TeeReader alongside a
// WriteStream call, computing the digest as bytes flow through.
type StreamHasher struct {
	h hash.Hash
}

// NewStreamHasher returns a StreamHasher ready to accept writes.
func NewStreamHasher() *StreamHasher {
	return &StreamHasher{h: sha512.New()}
}

// Write feeds data into the running digest. It never returns an error.
func (s *StreamHasher) Write(data []byte) (int, error) {
	return s.h.Write(data)
}

// Sum returns the ContentId of everything written so far. Calling Sum
// does not reset the running digest.
func (s *StreamHasher) Sum() ContentId {
	return ContentId(hex.EncodeToString(s.h.Sum(nil)))
}

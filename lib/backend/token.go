// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package backend

import "errors"

// ErrWrongBackend is returned by ConflictToken.Value when the caller
// presents a backend other than the one that minted the token. Tokens
// are non-transferable between backends by design.
var ErrWrongBackend = errors.New("backend: conflict token was not minted by this backend")

// ConflictToken is an opaque witness of a prior read of some resource's
// hash. It carries the backend instance that minted it and a string
// value (the hash/ETag observed at mint time). Only the minting backend
// may read the value back out — this is the runtime enforcement of the
// "abstract type readable only by the minting backend" design note: a
// caller cannot forge a token for a backend it does not hold, and
// cannot pass a token minted by one backend into another.
//
// A nil *ConflictToken is a valid value meaning "no token": callers use
// it for the "resource must not currently exist" branch of Write's CAS
// rule.
type ConflictToken struct {
	mintedBy Backend
	value    string
}

// NewConflictToken constructs a token minted by b with the given value.
// Backend implementations call this from Token; it
// is not meant to be called by frontend or application code, which
// only ever holds tokens returned from a Backend.
func NewConflictToken(b Backend, value string) *ConflictToken {
	return &ConflictToken{mintedBy: b, value: value}
}

// Value returns the token's underlying string value if witness is the
// backend that minted the token. Any other backend — including nil —
// gets ErrWrongBackend.
func (t *ConflictToken) Value(witness Backend) (string, error) {
	if t == nil {
		return "", nil
	}
	if witness != t.mintedBy {
		return "", ErrWrongBackend
	}
	return t.value, nil
}

// MintedBy reports whether b is the backend that minted t. A nil token
// is considered minted by no backend and reports false for any b.
func (t *ConflictToken) MintedBy(b Backend) bool {
	if t == nil {
		return false
	}
	return t.mintedBy == b
}

// RewrapToken re-mints token as though minted by to instead of from.
// Codec wrapper backends (Compression, Secret, Asymmetric) forward
// Token/Write/Delete to an inner backend, but callers only ever hold
// tokens minted by the wrapper itself — so the wrapper must translate
// an inner-minted token to its own identity on the way out of Token,
// and translate it back on the way into Write and Delete. A nil token
// rewraps to nil.
func RewrapToken(token *ConflictToken, from, to Backend) (*ConflictToken, error) {
	if token == nil {
		return nil, nil
	}
	value, err := token.Value(from)
	if err != nil {
		return nil, err
	}
	return NewConflictToken(to, value), nil
}

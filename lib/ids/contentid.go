// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ids

import (
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"regexp"
)

// ContentId is a lowercase hex SHA-512 digest, 128 characters long, or
// the same digest prefixed with "-" to mark a name identifier — a slot
// address derived from a name string rather than from stored content.
type ContentId string

var contentIdPattern = regexp.MustCompile(`^-?[0-9a-f]{128}$`)

// Validate reports whether id has the correct length and character set.
// It does not (and cannot) verify that a content-derived id actually
// matches any stored bytes — that is the backend's job.
func (id ContentId) Validate() error {
	if !contentIdPattern.MatchString(string(id)) {
		return fmt.Errorf("ids: invalid content id %q", string(id))
	}
	return nil
}

// IsNameIdentifier reports whether id was derived from a name string via
// [NameId] rather than from stored content.
func (id ContentId) IsNameIdentifier() bool {
	return len(id) > 0 && id[0] == '-'
}

// Path returns the sharded directory path for id: the first six hex
// characters of the digest become six one-character directory levels,
// and the full id is the final path component, joined with "/". This is
// the layout the Files backend uses on disk and the Bucket backend uses
// as its object key suffix.
func (id ContentId) Path() (string, error) {
	if err := id.Validate(); err != nil {
		return "", err
	}
	digest := string(id)
	if id.IsNameIdentifier() {
		digest = digest[1:]
	}
	if len(digest) < 6 {
		return "", fmt.Errorf("ids: content id too short to shard: %q", string(id))
	}
	return fmt.Sprintf("%c/%c/%c/%c/%c/%c/%s",
		digest[0], digest[1], digest[2], digest[3], digest[4], digest[5], string(id)), nil
}

// ContentIdFromBytes computes the ContentId of data: the lowercase hex
// SHA-512 digest of the bytes exactly as stored.
func ContentIdFromBytes(data []byte) ContentId {
	sum := sha512.Sum512(data)
	return ContentId(hex.EncodeToString(sum[:]))
}

// Sha512Hex returns the lowercase hex SHA-512 digest of data. It is the
// same computation as [ContentIdFromBytes] but returns a plain string,
// used where the result is not itself a content id (e.g. NameId).
func Sha512Hex(data []byte) string {
	sum := sha512.Sum512(data)
	return hex.EncodeToString(sum[:])
}

// NameId returns the deterministic name identifier for the name string
// n: a "-" followed by the SHA-512 hex digest of n. The name identifier
// is the address of the mutable pointer slot that holds the current tag
// record's ContentId for n.
func NameId(n string) ContentId {
	return ContentId("-" + Sha512Hex([]byte(n)))
}

// ParseContentId validates and returns s as a ContentId.
func ParseContentId(s string) (ContentId, error) {
	id := ContentId(s)
	if err := id.Validate(); err != nil {
		return "", err
	}
	return id, nil
}

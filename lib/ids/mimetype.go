// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ids

import (
	"fmt"
	"regexp"
)

// MimeType is a validated MIME type string, e.g. "text/plain" or
// "application/json; charset=utf-8".
type MimeType string

var mimeTypePattern = regexp.MustCompile(`^[\w|-]+/[\w|-]+(?:;\s\w+=[\w-]+)*$`)

// Common MimeType values used throughout the backend and frontend
// layers.
const (
	// OctetStream is the default type for content with no declared
	// structure.
	OctetStream MimeType = "application/octet-stream"

	// Text is plain UTF-8 text.
	Text MimeType = "text/plain"

	// JSON is a JSON document, explicitly UTF-8.
	JSON MimeType = "application/json; charset=utf-8"

	// Sha512Pointer marks the tiny blob at a name identifier whose body
	// is the ContentId of the name's current tag record.
	Sha512Pointer MimeType = "text/sha-512"

	// Empty marks a tombstone tag: the name has been deleted.
	Empty MimeType = "application/empty"
)

// Validate reports whether m matches the MIME type grammar.
func (m MimeType) Validate() error {
	if !mimeTypePattern.MatchString(string(m)) {
		return fmt.Errorf("ids: invalid mime type %q", string(m))
	}
	return nil
}

// ParseMimeType validates and returns s as a MimeType.
func ParseMimeType(s string) (MimeType, error) {
	m := MimeType(s)
	if err := m.Validate(); err != nil {
		return "", err
	}
	return m, nil
}

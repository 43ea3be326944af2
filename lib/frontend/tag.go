// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package frontend

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/casvault/cas/lib/ids"
)

// Tag is the immutable, content-addressed record of one version of a
// named entity. Tag records are pushed as JSON blobs and never
// rewritten; history is a chain formed by Pre pointing at the
// ContentId of the preceding tag record. A nil Pre marks the first
// tag ever written for a name; a nil Cid marks a tombstone (the name
// was deleted).
//
// This is a content-addressed pointer-and-chain design, used in place
// of a direct name→hash map so that every version of a name stays
// reachable and the current tag can be swapped atomically by a single
// pointer-slot write.
type Tag struct {
	Name string
	Cid  *ids.ContentId
	Type ids.MimeType
	Date time.Time
	Pre  *ids.ContentId
}

// tagWire is Tag's JSON wire shape. Date is milliseconds since the
// Unix epoch rather than Go's default RFC 3339 string, so non-Go
// readers of a tag record get a plain number.
type tagWire struct {
	Name string         `json:"name"`
	Cid  *ids.ContentId `json:"cid"`
	Type ids.MimeType   `json:"type"`
	Date int64          `json:"date"`
	Pre  *ids.ContentId `json:"pre"`
}

// MarshalJSON encodes Date as milliseconds since the Unix epoch.
func (t Tag) MarshalJSON() ([]byte, error) {
	return json.Marshal(tagWire{
		Name: t.Name,
		Cid:  t.Cid,
		Type: t.Type,
		Date: t.Date.UnixMilli(),
		Pre:  t.Pre,
	})
}

// UnmarshalJSON decodes Date from milliseconds since the Unix epoch.
func (t *Tag) UnmarshalJSON(data []byte) error {
	var wire tagWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	t.Name = wire.Name
	t.Cid = wire.Cid
	t.Type = wire.Type
	t.Date = time.UnixMilli(wire.Date).UTC()
	t.Pre = wire.Pre
	return nil
}

// parseTag decodes and validates a JSON tag record. Malformed input
// yields a parse error rather than a partially populated Tag, per the
// "explicit parse-and-validate at every read boundary" design note.
func parseTag(data []byte) (*Tag, error) {
	var tag Tag
	if err := json.Unmarshal(data, &tag); err != nil {
		return nil, fmt.Errorf("frontend: decoding tag record: %w", err)
	}
	if tag.Name == "" {
		return nil, fmt.Errorf("frontend: tag record has no name")
	}
	if tag.Type == "" {
		return nil, fmt.Errorf("frontend: tag record for %q has no type", tag.Name)
	}
	return &tag, nil
}

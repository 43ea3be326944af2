// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ids

import (
	"strings"
	"testing"
)

func TestContentIdFromBytesRoundTrips(t *testing.T) {
	id := ContentIdFromBytes([]byte("Hello, world!"))
	if err := id.Validate(); err != nil {
		t.Fatalf("ContentIdFromBytes produced an invalid id: %v", err)
	}
	if len(id) != 128 {
		t.Fatalf("got id length %d, want 128", len(id))
	}
	if id.IsNameIdentifier() {
		t.Error("content-derived id reported as a name identifier")
	}
}

func TestValidateRejectsBadIds(t *testing.T) {
	tests := []struct {
		name string
		id   ContentId
	}{
		{"too short", ContentId(strings.Repeat("a", 64))},
		{"too long", ContentId(strings.Repeat("a", 200))},
		{"uppercase", ContentId(strings.Repeat("A", 128))},
		{"non-hex", ContentId(strings.Repeat("z", 128))},
		{"empty", ContentId("")},
		{"double hyphen", ContentId("--" + strings.Repeat("a", 127))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.id.Validate(); err == nil {
				t.Errorf("Validate(%q) = nil, want error", string(tt.id))
			}
		})
	}
}

func TestNameIdHasHyphenPrefix(t *testing.T) {
	nid := NameId("doc")
	if !nid.IsNameIdentifier() {
		t.Error("NameId did not produce a name identifier")
	}
	if err := nid.Validate(); err != nil {
		t.Fatalf("NameId produced an invalid id: %v", err)
	}
	if got := NameId("doc"); got != nid {
		t.Error("NameId is not deterministic for the same input")
	}
	if NameId("doc") == NameId("other") {
		t.Error("NameId collided for distinct names")
	}
}

func TestPathShardsBySixHexChars(t *testing.T) {
	id := ContentIdFromBytes([]byte("shard me"))
	path, err := id.Path()
	if err != nil {
		t.Fatalf("Path: %v", err)
	}
	digest := string(id)
	want := string([]byte{digest[0]}) + "/" + string([]byte{digest[1]}) + "/" +
		string([]byte{digest[2]}) + "/" + string([]byte{digest[3]}) + "/" +
		string([]byte{digest[4]}) + "/" + string([]byte{digest[5]}) + "/" + digest
	if path != want {
		t.Errorf("Path() = %q, want %q", path, want)
	}
}

func TestPathRejectsInvalidId(t *testing.T) {
	if _, err := ContentId("not-a-valid-id").Path(); err == nil {
		t.Error("Path() on an invalid id returned no error")
	}
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ids

import "testing"

func TestMimeTypeValidate(t *testing.T) {
	tests := []struct {
		name    string
		value   MimeType
		wantErr bool
	}{
		{"octet-stream", OctetStream, false},
		{"plain text", Text, false},
		{"json with charset", JSON, false},
		{"sha-512 pointer", Sha512Pointer, false},
		{"empty tombstone", Empty, false},
		{"missing slash", "textplain", true},
		{"empty string", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.value.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate(%q) error = %v, wantErr %v", string(tt.value), err, tt.wantErr)
			}
		})
	}
}

func TestParseMimeType(t *testing.T) {
	m, err := ParseMimeType("text/plain")
	if err != nil {
		t.Fatalf("ParseMimeType: %v", err)
	}
	if m != Text {
		t.Errorf("got %q, want %q", m, Text)
	}

	if _, err := ParseMimeType("garbage"); err == nil {
		t.Error("ParseMimeType(garbage) = nil error, want error")
	}
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package backendtest provides a reusable conformance suite that
// exercises the invariants every backend.Backend implementation must
// satisfy. Each backend package's own test
// file constructs a fresh instance and calls RunConformanceSuite
// against it, rather than duplicating the assertions per package.
package backendtest

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/casvault/cas/lib/backend"
	"github.com/casvault/cas/lib/ids"
)

// Factory builds a fresh, empty Backend for a single subtest. Suites
// call it once per test case so tests never share mutable state.
type Factory func(t *testing.T) backend.Backend

// RunConformanceSuite runs the shared backend invariants against
// backends produced by newBackend. Call this from a TestXxx function in
// each backend implementation's package.
func RunConformanceSuite(t *testing.T, newBackend Factory) {
	t.Helper()

	t.Run("AbsentBeforeWrite", func(t *testing.T) { testAbsentBeforeWrite(t, newBackend) })
	t.Run("WriteThenRead", func(t *testing.T) { testWriteThenRead(t, newBackend) })
	t.Run("WrongTokenRejected", func(t *testing.T) { testWrongTokenRejected(t, newBackend) })
	t.Run("CorrectTokenAccepted", func(t *testing.T) { testCorrectTokenAccepted(t, newBackend) })
	t.Run("DeleteRequiresToken", func(t *testing.T) { testDeleteRequiresToken(t, newBackend) })
	t.Run("WriteStreamRoundTrips", func(t *testing.T) { testWriteStreamRoundTrips(t, newBackend) })
	t.Run("Rename", func(t *testing.T) { testRename(t, newBackend) })
	t.Run("NoTokenRequiresAbsence", func(t *testing.T) { testNoTokenRequiresAbsence(t, newBackend) })
}

func testAbsentBeforeWrite(t *testing.T, newBackend Factory) {
	ctx := context.Background()
	b := newBackend(t)
	id := ids.ContentIdFromBytes([]byte("never written"))

	if exists, err := b.Exists(ctx, id); err != nil || exists {
		t.Errorf("Exists = %v, %v; want false, nil", exists, err)
	}
	if tok, err := b.Token(ctx, id); err != nil || tok != nil {
		t.Errorf("Token = %v, %v; want nil, nil", tok, err)
	}
	if typ, ok, err := b.Type(ctx, id); err != nil || ok || typ != "" {
		t.Errorf("Type = %q, %v, %v; want \"\", false, nil", typ, ok, err)
	}
	if hash, ok, err := b.Hash(ctx, id); err != nil || ok || hash != "" {
		t.Errorf("Hash = %q, %v, %v; want \"\", false, nil", hash, ok, err)
	}
	if obj, err := b.Read(ctx, id); err != nil || obj != nil {
		t.Errorf("Read = %v, %v; want nil, nil", obj, err)
	}
}

func testWriteThenRead(t *testing.T, newBackend Factory) {
	ctx := context.Background()
	b := newBackend(t)
	body := []byte("hello, backend")
	id := ids.ContentIdFromBytes(body)

	ok, err := b.Write(ctx, id, body, ids.Text, nil)
	if err != nil || !ok {
		t.Fatalf("Write = %v, %v; want true, nil", ok, err)
	}

	if exists, err := b.Exists(ctx, id); err != nil || !exists {
		t.Errorf("Exists = %v, %v; want true, nil", exists, err)
	}
	obj, err := b.Read(ctx, id)
	if err != nil || obj == nil {
		t.Fatalf("Read = %v, %v; want non-nil, nil", obj, err)
	}
	if !bytes.Equal(obj.Content, body) || obj.Type != ids.Text {
		t.Errorf("Read = %q/%q, want %q/%q", obj.Content, obj.Type, body, ids.Text)
	}
	if typ, ok, err := b.Type(ctx, id); err != nil || !ok || typ != ids.Text {
		t.Errorf("Type = %q, %v, %v; want %q, true, nil", typ, ok, err, ids.Text)
	}
	if hash, ok, err := b.Hash(ctx, id); err != nil || !ok || hash == "" {
		t.Errorf("Hash = %q, %v, %v; want non-empty, true, nil", hash, ok, err)
	}
	tok, err := b.Token(ctx, id)
	if err != nil || tok == nil {
		t.Fatalf("Token = %v, %v; want non-nil, nil", tok, err)
	}

	stream, err := b.ReadStream(ctx, id)
	if err != nil || stream == nil {
		t.Fatalf("ReadStream = %v, %v; want non-nil, nil", stream, err)
	}
	defer stream.Reader.Close()
	got, err := io.ReadAll(stream.Reader)
	if err != nil {
		t.Fatalf("reading stream: %v", err)
	}
	if !bytes.Equal(got, body) {
		t.Errorf("ReadStream concatenation = %q, want %q", got, body)
	}
}

func testWrongTokenRejected(t *testing.T, newBackend Factory) {
	ctx := context.Background()
	b := newBackend(t)
	body := []byte("original")
	id := ids.ContentIdFromBytes(body)

	if ok, err := b.Write(ctx, id, body, ids.Text, nil); err != nil || !ok {
		t.Fatalf("initial write: %v, %v", ok, err)
	}

	wrongToken := backend.NewConflictToken(b, "not-the-real-hash")
	ok, err := b.Write(ctx, id, []byte("replacement"), ids.Text, wrongToken)
	if err != nil {
		t.Fatalf("Write with wrong token: unexpected error %v", err)
	}
	if ok {
		t.Error("Write with wrong token succeeded, want false")
	}

	obj, err := b.Read(ctx, id)
	if err != nil || obj == nil || !bytes.Equal(obj.Content, body) {
		t.Errorf("state mutated after rejected write: %v, %v", obj, err)
	}
}

func testCorrectTokenAccepted(t *testing.T, newBackend Factory) {
	ctx := context.Background()
	b := newBackend(t)
	body := []byte("v1")
	id := ids.ContentIdFromBytes(body)

	if ok, err := b.Write(ctx, id, body, ids.Text, nil); err != nil || !ok {
		t.Fatalf("initial write: %v, %v", ok, err)
	}
	firstToken, err := b.Token(ctx, id)
	if err != nil || firstToken == nil {
		t.Fatalf("Token: %v, %v", firstToken, err)
	}

	replacement := []byte("v2, a different length")
	ok, err := b.Write(ctx, id, replacement, ids.Text, firstToken)
	if err != nil || !ok {
		t.Fatalf("Write with correct token: %v, %v", ok, err)
	}

	secondToken, err := b.Token(ctx, id)
	if err != nil || secondToken == nil {
		t.Fatalf("Token after rewrite: %v, %v", secondToken, err)
	}
	firstValue, _ := firstToken.Value(b)
	secondValue, _ := secondToken.Value(b)
	if firstValue == secondValue {
		t.Error("token value unchanged after a successful CAS write")
	}
}

func testDeleteRequiresToken(t *testing.T, newBackend Factory) {
	ctx := context.Background()
	b := newBackend(t)
	body := []byte("to be deleted")
	id := ids.ContentIdFromBytes(body)

	if ok, err := b.Write(ctx, id, body, ids.Text, nil); err != nil || !ok {
		t.Fatalf("initial write: %v, %v", ok, err)
	}

	wrongToken := backend.NewConflictToken(b, "bogus")
	if ok, err := b.Delete(ctx, id, wrongToken); err != nil || ok {
		t.Errorf("Delete with wrong token = %v, %v; want false, nil", ok, err)
	}

	correctToken, err := b.Token(ctx, id)
	if err != nil || correctToken == nil {
		t.Fatalf("Token: %v, %v", correctToken, err)
	}
	if ok, err := b.Delete(ctx, id, correctToken); err != nil || !ok {
		t.Fatalf("Delete with correct token = %v, %v; want true, nil", ok, err)
	}
	if exists, err := b.Exists(ctx, id); err != nil || exists {
		t.Errorf("Exists after delete = %v, %v; want false, nil", exists, err)
	}
}

func testWriteStreamRoundTrips(t *testing.T, newBackend Factory) {
	ctx := context.Background()
	b := newBackend(t)
	body := []byte("streamed content, round trips exactly")
	id := ids.ContentIdFromBytes(body)

	ok, err := b.WriteStream(ctx, id, bytes.NewReader(body), ids.Text, nil)
	if err != nil || !ok {
		t.Fatalf("WriteStream = %v, %v; want true, nil", ok, err)
	}

	obj, err := b.Read(ctx, id)
	if err != nil || obj == nil {
		t.Fatalf("Read after WriteStream: %v, %v", obj, err)
	}
	if !bytes.Equal(obj.Content, body) || obj.Type != ids.Text {
		t.Errorf("Read after WriteStream = %q/%q, want %q/%q", obj.Content, obj.Type, body, ids.Text)
	}
}

func testRename(t *testing.T, newBackend Factory) {
	ctx := context.Background()
	b := newBackend(t)
	body := []byte("renamed content")
	source := ids.NameId("temp-name-for-rename-test")
	target := ids.ContentIdFromBytes(body)

	if ok, err := b.Write(ctx, source, body, ids.Text, nil); err != nil || !ok {
		t.Fatalf("initial write at source: %v, %v", ok, err)
	}

	ok, err := b.Rename(ctx, source, target)
	if err != nil || !ok {
		t.Fatalf("Rename = %v, %v; want true, nil", ok, err)
	}

	if exists, err := b.Exists(ctx, source); err != nil || exists {
		t.Errorf("Exists(source) after rename = %v, %v; want false, nil", exists, err)
	}
	obj, err := b.Read(ctx, target)
	if err != nil || obj == nil || !bytes.Equal(obj.Content, body) {
		t.Errorf("Read(target) after rename = %v, %v", obj, err)
	}

	if ok, err := b.Rename(ctx, source, target); err != nil || ok {
		t.Errorf("Rename with absent source = %v, %v; want false, nil", ok, err)
	}
}

func testNoTokenRequiresAbsence(t *testing.T, newBackend Factory) {
	ctx := context.Background()
	b := newBackend(t)
	body := []byte("first writer wins")
	id := ids.ContentIdFromBytes(body)

	if ok, err := b.Write(ctx, id, body, ids.Text, nil); err != nil || !ok {
		t.Fatalf("first tokenless write: %v, %v", ok, err)
	}
	// A second tokenless write to the same id must fail: the resource
	// already exists, and nil token means "must not currently exist".
	if ok, err := b.Write(ctx, id, []byte("second writer"), ids.Text, nil); err != nil || ok {
		t.Errorf("second tokenless write = %v, %v; want false, nil", ok, err)
	}
}

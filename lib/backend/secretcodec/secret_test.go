// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package secretcodec

import (
	"bytes"
	"context"
	"testing"

	"github.com/casvault/cas/lib/backend"
	"github.com/casvault/cas/lib/backend/backendtest"
	"github.com/casvault/cas/lib/backend/memory"
	"github.com/casvault/cas/lib/ids"
)

func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	w, err := New(memory.New(), "correct horse battery staple", "test-salt")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { w.Close() })
	return w
}

func TestConformance(t *testing.T) {
	backendtest.RunConformanceSuite(t, func(t *testing.T) backend.Backend {
		return newTestBackend(t)
	})
}

func TestUnderlyingBytesAreEncryptedAtRest(t *testing.T) {
	ctx := context.Background()
	base := memory.New()
	w, err := New(base, "correct horse battery staple", "test-salt")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	body := []byte("the launch codes are 00000000")
	id := ids.ContentIdFromBytes(body)
	if ok, err := w.Write(ctx, id, body, ids.Text, nil); err != nil || !ok {
		t.Fatalf("Write: %v, %v", ok, err)
	}

	raw, err := base.Read(ctx, id)
	if err != nil || raw == nil {
		t.Fatalf("reading base directly: %v, %v", raw, err)
	}
	if bytes.Contains(raw.Content, body) {
		t.Error("plaintext found in underlying stored bytes")
	}
	if !bytes.HasPrefix(raw.Content, []byte(header)) {
		t.Errorf("stored bytes do not start with %q header", header)
	}

	obj, err := w.Read(ctx, id)
	if err != nil || obj == nil || !bytes.Equal(obj.Content, body) {
		t.Fatalf("Read through wrapper did not return original bytes: %v, %v", obj, err)
	}
}

func TestPassThroughWhenHeaderAbsent(t *testing.T) {
	ctx := context.Background()
	base := memory.New()
	w, err := New(base, "correct horse battery staple", "test-salt")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	body := []byte("written directly to the base, never sealed")
	id := ids.ContentIdFromBytes(body)
	if ok, err := base.Write(ctx, id, body, ids.Text, nil); err != nil || !ok {
		t.Fatalf("base.Write: %v, %v", ok, err)
	}

	obj, err := w.Read(ctx, id)
	if err != nil || obj == nil || !bytes.Equal(obj.Content, body) {
		t.Fatalf("Read through wrapper of unsealed bytes = %v, %v; want pass-through of %q", obj, err, body)
	}
}

func TestWrongPasswordFailsToDecrypt(t *testing.T) {
	ctx := context.Background()
	base := memory.New()
	writer, err := New(base, "correct horse battery staple", "test-salt")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer writer.Close()

	body := []byte("only the right password should read this")
	id := ids.ContentIdFromBytes(body)
	if ok, err := writer.Write(ctx, id, body, ids.Text, nil); err != nil || !ok {
		t.Fatalf("Write: %v, %v", ok, err)
	}

	reader, err := New(base, "wrong password entirely", "test-salt")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer reader.Close()

	obj, err := reader.Read(ctx, id)
	if err != nil {
		t.Fatalf("Read with wrong password returned an error, want nil, nil: %v", err)
	}
	if obj != nil {
		t.Error("Read with wrong password returned an object, want nil")
	}
}

func TestTamperedCiphertextFailsToDecrypt(t *testing.T) {
	ctx := context.Background()
	base := memory.New()
	w, err := New(base, "correct horse battery staple", "test-salt")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	body := []byte("tamper with me and see what happens")
	id := ids.ContentIdFromBytes(body)
	if ok, err := w.Write(ctx, id, body, ids.Text, nil); err != nil || !ok {
		t.Fatalf("Write: %v, %v", ok, err)
	}

	raw, err := base.Read(ctx, id)
	if err != nil || raw == nil {
		t.Fatalf("reading base directly: %v, %v", raw, err)
	}
	tampered := append([]byte(nil), raw.Content...)
	tampered[len(tampered)-1] ^= 0xFF
	token, err := base.Token(ctx, id)
	if err != nil || token == nil {
		t.Fatalf("base.Token: %v, %v", token, err)
	}
	if ok, err := base.Write(ctx, id, tampered, ids.Text, token); err != nil || !ok {
		t.Fatalf("overwriting with tampered bytes: %v, %v", ok, err)
	}

	obj, err := w.Read(ctx, id)
	if err != nil {
		t.Fatalf("Read of tampered ciphertext returned an error, want nil, nil: %v", err)
	}
	if obj != nil {
		t.Error("Read of tampered ciphertext returned an object, want nil")
	}
}

func TestStreamRoundTrip(t *testing.T) {
	ctx := context.Background()
	w := newTestBackend(t)
	body := bytes.Repeat([]byte("sealed and streamed "), 500)
	id := ids.ContentIdFromBytes(body)

	ok, err := w.WriteStream(ctx, id, bytes.NewReader(body), ids.Text, nil)
	if err != nil || !ok {
		t.Fatalf("WriteStream: %v, %v", ok, err)
	}

	stream, err := w.ReadStream(ctx, id)
	if err != nil || stream == nil {
		t.Fatalf("ReadStream: %v, %v", stream, err)
	}
	defer stream.Reader.Close()
	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(stream.Reader); err != nil {
		t.Fatalf("reading stream: %v", err)
	}
	if !bytes.Equal(buf.Bytes(), body) {
		t.Error("stream round trip mismatch")
	}
}

func TestTwoWritesOfSameContentProduceDifferentCiphertext(t *testing.T) {
	ctx := context.Background()
	base := memory.New()
	w, err := New(base, "correct horse battery staple", "test-salt")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	body := []byte("same plaintext, different id, different data key")
	idA := ids.NameId("a")
	idB := ids.NameId("b")
	if ok, err := w.Write(ctx, idA, body, ids.Text, nil); err != nil || !ok {
		t.Fatalf("Write A: %v, %v", ok, err)
	}
	if ok, err := w.Write(ctx, idB, body, ids.Text, nil); err != nil || !ok {
		t.Fatalf("Write B: %v, %v", ok, err)
	}

	rawA, err := base.Read(ctx, idA)
	if err != nil || rawA == nil {
		t.Fatalf("reading base A: %v, %v", rawA, err)
	}
	rawB, err := base.Read(ctx, idB)
	if err != nil || rawB == nil {
		t.Fatalf("reading base B: %v, %v", rawB, err)
	}
	if bytes.Equal(rawA.Content, rawB.Content) {
		t.Error("two writes of identical plaintext produced identical ciphertext frames")
	}
}

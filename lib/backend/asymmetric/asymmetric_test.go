// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package asymmetric

import (
	"bytes"
	"context"
	"testing"

	"github.com/casvault/cas/lib/backend"
	"github.com/casvault/cas/lib/backend/backendtest"
	"github.com/casvault/cas/lib/backend/memory"
	"github.com/casvault/cas/lib/ids"
)

func testKeyPair(t *testing.T) *KeyPair {
	t.Helper()
	keys, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	return keys
}

func TestConformance(t *testing.T) {
	keys := testKeyPair(t)
	backendtest.RunConformanceSuite(t, func(t *testing.T) backend.Backend {
		return New(memory.New(), keys)
	})
}

func TestUnderlyingBytesAreEncryptedAtRest(t *testing.T) {
	ctx := context.Background()
	keys := testKeyPair(t)
	base := memory.New()
	w := New(base, keys)

	body := []byte("only the private key holder should read this")
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
	keys := testKeyPair(t)
	base := memory.New()
	w := New(base, keys)

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

func TestWrongPrivateKeyFailsToDecrypt(t *testing.T) {
	ctx := context.Background()
	writerKeys := testKeyPair(t)
	readerKeys := testKeyPair(t)
	base := memory.New()

	writer := New(base, writerKeys)
	body := []byte("sealed for the writer's recipient, not this reader")
	id := ids.ContentIdFromBytes(body)
	if ok, err := writer.Write(ctx, id, body, ids.Text, nil); err != nil || !ok {
		t.Fatalf("Write: %v, %v", ok, err)
	}

	reader := New(base, &KeyPair{Public: readerKeys.Public, Private: readerKeys.Private})
	obj, err := reader.Read(ctx, id)
	if err != nil {
		t.Fatalf("Read with wrong private key returned an error, want nil, nil: %v", err)
	}
	if obj != nil {
		t.Error("Read with wrong private key returned an object, want nil")
	}
}

func TestWriteWithoutPublicKeyFails(t *testing.T) {
	ctx := context.Background()
	keys := testKeyPair(t)
	w := New(memory.New(), &KeyPair{Private: keys.Private})

	id := ids.ContentIdFromBytes([]byte("no public key"))
	if _, err := w.Write(ctx, id, []byte("no public key"), ids.Text, nil); err == nil {
		t.Error("Write without a public key succeeded, want error")
	}
}

func TestReadWithoutPrivateKeyFails(t *testing.T) {
	ctx := context.Background()
	keys := testKeyPair(t)
	base := memory.New()
	writer := New(base, keys)

	body := []byte("sealed content")
	id := ids.ContentIdFromBytes(body)
	if ok, err := writer.Write(ctx, id, body, ids.Text, nil); err != nil || !ok {
		t.Fatalf("Write: %v, %v", ok, err)
	}

	publicOnly := New(base, &KeyPair{Public: keys.Public})
	if _, err := publicOnly.Read(ctx, id); err == nil {
		t.Error("Read without a private key succeeded, want error")
	}
}

func TestStreamRoundTrip(t *testing.T) {
	ctx := context.Background()
	keys := testKeyPair(t)
	w := New(memory.New(), keys)
	body := bytes.Repeat([]byte("sealed and streamed under RSA "), 500)
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

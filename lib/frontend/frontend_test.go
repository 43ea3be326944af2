// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package frontend

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/casvault/cas/lib/backend/memory"
	"github.com/casvault/cas/lib/backend/secretcodec"
	"github.com/casvault/cas/lib/ids"
)

func newTestFrontend(t *testing.T) *Frontend {
	t.Helper()
	f := New(memory.New())
	tick := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}
	return f
}

// S1
func TestPushAndPullRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newTestFrontend(t)

	cid, err := f.Push(ctx, []byte("Hello, world!"), ids.Text)
	if err != nil || cid == "" {
		t.Fatalf("Push: %v, %v", cid, err)
	}

	got, err := f.Pull(ctx, cid)
	if err != nil || string(got) != "Hello, world!" {
		t.Fatalf("Pull = %q, %v; want %q, nil", got, err, "Hello, world!")
	}

	obj, err := f.backend.Read(ctx, cid)
	if err != nil || obj == nil || obj.Type != ids.Text {
		t.Errorf("Read after Push = %v, %v; want type %q", obj, err, ids.Text)
	}
}

func TestPushIsIdempotentInCid(t *testing.T) {
	ctx := context.Background()
	f := newTestFrontend(t)
	body := []byte("same content, twice")

	a, err := f.Push(ctx, body, ids.Text)
	if err != nil || a == "" {
		t.Fatalf("first Push: %v, %v", a, err)
	}
	b, err := f.Push(ctx, body, ids.Text)
	if err != nil || b == "" {
		t.Fatalf("second Push: %v, %v", b, err)
	}
	if a != b {
		t.Errorf("Push not idempotent: %s != %s", a, b)
	}
}

// S4
func TestPushStreamAndPullStream(t *testing.T) {
	ctx := context.Background()
	f := newTestFrontend(t)

	cid, err := f.PushStream(ctx, strings.NewReader("test - data"), ids.Text)
	if err != nil || cid == "" {
		t.Fatalf("PushStream: %v, %v", cid, err)
	}
	want := ids.ContentIdFromBytes([]byte("test - data"))
	if cid != want {
		t.Errorf("PushStream cid = %s, want %s", cid, want)
	}

	stream, err := f.PullStream(ctx, cid)
	if err != nil || stream == nil {
		t.Fatalf("PullStream: %v, %v", stream, err)
	}
	defer stream.Reader.Close()
	buf := make([]byte, 0, 32)
	for {
		chunk := make([]byte, 8)
		n, err := stream.Reader.Read(chunk)
		buf = append(buf, chunk[:n]...)
		if err != nil {
			break
		}
	}
	if string(buf) != "test - data" {
		t.Errorf("PullStream concatenation = %q, want %q", buf, "test - data")
	}
}

// S2
func TestSetThenCASUpdateThenTagHistory(t *testing.T) {
	ctx := context.Background()
	f := newTestFrontend(t)

	if ok, err := f.Set(ctx, "doc", []byte("v1"), ids.Text, nil); err != nil || !ok {
		t.Fatalf("first Set: %v, %v", ok, err)
	}

	token, err := f.Token(ctx, "doc")
	if err != nil || token == nil {
		t.Fatalf("Token: %v, %v", token, err)
	}
	if ok, err := f.Set(ctx, "doc", []byte("v2"), ids.Text, token); err != nil || !ok {
		t.Fatalf("second Set: %v, %v", ok, err)
	}

	got, err := f.Text(ctx, "doc")
	if err != nil || got != "v2" {
		t.Fatalf("Text = %q, %v; want %q", got, err, "v2")
	}

	var entries []*Tag
	for entry := range f.Tags(ctx, "doc") {
		if entry.Err != nil {
			t.Fatalf("Tags: %v", entry.Err)
		}
		entries = append(entries, entry.Tag)
	}
	if len(entries) != 2 {
		t.Fatalf("Tags yielded %d entries, want 2", len(entries))
	}
	if entries[1].Pre != nil {
		t.Errorf("oldest tag has Pre = %v, want nil", entries[1].Pre)
	}
	if entries[0].Pre == nil {
		t.Error("newest tag has nil Pre, want a link to the older tag")
	}
}

// S3
func TestSetConflictLeavesPriorVersion(t *testing.T) {
	ctx := context.Background()
	f := newTestFrontend(t)

	if ok, err := f.Set(ctx, "doc", []byte("v1"), ids.Text, nil); err != nil || !ok {
		t.Fatalf("first Set: %v, %v", ok, err)
	}
	if ok, err := f.Set(ctx, "doc", []byte("v2"), ids.Text, nil); err != nil || ok {
		t.Fatalf("conflicting Set = %v, %v; want false, nil", ok, err)
	}

	got, err := f.Text(ctx, "doc")
	if err != nil || got != "v1" {
		t.Errorf("Text after conflict = %q, %v; want %q", got, err, "v1")
	}
}

func TestHasAndGetAndTypeAfterSet(t *testing.T) {
	ctx := context.Background()
	f := newTestFrontend(t)

	if ok, err := f.Set(ctx, "greeting", []byte("hi"), ids.Text, nil); err != nil || !ok {
		t.Fatalf("Set: %v, %v", ok, err)
	}

	has, err := f.Has(ctx, "greeting")
	if err != nil || !has {
		t.Fatalf("Has = %v, %v; want true", has, err)
	}
	body, err := f.Get(ctx, "greeting")
	if err != nil || string(body) != "hi" {
		t.Fatalf("Get = %q, %v; want %q", body, err, "hi")
	}
	tag, err := f.Tag(ctx, "greeting")
	if err != nil || tag == nil || tag.Type != ids.Text {
		t.Fatalf("Tag = %v, %v; want type %q", tag, err, ids.Text)
	}
	deref, err := f.Pull(ctx, *tag.Cid)
	if err != nil || string(deref) != "hi" {
		t.Errorf("dereferenced tag.Cid = %q, %v; want %q", deref, err, "hi")
	}
}

// S6
func TestCopyPointsAtSameContentWithoutMutatingSource(t *testing.T) {
	ctx := context.Background()
	f := newTestFrontend(t)

	if ok, err := f.Set(ctx, "doc", []byte("original"), ids.Text, nil); err != nil || !ok {
		t.Fatalf("Set: %v, %v", ok, err)
	}
	docTag, err := f.Tag(ctx, "doc")
	if err != nil || docTag == nil {
		t.Fatalf("Tag(doc): %v, %v", docTag, err)
	}

	if ok, err := f.Copy(ctx, "doc", "alias", nil); err != nil || !ok {
		t.Fatalf("Copy: %v, %v", ok, err)
	}

	has, err := f.Has(ctx, "alias")
	if err != nil || !has {
		t.Fatalf("Has(alias) = %v, %v; want true", has, err)
	}
	aliasTag, err := f.Tag(ctx, "alias")
	if err != nil || aliasTag == nil {
		t.Fatalf("Tag(alias): %v, %v", aliasTag, err)
	}
	if *aliasTag.Cid != *docTag.Cid {
		t.Errorf("alias cid = %s, want %s", *aliasTag.Cid, *docTag.Cid)
	}
	if aliasTag.Name != "alias" {
		t.Errorf("alias tag name = %q, want %q", aliasTag.Name, "alias")
	}

	docTagAfter, err := f.Tag(ctx, "doc")
	if err != nil || docTagAfter == nil || *docTagAfter.Cid != *docTag.Cid {
		t.Error("Copy mutated doc's current tag")
	}
}

func TestDeleteTombstonesButPreservesHistory(t *testing.T) {
	ctx := context.Background()
	f := newTestFrontend(t)

	if ok, err := f.Set(ctx, "doc", []byte("v1"), ids.Text, nil); err != nil || !ok {
		t.Fatalf("Set: %v, %v", ok, err)
	}
	token, err := f.Token(ctx, "doc")
	if err != nil || token == nil {
		t.Fatalf("Token: %v, %v", token, err)
	}

	if ok, err := f.Delete(ctx, "doc", token); err != nil || !ok {
		t.Fatalf("Delete: %v, %v", ok, err)
	}

	has, err := f.Has(ctx, "doc")
	if err != nil || has {
		t.Fatalf("Has after delete = %v, %v; want false", has, err)
	}

	var count int
	for entry := range f.Tags(ctx, "doc") {
		if entry.Err != nil {
			t.Fatalf("Tags: %v", entry.Err)
		}
		count++
	}
	if count != 2 {
		t.Errorf("Tags after delete yielded %d entries, want 2 (tombstone + v1)", count)
	}
}

// S5
func TestSecretWrapperOverMemoryFrontend(t *testing.T) {
	ctx := context.Background()
	base := memory.New()
	wrapped, err := secretcodec.New(base, "hunter2", "salt")
	if err != nil {
		t.Fatalf("secretcodec.New: %v", err)
	}
	defer wrapped.Close()

	f := New(wrapped)
	if ok, err := f.Set(ctx, "k", []byte("secret"), ids.Text, nil); err != nil || !ok {
		t.Fatalf("Set: %v, %v", ok, err)
	}

	tag, err := f.Tag(ctx, "k")
	if err != nil || tag == nil || tag.Cid == nil {
		t.Fatalf("Tag: %v, %v", tag, err)
	}
	raw, err := base.Read(ctx, *tag.Cid)
	if err != nil || raw == nil {
		t.Fatalf("reading base directly: %v, %v", raw, err)
	}
	if !strings.HasPrefix(string(raw.Content), "SKE:") {
		t.Errorf("base content = %q, want prefix %q", raw.Content, "SKE:")
	}

	got, err := f.Get(ctx, "k")
	if err != nil || string(got) != "secret" {
		t.Fatalf("Get through wrapper = %q, %v; want %q", got, err, "secret")
	}
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package frontend implements the mutable, versioned name-and-tag
// layer entirely atop the backend.Backend contract: content
// push/pull, name resolution through a pointer-slot indirection, and
// an append-only tag chain giving every name a full version history.
// It never bypasses Backend for storage — every byte it reads or
// writes goes through a Backend method.
package frontend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/casvault/cas/lib/backend"
	"github.com/casvault/cas/lib/ids"
)

// Frontend is the name-and-tag layer over a single Backend.
type Frontend struct {
	backend backend.Backend
	now     func() time.Time
}

// New returns a Frontend built on b.
func New(b backend.Backend) *Frontend {
	return &Frontend{backend: b, now: time.Now}
}

// Push stores data content-addressed and returns its ContentId.
// Pushing the same bytes twice returns the same id (idempotent in
// cid). Returns "", nil if the write raced and lost — an unlikely but
// possible outcome since Token and Write are not atomic together.
func (f *Frontend) Push(ctx context.Context, data []byte, mimeType ids.MimeType) (ids.ContentId, error) {
	cid := ids.ContentIdFromBytes(data)
	token, err := f.backend.Token(ctx, cid)
	if err != nil {
		return "", err
	}
	ok, err := f.backend.Write(ctx, cid, data, mimeType, token)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", nil
	}
	return cid, nil
}

// Pull returns the bytes stored at cid, or nil if absent.
func (f *Frontend) Pull(ctx context.Context, cid ids.ContentId) ([]byte, error) {
	obj, err := f.backend.Read(ctx, cid)
	if err != nil || obj == nil {
		return nil, err
	}
	return obj.Content, nil
}

// PushStream streams r into content-addressed storage: it writes
// through a temporary name-identifier slot while hashing, then
// renames the temporary object to its final ContentId once the
// digest is known. This is what makes streaming ingestion of
// arbitrarily large, not-yet-hashed content possible without
// buffering the whole thing first.
//
// If the rename loses a race (something else claims the same id
// first, or the pointer slot conflicts), PushStream returns "", nil
// and leaves the temporary object in place — an accepted orphan, by
// the same content-addressed-storage-has-no-corruption reasoning that
// applies to orphaned tag records below.
func (f *Frontend) PushStream(ctx context.Context, r io.Reader, mimeType ids.MimeType) (ids.ContentId, error) {
	tmp := ids.NameId(uuid.NewString())
	hasher := ids.NewStreamHasher()
	tee := io.TeeReader(r, hasher)

	ok, err := f.backend.WriteStream(ctx, tmp, tee, mimeType, nil)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", nil
	}

	cid := hasher.Sum()
	renamed, err := f.backend.Rename(ctx, tmp, cid)
	if err != nil {
		return "", err
	}
	if !renamed {
		return "", nil
	}
	return cid, nil
}

// PullStream returns a streaming view of the object at cid, or nil if
// absent.
func (f *Frontend) PullStream(ctx context.Context, cid ids.ContentId) (*backend.Stream, error) {
	return f.backend.ReadStream(ctx, cid)
}

// Tag returns the current tag record for name, or nil if name has
// never been set.
func (f *Frontend) Tag(ctx context.Context, name string) (*Tag, error) {
	return f.readTagAt(ctx, ids.NameId(name))
}

// readTagAt dereferences the pointer slot at nid to its tag record.
func (f *Frontend) readTagAt(ctx context.Context, nid ids.ContentId) (*Tag, error) {
	ptr, err := f.backend.Read(ctx, nid)
	if err != nil || ptr == nil {
		return nil, err
	}
	tid, err := ids.ParseContentId(string(ptr.Content))
	if err != nil {
		return nil, fmt.Errorf("frontend: pointer slot %s holds an invalid content id: %w", nid, err)
	}
	obj, err := f.backend.Read(ctx, tid)
	if err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, fmt.Errorf("frontend: tag record %s referenced by pointer slot is missing", tid)
	}
	return parseTag(obj.Content)
}

// TagEntry is one item yielded by Tags: either a tag record or an
// error that terminates the sequence.
type TagEntry struct {
	Tag *Tag
	Err error
}

// Tags yields name's tag chain in reverse chronological order,
// current version first, terminating at the tag whose Pre is nil.
// The returned channel is closed when the chain is exhausted, an
// error occurs, or ctx is cancelled.
func (f *Frontend) Tags(ctx context.Context, name string) <-chan TagEntry {
	out := make(chan TagEntry)
	go func() {
		defer close(out)

		current, err := f.Tag(ctx, name)
		if err != nil {
			sendTagEntry(ctx, out, TagEntry{Err: err})
			return
		}
		for current != nil {
			if !sendTagEntry(ctx, out, TagEntry{Tag: current}) {
				return
			}
			if current.Pre == nil {
				return
			}
			obj, err := f.backend.Read(ctx, *current.Pre)
			if err != nil {
				sendTagEntry(ctx, out, TagEntry{Err: err})
				return
			}
			if obj == nil {
				return
			}
			next, err := parseTag(obj.Content)
			if err != nil {
				sendTagEntry(ctx, out, TagEntry{Err: err})
				return
			}
			current = next
		}
	}()
	return out
}

func sendTagEntry(ctx context.Context, out chan<- TagEntry, entry TagEntry) bool {
	select {
	case out <- entry:
		return true
	case <-ctx.Done():
		return false
	}
}

// Has reports whether name currently resolves to content that exists
// in the backend.
func (f *Frontend) Has(ctx context.Context, name string) (bool, error) {
	tag, err := f.Tag(ctx, name)
	if err != nil || tag == nil || tag.Cid == nil {
		return false, err
	}
	return f.backend.Exists(ctx, *tag.Cid)
}

// Get returns the bytes name currently resolves to, or nil if name is
// unset or its current tag is a tombstone.
func (f *Frontend) Get(ctx context.Context, name string) ([]byte, error) {
	tag, err := f.Tag(ctx, name)
	if err != nil || tag == nil || tag.Cid == nil {
		return nil, err
	}
	return f.Pull(ctx, *tag.Cid)
}

// Text returns name's current content as a string.
func (f *Frontend) Text(ctx context.Context, name string) (string, error) {
	data, err := f.Get(ctx, name)
	return string(data), err
}

// JSON dereferences name's current content and unmarshals it into v.
// Returns found=false without modifying v if name is unset.
func (f *Frontend) JSON(ctx context.Context, name string, v any) (bool, error) {
	data, err := f.Get(ctx, name)
	if err != nil || data == nil {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("frontend: decoding JSON content for %q: %w", name, err)
	}
	return true, nil
}

// Token returns the ConflictToken on name's pointer slot — not on the
// tag blob, not on the content blob — for use as the CAS gate on a
// subsequent Set/WriteStream/Copy/Delete call.
func (f *Frontend) Token(ctx context.Context, name string) (*backend.ConflictToken, error) {
	return f.backend.Token(ctx, ids.NameId(name))
}

// mutate implements the shared shape of Set, WriteStream, Copy, and
// Delete: read the current pointer body for its pre link, build and
// push a new tag record chaining to it, then CAS-write the pointer
// slot to the new tag record's id.
//
// Steps 2–4 are not serialized as a unit: two concurrent callers can
// read the same pre, each push a distinct tag record, and race on
// step 4. The loser's tag blob is orphaned but harmless — content-
// addressed storage cannot corrupt from an unreachable record — and
// the chain stays consistent for whichever writer's pointer-slot CAS
// actually lands.
func (f *Frontend) mutate(ctx context.Context, name string, cid *ids.ContentId, mimeType ids.MimeType, token *backend.ConflictToken) (bool, error) {
	nid := ids.NameId(name)

	var pre *ids.ContentId
	ptr, err := f.backend.Read(ctx, nid)
	if err != nil {
		return false, err
	}
	if ptr != nil {
		tid, err := ids.ParseContentId(string(ptr.Content))
		if err != nil {
			return false, fmt.Errorf("frontend: pointer slot %s holds an invalid content id: %w", nid, err)
		}
		pre = &tid
	}

	tag := Tag{Name: name, Cid: cid, Type: mimeType, Date: f.now(), Pre: pre}
	data, err := json.Marshal(tag)
	if err != nil {
		return false, fmt.Errorf("frontend: encoding tag record for %q: %w", name, err)
	}
	tid, err := f.Push(ctx, data, ids.JSON)
	if err != nil {
		return false, err
	}
	if tid == "" {
		return false, fmt.Errorf("frontend: pushing tag record for %q lost a race", name)
	}

	return f.backend.Write(ctx, nid, []byte(tid), ids.Sha512Pointer, token)
}

// Set pushes data as the new content for name and appends a tag
// record pointing to it. token gates the pointer-slot CAS write; nil
// requires name to not already exist.
func (f *Frontend) Set(ctx context.Context, name string, data []byte, mimeType ids.MimeType, token *backend.ConflictToken) (bool, error) {
	cid, err := f.Push(ctx, data, mimeType)
	if err != nil {
		return false, err
	}
	if cid == "" {
		return false, nil
	}
	return f.mutate(ctx, name, &cid, mimeType, token)
}

// WriteStream is Set for a streamed source.
func (f *Frontend) WriteStream(ctx context.Context, name string, r io.Reader, mimeType ids.MimeType, token *backend.ConflictToken) (bool, error) {
	cid, err := f.PushStream(ctx, r, mimeType)
	if err != nil {
		return false, err
	}
	if cid == "" {
		return false, nil
	}
	return f.mutate(ctx, name, &cid, mimeType, token)
}

// Copy points alias at the same content and type as name's current
// tag, without mutating name. Fails if name has no current tag.
func (f *Frontend) Copy(ctx context.Context, name, alias string, token *backend.ConflictToken) (bool, error) {
	source, err := f.Tag(ctx, name)
	if err != nil {
		return false, err
	}
	if source == nil {
		return false, fmt.Errorf("frontend: cannot copy %q: no current tag", name)
	}
	return f.mutate(ctx, alias, source.Cid, source.Type, token)
}

// Delete appends a tombstone tag for name: Cid becomes nil and its
// type becomes ids.Empty. name's history remains walkable through
// Tags; only Has and Get treat it as gone.
func (f *Frontend) Delete(ctx context.Context, name string, token *backend.ConflictToken) (bool, error) {
	return f.mutate(ctx, name, nil, ids.Empty, token)
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"context"
	"io"

	"github.com/casvault/cas/lib/ids"
)

// Object is the result of a successful Read: the stored bytes and their
// declared type.
type Object struct {
	Content []byte
	Type    ids.MimeType
}

// Stream is the result of a successful ReadStream: a lazily consumed
// byte stream and its declared type. The caller must Close the stream
// once done with it, whether or not it was fully read.
type Stream struct {
	Reader io.ReadCloser
	Type   ids.MimeType
}

// ListEntry is one item yielded by List. Err is set, and Id is empty,
// if enumeration failed partway through; the caller should stop
// consuming the channel in that case.
type ListEntry struct {
	Id  ids.ContentId
	Err error
}

// Backend is the uniform contract implemented by every base backend
// and every codec wrapper. Every operation takes a context.Context as
// its cancellation handle, per the cooperative-cancellation model in
// the design notes: implementations check ctx at chunk boundaries and
// other suspension points, and return ctx.Err() when it fires.
//
// Absent resources, type-mismatches on read, and CAS conflicts are all
// reported as (nil, nil) / (false, nil) — never as an error. The error
// return means: something happened that this contract does not define
// a normal outcome for.
type Backend interface {
	// Token returns the current ConflictToken for id, or nil if the
	// resource does not exist.
	Token(ctx context.Context, id ids.ContentId) (*ConflictToken, error)

	// Exists reports whether id currently has a stored object.
	Exists(ctx context.Context, id ids.ContentId) (bool, error)

	// List enumerates the ids currently stored. Ordering is
	// unspecified; entries added or removed during iteration may or
	// may not appear. The returned channel is closed when enumeration
	// completes or ctx is cancelled.
	List(ctx context.Context) (<-chan ListEntry, error)

	// Type returns the MimeType stored for id, or "" and false if
	// absent.
	Type(ctx context.Context, id ids.ContentId) (ids.MimeType, bool, error)

	// Hash returns the stored-bytes hash (or ETag) for id, or "" and
	// false if absent.
	Hash(ctx context.Context, id ids.ContentId) (string, bool, error)

	// Read returns the object stored at id, or nil if absent.
	Read(ctx context.Context, id ids.ContentId) (*Object, error)

	// Write stores data at id under mimeType, gated by token as
	// described in the CAS rules on ConflictToken. Returns true on
	// success, false on conflict.
	Write(ctx context.Context, id ids.ContentId, data []byte, mimeType ids.MimeType, token *ConflictToken) (bool, error)

	// Delete removes id. token must match the resource's current
	// hash; returns false otherwise, including when the resource is
	// already absent.
	Delete(ctx context.Context, id ids.ContentId, token *ConflictToken) (bool, error)

	// ReadStream returns a streaming view of the object at id, or nil
	// if absent.
	ReadStream(ctx context.Context, id ids.ContentId) (*Stream, error)

	// WriteStream stores the bytes read from r at id, computing the
	// hash incrementally. Gating and return value semantics match
	// Write.
	WriteStream(ctx context.Context, id ids.ContentId, r io.Reader, mimeType ids.MimeType, token *ConflictToken) (bool, error)

	// Rename moves the object at source to target without rehashing.
	// Succeeds iff source exists and target does not.
	Rename(ctx context.Context, source, target ids.ContentId) (bool, error)
}

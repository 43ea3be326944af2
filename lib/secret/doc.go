// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret provides a memory-safe buffer for the key material
// casvault's codec wrappers handle: wrapper passwords read from a file
// and PBKDF2-derived master secrets.
//
// [Buffer] allocates memory outside the Go heap via mmap(MAP_ANONYMOUS),
// locks it into physical RAM via mlock (preventing swap), and marks it
// excluded from core dumps via madvise(MADV_DONTDUMP). On Close, the
// memory is zeroed, unlocked, and unmapped. Because the memory lives
// outside the Go heap, the garbage collector cannot copy or relocate
// it, guaranteeing secret material does not persist after release.
//
// Constructors:
//
//   - [New] -- allocates a zero-filled buffer of a given size
//   - [NewFromBytes] -- copies into protected memory, zeros the source
//   - [ReadFromPath] -- reads a secret from a file, or stdin via "-"
//
// Access via [Buffer.Bytes] (slice into mmap region) or
// [Buffer.String] (heap copy for API boundaries). [Zero] scrubs a
// plain heap-allocated byte slice in place, for the brief windows
// where secret material passes through one before a Buffer takes
// ownership of it. After Close, any access panics. Close is
// idempotent.
//
// Depends on golang.org/x/sys/unix. The Secret backend wrapper holds
// its derived master key in a Buffer; the Secret and Asymmetric
// wrappers use [Zero] on their per-object data keys. RSA private keys
// are not held in a Buffer.
package secret

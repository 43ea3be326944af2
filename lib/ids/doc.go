// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ids defines the small, pure identifier and type values shared
// by every backend: content-addressed ids, MIME type strings, and the
// name-identifier derivation used by the naming layer. Nothing in this
// package performs I/O.
package ids

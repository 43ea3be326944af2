// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package backend defines the Backend contract: the uniform interface
// every base backend (memory, files, bucket) and every codec wrapper
// (compress, secretcodec, asymmetric) implements. It is the single
// substrate the frontend package builds on.
//
// All fallible operations follow one rule throughout this module:
// expected absence or CAS conflict is reported through an ordinary
// return value (nil, false), never through an error. The error return
// is reserved for conditions the contract does not define — I/O
// failures, protocol errors, cancellation.
package backend

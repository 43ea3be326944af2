// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for the
// casvault CLI.
//
// Configuration is loaded from a single file specified by either the
// CASVAULT_CONFIG environment variable (via [Load]) or a --config
// flag (via [LoadFile]). There are no fallbacks, no ~/.config
// discovery, and no automatic file search. This ensures
// deterministic, auditable configuration with no hidden overrides.
//
// The config selects a base Backend (memory, files, or bucket) and
// which codec wrappers (Compression, Secret, Asymmetric) to layer on
// top. Only the CLI reads this package; lib/backend and lib/frontend
// take their parameters directly from their constructors, per the
// "no global state" design note.
//
// Key exports:
//
//   - [Config] -- master struct with Backend, Files, Bucket,
//     Compression, Secret, Asymmetric
//   - [Default] -- returns a Config with built-in defaults (memory
//     backend, zstd codec)
//   - [Load] and [LoadFile] -- the two entry points for loading
//
// This package depends on no other casvault package.
package config

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package observability provides the standard logger construction
// used across casvault's backends, frontend, and CLI.
package observability

import (
	"log/slog"
	"os"
)

// NewLogger creates the standard casvault logger: a JSON handler
// writing to stderr at Info level. It also sets the default slog
// logger so third-party code using slog.Info etc. shares it.
func NewLogger() *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)
	return logger
}

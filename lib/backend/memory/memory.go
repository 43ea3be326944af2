// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package memory implements an in-process backend.Backend backed by a
// map. It is the reference implementation of the backend contract: no
// I/O, no partial-failure modes, useful as a fast substrate for tests
// and as the terminal backend in short-lived processes.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/casvault/cas/lib/backend"
	"github.com/casvault/cas/lib/ids"
)

type entry struct {
	mimeType ids.MimeType
	hash     string
	data     []byte
}

// Backend is an in-memory backend.Backend. The zero value is not usable;
// construct one with New.
type Backend struct {
	mu      sync.Mutex
	objects map[ids.ContentId]entry
	logger  *slog.Logger
}

// New returns an empty Memory backend.
func New() *Backend {
	return &Backend{objects: make(map[ids.ContentId]entry), logger: slog.Default()}
}

// SetLogger replaces the backend's logger. A nil logger is ignored.
func (m *Backend) SetLogger(logger *slog.Logger) {
	if logger != nil {
		m.logger = logger
	}
}

var _ backend.Backend = (*Backend)(nil)

func (m *Backend) Token(_ context.Context, id ids.ContentId) (*backend.ConflictToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.objects[id]
	if !ok {
		return nil, nil
	}
	return backend.NewConflictToken(m, e.hash), nil
}

func (m *Backend) Exists(_ context.Context, id ids.ContentId) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[id]
	return ok, nil
}

func (m *Backend) List(ctx context.Context) (<-chan backend.ListEntry, error) {
	m.mu.Lock()
	snapshot := make([]ids.ContentId, 0, len(m.objects))
	for id := range m.objects {
		snapshot = append(snapshot, id)
	}
	m.mu.Unlock()

	out := make(chan backend.ListEntry)
	go func() {
		defer close(out)
		for _, id := range snapshot {
			select {
			case <-ctx.Done():
				return
			case out <- backend.ListEntry{Id: id}:
			}
		}
	}()
	return out, nil
}

func (m *Backend) Type(_ context.Context, id ids.ContentId) (ids.MimeType, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.objects[id]
	if !ok {
		return "", false, nil
	}
	return e.mimeType, true, nil
}

func (m *Backend) Hash(_ context.Context, id ids.ContentId) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.objects[id]
	if !ok {
		return "", false, nil
	}
	return e.hash, true, nil
}

func (m *Backend) Read(_ context.Context, id ids.ContentId) (*backend.Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.objects[id]
	if !ok {
		return nil, nil
	}
	content := make([]byte, len(e.data))
	copy(content, e.data)
	return &backend.Object{Content: content, Type: e.mimeType}, nil
}

func (m *Backend) Write(_ context.Context, id ids.ContentId, data []byte, mimeType ids.MimeType, token *backend.ConflictToken) (bool, error) {
	tokenValue, err := token.Value(m)
	if err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	existing, exists := m.objects[id]
	if token == nil {
		if exists {
			m.logger.Warn("memory: write conflict", "id", id, "reason", "already exists")
			return false, nil
		}
	} else {
		if !exists || existing.hash != tokenValue {
			m.logger.Warn("memory: write conflict", "id", id, "reason", "token stale")
			return false, nil
		}
	}

	content := make([]byte, len(data))
	copy(content, data)
	m.objects[id] = entry{mimeType: mimeType, hash: ids.Sha512Hex(content), data: content}
	m.logger.Debug("memory: write", "id", id)
	return true, nil
}

func (m *Backend) Delete(_ context.Context, id ids.ContentId, token *backend.ConflictToken) (bool, error) {
	if token == nil {
		return false, nil
	}
	tokenValue, err := token.Value(m)
	if err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	existing, exists := m.objects[id]
	if !exists || existing.hash != tokenValue {
		m.logger.Warn("memory: delete conflict", "id", id, "reason", "token stale")
		return false, nil
	}
	delete(m.objects, id)
	m.logger.Debug("memory: delete", "id", id)
	return true, nil
}

func (m *Backend) ReadStream(ctx context.Context, id ids.ContentId) (*backend.Stream, error) {
	obj, err := m.Read(ctx, id)
	if err != nil || obj == nil {
		return nil, err
	}
	return &backend.Stream{Reader: io.NopCloser(bytes.NewReader(obj.Content)), Type: obj.Type}, nil
}

func (m *Backend) WriteStream(ctx context.Context, id ids.ContentId, r io.Reader, mimeType ids.MimeType, token *backend.ConflictToken) (bool, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return false, fmt.Errorf("memory: reading stream: %w", err)
	}
	return m.Write(ctx, id, data, mimeType, token)
}

func (m *Backend) Rename(_ context.Context, source, target ids.ContentId) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.objects[source]
	if !ok {
		return false, nil
	}
	if _, taken := m.objects[target]; taken {
		return false, nil
	}
	delete(m.objects, source)
	m.objects[target] = e
	return true, nil
}

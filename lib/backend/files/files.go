// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package files implements a backend.Backend over a local directory
// tree: each id maps to a sibling
// pair of files, the raw bytes and a ".data" JSON sidecar carrying the
// declared type and stored-bytes hash. Token-gated writes are
// serialised across processes via an advisory lock file (see lock.go);
// under the lock both files are rewritten in place with truncation.
package files

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/casvault/cas/lib/backend"
	"github.com/casvault/cas/lib/ids"
)

// lockTimeout is the maximum time a token-gated write or delete will
// wait to acquire the advisory lock on a target path.
const lockTimeout = 30 * time.Second

type sidecar struct {
	Type ids.MimeType `json:"type"`
	Hash string       `json:"hash"`
}

// Backend is a filesystem-backed backend.Backend rooted at a caller
// supplied directory.
type Backend struct {
	root   string
	lock   *Lock
	logger *slog.Logger
}

// New returns a Files backend rooted at root. root is created if it
// does not exist. lockDir names the directory used for advisory lock
// marker files; if empty, the OS temp directory is used, matching the
// /tmp/<sha1(name)>.lock convention.
func New(root, lockDir string) (*Backend, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("files: creating root %s: %w", root, err)
	}
	return &Backend{root: root, lock: NewLock(lockDir), logger: slog.Default()}, nil
}

// SetLogger replaces the backend's logger. A nil logger is ignored.
func (b *Backend) SetLogger(logger *slog.Logger) {
	if logger != nil {
		b.logger = logger
	}
}

var _ backend.Backend = (*Backend)(nil)

func (b *Backend) dataPath(id ids.ContentId) (string, error) {
	rel, err := id.Path()
	if err != nil {
		return "", err
	}
	return filepath.Join(b.root, filepath.FromSlash(rel)), nil
}

func (b *Backend) readSidecar(path string) (*sidecar, error) {
	raw, err := os.ReadFile(path + ".data")
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("files: reading metadata: %w", err)
	}
	var s sidecar
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("files: parsing metadata: %w", err)
	}
	return &s, nil
}

func (b *Backend) Token(_ context.Context, id ids.ContentId) (*backend.ConflictToken, error) {
	path, err := b.dataPath(id)
	if err != nil {
		return nil, err
	}
	meta, err := b.readSidecar(path)
	if err != nil || meta == nil {
		return nil, err
	}
	return backend.NewConflictToken(b, meta.Hash), nil
}

func (b *Backend) Exists(_ context.Context, id ids.ContentId) (bool, error) {
	path, err := b.dataPath(id)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("files: stat: %w", err)
	}
	return true, nil
}

func (b *Backend) List(ctx context.Context) (<-chan backend.ListEntry, error) {
	out := make(chan backend.ListEntry)
	go func() {
		defer close(out)
		_ = filepath.WalkDir(b.root, func(path string, d os.DirEntry, err error) error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err != nil {
				select {
				case out <- backend.ListEntry{Err: err}:
				case <-ctx.Done():
				}
				return nil
			}
			if d.IsDir() || strings.HasSuffix(path, ".data") {
				return nil
			}
			id, parseErr := ids.ParseContentId(filepath.Base(path))
			if parseErr != nil {
				return nil
			}
			select {
			case out <- backend.ListEntry{Id: id}:
			case <-ctx.Done():
				return ctx.Err()
			}
			return nil
		})
	}()
	return out, nil
}

func (b *Backend) Type(ctx context.Context, id ids.ContentId) (ids.MimeType, bool, error) {
	path, err := b.dataPath(id)
	if err != nil {
		return "", false, err
	}
	meta, err := b.readSidecar(path)
	if err != nil || meta == nil {
		return "", false, err
	}
	return meta.Type, true, nil
}

func (b *Backend) Hash(ctx context.Context, id ids.ContentId) (string, bool, error) {
	path, err := b.dataPath(id)
	if err != nil {
		return "", false, err
	}
	meta, err := b.readSidecar(path)
	if err != nil || meta == nil {
		return "", false, err
	}
	return meta.Hash, true, nil
}

func (b *Backend) Read(_ context.Context, id ids.ContentId) (*backend.Object, error) {
	path, err := b.dataPath(id)
	if err != nil {
		return nil, err
	}
	meta, err := b.readSidecar(path)
	if err != nil || meta == nil {
		return nil, err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("files: reading content: %w", err)
	}
	return &backend.Object{Content: content, Type: meta.Type}, nil
}

// writeBoth writes the content and sidecar files with truncate
// semantics. The caller is responsible for CAS gating before calling
// this; writeBoth just performs the physical write.
func writeBoth(path string, data []byte, mimeType ids.MimeType, hash string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("files: creating directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("files: writing content: %w", err)
	}
	raw, err := json.Marshal(sidecar{Type: mimeType, Hash: hash})
	if err != nil {
		return fmt.Errorf("files: encoding metadata: %w", err)
	}
	if err := os.WriteFile(path+".data", raw, 0o644); err != nil {
		return fmt.Errorf("files: writing metadata: %w", err)
	}
	return nil
}

// createBothExclusive writes both files only if neither exists.
// Returns false, nil if the content file already exists.
func createBothExclusive(path string, data []byte, mimeType ids.MimeType, hash string) (bool, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("files: creating directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return false, nil
		}
		return false, fmt.Errorf("files: creating content file: %w", err)
	}
	_, writeErr := f.Write(data)
	closeErr := f.Close()
	if writeErr != nil {
		os.Remove(path)
		return false, fmt.Errorf("files: writing content: %w", writeErr)
	}
	if closeErr != nil {
		os.Remove(path)
		return false, fmt.Errorf("files: closing content file: %w", closeErr)
	}

	raw, err := json.Marshal(sidecar{Type: mimeType, Hash: hash})
	if err != nil {
		os.Remove(path)
		return false, fmt.Errorf("files: encoding metadata: %w", err)
	}
	sf, err := os.OpenFile(path+".data", os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		os.Remove(path)
		if errors.Is(err, os.ErrExist) {
			return false, nil
		}
		return false, fmt.Errorf("files: creating metadata file: %w", err)
	}
	_, writeErr = sf.Write(raw)
	closeErr = sf.Close()
	if writeErr != nil || closeErr != nil {
		os.Remove(path)
		os.Remove(path + ".data")
		return false, fmt.Errorf("files: writing metadata: %w", errors.Join(writeErr, closeErr))
	}
	return true, nil
}

func (b *Backend) Write(ctx context.Context, id ids.ContentId, data []byte, mimeType ids.MimeType, token *backend.ConflictToken) (bool, error) {
	path, err := b.dataPath(id)
	if err != nil {
		return false, err
	}
	hash := ids.Sha512Hex(data)

	if token == nil {
		ok, err := createBothExclusive(path, data, mimeType, hash)
		if err != nil {
			return false, err
		}
		if !ok {
			b.logger.Warn("files: write conflict", "id", id, "reason", "already exists")
			return false, nil
		}
		b.logger.Debug("files: write", "id", id)
		return true, nil
	}

	tokenValue, err := token.Value(b)
	if err != nil {
		return false, err
	}

	handle, err := b.lock.Await(ctx, path, lockTimeout)
	if err != nil {
		return false, err
	}
	if handle == nil {
		return false, nil
	}
	defer handle.Release()

	meta, err := b.readSidecar(path)
	if err != nil {
		return false, err
	}
	if meta == nil || meta.Hash != tokenValue {
		b.logger.Warn("files: write conflict", "id", id, "reason", "token stale")
		return false, nil
	}
	if err := writeBoth(path, data, mimeType, hash); err != nil {
		return false, err
	}
	b.logger.Debug("files: write", "id", id)
	return true, nil
}

func (b *Backend) Delete(ctx context.Context, id ids.ContentId, token *backend.ConflictToken) (bool, error) {
	if token == nil {
		return false, nil
	}
	path, err := b.dataPath(id)
	if err != nil {
		return false, err
	}
	tokenValue, err := token.Value(b)
	if err != nil {
		return false, err
	}

	handle, err := b.lock.Await(ctx, path, lockTimeout)
	if err != nil {
		return false, err
	}
	if handle == nil {
		return false, nil
	}
	defer handle.Release()

	meta, err := b.readSidecar(path)
	if err != nil {
		return false, err
	}
	if meta == nil || meta.Hash != tokenValue {
		b.logger.Warn("files: delete conflict", "id", id, "reason", "token stale")
		return false, nil
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("files: deleting content: %w", err)
	}
	if err := os.Remove(path + ".data"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("files: deleting metadata: %w", err)
	}
	b.logger.Debug("files: delete", "id", id)
	return true, nil
}

func (b *Backend) ReadStream(_ context.Context, id ids.ContentId) (*backend.Stream, error) {
	path, err := b.dataPath(id)
	if err != nil {
		return nil, err
	}
	meta, err := b.readSidecar(path)
	if err != nil || meta == nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("files: opening content: %w", err)
	}
	return &backend.Stream{Reader: f, Type: meta.Type}, nil
}

func (b *Backend) WriteStream(ctx context.Context, id ids.ContentId, r io.Reader, mimeType ids.MimeType, token *backend.ConflictToken) (bool, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return false, fmt.Errorf("files: reading stream: %w", err)
	}
	return b.Write(ctx, id, data, mimeType, token)
}

func (b *Backend) Rename(_ context.Context, source, target ids.ContentId) (bool, error) {
	sourcePath, err := b.dataPath(source)
	if err != nil {
		return false, err
	}
	targetPath, err := b.dataPath(target)
	if err != nil {
		return false, err
	}

	if _, err := os.Stat(sourcePath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("files: stat source: %w", err)
	}
	if _, err := os.Stat(targetPath); err == nil {
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("files: stat target: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
		return false, fmt.Errorf("files: creating target directory: %w", err)
	}
	if err := os.Rename(sourcePath, targetPath); err != nil {
		return false, fmt.Errorf("files: renaming content: %w", err)
	}
	if err := os.Rename(sourcePath+".data", targetPath+".data"); err != nil {
		// Best-effort rollback of the content rename so the pair does
		// not end up split across ids.
		os.Rename(targetPath, sourcePath)
		return false, fmt.Errorf("files: renaming metadata: %w", err)
	}
	return true, nil
}

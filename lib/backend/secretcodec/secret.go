// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package secretcodec implements the Secret Wrapper:
// password-derived symmetric authenticated encryption over any
// backend.Backend. A PBKDF2-HMAC-SHA-512 derived master secret wraps a
// fresh random data key per object; the data key seals the payload
// under AES-256-GCM. The master secret lives in a guarded
// *secret.Buffer; per-object data keys are ordinary byte slices that
// are zeroed once used.
package secretcodec

import (
	"bufio"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
	"log/slog"

	"github.com/casvault/cas/lib/backend"
	"github.com/casvault/cas/lib/backend/gcmstream"
	"github.com/casvault/cas/lib/ids"
	"github.com/casvault/cas/lib/secret"
)

const (
	// header identifies bytes written by this wrapper. Its absence on
	// read triggers pass-through mode.
	header = "SKE:"

	dataKeySize    = 48 // 32-byte AES-256 key + 16-byte GCM nonce
	aesKeySize     = 32
	nonceSize      = 16
	authTagSize    = 16
	wrappedKeySize = dataKeySize + authTagSize // enckey(48) + keytag(16)
	preambleSize   = len(header) + wrappedKeySize
)

// Backend wraps an inner backend.Backend with password-based
// authenticated encryption. Construct with New; the zero value is not
// usable.
type Backend struct {
	inner  backend.Backend
	master *secret.Buffer
	logger *slog.Logger
}

// New derives the master secret from password and salt via
// PBKDF2-HMAC-SHA-512 (1000 iterations, 48-byte output) and returns a
// Backend that wraps inner with it. Close releases the guarded master
// secret buffer; call it when the wrapper is no longer needed.
func New(inner backend.Backend, password, salt string) (*Backend, error) {
	master, err := secret.DeriveMasterSecret(password, salt)
	if err != nil {
		return nil, fmt.Errorf("secretcodec: deriving master secret: %w", err)
	}
	return &Backend{inner: inner, master: master, logger: slog.Default()}, nil
}

// SetLogger replaces the wrapper's logger. A nil logger is ignored.
func (b *Backend) SetLogger(logger *slog.Logger) {
	if logger != nil {
		b.logger = logger
	}
}

// Close releases the master secret's guarded memory.
func (b *Backend) Close() error {
	return b.master.Close()
}

var _ backend.Backend = (*Backend)(nil)

func gcmWithNonceSize(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("secretcodec: creating AES cipher: %w", err)
	}
	return cipher.NewGCMWithNonceSize(block, nonceSize)
}

// wrapDataKey seals dataKey (48 bytes) under the master secret,
// returning enckey(48) ∥ keytag(16) as laid out in the frame documented
// on seal. The master secret's IV component is reused as the GCM nonce
// for every call — safe here only because it is combined with a
// distinct, randomly generated dataKey plaintext each time.
func (b *Backend) wrapDataKey(dataKey []byte) ([]byte, error) {
	masterBytes := b.master.Bytes()
	gcm, err := gcmWithNonceSize(masterBytes[:aesKeySize])
	if err != nil {
		return nil, err
	}
	nonce := masterBytes[aesKeySize : aesKeySize+nonceSize]
	return gcm.Seal(nil, nonce, dataKey, nil), nil
}

// unwrapDataKey reverses wrapDataKey. Returns nil, nil on
// authentication failure — auth failure surfaces as absence,
// not an error.
func (b *Backend) unwrapDataKey(wrapped []byte) ([]byte, error) {
	masterBytes := b.master.Bytes()
	gcm, err := gcmWithNonceSize(masterBytes[:aesKeySize])
	if err != nil {
		return nil, err
	}
	nonce := masterBytes[aesKeySize : aesKeySize+nonceSize]
	dataKey, err := gcm.Open(nil, nonce, wrapped, nil)
	if err != nil {
		return nil, nil
	}
	return dataKey, nil
}

// seal encrypts plaintext under a fresh random data key, returning the
// full frame: "SKE:" ∥ enckey(48) ∥ keytag(16) ∥ ciphertext ∥ authTag(16).
func (b *Backend) seal(plaintext []byte) ([]byte, error) {
	dataKey := make([]byte, dataKeySize)
	if _, err := rand.Read(dataKey); err != nil {
		return nil, fmt.Errorf("secretcodec: generating data key: %w", err)
	}
	defer secret.Zero(dataKey)

	wrappedKey, err := b.wrapDataKey(dataKey)
	if err != nil {
		return nil, err
	}

	gcm, err := gcmWithNonceSize(dataKey[:aesKeySize])
	if err != nil {
		return nil, err
	}
	nonce := dataKey[aesKeySize : aesKeySize+nonceSize]
	sealed := gcm.Seal(nil, nonce, plaintext, nil)

	frame := make([]byte, 0, preambleSize+len(sealed))
	frame = append(frame, header...)
	frame = append(frame, wrappedKey...)
	frame = append(frame, sealed...)
	return frame, nil
}

// open reverses seal. If data does not start with the header, it is
// returned unchanged (pass-through mode). Authentication
// failure at either layer returns nil, nil.
func (b *Backend) open(data []byte) ([]byte, error) {
	if len(data) < len(header) || string(data[:len(header)]) != header {
		return data, nil
	}
	if len(data) < preambleSize {
		return nil, nil
	}

	wrappedKey := data[len(header):preambleSize]
	dataKey, err := b.unwrapDataKey(wrappedKey)
	if err != nil {
		return nil, err
	}
	if dataKey == nil {
		return nil, nil
	}
	defer secret.Zero(dataKey)

	gcm, err := gcmWithNonceSize(dataKey[:aesKeySize])
	if err != nil {
		return nil, err
	}
	nonce := dataKey[aesKeySize : aesKeySize+nonceSize]
	sealed := data[preambleSize:]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, nil
	}
	return plaintext, nil
}

func (b *Backend) Token(ctx context.Context, id ids.ContentId) (*backend.ConflictToken, error) {
	tok, err := b.inner.Token(ctx, id)
	if err != nil || tok == nil {
		return nil, err
	}
	return backend.RewrapToken(tok, b.inner, b)
}

func (b *Backend) Exists(ctx context.Context, id ids.ContentId) (bool, error) {
	return b.inner.Exists(ctx, id)
}

func (b *Backend) List(ctx context.Context) (<-chan backend.ListEntry, error) {
	return b.inner.List(ctx)
}

func (b *Backend) Type(ctx context.Context, id ids.ContentId) (ids.MimeType, bool, error) {
	return b.inner.Type(ctx, id)
}

func (b *Backend) Hash(ctx context.Context, id ids.ContentId) (string, bool, error) {
	return b.inner.Hash(ctx, id)
}

func (b *Backend) Delete(ctx context.Context, id ids.ContentId, token *backend.ConflictToken) (bool, error) {
	innerToken, err := backend.RewrapToken(token, b, b.inner)
	if err != nil {
		return false, err
	}
	return b.inner.Delete(ctx, id, innerToken)
}

func (b *Backend) Rename(ctx context.Context, source, target ids.ContentId) (bool, error) {
	return b.inner.Rename(ctx, source, target)
}

func (b *Backend) Read(ctx context.Context, id ids.ContentId) (*backend.Object, error) {
	obj, err := b.inner.Read(ctx, id)
	if err != nil || obj == nil {
		return nil, err
	}
	plaintext, err := b.open(obj.Content)
	if err != nil {
		return nil, fmt.Errorf("secretcodec: reading %s: %w", id, err)
	}
	if plaintext == nil {
		b.logger.Warn("secretcodec: authentication failed", "id", id)
		return nil, nil
	}
	return &backend.Object{Content: plaintext, Type: obj.Type}, nil
}

func (b *Backend) Write(ctx context.Context, id ids.ContentId, data []byte, mimeType ids.MimeType, token *backend.ConflictToken) (bool, error) {
	innerToken, err := backend.RewrapToken(token, b, b.inner)
	if err != nil {
		return false, err
	}
	frame, err := b.seal(data)
	if err != nil {
		return false, fmt.Errorf("secretcodec: sealing %s: %w", id, err)
	}
	ok, err := b.inner.Write(ctx, id, frame, mimeType, innerToken)
	if err == nil && ok {
		b.logger.Debug("secretcodec: write", "id", id)
	}
	return ok, err
}

// ReadStream and WriteStream run a small state machine — awaiting the
// header, decrypting, passing through, or finished — over the
// gcmstream package's incremental AES-GCM cipher, so a streamed object
// is never buffered in full: ReadStream holds at most a read chunk
// plus a trailing tag-sized window, and WriteStream holds at most one
// write chunk, regardless of the object's total size.

// readCloser pairs an io.Reader with an unrelated io.Closer, so a
// bufio.Reader or gcmstream.DecryptReader wrapping an inner stream can
// still close that inner stream once the caller is done.
type readCloser struct {
	io.Reader
	closer io.Closer
}

func (rc readCloser) Close() error { return rc.closer.Close() }

func (b *Backend) ReadStream(ctx context.Context, id ids.ContentId) (*backend.Stream, error) {
	stream, err := b.inner.ReadStream(ctx, id)
	if err != nil || stream == nil {
		return nil, err
	}

	// State: awaiting-header. Peek without consuming, so a headerless
	// stream can fall through to passthrough untouched.
	br := bufio.NewReader(stream.Reader)
	peek, peekErr := br.Peek(len(header))
	if peekErr != nil && peekErr != io.EOF {
		stream.Reader.Close()
		return nil, fmt.Errorf("secretcodec: peeking stream header: %w", peekErr)
	}
	if len(peek) < len(header) || string(peek) != header {
		// State: passthrough.
		return &backend.Stream{Reader: readCloser{br, stream.Reader}, Type: stream.Type}, nil
	}

	preamble := make([]byte, preambleSize)
	if _, err := io.ReadFull(br, preamble); err != nil {
		stream.Reader.Close()
		return nil, fmt.Errorf("secretcodec: reading stream preamble: %w", err)
	}
	dataKey, err := b.unwrapDataKey(preamble[len(header):])
	if err != nil {
		stream.Reader.Close()
		return nil, fmt.Errorf("secretcodec: unwrapping stream data key: %w", err)
	}
	if dataKey == nil {
		stream.Reader.Close()
		b.logger.Warn("secretcodec: authentication failed", "id", id)
		return nil, nil
	}
	defer secret.Zero(dataKey)

	block, err := aes.NewCipher(dataKey[:aesKeySize])
	if err != nil {
		stream.Reader.Close()
		return nil, err
	}
	nonce := dataKey[aesKeySize : aesKeySize+nonceSize]

	// State: decrypting, until the source is exhausted (state: final,
	// checked inside DecryptReader itself).
	cipher := gcmstream.New(block, nonce)
	dr := gcmstream.NewDecryptReader(br, cipher)
	return &backend.Stream{Reader: readCloser{dr, stream.Reader}, Type: stream.Type}, nil
}

func (b *Backend) WriteStream(ctx context.Context, id ids.ContentId, r io.Reader, mimeType ids.MimeType, token *backend.ConflictToken) (bool, error) {
	innerToken, err := backend.RewrapToken(token, b, b.inner)
	if err != nil {
		return false, err
	}

	dataKey := make([]byte, dataKeySize)
	if _, err := rand.Read(dataKey); err != nil {
		return false, fmt.Errorf("secretcodec: generating data key: %w", err)
	}
	wrappedKey, err := b.wrapDataKey(dataKey)
	if err != nil {
		secret.Zero(dataKey)
		return false, err
	}
	block, err := aes.NewCipher(dataKey[:aesKeySize])
	if err != nil {
		secret.Zero(dataKey)
		return false, err
	}
	nonce := append([]byte(nil), dataKey[aesKeySize:aesKeySize+nonceSize]...)
	secret.Zero(dataKey)
	gcmCipher := gcmstream.New(block, nonce)

	pr, pw := io.Pipe()
	go func() {
		defer pw.Close()
		if _, err := pw.Write([]byte(header)); err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := pw.Write(wrappedKey); err != nil {
			pw.CloseWithError(err)
			return
		}

		ew := gcmstream.NewEncryptWriter(pw, gcmCipher)
		buf := make([]byte, 32*1024)
		for {
			select {
			case <-ctx.Done():
				pw.CloseWithError(ctx.Err())
				return
			default:
			}
			n, rerr := r.Read(buf)
			if n > 0 {
				if _, werr := ew.Write(buf[:n]); werr != nil {
					pw.CloseWithError(werr)
					return
				}
			}
			if rerr != nil {
				if rerr != io.EOF {
					pw.CloseWithError(rerr)
					return
				}
				break
			}
		}
		if err := ew.Close(); err != nil {
			pw.CloseWithError(err)
		}
	}()

	return b.inner.WriteStream(ctx, id, pr, mimeType, innerToken)
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package asymmetric implements the Asymmetric Wrapper: hybrid
// RSA-OAEP + AES-256-GCM authenticated encryption over any
// backend.Backend. Framing mirrors secretcodec's Secret Wrapper — a
// fresh random data key seals the payload, the data key itself is
// wrapped — but the wrap step uses the recipient's RSA public key
// instead of a password-derived master secret, so the wrapped-key
// field carries a length prefix (RSA ciphertext size varies with key
// size).
package asymmetric

import (
	"bufio"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"hash"
	"io"
	"log/slog"

	"github.com/casvault/cas/lib/backend"
	"github.com/casvault/cas/lib/backend/gcmstream"
	"github.com/casvault/cas/lib/ids"
	"github.com/casvault/cas/lib/secret"
)

const (
	header = "AKE:"

	dataKeySize = 48
	aesKeySize  = 32
	nonceSize   = 16
	lengthSize  = 2 // uint16_BE enckey_len
)

// newOAEPHash returns the hash function used for RSA-OAEP padding.
// SHA-256 is the ubiquitous default across TLS, JOSE, and most OAEP
// deployments. A fresh instance is required per call — hash.Hash is
// stateful and EncryptOAEP/DecryptOAEP may run concurrently across
// goroutines.
func newOAEPHash() hash.Hash { return sha256.New() }

// KeyPair holds the RSA key material an asymmetric.Backend needs.
// Public alone is enough to construct a write-only wrapper; Private
// is required for Read/ReadStream.
type KeyPair struct {
	Public  *rsa.PublicKey
	Private *rsa.PrivateKey
}

// GenerateKeyPair creates a fresh 2048-bit RSA key pair, for callers
// (tests, the CLI's key-init path) that need one without provisioning
// their own.
func GenerateKeyPair() (*KeyPair, error) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("asymmetric: generating RSA key: %w", err)
	}
	return &KeyPair{Public: &priv.PublicKey, Private: priv}, nil
}

// Backend wraps an inner backend.Backend with RSA-OAEP + AES-256-GCM
// hybrid encryption. Construct with New.
type Backend struct {
	inner  backend.Backend
	keys   *KeyPair
	logger *slog.Logger
}

// New wraps inner with keys. keys.Public alone supports Write;
// keys.Private is additionally required for Read.
func New(inner backend.Backend, keys *KeyPair) *Backend {
	return &Backend{inner: inner, keys: keys, logger: slog.Default()}
}

// SetLogger replaces the wrapper's logger. A nil logger is ignored.
func (b *Backend) SetLogger(logger *slog.Logger) {
	if logger != nil {
		b.logger = logger
	}
}

var _ backend.Backend = (*Backend)(nil)

func gcmForKey(dataKey []byte) (cipher.AEAD, []byte, error) {
	block, err := aes.NewCipher(dataKey[:aesKeySize])
	if err != nil {
		return nil, nil, fmt.Errorf("asymmetric: creating AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, nil, err
	}
	return gcm, dataKey[aesKeySize : aesKeySize+nonceSize], nil
}

// seal encrypts plaintext under a fresh random data key wrapped with
// the recipient's RSA public key, producing the full frame:
// "AKE:" ∥ uint16_BE(enckey_len) ∥ enckey ∥ ciphertext ∥ authTag(16).
func (b *Backend) seal(plaintext []byte) ([]byte, error) {
	if b.keys == nil || b.keys.Public == nil {
		return nil, fmt.Errorf("asymmetric: no public key configured for encryption")
	}

	dataKey := make([]byte, dataKeySize)
	if _, err := rand.Read(dataKey); err != nil {
		return nil, fmt.Errorf("asymmetric: generating data key: %w", err)
	}
	defer secret.Zero(dataKey)

	enckey, err := rsa.EncryptOAEP(newOAEPHash(), rand.Reader, b.keys.Public, dataKey, nil)
	if err != nil {
		return nil, fmt.Errorf("asymmetric: RSA-OAEP wrapping data key: %w", err)
	}
	if len(enckey) > 0xFFFF {
		return nil, fmt.Errorf("asymmetric: wrapped key length %d exceeds uint16 frame field", len(enckey))
	}

	gcm, nonce, err := gcmForKey(dataKey)
	if err != nil {
		return nil, err
	}
	sealed := gcm.Seal(nil, nonce, plaintext, nil)

	frame := make([]byte, 0, len(header)+lengthSize+len(enckey)+len(sealed))
	frame = append(frame, header...)
	var lengthPrefix [lengthSize]byte
	binary.BigEndian.PutUint16(lengthPrefix[:], uint16(len(enckey)))
	frame = append(frame, lengthPrefix[:]...)
	frame = append(frame, enckey...)
	frame = append(frame, sealed...)
	return frame, nil
}

// open reverses seal. Data lacking the header is returned unchanged
// (pass-through mode). Any decryption or authentication failure —
// RSA-OAEP unwrap, or the GCM tag — returns nil, nil, matching the
// Secret wrapper's "auth failure looks like absence" contract.
func (b *Backend) open(data []byte) ([]byte, error) {
	if len(data) < len(header) || string(data[:len(header)]) != header {
		return data, nil
	}
	if b.keys == nil || b.keys.Private == nil {
		return nil, fmt.Errorf("asymmetric: no private key configured for decryption")
	}

	preambleFixed := len(header) + lengthSize
	if len(data) < preambleFixed {
		return nil, nil
	}
	enckeyLen := int(binary.BigEndian.Uint16(data[len(header):preambleFixed]))
	preamble := preambleFixed + enckeyLen
	if len(data) < preamble {
		return nil, nil
	}

	enckey := data[preambleFixed:preamble]
	dataKey, err := rsa.DecryptOAEP(newOAEPHash(), rand.Reader, b.keys.Private, enckey, nil)
	if err != nil {
		return nil, nil
	}
	if len(dataKey) != dataKeySize {
		return nil, nil
	}
	defer secret.Zero(dataKey)

	gcm, nonce, err := gcmForKey(dataKey)
	if err != nil {
		return nil, err
	}
	sealed := data[preamble:]
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
		return nil, fmt.Errorf("asymmetric: reading %s: %w", id, err)
	}
	if plaintext == nil {
		b.logger.Warn("asymmetric: authentication failed", "id", id)
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
		return false, fmt.Errorf("asymmetric: sealing %s: %w", id, err)
	}
	ok, err := b.inner.Write(ctx, id, frame, mimeType, innerToken)
	if err == nil && ok {
		b.logger.Debug("asymmetric: write", "id", id)
	}
	return ok, err
}

func (b *Backend) Delete(ctx context.Context, id ids.ContentId, token *backend.ConflictToken) (bool, error) {
	innerToken, err := backend.RewrapToken(token, b, b.inner)
	if err != nil {
		return false, err
	}
	return b.inner.Delete(ctx, id, innerToken)
}

// ReadStream and WriteStream run the same awaiting-header /
// decrypting / passthrough / final state machine as the Secret
// wrapper (secretcodec.Backend), built on the same gcmstream
// incremental cipher. The only difference is the preamble: the
// wrapped-key length varies with the RSA key size, so it is read as a
// two-step preamble (fixed header+length, then the length-prefixed
// key) rather than a single fixed-size read.

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

	// State: awaiting-header.
	br := bufio.NewReader(stream.Reader)
	peek, peekErr := br.Peek(len(header))
	if peekErr != nil && peekErr != io.EOF {
		stream.Reader.Close()
		return nil, fmt.Errorf("asymmetric: peeking stream header: %w", peekErr)
	}
	if len(peek) < len(header) || string(peek) != header {
		// State: passthrough.
		return &backend.Stream{Reader: readCloser{br, stream.Reader}, Type: stream.Type}, nil
	}
	if b.keys == nil || b.keys.Private == nil {
		stream.Reader.Close()
		return nil, fmt.Errorf("asymmetric: no private key configured for decryption")
	}

	preambleFixed := len(header) + lengthSize
	fixed := make([]byte, preambleFixed)
	if _, err := io.ReadFull(br, fixed); err != nil {
		stream.Reader.Close()
		return nil, fmt.Errorf("asymmetric: reading stream preamble: %w", err)
	}
	enckeyLen := int(binary.BigEndian.Uint16(fixed[len(header):]))
	enckey := make([]byte, enckeyLen)
	if _, err := io.ReadFull(br, enckey); err != nil {
		stream.Reader.Close()
		return nil, fmt.Errorf("asymmetric: reading stream wrapped key: %w", err)
	}

	dataKey, err := rsa.DecryptOAEP(newOAEPHash(), rand.Reader, b.keys.Private, enckey, nil)
	if err != nil || len(dataKey) != dataKeySize {
		stream.Reader.Close()
		b.logger.Warn("asymmetric: authentication failed", "id", id)
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
	if b.keys == nil || b.keys.Public == nil {
		return false, fmt.Errorf("asymmetric: no public key configured for encryption")
	}
	innerToken, err := backend.RewrapToken(token, b, b.inner)
	if err != nil {
		return false, err
	}

	dataKey := make([]byte, dataKeySize)
	if _, err := rand.Read(dataKey); err != nil {
		return false, fmt.Errorf("asymmetric: generating data key: %w", err)
	}
	enckey, err := rsa.EncryptOAEP(newOAEPHash(), rand.Reader, b.keys.Public, dataKey, nil)
	if err != nil {
		secret.Zero(dataKey)
		return false, fmt.Errorf("asymmetric: RSA-OAEP wrapping data key: %w", err)
	}
	if len(enckey) > 0xFFFF {
		secret.Zero(dataKey)
		return false, fmt.Errorf("asymmetric: wrapped key length %d exceeds uint16 frame field", len(enckey))
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
		var lengthPrefix [lengthSize]byte
		binary.BigEndian.PutUint16(lengthPrefix[:], uint16(len(enckey)))
		if _, err := pw.Write(lengthPrefix[:]); err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := pw.Write(enckey); err != nil {
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

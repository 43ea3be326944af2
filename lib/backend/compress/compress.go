// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package compress implements the Compression Wrapper: a
// transparent backend.Backend that compresses whole buffers on write
// and decompresses on read, delegating every other operation
// unchanged to the wrapped backend. No framing header is added — the
// same codec must be applied symmetrically on both ends. Supports
// deflate, gzip, brotli, and zstd.
package compress

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"

	"github.com/casvault/cas/lib/backend"
	"github.com/casvault/cas/lib/ids"
)

// Codec identifies one of the four compression algorithms the wrapper
// supports.
type Codec string

const (
	Deflate Codec = "deflate"
	Gzip    Codec = "gzip"
	Brotli  Codec = "brotli"
	Zstd    Codec = "zstd"
)

// Backend wraps an inner backend.Backend, compressing bytes at the
// write boundary and decompressing at the read boundary. The wrapped
// backend sees only compressed bytes; ids and tokens pass through
// unchanged.
type Backend struct {
	inner backend.Backend
	codec Codec

	// zstdEncoder and zstdDecoder are reused across calls: allocating
	// a fresh one per call is the dominant cost for small blobs.
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder

	logger *slog.Logger
}

// New wraps inner with the compression codec. Returns an error if
// codec is not one of the four supported values.
func New(inner backend.Backend, codec Codec) (*Backend, error) {
	b := &Backend{inner: inner, codec: codec, logger: slog.Default()}
	switch codec {
	case Deflate, Gzip, Brotli:
		// No persistent state needed for these.
	case Zstd:
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, fmt.Errorf("compress: creating zstd encoder: %w", err)
		}
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("compress: creating zstd decoder: %w", err)
		}
		b.zstdEncoder = enc
		b.zstdDecoder = dec
	default:
		return nil, fmt.Errorf("compress: unknown codec %q", codec)
	}
	return b, nil
}

// SetLogger replaces the wrapper's logger. A nil logger is ignored.
func (b *Backend) SetLogger(logger *slog.Logger) {
	if logger != nil {
		b.logger = logger
	}
}

var _ backend.Backend = (*Backend)(nil)

func (b *Backend) compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	switch b.codec {
	case Deflate:
		w, err := flate.NewWriter(&buf, flate.DefaultCompression)
		if err != nil {
			return nil, fmt.Errorf("compress: deflate writer: %w", err)
		}
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("compress: deflate write: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("compress: deflate close: %w", err)
		}
	case Gzip:
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("compress: gzip write: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("compress: gzip close: %w", err)
		}
	case Brotli:
		w := brotli.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("compress: brotli write: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("compress: brotli close: %w", err)
		}
	case Zstd:
		return b.zstdEncoder.EncodeAll(data, nil), nil
	}
	return buf.Bytes(), nil
}

func (b *Backend) decompress(data []byte) ([]byte, error) {
	switch b.codec {
	case Deflate:
		r := flate.NewReader(bytes.NewReader(data))
		defer r.Close()
		return io.ReadAll(r)
	case Gzip:
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("compress: gzip reader: %w", err)
		}
		defer r.Close()
		return io.ReadAll(r)
	case Brotli:
		return io.ReadAll(brotli.NewReader(bytes.NewReader(data)))
	case Zstd:
		return b.zstdDecoder.DecodeAll(data, nil)
	}
	return nil, fmt.Errorf("compress: unknown codec %q", b.codec)
}

// newDecompressReader wraps r with a streaming decompressor for the
// codec, returned as an io.ReadCloser so callers have one uniform
// close path regardless of which codec's own reader type does or
// doesn't implement io.Closer natively.
func (b *Backend) newDecompressReader(r io.ReadCloser) (io.ReadCloser, error) {
	switch b.codec {
	case Deflate:
		fr := flate.NewReader(r)
		return &joinedCloser{Reader: fr, closers: []io.Closer{fr, r}}, nil
	case Gzip:
		gr, err := gzip.NewReader(r)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("compress: gzip reader: %w", err)
		}
		return &joinedCloser{Reader: gr, closers: []io.Closer{gr, r}}, nil
	case Brotli:
		br := brotli.NewReader(r)
		return &joinedCloser{Reader: br, closers: []io.Closer{r}}, nil
	case Zstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("compress: zstd reader: %w", err)
		}
		closeZstd := closerFunc(func() error {
			zr.Close()
			return nil
		})
		return &joinedCloser{Reader: zr, closers: []io.Closer{closeZstd, r}}, nil
	}
	return nil, fmt.Errorf("compress: unknown codec %q", b.codec)
}

func (b *Backend) newCompressWriter(w io.Writer) (io.WriteCloser, error) {
	switch b.codec {
	case Deflate:
		return flate.NewWriter(w, flate.DefaultCompression)
	case Gzip:
		return gzip.NewWriter(w), nil
	case Brotli:
		return brotli.NewWriter(w), nil
	case Zstd:
		return zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	}
	return nil, fmt.Errorf("compress: unknown codec %q", b.codec)
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// joinedCloser presents a single io.ReadCloser over a decompression
// reader chain: Close closes every layer, innermost first, returning
// the first error encountered.
type joinedCloser struct {
	io.Reader
	closers []io.Closer
}

func (j *joinedCloser) Close() error {
	var firstErr error
	for _, c := range j.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
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

func (b *Backend) Read(ctx context.Context, id ids.ContentId) (*backend.Object, error) {
	obj, err := b.inner.Read(ctx, id)
	if err != nil || obj == nil {
		return nil, err
	}
	plain, err := b.decompress(obj.Content)
	if err != nil {
		b.logger.Warn("compress: decompress failed", "id", id, "codec", b.codec, "error", err)
		return nil, fmt.Errorf("compress: decompressing %s: %w", id, err)
	}
	return &backend.Object{Content: plain, Type: obj.Type}, nil
}

func (b *Backend) Write(ctx context.Context, id ids.ContentId, data []byte, mimeType ids.MimeType, token *backend.ConflictToken) (bool, error) {
	innerToken, err := backend.RewrapToken(token, b, b.inner)
	if err != nil {
		return false, err
	}
	compressed, err := b.compress(data)
	if err != nil {
		return false, fmt.Errorf("compress: compressing %s: %w", id, err)
	}
	return b.inner.Write(ctx, id, compressed, mimeType, innerToken)
}

func (b *Backend) Delete(ctx context.Context, id ids.ContentId, token *backend.ConflictToken) (bool, error) {
	innerToken, err := backend.RewrapToken(token, b, b.inner)
	if err != nil {
		return false, err
	}
	return b.inner.Delete(ctx, id, innerToken)
}

func (b *Backend) ReadStream(ctx context.Context, id ids.ContentId) (*backend.Stream, error) {
	stream, err := b.inner.ReadStream(ctx, id)
	if err != nil || stream == nil {
		return nil, err
	}
	reader, err := b.newDecompressReader(stream.Reader)
	if err != nil {
		return nil, err
	}
	return &backend.Stream{Reader: reader, Type: stream.Type}, nil
}

func (b *Backend) WriteStream(ctx context.Context, id ids.ContentId, r io.Reader, mimeType ids.MimeType, token *backend.ConflictToken) (bool, error) {
	innerToken, err := backend.RewrapToken(token, b, b.inner)
	if err != nil {
		return false, err
	}

	pipeReader, pipeWriter := io.Pipe()
	compressWriter, err := b.newCompressWriter(pipeWriter)
	if err != nil {
		pipeWriter.Close()
		return false, err
	}

	go func() {
		_, copyErr := io.Copy(compressWriter, r)
		closeErr := compressWriter.Close()
		err := copyErr
		if err == nil {
			err = closeErr
		}
		pipeWriter.CloseWithError(err)
	}()

	return b.inner.WriteStream(ctx, id, pipeReader, mimeType, innerToken)
}

func (b *Backend) Rename(ctx context.Context, source, target ids.ContentId) (bool, error) {
	return b.inner.Rename(ctx, source, target)
}

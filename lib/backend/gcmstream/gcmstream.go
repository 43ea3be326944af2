// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package gcmstream implements incremental AES-GCM encryption and
// decryption, bit-for-bit compatible with crypto/cipher's whole-buffer
// GCM (NIST SP 800-38D). The Secret and Asymmetric backend wrappers
// use it for ReadStream/WriteStream so a large object is never
// buffered in full just to seal or open it: only a bounded read/write
// chunk and, on decrypt, a TagSize trailing window are held in memory
// at once.
//
// Go's standard library only exposes GCM as a whole-message
// cipher.AEAD (Seal/Open take the entire plaintext or ciphertext up
// front), and no chunked-AEAD framing library is in play elsewhere in
// this module, so the incremental counter-mode encryption and GHASH
// accumulation here are implemented directly against crypto/aes's
// block cipher.
package gcmstream

import (
	"crypto/cipher"
	"crypto/hmac"
	"encoding/binary"
	"errors"
	"io"
)

// TagSize is the size in bytes of the trailing authentication tag.
const TagSize = 16

const blockSize = 16

// ErrAuthFailed is returned by a DecryptReader's Read once the stream
// ends, if the trailing tag does not authenticate the ciphertext that
// preceded it. Any bytes already returned from earlier Read calls were
// released before this check could run and must be discarded by the
// caller — the tag's position in the stream is not known until the
// stream ends.
var ErrAuthFailed = errors.New("gcmstream: authentication failed")

// hashKey computes GHASH's key H = E_K(0^16).
func hashKey(block cipher.Block) [blockSize]byte {
	var h [blockSize]byte
	block.Encrypt(h[:], h[:])
	return h
}

// mul multiplies x and y in GF(2^128) per NIST SP 800-38D section
// 6.3, using the reduction polynomial x^128 + x^7 + x^2 + x + 1. This
// bit-by-bit implementation favors clarity over speed.
func mul(x, y [blockSize]byte) [blockSize]byte {
	var z, v [blockSize]byte
	v = y
	for i := 0; i < 128; i++ {
		if x[i/8]&(0x80>>uint(i%8)) != 0 {
			for j := range z {
				z[j] ^= v[j]
			}
		}
		lsb := v[15] & 1
		for j := 15; j > 0; j-- {
			v[j] = v[j]>>1 | v[j-1]<<7
		}
		v[0] >>= 1
		if lsb != 0 {
			v[0] ^= 0xe1
		}
	}
	return z
}

func padBlock(data []byte) [blockSize]byte {
	var block [blockSize]byte
	copy(block[:], data)
	return block
}

// ghash computes GHASH_H over data, which must already be a multiple
// of the block size.
func ghash(h [blockSize]byte, data []byte) [blockSize]byte {
	var y [blockSize]byte
	for len(data) >= blockSize {
		block := padBlock(data[:blockSize])
		for j := range y {
			y[j] ^= block[j]
		}
		y = mul(y, h)
		data = data[blockSize:]
	}
	return y
}

// preCounterBlock computes J0, the GCM pre-counter block, for a nonce
// of arbitrary length (NIST SP 800-38D section 7.1). casvault's wire
// format always uses a 16-byte nonce, so in practice every call takes
// the GHASH branch; the 12-byte shortcut is included for completeness
// against any future nonce size.
func preCounterBlock(h [blockSize]byte, nonce []byte) [blockSize]byte {
	if len(nonce) == 12 {
		var block [blockSize]byte
		copy(block[:], nonce)
		block[15] = 1
		return block
	}

	padded := nonce
	if rem := len(nonce) % blockSize; rem != 0 {
		padded = make([]byte, len(nonce)+(blockSize-rem))
		copy(padded, nonce)
	}
	var lenBlock [blockSize]byte
	binary.BigEndian.PutUint64(lenBlock[8:], uint64(len(nonce))*8)
	buf := make([]byte, 0, len(padded)+blockSize)
	buf = append(buf, padded...)
	buf = append(buf, lenBlock[:]...)
	return ghash(h, buf)
}

func incr32(counter *[blockSize]byte) {
	c := binary.BigEndian.Uint32(counter[12:])
	c++
	binary.BigEndian.PutUint32(counter[12:], c)
}

// Cipher performs incremental AES-GCM encryption or decryption,
// updating a running GHASH accumulator as ciphertext bytes pass
// through it and producing the same tag crypto/cipher's GCM.Seal
// would for the same key, nonce, and plaintext.
type Cipher struct {
	block   cipher.Block
	h       [blockSize]byte
	j0      [blockSize]byte
	counter [blockSize]byte
	y       [blockSize]byte
	pending []byte // < blockSize bytes not yet folded into y
	ctLen   uint64
}

// New returns a Cipher for the given AES block cipher and nonce. The
// same construction serves both directions: Encrypt for sealing,
// Decrypt for opening.
func New(block cipher.Block, nonce []byte) *Cipher {
	h := hashKey(block)
	j0 := preCounterBlock(h, nonce)
	counter := j0
	incr32(&counter)
	return &Cipher{block: block, h: h, j0: j0, counter: counter}
}

func (c *Cipher) xor(dst, src []byte) {
	var mask [blockSize]byte
	pos := 0
	for pos < len(src) {
		c.block.Encrypt(mask[:], c.counter[:])
		incr32(&c.counter)
		n := blockSize
		if len(src)-pos < n {
			n = len(src) - pos
		}
		for i := 0; i < n; i++ {
			dst[pos+i] = src[pos+i] ^ mask[i]
		}
		pos += n
	}
}

func (c *Cipher) fold(ciphertext []byte) {
	c.ctLen += uint64(len(ciphertext))
	buf := append(c.pending, ciphertext...)
	for len(buf) >= blockSize {
		block := padBlock(buf[:blockSize])
		for j := range c.y {
			c.y[j] ^= block[j]
		}
		c.y = mul(c.y, c.h)
		buf = buf[blockSize:]
	}
	c.pending = append(c.pending[:0], buf...)
}

// Encrypt XORs plaintext src into ciphertext dst (which may alias
// src) and folds the resulting ciphertext into the running
// authentication hash.
func (c *Cipher) Encrypt(dst, src []byte) {
	c.xor(dst, src)
	c.fold(dst)
}

// Decrypt folds ciphertext src into the running authentication hash,
// then XORs it into plaintext dst (which may alias src).
func (c *Cipher) Decrypt(dst, src []byte) {
	c.fold(src)
	c.xor(dst, src)
}

// Finalize completes the authentication hash over whatever was
// encrypted or decrypted so far and returns the GCM tag. Call it
// exactly once, after the last Encrypt/Decrypt call.
func (c *Cipher) Finalize() [blockSize]byte {
	if len(c.pending) > 0 {
		block := padBlock(c.pending)
		for j := range c.y {
			c.y[j] ^= block[j]
		}
		c.y = mul(c.y, c.h)
		c.pending = nil
	}

	var lenBlock [blockSize]byte
	binary.BigEndian.PutUint64(lenBlock[8:], c.ctLen*8)
	for j := range c.y {
		c.y[j] ^= lenBlock[j]
	}
	c.y = mul(c.y, c.h)

	var mask [blockSize]byte
	c.block.Encrypt(mask[:], c.j0[:])
	var tag [blockSize]byte
	for j := range tag {
		tag[j] = c.y[j] ^ mask[j]
	}
	return tag
}

// EncryptWriter incrementally encrypts bytes written to it, writing
// ciphertext to the wrapped io.Writer as each chunk is produced.
// Close must be called after the last Write to append the trailing
// tag; omitting it yields ciphertext with no verifiable ending.
type EncryptWriter struct {
	sink   io.Writer
	cipher *Cipher
}

// NewEncryptWriter returns an EncryptWriter that seals data written to
// it with cipher and writes the result to sink.
func NewEncryptWriter(sink io.Writer, cipher *Cipher) *EncryptWriter {
	return &EncryptWriter{sink: sink, cipher: cipher}
}

func (w *EncryptWriter) Write(p []byte) (int, error) {
	out := make([]byte, len(p))
	w.cipher.Encrypt(out, p)
	if _, err := w.sink.Write(out); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close finalizes the authentication tag and writes it to sink.
func (w *EncryptWriter) Close() error {
	tag := w.cipher.Finalize()
	_, err := w.sink.Write(tag[:])
	return err
}

// readChunk bounds how much ciphertext DecryptReader pulls from its
// source per underlying Read, independent of the caller's buffer size.
const readChunk = 32 * 1024

// DecryptReader incrementally decrypts a ciphertext stream produced by
// an EncryptWriter using the same key and nonce. It holds back only a
// TagSize trailing window of ciphertext — the tag's position isn't
// known until the source is exhausted — rather than buffering the
// whole object.
//
// A non-EOF error from Read, including ErrAuthFailed, means the bytes
// already returned by earlier Read calls must be discarded: they were
// released before the tag could be checked.
type DecryptReader struct {
	src    io.Reader
	cipher *Cipher
	buf    []byte
	eof    bool
	err    error
}

// NewDecryptReader returns a DecryptReader pulling ciphertext from src
// and decrypting it with cipher.
func NewDecryptReader(src io.Reader, cipher *Cipher) *DecryptReader {
	return &DecryptReader{src: src, cipher: cipher}
}

func (r *DecryptReader) fill() {
	chunk := make([]byte, readChunk)
	n, err := r.src.Read(chunk)
	if n > 0 {
		r.buf = append(r.buf, chunk[:n]...)
	}
	if err != nil {
		if err == io.EOF {
			r.eof = true
		} else {
			r.err = err
		}
	}
}

func (r *DecryptReader) Read(p []byte) (int, error) {
	for len(r.buf) <= TagSize && !r.eof && r.err == nil {
		r.fill()
	}
	if r.err != nil {
		return 0, r.err
	}

	if len(r.buf) > TagSize {
		n := len(r.buf) - TagSize
		if n > len(p) {
			n = len(p)
		}
		r.cipher.Decrypt(p[:n], r.buf[:n])
		r.buf = r.buf[n:]
		return n, nil
	}

	// Source exhausted with TagSize or fewer bytes left: that remainder
	// must be exactly the tag.
	if len(r.buf) != TagSize {
		return 0, ErrAuthFailed
	}
	tag := r.cipher.Finalize()
	if !hmac.Equal(tag[:], r.buf) {
		return 0, ErrAuthFailed
	}
	r.buf = nil
	return 0, io.EOF
}

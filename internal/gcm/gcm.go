// Copyright 2025 The TinyTLS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package gcm implements the Galois/Counter authenticated encryption mode
// (NIST SP 800-38D) over the AES block cipher. Only 12-byte nonces and
// 16-byte tags are supported, which is all TLS 1.3 uses.
//
// The GHASH multiplication processes every bit of its operand with masked
// arithmetic and no secret-dependent branches or table indices.
package gcm

import (
	"encoding/binary"
	"errors"

	"github.com/tealfork/tinytls/internal/aes"
	"github.com/tealfork/tinytls/internal/subtle"
)

const (
	// NonceSize is the GCM nonce size in bytes.
	NonceSize = 12
	// TagSize is the GCM authentication tag size in bytes.
	TagSize = 16
)

// ErrAuthentication is returned by Open when the authentication tag does not
// match. No plaintext is ever returned alongside it.
var ErrAuthentication = errors.New("gcm: message authentication failed")

// fieldElement is an element of GF(2^128), the bit-reversed polynomial field
// GCM works in, stored as two big-endian 64-bit halves.
type fieldElement struct {
	low, high uint64
}

// AEAD is an AES-GCM instance for a single key. It is safe for concurrent
// use once created.
type AEAD struct {
	cipher *aes.Cipher
	h      fieldElement // H = AES_K(0^128)
}

// New creates an AES-GCM AEAD for the given 16-, 24- or 32-byte key.
func New(key []byte) (*AEAD, error) {
	c, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	var hBlock [16]byte
	c.Encrypt(hBlock[:], hBlock[:])
	return &AEAD{
		cipher: c,
		h: fieldElement{
			low:  binary.BigEndian.Uint64(hBlock[:8]),
			high: binary.BigEndian.Uint64(hBlock[8:]),
		},
	}, nil
}

// NonceSize returns the required nonce length, always 12.
func (g *AEAD) NonceSize() int { return NonceSize }

// Overhead returns the tag length added to every sealed message, always 16.
func (g *AEAD) Overhead() int { return TagSize }

// Seal encrypts plaintext, authenticates it together with additionalData,
// and appends ciphertext||tag to dst.
func (g *AEAD) Seal(dst, nonce, plaintext, additionalData []byte) []byte {
	if len(nonce) != NonceSize {
		panic("gcm: incorrect nonce length")
	}

	ret, out := sliceForAppend(dst, len(plaintext)+TagSize)

	var counter, tagMask [16]byte
	g.deriveCounter(&counter, nonce)
	g.cipher.Encrypt(tagMask[:], counter[:])

	gcmInc32(&counter)
	g.counterCrypt(out, plaintext, &counter)

	g.auth(out[len(plaintext):], out[:len(plaintext)], additionalData, &tagMask)
	return ret
}

// Open authenticates ciphertext (which includes the trailing tag) together
// with additionalData and, if the tag is valid, appends the plaintext to dst.
// The tag comparison is constant time and nothing is written on failure.
func (g *AEAD) Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error) {
	if len(nonce) != NonceSize {
		panic("gcm: incorrect nonce length")
	}
	if len(ciphertext) < TagSize {
		return nil, ErrAuthentication
	}
	tag := ciphertext[len(ciphertext)-TagSize:]
	ciphertext = ciphertext[:len(ciphertext)-TagSize]

	var counter, tagMask [16]byte
	g.deriveCounter(&counter, nonce)
	g.cipher.Encrypt(tagMask[:], counter[:])

	var expectedTag [TagSize]byte
	g.auth(expectedTag[:], ciphertext, additionalData, &tagMask)

	if subtle.ConstantTimeCompare(expectedTag[:], tag) != 1 {
		return nil, ErrAuthentication
	}

	ret, out := sliceForAppend(dst, len(ciphertext))
	gcmInc32(&counter)
	g.counterCrypt(out, ciphertext, &counter)
	return ret, nil
}

// deriveCounter sets counter to J0: the nonce followed by a 32-bit block
// counter starting at 1.
func (g *AEAD) deriveCounter(counter *[16]byte, nonce []byte) {
	copy(counter[:], nonce)
	counter[15] = 1
}

// gcmInc32 increments the low 32 bits of the counter block.
func gcmInc32(counter *[16]byte) {
	ctr := counter[len(counter)-4:]
	binary.BigEndian.PutUint32(ctr, binary.BigEndian.Uint32(ctr)+1)
}

// counterCrypt XORs in with the keystream generated from counter and writes
// the result to out, incrementing counter per block.
func (g *AEAD) counterCrypt(out, in []byte, counter *[16]byte) {
	var mask [16]byte
	for len(in) >= 16 {
		g.cipher.Encrypt(mask[:], counter[:])
		gcmInc32(counter)
		for i := 0; i < 16; i++ {
			out[i] = in[i] ^ mask[i]
		}
		out = out[16:]
		in = in[16:]
	}
	if len(in) > 0 {
		g.cipher.Encrypt(mask[:], counter[:])
		gcmInc32(counter)
		for i := range in {
			out[i] = in[i] ^ mask[i]
		}
	}
}

// auth computes GHASH(AAD || C || len64(AAD) || len64(C)), XORs it with the
// tag mask and writes the result to out.
func (g *AEAD) auth(out, ciphertext, additionalData []byte, tagMask *[16]byte) {
	var y fieldElement
	g.update(&y, additionalData)
	g.update(&y, ciphertext)

	y.low ^= uint64(len(additionalData)) * 8
	y.high ^= uint64(len(ciphertext)) * 8
	g.mul(&y)

	binary.BigEndian.PutUint64(out, y.low)
	binary.BigEndian.PutUint64(out[8:], y.high)
	for i := 0; i < 16; i++ {
		out[i] ^= tagMask[i]
	}
}

// update folds the given blocks (zero-padded at the end) into the GHASH
// state.
func (g *AEAD) update(y *fieldElement, blocks []byte) {
	for len(blocks) > 0 {
		var b [16]byte
		n := copy(b[:], blocks)
		blocks = blocks[n:]
		y.low ^= binary.BigEndian.Uint64(b[:8])
		y.high ^= binary.BigEndian.Uint64(b[8:])
		g.mul(y)
	}
}

// mul sets y = y * H in GF(2^128), reduced by x^128 + x^7 + x^2 + x + 1.
// GCM's bit ordering puts the polynomial's least significant coefficient in
// the most significant bit, so the "multiply by x" step is a right shift
// with a conditional XOR of 0xe1 << 120. Every iteration performs the same
// operations; bit values only select masks.
func (g *AEAD) mul(y *fieldElement) {
	var zLow, zHigh uint64
	vLow, vHigh := g.h.low, g.h.high

	for _, word := range [2]uint64{y.low, y.high} {
		for bit := 0; bit < 64; bit++ {
			m := -(word >> 63) // all ones if the top bit is set
			zLow ^= vLow & m
			zHigh ^= vHigh & m

			carry := -(vHigh & 1) // reduce if the shifted-out bit is set
			vHigh = vHigh>>1 | vLow<<63
			vLow = vLow >> 1
			vLow ^= carry & (0xe1 << 56)

			word <<= 1
		}
	}
	y.low, y.high = zLow, zHigh
}

// sliceForAppend extends in by n bytes, reusing capacity when possible.
func sliceForAppend(in []byte, n int) (head, tail []byte) {
	total := len(in) + n
	if cap(in) >= total {
		head = in[:total]
	} else {
		head = make([]byte, total)
		copy(head, in)
	}
	tail = head[len(in):]
	return
}

// Copyright 2025 The TinyTLS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package hkdf implements the HMAC-based extract-and-expand key derivation
// function from RFC 5869.
package hkdf

import (
	"errors"
	"hash"

	"github.com/tealfork/tinytls/internal/hmac"
)

// ErrLimit is returned when Expand is asked for more than 255 hash lengths
// of output, the maximum RFC 5869 defines.
var ErrLimit = errors.New("hkdf: requested output length exceeds 255 * hash size")

// Extract computes a pseudorandom key from the input keying material and an
// optional salt. A nil or empty salt is replaced with a string of zero bytes
// the length of the hash, per RFC 5869 Section 2.2.
func Extract(h func() hash.Hash, secret, salt []byte) []byte {
	if len(salt) == 0 {
		salt = make([]byte, h().Size())
	}
	return hmac.Sum(h, salt, secret)
}

// Expand derives length bytes of output keying material from a pseudorandom
// key and an info string. T(i) = HMAC(PRK, T(i-1) || info || i), blocks
// concatenated and truncated to length.
func Expand(h func() hash.Hash, prk []byte, info []byte, length int) ([]byte, error) {
	hashSize := h().Size()
	if length > 255*hashSize {
		return nil, ErrLimit
	}
	out := make([]byte, 0, length)
	var t []byte
	var counter uint8
	for len(out) < length {
		counter++
		mac := hmac.New(h, prk)
		mac.Write(t)
		mac.Write(info)
		mac.Write([]byte{counter})
		t = mac.Sum(nil)
		out = append(out, t...)
	}
	return out[:length], nil
}

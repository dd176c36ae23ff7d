// Copyright 2025 The TinyTLS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package hmac implements the keyed-hash message authentication code from
// RFC 2104 over any hash.Hash constructor. Tag comparison is the caller's
// responsibility and must be done in constant time; see internal/subtle.
package hmac

import "hash"

const (
	ipad = 0x36
	opad = 0x5c
)

type hmac struct {
	inner, outer hash.Hash
	ipadKey      []byte
	opadKey      []byte
}

// New returns a new HMAC hash using the given hash.Hash constructor and key.
// Keys longer than the hash's block size are hashed first, per RFC 2104.
func New(h func() hash.Hash, key []byte) hash.Hash {
	m := &hmac{inner: h(), outer: h()}
	blockSize := m.inner.BlockSize()
	if len(key) > blockSize {
		m.outer.Write(key)
		key = m.outer.Sum(nil)
		m.outer.Reset()
	}
	m.ipadKey = make([]byte, blockSize)
	m.opadKey = make([]byte, blockSize)
	copy(m.ipadKey, key)
	copy(m.opadKey, key)
	for i := range m.ipadKey {
		m.ipadKey[i] ^= ipad
		m.opadKey[i] ^= opad
	}
	m.inner.Write(m.ipadKey)
	return m
}

// Sum computes HMAC(key, data) in one shot.
func Sum(h func() hash.Hash, key, data []byte) []byte {
	m := New(h, key)
	m.Write(data)
	return m.Sum(nil)
}

func (m *hmac) Write(p []byte) (int, error) { return m.inner.Write(p) }

func (m *hmac) Size() int      { return m.outer.Size() }
func (m *hmac) BlockSize() int { return m.inner.BlockSize() }

func (m *hmac) Sum(in []byte) []byte {
	// H(opadKey || H(ipadKey || message)), without disturbing the running
	// inner state so further Writes remain possible.
	innerSum := m.inner.Sum(nil)
	m.outer.Reset()
	m.outer.Write(m.opadKey)
	m.outer.Write(innerSum)
	return m.outer.Sum(in)
}

func (m *hmac) Reset() {
	m.inner.Reset()
	m.inner.Write(m.ipadKey)
}

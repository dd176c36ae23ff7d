// Copyright 2025 The TinyTLS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tls

import (
	"hash"

	"github.com/tealfork/tinytls/internal/gcm"
	"github.com/tealfork/tinytls/internal/sha2"
)

// TLS 1.3 cipher suite identifiers.
const (
	TLS_AES_128_GCM_SHA256 uint16 = 0x1301
	TLS_AES_256_GCM_SHA384 uint16 = 0x1302
)

// CipherSuiteName returns the standard name for the passed cipher suite ID,
// or a fallback representation of the value.
func CipherSuiteName(id uint16) string {
	switch id {
	case TLS_AES_128_GCM_SHA256:
		return "TLS_AES_128_GCM_SHA256"
	case TLS_AES_256_GCM_SHA384:
		return "TLS_AES_256_GCM_SHA384"
	}
	return VersionName(id)
}

const aeadNonceLength = 12

// aead is the record protection interface; both suites use AES-GCM behind
// the per-record nonce construction.
type aead interface {
	Seal(dst, nonce, plaintext, additionalData []byte) []byte
	Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
	NonceSize() int
	Overhead() int
}

// A cipherSuiteTLS13 defines the keying material and record protection for
// one TLS 1.3 cipher suite.
type cipherSuiteTLS13 struct {
	id     uint16
	keyLen int
	aead   func(key, fixedNonce []byte) (aead, error)
	hash   func() hash.Hash
}

var cipherSuitesTLS13 = []*cipherSuiteTLS13{
	{TLS_AES_128_GCM_SHA256, 16, aeadAESGCMTLS13, sha2.New256},
	{TLS_AES_256_GCM_SHA384, 32, aeadAESGCMTLS13, sha2.New384},
}

var defaultCipherSuitesTLS13 = []uint16{
	TLS_AES_128_GCM_SHA256,
	TLS_AES_256_GCM_SHA384,
}

func cipherSuiteTLS13ByID(id uint16) *cipherSuiteTLS13 {
	for _, suite := range cipherSuitesTLS13 {
		if suite.id == id {
			return suite
		}
	}
	return nil
}

func mutualCipherSuiteTLS13(have []uint16, want uint16) *cipherSuiteTLS13 {
	for _, id := range have {
		if id == want {
			return cipherSuiteTLS13ByID(id)
		}
	}
	return nil
}

// xorNonceAEAD wraps an AEAD, XORing the 8-byte record sequence number
// into the fixed per-connection IV to form each nonce (RFC 8446,
// Section 5.3).
type xorNonceAEAD struct {
	nonceMask [aeadNonceLength]byte
	aead      *gcm.AEAD
}

func (f *xorNonceAEAD) NonceSize() int { return 8 }
func (f *xorNonceAEAD) Overhead() int  { return f.aead.Overhead() }

func (f *xorNonceAEAD) Seal(out, nonce, plaintext, additionalData []byte) []byte {
	for i, b := range nonce {
		f.nonceMask[4+i] ^= b
	}
	result := f.aead.Seal(out, f.nonceMask[:], plaintext, additionalData)
	for i, b := range nonce {
		f.nonceMask[4+i] ^= b
	}
	return result
}

func (f *xorNonceAEAD) Open(out, nonce, ciphertext, additionalData []byte) ([]byte, error) {
	for i, b := range nonce {
		f.nonceMask[4+i] ^= b
	}
	result, err := f.aead.Open(out, f.nonceMask[:], ciphertext, additionalData)
	for i, b := range nonce {
		f.nonceMask[4+i] ^= b
	}
	return result, err
}

func aeadAESGCMTLS13(key, nonceMask []byte) (aead, error) {
	if len(nonceMask) != aeadNonceLength {
		return nil, alertInternalError
	}
	inner, err := gcm.New(key)
	if err != nil {
		return nil, err
	}
	ret := &xorNonceAEAD{aead: inner}
	copy(ret.nonceMask[:], nonceMask)
	return ret, nil
}

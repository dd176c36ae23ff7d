// Copyright 2025 The TinyTLS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ecdh implements the two Diffie-Hellman key agreements TLS 1.3
// clients need: X25519 (RFC 7748) and NIST P-256. Field and point arithmetic
// are written against fixed-width 64-bit limb arrays with explicit carry
// propagation; scalar multiplication performs the same operation sequence
// for every scalar.
package ecdh

import (
	"errors"
	"io"
)

// Curve is a group over which Diffie-Hellman key agreement can be performed.
type Curve interface {
	// GenerateKey draws an ephemeral private key from rand.
	GenerateKey(rand io.Reader) (*PrivateKey, error)

	// NewPublicKey parses a peer public key from its wire encoding
	// (32-byte u-coordinate for X25519, 65-byte uncompressed point for
	// P-256). Only the encoding is checked; subgroup membership is not.
	NewPublicKey(key []byte) (*PublicKey, error)

	// ecdh computes the shared x-coordinate.
	ecdh(priv *PrivateKey, pub *PublicKey) ([]byte, error)
}

// PublicKey is a peer's or our own public key.
type PublicKey struct {
	curve Curve
	bytes []byte
}

// Bytes returns the wire encoding of the key.
func (k *PublicKey) Bytes() []byte {
	return append([]byte(nil), k.bytes...)
}

// PrivateKey is an ephemeral private scalar together with its public key.
type PrivateKey struct {
	curve  Curve
	scalar []byte
	pub    *PublicKey
}

// PublicKey returns the corresponding public key.
func (k *PrivateKey) PublicKey() *PublicKey { return k.pub }

// ECDH computes the shared secret with the given peer key. The peer key must
// belong to the same curve. A non-contributory X25519 peer key (one that
// forces the all-zero shared secret) is rejected here so no caller can
// forget to.
func (k *PrivateKey) ECDH(peer *PublicKey) ([]byte, error) {
	if peer.curve != k.curve {
		return nil, errors.New("ecdh: private key and public key curves do not match")
	}
	return k.curve.ecdh(k, peer)
}

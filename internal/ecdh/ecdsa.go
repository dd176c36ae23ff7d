// Copyright 2025 The TinyTLS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ecdh

import "math/bits"

// VerifyECDSAP256 verifies an ECDSA signature (r, s) over digest with an
// uncompressed P-256 public key. r and s are big-endian, minimally encoded.
// Verification handles public data only, so it does not need to be constant
// time, but it reuses the curve's constant-time arithmetic.
func VerifyECDSAP256(pub, digest, r, s []byte) bool {
	pt, err := p256ParsePoint(pub)
	if err != nil {
		return false
	}

	rb, ok := p256DecodeScalar(r)
	if !ok {
		return false
	}
	sb, ok := p256DecodeScalar(s)
	if !ok {
		return false
	}

	e := p256HashToScalar(digest)

	// w = s^-1 mod n; u1 = e*w; u2 = r*w.
	o := p256Order
	w := o.invert(o.fromBytes(sb[:]))
	u1 := o.toBytes(o.mul(o.fromBytes(e[:]), w))
	u2 := o.toBytes(o.mul(o.fromBytes(rb[:]), w))

	sum := p256Add(
		p256ScalarMult(p256Generator(), u1[:]),
		p256ScalarMult(pt, u2[:]),
	)
	x, _, ok := p256Affine(sum)
	if !ok {
		return false
	}
	xr := p256Order.reduceBytes(x[:])
	return xr == rb
}

// p256DecodeScalar checks that the big-endian value is in [1, n-1] and
// returns it padded to 32 bytes.
func p256DecodeScalar(b []byte) ([32]byte, bool) {
	var out [32]byte
	for len(b) > 0 && b[0] == 0 {
		b = b[1:]
	}
	if len(b) == 0 || len(b) > 32 {
		return out, false
	}
	copy(out[32-len(b):], b)
	if !p256Order.lessThanModulus(out[:]) {
		return out, false
	}
	return out, true
}

// p256HashToScalar converts a digest to an integer mod n: the leftmost 256
// bits of the digest, reduced once.
func p256HashToScalar(digest []byte) [32]byte {
	var e [32]byte
	if len(digest) >= 32 {
		copy(e[:], digest[:32])
	} else {
		copy(e[32-len(digest):], digest)
	}
	return p256Order.reduceBytes(e[:])
}

// reduceBytes reduces a 32-byte big-endian value modulo m by a single
// conditional subtraction. Valid while the value is below 2m, which holds
// for both P-256 moduli against any 256-bit input.
func (f *montField) reduceBytes(b []byte) [32]byte {
	var v [4]uint64
	for i := 0; i < 4; i++ {
		v[3-i] = uint64(b[i*8])<<56 | uint64(b[i*8+1])<<48 | uint64(b[i*8+2])<<40 |
			uint64(b[i*8+3])<<32 | uint64(b[i*8+4])<<24 | uint64(b[i*8+5])<<16 |
			uint64(b[i*8+6])<<8 | uint64(b[i*8+7])
	}
	var d [4]uint64
	var borrow uint64
	for i := 0; i < 4; i++ {
		d[i], borrow = bits.Sub64(v[i], f.m[i], borrow)
	}
	mask := -borrow // all ones when v < m
	r := montSelect(v, d, mask)
	var out [32]byte
	for i := 0; i < 4; i++ {
		limb := r[3-i]
		out[i*8] = byte(limb >> 56)
		out[i*8+1] = byte(limb >> 48)
		out[i*8+2] = byte(limb >> 40)
		out[i*8+3] = byte(limb >> 32)
		out[i*8+4] = byte(limb >> 24)
		out[i*8+5] = byte(limb >> 16)
		out[i*8+6] = byte(limb >> 8)
		out[i*8+7] = byte(limb)
	}
	return out
}

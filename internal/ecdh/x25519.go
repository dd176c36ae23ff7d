// Copyright 2025 The TinyTLS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ecdh

import (
	"errors"
	"io"
	"math/bits"

	"github.com/tealfork/tinytls/internal/subtle"
)

// x25519Size is the size of X25519 keys and shared secrets in bytes.
const x25519Size = 32

type x25519Curve struct{}

// X25519 returns the Curve for RFC 7748 X25519 key agreement.
func X25519() Curve { return x25519Curve{} }

func (x25519Curve) GenerateKey(rand io.Reader) (*PrivateKey, error) {
	scalar := make([]byte, x25519Size)
	if _, err := io.ReadFull(rand, scalar); err != nil {
		return nil, err
	}
	return x25519Curve{}.newPrivateKey(scalar)
}

func (x25519Curve) newPrivateKey(scalar []byte) (*PrivateKey, error) {
	if len(scalar) != x25519Size {
		return nil, errors.New("ecdh: invalid X25519 private key size")
	}
	var basepoint [x25519Size]byte
	basepoint[0] = 9
	var k [x25519Size]byte
	copy(k[:], scalar)
	pub := x25519ScalarMult(&k, &basepoint)
	return &PrivateKey{
		curve:  x25519Curve{},
		scalar: append([]byte(nil), scalar...),
		pub:    &PublicKey{curve: x25519Curve{}, bytes: pub[:]},
	}, nil
}

func (x25519Curve) NewPublicKey(key []byte) (*PublicKey, error) {
	if len(key) != x25519Size {
		return nil, errors.New("ecdh: invalid X25519 public key size")
	}
	return &PublicKey{curve: x25519Curve{}, bytes: append([]byte(nil), key...)}, nil
}

func (x25519Curve) ecdh(priv *PrivateKey, pub *PublicKey) ([]byte, error) {
	var k, u [x25519Size]byte
	copy(k[:], priv.scalar)
	copy(u[:], pub.bytes)
	shared := x25519ScalarMult(&k, &u)
	// RFC 7748 Section 6.1: an all-zero output means the peer key was a
	// low-order point and the secret is non-contributory.
	if subtle.ConstantTimeAllZero(shared[:]) == 1 {
		return nil, errors.New("ecdh: bad X25519 remote ECDH input: low order point")
	}
	return shared[:], nil
}

// x25519ScalarMult runs the RFC 7748 Montgomery ladder: the scalar is
// clamped, then bits 254..0 drive a conditional-swap ladder that performs an
// identical operation sequence for every bit value.
func x25519ScalarMult(scalar, point *[32]byte) [32]byte {
	var k [32]byte
	copy(k[:], scalar[:])
	k[0] &= 248
	k[31] &= 127
	k[31] |= 64

	x1 := feFromBytes(point)
	x2 := feOne()
	z2 := fe25519{}
	x3 := x1
	z3 := feOne()

	a24 := fe25519{121665, 0, 0, 0}

	var swap uint64
	for t := 254; t >= 0; t-- {
		kt := uint64(k[t/8]>>(t%8)) & 1
		swap ^= kt
		feCSwap(&x2, &x3, swap)
		feCSwap(&z2, &z3, swap)
		swap = kt

		a := feAdd(x2, z2)
		aa := feMul(a, a)
		b := feSub(x2, z2)
		bb := feMul(b, b)
		e := feSub(aa, bb)
		c := feAdd(x3, z3)
		d := feSub(x3, z3)
		da := feMul(d, a)
		cb := feMul(c, b)
		t0 := feAdd(da, cb)
		x3 = feMul(t0, t0)
		t1 := feSub(da, cb)
		z3 = feMul(x1, feMul(t1, t1))
		x2 = feMul(aa, bb)
		z2 = feMul(e, feAdd(aa, feMul(a24, e)))
	}
	feCSwap(&x2, &x3, swap)
	feCSwap(&z2, &z3, swap)

	out := feMul(x2, feInvert(z2))
	return feToBytes(out)
}

// fe25519 is an element of GF(2^255-19): four 64-bit limbs, little-endian,
// kept below 2^255+small between operations and fully reduced on encode.
type fe25519 [4]uint64

var p25519 = fe25519{
	0xffffffffffffffed,
	0xffffffffffffffff,
	0xffffffffffffffff,
	0x7fffffffffffffff,
}

func feOne() fe25519 { return fe25519{1, 0, 0, 0} }

func feFromBytes(b *[32]byte) fe25519 {
	var r fe25519
	for i := 0; i < 4; i++ {
		r[i] = uint64(b[i*8]) | uint64(b[i*8+1])<<8 | uint64(b[i*8+2])<<16 |
			uint64(b[i*8+3])<<24 | uint64(b[i*8+4])<<32 | uint64(b[i*8+5])<<40 |
			uint64(b[i*8+6])<<48 | uint64(b[i*8+7])<<56
	}
	// RFC 7748: the top bit of the u-coordinate is masked off.
	r[3] &= 0x7fffffffffffffff
	return r
}

func feToBytes(a fe25519) [32]byte {
	r := feReduce(a)
	var out [32]byte
	for i := 0; i < 4; i++ {
		out[i*8] = byte(r[i])
		out[i*8+1] = byte(r[i] >> 8)
		out[i*8+2] = byte(r[i] >> 16)
		out[i*8+3] = byte(r[i] >> 24)
		out[i*8+4] = byte(r[i] >> 32)
		out[i*8+5] = byte(r[i] >> 40)
		out[i*8+6] = byte(r[i] >> 48)
		out[i*8+7] = byte(r[i] >> 56)
	}
	return out
}

// feReduce conditionally subtracts p so the result is the canonical
// representative. The choice is made by mask, not branch.
func feReduce(a fe25519) fe25519 {
	var d fe25519
	var borrow uint64
	for i := 0; i < 4; i++ {
		d[i], borrow = bits.Sub64(a[i], p25519[i], borrow)
	}
	mask := -borrow // all ones when a < p
	var r fe25519
	for i := 0; i < 4; i++ {
		r[i] = a[i]&mask | d[i]&^mask
	}
	return r
}

func feAdd(a, b fe25519) fe25519 {
	var s fe25519
	var carry uint64
	for i := 0; i < 4; i++ {
		s[i], carry = bits.Add64(a[i], b[i], carry)
	}
	// Inputs stay below 2^256-38, so the carry out is always zero and one
	// conditional subtraction restores the working range.
	return feReduce(s)
}

func feSub(a, b fe25519) fe25519 {
	var d fe25519
	var borrow uint64
	for i := 0; i < 4; i++ {
		d[i], borrow = bits.Sub64(a[i], b[i], borrow)
	}
	// Add p back when the subtraction borrowed.
	mask := -borrow
	var carry uint64
	var r fe25519
	for i := 0; i < 4; i++ {
		r[i], carry = bits.Add64(d[i], p25519[i]&mask, carry)
	}
	return r
}

func feMul(a, b fe25519) fe25519 {
	// Schoolbook 4x4 multiply into a 512-bit intermediate.
	var t [8]uint64
	for i := 0; i < 4; i++ {
		var carry uint64
		for j := 0; j < 4; j++ {
			hi, lo := bits.Mul64(a[i], b[j])
			lo, c1 := bits.Add64(lo, carry, 0)
			sum, c2 := bits.Add64(t[i+j], lo, 0)
			t[i+j] = sum
			carry = hi + c1 + c2
		}
		t[i+4] = carry
	}

	// Fold the high 256 bits: 2^256 = 38 (mod p).
	var r fe25519
	var carry uint64
	for i := 0; i < 4; i++ {
		hi, lo := bits.Mul64(t[i+4], 38)
		lo, c1 := bits.Add64(lo, t[i], 0)
		lo, c2 := bits.Add64(lo, carry, 0)
		r[i] = lo
		carry = hi + c1 + c2
	}

	// Fold the remaining overflow and the bit at 2^255: 2^255 = 19 (mod p).
	top := r[3] >> 63
	r[3] &= 0x7fffffffffffffff
	extra := carry*38 + top*19
	var c uint64
	r[0], c = bits.Add64(r[0], extra, 0)
	for i := 1; i < 4; i++ {
		r[i], c = bits.Add64(r[i], 0, c)
	}
	top = r[3] >> 63
	r[3] &= 0x7fffffffffffffff
	r[0], c = bits.Add64(r[0], top*19, 0)
	for i := 1; i < 4; i++ {
		r[i], c = bits.Add64(r[i], 0, c)
	}
	return r
}

// feInvert computes a^(p-2) by square-and-multiply. The exponent is a public
// constant, so branching on its bits leaks nothing.
func feInvert(a fe25519) fe25519 {
	pMinus2 := fe25519{
		0xffffffffffffffeb,
		0xffffffffffffffff,
		0xffffffffffffffff,
		0x7fffffffffffffff,
	}
	result := feOne()
	base := a
	for i := 0; i < 4; i++ {
		word := pMinus2[i]
		nbits := 64
		if i == 3 {
			nbits = 63
		}
		for j := 0; j < nbits; j++ {
			if word&1 == 1 {
				result = feMul(result, base)
			}
			base = feMul(base, base)
			word >>= 1
		}
	}
	return result
}

func feCSwap(a, b *fe25519, swap uint64) {
	mask := -swap
	for i := 0; i < 4; i++ {
		t := mask & (a[i] ^ b[i])
		a[i] ^= t
		b[i] ^= t
	}
}

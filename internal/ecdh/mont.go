// Copyright 2025 The TinyTLS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ecdh

import "math/bits"

// montField is arithmetic modulo an odd 256-bit prime in Montgomery form.
// Elements are four little-endian uint64 limbs holding a*R mod m with
// R = 2^256. All operations run in constant time with respect to element
// values; the modulus itself is public.
type montField struct {
	m   [4]uint64 // the modulus
	r   [4]uint64 // R mod m, the Montgomery one
	r2  [4]uint64 // R^2 mod m, for conversion into Montgomery form
	inv uint64    // -m^-1 mod 2^64
}

// newMontField derives the Montgomery constants from the modulus alone.
func newMontField(m [4]uint64) *montField {
	f := &montField{m: m}

	// inv = -m^-1 mod 2^64 by Newton iteration: y *= 2 - m*y doubles the
	// number of correct low bits each round, starting from y = m which is
	// correct to 3 bits for odd m.
	y := m[0]
	for i := 0; i < 5; i++ {
		y *= 2 - m[0]*y
	}
	f.inv = -y

	// R mod m = 2^256 - m for a 256-bit modulus: the two's complement
	// negation of m taken as a 256-bit value.
	var borrow uint64
	for i := 0; i < 4; i++ {
		f.r[i], borrow = bits.Sub64(0, m[i], borrow)
	}

	// R^2 mod m by doubling R mod m 256 times.
	f.r2 = f.r
	for i := 0; i < 256; i++ {
		f.r2 = f.add(f.r2, f.r2)
	}

	return f
}

// fromBytes converts a 32-byte big-endian value into Montgomery form. The
// value must already be below the modulus.
func (f *montField) fromBytes(b []byte) [4]uint64 {
	var v [4]uint64
	for i := 0; i < 4; i++ {
		v[3-i] = uint64(b[i*8])<<56 | uint64(b[i*8+1])<<48 | uint64(b[i*8+2])<<40 |
			uint64(b[i*8+3])<<32 | uint64(b[i*8+4])<<24 | uint64(b[i*8+5])<<16 |
			uint64(b[i*8+6])<<8 | uint64(b[i*8+7])
	}
	return f.mul(v, f.r2)
}

// toBytes converts out of Montgomery form into a 32-byte big-endian value.
func (f *montField) toBytes(a [4]uint64) [32]byte {
	one := [4]uint64{1, 0, 0, 0}
	v := f.mul(a, one)
	var out [32]byte
	for i := 0; i < 4; i++ {
		limb := v[3-i]
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

func (f *montField) one() [4]uint64 { return f.r }

func (f *montField) add(a, b [4]uint64) [4]uint64 {
	var s [4]uint64
	var carry uint64
	for i := 0; i < 4; i++ {
		s[i], carry = bits.Add64(a[i], b[i], carry)
	}
	return f.condSub(s, carry)
}

func (f *montField) sub(a, b [4]uint64) [4]uint64 {
	var d [4]uint64
	var borrow uint64
	for i := 0; i < 4; i++ {
		d[i], borrow = bits.Sub64(a[i], b[i], borrow)
	}
	mask := -borrow
	var carry uint64
	var r [4]uint64
	for i := 0; i < 4; i++ {
		r[i], carry = bits.Add64(d[i], f.m[i]&mask, carry)
	}
	return r
}

// condSub subtracts the modulus when the value, with its carry-out bit, is
// not below it. Selection is by mask.
func (f *montField) condSub(a [4]uint64, carry uint64) [4]uint64 {
	var d [4]uint64
	var borrow uint64
	for i := 0; i < 4; i++ {
		d[i], borrow = bits.Sub64(a[i], f.m[i], borrow)
	}
	// Keep the subtracted value when the carry absorbed the borrow or no
	// borrow happened at all.
	mask := -(borrow &^ carry) // all ones when a+carry*2^256 < m
	var r [4]uint64
	for i := 0; i < 4; i++ {
		r[i] = a[i]&mask | d[i]&^mask
	}
	return r
}

// mul is CIOS Montgomery multiplication: interleaved multiply and reduce,
// one limb of b at a time.
func (f *montField) mul(a, b [4]uint64) [4]uint64 {
	var t [5]uint64
	for i := 0; i < 4; i++ {
		// t += a * b[i]
		var carry uint64
		for j := 0; j < 4; j++ {
			hi, lo := bits.Mul64(a[j], b[i])
			lo, c1 := bits.Add64(lo, t[j], 0)
			lo, c2 := bits.Add64(lo, carry, 0)
			t[j] = lo
			carry = hi + c1 + c2
		}
		var c uint64
		t[4], c = bits.Add64(t[4], carry, 0)
		extra := c

		// t += m * q; t >>= 64. q is chosen so the low limb cancels.
		q := t[0] * f.inv
		carry = 0
		for j := 0; j < 4; j++ {
			hi, lo := bits.Mul64(f.m[j], q)
			lo, c1 := bits.Add64(lo, t[j], 0)
			lo, c2 := bits.Add64(lo, carry, 0)
			t[j] = lo
			carry = hi + c1 + c2
		}
		t[4], c = bits.Add64(t[4], carry, 0)
		extra += c

		t[0] = t[1]
		t[1] = t[2]
		t[2] = t[3]
		t[3] = t[4]
		t[4] = extra
	}
	return f.condSub([4]uint64{t[0], t[1], t[2], t[3]}, t[4])
}

func (f *montField) square(a [4]uint64) [4]uint64 { return f.mul(a, a) }

// exp computes a^e for a public exponent given as big-endian bytes.
func (f *montField) exp(a [4]uint64, e []byte) [4]uint64 {
	result := f.one()
	for _, by := range e {
		for bit := 7; bit >= 0; bit-- {
			result = f.square(result)
			if by>>uint(bit)&1 == 1 {
				result = f.mul(result, a)
			}
		}
	}
	return result
}

// invert computes a^(m-2). Valid only for prime moduli and nonzero a.
func (f *montField) invert(a [4]uint64) [4]uint64 {
	var e [32]byte
	var mm [4]uint64
	var borrow uint64
	mm[0], borrow = bits.Sub64(f.m[0], 2, 0)
	for i := 1; i < 4; i++ {
		mm[i], borrow = bits.Sub64(f.m[i], 0, borrow)
	}
	for i := 0; i < 4; i++ {
		limb := mm[3-i]
		e[i*8] = byte(limb >> 56)
		e[i*8+1] = byte(limb >> 48)
		e[i*8+2] = byte(limb >> 40)
		e[i*8+3] = byte(limb >> 32)
		e[i*8+4] = byte(limb >> 24)
		e[i*8+5] = byte(limb >> 16)
		e[i*8+6] = byte(limb >> 8)
		e[i*8+7] = byte(limb)
	}
	return f.exp(a, e[:])
}

// isZero reports in constant time whether a is the zero element.
func (f *montField) isZero(a [4]uint64) uint64 {
	v := a[0] | a[1] | a[2] | a[3]
	return 1 ^ ((v | -v) >> 63)
}

// montSelect returns a when mask is all ones and b when it is zero.
func montSelect(a, b [4]uint64, mask uint64) [4]uint64 {
	var r [4]uint64
	for i := 0; i < 4; i++ {
		r[i] = a[i]&mask | b[i]&^mask
	}
	return r
}

// lessThanModulus reports whether the big-endian bytes b, interpreted as a
// 256-bit integer, are below the modulus.
func (f *montField) lessThanModulus(b []byte) bool {
	var v [4]uint64
	for i := 0; i < 4; i++ {
		v[3-i] = uint64(b[i*8])<<56 | uint64(b[i*8+1])<<48 | uint64(b[i*8+2])<<40 |
			uint64(b[i*8+3])<<32 | uint64(b[i*8+4])<<24 | uint64(b[i*8+5])<<16 |
			uint64(b[i*8+6])<<8 | uint64(b[i*8+7])
	}
	var borrow uint64
	for i := 0; i < 4; i++ {
		_, borrow = bits.Sub64(v[i], f.m[i], borrow)
	}
	return borrow == 1
}

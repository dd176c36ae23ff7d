// Copyright 2025 The TinyTLS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package subtle provides constant-time primitives for code that needs to
// avoid leaking secrets through timing. Every function examines all of its
// input regardless of content; none of them branch on secret data.
package subtle

// ConstantTimeCompare returns 1 if x and y have equal length and contents,
// and 0 otherwise. The time taken depends on the lengths but not on the
// contents.
func ConstantTimeCompare(x, y []byte) int {
	if len(x) != len(y) {
		return 0
	}
	var v byte
	for i := 0; i < len(x); i++ {
		v |= x[i] ^ y[i]
	}
	return ConstantTimeByteEq(v, 0)
}

// ConstantTimeByteEq returns 1 if x == y and 0 otherwise.
func ConstantTimeByteEq(x, y uint8) int {
	return int((uint32(x^y) - 1) >> 31)
}

// ConstantTimeSelect returns x if v == 1 and y if v == 0.
// Behavior is undefined for other values of v.
func ConstantTimeSelect(v, x, y int) int {
	return ^(v-1)&x | (v-1)&y
}

// ConstantTimeCopy copies the contents of y into x (both of which must have
// the same length) if v == 1. If v == 0 x is left unchanged. Behavior is
// undefined for other values of v.
func ConstantTimeCopy(v int, x, y []byte) {
	if len(x) != len(y) {
		panic("subtle: slices have different lengths")
	}
	xmask := byte(v - 1)
	ymask := byte(^(v - 1))
	for i := 0; i < len(x); i++ {
		x[i] = x[i]&xmask | y[i]&ymask
	}
}

// ConstantTimeAllZero returns 1 if every byte of p is zero, 0 otherwise.
// Used to reject non-contributory X25519 peer keys.
func ConstantTimeAllZero(p []byte) int {
	var acc byte
	for _, b := range p {
		acc |= b
	}
	return ConstantTimeByteEq(acc, 0)
}

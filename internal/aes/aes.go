// Copyright 2025 The TinyTLS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package aes implements the AES block cipher (FIPS 197) with 128-, 192- and
// 256-bit keys.
//
// The substitution step uses in-memory S-box lookups. Go offers no
// source-level control over cache behavior, so the cipher is deliberately
// kept behind this package's narrow Cipher interface: a masked or bit-sliced
// implementation can replace it without touching the record or handshake
// layers.
package aes

import (
	"encoding/binary"
	"fmt"
)

// BlockSize is the AES block size in bytes.
const BlockSize = 16

// KeySizeError is returned by NewCipher for keys that are not 16, 24 or 32
// bytes long.
type KeySizeError int

func (k KeySizeError) Error() string {
	return fmt.Sprintf("aes: invalid key size %d", int(k))
}

// Cipher is a single AES key schedule. It is safe for concurrent use once
// created.
type Cipher struct {
	enc []uint32
	dec []uint32
}

// NewCipher expands key into a round-key schedule and returns the resulting
// cipher. The number of rounds follows the key length: 10, 12 or 14.
func NewCipher(key []byte) (*Cipher, error) {
	switch len(key) {
	case 16, 24, 32:
	default:
		return nil, KeySizeError(len(key))
	}
	n := len(key)/4 + 7 // Nr + 1 words of 4
	c := &Cipher{
		enc: make([]uint32, 4*n),
		dec: make([]uint32, 4*n),
	}
	expandKey(key, c.enc, c.dec)
	return c, nil
}

// BlockSize returns the cipher's block size, always 16.
func (c *Cipher) BlockSize() int { return BlockSize }

// Encrypt encrypts the 16-byte block in src into dst. Dst and src may
// overlap entirely or not at all.
func (c *Cipher) Encrypt(dst, src []byte) {
	if len(src) < BlockSize || len(dst) < BlockSize {
		panic("aes: block too short")
	}
	encryptBlock(c.enc, dst, src)
}

// Decrypt decrypts the 16-byte block in src into dst.
func (c *Cipher) Decrypt(dst, src []byte) {
	if len(src) < BlockSize || len(dst) < BlockSize {
		panic("aes: block too short")
	}
	decryptBlock(c.dec, dst, src)
}

// Round constants for the key schedule, x^(i-1) in GF(2^8).
var rcon = [10]byte{0x01, 0x02, 0x04, 0x08, 0x10, 0x20, 0x40, 0x80, 0x1b, 0x36}

func subw(w uint32) uint32 {
	return uint32(sbox[w>>24])<<24 |
		uint32(sbox[w>>16&0xff])<<16 |
		uint32(sbox[w>>8&0xff])<<8 |
		uint32(sbox[w&0xff])
}

func rotw(w uint32) uint32 { return w<<8 | w>>24 }

// expandKey fills enc with the encryption round keys and dec with the
// equivalent-inverse-cipher decryption round keys (reversed rounds with
// InvMixColumns applied to the middle ones).
func expandKey(key []byte, enc, dec []uint32) {
	nk := len(key) / 4
	for i := 0; i < nk; i++ {
		enc[i] = binary.BigEndian.Uint32(key[4*i:])
	}
	for i := nk; i < len(enc); i++ {
		t := enc[i-1]
		if i%nk == 0 {
			t = subw(rotw(t)) ^ uint32(rcon[i/nk-1])<<24
		} else if nk > 6 && i%nk == 4 {
			t = subw(t)
		}
		enc[i] = enc[i-nk] ^ t
	}

	n := len(enc)
	for i := 0; i < n; i += 4 {
		ei := n - i - 4
		for j := 0; j < 4; j++ {
			x := enc[ei+j]
			if i > 0 && i+4 < n {
				x = invMixColumnWord(x)
			}
			dec[i+j] = x
		}
	}
}

// xtime multiplies by x in GF(2^8) with the AES reduction polynomial.
func xtime(b byte) byte {
	return b<<1 ^ byte(int8(b)>>7)&0x1b
}

func mul(a, b byte) byte {
	var p byte
	for i := 0; i < 8; i++ {
		p ^= byte(int8(b<<uint(7-i)&0x80)>>7) & a
		a = xtime(a)
	}
	return p
}

func invMixColumnWord(w uint32) uint32 {
	var c [4]byte
	binary.BigEndian.PutUint32(c[:], w)
	var o [4]byte
	o[0] = mul(c[0], 0x0e) ^ mul(c[1], 0x0b) ^ mul(c[2], 0x0d) ^ mul(c[3], 0x09)
	o[1] = mul(c[0], 0x09) ^ mul(c[1], 0x0e) ^ mul(c[2], 0x0b) ^ mul(c[3], 0x0d)
	o[2] = mul(c[0], 0x0d) ^ mul(c[1], 0x09) ^ mul(c[2], 0x0e) ^ mul(c[3], 0x0b)
	o[3] = mul(c[0], 0x0b) ^ mul(c[1], 0x0d) ^ mul(c[2], 0x09) ^ mul(c[3], 0x0e)
	return binary.BigEndian.Uint32(o[:])
}

func encryptBlock(rk []uint32, dst, src []byte) {
	var s [16]byte
	copy(s[:], src[:16])

	addRoundKey(&s, rk[:4])
	rounds := len(rk)/4 - 1
	for r := 1; r < rounds; r++ {
		subBytes(&s)
		shiftRows(&s)
		mixColumns(&s)
		addRoundKey(&s, rk[4*r:4*r+4])
	}
	subBytes(&s)
	shiftRows(&s)
	addRoundKey(&s, rk[4*rounds:4*rounds+4])

	copy(dst[:16], s[:])
}

func decryptBlock(rk []uint32, dst, src []byte) {
	var s [16]byte
	copy(s[:], src[:16])

	addRoundKey(&s, rk[:4])
	rounds := len(rk)/4 - 1
	// Equivalent inverse cipher: the middle round keys already carry
	// InvMixColumns, so it runs before AddRoundKey.
	for r := 1; r < rounds; r++ {
		invShiftRows(&s)
		invSubBytes(&s)
		invMixColumns(&s)
		addRoundKey(&s, rk[4*r:4*r+4])
	}
	invShiftRows(&s)
	invSubBytes(&s)
	addRoundKey(&s, rk[4*rounds:4*rounds+4])

	copy(dst[:16], s[:])
}

func addRoundKey(s *[16]byte, rk []uint32) {
	for c := 0; c < 4; c++ {
		w := rk[c]
		s[4*c+0] ^= byte(w >> 24)
		s[4*c+1] ^= byte(w >> 16)
		s[4*c+2] ^= byte(w >> 8)
		s[4*c+3] ^= byte(w)
	}
}

func subBytes(s *[16]byte) {
	for i, b := range s {
		s[i] = sbox[b]
	}
}

func invSubBytes(s *[16]byte) {
	for i, b := range s {
		s[i] = invSbox[b]
	}
}

// shiftRows rotates row r left by r positions. The state is stored
// column-major: byte (r, c) lives at s[4c+r].
func shiftRows(s *[16]byte) {
	s[1], s[5], s[9], s[13] = s[5], s[9], s[13], s[1]
	s[2], s[6], s[10], s[14] = s[10], s[14], s[2], s[6]
	s[3], s[7], s[11], s[15] = s[15], s[3], s[7], s[11]
}

func invShiftRows(s *[16]byte) {
	s[5], s[9], s[13], s[1] = s[1], s[5], s[9], s[13]
	s[10], s[14], s[2], s[6] = s[2], s[6], s[10], s[14]
	s[15], s[3], s[7], s[11] = s[3], s[7], s[11], s[15]
}

func mixColumns(s *[16]byte) {
	for c := 0; c < 4; c++ {
		a0, a1, a2, a3 := s[4*c], s[4*c+1], s[4*c+2], s[4*c+3]
		s[4*c+0] = xtime(a0) ^ xtime(a1) ^ a1 ^ a2 ^ a3
		s[4*c+1] = a0 ^ xtime(a1) ^ xtime(a2) ^ a2 ^ a3
		s[4*c+2] = a0 ^ a1 ^ xtime(a2) ^ xtime(a3) ^ a3
		s[4*c+3] = xtime(a0) ^ a0 ^ a1 ^ a2 ^ xtime(a3)
	}
}

func invMixColumns(s *[16]byte) {
	for c := 0; c < 4; c++ {
		a0, a1, a2, a3 := s[4*c], s[4*c+1], s[4*c+2], s[4*c+3]
		s[4*c+0] = mul(a0, 0x0e) ^ mul(a1, 0x0b) ^ mul(a2, 0x0d) ^ mul(a3, 0x09)
		s[4*c+1] = mul(a0, 0x09) ^ mul(a1, 0x0e) ^ mul(a2, 0x0b) ^ mul(a3, 0x0d)
		s[4*c+2] = mul(a0, 0x0d) ^ mul(a1, 0x09) ^ mul(a2, 0x0e) ^ mul(a3, 0x0b)
		s[4*c+3] = mul(a0, 0x0b) ^ mul(a1, 0x0d) ^ mul(a2, 0x09) ^ mul(a3, 0x0e)
	}
}

// Copyright 2025 The TinyTLS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package aes

import (
	"bytes"
	"encoding/hex"
	"testing"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

// Block cipher vectors from FIPS 197, Appendix C, and NIST SP 800-38A.
var blockVectors = []struct {
	key, plaintext, ciphertext string
}{
	{
		"000102030405060708090a0b0c0d0e0f",
		"00112233445566778899aabbccddeeff",
		"69c4e0d86a7b0430d8cdb78070b4c55a",
	},
	{
		"000102030405060708090a0b0c0d0e0f1011121314151617",
		"00112233445566778899aabbccddeeff",
		"dda97ca4864cdfe06eaf70a0ec0d7191",
	},
	{
		"000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f",
		"00112233445566778899aabbccddeeff",
		"8ea2b7ca516745bfeafc49904b496089",
	},
	{
		"2b7e151628aed2a6abf7158809cf4f3c",
		"6bc1bee22e409f96e93d7e117393172a",
		"3ad77bb40d7a3660a89ecaf32466ef97",
	},
	{
		"603deb1015ca71be2b73aef0857d77811f352c073b6108d72d9810a30914dff4",
		"6bc1bee22e409f96e93d7e117393172a",
		"f3eed1bdb5d2a03c064b5a7e3db181f8",
	},
}

func TestEncryptDecrypt(t *testing.T) {
	for i, tt := range blockVectors {
		key := mustHex(t, tt.key)
		plaintext := mustHex(t, tt.plaintext)
		ciphertext := mustHex(t, tt.ciphertext)

		c, err := NewCipher(key)
		if err != nil {
			t.Fatalf("case %d: NewCipher: %v", i, err)
		}

		got := make([]byte, BlockSize)
		c.Encrypt(got, plaintext)
		if !bytes.Equal(got, ciphertext) {
			t.Errorf("case %d: Encrypt = %x, want %x", i, got, ciphertext)
		}

		c.Decrypt(got, ciphertext)
		if !bytes.Equal(got, plaintext) {
			t.Errorf("case %d: Decrypt = %x, want %x", i, got, plaintext)
		}
	}
}

func TestKeySizes(t *testing.T) {
	for _, n := range []int{16, 24, 32} {
		if _, err := NewCipher(make([]byte, n)); err != nil {
			t.Errorf("NewCipher with %d-byte key: %v", n, err)
		}
	}
	for _, n := range []int{0, 15, 17, 31, 33} {
		if _, err := NewCipher(make([]byte, n)); err == nil {
			t.Errorf("NewCipher accepted a %d-byte key", n)
		}
	}
}

func TestRoundTripInPlace(t *testing.T) {
	c, err := NewCipher(mustHex(t, "000102030405060708090a0b0c0d0e0f"))
	if err != nil {
		t.Fatal(err)
	}
	buf := mustHex(t, "00112233445566778899aabbccddeeff")
	want := append([]byte(nil), buf...)
	c.Encrypt(buf, buf)
	c.Decrypt(buf, buf)
	if !bytes.Equal(buf, want) {
		t.Errorf("in-place round trip = %x, want %x", buf, want)
	}
}

// Copyright 2025 The TinyTLS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gcm

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

// Test vectors from the original GCM submission (McGrew and Viega).
var gcmVectors = []struct {
	key, nonce, plaintext, aad, result string
}{
	{
		"00000000000000000000000000000000",
		"000000000000000000000000",
		"",
		"",
		"58e2fccefa7e3061367f1d57a4e7455a",
	},
	{
		"00000000000000000000000000000000",
		"000000000000000000000000",
		"00000000000000000000000000000000",
		"",
		"0388dace60b6a392f328c2b971b2fe78ab6e47d42cec13bdf53a67b21257bddf",
	},
	{
		"feffe9928665731c6d6a8f9467308308",
		"cafebabefacedbaddecaf888",
		"d9313225f88406e5a55909c5aff5269a86a7a9531534f7da2e4c303d8a318a721c3c0c95956809532fcf0e2449a6b525b16aedf5aa0de657ba637b391aafd255",
		"",
		"42831ec2217774244b7221b784d0d49ce3aa212f2c02a4e035c17e2329aca12e21d514b25466931c7d8f6a5aac84aa051ba30b396a0aac973d58e091473f59854d5c2af327cd64a62cf35abd2ba6fab4",
	},
	{
		"feffe9928665731c6d6a8f9467308308",
		"cafebabefacedbaddecaf888",
		"d9313225f88406e5a55909c5aff5269a86a7a9531534f7da2e4c303d8a318a721c3c0c95956809532fcf0e2449a6b525b16aedf5aa0de657ba637b39",
		"feedfacedeadbeeffeedfacedeadbeefabaddad2",
		"42831ec2217774244b7221b784d0d49ce3aa212f2c02a4e035c17e2329aca12e21d514b25466931c7d8f6a5aac84aa051ba30b396a0aac973d58e0915bc94fbc3221a5db94fae95ae7121a47",
	},
	{
		"feffe9928665731c6d6a8f9467308308feffe9928665731c6d6a8f9467308308",
		"cafebabefacedbaddecaf888",
		"d9313225f88406e5a55909c5aff5269a86a7a9531534f7da2e4c303d8a318a721c3c0c95956809532fcf0e2449a6b525b16aedf5aa0de657ba637b39",
		"feedfacedeadbeeffeedfacedeadbeefabaddad2",
		"522dc1f099567d07f47f37a32a84427d643a8cdcbfe5c0c97598a2bd2555d1aa8cb08e48590dbb3da7b08b1056828838c5f61e6393ba7a0abcc9f66276fc6ece0f4e1768cddf8853bb2d551b",
	},
}

func TestSealVectors(t *testing.T) {
	for i, tt := range gcmVectors {
		g, err := New(mustHex(t, tt.key))
		if err != nil {
			t.Fatalf("case %d: New: %v", i, err)
		}
		nonce := mustHex(t, tt.nonce)
		plaintext := mustHex(t, tt.plaintext)
		aad := mustHex(t, tt.aad)
		want := mustHex(t, tt.result)

		got := g.Seal(nil, nonce, plaintext, aad)
		if !bytes.Equal(got, want) {
			t.Errorf("case %d: Seal = %x, want %x", i, got, want)
		}

		back, err := g.Open(nil, nonce, got, aad)
		if err != nil {
			t.Errorf("case %d: Open: %v", i, err)
		}
		if !bytes.Equal(back, plaintext) {
			t.Errorf("case %d: Open = %x, want %x", i, back, plaintext)
		}
	}
}

func TestOpenRejectsTampering(t *testing.T) {
	g, err := New(mustHex(t, "feffe9928665731c6d6a8f9467308308"))
	if err != nil {
		t.Fatal(err)
	}
	nonce := mustHex(t, "cafebabefacedbaddecaf888")
	aad := []byte("header")
	sealed := g.Seal(nil, nonce, []byte("attack at dawn"), aad)

	for i := range sealed {
		tampered := append([]byte(nil), sealed...)
		tampered[i] ^= 0x01
		if _, err := g.Open(nil, nonce, tampered, aad); err != ErrAuthentication {
			t.Fatalf("byte %d: tampered ciphertext accepted", i)
		}
	}

	if _, err := g.Open(nil, nonce, sealed, []byte("other header")); err != ErrAuthentication {
		t.Error("tampered additional data accepted")
	}
	wrongNonce := mustHex(t, "cafebabefacedbaddecaf889")
	if _, err := g.Open(nil, wrongNonce, sealed, aad); err != ErrAuthentication {
		t.Error("wrong nonce accepted")
	}
}

func TestShortCiphertext(t *testing.T) {
	g, err := New(make([]byte, 16))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := g.Open(nil, make([]byte, NonceSize), make([]byte, TagSize-1), nil); err == nil {
		t.Error("Open accepted a ciphertext shorter than the tag")
	}
}

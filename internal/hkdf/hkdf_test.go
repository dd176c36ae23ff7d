// Copyright 2025 The TinyTLS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hkdf

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/tealfork/tinytls/internal/sha2"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("bad hex %q: %v", s, err)
	}
	return b
}

// Test vectors from RFC 5869 Appendix A (the SHA-256 cases).
func TestRFC5869(t *testing.T) {
	tests := []struct {
		name   string
		ikm    string
		salt   string
		info   string
		prk    string
		okm    string
		okmLen int
	}{
		{
			name:   "basic",
			ikm:    "0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b",
			salt:   "000102030405060708090a0b0c",
			info:   "f0f1f2f3f4f5f6f7f8f9",
			prk:    "077709362c2e32df0ddc3f0dc47bba6390b6c73bb50f9c3122ec844ad7c2b3e5",
			okm:    "3cb25f25faacd57a90434f64d0362f2a2d2d0a90cf1a5a4c5db02d56ecc4c5bf34007208d5b887185865",
			okmLen: 42,
		},
		{
			name: "longer inputs",
			ikm: "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f" +
				"202122232425262728292a2b2c2d2e2f303132333435363738393a3b3c3d3e3f" +
				"404142434445464748494a4b4c4d4e4f",
			salt: "606162636465666768696a6b6c6d6e6f707172737475767778797a7b7c7d7e7f" +
				"808182838485868788898a8b8c8d8e8f909192939495969798999a9b9c9d9e9f" +
				"a0a1a2a3a4a5a6a7a8a9aaabacadaeaf",
			info: "b0b1b2b3b4b5b6b7b8b9babbbcbdbebfc0c1c2c3c4c5c6c7c8c9cacbcccdcecf" +
				"d0d1d2d3d4d5d6d7d8d9dadbdcdddedfe0e1e2e3e4e5e6e7e8e9eaebecedeeef" +
				"f0f1f2f3f4f5f6f7f8f9fafbfcfdfeff",
			prk: "06a6b88c5853361a06104c9ceb35b45cef760014904671014a193f40c15fc244",
			okm: "b11e398dc80327a1c8e7f78c596a49344f012eda2d4efad8a050cc4c19afa97c" +
				"59045a99cac7827271cb41c65e590e09da3275600c2f09b8367793a9aca3db71" +
				"cc30c58179ec3e87c14c01d5c1f3434f1d87",
			okmLen: 82,
		},
		{
			name:   "zero-length salt and info",
			ikm:    "0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b",
			salt:   "",
			info:   "",
			prk:    "19ef24a32c717b167f33a91d6f648bdf96596776afdb6377ac434c1c293ccb04",
			okm:    "8da4e775a563c18f715f802a063c5a31b8a11f5c5ee1879ec3454e5f3c738d2d9d201395faa4b61a96c8",
			okmLen: 42,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			prk := Extract(sha2.New256, mustHex(t, tc.ikm), mustHex(t, tc.salt))
			if !bytes.Equal(prk, mustHex(t, tc.prk)) {
				t.Errorf("Extract = %x, want %s", prk, tc.prk)
			}
			okm, err := Expand(sha2.New256, prk, mustHex(t, tc.info), tc.okmLen)
			if err != nil {
				t.Fatalf("Expand: %v", err)
			}
			if !bytes.Equal(okm, mustHex(t, tc.okm)) {
				t.Errorf("Expand = %x, want %s", okm, tc.okm)
			}
		})
	}
}

// A nil salt and an empty salt must produce the same PRK.
func TestExtractNilSalt(t *testing.T) {
	ikm := mustHex(t, "0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b")
	if got, want := Extract(sha2.New256, ikm, nil), Extract(sha2.New256, ikm, []byte{}); !bytes.Equal(got, want) {
		t.Errorf("nil salt PRK %x differs from empty salt PRK %x", got, want)
	}
}

func TestExpandOutputLengths(t *testing.T) {
	prk := Extract(sha2.New384, []byte("input keying material"), []byte("salt"))
	info := []byte("context")
	var prev []byte
	for _, n := range []int{0, 1, 47, 48, 49, 96, 255} {
		okm, err := Expand(sha2.New384, prk, info, n)
		if err != nil {
			t.Fatalf("Expand(%d): %v", n, err)
		}
		if len(okm) != n {
			t.Fatalf("Expand(%d) returned %d bytes", n, len(okm))
		}
		// Longer outputs extend shorter ones, never rewrite them.
		if len(prev) <= len(okm) && !bytes.Equal(okm[:len(prev)], prev) {
			t.Errorf("Expand(%d) is not a prefix-extension of the previous output", n)
		}
		prev = okm
	}
}

func TestExpandLimit(t *testing.T) {
	prk := Extract(sha2.New256, []byte("ikm"), nil)
	if _, err := Expand(sha2.New256, prk, nil, 255*32); err != nil {
		t.Errorf("Expand at 255 blocks: %v", err)
	}
	if _, err := Expand(sha2.New256, prk, nil, 255*32+1); err != ErrLimit {
		t.Errorf("Expand past the block limit: got %v, want ErrLimit", err)
	}
}

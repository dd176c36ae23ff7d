// Copyright 2025 The TinyTLS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hmac

import (
	"bytes"
	"encoding/hex"
	"hash"
	"testing"

	"github.com/tealfork/tinytls/internal/sha2"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

// RFC 4231 test cases.
var rfc4231Cases = []struct {
	key, data string
	sha256    string
	sha384    string
}{
	{
		// Test Case 1
		"0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b",
		"4869205468657265",
		"b0344c61d8db38535ca8afceaf0bf12b881dc200c9833da726e9376c2e32cff7",
		"afd03944d84895626b0825f4ab46907f15f9dadbe4101ec682aa034c7cebc59cfaea9ea9076ede7f4af152e8b2fa9cb6",
	},
	{
		// Test Case 2: short key, "what do ya want for nothing?"
		"4a656665",
		"7768617420646f2079612077616e7420666f72206e6f7468696e673f",
		"5bdcc146bf60754e6a042426089575c75a003f089d2739839dec58b964ec3843",
		"af45d2e376484031617f78d2b58a6b1b9c7ef464f5a01b47e42ec3736322445e8e2240ca5e69e2c78b3239ecfab21649",
	},
	{
		// Test Case 3: 20-byte key, fifty 0xdd bytes
		"aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		"dddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddd",
		"773ea91e36800e46854db8ebd09181a72959098b3ef8c122d9635514ced565fe",
		"88062608d3e6ad8a0aa2ace014c8a86f0aa635d947ac9febe83ef4e55966144b2a5ab39dc13814b94e3ab6e101a34f27",
	},
	{
		// Test Case 7: key larger than the block size
		"aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		"5468697320697320612074657374207573696e672061206c6172676572207468616e20626c6f636b2d73697a65206b657920616e642061206c6172676572207468616e20626c6f636b2d73697a6520646174612e20546865206b6579206e6565647320746f20626520686173686564206265666f7265206265696e6720757365642062792074686520484d414320616c676f726974686d2e",
		"9b09ffa71b942fcb27635fbcd5b0e944bfdc63644f0713938a7f51535c3a35e2",
		"6617178e941f020d351e2f254e8fd32c602420feb0b8fb9adccebb82461e99c5a678cc31e799176d3860e6110c46523e",
	},
}

func TestRFC4231(t *testing.T) {
	for i, tt := range rfc4231Cases {
		key := mustHex(t, tt.key)
		data := mustHex(t, tt.data)

		if got := Sum(sha2.New256, key, data); !bytes.Equal(got, mustHex(t, tt.sha256)) {
			t.Errorf("case %d: HMAC-SHA-256 = %x, want %s", i, got, tt.sha256)
		}
		if got := Sum(sha2.New384, key, data); !bytes.Equal(got, mustHex(t, tt.sha384)) {
			t.Errorf("case %d: HMAC-SHA-384 = %x, want %s", i, got, tt.sha384)
		}
	}
}

func TestIncremental(t *testing.T) {
	key := []byte("test key")
	data := []byte("some data to authenticate, longer than one write")

	var h hash.Hash = New(sha2.New256, key)
	h.Write(data[:10])
	h.Write(data[10:])
	if got, want := h.Sum(nil), Sum(sha2.New256, key, data); !bytes.Equal(got, want) {
		t.Errorf("incremental = %x, want %x", got, want)
	}
}

func TestReset(t *testing.T) {
	key := []byte("another key")
	h := New(sha2.New256, key)
	h.Write([]byte("first message"))
	h.Sum(nil)
	h.Reset()
	h.Write([]byte("second message"))
	if got, want := h.Sum(nil), Sum(sha2.New256, key, []byte("second message")); !bytes.Equal(got, want) {
		t.Errorf("after Reset = %x, want %x", got, want)
	}
}

// Copyright 2025 The TinyTLS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sha2

import (
	"encoding/hex"
	"strings"
	"testing"
)

// FIPS 180-4 test vectors.
var sha256Vectors = []struct {
	in   string
	want string
}{
	{"", "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"},
	{"abc", "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"},
	{"abcdbcdecdefdefgefghfghighijhijkijkljklmklmnlmnomnopnopq",
		"248d6a61d20638b8e5c026930c3e6039a33ce45964ff2167f6ecedd419db06c1"},
	{strings.Repeat("a", 1000000),
		"cdc76e5c9914fb9281a1c7e284d73e67f1809a48a497200e046d39ccc7112cd0"},
}

var sha384Vectors = []struct {
	in   string
	want string
}{
	{"", "38b060a751ac96384cd9327eb1b1e36a21fdb71114be07434c0cc7bf63f6e1da274edebfe76f65fbd51ad2f14898b95b"},
	{"abc", "cb00753f45a35e8bb5a03d699ac65007272c32ab0eded1631a8b605a43ff5bed8086072ba1e7cc2358baeca134c825a7"},
	{"abcdefghbcdefghicdefghijdefghijkefghijklfghijklmghijklmnhijklmnoijklmnopjklmnopqklmnopqrlmnopqrsmnopqrstnopqrstu",
		"09330c33f71147e83d192fc782cd1b4753111b173b3b05d22fa08086e3b0f712fcc7c71a557e2db966c3e9fa91746039"},
}

func TestSum256(t *testing.T) {
	for _, tt := range sha256Vectors {
		got := Sum256([]byte(tt.in))
		if hex.EncodeToString(got[:]) != tt.want {
			t.Errorf("Sum256(%.16q...) = %x, want %s", tt.in, got, tt.want)
		}
	}
}

func TestSum384(t *testing.T) {
	for _, tt := range sha384Vectors {
		got := Sum384([]byte(tt.in))
		if hex.EncodeToString(got[:]) != tt.want {
			t.Errorf("Sum384(%.16q...) = %x, want %s", tt.in, got, tt.want)
		}
	}
}

// TestIncrementalWrites checks that split writes across block boundaries
// produce the same digest as a single write.
func TestIncrementalWrites(t *testing.T) {
	input := []byte(strings.Repeat("0123456789abcdef", 40))
	want := Sum256(input)

	for _, split := range []int{1, 7, 63, 64, 65, 127, 200} {
		h := New256()
		for i := 0; i < len(input); i += split {
			end := i + split
			if end > len(input) {
				end = len(input)
			}
			h.Write(input[i:end])
		}
		if got := h.Sum(nil); hex.EncodeToString(got) != hex.EncodeToString(want[:]) {
			t.Errorf("split %d: digest mismatch", split)
		}
	}
}

func TestSumDoesNotResetState(t *testing.T) {
	h := New256()
	h.Write([]byte("ab"))
	first := h.Sum(nil)
	second := h.Sum(nil)
	if hex.EncodeToString(first) != hex.EncodeToString(second) {
		t.Fatal("Sum modified the digest state")
	}
	h.Write([]byte("c"))
	want := Sum256([]byte("abc"))
	if got := h.Sum(nil); hex.EncodeToString(got) != hex.EncodeToString(want[:]) {
		t.Errorf("digest after continued writes = %x, want %x", got, want)
	}
}

func TestSizes(t *testing.T) {
	if h := New256(); h.Size() != Size256 || h.BlockSize() != BlockSize256 {
		t.Errorf("New256 sizes = %d/%d", h.Size(), h.BlockSize())
	}
	if h := New384(); h.Size() != Size384 || h.BlockSize() != BlockSize384 {
		t.Errorf("New384 sizes = %d/%d", h.Size(), h.BlockSize())
	}
}

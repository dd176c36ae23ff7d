// Copyright 2025 The TinyTLS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tls

import (
	"encoding/binary"
	"io"
)

// RecordPaddingConfig controls the zero padding appended to outgoing
// protected records, per RFC 8446, Section 5.4. Padding obscures the true
// length of application data; the peer strips it when locating the inner
// content type.
type RecordPaddingConfig struct {
	// MinPadding is the minimum number of padding bytes per record.
	MinPadding int

	// MaxPadding is the maximum number of padding bytes per record, at
	// most 255. Values above 255 are treated as 255.
	MaxPadding int
}

// paddingLen returns the number of zero bytes to append to a record that
// already carries contentLen bytes of plaintext. The amount is drawn
// uniformly from [MinPadding, MaxPadding] and clamped so the inner
// plaintext does not exceed the record limit.
func (c *RecordPaddingConfig) paddingLen(rand io.Reader, contentLen int) int {
	if c == nil {
		return 0
	}
	minPad, maxPad := c.MinPadding, c.MaxPadding
	if minPad < 0 {
		minPad = 0
	}
	if maxPad > 255 {
		maxPad = 255
	}
	if maxPad < minPad {
		maxPad = minPad
	}

	n := minPad
	if maxPad > minPad {
		n = minPad + uniformInt(rand, maxPad-minPad+1)
	}

	// The inner plaintext is content plus one type byte plus padding.
	if room := maxPlaintext - contentLen - 1; n > room {
		if room < 0 {
			room = 0
		}
		n = room
	}
	return n
}

// uniformInt returns a uniform value in [0, n) using rejection sampling
// to avoid modulo bias. On a broken random source it returns 0, which
// only shortens the padding.
func uniformInt(rand io.Reader, n int) int {
	bound := uint64(n)
	limit := ^uint64(0) - ^uint64(0)%bound
	var buf [8]byte
	for {
		if _, err := io.ReadFull(rand, buf[:]); err != nil {
			return 0
		}
		v := binary.LittleEndian.Uint64(buf[:])
		if v < limit {
			return int(v % bound)
		}
	}
}

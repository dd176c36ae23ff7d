// Copyright 2025 The TinyTLS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tls

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// decompressCertificate expands a CompressedCertificate message into the
// equivalent Certificate message (RFC 8879, Section 4). The server may only
// use an algorithm the client offered, and the advertised uncompressed
// length must match the decompressed output exactly.
func (c *Conn) decompressCertificate(m *compressedCertificateMsg) (*certificateMsgTLS13, error) {
	if !slices.Contains(c.config.CertCompressionAlgos, m.algorithm) {
		c.sendAlert(alertIllegalParameter)
		return nil, fmt.Errorf("tls: server used unadvertised certificate compression algorithm %d", m.algorithm)
	}
	if m.uncompressedLength == 0 || m.uncompressedLength > maxHandshake {
		c.sendAlert(alertBadCertificate)
		return nil, errors.New("tls: compressed certificate message with invalid uncompressed length")
	}

	src := bytes.NewReader(m.compressedCertificates)
	var r io.Reader
	switch m.algorithm {
	case CertCompressionBrotli:
		r = brotli.NewReader(src)
	case CertCompressionZlib:
		zr, err := zlib.NewReader(src)
		if err != nil {
			c.sendAlert(alertBadCertificate)
			return nil, errors.New("tls: failed to decompress certificate message")
		}
		defer zr.Close()
		r = zr
	case CertCompressionZstd:
		zr, err := zstd.NewReader(src)
		if err != nil {
			c.sendAlert(alertBadCertificate)
			return nil, errors.New("tls: failed to decompress certificate message")
		}
		defer zr.Close()
		r = zr
	default:
		c.sendAlert(alertBadCertificate)
		return nil, fmt.Errorf("tls: unsupported certificate compression algorithm %d", m.algorithm)
	}

	decompressed := make([]byte, m.uncompressedLength)
	if _, err := io.ReadFull(r, decompressed); err != nil {
		c.sendAlert(alertBadCertificate)
		return nil, errors.New("tls: failed to decompress certificate message")
	}
	var tail [1]byte
	if n, _ := r.Read(tail[:]); n != 0 {
		c.sendAlert(alertBadCertificate)
		return nil, errors.New("tls: decompressed certificate message has trailing data")
	}

	raw := make([]byte, 0, 4+len(decompressed))
	raw = append(raw, typeCertificate,
		byte(m.uncompressedLength>>16), byte(m.uncompressedLength>>8), byte(m.uncompressedLength))
	raw = append(raw, decompressed...)

	certMsg := new(certificateMsgTLS13)
	if !certMsg.unmarshal(raw) {
		c.sendAlert(alertBadCertificate)
		return nil, errors.New("tls: malformed decompressed certificate message")
	}
	return certMsg, nil
}

// Copyright 2025 The TinyTLS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tls

import (
	"errors"
	"hash"
	"io"

	"github.com/tealfork/tinytls/internal/ecdh"
	"github.com/tealfork/tinytls/internal/tls13"
)

// This file contains the functions necessary to compute the TLS 1.3 key
// schedule. See RFC 8446, Section 7.

// nextTrafficSecret generates the next traffic secret, given the current one,
// according to RFC 8446, Section 7.2.
func (c *cipherSuiteTLS13) nextTrafficSecret(trafficSecret []byte) ([]byte, error) {
	return tls13.ExpandLabel(c.hash, trafficSecret, "traffic upd", nil, c.hash().Size())
}

// trafficKey generates traffic keys according to RFC 8446, Section 7.3.
func (c *cipherSuiteTLS13) trafficKey(trafficSecret []byte) (key, iv []byte, err error) {
	key, err = tls13.ExpandLabel(c.hash, trafficSecret, "key", nil, c.keyLen)
	if err != nil {
		return nil, nil, err
	}
	iv, err = tls13.ExpandLabel(c.hash, trafficSecret, "iv", nil, aeadNonceLength)
	if err != nil {
		return nil, nil, err
	}
	return key, iv, nil
}

// finishedHash generates the Finished verify_data according to RFC 8446,
// Section 4.4.4.
func (c *cipherSuiteTLS13) finishedHash(baseKey []byte, transcript hash.Hash) ([]byte, error) {
	return tls13.FinishedHash(c.hash, baseKey, transcript)
}

// exportKeyingMaterial implements RFC 5705 exporters for TLS 1.3 according
// to RFC 8446, Section 7.5.
func (c *cipherSuiteTLS13) exportKeyingMaterial(s *tls13.MasterSecret, transcript hash.Hash) func(string, []byte, int) ([]byte, error) {
	expMasterSecret, err := s.ExporterMasterSecret(transcript)
	if err != nil {
		return func(label string, context []byte, length int) ([]byte, error) {
			return nil, err
		}
	}
	return func(label string, context []byte, length int) ([]byte, error) {
		return expMasterSecret.Exporter(label, context, length)
	}
}

// generateECDHEKey returns a PrivateKey that implements Diffie-Hellman
// according to RFC 8446, Section 4.2.8.2.
func generateECDHEKey(rand io.Reader, curveID CurveID) (*ecdh.PrivateKey, error) {
	curve, ok := curveForCurveID(curveID)
	if !ok {
		return nil, errors.New("tls: internal error: unsupported curve")
	}
	return curve.GenerateKey(rand)
}

func curveForCurveID(id CurveID) (ecdh.Curve, bool) {
	switch id {
	case X25519:
		return ecdh.X25519(), true
	case CurveP256:
		return ecdh.P256(), true
	default:
		return nil, false
	}
}

// Copyright 2025 The TinyTLS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package tls13 implements the TLS 1.3 key schedule from RFC 8446,
// Section 7.1. Secrets advance through staged types: an EarlySecret is
// mixed with the ECDHE shared secret into a HandshakeSecret, which in
// turn becomes a MasterSecret. Each stage only exposes the derivations
// RFC 8446 defines for it.
package tls13

import (
	"errors"
	"hash"

	"github.com/tealfork/tinytls/internal/hkdf"
	"github.com/tealfork/tinytls/internal/hmac"
)

// ErrLabelTooLong is returned when the label or context passed to
// ExpandLabel exceeds 255 bytes.
var ErrLabelTooLong = errors.New("tls13: label or context too long")

// ExpandLabel implements HKDF-Expand-Label from RFC 8446, Section 7.1.
func ExpandLabel(h func() hash.Hash, secret []byte, label string, context []byte, length int) ([]byte, error) {
	if len("tls13 ")+len(label) > 255 || len(context) > 255 {
		return nil, ErrLabelTooLong
	}
	hkdfLabel := make([]byte, 0, 2+1+len("tls13 ")+len(label)+1+len(context))
	hkdfLabel = append(hkdfLabel, byte(length>>8), byte(length))
	hkdfLabel = append(hkdfLabel, byte(len("tls13 ")+len(label)))
	hkdfLabel = append(hkdfLabel, "tls13 "...)
	hkdfLabel = append(hkdfLabel, label...)
	hkdfLabel = append(hkdfLabel, byte(len(context)))
	hkdfLabel = append(hkdfLabel, context...)
	return hkdf.Expand(h, secret, hkdfLabel, length)
}

func extract(h func() hash.Hash, newSecret, currentSecret []byte) []byte {
	if newSecret == nil {
		newSecret = make([]byte, h().Size())
	}
	return hkdf.Extract(h, newSecret, currentSecret)
}

func deriveSecret(h func() hash.Hash, secret []byte, label string, transcript hash.Hash) ([]byte, error) {
	if transcript == nil {
		transcript = h()
	}
	return ExpandLabel(h, secret, label, transcript.Sum(nil), transcript.Size())
}

const (
	clientHandshakeTrafficLabel   = "c hs traffic"
	serverHandshakeTrafficLabel   = "s hs traffic"
	clientApplicationTrafficLabel = "c ap traffic"
	serverApplicationTrafficLabel = "s ap traffic"
	exporterLabel                 = "exp master"
	resumptionLabel               = "res master"
)

type EarlySecret struct {
	secret []byte
	hash   func() hash.Hash
}

// NewEarlySecret initializes the key schedule. psk is nil for a full
// handshake.
func NewEarlySecret(h func() hash.Hash, psk []byte) *EarlySecret {
	return &EarlySecret{
		secret: extract(h, psk, nil),
		hash:   h,
	}
}

type HandshakeSecret struct {
	secret []byte
	hash   func() hash.Hash
}

// HandshakeSecret advances the schedule by mixing in the ECDHE shared
// secret.
func (s *EarlySecret) HandshakeSecret(sharedSecret []byte) (*HandshakeSecret, error) {
	derived, err := deriveSecret(s.hash, s.secret, "derived", nil)
	if err != nil {
		return nil, err
	}
	return &HandshakeSecret{
		secret: extract(s.hash, sharedSecret, derived),
		hash:   s.hash,
	}, nil
}

// ClientHandshakeTrafficSecret derives the client_handshake_traffic_secret
// from the handshake secret and the transcript through the ServerHello.
func (s *HandshakeSecret) ClientHandshakeTrafficSecret(transcript hash.Hash) ([]byte, error) {
	return deriveSecret(s.hash, s.secret, clientHandshakeTrafficLabel, transcript)
}

// ServerHandshakeTrafficSecret derives the server_handshake_traffic_secret
// from the handshake secret and the transcript through the ServerHello.
func (s *HandshakeSecret) ServerHandshakeTrafficSecret(transcript hash.Hash) ([]byte, error) {
	return deriveSecret(s.hash, s.secret, serverHandshakeTrafficLabel, transcript)
}

type MasterSecret struct {
	secret []byte
	hash   func() hash.Hash
}

// MasterSecret advances the schedule to its final stage.
func (s *HandshakeSecret) MasterSecret() (*MasterSecret, error) {
	derived, err := deriveSecret(s.hash, s.secret, "derived", nil)
	if err != nil {
		return nil, err
	}
	return &MasterSecret{
		secret: extract(s.hash, nil, derived),
		hash:   s.hash,
	}, nil
}

// ClientApplicationTrafficSecret derives client_application_traffic_secret_0
// from the master secret and the transcript through the server Finished.
func (s *MasterSecret) ClientApplicationTrafficSecret(transcript hash.Hash) ([]byte, error) {
	return deriveSecret(s.hash, s.secret, clientApplicationTrafficLabel, transcript)
}

// ServerApplicationTrafficSecret derives server_application_traffic_secret_0
// from the master secret and the transcript through the server Finished.
func (s *MasterSecret) ServerApplicationTrafficSecret(transcript hash.Hash) ([]byte, error) {
	return deriveSecret(s.hash, s.secret, serverApplicationTrafficLabel, transcript)
}

// ResumptionMasterSecret derives the resumption_master_secret from the
// master secret and the transcript through the client Finished.
func (s *MasterSecret) ResumptionMasterSecret(transcript hash.Hash) ([]byte, error) {
	return deriveSecret(s.hash, s.secret, resumptionLabel, transcript)
}

type ExporterMasterSecret struct {
	secret []byte
	hash   func() hash.Hash
}

// ExporterMasterSecret derives the exporter_master_secret from the master
// secret and the transcript through the server Finished.
func (s *MasterSecret) ExporterMasterSecret(transcript hash.Hash) (*ExporterMasterSecret, error) {
	secret, err := deriveSecret(s.hash, s.secret, exporterLabel, transcript)
	if err != nil {
		return nil, err
	}
	return &ExporterMasterSecret{secret: secret, hash: s.hash}, nil
}

// Exporter implements RFC 5705 keying material export per RFC 8446,
// Section 7.5.
func (s *ExporterMasterSecret) Exporter(label string, context []byte, length int) ([]byte, error) {
	secret, err := deriveSecret(s.hash, s.secret, label, nil)
	if err != nil {
		return nil, err
	}
	h := s.hash()
	h.Write(context)
	return ExpandLabel(s.hash, secret, "exporter", h.Sum(nil), length)
}

// FinishedHash computes the Finished verify_data for baseKey over the
// transcript, RFC 8446 Section 4.4.4.
func FinishedHash(h func() hash.Hash, baseKey []byte, transcript hash.Hash) ([]byte, error) {
	finishedKey, err := ExpandLabel(h, baseKey, "finished", nil, h().Size())
	if err != nil {
		return nil, err
	}
	verifyData := hmac.New(h, finishedKey)
	verifyData.Write(transcript.Sum(nil))
	return verifyData.Sum(nil), nil
}

// Copyright 2025 The TinyTLS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tls

import (
	"bytes"
	"testing"
)

func testClientHello() *clientHelloMsg {
	return &clientHelloMsg{
		vers:               VersionTLS12,
		random:             bytes.Repeat([]byte{0x0A}, 32),
		sessionID:          bytes.Repeat([]byte{0x0B}, 32),
		cipherSuites:       []uint16{TLS_AES_128_GCM_SHA256, TLS_AES_256_GCM_SHA384},
		compressionMethods: []uint8{compressionNone},
		serverName:         "example.com",
		supportedCurves:    []CurveID{X25519, CurveP256},
		supportedSignatureAlgorithms: []SignatureScheme{
			ECDSAWithP256AndSHA256, PSSWithSHA256,
		},
		supportedVersions:  []uint16{VersionTLS13},
		cookie:             []byte("echo me"),
		keyShares:          []keyShare{{group: X25519, data: bytes.Repeat([]byte{0x0C}, 32)}},
		compressedCertAlgs: []CertCompressionAlgo{CertCompressionBrotli, CertCompressionZstd},
	}
}

func TestClientHelloRoundTrip(t *testing.T) {
	m := testClientHello()
	raw, err := m.marshal()
	if err != nil {
		t.Fatal(err)
	}

	parsed := new(clientHelloMsg)
	if !parsed.unmarshal(raw) {
		t.Fatal("unmarshal failed")
	}
	if parsed.serverName != m.serverName {
		t.Errorf("serverName = %q, want %q", parsed.serverName, m.serverName)
	}
	if !bytes.Equal(parsed.cookie, m.cookie) {
		t.Errorf("cookie = %x, want %x", parsed.cookie, m.cookie)
	}
	if len(parsed.keyShares) != 1 || parsed.keyShares[0].group != X25519 ||
		!bytes.Equal(parsed.keyShares[0].data, m.keyShares[0].data) {
		t.Errorf("keyShares = %+v", parsed.keyShares)
	}
	if len(parsed.supportedVersions) != 1 || parsed.supportedVersions[0] != VersionTLS13 {
		t.Errorf("supportedVersions = %v", parsed.supportedVersions)
	}
	if len(parsed.compressedCertAlgs) != 2 ||
		parsed.compressedCertAlgs[0] != CertCompressionBrotli ||
		parsed.compressedCertAlgs[1] != CertCompressionZstd {
		t.Errorf("compressedCertAlgs = %v", parsed.compressedCertAlgs)
	}
}

func TestClientHelloRejectsTruncation(t *testing.T) {
	raw, err := testClientHello().marshal()
	if err != nil {
		t.Fatal(err)
	}
	for _, n := range []int{4, 5, 38, len(raw) - 1} {
		parsed := new(clientHelloMsg)
		if parsed.unmarshal(raw[:n]) {
			t.Errorf("accepted ClientHello truncated to %d bytes", n)
		}
	}
}

func TestServerHelloRoundTrip(t *testing.T) {
	m := &serverHelloMsg{
		vers:              VersionTLS12,
		random:            bytes.Repeat([]byte{0x0D}, 32),
		sessionID:         bytes.Repeat([]byte{0x0B}, 32),
		cipherSuite:       TLS_AES_128_GCM_SHA256,
		compressionMethod: compressionNone,
		supportedVersion:  VersionTLS13,
		serverShare:       keyShare{group: X25519, data: bytes.Repeat([]byte{0x0E}, 32)},
	}
	raw, err := m.marshal()
	if err != nil {
		t.Fatal(err)
	}

	parsed := new(serverHelloMsg)
	if !parsed.unmarshal(raw) {
		t.Fatal("unmarshal failed")
	}
	if parsed.isHelloRetryRequest() {
		t.Error("regular ServerHello detected as HelloRetryRequest")
	}
	if parsed.supportedVersion != VersionTLS13 {
		t.Errorf("supportedVersion = %x", parsed.supportedVersion)
	}
	if parsed.serverShare.group != X25519 || !bytes.Equal(parsed.serverShare.data, m.serverShare.data) {
		t.Errorf("serverShare = %+v", parsed.serverShare)
	}
}

func TestHelloRetryRequestParsing(t *testing.T) {
	m := &serverHelloMsg{
		vers:             VersionTLS12,
		random:           helloRetryRequestRandom,
		sessionID:        bytes.Repeat([]byte{0x0B}, 32),
		cipherSuite:      TLS_AES_128_GCM_SHA256,
		supportedVersion: VersionTLS13,
		selectedGroup:    CurveP256,
		cookie:           []byte("stateless"),
	}
	raw, err := m.marshal()
	if err != nil {
		t.Fatal(err)
	}

	parsed := new(serverHelloMsg)
	if !parsed.unmarshal(raw) {
		t.Fatal("unmarshal failed")
	}
	if !parsed.isHelloRetryRequest() {
		t.Fatal("HelloRetryRequest not detected")
	}
	if parsed.selectedGroup != CurveP256 {
		t.Errorf("selectedGroup = %v, want P-256", parsed.selectedGroup)
	}
	if parsed.serverShare.group != 0 {
		t.Errorf("serverShare.group = %v, want unset", parsed.serverShare.group)
	}
	if !bytes.Equal(parsed.cookie, m.cookie) {
		t.Errorf("cookie = %q", parsed.cookie)
	}
}

func TestCertificateMsgRejectsNonEmptyContext(t *testing.T) {
	m := &certificateMsgTLS13{certificates: [][]byte{{0x30, 0x03, 0x01, 0x01, 0x00}}}
	raw, err := m.marshal()
	if err != nil {
		t.Fatal(err)
	}
	// Patch the certificate_request_context length to a bogus value.
	raw[4] = 1
	parsed := new(certificateMsgTLS13)
	if parsed.unmarshal(raw) {
		t.Error("accepted Certificate with non-empty request context")
	}
}

func TestKeyUpdateValidation(t *testing.T) {
	for _, tt := range []struct {
		value byte
		ok    bool
		want  bool
	}{
		{0, true, false},
		{1, true, true},
		{2, false, false},
		{255, false, false},
	} {
		raw := []byte{typeKeyUpdate, 0, 0, 1, tt.value}
		parsed := new(keyUpdateMsg)
		if got := parsed.unmarshal(raw); got != tt.ok {
			t.Errorf("value %d: unmarshal = %v, want %v", tt.value, got, tt.ok)
			continue
		}
		if tt.ok && parsed.updateRequested != tt.want {
			t.Errorf("value %d: updateRequested = %v", tt.value, parsed.updateRequested)
		}
	}
}

func TestNewSessionTicketRoundTrip(t *testing.T) {
	m := &newSessionTicketMsgTLS13{
		lifetime: 7200,
		ageAdd:   0xdeadbeef,
		nonce:    []byte{0, 1},
		label:    []byte("ticket blob"),
	}
	raw, err := m.marshal()
	if err != nil {
		t.Fatal(err)
	}
	parsed := new(newSessionTicketMsgTLS13)
	if !parsed.unmarshal(raw) {
		t.Fatal("unmarshal failed")
	}
	if parsed.lifetime != m.lifetime || parsed.ageAdd != m.ageAdd ||
		!bytes.Equal(parsed.nonce, m.nonce) || !bytes.Equal(parsed.label, m.label) {
		t.Errorf("parsed = %+v", parsed)
	}

	if parsed.unmarshal(append(raw, 0)) {
		t.Error("accepted NewSessionTicket with trailing data")
	}
}

func TestClientHelloIgnoresUnknownExtension(t *testing.T) {
	raw, err := testClientHello().marshal()
	if err != nil {
		t.Fatal(err)
	}
	// Append an unknown empty extension and fix up the length prefixes:
	// the handshake message length and the extensions block length.
	ext := []byte{0xfa, 0xfa, 0x00, 0x00}
	raw = append(raw, ext...)

	msgLen := len(raw) - 4
	raw[1] = byte(msgLen >> 16)
	raw[2] = byte(msgLen >> 8)
	raw[3] = byte(msgLen)

	// Extensions block starts after: 4 header + 2 vers + 32 random +
	// 1+32 session id + 2+4 cipher suites + 1+1 compression methods.
	extOff := 4 + 2 + 32 + 33 + 6 + 2
	extLen := int(raw[extOff])<<8 | int(raw[extOff+1])
	extLen += len(ext)
	raw[extOff] = byte(extLen >> 8)
	raw[extOff+1] = byte(extLen)

	parsed := new(clientHelloMsg)
	if !parsed.unmarshal(raw) {
		t.Fatal("unknown extension caused parse failure")
	}
	if parsed.serverName != "example.com" {
		t.Errorf("serverName = %q", parsed.serverName)
	}
}

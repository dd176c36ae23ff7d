// Copyright 2025 The TinyTLS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tls

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/tealfork/tinytls/x509"
)

const (
	VersionTLS10 = 0x0301
	VersionTLS11 = 0x0302
	VersionTLS12 = 0x0303
	VersionTLS13 = 0x0304
)

// VersionName returns the name for the provided TLS version number
// (e.g. "TLS 1.3"), or a fallback representation of the value if the
// version is not implemented by this package.
func VersionName(version uint16) string {
	switch version {
	case VersionTLS10:
		return "TLS 1.0"
	case VersionTLS11:
		return "TLS 1.1"
	case VersionTLS12:
		return "TLS 1.2"
	case VersionTLS13:
		return "TLS 1.3"
	default:
		return fmt.Sprintf("0x%04X", version)
	}
}

const (
	maxPlaintext       = 16384       // maximum plaintext payload length
	maxCiphertextTLS13 = 16384 + 256 // maximum ciphertext length in TLS 1.3
	recordHeaderLen    = 5           // record header length
	maxHandshake       = 65536       // maximum handshake message we support
	maxUselessRecords  = 16          // maximum number of consecutive non-advancing records
)

// TLS record types.
type recordType uint8

const (
	recordTypeChangeCipherSpec recordType = 20
	recordTypeAlert            recordType = 21
	recordTypeHandshake        recordType = 22
	recordTypeApplicationData  recordType = 23
)

// TLS handshake message types.
const (
	typeClientHello         uint8 = 1
	typeServerHello         uint8 = 2
	typeNewSessionTicket    uint8 = 4
	typeEncryptedExtensions uint8 = 8
	typeCertificate         uint8 = 11
	typeCertificateVerify   uint8 = 15
	typeFinished            uint8 = 20
	typeKeyUpdate           uint8 = 24
	typeCompressedCert      uint8 = 25 // RFC 8879
	typeMessageHash         uint8 = 254
)

// TLS compression types.
const (
	compressionNone uint8 = 0
)

// TLS extension numbers
const (
	extensionServerName          uint16 = 0
	extensionSupportedCurves     uint16 = 10
	extensionSignatureAlgorithms uint16 = 13
	extensionCompressCertificate uint16 = 27 // RFC 8879
	extensionSupportedVersions   uint16 = 43
	extensionCookie              uint16 = 44
	extensionKeyShare            uint16 = 51
)

// CurveID is the type of a TLS identifier for a key exchange group.
type CurveID uint16

const (
	CurveP256 CurveID = 23
	X25519    CurveID = 29
)

func (c CurveID) String() string {
	switch c {
	case CurveP256:
		return "P-256"
	case X25519:
		return "X25519"
	}
	return fmt.Sprintf("CurveID(%d)", uint16(c))
}

// keyShare is a TLS 1.3 KeyShareEntry.
type keyShare struct {
	group CurveID
	data  []byte
}

// SignatureScheme identifies a signature algorithm supported for
// CertificateVerify, per RFC 8446, Section 4.2.3.
type SignatureScheme uint16

const (
	PKCS1WithSHA256        SignatureScheme = 0x0401
	PKCS1WithSHA384        SignatureScheme = 0x0501
	PSSWithSHA256          SignatureScheme = 0x0804
	PSSWithSHA384          SignatureScheme = 0x0805
	ECDSAWithP256AndSHA256 SignatureScheme = 0x0403
)

// CertCompressionAlgo is a certificate compression algorithm, RFC 8879.
type CertCompressionAlgo uint16

const (
	CertCompressionZlib   CertCompressionAlgo = 1
	CertCompressionBrotli CertCompressionAlgo = 2
	CertCompressionZstd   CertCompressionAlgo = 3
)

// downgradeCanaryTLS12 is the value servers embed in ServerHello.random
// when negotiating TLS 1.2 or below while supporting 1.3 (RFC 8446,
// Section 4.1.3). A 1.3-only client treats it as a downgrade attack.
var (
	downgradeCanaryTLS12 = []byte("DOWNGRD\x01")
	downgradeCanaryTLS11 = []byte("DOWNGRD\x00")
)

// helloRetryRequestRandom is the fixed ServerHello.random value that marks
// a HelloRetryRequest.
var helloRetryRequestRandom = []byte{
	0xCF, 0x21, 0xAD, 0x74, 0xE5, 0x9A, 0x61, 0x11,
	0xBE, 0x1D, 0x8C, 0x02, 0x1E, 0x65, 0xB8, 0x91,
	0xC2, 0xA2, 0x11, 0x16, 0x7A, 0xBB, 0x8C, 0x5E,
	0x07, 0x9E, 0x09, 0xE2, 0xC8, 0xA8, 0x33, 0x9C,
}

// ErrConnectionClosed is returned by Read and Write after the connection
// has failed or close_notify has been exchanged.
var ErrConnectionClosed = errors.New("tls: connection closed")

// CertificateVerificationError is returned when certificate verification
// fails during the handshake.
type CertificateVerificationError struct {
	// UnverifiedCertificates is the chain presented by the server.
	UnverifiedCertificates []*x509.Certificate
	Err                    error
}

func (e *CertificateVerificationError) Error() string {
	return fmt.Sprintf("tls: failed to verify certificate: %s", e.Err)
}

func (e *CertificateVerificationError) Unwrap() error {
	return e.Err
}

// ConnectionState records basic details about a completed handshake.
type ConnectionState struct {
	// Version is the negotiated protocol version. Always VersionTLS13.
	Version uint16
	// HandshakeComplete reports whether the handshake finished.
	HandshakeComplete bool
	// CipherSuite is the negotiated cipher suite identifier.
	CipherSuite uint16
	// ServerName is the value sent in the server_name extension.
	ServerName string
	// PeerCertificates are the server's certificates, leaf first.
	PeerCertificates []*x509.Certificate
	// VerifiedChains is the validated chain from the leaf to a root,
	// nil when InsecureSkipVerify was set.
	VerifiedChains [][]*x509.Certificate
	// NegotiatedGroup is the key exchange group used.
	NegotiatedGroup CurveID
}

// Config configures a client connection. A Config may be reused across
// connections; the package does not modify it.
type Config struct {
	// Rand provides the source of entropy for key generation. If nil,
	// crypto/rand.Reader is used.
	Rand io.Reader

	// Time returns the current time, used to verify certificate validity.
	// If nil, time.Now is used.
	Time func() time.Time

	// ServerName is used both to verify the returned certificates and as
	// the SNI value. It is required unless InsecureSkipVerify is set.
	ServerName string

	// RootCAs defines the set of root certificate authorities the client
	// uses when verifying server certificates. It is required unless
	// InsecureSkipVerify is set.
	RootCAs *x509.CertPool

	// InsecureSkipVerify disables certificate chain and host name
	// verification. The connection is then open to machine-in-the-middle
	// attacks; use only for testing.
	InsecureSkipVerify bool

	// CipherSuites lists the enabled TLS 1.3 cipher suites in preference
	// order. If empty, a default ordering is used.
	CipherSuites []uint16

	// CurvePreferences lists the key exchange groups to offer, most
	// preferred first. If empty, X25519 then P-256.
	CurvePreferences []CurveID

	// CertCompressionAlgos lists the certificate compression algorithms
	// (RFC 8879) the client offers to receive. If empty, none are
	// offered.
	CertCompressionAlgos []CertCompressionAlgo

	// RecordPadding, if non-nil, pads outgoing protected records with
	// zero bytes per RFC 8446, Section 5.4.
	RecordPadding *RecordPaddingConfig

	// Logger receives structured handshake progress events. If nil,
	// logging is disabled.
	Logger *zap.Logger
}

func (c *Config) rand() io.Reader {
	if c == nil || c.Rand == nil {
		return rand.Reader
	}
	return c.Rand
}

func (c *Config) time() time.Time {
	if c == nil || c.Time == nil {
		return time.Now()
	}
	return c.Time()
}

func (c *Config) logger() *zap.Logger {
	if c == nil || c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

func (c *Config) cipherSuites() []uint16 {
	if c != nil && len(c.CipherSuites) > 0 {
		return c.CipherSuites
	}
	return defaultCipherSuitesTLS13
}

func (c *Config) recordPadding() *RecordPaddingConfig {
	if c == nil {
		return nil
	}
	return c.RecordPadding
}

func (c *Config) curvePreferences() []CurveID {
	if c != nil && len(c.CurvePreferences) > 0 {
		return c.CurvePreferences
	}
	return []CurveID{X25519, CurveP256}
}

// Clone returns a shallow copy of c, or a fresh Config when c is nil.
func (c *Config) Clone() *Config {
	if c == nil {
		return &Config{}
	}
	c2 := *c
	return &c2
}

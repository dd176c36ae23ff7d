// Copyright 2025 The TinyTLS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tls

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"hash"
	"io"
	"net"
	"slices"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/idna"

	"github.com/tealfork/tinytls/internal/ecdh"
	"github.com/tealfork/tinytls/internal/subtle"
	"github.com/tealfork/tinytls/internal/tls13"
	"github.com/tealfork/tinytls/x509"
)

// supportedSignatureAlgorithms is the list advertised in the
// signature_algorithms extension. PKCS#1 v1.5 schemes are offered for
// certificate signatures only; RFC 8446, Section 4.4.3 forbids them in
// CertificateVerify.
var supportedSignatureAlgorithms = []SignatureScheme{
	ECDSAWithP256AndSHA256,
	PSSWithSHA256,
	PSSWithSHA384,
	PKCS1WithSHA256,
	PKCS1WithSHA384,
}

type clientHandshakeState struct {
	c           *Conn
	ctx         context.Context
	hello       *clientHelloMsg
	serverHello *serverHelloMsg
	keyShareKey *ecdh.PrivateKey
	curveID     CurveID

	suite         *cipherSuiteTLS13
	transcript    hash.Hash
	masterSecret  *tls13.MasterSecret
	trafficSecret []byte // client_application_traffic_secret_0
	sentDummyCCS  bool
}

func (c *Conn) makeClientHello() (*clientHelloMsg, *ecdh.PrivateKey, error) {
	config := c.config

	if len(config.ServerName) == 0 && !config.InsecureSkipVerify {
		return nil, nil, errors.New("tls: either ServerName or InsecureSkipVerify must be specified in the tls.Config")
	}

	hello := &clientHelloMsg{
		vers:                         VersionTLS12,
		random:                       make([]byte, 32),
		sessionID:                    make([]byte, 32),
		compressionMethods:           []uint8{compressionNone},
		serverName:                   hostnameInSNI(config.ServerName),
		supportedCurves:              config.curvePreferences(),
		supportedSignatureAlgorithms: supportedSignatureAlgorithms,
		supportedVersions:            []uint16{VersionTLS13},
		compressedCertAlgs:           config.CertCompressionAlgos,
	}

	configSuites := config.cipherSuites()
	hello.cipherSuites = make([]uint16, 0, len(configSuites))
	for _, id := range configSuites {
		if cipherSuiteTLS13ByID(id) == nil {
			return nil, nil, fmt.Errorf("tls: unsupported cipher suite 0x%04x", id)
		}
		hello.cipherSuites = append(hello.cipherSuites, id)
	}

	if _, err := io.ReadFull(config.rand(), hello.random); err != nil {
		return nil, nil, fmt.Errorf("tls: short read from Rand: %w", err)
	}

	// A 32-byte legacy session ID is always sent as a compatibility
	// measure (RFC 8446, Section 4.1.2).
	if _, err := io.ReadFull(config.rand(), hello.sessionID); err != nil {
		return nil, nil, fmt.Errorf("tls: short read from Rand: %w", err)
	}

	if len(hello.supportedCurves) == 0 {
		return nil, nil, errors.New("tls: no supported elliptic curves for ECDHE")
	}
	curveID := hello.supportedCurves[0]
	key, err := generateECDHEKey(config.rand(), curveID)
	if err != nil {
		return nil, nil, err
	}
	hello.keyShares = []keyShare{{group: curveID, data: key.PublicKey().Bytes()}}

	return hello, key, nil
}

func (c *Conn) clientHandshake(ctx context.Context) error {
	if c.config == nil {
		c.config = &Config{}
	}

	hello, key, err := c.makeClientHello()
	if err != nil {
		return err
	}
	c.serverName = hello.serverName

	if _, err := c.writeHandshakeRecord(hello, nil); err != nil {
		return err
	}
	c.config.logger().Debug("handshake state",
		zap.String("state", "SentClientHello"),
		zap.String("sni", hello.serverName),
		zap.String("group", hello.keyShares[0].group.String()))

	msg, err := c.readHandshake(nil)
	if err != nil {
		return err
	}
	serverHello, ok := msg.(*serverHelloMsg)
	if !ok {
		c.sendAlert(alertUnexpectedMessage)
		return unexpectedMessageError(serverHello, msg)
	}

	hs := &clientHandshakeState{
		c:           c,
		ctx:         ctx,
		hello:       hello,
		serverHello: serverHello,
		keyShareKey: key,
		curveID:     hello.supportedCurves[0],
	}
	return hs.handshake()
}

func (hs *clientHandshakeState) handshake() error {
	c := hs.c

	if err := hs.ctx.Err(); err != nil {
		return err
	}

	if err := hs.checkServerHelloOrHRR(); err != nil {
		return err
	}

	hs.transcript = hs.suite.hash()
	if err := transcriptMsg(hs.hello, hs.transcript); err != nil {
		return err
	}

	if hs.serverHello.isHelloRetryRequest() {
		if err := hs.sendDummyChangeCipherSpec(); err != nil {
			return err
		}
		if err := hs.processHelloRetryRequest(); err != nil {
			return err
		}
	}

	if err := transcriptMsg(hs.serverHello, hs.transcript); err != nil {
		return err
	}

	c.vers = VersionTLS13
	c.haveVers = true
	c.cipherSuite = hs.suite.id
	c.curveID = hs.curveID
	c.config.logger().Debug("handshake state",
		zap.String("state", "GotServerHello"),
		zap.String("suite", CipherSuiteName(hs.suite.id)),
		zap.String("group", hs.curveID.String()),
		zap.Bool("hrr", c.didHRR))

	if err := hs.sendDummyChangeCipherSpec(); err != nil {
		return err
	}
	if err := hs.establishHandshakeKeys(); err != nil {
		return err
	}
	if err := hs.readServerParameters(); err != nil {
		return err
	}
	if err := hs.readServerCertificate(); err != nil {
		return err
	}
	if err := hs.readServerFinished(); err != nil {
		return err
	}
	if err := hs.sendClientFinished(); err != nil {
		return err
	}

	c.isHandshakeComplete.Store(true)
	c.config.logger().Debug("handshake state", zap.String("state", "Connected"))
	return nil
}

// checkServerHelloOrHRR does validity checks that apply to both ServerHello
// and HelloRetryRequest messages. It sets hs.suite.
func (hs *clientHandshakeState) checkServerHelloOrHRR() error {
	c := hs.c

	if hs.serverHello.supportedVersion == 0 {
		c.sendAlert(alertMissingExtension)
		return errors.New("tls: server selected TLS 1.2 or below")
	}
	if hs.serverHello.supportedVersion != VersionTLS13 {
		c.sendAlert(alertIllegalParameter)
		return errors.New("tls: server selected an invalid version")
	}
	if hs.serverHello.vers != VersionTLS12 {
		c.sendAlert(alertIllegalParameter)
		return errors.New("tls: server sent an incorrect legacy version")
	}

	if bytes.Equal(hs.serverHello.random[24:], downgradeCanaryTLS12) ||
		bytes.Equal(hs.serverHello.random[24:], downgradeCanaryTLS11) {
		c.sendAlert(alertIllegalParameter)
		return errors.New("tls: downgrade attempt detected, possibly due to a MitM attack or a broken middlebox")
	}

	if !bytes.Equal(hs.hello.sessionID, hs.serverHello.sessionID) {
		c.sendAlert(alertIllegalParameter)
		return errors.New("tls: server did not echo the legacy session ID")
	}
	if hs.serverHello.compressionMethod != compressionNone {
		c.sendAlert(alertIllegalParameter)
		return errors.New("tls: server selected unsupported compression format")
	}

	selectedSuite := mutualCipherSuiteTLS13(hs.hello.cipherSuites, hs.serverHello.cipherSuite)
	if hs.suite != nil && selectedSuite != hs.suite {
		c.sendAlert(alertIllegalParameter)
		return errors.New("tls: server changed cipher suite after a HelloRetryRequest")
	}
	if selectedSuite == nil {
		c.sendAlert(alertIllegalParameter)
		return errors.New("tls: server chose an unconfigured cipher suite")
	}
	hs.suite = selectedSuite

	return nil
}

// sendDummyChangeCipherSpec sends a ChangeCipherSpec record for
// compatibility with middleboxes that disallow non-standard records
// between the first handshake flights (RFC 8446, Appendix D.4).
func (hs *clientHandshakeState) sendDummyChangeCipherSpec() error {
	if hs.sentDummyCCS {
		return nil
	}
	hs.sentDummyCCS = true
	return hs.c.writeChangeCipherRecord()
}

// processHelloRetryRequest handles the HRR in hs.serverHello, modifies and
// resends hs.hello, and reads the new ServerHello into hs.serverHello.
func (hs *clientHandshakeState) processHelloRetryRequest() error {
	c := hs.c

	// The first ClientHello gets double-hashed into the transcript upon a
	// HelloRetryRequest (RFC 8446, Section 4.4.1).
	chHash := hs.transcript.Sum(nil)
	hs.transcript.Reset()
	hs.transcript.Write([]byte{typeMessageHash, 0, 0, uint8(len(chHash))})
	hs.transcript.Write(chHash)

	if err := transcriptMsg(hs.serverHello, hs.transcript); err != nil {
		return err
	}

	// The only HelloRetryRequest validations we can do before hashing the
	// message are those that apply to both message types.
	var changed bool
	if hs.serverHello.serverShare.group != 0 {
		c.sendAlert(alertDecodeError)
		return errors.New("tls: received malformed key_share extension")
	}
	if group := hs.serverHello.selectedGroup; group != 0 {
		if !slices.Contains(hs.hello.supportedCurves, group) {
			c.sendAlert(alertIllegalParameter)
			return errors.New("tls: server selected unsupported group")
		}
		if hs.hello.keyShares[0].group == group {
			c.sendAlert(alertIllegalParameter)
			return errors.New("tls: server sent an unnecessary HelloRetryRequest key_share")
		}
		key, err := generateECDHEKey(c.config.rand(), group)
		if err != nil {
			c.sendAlert(alertInternalError)
			return err
		}
		hs.keyShareKey = key
		hs.curveID = group
		hs.hello.keyShares = []keyShare{{group: group, data: key.PublicKey().Bytes()}}
		changed = true
	}

	if len(hs.serverHello.cookie) > 0 {
		hs.hello.cookie = hs.serverHello.cookie
		changed = true
	}
	if !changed {
		c.sendAlert(alertIllegalParameter)
		return errors.New("tls: server sent an unnecessary HelloRetryRequest message")
	}

	hs.hello.raw = nil
	if _, err := c.writeHandshakeRecord(hs.hello, hs.transcript); err != nil {
		return err
	}
	c.config.logger().Debug("handshake state",
		zap.String("state", "SentClientHello"),
		zap.Bool("retry", true),
		zap.String("group", hs.curveID.String()))

	msg, err := c.readHandshake(nil)
	if err != nil {
		return err
	}
	serverHello, ok := msg.(*serverHelloMsg)
	if !ok {
		c.sendAlert(alertUnexpectedMessage)
		return unexpectedMessageError(serverHello, msg)
	}
	if serverHello.isHelloRetryRequest() {
		c.sendAlert(alertUnexpectedMessage)
		return errors.New("tls: server sent two HelloRetryRequest messages")
	}
	hs.serverHello = serverHello
	c.didHRR = true

	return hs.checkServerHelloOrHRR()
}

func (hs *clientHandshakeState) establishHandshakeKeys() error {
	c := hs.c

	if hs.serverHello.serverShare.group != hs.curveID {
		c.sendAlert(alertIllegalParameter)
		return errors.New("tls: server selected unsupported group")
	}

	curve, ok := curveForCurveID(hs.curveID)
	if !ok {
		c.sendAlert(alertInternalError)
		return errors.New("tls: unsupported key exchange group")
	}
	peerKey, err := curve.NewPublicKey(hs.serverHello.serverShare.data)
	if err != nil {
		c.sendAlert(alertIllegalParameter)
		return errors.New("tls: invalid server key share")
	}
	sharedKey, err := hs.keyShareKey.ECDH(peerKey)
	if err != nil {
		c.sendAlert(alertIllegalParameter)
		return errors.New("tls: invalid server key share")
	}

	earlySecret := tls13.NewEarlySecret(hs.suite.hash, nil)
	handshakeSecret, err := earlySecret.HandshakeSecret(sharedKey)
	zeroSlice(sharedKey)
	if err != nil {
		c.sendAlert(alertInternalError)
		return err
	}

	clientSecret, err := handshakeSecret.ClientHandshakeTrafficSecret(hs.transcript)
	if err != nil {
		c.sendAlert(alertInternalError)
		return err
	}
	if err := c.out.setTrafficSecret(hs.suite, clientSecret); err != nil {
		c.sendAlert(alertInternalError)
		return err
	}
	serverSecret, err := handshakeSecret.ServerHandshakeTrafficSecret(hs.transcript)
	if err != nil {
		c.sendAlert(alertInternalError)
		return err
	}
	if err := c.in.setTrafficSecret(hs.suite, serverSecret); err != nil {
		c.sendAlert(alertInternalError)
		return err
	}

	hs.masterSecret, err = handshakeSecret.MasterSecret()
	if err != nil {
		c.sendAlert(alertInternalError)
		return err
	}
	return nil
}

func (hs *clientHandshakeState) readServerParameters() error {
	c := hs.c

	msg, err := c.readHandshake(hs.transcript)
	if err != nil {
		return err
	}
	encryptedExtensions, ok := msg.(*encryptedExtensionsMsg)
	if !ok {
		c.sendAlert(alertUnexpectedMessage)
		return unexpectedMessageError(encryptedExtensions, msg)
	}
	c.config.logger().Debug("handshake state", zap.String("state", "GotEncryptedExtensions"))
	return nil
}

func (hs *clientHandshakeState) readServerCertificate() error {
	c := hs.c

	msg, err := c.readHandshake(hs.transcript)
	if err != nil {
		return err
	}

	var certMsg *certificateMsgTLS13
	switch m := msg.(type) {
	case *certificateMsgTLS13:
		certMsg = m
	case *compressedCertificateMsg:
		certMsg, err = c.decompressCertificate(m)
		if err != nil {
			return err
		}
	default:
		c.sendAlert(alertUnexpectedMessage)
		return unexpectedMessageError(certMsg, msg)
	}
	if len(certMsg.certificates) == 0 {
		c.sendAlert(alertDecodeError)
		return errors.New("tls: received empty certificates message")
	}

	if err := c.verifyServerCertificate(certMsg.certificates); err != nil {
		return err
	}
	c.config.logger().Debug("handshake state",
		zap.String("state", "GotCertificate"),
		zap.Int("chain_len", len(certMsg.certificates)))

	// The CertificateVerify signature covers the transcript up to and
	// including the Certificate message, so it is read without hashing.
	msg, err = c.readHandshake(nil)
	if err != nil {
		return err
	}
	certVerify, ok := msg.(*certificateVerifyMsg)
	if !ok {
		c.sendAlert(alertUnexpectedMessage)
		return unexpectedMessageError(certVerify, msg)
	}

	if !slices.Contains(hs.hello.supportedSignatureAlgorithms, certVerify.signatureAlgorithm) {
		c.sendAlert(alertIllegalParameter)
		return errors.New("tls: certificate used with invalid signature algorithm")
	}
	switch certVerify.signatureAlgorithm {
	case PKCS1WithSHA256, PKCS1WithSHA384:
		c.sendAlert(alertIllegalParameter)
		return errors.New("tls: certificate used with obsolete signature algorithm")
	}
	if err := verifyHandshakeSignature(certVerify.signatureAlgorithm,
		c.peerCertificates[0], hs.transcript.Sum(nil), certVerify.signature); err != nil {
		c.sendAlert(alertDecryptError)
		return errors.New("tls: invalid signature by the server certificate: " + err.Error())
	}

	if err := transcriptMsg(certVerify, hs.transcript); err != nil {
		return err
	}
	c.config.logger().Debug("handshake state",
		zap.String("state", "GotCertificateVerify"),
		zap.Uint16("scheme", uint16(certVerify.signatureAlgorithm)))

	return nil
}

func (hs *clientHandshakeState) readServerFinished() error {
	c := hs.c

	msg, err := c.readHandshake(nil)
	if err != nil {
		return err
	}
	finished, ok := msg.(*finishedMsg)
	if !ok {
		c.sendAlert(alertUnexpectedMessage)
		return unexpectedMessageError(finished, msg)
	}

	expectedMAC, err := hs.suite.finishedHash(c.in.trafficSecret, hs.transcript)
	if err != nil {
		c.sendAlert(alertInternalError)
		return err
	}
	if subtle.ConstantTimeCompare(expectedMAC, finished.verifyData) != 1 {
		c.sendAlert(alertDecryptError)
		return errors.New("tls: invalid server finished hash")
	}

	if err := transcriptMsg(finished, hs.transcript); err != nil {
		return err
	}
	c.config.logger().Debug("handshake state", zap.String("state", "GotFinished"))

	// Derive secrets for handling client certificate and client Finished.
	serverSecret, err := hs.masterSecret.ServerApplicationTrafficSecret(hs.transcript)
	if err != nil {
		c.sendAlert(alertInternalError)
		return err
	}
	hs.trafficSecret, err = hs.masterSecret.ClientApplicationTrafficSecret(hs.transcript)
	if err != nil {
		c.sendAlert(alertInternalError)
		return err
	}
	if err := c.in.setTrafficSecret(hs.suite, serverSecret); err != nil {
		c.sendAlert(alertInternalError)
		return err
	}

	c.ekm = hs.suite.exportKeyingMaterial(hs.masterSecret, hs.transcript)
	return nil
}

func (hs *clientHandshakeState) sendClientFinished() error {
	c := hs.c

	verifyData, err := hs.suite.finishedHash(c.out.trafficSecret, hs.transcript)
	if err != nil {
		c.sendAlert(alertInternalError)
		return err
	}
	finished := &finishedMsg{verifyData: verifyData}

	if _, err := c.writeHandshakeRecord(finished, hs.transcript); err != nil {
		return err
	}
	c.config.logger().Debug("handshake state", zap.String("state", "SentFinished"))

	// The resumption secret is derived over the transcript including the
	// client Finished. It is retained only so it is zeroed with the rest
	// of the key material.
	c.resumptionSecret, err = hs.masterSecret.ResumptionMasterSecret(hs.transcript)
	if err != nil {
		c.sendAlert(alertInternalError)
		return err
	}

	if err := c.out.setTrafficSecret(hs.suite, hs.trafficSecret); err != nil {
		c.sendAlert(alertInternalError)
		return err
	}
	return nil
}

// verifyServerCertificate parses and verifies the provided chain, setting
// c.verifiedChains and c.peerCertificates or sending the appropriate alert.
func (c *Conn) verifyServerCertificate(certificates [][]byte) error {
	certs := make([]*x509.Certificate, len(certificates))
	for i, asn1Data := range certificates {
		cert, err := x509.ParseCertificate(asn1Data)
		if err != nil {
			c.sendAlert(alertBadCertificate)
			return fmt.Errorf("tls: failed to parse certificate from server: %w", err)
		}
		certs[i] = cert
	}

	switch certs[0].PublicKeyAlgorithm {
	case x509.RSA, x509.ECDSA:
	default:
		c.sendAlert(alertUnsupportedCertificate)
		return errors.New("tls: server certificate contains unsupported key type")
	}

	if !c.config.InsecureSkipVerify {
		opts := x509.VerifyOptions{
			Roots:         c.config.RootCAs,
			CurrentTime:   c.config.time(),
			DNSName:       c.config.ServerName,
			Intermediates: x509.NewCertPool(),
		}
		for _, cert := range certs[1:] {
			opts.Intermediates.AddCert(cert)
		}
		chain, err := certs[0].Verify(opts)
		if err != nil {
			c.sendAlert(alertBadCertificate)
			return &CertificateVerificationError{UnverifiedCertificates: certs, Err: err}
		}
		c.verifiedChains = [][]*x509.Certificate{chain}
	}

	c.peerCertificates = certs
	return nil
}

var signaturePadding = bytes.Repeat([]byte{0x20}, 64)

const serverSignatureContext = "TLS 1.3, server CertificateVerify\x00"

// signedMessage returns the data to be signed for a CertificateVerify
// message (RFC 8446, Section 4.4.3).
func signedMessage(context string, transcriptHash []byte) []byte {
	b := make([]byte, 0, 64+len(context)+len(transcriptHash))
	b = append(b, signaturePadding...)
	b = append(b, context...)
	b = append(b, transcriptHash...)
	return b
}

// verifyHandshakeSignature checks a CertificateVerify signature over the
// transcript hash using the leaf certificate's public key.
func verifyHandshakeSignature(scheme SignatureScheme, cert *x509.Certificate, transcriptHash, sig []byte) error {
	signed := signedMessage(serverSignatureContext, transcriptHash)
	switch scheme {
	case PSSWithSHA256:
		return cert.CheckSignature(x509.SHA256WithRSAPSS, signed, sig)
	case PSSWithSHA384:
		return cert.CheckSignature(x509.SHA384WithRSAPSS, signed, sig)
	case ECDSAWithP256AndSHA256:
		return cert.CheckSignature(x509.ECDSAWithSHA256, signed, sig)
	}
	return fmt.Errorf("tls: unsupported signature scheme 0x%04x", uint16(scheme))
}

// transcriptMsg marshals msg and writes it to the transcript.
func transcriptMsg(msg handshakeMessage, transcript transcriptHash) error {
	data, err := msg.marshal()
	if err != nil {
		return err
	}
	transcript.Write(data)
	return nil
}

func unexpectedMessageError(wanted, got any) error {
	return fmt.Errorf("tls: received unexpected handshake message of type %T when waiting for %T", got, wanted)
}

// hostnameInSNI converts name into an appropriate hostname for SNI.
// Literal IP addresses and absolute FQDNs are not permitted as SNI values.
// See RFC 6066, Section 3. Internationalized names are converted to their
// Punycode form per RFC 6066 and RFC 5891.
func hostnameInSNI(name string) string {
	host := name
	if len(host) > 0 && host[0] == '[' && host[len(host)-1] == ']' {
		host = host[1 : len(host)-1]
	}
	if i := strings.LastIndex(host, "%"); i > 0 {
		host = host[:i]
	}
	if net.ParseIP(host) != nil {
		return ""
	}
	for len(name) > 0 && name[len(name)-1] == '.' {
		name = name[:len(name)-1]
	}
	if ascii, err := idna.Lookup.ToASCII(name); err == nil {
		return ascii
	}
	return name
}

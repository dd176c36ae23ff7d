// Copyright 2025 The TinyTLS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package x509 parses and verifies the subset of X.509 (RFC 5280) needed to
// validate a TLS server certificate chain: DER certificates with RSA or
// ECDSA P-256 keys, PKCS#1 v1.5, RSA-PSS and ECDSA signatures, SubjectAltName
// DNS entries and BasicConstraints.
package x509

import (
	encasn1 "encoding/asn1"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/tealfork/tinytls/internal/ecdh"
	"golang.org/x/crypto/cryptobyte"
	asn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// SignatureAlgorithm identifies the algorithm that signed a certificate.
type SignatureAlgorithm int

const (
	UnknownSignatureAlgorithm SignatureAlgorithm = iota
	SHA256WithRSA
	SHA384WithRSA
	SHA256WithRSAPSS
	SHA384WithRSAPSS
	ECDSAWithSHA256
	ECDSAWithSHA384
)

func (a SignatureAlgorithm) String() string {
	switch a {
	case SHA256WithRSA:
		return "SHA256-RSA"
	case SHA384WithRSA:
		return "SHA384-RSA"
	case SHA256WithRSAPSS:
		return "SHA256-RSAPSS"
	case SHA384WithRSAPSS:
		return "SHA384-RSAPSS"
	case ECDSAWithSHA256:
		return "ECDSA-SHA256"
	case ECDSAWithSHA384:
		return "ECDSA-SHA384"
	}
	return "unknown"
}

// PublicKeyAlgorithm identifies the key type in a SubjectPublicKeyInfo.
type PublicKeyAlgorithm int

const (
	UnknownPublicKeyAlgorithm PublicKeyAlgorithm = iota
	RSA
	ECDSA
)

// RSAPublicKey is an RSA public key recovered from a PKCS#1 encoding.
type RSAPublicKey struct {
	N *big.Int
	E int
}

// ECDSAPublicKey is an uncompressed P-256 public point.
type ECDSAPublicKey struct {
	Point []byte // 0x04 || X || Y
}

// Certificate is a parsed X.509 certificate, keeping the raw DER regions
// needed for signature verification and chain building.
type Certificate struct {
	Raw                     []byte
	RawTBSCertificate       []byte
	RawSubjectPublicKeyInfo []byte
	RawSubject              []byte
	RawIssuer               []byte

	SerialNumber *big.Int

	SubjectCommonName string
	IssuerCommonName  string

	NotBefore, NotAfter time.Time

	DNSNames []string

	BasicConstraintsValid bool
	IsCA                  bool

	PublicKeyAlgorithm PublicKeyAlgorithm
	PublicKey          any

	SignatureAlgorithm SignatureAlgorithm
	Signature          []byte
}

var (
	oidSignatureSHA256WithRSA = encasn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 11}
	oidSignatureSHA384WithRSA = encasn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 12}
	oidSignatureRSAPSS        = encasn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 10}
	oidSignatureECDSASHA256   = encasn1.ObjectIdentifier{1, 2, 840, 10045, 4, 3, 2}
	oidSignatureECDSASHA384   = encasn1.ObjectIdentifier{1, 2, 840, 10045, 4, 3, 3}

	oidPublicKeyRSA   = encasn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 1}
	oidPublicKeyECDSA = encasn1.ObjectIdentifier{1, 2, 840, 10045, 2, 1}
	oidNamedCurveP256 = encasn1.ObjectIdentifier{1, 2, 840, 10045, 3, 1, 7}

	oidHashSHA256 = encasn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 1}
	oidHashSHA384 = encasn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 2}
	oidMGF1       = encasn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 8}

	oidAttributeCommonName  = encasn1.ObjectIdentifier{2, 5, 4, 3}
	oidExtensionSubjectAlt  = encasn1.ObjectIdentifier{2, 5, 29, 17}
	oidExtensionBasicConstr = encasn1.ObjectIdentifier{2, 5, 29, 19}
)

// ParseCertificate parses a single DER-encoded certificate.
func ParseCertificate(der []byte) (*Certificate, error) {
	cert := &Certificate{Raw: der}
	input := cryptobyte.String(der)

	// Certificate ::= SEQUENCE { tbsCertificate, signatureAlgorithm, signatureValue }
	var inner cryptobyte.String
	if !input.ReadASN1(&inner, asn1.SEQUENCE) || !input.Empty() {
		return nil, errors.New("x509: malformed certificate")
	}
	var tbs cryptobyte.String
	var rawTBS cryptobyte.String
	if !inner.ReadASN1Element(&rawTBS, asn1.SEQUENCE) {
		return nil, errors.New("x509: malformed tbs certificate")
	}
	cert.RawTBSCertificate = rawTBS
	if !rawTBS.ReadASN1(&tbs, asn1.SEQUENCE) {
		return nil, errors.New("x509: malformed tbs certificate")
	}

	// version [0] EXPLICIT INTEGER DEFAULT v1
	var version cryptobyte.String
	var hasVersion bool
	if !tbs.ReadOptionalASN1(&version, &hasVersion, asn1.Tag(0).Constructed().ContextSpecific()) {
		return nil, errors.New("x509: malformed version")
	}

	cert.SerialNumber = new(big.Int)
	if !tbs.ReadASN1Integer(cert.SerialNumber) {
		return nil, errors.New("x509: malformed serial number")
	}

	var sigAlgInner cryptobyte.String
	if !tbs.ReadASN1(&sigAlgInner, asn1.SEQUENCE) {
		return nil, errors.New("x509: malformed signature algorithm")
	}

	var rawIssuer cryptobyte.String
	if !tbs.ReadASN1Element(&rawIssuer, asn1.SEQUENCE) {
		return nil, errors.New("x509: malformed issuer")
	}
	cert.RawIssuer = rawIssuer
	cert.IssuerCommonName, _ = parseCommonName(rawIssuer)

	var validity cryptobyte.String
	if !tbs.ReadASN1(&validity, asn1.SEQUENCE) {
		return nil, errors.New("x509: malformed validity")
	}
	var err error
	if cert.NotBefore, err = parseTime(&validity); err != nil {
		return nil, err
	}
	if cert.NotAfter, err = parseTime(&validity); err != nil {
		return nil, err
	}

	var rawSubject cryptobyte.String
	if !tbs.ReadASN1Element(&rawSubject, asn1.SEQUENCE) {
		return nil, errors.New("x509: malformed subject")
	}
	cert.RawSubject = rawSubject
	cert.SubjectCommonName, _ = parseCommonName(rawSubject)

	var rawSPKI cryptobyte.String
	if !tbs.ReadASN1Element(&rawSPKI, asn1.SEQUENCE) {
		return nil, errors.New("x509: malformed spki")
	}
	cert.RawSubjectPublicKeyInfo = rawSPKI
	if err := parsePublicKey(cert, rawSPKI); err != nil {
		return nil, err
	}

	// issuerUniqueID [1], subjectUniqueID [2] are obsolete; skip if present.
	for _, tag := range []asn1.Tag{asn1.Tag(1), asn1.Tag(2)} {
		var skipped cryptobyte.String
		var present bool
		if !tbs.ReadOptionalASN1(&skipped, &present, tag.ContextSpecific()) {
			return nil, errors.New("x509: malformed tbs certificate")
		}
	}

	var extensions cryptobyte.String
	var hasExtensions bool
	if !tbs.ReadOptionalASN1(&extensions, &hasExtensions, asn1.Tag(3).Constructed().ContextSpecific()) {
		return nil, errors.New("x509: malformed extensions")
	}
	if hasExtensions {
		if err := parseExtensions(cert, extensions); err != nil {
			return nil, err
		}
	}

	var sigAlgOuter cryptobyte.String
	if !inner.ReadASN1Element(&sigAlgOuter, asn1.SEQUENCE) {
		return nil, errors.New("x509: malformed signature algorithm")
	}
	if cert.SignatureAlgorithm, err = parseSignatureAlgorithm(sigAlgOuter); err != nil {
		return nil, err
	}

	var signature encasn1.BitString
	if !inner.ReadASN1BitString(&signature) {
		return nil, errors.New("x509: malformed signature")
	}
	cert.Signature = signature.RightAlign()

	return cert, nil
}

// parseSignatureAlgorithm identifies a signature AlgorithmIdentifier,
// including RSASSA-PSS parameter validation.
func parseSignatureAlgorithm(raw cryptobyte.String) (SignatureAlgorithm, error) {
	var alg cryptobyte.String
	if !raw.ReadASN1(&alg, asn1.SEQUENCE) {
		return UnknownSignatureAlgorithm, errors.New("x509: malformed signature algorithm")
	}
	var oid encasn1.ObjectIdentifier
	if !alg.ReadASN1ObjectIdentifier(&oid) {
		return UnknownSignatureAlgorithm, errors.New("x509: malformed signature algorithm oid")
	}
	switch {
	case oid.Equal(oidSignatureSHA256WithRSA):
		return SHA256WithRSA, nil
	case oid.Equal(oidSignatureSHA384WithRSA):
		return SHA384WithRSA, nil
	case oid.Equal(oidSignatureECDSASHA256):
		return ECDSAWithSHA256, nil
	case oid.Equal(oidSignatureECDSASHA384):
		return ECDSAWithSHA384, nil
	case oid.Equal(oidSignatureRSAPSS):
		return parsePSSParameters(alg)
	}
	return UnknownSignatureAlgorithm, fmt.Errorf("x509: unsupported signature algorithm %v", oid)
}

// parsePSSParameters reads RSASSA-PSS-params and maps the supported profiles
// (SHA-256 or SHA-384, MGF1 with the same hash, salt length = hash length).
func parsePSSParameters(alg cryptobyte.String) (SignatureAlgorithm, error) {
	var params cryptobyte.String
	if !alg.ReadASN1(&params, asn1.SEQUENCE) {
		return UnknownSignatureAlgorithm, errors.New("x509: malformed pss parameters")
	}

	var hashField cryptobyte.String
	var present bool
	if !params.ReadOptionalASN1(&hashField, &present, asn1.Tag(0).Constructed().ContextSpecific()) || !present {
		return UnknownSignatureAlgorithm, errors.New("x509: pss parameters missing hash")
	}
	var hashAlg cryptobyte.String
	if !hashField.ReadASN1(&hashAlg, asn1.SEQUENCE) {
		return UnknownSignatureAlgorithm, errors.New("x509: malformed pss hash algorithm")
	}
	var hashOID encasn1.ObjectIdentifier
	if !hashAlg.ReadASN1ObjectIdentifier(&hashOID) {
		return UnknownSignatureAlgorithm, errors.New("x509: malformed pss hash oid")
	}

	var mgfField cryptobyte.String
	if !params.ReadOptionalASN1(&mgfField, &present, asn1.Tag(1).Constructed().ContextSpecific()) || !present {
		return UnknownSignatureAlgorithm, errors.New("x509: pss parameters missing mgf")
	}
	var mgfAlg cryptobyte.String
	if !mgfField.ReadASN1(&mgfAlg, asn1.SEQUENCE) {
		return UnknownSignatureAlgorithm, errors.New("x509: malformed pss mgf")
	}
	var mgfOID encasn1.ObjectIdentifier
	if !mgfAlg.ReadASN1ObjectIdentifier(&mgfOID) || !mgfOID.Equal(oidMGF1) {
		return UnknownSignatureAlgorithm, errors.New("x509: unsupported pss mask generation function")
	}
	var mgfHashAlg cryptobyte.String
	if !mgfAlg.ReadASN1(&mgfHashAlg, asn1.SEQUENCE) {
		return UnknownSignatureAlgorithm, errors.New("x509: malformed pss mgf hash")
	}
	var mgfHashOID encasn1.ObjectIdentifier
	if !mgfHashAlg.ReadASN1ObjectIdentifier(&mgfHashOID) || !mgfHashOID.Equal(hashOID) {
		return UnknownSignatureAlgorithm, errors.New("x509: pss mgf hash does not match message hash")
	}

	var saltField cryptobyte.String
	if !params.ReadOptionalASN1(&saltField, &present, asn1.Tag(2).Constructed().ContextSpecific()) || !present {
		return UnknownSignatureAlgorithm, errors.New("x509: pss parameters missing salt length")
	}
	var saltLength int
	if !saltField.ReadASN1Integer(&saltLength) {
		return UnknownSignatureAlgorithm, errors.New("x509: malformed pss salt length")
	}

	switch {
	case hashOID.Equal(oidHashSHA256) && saltLength == 32:
		return SHA256WithRSAPSS, nil
	case hashOID.Equal(oidHashSHA384) && saltLength == 48:
		return SHA384WithRSAPSS, nil
	}
	return UnknownSignatureAlgorithm, errors.New("x509: unsupported pss parameter profile")
}

func parsePublicKey(cert *Certificate, rawSPKI cryptobyte.String) error {
	var spki cryptobyte.String
	if !rawSPKI.ReadASN1(&spki, asn1.SEQUENCE) {
		return errors.New("x509: malformed spki")
	}
	var algID cryptobyte.String
	if !spki.ReadASN1(&algID, asn1.SEQUENCE) {
		return errors.New("x509: malformed spki algorithm")
	}
	var oid encasn1.ObjectIdentifier
	if !algID.ReadASN1ObjectIdentifier(&oid) {
		return errors.New("x509: malformed spki algorithm oid")
	}
	var keyBits encasn1.BitString
	if !spki.ReadASN1BitString(&keyBits) {
		return errors.New("x509: malformed spki key")
	}
	keyBytes := keyBits.RightAlign()

	switch {
	case oid.Equal(oidPublicKeyRSA):
		// RSAPublicKey ::= SEQUENCE { modulus INTEGER, publicExponent INTEGER }
		der := cryptobyte.String(keyBytes)
		var seq cryptobyte.String
		if !der.ReadASN1(&seq, asn1.SEQUENCE) {
			return errors.New("x509: malformed rsa public key")
		}
		pub := &RSAPublicKey{N: new(big.Int)}
		if !seq.ReadASN1Integer(pub.N) || !seq.ReadASN1Integer(&pub.E) {
			return errors.New("x509: malformed rsa public key")
		}
		if pub.N.Sign() <= 0 || pub.E <= 1 {
			return errors.New("x509: invalid rsa public key")
		}
		cert.PublicKeyAlgorithm = RSA
		cert.PublicKey = pub
	case oid.Equal(oidPublicKeyECDSA):
		var curve encasn1.ObjectIdentifier
		if !algID.ReadASN1ObjectIdentifier(&curve) {
			return errors.New("x509: malformed ec parameters")
		}
		if !curve.Equal(oidNamedCurveP256) {
			return fmt.Errorf("x509: unsupported elliptic curve %v", curve)
		}
		if _, err := ecdh.P256().NewPublicKey(keyBytes); err != nil {
			return errors.New("x509: invalid P-256 public key")
		}
		cert.PublicKeyAlgorithm = ECDSA
		cert.PublicKey = &ECDSAPublicKey{Point: keyBytes}
	default:
		return fmt.Errorf("x509: unsupported public key algorithm %v", oid)
	}
	return nil
}

// parseCommonName pulls the CN attribute out of a Name.
func parseCommonName(rawName cryptobyte.String) (string, error) {
	var name cryptobyte.String
	if !rawName.ReadASN1(&name, asn1.SEQUENCE) {
		return "", errors.New("x509: malformed name")
	}
	for !name.Empty() {
		var rdn cryptobyte.String
		if !name.ReadASN1(&rdn, asn1.SET) {
			return "", errors.New("x509: malformed rdn")
		}
		for !rdn.Empty() {
			var atv cryptobyte.String
			if !rdn.ReadASN1(&atv, asn1.SEQUENCE) {
				return "", errors.New("x509: malformed attribute")
			}
			var oid encasn1.ObjectIdentifier
			if !atv.ReadASN1ObjectIdentifier(&oid) {
				return "", errors.New("x509: malformed attribute oid")
			}
			var value cryptobyte.String
			var tag asn1.Tag
			if !atv.ReadAnyASN1(&value, &tag) {
				return "", errors.New("x509: malformed attribute value")
			}
			if oid.Equal(oidAttributeCommonName) {
				return string(value), nil
			}
		}
	}
	return "", nil
}

func parseTime(validity *cryptobyte.String) (time.Time, error) {
	var bytes cryptobyte.String
	var tag asn1.Tag
	if !validity.ReadAnyASN1(&bytes, &tag) {
		return time.Time{}, errors.New("x509: malformed validity time")
	}
	var layout string
	switch tag {
	case asn1.UTCTime:
		layout = "060102150405Z0700"
	case asn1.GeneralizedTime:
		layout = "20060102150405Z0700"
	default:
		return time.Time{}, errors.New("x509: unsupported validity time encoding")
	}
	t, err := time.Parse(layout, string(bytes))
	if err != nil {
		return time.Time{}, errors.New("x509: malformed validity time")
	}
	if tag == asn1.UTCTime {
		// UTCTime years are two digits: 50-99 map to 19xx.
		if t.Year() >= 2050 {
			t = t.AddDate(-100, 0, 0)
		}
	}
	return t, nil
}

func parseExtensions(cert *Certificate, extensions cryptobyte.String) error {
	var exts cryptobyte.String
	if !extensions.ReadASN1(&exts, asn1.SEQUENCE) {
		return errors.New("x509: malformed extensions")
	}
	for !exts.Empty() {
		var ext cryptobyte.String
		if !exts.ReadASN1(&ext, asn1.SEQUENCE) {
			return errors.New("x509: malformed extension")
		}
		var oid encasn1.ObjectIdentifier
		if !ext.ReadASN1ObjectIdentifier(&oid) {
			return errors.New("x509: malformed extension oid")
		}
		// critical BOOLEAN DEFAULT FALSE
		var critical bool
		if ext.PeekASN1Tag(asn1.BOOLEAN) {
			if !ext.ReadASN1Boolean(&critical) {
				return errors.New("x509: malformed extension critical flag")
			}
		}
		var value cryptobyte.String
		if !ext.ReadASN1(&value, asn1.OCTET_STRING) {
			return errors.New("x509: malformed extension value")
		}

		switch {
		case oid.Equal(oidExtensionSubjectAlt):
			if err := parseSANExtension(cert, value); err != nil {
				return err
			}
		case oid.Equal(oidExtensionBasicConstr):
			if err := parseBasicConstraints(cert, value); err != nil {
				return err
			}
		}
	}
	return nil
}

func parseSANExtension(cert *Certificate, value cryptobyte.String) error {
	var names cryptobyte.String
	if !value.ReadASN1(&names, asn1.SEQUENCE) {
		return errors.New("x509: malformed subjectAltName")
	}
	for !names.Empty() {
		var name cryptobyte.String
		var tag asn1.Tag
		if !names.ReadAnyASN1(&name, &tag) {
			return errors.New("x509: malformed subjectAltName entry")
		}
		// dNSName [2] IA5String; other name forms are ignored.
		if tag == asn1.Tag(2).ContextSpecific() {
			cert.DNSNames = append(cert.DNSNames, string(name))
		}
	}
	return nil
}

// parseECDSASignature splits an ECDSA-Sig-Value into its big-endian r and s.
func parseECDSASignature(sig []byte) (r, s []byte, err error) {
	errMalformed := errors.New("x509: malformed ecdsa signature")
	input := cryptobyte.String(sig)
	var inner cryptobyte.String
	if !input.ReadASN1(&inner, asn1.SEQUENCE) || !input.Empty() {
		return nil, nil, errMalformed
	}
	var rRaw, sRaw cryptobyte.String
	if !inner.ReadASN1(&rRaw, asn1.INTEGER) || !inner.ReadASN1(&sRaw, asn1.INTEGER) || !inner.Empty() {
		return nil, nil, errMalformed
	}
	// r and s are positive, so a set top bit marks a negative encoding.
	if len(rRaw) == 0 || rRaw[0]&0x80 != 0 || len(sRaw) == 0 || sRaw[0]&0x80 != 0 {
		return nil, nil, errMalformed
	}
	return rRaw, sRaw, nil
}

func parseBasicConstraints(cert *Certificate, value cryptobyte.String) error {
	var bc cryptobyte.String
	if !value.ReadASN1(&bc, asn1.SEQUENCE) {
		return errors.New("x509: malformed basicConstraints")
	}
	cert.BasicConstraintsValid = true
	if bc.PeekASN1Tag(asn1.BOOLEAN) {
		if !bc.ReadASN1Boolean(&cert.IsCA) {
			return errors.New("x509: malformed basicConstraints")
		}
	}
	return nil
}

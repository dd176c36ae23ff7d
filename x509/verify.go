// Copyright 2025 The TinyTLS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package x509

import (
	"bytes"
	"encoding/pem"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/idna"

	"github.com/tealfork/tinytls/internal/ecdh"
	"github.com/tealfork/tinytls/internal/sha2"
)

// InvalidReason describes why a certificate failed validation.
type InvalidReason int

const (
	// NotAuthorizedToSign results when an intermediate without the CA
	// basic constraint signs another certificate.
	NotAuthorizedToSign InvalidReason = iota
	// Expired results when the verification time falls outside the
	// certificate's validity window.
	Expired
	// TooManyIntermediates results when the chain exceeds the depth limit.
	TooManyIntermediates
)

// CertificateInvalidError is returned when a certificate in an otherwise
// plausible chain fails a validity check.
type CertificateInvalidError struct {
	Cert   *Certificate
	Reason InvalidReason
	Detail string
}

func (e CertificateInvalidError) Error() string {
	switch e.Reason {
	case NotAuthorizedToSign:
		return "x509: certificate is not authorized to sign other certificates"
	case Expired:
		return "x509: certificate has expired or is not yet valid: " + e.Detail
	case TooManyIntermediates:
		return "x509: too many intermediates for path length constraint"
	}
	return "x509: unknown error"
}

// HostnameError is returned when the leaf certificate covers none of the
// names the connection asked for.
type HostnameError struct {
	Certificate *Certificate
	Host        string
}

func (e HostnameError) Error() string {
	c := e.Certificate
	if len(c.DNSNames) > 0 {
		return fmt.Sprintf("x509: certificate is valid for %s, not %s",
			strings.Join(c.DNSNames, ", "), e.Host)
	}
	return fmt.Sprintf("x509: certificate is valid for %s, not %s",
		c.SubjectCommonName, e.Host)
}

// UnknownAuthorityError is returned when no chain to a trusted root exists.
type UnknownAuthorityError struct {
	Cert *Certificate

	// hintErr is the first signature failure against a candidate issuer,
	// kept to explain why a same-subject authority was rejected.
	hintErr error
}

func (e UnknownAuthorityError) Error() string {
	s := "x509: certificate signed by unknown authority"
	if e.hintErr != nil {
		s += " (possibly because of " + strconv.Quote(e.hintErr.Error()) +
			" while trying to verify candidate authority certificate)"
	}
	return s
}

// CertPool is a set of certificates indexed by raw subject.
type CertPool struct {
	bySubject map[string][]*Certificate
}

// NewCertPool returns an empty pool.
func NewCertPool() *CertPool {
	return &CertPool{bySubject: make(map[string][]*Certificate)}
}

// AddCert adds a certificate to the pool.
func (p *CertPool) AddCert(cert *Certificate) {
	key := string(cert.RawSubject)
	p.bySubject[key] = append(p.bySubject[key], cert)
}

// AppendCertsFromPEM adds every CERTIFICATE block in pemCerts to the pool.
// It reports whether at least one certificate was added.
func (p *CertPool) AppendCertsFromPEM(pemCerts []byte) bool {
	ok := false
	for len(pemCerts) > 0 {
		var block *pem.Block
		block, pemCerts = pem.Decode(pemCerts)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" || len(block.Headers) != 0 {
			continue
		}
		cert, err := ParseCertificate(block.Bytes)
		if err != nil {
			continue
		}
		p.AddCert(cert)
		ok = true
	}
	return ok
}

func (p *CertPool) findBySubject(rawSubject []byte) []*Certificate {
	if p == nil {
		return nil
	}
	return p.bySubject[string(rawSubject)]
}

func (p *CertPool) len() int {
	if p == nil {
		return 0
	}
	return len(p.bySubject)
}

// VerifyOptions bundles the inputs to chain verification.
type VerifyOptions struct {
	// DNSName, when set, is matched against the leaf's names.
	DNSName string
	// Roots are the trust anchors. Verification fails without them.
	Roots *CertPool
	// Intermediates are additional untrusted certificates, usually the
	// rest of the peer's chain.
	Intermediates *CertPool
	// CurrentTime is the verification time. Zero means time.Now.
	CurrentTime time.Time
}

// maxChainDepth bounds chain construction; real chains are 2-4 deep.
const maxChainDepth = 8

// Verify builds and validates a chain from c to a root in opts.Roots,
// returning the chain on success.
func (c *Certificate) Verify(opts VerifyOptions) ([]*Certificate, error) {
	if opts.Roots.len() == 0 {
		return nil, UnknownAuthorityError{Cert: c}
	}
	now := opts.CurrentTime
	if now.IsZero() {
		now = time.Now()
	}

	if opts.DNSName != "" {
		if err := c.VerifyHostname(opts.DNSName); err != nil {
			return nil, err
		}
	}

	chain, err := c.buildChain(&opts, now, 0)
	if err != nil {
		return nil, err
	}
	return chain, nil
}

func (c *Certificate) buildChain(opts *VerifyOptions, now time.Time, depth int) ([]*Certificate, error) {
	if err := c.checkValidity(now); err != nil {
		return nil, err
	}
	if depth > maxChainDepth {
		return nil, CertificateInvalidError{Cert: c, Reason: TooManyIntermediates}
	}

	// A failed signature against a same-subject candidate is only a hint;
	// the chain may still close through another issuer.
	unknown := UnknownAuthorityError{Cert: c}
	var lastErr error

	// A root that directly issued this certificate terminates the chain.
	for _, root := range opts.Roots.findBySubject(c.RawIssuer) {
		if err := c.CheckSignatureFrom(root); err != nil {
			if unknown.hintErr == nil {
				unknown.hintErr = err
			}
			continue
		}
		if err := root.checkValidity(now); err != nil {
			lastErr = err
			continue
		}
		return []*Certificate{c, root}, nil
	}

	for _, parent := range opts.Intermediates.findBySubject(c.RawIssuer) {
		if bytes.Equal(parent.Raw, c.Raw) {
			continue
		}
		if parent.BasicConstraintsValid && !parent.IsCA {
			lastErr = CertificateInvalidError{Cert: parent, Reason: NotAuthorizedToSign}
			continue
		}
		if err := c.CheckSignatureFrom(parent); err != nil {
			if unknown.hintErr == nil {
				unknown.hintErr = err
			}
			continue
		}
		rest, err := parent.buildChain(opts, now, depth+1)
		if err != nil {
			lastErr = err
			continue
		}
		return append([]*Certificate{c}, rest...), nil
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, unknown
}

func (c *Certificate) checkValidity(now time.Time) error {
	if now.Before(c.NotBefore) || now.After(c.NotAfter) {
		return CertificateInvalidError{
			Cert:   c,
			Reason: Expired,
			Detail: fmt.Sprintf("current time %s is not within %s..%s",
				now.Format(time.RFC3339), c.NotBefore.Format(time.RFC3339),
				c.NotAfter.Format(time.RFC3339)),
		}
	}
	return nil
}

// CheckSignatureFrom verifies that parent signed c.
func (c *Certificate) CheckSignatureFrom(parent *Certificate) error {
	return parent.CheckSignature(c.SignatureAlgorithm, c.RawTBSCertificate, c.Signature)
}

// CheckSignature verifies signature over signed using c's public key.
func (c *Certificate) CheckSignature(algo SignatureAlgorithm, signed, signature []byte) error {
	switch algo {
	case SHA256WithRSA:
		pub, ok := c.PublicKey.(*RSAPublicKey)
		if !ok {
			return errors.New("x509: signature algorithm does not match public key type")
		}
		digest := sha2.Sum256(signed)
		return verifyRSAPKCS1v15(pub, pkcs1PrefixSHA256, digest[:], signature)
	case SHA384WithRSA:
		pub, ok := c.PublicKey.(*RSAPublicKey)
		if !ok {
			return errors.New("x509: signature algorithm does not match public key type")
		}
		digest := sha2.Sum384(signed)
		return verifyRSAPKCS1v15(pub, pkcs1PrefixSHA384, digest[:], signature)
	case SHA256WithRSAPSS:
		pub, ok := c.PublicKey.(*RSAPublicKey)
		if !ok {
			return errors.New("x509: signature algorithm does not match public key type")
		}
		digest := sha2.Sum256(signed)
		return verifyRSAPSS(pub, sha2.New256, digest[:], signature)
	case SHA384WithRSAPSS:
		pub, ok := c.PublicKey.(*RSAPublicKey)
		if !ok {
			return errors.New("x509: signature algorithm does not match public key type")
		}
		digest := sha2.Sum384(signed)
		return verifyRSAPSS(pub, sha2.New384, digest[:], signature)
	case ECDSAWithSHA256, ECDSAWithSHA384:
		pub, ok := c.PublicKey.(*ECDSAPublicKey)
		if !ok {
			return errors.New("x509: signature algorithm does not match public key type")
		}
		var digest []byte
		if algo == ECDSAWithSHA256 {
			d := sha2.Sum256(signed)
			digest = d[:]
		} else {
			d := sha2.Sum384(signed)
			digest = d[:]
		}
		r, s, err := parseECDSASignature(signature)
		if err != nil {
			return err
		}
		if !ecdh.VerifyECDSAP256(pub.Point, digest, r, s) {
			return errors.New("x509: ecdsa verification failure")
		}
		return nil
	}
	return errors.New("x509: unsupported signature algorithm")
}

// VerifyHostname reports whether the certificate covers host: SAN dNSName
// entries when present, otherwise the subject common name.
func (c *Certificate) VerifyHostname(host string) error {
	candidate, err := idna.Lookup.ToASCII(strings.ToLower(strings.TrimSuffix(host, ".")))
	if err != nil {
		return HostnameError{Certificate: c, Host: host}
	}
	patterns := c.DNSNames
	if len(patterns) == 0 && c.SubjectCommonName != "" {
		patterns = []string{c.SubjectCommonName}
	}
	for _, pattern := range patterns {
		if matchHostname(strings.ToLower(pattern), candidate) {
			return nil
		}
	}
	return HostnameError{Certificate: c, Host: host}
}

// matchHostname matches pattern against host. A leading "*." wildcard
// covers exactly one DNS label.
func matchHostname(pattern, host string) bool {
	if pattern == "" || host == "" {
		return false
	}
	if pattern == host {
		return true
	}
	suffix, ok := strings.CutPrefix(pattern, "*.")
	if !ok {
		return false
	}
	rest, ok := strings.CutSuffix(host, "."+suffix)
	if !ok {
		return false
	}
	return rest != "" && !strings.Contains(rest, ".")
}

// Copyright 2025 The TinyTLS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package x509

import (
	"errors"
	"hash"
	"math/big"

	"github.com/tealfork/tinytls/internal/subtle"
)

// RSA signature verification over public data only: the modular
// exponentiation uses math/big, which is acceptable here because no secret
// values flow through it.

var errRSAVerification = errors.New("x509: rsa verification failure")

// DigestInfo prefixes for EMSA-PKCS1-v1_5 (RFC 8017 section 9.2).
var (
	pkcs1PrefixSHA256 = []byte{
		0x30, 0x31, 0x30, 0x0d, 0x06, 0x09, 0x60, 0x86, 0x48, 0x01,
		0x65, 0x03, 0x04, 0x02, 0x01, 0x05, 0x00, 0x04, 0x20,
	}
	pkcs1PrefixSHA384 = []byte{
		0x30, 0x41, 0x30, 0x0d, 0x06, 0x09, 0x60, 0x86, 0x48, 0x01,
		0x65, 0x03, 0x04, 0x02, 0x02, 0x05, 0x00, 0x04, 0x30,
	}
)

// rsaEncrypt computes sig^e mod n, left-padded to the modulus size.
func rsaEncrypt(pub *RSAPublicKey, sig []byte) ([]byte, error) {
	k := (pub.N.BitLen() + 7) / 8
	if len(sig) != k {
		return nil, errRSAVerification
	}
	s := new(big.Int).SetBytes(sig)
	if s.Cmp(pub.N) >= 0 {
		return nil, errRSAVerification
	}
	m := new(big.Int).Exp(s, big.NewInt(int64(pub.E)), pub.N)
	em := make([]byte, k)
	m.FillBytes(em)
	return em, nil
}

// verifyRSAPKCS1v15 checks an EMSA-PKCS1-v1_5 signature over digest.
func verifyRSAPKCS1v15(pub *RSAPublicKey, prefix, digest, sig []byte) error {
	em, err := rsaEncrypt(pub, sig)
	if err != nil {
		return err
	}
	// EM = 0x00 0x01 PS 0x00 DigestInfo, PS = 0xff.. at least 8 bytes.
	tLen := len(prefix) + len(digest)
	k := len(em)
	if k < tLen+11 {
		return errRSAVerification
	}
	ok := subtle.ConstantTimeByteEq(em[0], 0) & subtle.ConstantTimeByteEq(em[1], 1)
	for i := 2; i < k-tLen-1; i++ {
		ok &= subtle.ConstantTimeByteEq(em[i], 0xff)
	}
	ok &= subtle.ConstantTimeByteEq(em[k-tLen-1], 0)
	ok &= subtle.ConstantTimeCompare(em[k-tLen:k-len(digest)], prefix)
	ok &= subtle.ConstantTimeCompare(em[k-len(digest):], digest)
	if ok != 1 {
		return errRSAVerification
	}
	return nil
}

// verifyRSAPSS checks an EMSA-PSS signature (RFC 8017 section 9.1.2) with
// salt length equal to the hash length, the profile TLS 1.3 and modern
// certificates use.
func verifyRSAPSS(pub *RSAPublicKey, newHash func() hash.Hash, digest, sig []byte) error {
	em, err := rsaEncrypt(pub, sig)
	if err != nil {
		return err
	}
	hLen := len(digest)
	sLen := hLen
	emBits := pub.N.BitLen() - 1
	emLen := (emBits + 7) / 8
	// The top byte can shrink by one when the modulus bit length is 1 mod 8.
	if emLen < len(em) {
		if em[0] != 0 {
			return errRSAVerification
		}
		em = em[1:]
	}
	if emLen < hLen+sLen+2 {
		return errRSAVerification
	}
	if em[emLen-1] != 0xbc {
		return errRSAVerification
	}

	db := em[:emLen-hLen-1]
	h := em[emLen-hLen-1 : emLen-1]

	// The unused top bits of EM must be zero.
	topBits := 8*emLen - emBits
	if em[0]>>(8-topBits) != 0 && topBits != 8 {
		return errRSAVerification
	}

	mgf1XOR(db, newHash, h)
	if topBits != 8 {
		db[0] &= 0xff >> topBits
	}

	psLen := emLen - hLen - sLen - 2
	for _, b := range db[:psLen] {
		if b != 0 {
			return errRSAVerification
		}
	}
	if db[psLen] != 1 {
		return errRSAVerification
	}
	salt := db[len(db)-sLen:]

	// H' = Hash(0x00*8 || mHash || salt)
	hh := newHash()
	var prefix [8]byte
	hh.Write(prefix[:])
	hh.Write(digest)
	hh.Write(salt)
	if subtle.ConstantTimeCompare(hh.Sum(nil), h) != 1 {
		return errRSAVerification
	}
	return nil
}

// mgf1XOR XORs the MGF1 mask derived from seed into out.
func mgf1XOR(out []byte, newHash func() hash.Hash, seed []byte) {
	var counter [4]byte
	h := newHash()
	done := 0
	for done < len(out) {
		h.Reset()
		h.Write(seed)
		h.Write(counter[:])
		block := h.Sum(nil)
		for i := 0; i < len(block) && done < len(out); i++ {
			out[done] ^= block[i]
			done++
		}
		for i := 3; i >= 0; i-- {
			counter[i]++
			if counter[i] != 0 {
				break
			}
		}
	}
}

// Copyright 2025 The TinyTLS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ecdh

import (
	"bytes"
	stdecdsa "crypto/ecdsa"
	stdelliptic "crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/asn1"
	"encoding/hex"
	"math/big"
	"testing"
)

func fromHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("bad hex %q: %v", s, err)
	}
	return b
}

func TestX25519RFC7748(t *testing.T) {
	vectors := []struct{ scalar, u, want string }{
		{
			"a546e36bf0527c9d3b16154b82465edd62144c0ac1fc5a18506a2244ba449ac4",
			"e6db6867583030db3594c1a424b15f7c726624ec26b3353b10a903a6d0ab1c4c",
			"c3da55379de9c6908e94ea4df28d084f32eccf03491c71f754b4075577a28552",
		},
		{
			"4b66e9d4d1b4673c5ad22691957d6af5c11b6421e0ea01d42ca4169e7918ba0d",
			"e5210f12786811d3f4b7959d0538ae2c31dbe7106fc03c3efc4cd549c715a493",
			"95cbde9476e8907d7aade45cb4b873f88b595a68799fa152e6f8f7647aac7957",
		},
	}
	for i, v := range vectors {
		var k, u [32]byte
		copy(k[:], fromHex(t, v.scalar))
		copy(u[:], fromHex(t, v.u))
		got := x25519ScalarMult(&k, &u)
		if !bytes.Equal(got[:], fromHex(t, v.want)) {
			t.Errorf("vector %d: got %x, want %s", i, got, v.want)
		}
	}
}

func TestX25519DiffieHellman(t *testing.T) {
	alicePriv := fromHex(t, "77076d0a7318a57d3c16c17251b26645df4c2f87ebc0992ab177fba51db92c2a")
	alicePub := fromHex(t, "8520f0098930a754748b7ddcb43ef75a0dbf3a0d26381af4eba4a98eaa9b4e6a")
	bobPriv := fromHex(t, "5dab087e624a8a4b79e17f8b83800ee66f3bb1292618b6fd1c2f8b27ff88e0eb")
	bobPub := fromHex(t, "de9edb7d7b7dc1b4d35b61c2ece435373f8343c85b78674dadfc7e146f882b4f")
	shared := fromHex(t, "4a5d9d5ba4ce2de1728e3bf480350f25e07e21c947d19e3376f09b3c1e161742")

	alice, err := x25519Curve{}.newPrivateKey(alicePriv)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(alice.PublicKey().Bytes(), alicePub) {
		t.Errorf("alice public key: got %x, want %x", alice.PublicKey().Bytes(), alicePub)
	}
	bob, err := x25519Curve{}.newPrivateKey(bobPriv)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(bob.PublicKey().Bytes(), bobPub) {
		t.Errorf("bob public key: got %x, want %x", bob.PublicKey().Bytes(), bobPub)
	}

	peer, err := X25519().NewPublicKey(bobPub)
	if err != nil {
		t.Fatal(err)
	}
	got, err := alice.ECDH(peer)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, shared) {
		t.Errorf("shared secret: got %x, want %x", got, shared)
	}
}

func TestX25519RejectsLowOrderPoint(t *testing.T) {
	priv, err := X25519().GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	// The all-zero u-coordinate is a low-order point: the shared secret
	// comes out all zero and must be rejected.
	peer, err := X25519().NewPublicKey(make([]byte, 32))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := priv.ECDH(peer); err == nil {
		t.Error("expected error for low order point")
	}
}

func TestX25519RoundTrip(t *testing.T) {
	a, err := X25519().GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	b, err := X25519().GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	s1, err := a.ECDH(b.PublicKey())
	if err != nil {
		t.Fatal(err)
	}
	s2, err := b.ECDH(a.PublicKey())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(s1, s2) {
		t.Errorf("shared secrets differ: %x vs %x", s1, s2)
	}
}

func TestP256KnownAnswer(t *testing.T) {
	// NIST KAS ECC CDH vector for P-256.
	scalar := fromHex(t, "7d7dc5f71eb29ddaf80d6214632eeae03d9058af1fb6d22ed80badb62bc1a534")
	wantPub := fromHex(t, "04"+
		"ead218590119e8876b29146ff89ca61770c4edbbf97d38ce385ed281d8a6b230"+
		"28af61281fd35e2fa7002523acc85a429cb06ee6648325389f59edfce1405141")
	peer := fromHex(t, "04"+
		"700c48f77f56584c5cc632ca65640db91b6bacce3a4df6b42ce7cc838833d287"+
		"db71e509e3fd9b060ddb20ba5c51dcc5948d46fbf640dfe0441782cab85fa4ac")
	wantShared := fromHex(t, "46fc62106420ff012e54a434fbdd2d25ccc5852060561e68040dd7778997bd7b")

	gen := p256ScalarMult(p256Generator(), scalar)
	x, y, ok := p256Affine(gen)
	if !ok {
		t.Fatal("generator multiple is infinity")
	}
	pub := append(append([]byte{4}, x[:]...), y[:]...)
	if !bytes.Equal(pub, wantPub) {
		t.Errorf("public key: got %x, want %x", pub, wantPub)
	}

	priv := &PrivateKey{curve: p256Curve{}, scalar: scalar}
	pk, err := P256().NewPublicKey(peer)
	if err != nil {
		t.Fatal(err)
	}
	got, err := p256Curve{}.ecdh(priv, pk)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, wantShared) {
		t.Errorf("shared secret: got %x, want %x", got, wantShared)
	}
}

func TestP256RejectsBadPoints(t *testing.T) {
	cases := map[string][]byte{
		"empty":        nil,
		"short":        {4, 1, 2, 3},
		"bad prefix":   append([]byte{2}, make([]byte, 64)...),
		"not on curve": append([]byte{4}, make([]byte, 64)...),
	}
	for name, key := range cases {
		if _, err := P256().NewPublicKey(key); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestP256RoundTrip(t *testing.T) {
	a, err := P256().GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	b, err := P256().GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	s1, err := a.ECDH(b.PublicKey())
	if err != nil {
		t.Fatal(err)
	}
	s2, err := b.ECDH(a.PublicKey())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(s1, s2) {
		t.Errorf("shared secrets differ: %x vs %x", s1, s2)
	}
}

func TestCurveMismatch(t *testing.T) {
	a, err := X25519().GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	b, err := P256().GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.ECDH(b.PublicKey()); err == nil {
		t.Error("expected error for mismatched curves")
	}
}

func TestVerifyECDSAP256(t *testing.T) {
	key, err := stdecdsa.GenerateKey(stdelliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	digest := sha256.Sum256([]byte("tinytls ecdsa verify"))
	sig, err := stdecdsa.SignASN1(rand.Reader, key, digest[:])
	if err != nil {
		t.Fatal(err)
	}
	var parsed struct{ R, S *big.Int }
	if _, err := asn1.Unmarshal(sig, &parsed); err != nil {
		t.Fatal(err)
	}
	pub := stdelliptic.Marshal(stdelliptic.P256(), key.PublicKey.X, key.PublicKey.Y)

	if !VerifyECDSAP256(pub, digest[:], parsed.R.Bytes(), parsed.S.Bytes()) {
		t.Error("valid signature rejected")
	}

	bad := sha256.Sum256([]byte("some other message"))
	if VerifyECDSAP256(pub, bad[:], parsed.R.Bytes(), parsed.S.Bytes()) {
		t.Error("signature over wrong digest accepted")
	}
	if VerifyECDSAP256(pub, digest[:], parsed.S.Bytes(), parsed.R.Bytes()) {
		t.Error("swapped r and s accepted")
	}
	if VerifyECDSAP256(pub, digest[:], nil, parsed.S.Bytes()) {
		t.Error("zero r accepted")
	}
}

func TestMontFieldBasics(t *testing.T) {
	f := p256Field
	two := fromHex(t, "0000000000000000000000000000000000000000000000000000000000000002")
	three := fromHex(t, "0000000000000000000000000000000000000000000000000000000000000003")
	six := fromHex(t, "0000000000000000000000000000000000000000000000000000000000000006")

	a := f.fromBytes(two)
	b := f.fromBytes(three)
	got := f.toBytes(f.mul(a, b))
	if !bytes.Equal(got[:], six) {
		t.Errorf("2*3: got %x", got)
	}

	inv := f.invert(b)
	got = f.toBytes(f.mul(inv, b))
	one := f.toBytes(f.one())
	if got != one {
		t.Errorf("3 * 3^-1 != 1: got %x", got)
	}
}

// Copyright 2025 The TinyTLS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ecdh

import (
	"errors"
	"io"

	"github.com/tealfork/tinytls/internal/subtle"
)

// NIST P-256 (secp256r1), y^2 = x^3 - 3x + b over GF(p).

var (
	p256Field = newMontField([4]uint64{
		0xffffffffffffffff, 0x00000000ffffffff,
		0x0000000000000000, 0xffffffff00000001,
	})
	p256Order = newMontField([4]uint64{
		0xf3b9cac2fc632551, 0xbce6faada7179e84,
		0xffffffffffffffff, 0xffffffff00000000,
	})

	p256B = p256Field.fromBytes([]byte{
		0x5a, 0xc6, 0x35, 0xd8, 0xaa, 0x3a, 0x93, 0xe7,
		0xb3, 0xeb, 0xbd, 0x55, 0x76, 0x98, 0x86, 0xbc,
		0x65, 0x1d, 0x06, 0xb0, 0xcc, 0x53, 0xb0, 0xf6,
		0x3b, 0xce, 0x3c, 0x3e, 0x27, 0xd2, 0x60, 0x4b,
	})
	p256Gx = p256Field.fromBytes([]byte{
		0x6b, 0x17, 0xd1, 0xf2, 0xe1, 0x2c, 0x42, 0x47,
		0xf8, 0xbc, 0xe6, 0xe5, 0x63, 0xa4, 0x40, 0xf2,
		0x77, 0x03, 0x7d, 0x81, 0x2d, 0xeb, 0x33, 0xa0,
		0xf4, 0xa1, 0x39, 0x45, 0xd8, 0x98, 0xc2, 0x96,
	})
	p256Gy = p256Field.fromBytes([]byte{
		0x4f, 0xe3, 0x42, 0xe2, 0xfe, 0x1a, 0x7f, 0x9b,
		0x8e, 0xe7, 0xeb, 0x4a, 0x7c, 0x0f, 0x9e, 0x16,
		0x2b, 0xce, 0x33, 0x57, 0x6b, 0x31, 0x5e, 0xce,
		0xcb, 0xb6, 0x40, 0x68, 0x37, 0xbf, 0x51, 0xf5,
	})
)

// p256Point is a Jacobian point: affine (X/Z^2, Y/Z^3), with Z = 0 for the
// point at infinity. Coordinates are in Montgomery form.
type p256Point struct {
	x, y, z [4]uint64
}

func p256Infinity() p256Point {
	return p256Point{x: p256Field.one(), y: p256Field.one()}
}

func p256Generator() p256Point {
	return p256Point{x: p256Gx, y: p256Gy, z: p256Field.one()}
}

// p256Double uses the a = -3 doubling formulas (dbl-2001-b). Doubling the
// point at infinity yields Z = 0 again, so no special case is needed.
func p256Double(p p256Point) p256Point {
	f := p256Field
	delta := f.square(p.z)
	gamma := f.square(p.y)
	beta := f.mul(p.x, gamma)
	t := f.sub(p.x, delta)
	t2 := f.add(p.x, delta)
	m := f.mul(t, t2)
	alpha := f.add(m, f.add(m, m))

	var out p256Point
	beta4 := f.add(beta, beta)
	beta4 = f.add(beta4, beta4)
	out.x = f.sub(f.square(alpha), f.add(beta4, beta4))

	out.z = f.square(f.add(p.y, p.z))
	out.z = f.sub(f.sub(out.z, gamma), delta)

	gamma2 := f.square(gamma)
	gamma8 := f.add(gamma2, gamma2)
	gamma8 = f.add(gamma8, gamma8)
	gamma8 = f.add(gamma8, gamma8)
	out.y = f.sub(f.mul(alpha, f.sub(beta4, out.x)), gamma8)
	return out
}

// p256Add is a unified Jacobian addition: identities and the doubling case
// are folded in by constant-time selection rather than branches.
func p256Add(p1, p2 p256Point) p256Point {
	f := p256Field

	z1z1 := f.square(p1.z)
	z2z2 := f.square(p2.z)
	u1 := f.mul(p1.x, z2z2)
	u2 := f.mul(p2.x, z1z1)
	s1 := f.mul(p1.y, f.mul(p2.z, z2z2))
	s2 := f.mul(p2.y, f.mul(p1.z, z1z1))
	h := f.sub(u2, u1)
	r := f.sub(s2, s1)

	hh := f.square(h)
	hhh := f.mul(h, hh)
	v := f.mul(u1, hh)

	var sum p256Point
	sum.x = f.sub(f.sub(f.square(r), hhh), f.add(v, v))
	sum.y = f.sub(f.mul(r, f.sub(v, sum.x)), f.mul(s1, hhh))
	sum.z = f.mul(f.mul(p1.z, p2.z), h)

	// h == 0, r == 0 means p1 == p2; h == 0 alone means p1 == -p2, for
	// which sum.z is already zero.
	dblMask := -(f.isZero(h) & f.isZero(r))
	dbl := p256Double(p1)
	out := p256Point{
		x: montSelect(dbl.x, sum.x, dblMask),
		y: montSelect(dbl.y, sum.y, dblMask),
		z: montSelect(dbl.z, sum.z, dblMask),
	}

	inf1 := -f.isZero(p1.z)
	inf2 := -f.isZero(p2.z)
	out.x = montSelect(p1.x, montSelect(p2.x, out.x, inf1), inf2)
	out.y = montSelect(p1.y, montSelect(p2.y, out.y, inf1), inf2)
	out.z = montSelect(p1.z, montSelect(p2.z, out.z, inf1), inf2)
	return out
}

// p256ScalarMult computes scalar*p by double-and-add-always over the full
// 256-bit big-endian scalar, selecting each step's result by mask.
func p256ScalarMult(p p256Point, scalar []byte) p256Point {
	r := p256Infinity()
	for _, b := range scalar {
		for bit := 7; bit >= 0; bit-- {
			r = p256Double(r)
			sum := p256Add(r, p)
			mask := -uint64(b >> uint(bit) & 1)
			r.x = montSelect(sum.x, r.x, mask)
			r.y = montSelect(sum.y, r.y, mask)
			r.z = montSelect(sum.z, r.z, mask)
		}
	}
	return r
}

// p256Affine converts to affine coordinates. It reports failure for the
// point at infinity.
func p256Affine(p p256Point) (x, y [32]byte, ok bool) {
	f := p256Field
	if f.isZero(p.z) == 1 {
		return x, y, false
	}
	zinv := f.invert(p.z)
	zinv2 := f.square(zinv)
	x = f.toBytes(f.mul(p.x, zinv2))
	y = f.toBytes(f.mul(p.y, f.mul(zinv2, zinv)))
	return x, y, true
}

// p256OnCurve reports whether (x, y) in Montgomery form satisfy the curve
// equation.
func p256OnCurve(x, y [4]uint64) bool {
	f := p256Field
	lhs := f.square(y)
	rhs := f.mul(f.square(x), x)
	x3 := f.add(x, f.add(x, x))
	rhs = f.sub(rhs, x3)
	rhs = f.add(rhs, p256B)
	l := f.toBytes(lhs)
	r := f.toBytes(rhs)
	return subtle.ConstantTimeCompare(l[:], r[:]) == 1
}

const (
	p256ScalarSize = 32
	p256PointSize  = 65 // uncompressed: 0x04 || X || Y
)

type p256Curve struct{}

// P256 returns the Curve for NIST P-256 ECDH.
func P256() Curve { return p256Curve{} }

func (p256Curve) GenerateKey(rand io.Reader) (*PrivateKey, error) {
	scalar := make([]byte, p256ScalarSize)
	// Rejection sampling for a uniform nonzero scalar below the order.
	for {
		if _, err := io.ReadFull(rand, scalar); err != nil {
			return nil, err
		}
		if !p256Order.lessThanModulus(scalar) {
			continue
		}
		if subtle.ConstantTimeAllZero(scalar) == 1 {
			continue
		}
		break
	}
	pub := p256ScalarMult(p256Generator(), scalar)
	x, y, ok := p256Affine(pub)
	if !ok {
		return nil, errors.New("ecdh: internal error: scalar multiplication returned infinity")
	}
	enc := make([]byte, 0, p256PointSize)
	enc = append(enc, 4)
	enc = append(enc, x[:]...)
	enc = append(enc, y[:]...)
	return &PrivateKey{
		curve:  p256Curve{},
		scalar: append([]byte(nil), scalar...),
		pub:    &PublicKey{curve: p256Curve{}, bytes: enc},
	}, nil
}

func (p256Curve) NewPublicKey(key []byte) (*PublicKey, error) {
	if _, err := p256ParsePoint(key); err != nil {
		return nil, err
	}
	return &PublicKey{curve: p256Curve{}, bytes: append([]byte(nil), key...)}, nil
}

// p256ParsePoint validates an uncompressed SEC1 point encoding: correct
// length and prefix, coordinates below the field prime, and the curve
// equation holding.
func p256ParsePoint(key []byte) (p256Point, error) {
	if len(key) != p256PointSize || key[0] != 4 {
		return p256Point{}, errors.New("ecdh: invalid P-256 public key encoding")
	}
	xb, yb := key[1:33], key[33:65]
	if !p256Field.lessThanModulus(xb) || !p256Field.lessThanModulus(yb) {
		return p256Point{}, errors.New("ecdh: P-256 coordinate out of range")
	}
	x := p256Field.fromBytes(xb)
	y := p256Field.fromBytes(yb)
	if !p256OnCurve(x, y) {
		return p256Point{}, errors.New("ecdh: P-256 point not on curve")
	}
	return p256Point{x: x, y: y, z: p256Field.one()}, nil
}

func (p256Curve) ecdh(priv *PrivateKey, pub *PublicKey) ([]byte, error) {
	pt, err := p256ParsePoint(pub.bytes)
	if err != nil {
		return nil, err
	}
	shared := p256ScalarMult(pt, priv.scalar)
	x, _, ok := p256Affine(shared)
	if !ok {
		return nil, errors.New("ecdh: P-256 shared secret is the point at infinity")
	}
	return x[:], nil
}

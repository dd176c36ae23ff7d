// Copyright 2025 The TinyTLS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tls

import (
	"bytes"
	"testing"
)

func newTestHalfConnPair(t *testing.T, suiteID uint16) (enc, dec *halfConn) {
	t.Helper()
	suite := cipherSuiteTLS13ByID(suiteID)
	if suite == nil {
		t.Fatalf("unknown suite %x", suiteID)
	}
	secret := bytes.Repeat([]byte{0x42}, suite.hash().Size())
	enc, dec = &halfConn{}, &halfConn{}
	if err := enc.setTrafficSecret(suite, append([]byte(nil), secret...)); err != nil {
		t.Fatal(err)
	}
	if err := dec.setTrafficSecret(suite, append([]byte(nil), secret...)); err != nil {
		t.Fatal(err)
	}
	return enc, dec
}

func recordHeader(typ recordType) []byte {
	return []byte{byte(typ), 0x03, 0x03, 0, 0}
}

func TestRecordRoundTrip(t *testing.T) {
	for _, suiteID := range []uint16{TLS_AES_128_GCM_SHA256, TLS_AES_256_GCM_SHA384} {
		enc, dec := newTestHalfConnPair(t, suiteID)

		payload := []byte("handshake bytes")
		record, err := enc.encrypt(recordHeader(recordTypeHandshake), payload, 0)
		if err != nil {
			t.Fatal(err)
		}
		if recordType(record[0]) != recordTypeApplicationData {
			t.Errorf("outer record type = %d, want application_data", record[0])
		}

		plaintext, typ, err := dec.decrypt(record)
		if err != nil {
			t.Fatal(err)
		}
		if typ != recordTypeHandshake {
			t.Errorf("inner type = %d, want handshake", typ)
		}
		if !bytes.Equal(plaintext, payload) {
			t.Errorf("plaintext = %q, want %q", plaintext, payload)
		}
	}
}

func TestRecordPaddingStripped(t *testing.T) {
	enc, dec := newTestHalfConnPair(t, TLS_AES_128_GCM_SHA256)

	payload := []byte("padded application data")
	record, err := enc.encrypt(recordHeader(recordTypeApplicationData), payload, 100)
	if err != nil {
		t.Fatal(err)
	}
	wantLen := recordHeaderLen + len(payload) + 1 + 100 + dec.cipher.Overhead()
	if len(record) != wantLen {
		t.Errorf("record length = %d, want %d", len(record), wantLen)
	}

	plaintext, typ, err := dec.decrypt(record)
	if err != nil {
		t.Fatal(err)
	}
	if typ != recordTypeApplicationData {
		t.Errorf("inner type = %d", typ)
	}
	if !bytes.Equal(plaintext, payload) {
		t.Errorf("padding not stripped: %q", plaintext)
	}
}

func TestRecordSequenceBinding(t *testing.T) {
	enc, dec := newTestHalfConnPair(t, TLS_AES_128_GCM_SHA256)

	payload := []byte("same payload")
	first, err := enc.encrypt(recordHeader(recordTypeApplicationData), payload, 0)
	if err != nil {
		t.Fatal(err)
	}
	firstCopy := append([]byte(nil), first...)
	replayCopy := append([]byte(nil), first...)
	second, err := enc.encrypt(recordHeader(recordTypeApplicationData), payload, 0)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(firstCopy, second) {
		t.Error("identical ciphertext for consecutive records")
	}

	if _, _, err := dec.decrypt(firstCopy); err != nil {
		t.Fatal(err)
	}
	// A replay of the first record must fail under the advanced sequence
	// number.
	if _, _, err := dec.decrypt(replayCopy); err != alertBadRecordMAC {
		t.Errorf("replayed record: err = %v, want bad_record_mac", err)
	}
}

func TestDecryptTampered(t *testing.T) {
	enc, dec := newTestHalfConnPair(t, TLS_AES_128_GCM_SHA256)

	record, err := enc.encrypt(recordHeader(recordTypeApplicationData), []byte("data"), 0)
	if err != nil {
		t.Fatal(err)
	}
	record[len(record)-1] ^= 0x01
	if _, _, err := dec.decrypt(record); err != alertBadRecordMAC {
		t.Errorf("tampered record: err = %v, want bad_record_mac", err)
	}
}

func TestDecryptAllZeroPlaintext(t *testing.T) {
	enc, dec := newTestHalfConnPair(t, TLS_AES_128_GCM_SHA256)

	// A record whose plaintext is entirely padding has no inner
	// ContentType and must be rejected.
	hdr := recordHeader(recordTypeApplicationData)
	record := append(hdr, make([]byte, 8)...)
	n := 8 + enc.cipher.Overhead()
	record[3] = byte(n >> 8)
	record[4] = byte(n)
	record = enc.cipher.Seal(record[:recordHeaderLen], enc.seq[:], record[recordHeaderLen:], record[:recordHeaderLen])

	if _, _, err := dec.decrypt(record); err != alertUnexpectedMessage {
		t.Errorf("all-zero plaintext: err = %v, want unexpected_message", err)
	}
}

func TestIncSeqOverflow(t *testing.T) {
	hc := &halfConn{}
	for i := range hc.seq {
		hc.seq[i] = 0xff
	}
	if err := hc.incSeq(); err == nil {
		t.Error("sequence number overflow not detected")
	}
}

func TestChangeCipherSpecPassthrough(t *testing.T) {
	_, dec := newTestHalfConnPair(t, TLS_AES_128_GCM_SHA256)

	record := []byte{byte(recordTypeChangeCipherSpec), 0x03, 0x03, 0, 1, 1}
	data, typ, err := dec.decrypt(record)
	if err != nil {
		t.Fatal(err)
	}
	if typ != recordTypeChangeCipherSpec || !bytes.Equal(data, []byte{1}) {
		t.Errorf("ccs record: typ=%d data=%x", typ, data)
	}
}

func TestZeroSecrets(t *testing.T) {
	c := &Conn{}
	suite := cipherSuiteTLS13ByID(TLS_AES_128_GCM_SHA256)
	if err := c.in.setTrafficSecret(suite, bytes.Repeat([]byte{1}, 32)); err != nil {
		t.Fatal(err)
	}
	if err := c.out.setTrafficSecret(suite, bytes.Repeat([]byte{2}, 32)); err != nil {
		t.Fatal(err)
	}
	c.resumptionSecret = bytes.Repeat([]byte{3}, 32)
	inSecret, outSecret, resSecret := c.in.trafficSecret, c.out.trafficSecret, c.resumptionSecret

	c.zeroSecrets()

	for _, s := range [][]byte{inSecret, outSecret, resSecret} {
		for _, b := range s {
			if b != 0 {
				t.Fatal("secret material not zeroed")
			}
		}
	}
	if c.in.trafficSecret != nil || c.out.trafficSecret != nil || c.resumptionSecret != nil {
		t.Error("secret references not cleared")
	}
}

// Copyright 2025 The TinyTLS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tls13

import (
	"bytes"
	"encoding/hex"
	"errors"
	"strings"
	"testing"

	"github.com/tealfork/tinytls/internal/sha2"
)

func mustHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return b
}

func TestExpandLabelErrors(t *testing.T) {
	secret := make([]byte, 32)

	longLabel := strings.Repeat("x", 250)
	if _, err := ExpandLabel(sha2.New256, secret, longLabel, nil, 32); !errors.Is(err, ErrLabelTooLong) {
		t.Errorf("long label: got %v, want ErrLabelTooLong", err)
	}

	longContext := make([]byte, 256)
	if _, err := ExpandLabel(sha2.New256, secret, "test", longContext, 32); !errors.Is(err, ErrLabelTooLong) {
		t.Errorf("long context: got %v, want ErrLabelTooLong", err)
	}
}

// TestExpandLabelRFC8448 checks HKDF-Expand-Label against the "derived"
// steps of the RFC 8448 simple 1-RTT handshake.
func TestExpandLabelRFC8448(t *testing.T) {
	emptyHash := sha2.New256()
	emptyContext := emptyHash.Sum(nil)

	vectors := []struct {
		name     string
		secret   string
		expected string
	}{
		{
			"derived_from_early_secret",
			"33ad0a1c607ec03b09e6cd9893680ce210adf300aa1f2660e1b22e10f170f92a",
			"6f2615a108c702c5678f54fc9dbab69716c076189c48250cebeac3576c3611ba",
		},
		{
			"derived_from_handshake_secret",
			"1dc826e93606aa6fdc0aadc12f741b01046aa6b99f691ed221a9f0ca043fbeac",
			"43de77e0c77713859a944db9db2590b53190a65b3ee2e4f12dd7a0bb7ce254b4",
		},
	}
	for _, tc := range vectors {
		t.Run(tc.name, func(t *testing.T) {
			result, err := ExpandLabel(sha2.New256, mustHex(tc.secret), "derived", emptyContext, 32)
			if err != nil {
				t.Fatalf("ExpandLabel: %v", err)
			}
			if !bytes.Equal(result, mustHex(tc.expected)) {
				t.Errorf("got %x, want %s", result, tc.expected)
			}
		})
	}
}

// TestKeyScheduleRFC8448 walks the staged secrets through the RFC 8448
// Section 3 values.
func TestKeyScheduleRFC8448(t *testing.T) {
	sharedSecret := mustHex("8bd4054fb55b9d63fdfbacf9f04b9f0d35e6d63f537563efd46272900f89492d")

	expectedEarly := mustHex("33ad0a1c607ec03b09e6cd9893680ce210adf300aa1f2660e1b22e10f170f92a")
	expectedHandshake := mustHex("1dc826e93606aa6fdc0aadc12f741b01046aa6b99f691ed221a9f0ca043fbeac")
	expectedMaster := mustHex("18df06843d13a08bf2a449844c5f8a478001bc4d4c627984d5a41da8d0402919")

	early := NewEarlySecret(sha2.New256, nil)
	if !bytes.Equal(early.secret, expectedEarly) {
		t.Errorf("early_secret:\n  got:  %x\n  want: %x", early.secret, expectedEarly)
	}

	hs, err := early.HandshakeSecret(sharedSecret)
	if err != nil {
		t.Fatalf("HandshakeSecret: %v", err)
	}
	if !bytes.Equal(hs.secret, expectedHandshake) {
		t.Errorf("handshake_secret:\n  got:  %x\n  want: %x", hs.secret, expectedHandshake)
	}

	master, err := hs.MasterSecret()
	if err != nil {
		t.Fatalf("MasterSecret: %v", err)
	}
	if !bytes.Equal(master.secret, expectedMaster) {
		t.Errorf("master_secret:\n  got:  %x\n  want: %x", master.secret, expectedMaster)
	}
}

// TestTrafficSecretsRFC8448 checks the handshake traffic secrets against
// the RFC 8448 transcript hash of ClientHello..ServerHello.
func TestTrafficSecretsRFC8448(t *testing.T) {
	sharedSecret := mustHex("8bd4054fb55b9d63fdfbacf9f04b9f0d35e6d63f537563efd46272900f89492d")
	transcriptHash := mustHex("860c06edc07858ee8e78f0e7428c58edd6b43f2ca3e6e95f02ed063cf0e1cad8")

	expectedClient := mustHex("b3eddb126e067f35a780b3abf45e2d8f3b1a950738f52e9600746a0e27a55a21")
	expectedServer := mustHex("b67b7d690cc16c4e75e54213cb2d37b4e9c912bcded9105d42befd59d391ad38")

	hs, err := NewEarlySecret(sha2.New256, nil).HandshakeSecret(sharedSecret)
	if err != nil {
		t.Fatalf("HandshakeSecret: %v", err)
	}

	// The transcript is injected as a pre-hashed recorder.
	transcript := &fixedTranscript{sum: transcriptHash}
	client, err := hs.ClientHandshakeTrafficSecret(transcript)
	if err != nil {
		t.Fatalf("ClientHandshakeTrafficSecret: %v", err)
	}
	if !bytes.Equal(client, expectedClient) {
		t.Errorf("c hs traffic:\n  got:  %x\n  want: %x", client, expectedClient)
	}
	server, err := hs.ServerHandshakeTrafficSecret(transcript)
	if err != nil {
		t.Fatalf("ServerHandshakeTrafficSecret: %v", err)
	}
	if !bytes.Equal(server, expectedServer) {
		t.Errorf("s hs traffic:\n  got:  %x\n  want: %x", server, expectedServer)
	}
}

// fixedTranscript is a hash.Hash that reports a fixed sum; only Sum and
// Size are consulted by deriveSecret.
type fixedTranscript struct{ sum []byte }

func (f *fixedTranscript) Write(p []byte) (int, error) { return len(p), nil }
func (f *fixedTranscript) Sum(b []byte) []byte         { return append(b, f.sum...) }
func (f *fixedTranscript) Reset()                      {}
func (f *fixedTranscript) Size() int                   { return len(f.sum) }
func (f *fixedTranscript) BlockSize() int              { return 64 }

func TestTrafficSecretsDiffer(t *testing.T) {
	hs, err := NewEarlySecret(sha2.New256, nil).HandshakeSecret(make([]byte, 32))
	if err != nil {
		t.Fatal(err)
	}
	c, _ := hs.ClientHandshakeTrafficSecret(nil)
	s, _ := hs.ServerHandshakeTrafficSecret(nil)
	if bytes.Equal(c, s) {
		t.Error("client and server traffic secrets are equal")
	}
}

func TestFinishedHash(t *testing.T) {
	baseKey := mustHex("b67b7d690cc16c4e75e54213cb2d37b4e9c912bcded9105d42befd59d391ad38")
	// RFC 8448: finished key expanded from the server handshake traffic
	// secret.
	wantKey := mustHex("008d3b66f816ea559f96b537e885c31fc068bf492c652f01f288a1d8cdc19fc8")

	key, err := ExpandLabel(sha2.New256, baseKey, "finished", nil, 32)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(key, wantKey) {
		t.Errorf("finished key:\n  got:  %x\n  want: %x", key, wantKey)
	}
}

func TestSHA384Schedule(t *testing.T) {
	early := NewEarlySecret(sha2.New384, nil)
	if len(early.secret) != 48 {
		t.Errorf("early secret length = %d, want 48", len(early.secret))
	}
	hs, err := early.HandshakeSecret(make([]byte, 48))
	if err != nil {
		t.Fatal(err)
	}
	c, err := hs.ClientHandshakeTrafficSecret(nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(c) != 48 {
		t.Errorf("traffic secret length = %d, want 48", len(c))
	}
}

// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"bytes"
	"testing"
)

func keysFor(cipherName, macName string) directionKeys {
	n := cipherKeySizes[cipherName]
	if n == 0 {
		n = 32
	}
	key := make([]byte, n)
	for i := range key {
		key[i] = byte(i + 1)
	}
	iv := make([]byte, 16)
	for i := range iv {
		iv[i] = byte(i + 100)
	}
	mac := make([]byte, macKeySizes[macName])
	for i := range mac {
		mac[i] = byte(i + 200)
	}
	return directionKeys{iv: iv, key: key, macKey: mac}
}

// Law 1 (framing round trip) at the cipher layer: decrypt(encrypt(P)) == P
// for every cipher suite this core implements.
func TestPacketCipherRoundTrip(t *testing.T) {
	for _, tc := range []struct{ cipher, mac string }{
		{cipherAES128CTR, "hmac-sha2-256"},
		{cipherAES256CTR, "hmac-sha2-512"},
		{cipherChaCha20Poly1305, ""},
	} {
		keys := keysFor(tc.cipher, tc.mac)
		enc, err := newPacketCipher(tc.cipher, tc.mac, keys)
		if err != nil {
			t.Fatalf("%s: %v", tc.cipher, err)
		}
		dec, err := newPacketCipher(tc.cipher, tc.mac, keys)
		if err != nil {
			t.Fatalf("%s: %v", tc.cipher, err)
		}

		body := []byte("\x04hello, world!\x00\x00\x00\x00")
		var length [4]byte
		length[3] = byte(len(body))

		ciphertext, err := enc.encrypt(7, length, body)
		if err != nil {
			t.Fatalf("%s: encrypt: %v", tc.cipher, err)
		}
		got, err := dec.decrypt(7, length, ciphertext)
		if err != nil {
			t.Fatalf("%s: decrypt: %v", tc.cipher, err)
		}
		if !bytes.Equal(got, body) {
			t.Fatalf("%s: round trip = %x, want %x", tc.cipher, got, body)
		}
	}
}

func TestPacketCipherRejectsWrongSequenceNumber(t *testing.T) {
	keys := keysFor(cipherAES128CTR, "hmac-sha2-256")
	enc, _ := newPacketCipher(cipherAES128CTR, "hmac-sha2-256", keys)
	dec, _ := newPacketCipher(cipherAES128CTR, "hmac-sha2-256", keys)

	body := []byte("\x04payload\x00\x00\x00\x00")
	var length [4]byte
	length[3] = byte(len(body))

	ciphertext, err := enc.encrypt(0, length, body)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := dec.decrypt(1, length, ciphertext); err == nil {
		t.Fatal("decrypt with the wrong sequence number should fail the MAC/tag check")
	}
}

func TestPacketCipherRejectsTamperedCiphertext(t *testing.T) {
	keys := keysFor(cipherChaCha20Poly1305, "")
	enc, _ := newPacketCipher(cipherChaCha20Poly1305, "", keys)
	dec, _ := newPacketCipher(cipherChaCha20Poly1305, "", keys)

	body := []byte("\x04payload\x00\x00\x00\x00")
	var length [4]byte
	length[3] = byte(len(body))

	ciphertext, err := enc.encrypt(3, length, body)
	if err != nil {
		t.Fatal(err)
	}
	ciphertext[0] ^= 0xff
	if _, err := dec.decrypt(3, length, ciphertext); err == nil {
		t.Fatal("decrypt of tampered ciphertext should fail")
	}
}

func TestDeriveKeysDirectionsDiffer(t *testing.T) {
	hashNew := curve25519KEX{}.hashNew()
	k := []byte("shared-secret")
	h := []byte("exchange-hash")
	sessionID := []byte("session-id")

	c2s, s2c := deriveKeys(hashNew, k, h, sessionID, cipherAES128CTR, "hmac-sha2-256")
	if bytes.Equal(c2s.key, s2c.key) {
		t.Fatal("client-to-server and server-to-client keys must differ (letters C vs D)")
	}
	if bytes.Equal(c2s.iv, s2c.iv) {
		t.Fatal("client-to-server and server-to-client IVs must differ (letters A vs B)")
	}
	if len(c2s.key) != cipherKeySizes[cipherAES128CTR] {
		t.Fatalf("key length = %d, want %d", len(c2s.key), cipherKeySizes[cipherAES128CTR])
	}
}

// chacha20-poly1305@openssh.com hides packet_length on the wire using a
// dedicated keystream from the second half of its derived key, unlike
// the CTR+HMAC suites which authenticate it in the clear.
func TestAEADConcealsLength(t *testing.T) {
	keys := keysFor(cipherChaCha20Poly1305, "")
	c, err := newPacketCipher(cipherChaCha20Poly1305, "", keys)
	if err != nil {
		t.Fatal(err)
	}
	var length [4]byte
	length[3] = 42

	wire, err := c.concealLength(5, length)
	if err != nil {
		t.Fatal(err)
	}
	if wire == length {
		t.Fatal("concealLength for chacha20-poly1305 must not return the cleartext length unchanged")
	}
	revealed, err := c.revealLength(5, wire)
	if err != nil {
		t.Fatal(err)
	}
	if revealed != length {
		t.Fatalf("revealLength(concealLength(x)) = %v, want %v", revealed, length)
	}
}

func TestCTRLeavesLengthInClear(t *testing.T) {
	keys := keysFor(cipherAES128CTR, "hmac-sha2-256")
	c, err := newPacketCipher(cipherAES128CTR, "hmac-sha2-256", keys)
	if err != nil {
		t.Fatal(err)
	}
	var length [4]byte
	length[3] = 42
	wire, err := c.concealLength(5, length)
	if err != nil {
		t.Fatal(err)
	}
	if wire != length {
		t.Fatal("CTR+HMAC must leave packet_length unchanged on the wire")
	}
}

func TestAEADIgnoresNegotiatedMAC(t *testing.T) {
	if macKeySizes["hmac-sha2-256"] == 0 {
		t.Fatal("test fixture broken")
	}
	keys := keysFor(cipherChaCha20Poly1305, "hmac-sha2-256")
	c, err := newPacketCipher(cipherChaCha20Poly1305, "hmac-sha2-256", keys)
	if err != nil {
		t.Fatal(err)
	}
	if c.macLen() == macKeySizes["hmac-sha2-256"] {
		t.Fatal("AEAD tag length should come from the cipher, not the negotiated MAC")
	}
}

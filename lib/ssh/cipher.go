// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"

	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	cipherAES128CTR        = "aes128-ctr"
	cipherAES192CTR        = "aes192-ctr"
	cipherAES256CTR        = "aes256-ctr"
	cipherChaCha20Poly1305 = "chacha20-poly1305@openssh.com"
)

// cipherKeySizes reports the symmetric key length, in bytes, each
// cipher requires.
var cipherKeySizes = map[string]int{
	cipherAES128CTR:        16,
	cipherAES192CTR:        24,
	cipherAES256CTR:        32,
	cipherChaCha20Poly1305: 64, // two 32-byte keys: main stream + length stream
}

// macKeySizes reports the key length, in bytes, an HMAC family needs.
// AEAD ciphers ignore the negotiated MAC entirely.
var macKeySizes = map[string]int{
	"hmac-sha2-256": 32,
	"hmac-sha2-512": 64,
}

func isAEAD(cipherName string) bool {
	return cipherName == cipherChaCha20Poly1305
}

// kdfLetter derives K_X = HASH(K || H || X || session_id), extended per
// RFC 4253 section 7.2 by HASH(K || H || K_X_so_far) until n bytes are
// available.
func kdfLetter(hashNew func() hash.Hash, k, h []byte, letter byte, sessionID []byte, n int) []byte {
	hFn := hashNew()
	hFn.Write(k)
	hFn.Write(h)
	hFn.Write([]byte{letter})
	hFn.Write(sessionID)
	out := hFn.Sum(nil)

	for len(out) < n {
		hFn = hashNew()
		hFn.Write(k)
		hFn.Write(h)
		hFn.Write(out)
		out = append(out, hFn.Sum(nil)...)
	}
	return out[:n]
}

// directionKeys holds the IV, encryption key and MAC key derived for
// one direction (client-to-server or server-to-client).
type directionKeys struct {
	iv     []byte
	key    []byte
	macKey []byte
}

// deriveKeys computes the six KDF outputs (A..F) and packages them per
// direction. hashNew is the KEX method's exchange-hash function.
func deriveKeys(hashNew func() hash.Hash, k, h, sessionID []byte, cipherName, macName string) (c2s, s2c directionKeys) {
	keyLen := cipherKeySizes[cipherName]
	ivLen := 16
	if isAEAD(cipherName) {
		ivLen = 12
	}
	macLen := 0
	if !isAEAD(cipherName) {
		macLen = macKeySizes[macName]
	}

	c2s.iv = kdfLetter(hashNew, k, h, 'A', sessionID, ivLen)
	s2c.iv = kdfLetter(hashNew, k, h, 'B', sessionID, ivLen)
	c2s.key = kdfLetter(hashNew, k, h, 'C', sessionID, keyLen)
	s2c.key = kdfLetter(hashNew, k, h, 'D', sessionID, keyLen)
	if macLen > 0 {
		c2s.macKey = kdfLetter(hashNew, k, h, 'E', sessionID, macLen)
		s2c.macKey = kdfLetter(hashNew, k, h, 'F', sessionID, macLen)
	}
	return c2s, s2c
}

// packetCipher encrypts/decrypts and authenticates one binary packet in
// one direction. CTR+HMAC leaves the 4-byte packet_length field in the
// clear, authenticated alongside the body; chacha20-poly1305@openssh.com
// instead hides it on the wire with a dedicated keystream from its
// second derived key (concealLength/revealLength) and authenticates the
// concealed bytes. Everything from padding_length onward is confidential
// either way. Implementations are either CTR+HMAC or an AEAD.
type packetCipher interface {
	// encrypt returns the ciphertext and trailing authentication tag
	// for body (padding_length + payload + padding), authenticating
	// it together with length (the bytes that will actually travel on
	// the wire for packet_length, see concealLength) and the sequence
	// number.
	encrypt(seqNum uint32, length [4]byte, body []byte) (ciphertext []byte, err error)
	// decrypt verifies and decrypts one packet body read off the
	// wire, returning the cleartext body. length is the wire bytes of
	// packet_length, exactly as passed to encrypt.
	decrypt(seqNum uint32, length [4]byte, ciphertext []byte) (body []byte, err error)
	// macLen is the trailing authentication tag length appended to
	// every ciphertext.
	macLen() int
	// blockSize is used to size padding per spec.md §4.2.
	blockSize() int
	// concealLength turns a cleartext packet_length into what actually
	// travels on the wire. CTR+HMAC returns it unchanged; the AEAD
	// cipher encrypts it.
	concealLength(seqNum uint32, length [4]byte) ([4]byte, error)
	// revealLength is concealLength's inverse, applied to the 4 bytes
	// just read off the wire before their numeric value can be used.
	revealLength(seqNum uint32, wire [4]byte) ([4]byte, error)
}

func newHMAC(macName string, key []byte) hash.Hash {
	switch macName {
	case "hmac-sha2-256":
		return hmac.New(sha256.New, key)
	case "hmac-sha2-512":
		return hmac.New(sha512.New, key)
	}
	return nil
}

// ctrCipher implements a CTR-mode stream cipher paired with an
// RFC 4253 section 6.4 "encrypt-then-MAC is not used" ETM-less HMAC:
// the MAC covers sequence_number||cleartext_packet.
type ctrCipher struct {
	stream cipher.Stream
	mac    hash.Hash
	macSize int
}

func newCTRCipher(keys directionKeys, cipherName, macName string) (*ctrCipher, error) {
	block, err := aes.NewCipher(keys.key)
	if err != nil {
		return nil, err
	}
	stream := cipher.NewCTR(block, keys.iv)
	mac := newHMAC(macName, keys.macKey)
	if mac == nil {
		return nil, fmt.Errorf("ssh: unsupported MAC %q", macName)
	}
	return &ctrCipher{stream: stream, mac: mac, macSize: mac.Size()}, nil
}

func (c *ctrCipher) blockSize() int { return aes.BlockSize }
func (c *ctrCipher) macLen() int    { return c.macSize }

func (c *ctrCipher) concealLength(seqNum uint32, length [4]byte) ([4]byte, error) {
	return length, nil
}

func (c *ctrCipher) revealLength(seqNum uint32, wire [4]byte) ([4]byte, error) {
	return wire, nil
}

func (c *ctrCipher) encrypt(seqNum uint32, length [4]byte, body []byte) ([]byte, error) {
	mac := macOver(c.mac, seqNum, length, body)
	out := make([]byte, len(body))
	c.stream.XORKeyStream(out, body)
	return append(out, mac...), nil
}

func (c *ctrCipher) decrypt(seqNum uint32, length [4]byte, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < c.macSize {
		return nil, errTruncated
	}
	body, tag := ciphertext[:len(ciphertext)-c.macSize], ciphertext[len(ciphertext)-c.macSize:]
	cleartext := make([]byte, len(body))
	c.stream.XORKeyStream(cleartext, body)
	want := macOver(c.mac, seqNum, length, cleartext)
	if !hmac.Equal(tag, want) {
		return nil, &BadMACError{}
	}
	return cleartext, nil
}

func macOver(h hash.Hash, seqNum uint32, length [4]byte, body []byte) []byte {
	h.Reset()
	var seq [4]byte
	seq[0] = byte(seqNum >> 24)
	seq[1] = byte(seqNum >> 16)
	seq[2] = byte(seqNum >> 8)
	seq[3] = byte(seqNum)
	h.Write(seq[:])
	h.Write(length[:])
	h.Write(body)
	return h.Sum(nil)
}

// aeadCipher implements chacha20-poly1305@openssh.com: a 96-bit nonce
// derived from the sequence number, the main 32-byte key (keys.key[:32])
// sealing the body, and a second 32-byte key (keys.key[32:64]) driving a
// dedicated chacha20 keystream that hides packet_length on the wire
// instead of leaving it as cleartext associated data.
type aeadCipher struct {
	aead      cipher.AEAD
	lengthKey []byte
}

func newAEADCipher(keys directionKeys) (*aeadCipher, error) {
	if len(keys.key) < 64 {
		return nil, fmt.Errorf("ssh: chacha20-poly1305 requires a 64-byte derived key, got %d", len(keys.key))
	}
	aead, err := chacha20poly1305.New(keys.key[:32])
	if err != nil {
		return nil, err
	}
	lengthKey := make([]byte, 32)
	copy(lengthKey, keys.key[32:64])
	return &aeadCipher{aead: aead, lengthKey: lengthKey}, nil
}

func (c *aeadCipher) blockSize() int { return 8 }
func (c *aeadCipher) macLen() int    { return c.aead.Overhead() }

func (c *aeadCipher) nonce(seqNum uint32) []byte {
	nonce := make([]byte, 12)
	nonce[8] = byte(seqNum >> 24)
	nonce[9] = byte(seqNum >> 16)
	nonce[10] = byte(seqNum >> 8)
	nonce[11] = byte(seqNum)
	return nonce
}

// xorLength runs the length-stream keystream for seqNum over in; it is
// its own inverse, so it implements both concealLength and revealLength.
func (c *aeadCipher) xorLength(seqNum uint32, in [4]byte) ([4]byte, error) {
	stream, err := chacha20.NewUnauthenticatedCipher(c.lengthKey, c.nonce(seqNum))
	if err != nil {
		return [4]byte{}, err
	}
	var out [4]byte
	stream.XORKeyStream(out[:], in[:])
	return out, nil
}

func (c *aeadCipher) concealLength(seqNum uint32, length [4]byte) ([4]byte, error) {
	return c.xorLength(seqNum, length)
}

func (c *aeadCipher) revealLength(seqNum uint32, wire [4]byte) ([4]byte, error) {
	return c.xorLength(seqNum, wire)
}

// encrypt seals body under the main key, authenticating the wire bytes
// of packet_length (already concealed by the caller) as associated
// data, so tampering with either the hidden length or the body is
// detected.
func (c *aeadCipher) encrypt(seqNum uint32, length [4]byte, body []byte) ([]byte, error) {
	return c.aead.Seal(nil, c.nonce(seqNum), body, length[:]), nil
}

func (c *aeadCipher) decrypt(seqNum uint32, length [4]byte, ciphertext []byte) ([]byte, error) {
	out, err := c.aead.Open(nil, c.nonce(seqNum), ciphertext, length[:])
	if err != nil {
		return nil, &BadMACError{}
	}
	return out, nil
}

func newPacketCipher(cipherName, macName string, keys directionKeys) (packetCipher, error) {
	switch cipherName {
	case cipherAES128CTR, cipherAES192CTR, cipherAES256CTR:
		return newCTRCipher(keys, cipherName, macName)
	case cipherChaCha20Poly1305:
		return newAEADCipher(keys)
	default:
		return nil, fmt.Errorf("ssh: unsupported cipher %q", cipherName)
	}
}

// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/sha1"
	"fmt"
	"math/big"
)

// Host-key algorithm names (RFC 4253 section 6.6, RFC 5656 section 6.2,
// RFC 8709 section 4).
const (
	KeyAlgoRSA      = "ssh-rsa"
	KeyAlgoECDSA256 = "ecdsa-sha2-nistp256"
	KeyAlgoED25519  = "ssh-ed25519"
)

// PublicKey is the host-key verifier capability interface spec.md §9
// calls for: one small interface, concrete variants selected by the
// negotiated algorithm name rather than by inheritance.
type PublicKey interface {
	Type() string
	Verify(digest, sig []byte) error
	Marshal() []byte
}

// ParsePublicKey decodes an SSH-encoded public-key blob (the K_S field
// of KEX_ECDH_REPLY) into a PublicKey capable of verifying a signature
// over the exchange hash.
func ParsePublicKey(blob []byte) (PublicKey, error) {
	d := newDecoder(blob)
	algo, err := d.string()
	if err != nil {
		return nil, &BadHostKeyError{Err: err}
	}
	switch algo {
	case KeyAlgoED25519:
		return parseED25519Key(d, blob)
	case KeyAlgoECDSA256:
		return parseECDSAKey(d, blob)
	case KeyAlgoRSA:
		return parseRSAKey(d, blob)
	default:
		return nil, &BadHostKeyError{Algo: algo, Err: fmt.Errorf("unsupported host key algorithm")}
	}
}

type ed25519PublicKey struct {
	raw []byte
	key ed25519.PublicKey
}

func parseED25519Key(d *decoder, raw []byte) (PublicKey, error) {
	key, err := d.rawBytes()
	if err != nil {
		return nil, &BadHostKeyError{Algo: KeyAlgoED25519, Err: err}
	}
	if len(key) != ed25519.PublicKeySize {
		return nil, &BadHostKeyError{Algo: KeyAlgoED25519, Err: fmt.Errorf("wrong key length %d", len(key))}
	}
	return &ed25519PublicKey{raw: raw, key: ed25519.PublicKey(key)}, nil
}

func (k *ed25519PublicKey) Type() string    { return KeyAlgoED25519 }
func (k *ed25519PublicKey) Marshal() []byte { return k.raw }
func (k *ed25519PublicKey) Verify(digest, sig []byte) error {
	if !ed25519.Verify(k.key, digest, sig) {
		return &SignatureMismatchError{}
	}
	return nil
}

type ecdsaPublicKey struct {
	raw []byte
	key *ecdsa.PublicKey
}

func parseECDSAKey(d *decoder, raw []byte) (PublicKey, error) {
	if _, err := d.string(); err != nil { // curve identifier, e.g. "nistp256"
		return nil, &BadHostKeyError{Algo: KeyAlgoECDSA256, Err: err}
	}
	point, err := d.rawBytes()
	if err != nil {
		return nil, &BadHostKeyError{Algo: KeyAlgoECDSA256, Err: err}
	}
	x, y := elliptic.Unmarshal(elliptic.P256(), point)
	if x == nil {
		return nil, &BadHostKeyError{Algo: KeyAlgoECDSA256, Err: fmt.Errorf("invalid curve point")}
	}
	return &ecdsaPublicKey{raw: raw, key: &ecdsa.PublicKey{Curve: elliptic.P256(), X: x, Y: y}}, nil
}

func (k *ecdsaPublicKey) Type() string    { return KeyAlgoECDSA256 }
func (k *ecdsaPublicKey) Marshal() []byte { return k.raw }
func (k *ecdsaPublicKey) Verify(digest, sig []byte) error {
	d := newDecoder(sig)
	rb, err := d.rawBytes()
	if err != nil {
		return &SignatureMismatchError{}
	}
	sb, err := d.rawBytes()
	if err != nil {
		return &SignatureMismatchError{}
	}
	r := new(big.Int).SetBytes(rb)
	s := new(big.Int).SetBytes(sb)
	if !ecdsa.Verify(k.key, digest, r, s) {
		return &SignatureMismatchError{}
	}
	return nil
}

type rsaPublicKey struct {
	raw []byte
	key *rsa.PublicKey
}

func parseRSAKey(d *decoder, raw []byte) (PublicKey, error) {
	eBytes, err := d.rawBytes()
	if err != nil {
		return nil, &BadHostKeyError{Algo: KeyAlgoRSA, Err: err}
	}
	nBytes, err := d.rawBytes()
	if err != nil {
		return nil, &BadHostKeyError{Algo: KeyAlgoRSA, Err: err}
	}
	e := new(big.Int).SetBytes(eBytes)
	n := new(big.Int).SetBytes(nBytes)
	return &rsaPublicKey{raw: raw, key: &rsa.PublicKey{N: n, E: int(e.Int64())}}, nil
}

func (k *rsaPublicKey) Type() string    { return KeyAlgoRSA }
func (k *rsaPublicKey) Marshal() []byte { return k.raw }
func (k *rsaPublicKey) Verify(digest, sig []byte) error {
	// RFC 4253 section 6.6: "ssh-rsa" is RSASSA-PKCS1-v1_5 over the
	// SHA-1 hash of the digest.
	sum := sha1.Sum(digest)
	if err := rsa.VerifyPKCS1v15(k.key, crypto.SHA1, sum[:], sig); err != nil {
		return &SignatureMismatchError{}
	}
	return nil
}

// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"crypto/ecdh"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"
	"io"
	"math/big"

	"golang.org/x/crypto/curve25519"
)

const (
	kexAlgoCurve25519SHA256 = "curve25519-sha256"
	kexAlgoECDH256          = "ecdh-sha2-nistp256"
	kexAlgoECDH384          = "ecdh-sha2-nistp384"
	kexAlgoECDH521          = "ecdh-sha2-nistp521"
)

// kexAlgorithm is the key-exchange capability interface spec.md §9
// calls for: an ephemeral keypair plus a shared-secret function, with
// the concrete curve selected by the negotiator rather than by
// inheritance.
type kexAlgorithm interface {
	// hashNew returns the hash function this method binds the
	// exchange hash to (e.g. SHA-256 for curve25519-sha256).
	hashNew() func() hash.Hash
	// generateEphemeral returns a fresh keypair and its wire-encoded
	// public value Q_C.
	generateEphemeral(rand io.Reader) (ephemeral interface{}, q []byte, err error)
	// sharedSecret derives K from our ephemeral private value and the
	// peer's wire-encoded public value Q_S.
	sharedSecret(ephemeral interface{}, peerPublic []byte) (*big.Int, error)
}

var kexAlgoMap = map[string]kexAlgorithm{
	kexAlgoCurve25519SHA256: curve25519KEX{},
	kexAlgoECDH256:          ecdhKEX{curve: ecdh.P256()},
	kexAlgoECDH384:          ecdhKEX{curve: ecdh.P384()},
	kexAlgoECDH521:          ecdhKEX{curve: ecdh.P521()},
}

// curve25519KEX implements curve-sha256@libssh.org / curve25519-sha256
// (RFC 8731) directly against x/crypto/curve25519 rather than through
// the generic ecdh.Curve, matching how this curve predates Go's
// crypto/ecdh package in SSH implementations.
type curve25519KEX struct{}

type curve25519Ephemeral struct {
	priv [32]byte
}

func (curve25519KEX) hashNew() func() hash.Hash { return sha256.New }

func (curve25519KEX) generateEphemeral(rnd io.Reader) (interface{}, []byte, error) {
	var priv [32]byte
	if _, err := io.ReadFull(rnd, priv[:]); err != nil {
		return nil, nil, err
	}
	// Clamp per RFC 7748 section 5.
	priv[0] &= 248
	priv[31] &= 127
	priv[31] |= 64

	pub, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return nil, nil, err
	}
	return &curve25519Ephemeral{priv: priv}, pub, nil
}

func (curve25519KEX) sharedSecret(ephemeral interface{}, peerPublic []byte) (*big.Int, error) {
	e := ephemeral.(*curve25519Ephemeral)
	if len(peerPublic) != 32 {
		return nil, fmt.Errorf("ssh: invalid curve25519 public value")
	}
	secret, err := curve25519.X25519(e.priv[:], peerPublic)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(secret), nil
}

// ecdhKEX implements ecdh-sha2-nistp{256,384,521} (RFC 5656) using the
// standard library's crypto/ecdh.
type ecdhKEX struct {
	curve ecdh.Curve
}

func (k ecdhKEX) hashNew() func() hash.Hash {
	switch k.curve {
	case ecdh.P256():
		return sha256.New
	case ecdh.P521():
		return sha512.New
	default:
		return sha512.New384
	}
}

func (k ecdhKEX) generateEphemeral(rnd io.Reader) (interface{}, []byte, error) {
	priv, err := k.curve.GenerateKey(rnd)
	if err != nil {
		return nil, nil, err
	}
	return priv, priv.PublicKey().Bytes(), nil
}

func (k ecdhKEX) sharedSecret(ephemeral interface{}, peerPublic []byte) (*big.Int, error) {
	priv := ephemeral.(*ecdh.PrivateKey)
	pub, err := k.curve.NewPublicKey(peerPublic)
	if err != nil {
		return nil, err
	}
	secret, err := priv.ECDH(pub)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(secret), nil
}

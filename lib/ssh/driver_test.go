// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"bufio"
	"crypto/ed25519"
	"crypto/rand"
	"net"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
)

// fakeServer performs just enough of the server side of a first key
// exchange to drive the client's keyExchangeDriver through a complete
// run: it negotiates the same defaults the client offers, replies to
// KEX_ECDH_INIT with a KEX_ECDH_REPLY signed by an ed25519 host key,
// and completes the NEWKEYS switchover. corruptSignature exercises the
// S3 signature-mismatch scenario.
func fakeServer(t *testing.T, conn net.Conn, corruptSignature bool) {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Errorf("generate host key: %v", err)
		return
	}
	hostKeyBlob := marshalED25519Blob(pub)

	br := bufio.NewReader(conn)
	clientVersion, err := readBannerLine(br)
	if err != nil {
		t.Errorf("read client banner: %v", err)
		return
	}
	if _, err := conn.Write([]byte("SSH-2.0-gosshc-test\r\n")); err != nil {
		t.Errorf("write server banner: %v", err)
		return
	}

	f := newPacketFramerWithReader(conn, br, rand.Reader, log.StandardLogger(), noopMetrics{})

	clientInitPacket, err := f.read()
	if err != nil {
		t.Errorf("read client KEXINIT: %v", err)
		return
	}
	clientInit, err := unmarshalKexInit(clientInitPacket)
	if err != nil {
		t.Errorf("unmarshal client KEXINIT: %v", err)
		return
	}

	serverInit := &KexInitMsg{
		KexAlgos:                clientInit.KexAlgos,
		ServerHostKeyAlgos:      []string{KeyAlgoED25519},
		CiphersClientServer:     clientInit.CiphersClientServer,
		CiphersServerClient:     clientInit.CiphersServerClient,
		MACsClientServer:        clientInit.MACsClientServer,
		MACsServerClient:        clientInit.MACsServerClient,
		CompressionClientServer: defaultCompressions,
		CompressionServerClient: defaultCompressions,
	}
	serverInitPacket := marshalKexInit(serverInit)
	if err := f.write(serverInitPacket); err != nil {
		t.Errorf("write server KEXINIT: %v", err)
		return
	}

	algs, err := findAgreedAlgorithms(clientInit, serverInit)
	if err != nil {
		t.Errorf("negotiate: %v", err)
		return
	}
	kex := kexAlgoMap[algs.Kex]

	initPacket, err := f.read()
	if err != nil {
		t.Errorf("read KEX_ECDH_INIT: %v", err)
		return
	}
	init, err := unmarshalKexECDHInit(initPacket)
	if err != nil {
		t.Errorf("unmarshal KEX_ECDH_INIT: %v", err)
		return
	}

	serverEphemeral, qs, err := kex.generateEphemeral(rand.Reader)
	if err != nil {
		t.Errorf("generate server ephemeral: %v", err)
		return
	}
	k, err := kex.sharedSecret(serverEphemeral, init.ClientPublic)
	if err != nil {
		t.Errorf("shared secret: %v", err)
		return
	}

	tr := &transcript{}
	tr.setVC(clientVersion)
	tr.setVS([]byte("SSH-2.0-gosshc-test"))
	tr.setIC(clientInitPacket)
	tr.setIS(serverInitPacket)
	tr.setKS(hostKeyBlob)
	tr.setQC(init.ClientPublic)
	tr.setQS(qs)
	tr.setK(k)
	h, err := tr.exchangeHash(kex.hashNew())
	if err != nil {
		t.Errorf("exchange hash: %v", err)
		return
	}

	sig := ed25519.Sign(priv, h)
	if corruptSignature {
		sig[0] ^= 0x01
	}
	sigBlob := appendString(nil, KeyAlgoED25519)
	sigBlob = appendRawBytes(sigBlob, sig)

	replyBuf := []byte{msgKexECDHReply}
	replyBuf = appendRawBytes(replyBuf, hostKeyBlob)
	replyBuf = appendRawBytes(replyBuf, qs)
	replyBuf = appendRawBytes(replyBuf, sigBlob)
	if err := f.write(replyBuf); err != nil {
		t.Errorf("write KEX_ECDH_REPLY: %v", err)
		return
	}

	if corruptSignature {
		// The client must abort before NEWKEYS; nothing more to do.
		return
	}

	c2sKeys, s2cKeys := deriveKeys(kex.hashNew(), k.Bytes(), h, h, algs.W.Cipher, algs.W.MAC)
	readCipher, err := newPacketCipher(algs.W.Cipher, algs.W.MAC, c2sKeys)
	if err != nil {
		t.Errorf("server read cipher: %v", err)
		return
	}
	writeCipher, err := newPacketCipher(algs.R.Cipher, algs.R.MAC, s2cKeys)
	if err != nil {
		t.Errorf("server write cipher: %v", err)
		return
	}

	if _, err := f.read(); err != nil { // client's NEWKEYS, still in the clear
		t.Errorf("read client NEWKEYS: %v", err)
		return
	}
	f.installReadCipher(readCipher)

	if err := f.write([]byte{msgNewKeys}); err != nil {
		t.Errorf("write server NEWKEYS: %v", err)
		return
	}
	f.installWriteCipher(writeCipher)
}

func TestConnectEstablishesSession(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	serverDone := make(chan struct{})
	go func() {
		fakeServer(t, serverConn, false)
		close(serverDone)
	}()

	cfg := &Config{}
	clientDone := make(chan struct{})
	var session *Session
	var err error
	go func() {
		session, err = Connect(clientConn, cfg)
		close(clientDone)
	}()

	select {
	case <-clientDone:
	case <-time.After(5 * time.Second):
		t.Fatal("Connect did not return")
	}
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if session.Algorithms().Kex != kexAlgoCurve25519SHA256 {
		t.Fatalf("negotiated kex = %q, want %q", session.Algorithms().Kex, kexAlgoCurve25519SHA256)
	}
	<-serverDone
}

// S3 / law 7: a flipped signature bit must abort the handshake with
// SignatureMismatchError, and the client must never send NEWKEYS.
func TestConnectRejectsFlippedSignature(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	serverDone := make(chan struct{})
	go func() {
		fakeServer(t, serverConn, true)
		close(serverDone)
	}()

	cfg := &Config{}
	clientDone := make(chan struct{})
	var err error
	go func() {
		_, err = Connect(clientConn, cfg)
		close(clientDone)
	}()

	select {
	case <-clientDone:
	case <-time.After(5 * time.Second):
		t.Fatal("Connect did not return")
	}
	if _, ok := err.(*SignatureMismatchError); !ok {
		t.Fatalf("Connect error = %v, want *SignatureMismatchError", err)
	}
	<-serverDone
}

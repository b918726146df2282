// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"bufio"
	"bytes"
	"crypto/rand"
	"testing"

	log "github.com/sirupsen/logrus"
)

func newTestFramer(buf *bytes.Buffer) *packetFramer {
	return newPacketFramer(buf, rand.Reader, log.StandardLogger(), noopMetrics{})
}

// Law 1: for every payload P, decode(encode(P)) == P, in the clear.
func TestFramerRoundTripPlaintext(t *testing.T) {
	buf := new(bytes.Buffer)
	f := newTestFramer(buf)

	payloads := [][]byte{
		[]byte("x"),
		[]byte("a slightly longer payload to exercise more padding"),
		{},
	}
	for _, p := range payloads {
		if err := f.write(p); err != nil {
			t.Fatalf("write(%q): %v", p, err)
		}
	}
	for _, want := range payloads {
		got, err := f.read()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("read() = %q, want %q", got, want)
		}
	}
}

// Law 2: outbound and inbound sequence counters strictly increment by 1
// per packet.
func TestFramerSequenceMonotonic(t *testing.T) {
	buf := new(bytes.Buffer)
	f := newTestFramer(buf)
	for i := 0; i < 5; i++ {
		if err := f.write([]byte("payload")); err != nil {
			t.Fatal(err)
		}
	}
	if f.writeSeqNum != 5 {
		t.Fatalf("writeSeqNum = %d, want 5", f.writeSeqNum)
	}
	for i := 0; i < 5; i++ {
		if _, err := f.read(); err != nil {
			t.Fatal(err)
		}
	}
	if f.readSeqNum != 5 {
		t.Fatalf("readSeqNum = %d, want 5", f.readSeqNum)
	}
}

// S6: a 10-byte payload under a block-size-16 cipher pads to p=17,
// giving a packet_length field of 28.
func TestFramerPaddingScenarioS6(t *testing.T) {
	buf := new(bytes.Buffer)
	f := newTestFramer(buf)

	keys := keysFor(cipherAES128CTR, "hmac-sha2-256")
	cipher, err := newPacketCipher(cipherAES128CTR, "hmac-sha2-256", keys)
	if err != nil {
		t.Fatal(err)
	}
	f.installWriteCipher(cipher)

	payload := make([]byte, 10)
	if err := f.write(payload); err != nil {
		t.Fatal(err)
	}

	var length [4]byte
	copy(length[:], buf.Bytes()[:4])
	packetLength := uint32(length[0])<<24 | uint32(length[1])<<16 | uint32(length[2])<<8 | uint32(length[3])
	if packetLength != 28 {
		t.Fatalf("packet_length = %d, want 28", packetLength)
	}
}

func TestFramerRoundTripEncrypted(t *testing.T) {
	buf := new(bytes.Buffer)
	writer := newTestFramer(buf)
	reader := newTestFramer(buf)

	wKeys := keysFor(cipherAES256CTR, "hmac-sha2-512")
	wCipher, err := newPacketCipher(cipherAES256CTR, "hmac-sha2-512", wKeys)
	if err != nil {
		t.Fatal(err)
	}
	rCipher, err := newPacketCipher(cipherAES256CTR, "hmac-sha2-512", wKeys)
	if err != nil {
		t.Fatal(err)
	}
	writer.installWriteCipher(wCipher)
	reader.installReadCipher(rCipher)

	want := []byte("encrypted round trip payload")
	if err := writer.write(want); err != nil {
		t.Fatal(err)
	}
	got, err := reader.read()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("read() = %q, want %q", got, want)
	}
}

// Under chacha20-poly1305@openssh.com the wire bytes of packet_length
// must not equal the cleartext length, and the framer must still
// recover the right payload on the other end.
func TestFramerRoundTripChaCha20HidesLength(t *testing.T) {
	buf := new(bytes.Buffer)
	writer := newTestFramer(buf)
	reader := newTestFramer(buf)

	keys := keysFor(cipherChaCha20Poly1305, "")
	wCipher, err := newPacketCipher(cipherChaCha20Poly1305, "", keys)
	if err != nil {
		t.Fatal(err)
	}
	rCipher, err := newPacketCipher(cipherChaCha20Poly1305, "", keys)
	if err != nil {
		t.Fatal(err)
	}
	writer.installWriteCipher(wCipher)
	reader.installReadCipher(rCipher)

	want := []byte("chacha round trip payload")
	if err := writer.write(want); err != nil {
		t.Fatal(err)
	}

	// blockSize is 8 for this cipher; padding_length(1)+len(want)(25)
	// pads to 10, for a cleartext packet_length of 36.
	wireLength := append([]byte(nil), buf.Bytes()[:4]...)
	cleartextLength := []byte{0, 0, 0, 36}
	if bytes.Equal(wireLength, cleartextLength) {
		t.Fatal("packet_length bytes on the wire equal the cleartext length; chacha20-poly1305 should have hidden them")
	}

	got, err := reader.read()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("read() = %q, want %q", got, want)
	}
}

func TestFramerRejectsOversizedPacket(t *testing.T) {
	buf := new(bytes.Buffer)
	var length [4]byte
	oversized := uint32(maxPacketLength + 1)
	length[0], length[1], length[2], length[3] = byte(oversized>>24), byte(oversized>>16), byte(oversized>>8), byte(oversized)
	buf.Write(length[:])

	f := newTestFramer(buf)
	_, err := f.read()
	if _, ok := err.(*OversizedPacketError); !ok {
		t.Fatalf("read() error = %v, want *OversizedPacketError", err)
	}
}

func TestFramerTruncatedReadIsTransportClosed(t *testing.T) {
	buf := bytes.NewBuffer([]byte{0, 0, 0})
	f := newTestFramer(buf)
	_, err := f.read()
	if err != ErrTransportClosed {
		t.Fatalf("read() on a truncated stream = %v, want ErrTransportClosed", err)
	}
}

// newPacketFramerWithReader must share a pre-buffered reader rather
// than losing bytes to a second bufio.Reader over the same stream: a
// server that pipelines its first binary packet right behind its
// banner line leaves those bytes sitting in the banner reader's
// internal buffer, invisible to any independent bufio.Reader the
// framer might otherwise create.
func TestNewPacketFramerWithReaderSharesBuffer(t *testing.T) {
	writerSide := newTestFramer(new(bytes.Buffer))
	if err := writerSide.write([]byte("after-banner")); err != nil {
		t.Fatal(err)
	}
	wireBytes := writerSide.rw.(*bytes.Buffer).Bytes()

	// Simulate the banner reader having over-read into the first
	// packet by pre-loading a bufio.Reader with the whole stream
	// before the framer is constructed over it.
	br := bufio.NewReader(bytes.NewReader(wireBytes))
	f := newPacketFramerWithReader(new(bytes.Buffer), br, rand.Reader, log.StandardLogger(), noopMetrics{})

	got, err := f.read()
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "after-banner" {
		t.Fatalf("read() = %q, want %q (bytes already in the shared bufio.Reader must not be lost)", got, "after-banner")
	}
}

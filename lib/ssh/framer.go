// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"bufio"
	"io"
	"time"

	log "github.com/sirupsen/logrus"
)

// packetFramer translates between a stream of bytes and a stream of
// binary packets (RFC 4253 section 6). It is the sole owner of the
// transport handle, the cipher state and the per-direction sequence
// numbers; the KEX driver and channel state machine borrow it for the
// duration of one read or write. Whether the 4-byte packet_length field
// travels unencrypted or is itself hidden on the wire is up to the
// installed cipher — see cipher.go's packetCipher.concealLength/
// revealLength.
type packetFramer struct {
	rw      io.ReadWriter
	br      *bufio.Reader
	rand    io.Reader
	logger  *log.Logger
	metrics MetricsRecorder

	writeCipher packetCipher
	readCipher  packetCipher

	writeSeqNum uint32
	readSeqNum  uint32

	// timeout, if non-zero, is applied as a fresh deadline on rw before
	// every blocking read or write (Config.Timeout, spec.md §5). Only
	// takes effect when rw implements deadlineSetter.
	timeout time.Duration
}

// setTimeout installs the per-operation deadline Connect derives from
// Config.Timeout. Zero disables it.
func (f *packetFramer) setTimeout(d time.Duration) {
	f.timeout = d
}

func (f *packetFramer) extendDeadline() {
	if f.timeout <= 0 {
		return
	}
	if dl, ok := f.rw.(deadlineSetter); ok {
		dl.SetDeadline(time.Now().Add(f.timeout))
	}
}

func newPacketFramer(rw io.ReadWriter, rand io.Reader, logger *log.Logger, metrics MetricsRecorder) *packetFramer {
	return newPacketFramerWithReader(rw, bufio.NewReader(rw), rand, logger, metrics)
}

// newPacketFramerWithReader lets a caller that already buffered some
// inbound bytes (the banner-exchange reader, which may have over-read
// into the first binary packet) hand that buffer to the framer instead
// of losing it to a second, independent bufio.Reader.
func newPacketFramerWithReader(rw io.ReadWriter, br *bufio.Reader, rand io.Reader, logger *log.Logger, metrics MetricsRecorder) *packetFramer {
	return &packetFramer{
		rw:      rw,
		br:      br,
		rand:    rand,
		logger:  logger,
		metrics: metrics,
	}
}

// installWriteCipher switches the framer to encrypted outbound mode.
// Per spec.md §3 the switchover is atomic per direction at the NEWKEYS
// boundary: the caller installs this right after sending NEWKEYS, so
// NEWKEYS itself still travels under the previous cipher state.
func (f *packetFramer) installWriteCipher(c packetCipher) {
	f.writeCipher = c
}

// installReadCipher switches the framer to encrypted inbound mode. The
// caller installs this right after receiving NEWKEYS.
func (f *packetFramer) installReadCipher(c packetCipher) {
	f.readCipher = c
}

func (f *packetFramer) writeBlockSize() int {
	if f.writeCipher != nil {
		if bs := f.writeCipher.blockSize(); bs > 8 {
			return bs
		}
	}
	return 8
}

// write frames and sends one payload. It increments the outbound
// sequence number unconditionally, matching spec law 2 (monotonic
// across NEWKEYS).
func (f *packetFramer) write(payload []byte) error {
	f.extendDeadline()
	blockSize := f.writeBlockSize()

	// 1 (padding_length) + len(payload) + padding must leave
	// packet_length + that sum a multiple of blockSize; padding is at
	// least 4 bytes (spec.md §4.2).
	paddingLen := blockSize - (5+len(payload))%blockSize
	if paddingLen < 4 {
		paddingLen += blockSize
	}

	body := make([]byte, 0, 1+len(payload)+paddingLen)
	body = append(body, byte(paddingLen))
	body = append(body, payload...)
	padding := make([]byte, paddingLen)
	if _, err := io.ReadFull(f.rand, padding); err != nil {
		return err
	}
	body = append(body, padding...)

	var length [4]byte
	packetLength := uint32(len(body))
	length[0] = byte(packetLength >> 24)
	length[1] = byte(packetLength >> 16)
	length[2] = byte(packetLength >> 8)
	length[3] = byte(packetLength)

	var out []byte
	if f.writeCipher != nil {
		wireLength, err := f.writeCipher.concealLength(f.writeSeqNum, length)
		if err != nil {
			return err
		}
		ciphertext, err := f.writeCipher.encrypt(f.writeSeqNum, wireLength, body)
		if err != nil {
			return err
		}
		out = append(wireLength[:], ciphertext...)
	} else {
		out = append(length[:], body...)
	}

	if _, err := f.rw.Write(out); err != nil {
		return translateIOErr(err)
	}
	f.metrics.BytesSent(len(payload))
	f.writeSeqNum++
	return nil
}

// read receives and unframes exactly one payload.
func (f *packetFramer) read() ([]byte, error) {
	f.extendDeadline()
	var wireLength [4]byte
	if _, err := io.ReadFull(f.br, wireLength[:]); err != nil {
		return nil, translateIOErr(err)
	}
	length := wireLength
	if f.readCipher != nil {
		var err error
		length, err = f.readCipher.revealLength(f.readSeqNum, wireLength)
		if err != nil {
			return nil, err
		}
	}
	packetLength := uint32(length[0])<<24 | uint32(length[1])<<16 | uint32(length[2])<<8 | uint32(length[3])
	if packetLength == 0 || packetLength > maxPacketLength {
		return nil, &OversizedPacketError{Length: packetLength}
	}

	macLen := 0
	if f.readCipher != nil {
		macLen = f.readCipher.macLen()
	}
	ciphertext := make([]byte, int(packetLength)+macLen)
	if _, err := io.ReadFull(f.br, ciphertext); err != nil {
		return nil, translateIOErr(err)
	}

	var body []byte
	var err error
	if f.readCipher != nil {
		body, err = f.readCipher.decrypt(f.readSeqNum, wireLength, ciphertext)
	} else {
		body = ciphertext
	}
	if err != nil {
		return nil, err
	}
	f.readSeqNum++

	payload, err := unpad(body)
	if err != nil {
		return nil, err
	}
	f.metrics.BytesReceived(len(payload))
	return payload, nil
}

// unpad strips padding_length and the padding from a cleartext packet
// body (everything after the packet_length field: padding_length byte,
// payload, padding).
func unpad(body []byte) ([]byte, error) {
	if len(body) < 1 {
		return nil, &BadPaddingError{}
	}
	paddingLen := int(body[0])
	if paddingLen < 4 || 1+paddingLen > len(body) {
		return nil, &BadPaddingError{}
	}
	return body[1 : len(body)-paddingLen], nil
}

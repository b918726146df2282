// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"bufio"
	"io"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

const maxBannerLines = 1024

// Session is one established SSH transport-layer connection: a banner
// exchange plus completed key exchange, ready to open channels.
// A Session is not safe for concurrent use; spec.md §5 makes the core
// single-threaded cooperative rather than goroutine-per-channel.
type Session struct {
	framer    *packetFramer
	config    *Config
	sessionID []byte
	algs      *Algorithms

	clientVersion string
	serverVersion string

	nextChannelID uint32
	log           *HandshakeLog

	// activeChannel is the one live channel this core permits at a time
	// (spec.md §5); dispatchOther needs it to apply a WINDOW_ADJUST that
	// arrives while the caller is blocked somewhere other than
	// awaitWindowAdjust, e.g. inside Receive.
	activeChannel *Channel
}

// Connect performs the full handshake over transport: the banner
// exchange (phase 0) followed by the first key exchange (phases 1-4).
// The returned Session is ready for OpenShell. transport is not closed
// by Connect; the caller owns its lifetime.
func Connect(transport io.ReadWriter, config *Config) (*Session, error) {
	cfg := *config
	cfg.SetDefaults()

	if cfg.Timeout > 0 {
		if dl, ok := transport.(deadlineSetter); ok {
			dl.SetDeadline(time.Now().Add(cfg.Timeout))
		}
	}

	start := time.Now()
	clientVersion := []byte(cfg.ClientVersion)
	br := bufio.NewReader(transport)
	serverVersion, err := exchangeVersions(transport, br, clientVersion)
	if err != nil {
		return nil, err
	}

	hlog := &HandshakeLog{
		ClientVersion: string(clientVersion),
		ServerVersion: string(serverVersion),
	}

	framer := newPacketFramerWithReader(transport, br, cfg.Rand, cfg.Logger, cfg.Metrics)
	framer.setTimeout(cfg.Timeout)
	driver := &keyExchangeDriver{
		f:             framer,
		config:        &cfg,
		logger:        cfg.Logger,
		clientVersion: clientVersion,
		serverVersion: serverVersion,
	}

	var sessionID []byte
	algs, err := driver.run(&sessionID, hlog)
	if err != nil {
		return nil, err
	}
	hlog.Algorithms = algs
	hlog.Duration = time.Since(start)
	cfg.Metrics.HandshakeComplete(hlog.Duration)

	cfg.Logger.WithFields(log.Fields{
		"kex":       algs.Kex,
		"host_key":  algs.HostKey,
		"cipher_tx": algs.W.Cipher,
		"cipher_rx": algs.R.Cipher,
	}).Info("ssh handshake established")

	return &Session{
		framer:        framer,
		config:        &cfg,
		sessionID:     sessionID,
		algs:          algs,
		clientVersion: string(clientVersion),
		serverVersion: string(serverVersion),
		nextChannelID: 0,
		log:           hlog,
	}, nil
}

// Algorithms reports the set negotiated during the handshake.
func (s *Session) Algorithms() *Algorithms { return s.algs }

// HandshakeLog reports the diagnostics collected while connecting.
func (s *Session) HandshakeLog() *HandshakeLog { return s.log }

// exchangeVersions performs the banner exchange (RFC 4253 section 4.2,
// spec.md phase 0): send our identification string terminated by CRLF,
// then read the peer's, tolerating up to maxBannerLines of leading
// non-SSH text before the "SSH-2.0-" line. An identification line for
// any other protocol version fails with BannerInvalidError.
func exchangeVersions(w io.Writer, br *bufio.Reader, clientVersion []byte) ([]byte, error) {
	if _, err := w.Write(append(clientVersion, '\r', '\n')); err != nil {
		return nil, translateIOErr(err)
	}

	for i := 0; i < maxBannerLines; i++ {
		line, err := readBannerLine(br)
		if err != nil {
			return nil, err
		}
		if strings.HasPrefix(string(line), "SSH-2.0-") || strings.HasPrefix(string(line), "SSH-1.99-") {
			return line, nil
		}
		if strings.HasPrefix(string(line), "SSH-") {
			return nil, &BannerInvalidError{Line: string(line)}
		}
	}
	return nil, &BannerInvalidError{Line: "too many lines before SSH identification string"}
}

func readBannerLine(br *bufio.Reader) ([]byte, error) {
	var line []byte
	for {
		b, err := br.ReadByte()
		if err != nil {
			return nil, translateIOErr(err)
		}
		if b == '\n' {
			if len(line) > 0 && line[len(line)-1] == '\r' {
				line = line[:len(line)-1]
			}
			return line, nil
		}
		line = append(line, b)
		if len(line) > 8192 {
			return nil, &BannerInvalidError{Line: "line too long"}
		}
	}
}

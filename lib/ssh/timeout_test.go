// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"crypto/rand"
	"net"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
)

// Config.Timeout must fire ErrTimeout from a blocking framer.read when
// nothing arrives in time, not hang forever or return ErrTransportClosed.
func TestFramerReadHonorsTimeout(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer serverConn.Close()

	f := newPacketFramer(clientConn, rand.Reader, log.StandardLogger(), noopMetrics{})
	f.setTimeout(20 * time.Millisecond)

	_, err := f.read()
	if err != ErrTimeout {
		t.Fatalf("read() on an idle pipe = %v, want ErrTimeout", err)
	}
}

// A Connect call against a server that never sends its banner must fail
// with ErrTimeout rather than blocking forever.
func TestConnectHonorsTimeout(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer serverConn.Close()

	cfg := &Config{Timeout: 20 * time.Millisecond}
	_, err := Connect(clientConn, cfg)
	if err != ErrTimeout {
		t.Fatalf("Connect against a silent peer = %v, want ErrTimeout", err)
	}
}

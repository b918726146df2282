// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import "io"

// Shell is a session channel with a pseudo-terminal and an interactive
// shell attached, grounded on the corpus's ChannelShell: open a
// "session" channel, request a pty, then request "shell", leaving the
// channel ready for raw Read/Write.
type Shell struct {
	channel *Channel
	pending []byte
}

// PtyRequest describes the pty-req parameters (RFC 4254 section 6.2).
type PtyRequest struct {
	Term string
	Cols uint32
	Rows uint32
}

// OpenShell opens a new channel, requests a pty (if pty is non-nil) and
// then requests an interactive shell, replaying the corpus's two-step
// ChannelShell.open before handing back a Shell ready for I/O.
func (s *Session) OpenShell(pty *PtyRequest) (*Shell, error) {
	c, err := s.OpenChannel()
	if err != nil {
		return nil, err
	}

	if pty != nil {
		payload := ptyRequestPayload(pty.Term, pty.Cols, pty.Rows)
		if err := c.Request("pty-req", true, payload); err != nil {
			c.Close()
			return nil, err
		}
	}

	if err := c.Request("shell", true, nil); err != nil {
		c.Close()
		return nil, err
	}

	return &Shell{channel: c}, nil
}

// Write sends p as channel data, fragmenting and flow-controlling
// through the underlying Channel.
func (sh *Shell) Write(p []byte) (int, error) {
	if err := sh.channel.Send(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Read returns the next chunk of shell output, buffering any excess
// from a CHANNEL_DATA payload larger than len(p).
func (sh *Shell) Read(p []byte) (int, error) {
	for len(sh.pending) == 0 {
		data, err := sh.channel.Receive()
		if err != nil {
			return 0, err
		}
		if data == nil {
			return 0, io.EOF
		}
		sh.pending = data
	}
	n := copy(p, sh.pending)
	sh.pending = sh.pending[n:]
	return n, nil
}

// Close ends the shell's channel.
func (sh *Shell) Close() error {
	return sh.channel.Close()
}

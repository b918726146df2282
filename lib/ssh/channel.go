// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"io"
	"math"
)

// channelState names the states of the per-channel state machine
// (spec.md §6): Opening -> Open -> {LocalClosing, RemoteClosing} ->
// Closed.
type channelState int

const (
	channelOpening channelState = iota
	channelOpen
	channelLocalClosing
	channelRemoteClosing
	channelClosed
)

// Channel is one RFC 4254 "session" channel: a bidirectional,
// flow-controlled pipe multiplexed over the Session's single
// transport. Only one Channel may be open on a Session at a time
// (spec.md §5's single-threaded cooperative model serializes all
// reads).
type Channel struct {
	session *Session

	localID  uint32
	remoteID uint32

	localWindow  uint32
	localMax     uint32
	remoteWindow uint32
	remoteMax    uint32

	state channelState
}

// OpenChannel sends CHANNEL_OPEN for a "session" channel type and waits
// for CONFIRMATION or FAILURE, per RFC 4254 section 5.1. Messages that
// belong to no live phase (GLOBAL_REQUEST, IGNORE, DEBUG) are handled
// transparently by dispatchOther while waiting.
func (s *Session) OpenChannel() (*Channel, error) {
	id := s.nextChannelID
	s.nextChannelID++

	c := &Channel{
		session:     s,
		localID:     id,
		localWindow: s.config.WindowSize,
		localMax:    s.config.MaxPacketSize,
		state:       channelOpening,
	}

	open := &channelOpenMsg{
		ChannelType:   "session",
		PeerChannel:   id,
		PeerWindow:    s.config.WindowSize,
		PeerMaxPacket: s.config.MaxPacketSize,
	}
	if err := s.framer.write(open.marshal()); err != nil {
		return nil, err
	}

	for {
		packet, err := s.framer.read()
		if err != nil {
			return nil, err
		}
		if len(packet) == 0 {
			continue
		}
		switch packet[0] {
		case msgChannelOpenConfirmation:
			confirm, err := unmarshalChannelOpenConfirm(packet)
			if err != nil {
				return nil, err
			}
			if confirm.PeerChannel != id {
				return nil, unexpectedMessageError(msgChannelOpenConfirmation, packet[0])
			}
			c.remoteID = confirm.ServerChannel
			c.remoteWindow = confirm.Window
			c.remoteMax = confirm.MaxPacket
			c.state = channelOpen
			s.activeChannel = c
			s.config.Metrics.ChannelOpened()
			return c, nil
		case msgChannelOpenFailure:
			failure, err := unmarshalChannelOpenFailure(packet)
			if err != nil {
				return nil, err
			}
			return nil, &ChannelOpenRefusedError{Reason: failure.Reason, Message: failure.Message}
		default:
			if err := s.dispatchOther(packet); err != nil {
				return nil, err
			}
		}
	}
}

// dispatchOther handles a message that does not belong to the caller's
// current wait, mirroring the teacher corpus's "other" dispatch for
// CHANNEL_WINDOW_ADJUST / GLOBAL_REQUEST / IGNORE / DEBUG. A message
// outside this vocabulary is a protocol violation rather than being
// silently dropped.
func (s *Session) dispatchOther(packet []byte) error {
	switch packet[0] {
	case msgIgnore, msgDebug:
		return nil
	case msgGlobalRequest:
		return s.framer.write([]byte{msgRequestFailure})
	case msgChannelWindowAdjust:
		adj, err := unmarshalWindowAdjust(packet)
		if err != nil {
			return err
		}
		if s.activeChannel != nil {
			s.activeChannel.applyWindowAdjust(adj.Additional)
		}
		return nil
	case msgChannelFailure:
		return ErrChannelFailure
	case msgChannelRequest, msgChannelSuccess, msgChannelEOF:
		return nil
	default:
		return unexpectedMessageError(msgChannelData, packet[0])
	}
}

// Send writes payload as one or more CHANNEL_DATA messages, fragmenting
// at the lesser of the remote's advertised max packet size and the
// remaining remote window, and blocking on WINDOW_ADJUST when the
// window is exhausted (spec.md §6 flow-control invariant).
func (c *Channel) Send(payload []byte) error {
	if c.state != channelOpen {
		return &ProtocolViolationError{Expected: msgChannelData}
	}
	for len(payload) > 0 {
		if c.remoteWindow == 0 {
			if err := c.awaitWindowAdjust(); err != nil {
				return err
			}
			continue
		}
		chunk := payload
		if uint32(len(chunk)) > c.remoteWindow {
			chunk = chunk[:c.remoteWindow]
		}
		if c.remoteMax > 0 && uint32(len(chunk)) > c.remoteMax {
			chunk = chunk[:c.remoteMax]
		}
		msg := &channelDataMsg{PeerChannel: c.remoteID, Data: chunk}
		if err := c.session.framer.write(msg.marshal()); err != nil {
			return err
		}
		c.remoteWindow -= uint32(len(chunk))
		payload = payload[len(chunk):]
	}
	return nil
}

// awaitWindowAdjust blocks for the next message, applying it if it's a
// WINDOW_ADJUST for this channel and otherwise routing it through
// dispatchOther, until the remote window opens back up.
func (c *Channel) awaitWindowAdjust() error {
	for c.remoteWindow == 0 {
		packet, err := c.session.framer.read()
		if err != nil {
			return err
		}
		if len(packet) == 0 {
			continue
		}
		if packet[0] == msgChannelWindowAdjust {
			adj, err := unmarshalWindowAdjust(packet)
			if err != nil {
				return err
			}
			c.applyWindowAdjust(adj.Additional)
			continue
		}
		if err := c.session.dispatchOther(packet); err != nil {
			return err
		}
	}
	return nil
}

// applyWindowAdjust grows the remote window by n, saturating at
// math.MaxUint32 instead of wrapping (spec.md §6 edge case).
func (c *Channel) applyWindowAdjust(n uint32) {
	if uint64(c.remoteWindow)+uint64(n) > math.MaxUint32 {
		c.remoteWindow = math.MaxUint32
		return
	}
	c.remoteWindow += n
}

// Receive reads the next CHANNEL_DATA payload addressed to this
// channel, replenishing the local window with WINDOW_ADJUST once it
// drops below half of its initial size.
func (c *Channel) Receive() ([]byte, error) {
	for {
		packet, err := c.session.framer.read()
		if err != nil {
			return nil, err
		}
		if len(packet) == 0 {
			continue
		}
		switch packet[0] {
		case msgChannelData:
			data, err := unmarshalChannelData(packet)
			if err != nil {
				return nil, err
			}
			if data.PeerChannel != c.localID {
				return nil, unexpectedMessageError(msgChannelData, packet[0])
			}
			if uint32(len(data.Data)) > c.localWindow {
				return nil, &ProtocolViolationError{Expected: msgChannelData}
			}
			c.localWindow -= uint32(len(data.Data))
			if err := c.maybeReplenishWindow(); err != nil {
				return nil, err
			}
			return data.Data, nil
		case msgChannelEOF:
			return nil, nil
		case msgChannelClose:
			cc, err := unmarshalPeerChannel(msgChannelClose, packet)
			if err != nil {
				return nil, err
			}
			if cc == c.localID {
				c.state = channelRemoteClosing
			}
			return nil, io.EOF
		default:
			if err := c.session.dispatchOther(packet); err != nil {
				return nil, err
			}
		}
	}
}

// maybeReplenishWindow sends WINDOW_ADJUST once the local window has
// fallen below half of its configured size, restoring it to the full
// size in one step.
func (c *Channel) maybeReplenishWindow() error {
	if c.localWindow >= c.session.config.WindowSize/2 {
		return nil
	}
	add := c.session.config.WindowSize - c.localWindow
	if add == 0 {
		return nil
	}
	adj := &windowAdjustMsg{PeerChannel: c.remoteID, Additional: add}
	if err := c.session.framer.write(adj.marshal()); err != nil {
		return err
	}
	c.localWindow += add
	return nil
}

// Request sends a CHANNEL_REQUEST and, if wantReply is set, waits for
// CHANNEL_SUCCESS/FAILURE, tolerating interleaved messages via
// dispatchOther.
func (c *Channel) Request(name string, wantReply bool, specific []byte) error {
	msg := &channelRequestMsg{
		PeerChannel:     c.remoteID,
		Request:         name,
		WantReply:       wantReply,
		RequestSpecific: specific,
	}
	if err := c.session.framer.write(msg.marshal()); err != nil {
		return err
	}
	if !wantReply {
		return nil
	}
	for {
		packet, err := c.session.framer.read()
		if err != nil {
			return err
		}
		if len(packet) == 0 {
			continue
		}
		switch packet[0] {
		case msgChannelSuccess:
			return nil
		case msgChannelFailure:
			return ErrChannelFailure
		default:
			if err := c.session.dispatchOther(packet); err != nil {
				return err
			}
		}
	}
}

// Close performs the close handshake: send CHANNEL_CLOSE unless we
// already have, then read until the peer's own CHANNEL_CLOSE arrives,
// discarding everything else via dispatchOther — grounded on the
// corpus's send_close/receive_close split, which does not consume
// window space while closing.
func (c *Channel) Close() error {
	if c.state == channelClosed {
		return nil
	}

	// The peer's CHANNEL_CLOSE may already have arrived via Receive;
	// in that case only our own half remains to be sent.
	if c.state == channelRemoteClosing {
		if err := c.session.framer.write(marshalChannelClose(c.remoteID)); err != nil {
			return err
		}
		c.state = channelClosed
		c.clearActive()
		c.session.config.Metrics.ChannelClosed()
		return nil
	}

	if err := c.session.framer.write(marshalChannelClose(c.remoteID)); err != nil {
		return err
	}
	c.state = channelLocalClosing

	for c.state != channelClosed {
		packet, err := c.session.framer.read()
		if err != nil {
			return err
		}
		if len(packet) == 0 {
			continue
		}
		if packet[0] == msgChannelClose {
			cc, err := unmarshalPeerChannel(msgChannelClose, packet)
			if err != nil {
				return err
			}
			if cc == c.localID {
				c.state = channelClosed
				c.clearActive()
				c.session.config.Metrics.ChannelClosed()
				return nil
			}
			continue
		}
		if err := c.session.dispatchOther(packet); err != nil {
			return err
		}
	}
	return nil
}

// clearActive drops this channel from the Session's single-live-channel
// slot once it is closed, so a stray WINDOW_ADJUST afterward is not
// applied to a dead channel.
func (c *Channel) clearActive() {
	if c.session.activeChannel == c {
		c.session.activeChannel = nil
	}
}

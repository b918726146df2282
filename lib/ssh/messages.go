// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

// Message codes used by the core. Numeric assignments are from the SSH
// Transport, Authentication and Connection protocols (RFC 4253/4252/4254).
const (
	msgDisconnect   = 1
	msgIgnore       = 2
	msgUnimplemented = 3
	msgDebug        = 4
	msgServiceRequest = 5
	msgServiceAccept  = 6

	msgKexInit = 20
	msgNewKeys = 21

	msgKexECDHInit  = 30
	msgKexECDHReply = 31

	msgGlobalRequest  = 80
	msgRequestSuccess = 81
	msgRequestFailure = 82

	msgChannelOpen             = 90
	msgChannelOpenConfirmation = 91
	msgChannelOpenFailure      = 92
	msgChannelWindowAdjust     = 93
	msgChannelData             = 94
	msgChannelExtendedData     = 95
	msgChannelEOF              = 96
	msgChannelClose            = 97
	msgChannelRequest          = 98
	msgChannelSuccess          = 99
	msgChannelFailure          = 100
)

// reasons a CHANNEL_OPEN_FAILURE may give, RFC 4254 section 5.1.
const (
	openAdministrativelyProhibited = 1
	openConnectFailed              = 2
	openUnknownChannelType         = 3
	openResourceShortage           = 4
)

// Message is the decoded form of one SSH binary packet payload: a single
// type byte followed by type-specific fields.
type Message struct {
	Code    byte
	Payload []byte
}

// KexInitMsg is the SSH_MSG_KEXINIT payload (RFC 4253 section 7.1): the
// cookie and ten name-lists (the negotiator intersects all but the two
// language lists), plus the guessed-packet-follows flag and a reserved
// uint32.
type KexInitMsg struct {
	Cookie                  [16]byte
	KexAlgos                []string
	ServerHostKeyAlgos      []string
	CiphersClientServer     []string
	CiphersServerClient     []string
	MACsClientServer        []string
	MACsServerClient        []string
	CompressionClientServer []string
	CompressionServerClient []string
	LanguagesClientServer   []string
	LanguagesServerClient   []string
	FirstKexFollows         bool
	Reserved                uint32
}

func marshalKexInit(msg *KexInitMsg) []byte {
	buf := []byte{msgKexInit}
	buf = append(buf, msg.Cookie[:]...)
	buf = appendNameList(buf, msg.KexAlgos)
	buf = appendNameList(buf, msg.ServerHostKeyAlgos)
	buf = appendNameList(buf, msg.CiphersClientServer)
	buf = appendNameList(buf, msg.CiphersServerClient)
	buf = appendNameList(buf, msg.MACsClientServer)
	buf = appendNameList(buf, msg.MACsServerClient)
	buf = appendNameList(buf, msg.CompressionClientServer)
	buf = appendNameList(buf, msg.CompressionServerClient)
	buf = appendNameList(buf, msg.LanguagesClientServer)
	buf = appendNameList(buf, msg.LanguagesServerClient)
	buf = appendBool(buf, msg.FirstKexFollows)
	buf = appendUint32(buf, msg.Reserved)
	return buf
}

func unmarshalKexInit(packet []byte) (*KexInitMsg, error) {
	d := newDecoder(packet)
	code, err := d.byte()
	if err != nil {
		return nil, err
	}
	if code != msgKexInit {
		return nil, unexpectedMessageError(msgKexInit, code)
	}
	msg := &KexInitMsg{}
	if err := d.need(16); err != nil {
		return nil, err
	}
	copy(msg.Cookie[:], d.buf[d.pos:d.pos+16])
	d.pos += 16

	fields := []*[]string{
		&msg.KexAlgos, &msg.ServerHostKeyAlgos,
		&msg.CiphersClientServer, &msg.CiphersServerClient,
		&msg.MACsClientServer, &msg.MACsServerClient,
		&msg.CompressionClientServer, &msg.CompressionServerClient,
		&msg.LanguagesClientServer, &msg.LanguagesServerClient,
	}
	for _, f := range fields {
		list, err := d.nameList()
		if err != nil {
			return nil, err
		}
		*f = list
	}
	if msg.FirstKexFollows, err = d.bool(); err != nil {
		return nil, err
	}
	if msg.Reserved, err = d.uint32(); err != nil {
		return nil, err
	}
	return msg, nil
}

// kexECDHInitMsg is SSH_MSG_KEX_ECDH_INIT (RFC 5656 section 4): the
// client's ephemeral public value Q_C.
type kexECDHInitMsg struct {
	ClientPublic []byte
}

func (m *kexECDHInitMsg) marshal() []byte {
	buf := []byte{msgKexECDHInit}
	return appendRawBytes(buf, m.ClientPublic)
}

func unmarshalKexECDHInit(packet []byte) (*kexECDHInitMsg, error) {
	d := newDecoder(packet)
	if err := expectCode(d, msgKexECDHInit); err != nil {
		return nil, err
	}
	qc, err := d.rawBytes()
	if err != nil {
		return nil, err
	}
	return &kexECDHInitMsg{ClientPublic: append([]byte(nil), qc...)}, nil
}

// kexECDHReplyMsg is SSH_MSG_KEX_ECDH_REPLY: the host key blob K_S, the
// server's ephemeral public value Q_S, and the signature over H.
type kexECDHReplyMsg struct {
	HostKey         []byte
	ServerPublic    []byte
	Signature       []byte
}

func unmarshalKexECDHReply(packet []byte) (*kexECDHReplyMsg, error) {
	d := newDecoder(packet)
	if err := expectCode(d, msgKexECDHReply); err != nil {
		return nil, err
	}
	m := &kexECDHReplyMsg{}
	var err error
	if m.HostKey, err = d.rawBytes(); err != nil {
		return nil, err
	}
	if m.ServerPublic, err = d.rawBytes(); err != nil {
		return nil, err
	}
	if m.Signature, err = d.rawBytes(); err != nil {
		return nil, err
	}
	return m, nil
}

// parseSignatureBody splits the SSH "signature" string (RFC 4253 section
// 6.6) into its algorithm name and the raw signature bytes.
func parseSignatureBody(blob []byte) (algo string, sig []byte, err error) {
	d := newDecoder(blob)
	if algo, err = d.string(); err != nil {
		return "", nil, err
	}
	if sig, err = d.rawBytes(); err != nil {
		return "", nil, err
	}
	return algo, sig, nil
}

func expectCode(d *decoder, want byte) error {
	got, err := d.byte()
	if err != nil {
		return err
	}
	if got != want {
		return unexpectedMessageError(want, got)
	}
	return nil
}

// channelOpenMsg is SSH_MSG_CHANNEL_OPEN for channel type "session".
type channelOpenMsg struct {
	ChannelType    string
	PeerChannel    uint32
	PeerWindow     uint32
	PeerMaxPacket  uint32
}

func (m *channelOpenMsg) marshal() []byte {
	buf := []byte{msgChannelOpen}
	buf = appendString(buf, m.ChannelType)
	buf = appendUint32(buf, m.PeerChannel)
	buf = appendUint32(buf, m.PeerWindow)
	buf = appendUint32(buf, m.PeerMaxPacket)
	return buf
}

type channelOpenConfirmMsg struct {
	PeerChannel   uint32
	ServerChannel uint32
	Window        uint32
	MaxPacket     uint32
}

func unmarshalChannelOpenConfirm(packet []byte) (*channelOpenConfirmMsg, error) {
	d := newDecoder(packet)
	if err := expectCode(d, msgChannelOpenConfirmation); err != nil {
		return nil, err
	}
	m := &channelOpenConfirmMsg{}
	var err error
	if m.PeerChannel, err = d.uint32(); err != nil {
		return nil, err
	}
	if m.ServerChannel, err = d.uint32(); err != nil {
		return nil, err
	}
	if m.Window, err = d.uint32(); err != nil {
		return nil, err
	}
	if m.MaxPacket, err = d.uint32(); err != nil {
		return nil, err
	}
	return m, nil
}

type channelOpenFailureMsg struct {
	PeerChannel uint32
	Reason      uint32
	Message     string
}

func unmarshalChannelOpenFailure(packet []byte) (*channelOpenFailureMsg, error) {
	d := newDecoder(packet)
	if err := expectCode(d, msgChannelOpenFailure); err != nil {
		return nil, err
	}
	m := &channelOpenFailureMsg{}
	var err error
	if m.PeerChannel, err = d.uint32(); err != nil {
		return nil, err
	}
	if m.Reason, err = d.uint32(); err != nil {
		return nil, err
	}
	if m.Message, err = d.string(); err != nil {
		return nil, err
	}
	return m, nil
}

type windowAdjustMsg struct {
	PeerChannel uint32
	Additional  uint32
}

func unmarshalWindowAdjust(packet []byte) (*windowAdjustMsg, error) {
	d := newDecoder(packet)
	if err := expectCode(d, msgChannelWindowAdjust); err != nil {
		return nil, err
	}
	m := &windowAdjustMsg{}
	var err error
	if m.PeerChannel, err = d.uint32(); err != nil {
		return nil, err
	}
	if m.Additional, err = d.uint32(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *windowAdjustMsg) marshal() []byte {
	buf := []byte{msgChannelWindowAdjust}
	buf = appendUint32(buf, m.PeerChannel)
	buf = appendUint32(buf, m.Additional)
	return buf
}

type channelDataMsg struct {
	PeerChannel uint32
	Data        []byte
}

func (m *channelDataMsg) marshal() []byte {
	buf := []byte{msgChannelData}
	buf = appendUint32(buf, m.PeerChannel)
	buf = appendRawBytes(buf, m.Data)
	return buf
}

func unmarshalChannelData(packet []byte) (*channelDataMsg, error) {
	d := newDecoder(packet)
	if err := expectCode(d, msgChannelData); err != nil {
		return nil, err
	}
	m := &channelDataMsg{}
	var err error
	if m.PeerChannel, err = d.uint32(); err != nil {
		return nil, err
	}
	if m.Data, err = d.rawBytes(); err != nil {
		return nil, err
	}
	return m, nil
}

func marshalChannelClose(peerChannel uint32) []byte {
	buf := []byte{msgChannelClose}
	return appendUint32(buf, peerChannel)
}

func unmarshalPeerChannel(code byte, packet []byte) (uint32, error) {
	d := newDecoder(packet)
	if err := expectCode(d, code); err != nil {
		return 0, err
	}
	return d.uint32()
}

// channelRequestMsg is SSH_MSG_CHANNEL_REQUEST; RequestSpecific carries
// the request-type-dependent fields already encoded (pty-req / shell
// have no common shape worth modelling generically).
type channelRequestMsg struct {
	PeerChannel     uint32
	Request         string
	WantReply       bool
	RequestSpecific []byte
}

func (m *channelRequestMsg) marshal() []byte {
	buf := []byte{msgChannelRequest}
	buf = appendUint32(buf, m.PeerChannel)
	buf = appendString(buf, m.Request)
	buf = appendBool(buf, m.WantReply)
	buf = append(buf, m.RequestSpecific...)
	return buf
}

// ptyRequestPayload encodes the pty-req request-specific fields (RFC
// 4254 section 6.2).
func ptyRequestPayload(term string, cols, rows uint32) []byte {
	buf := appendString(nil, term)
	buf = appendUint32(buf, cols)
	buf = appendUint32(buf, rows)
	buf = appendUint32(buf, 0) // width in pixels
	buf = appendUint32(buf, 0) // height in pixels
	buf = appendString(buf, "")
	return buf
}

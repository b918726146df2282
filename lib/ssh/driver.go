// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

// kexPhase names the states of the KEX driver's state machine
// (spec.md §4.5): Start -> SentKexInit -> GotKexInit -> SentInit ->
// GotReply -> Verified -> SentNewKeys -> Established.
type kexPhase int

const (
	phaseStart kexPhase = iota
	phaseSentKexInit
	phaseGotKexInit
	phaseSentInit
	phaseGotReply
	phaseVerified
	phaseSentNewKeys
	phaseEstablished
)

// keyExchangeDriver orchestrates one key exchange: KEXINIT negotiation,
// the (EC)DH dance, host-key verification, and the NEWKEYS switchover.
// It owns the transcript for the duration of the exchange.
type keyExchangeDriver struct {
	f      *packetFramer
	config *Config
	logger *log.Logger

	clientVersion, serverVersion []byte
	phase                        kexPhase
}

// run performs phases 1-4 of spec.md §4.5 and returns the negotiated
// algorithms. sessionID is the frozen first-KEX hash; on the first
// call *sessionID is nil and gets set, on a rekey it is left alone but
// still used as the KDF anchor.
func (d *keyExchangeDriver) run(sessionID *[]byte, hlog *HandshakeLog) (*Algorithms, error) {
	t := &transcript{}
	if err := t.setVC(d.clientVersion); err != nil {
		return nil, err
	}
	if err := t.setVS(d.serverVersion); err != nil {
		return nil, err
	}

	// Phase 1: KEXINIT.
	clientInit, clientInitPacket, err := d.sendKexInit()
	if err != nil {
		return nil, err
	}
	d.phase = phaseSentKexInit
	if err := t.setIC(clientInitPacket); err != nil {
		return nil, err
	}

	serverInit, serverInitPacket, err := d.receiveKexInit()
	if err != nil {
		return nil, err
	}
	d.phase = phaseGotKexInit
	if err := t.setIS(serverInitPacket); err != nil {
		return nil, err
	}
	if hlog != nil {
		hlog.ClientKex = clientInit
		hlog.ServerKex = serverInit
	}

	algs, err := findAgreedAlgorithms(clientInit, serverInit)
	if err != nil {
		return nil, err
	}
	d.logger.WithFields(log.Fields{"phase": "negotiate", "kex": algs.Kex, "host_key": algs.HostKey}).Debug("algorithms negotiated")

	kex, ok := kexAlgoMap[algs.Kex]
	if !ok {
		return nil, fmt.Errorf("ssh: unimplemented key exchange algorithm %q", algs.Kex)
	}

	// RFC 4253 section 7: if the server's guessed first packet doesn't
	// match our negotiated choice, it must be discarded.
	if serverInit.FirstKexFollows && (clientInit.KexAlgos[0] != serverInit.KexAlgos[0] || clientInit.ServerHostKeyAlgos[0] != serverInit.ServerHostKeyAlgos[0]) {
		if _, err := d.f.read(); err != nil {
			return nil, err
		}
	}

	// Phase 2: (EC)DH.
	ephemeral, qc, err := kex.generateEphemeral(d.config.Rand)
	if err != nil {
		return nil, err
	}
	if err := t.setQC(qc); err != nil {
		return nil, err
	}
	if err := d.f.write((&kexECDHInitMsg{ClientPublic: qc}).marshal()); err != nil {
		return nil, err
	}
	d.phase = phaseSentInit

	replyPacket, err := d.readDuring(phaseSentInit, msgKexECDHReply)
	if err != nil {
		return nil, err
	}
	reply, err := unmarshalKexECDHReply(replyPacket)
	if err != nil {
		return nil, err
	}
	d.phase = phaseGotReply

	if err := t.setKS(reply.HostKey); err != nil {
		return nil, err
	}
	if err := t.setQS(reply.ServerPublic); err != nil {
		return nil, err
	}
	k, err := kex.sharedSecret(ephemeral, reply.ServerPublic)
	if err != nil {
		return nil, err
	}
	if err := t.setK(k); err != nil {
		return nil, err
	}

	h, err := t.exchangeHash(kex.hashNew())
	if err != nil {
		return nil, err
	}

	// Phase 3: verify.
	hostKey, err := ParsePublicKey(reply.HostKey)
	if err != nil {
		return nil, err
	}
	sigAlgo, sigBytes, err := parseSignatureBody(reply.Signature)
	if err != nil {
		return nil, &BadHostKeyError{Err: err}
	}
	_ = sigAlgo
	if err := hostKey.Verify(h, sigBytes); err != nil {
		d.logger.WithField("phase", "verify").Warn("host key signature mismatch")
		return nil, &SignatureMismatchError{}
	}
	if d.config.HostKeyCallback != nil {
		if err := d.config.HostKeyCallback("", hostKey); err != nil {
			return nil, err
		}
	}
	d.phase = phaseVerified

	if *sessionID == nil {
		*sessionID = h
	}

	c2sKeys, s2cKeys := deriveKeys(kex.hashNew(), k.Bytes(), h, *sessionID, algs.W.Cipher, algs.W.MAC)
	writeCipher, err := newPacketCipher(algs.W.Cipher, algs.W.MAC, c2sKeys)
	if err != nil {
		return nil, err
	}
	readCipher, err := newPacketCipher(algs.R.Cipher, algs.R.MAC, s2cKeys)
	if err != nil {
		return nil, err
	}

	// Phase 4: NEWKEYS. NEWKEYS itself travels under the old cipher
	// state; outbound flips right after we send it, inbound flips
	// right after we receive the peer's (spec.md §3).
	if err := d.f.write([]byte{msgNewKeys}); err != nil {
		return nil, err
	}
	d.f.installWriteCipher(writeCipher)
	d.phase = phaseSentNewKeys

	newKeysPacket, err := d.readDuring(phaseSentNewKeys, msgNewKeys)
	if err != nil {
		return nil, err
	}
	_ = newKeysPacket
	d.f.installReadCipher(readCipher)
	d.phase = phaseEstablished

	return algs, nil
}

func (d *keyExchangeDriver) sendKexInit() (*KexInitMsg, []byte, error) {
	cookie, err := randomCookie(d.config.Rand)
	if err != nil {
		return nil, nil, err
	}
	msg := &KexInitMsg{
		Cookie:                  cookie,
		KexAlgos:                d.config.KeyExchanges,
		ServerHostKeyAlgos:      d.config.HostKeyAlgorithms,
		CiphersClientServer:     d.config.Ciphers,
		CiphersServerClient:     d.config.Ciphers,
		MACsClientServer:        d.config.MACs,
		MACsServerClient:        d.config.MACs,
		CompressionClientServer: defaultCompressions,
		CompressionServerClient: defaultCompressions,
	}
	packet := marshalKexInit(msg)
	if err := d.f.write(packet); err != nil {
		return nil, nil, err
	}
	return msg, packet, nil
}

// receiveKexInit reads until a KEXINIT arrives, silently tolerating
// IGNORE/DEBUG and replying to GLOBAL_REQUEST with REQUEST_FAILURE as
// spec.md §4.5's state machine requires outside the KEX vocabulary.
func (d *keyExchangeDriver) receiveKexInit() (*KexInitMsg, []byte, error) {
	for {
		packet, err := d.f.read()
		if err != nil {
			return nil, nil, err
		}
		if len(packet) == 0 {
			continue
		}
		switch packet[0] {
		case msgIgnore, msgDebug:
			continue
		case msgGlobalRequest:
			if err := d.f.write([]byte{msgRequestFailure}); err != nil {
				return nil, nil, err
			}
			continue
		case msgKexInit:
			msg, err := unmarshalKexInit(packet)
			if err != nil {
				return nil, nil, err
			}
			return msg, packet, nil
		default:
			return nil, nil, unexpectedMessageError(msgKexInit, packet[0])
		}
	}
}

// readDuring reads the next message expected during phase, tolerating
// only IGNORE/DEBUG; anything else that isn't the wanted code is a
// ProtocolViolation, since the KEX and channel phases have disjoint
// vocabularies (spec.md §9 design note).
func (d *keyExchangeDriver) readDuring(phase kexPhase, want byte) ([]byte, error) {
	for {
		packet, err := d.f.read()
		if err != nil {
			return nil, err
		}
		if len(packet) == 0 {
			continue
		}
		if packet[0] == msgIgnore || packet[0] == msgDebug {
			continue
		}
		if packet[0] != want {
			return nil, unexpectedMessageError(want, packet[0])
		}
		return packet, nil
	}
}

// HandshakeLog is the ambient diagnostics record accumulated across one
// handshake (SPEC_FULL.md §3), mirroring the teacher's ConnLog hooks.
type HandshakeLog struct {
	ClientVersion string
	ServerVersion string
	ClientKex     *KexInitMsg
	ServerKex     *KexInitMsg
	Algorithms    *Algorithms
	Duration      time.Duration
}

// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"crypto/rand"
	"io"
	"net"
	"time"

	log "github.com/sirupsen/logrus"
)

// These are string constants in the SSH protocol.
const (
	compressionNone = "none"
	serviceUserAuth = "ssh-userauth"
	serviceSSH      = "ssh-connection"
)

// defaultKexAlgos specifies the default key-exchange algorithms in
// preference order. Only constant-time, modern curves are offered;
// finite-field Diffie-Hellman is not implemented by this core.
var defaultKexAlgos = []string{
	kexAlgoCurve25519SHA256,
	kexAlgoECDH256,
	kexAlgoECDH384,
	kexAlgoECDH521,
}

// defaultHostKeyAlgos specifies the host-key algorithms this core can
// verify, in preference order.
var defaultHostKeyAlgos = []string{
	KeyAlgoED25519,
	KeyAlgoECDSA256,
	KeyAlgoRSA,
}

// defaultCiphers specifies the default ciphers in preference order.
var defaultCiphers = []string{
	cipherChaCha20Poly1305,
	cipherAES128CTR,
	cipherAES256CTR,
}

// defaultMACs specifies the default MAC algorithms in preference order.
// Ignored for AEAD ciphers, which draw integrity from their own tag.
var defaultMACs = []string{
	"hmac-sha2-256",
	"hmac-sha2-512",
}

var defaultCompressions = []string{compressionNone}

func findCommon(family string, client, server []string) (string, error) {
	for _, c := range client {
		for _, s := range server {
			if c == s {
				return c, nil
			}
		}
	}
	return "", &NoCommonAlgorithmError{Family: family, Client: client, Server: server}
}

// DirectionAlgorithms is the cipher/MAC/compression triple chosen for
// one direction (client-to-server or server-to-client).
type DirectionAlgorithms struct {
	Cipher      string
	MAC         string
	Compression string
}

// Algorithms is the full quadruple the negotiator agrees on for one key
// exchange: the KEX method, the host-key type, and per-direction
// cipher/MAC/compression choices.
type Algorithms struct {
	Kex     string
	HostKey string
	W       DirectionAlgorithms // client -> server
	R       DirectionAlgorithms // server -> client
}

// findAgreedAlgorithms applies the first-client-match rule (spec law 4)
// independently to each algorithm family.
func findAgreedAlgorithms(clientInit, serverInit *KexInitMsg) (*Algorithms, error) {
	result := &Algorithms{}
	var err error

	if result.Kex, err = findCommon("key exchange", clientInit.KexAlgos, serverInit.KexAlgos); err != nil {
		return nil, err
	}
	if result.HostKey, err = findCommon("host key", clientInit.ServerHostKeyAlgos, serverInit.ServerHostKeyAlgos); err != nil {
		return nil, err
	}
	if result.W.Cipher, err = findCommon("client to server cipher", clientInit.CiphersClientServer, serverInit.CiphersClientServer); err != nil {
		return nil, err
	}
	if result.R.Cipher, err = findCommon("server to client cipher", clientInit.CiphersServerClient, serverInit.CiphersServerClient); err != nil {
		return nil, err
	}
	if result.W.MAC, err = findCommon("client to server MAC", clientInit.MACsClientServer, serverInit.MACsClientServer); err != nil {
		return nil, err
	}
	if result.R.MAC, err = findCommon("server to client MAC", clientInit.MACsServerClient, serverInit.MACsServerClient); err != nil {
		return nil, err
	}
	if result.W.Compression, err = findCommon("client to server compression", clientInit.CompressionClientServer, serverInit.CompressionClientServer); err != nil {
		return nil, err
	}
	if result.R.Compression, err = findCommon("server to client compression", clientInit.CompressionServerClient, serverInit.CompressionServerClient); err != nil {
		return nil, err
	}
	return result, nil
}

// minRekeyThreshold is the smallest rekey byte threshold that still
// lets data through. This core never initiates a rekey, and nothing
// reads this constant.
const minRekeyThreshold uint64 = 256

// Config contains the client's configuration. It must not be modified
// after being passed to Connect.
type Config struct {
	// ClientVersion is the identification string sent in the banner
	// exchange. If empty, a reasonable default is used.
	ClientVersion string

	// Rand is the source of entropy for nonces, cookies and ephemeral
	// keys. If nil, crypto/rand.Reader is used.
	Rand io.Reader

	// KeyExchanges, HostKeyAlgorithms, Ciphers and MACs are the
	// ordered algorithm preference lists the negotiator intersects
	// with the server's. If unset, sensible defaults are used.
	KeyExchanges      []string
	HostKeyAlgorithms []string
	Ciphers           []string
	MACs              []string

	// WindowSize is the local per-channel flow-control window (L_W in
	// spec.md §3). Defaults to 2^21.
	WindowSize uint32

	// MaxPacketSize is the largest CHANNEL_DATA payload this core will
	// advertise it can receive. Defaults to 2^15.
	MaxPacketSize uint32

	// Timeout bounds every blocking read during the handshake and
	// channel lifetime. Zero means no timeout.
	Timeout time.Duration

	// HostKeyCallback validates the server's host key once KEX has
	// verified its signature over the exchange hash. A nil callback
	// accepts any host key unconditionally — fingerprint pinning is
	// left to the caller (see DESIGN.md).
	HostKeyCallback func(hostname string, key PublicKey) error

	// Logger receives structured diagnostics for every phase
	// transition. Defaults to logrus.StandardLogger().
	Logger *log.Logger

	// Metrics receives counters for bytes framed and channel/handshake
	// events. Defaults to a no-op recorder.
	Metrics MetricsRecorder
}

const (
	defaultWindowSize    = 1 << 21
	defaultMaxPacketSize = 1 << 15
)

// SetDefaults fills unset fields of c with sensible defaults. Exported
// for testing; Connect copies and calls this automatically.
func (c *Config) SetDefaults() {
	if c.ClientVersion == "" {
		c.ClientVersion = "SSH-2.0-Go-ssh-core"
	}
	if c.Rand == nil {
		c.Rand = rand.Reader
	}
	if c.KeyExchanges == nil {
		c.KeyExchanges = defaultKexAlgos
	}
	if c.HostKeyAlgorithms == nil {
		c.HostKeyAlgorithms = defaultHostKeyAlgos
	}
	if c.Ciphers == nil {
		c.Ciphers = defaultCiphers
	}
	if c.MACs == nil {
		c.MACs = defaultMACs
	}
	if c.WindowSize == 0 {
		c.WindowSize = defaultWindowSize
	}
	if c.MaxPacketSize == 0 {
		c.MaxPacketSize = defaultMaxPacketSize
	}
	if c.Logger == nil {
		c.Logger = log.StandardLogger()
	}
	if c.Metrics == nil {
		c.Metrics = noopMetrics{}
	}
}

// MetricsRecorder is the capability interface the transport and channel
// state machine report through; see metrics.Recorder for the Prometheus
// implementation wired in cmd/gosshc.
type MetricsRecorder interface {
	BytesSent(n int)
	BytesReceived(n int)
	HandshakeComplete(d time.Duration)
	ChannelOpened()
	ChannelClosed()
}

type noopMetrics struct{}

func (noopMetrics) BytesSent(int)                  {}
func (noopMetrics) BytesReceived(int)               {}
func (noopMetrics) HandshakeComplete(time.Duration) {}
func (noopMetrics) ChannelOpened()                  {}
func (noopMetrics) ChannelClosed()                  {}

func randomCookie(r io.Reader) ([16]byte, error) {
	var cookie [16]byte
	_, err := io.ReadFull(r, cookie[:])
	return cookie, err
}

// deadlineSetter is satisfied by net.Conn; Config.Timeout only takes
// effect against a transport that implements it.
type deadlineSetter interface {
	SetDeadline(time.Time) error
}

// translateIOErr maps a transport-level I/O error to ErrTimeout when it
// was caused by a deadline Config.Timeout installed, and to
// ErrTransportClosed otherwise.
func translateIOErr(err error) error {
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return ErrTimeout
	}
	return ErrTransportClosed
}

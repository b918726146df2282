// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"fmt"
	"hash"
	"math/big"
)

// transcript accumulates the eight canonical fields (spec.md §3) that
// feed the exchange hash H. Each field is settable exactly once per key
// exchange; computing H requires all eight to be present.
type transcript struct {
	vc, vs []byte // banners, without trailing CRLF
	ic, is []byte // marshaled KEXINIT payloads
	ks     []byte // host key blob
	qc, qs []byte // ephemeral public values
	k      *big.Int

	set [8]bool
}

const (
	fieldVC = iota
	fieldVS
	fieldIC
	fieldIS
	fieldKS
	fieldQC
	fieldQS
	fieldK
)

func (t *transcript) markOnce(field int) error {
	if t.set[field] {
		return fmt.Errorf("ssh: transcript field %d set twice in one key exchange", field)
	}
	t.set[field] = true
	return nil
}

func (t *transcript) setVC(v []byte) error { t.vc = v; return t.markOnce(fieldVC) }
func (t *transcript) setVS(v []byte) error { t.vs = v; return t.markOnce(fieldVS) }
func (t *transcript) setIC(v []byte) error { t.ic = v; return t.markOnce(fieldIC) }
func (t *transcript) setIS(v []byte) error { t.is = v; return t.markOnce(fieldIS) }
func (t *transcript) setKS(v []byte) error { t.ks = v; return t.markOnce(fieldKS) }
func (t *transcript) setQC(v []byte) error { t.qc = v; return t.markOnce(fieldQC) }
func (t *transcript) setQS(v []byte) error { t.qs = v; return t.markOnce(fieldQS) }
func (t *transcript) setK(v *big.Int) error { t.k = v; return t.markOnce(fieldK) }

func (t *transcript) complete() bool {
	for _, ok := range t.set {
		if !ok {
			return false
		}
	}
	return true
}

// exchangeHash computes H = HASH(V_C, V_S, I_C, I_S, K_S, Q_C, Q_S, K),
// encoding each of the first seven fields as an SSH string and K as an
// mpint, in exactly that order (spec.md §3 invariant).
func (t *transcript) exchangeHash(hashNew func() hash.Hash) ([]byte, error) {
	if !t.complete() {
		return nil, fmt.Errorf("ssh: incomplete transcript")
	}
	var buf []byte
	buf = appendRawBytes(buf, t.vc)
	buf = appendRawBytes(buf, t.vs)
	buf = appendRawBytes(buf, t.ic)
	buf = appendRawBytes(buf, t.is)
	buf = appendRawBytes(buf, t.ks)
	buf = appendRawBytes(buf, t.qc)
	buf = appendRawBytes(buf, t.qs)
	buf = appendMpint(buf, t.k)

	h := hashNew()
	h.Write(buf)
	return h.Sum(nil), nil
}

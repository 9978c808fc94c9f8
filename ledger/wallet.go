// Copyright (C) 2019-2026, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package ledger

import (
	"bytes"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	hwi "github.com/luxfi/hwi-go"
	"github.com/luxfi/hwi-go/policy"
)

const walletPolicyVersion = 0x02

// walletPolicy is a descriptor template plus its keys, the form the Bitcoin
// app registers.
type walletPolicy struct {
	name     string
	template string
	keys     []string
}

func newWalletPolicy(name string, d *policy.Descriptor) walletPolicy {
	keys := make([]string, len(d.Keys))
	for i, k := range d.Keys {
		keys[i] = k.String()
	}
	return walletPolicy{name: name, template: d.Template, keys: keys}
}

// Templates the app accepts without registration, by BIP44 purpose.
var singleSigTemplates = map[uint32]string{
	44 + hwi.HardenedKeyStart: "pkh(@0/**)",
	49 + hwi.HardenedKeyStart: "sh(wpkh(@0/**))",
	84 + hwi.HardenedKeyStart: "wpkh(@0/**)",
	86 + hwi.HardenedKeyStart: "tr(@0/**)",
}

// singleSigPolicy is the unnamed, unregistered policy over one account xpub.
func singleSigPolicy(template string, fp hwi.Fingerprint, account hwi.DerivationPath, xpub string) walletPolicy {
	key := policy.Key{HasOrigin: true, Fingerprint: fp, Path: account, XPub: xpub}
	return walletPolicy{template: template, keys: []string{key.String()}}
}

func (w walletPolicy) keyBytes() [][]byte {
	out := make([][]byte, len(w.keys))
	for i, k := range w.keys {
		out[i] = []byte(k)
	}
	return out
}

// serialize commits to the template and keys by hash, so the app fetches
// them piecewise through client commands:
// version | name | varint(len(template)) | sha256(template) | varint(n keys) | keys root.
func (w walletPolicy) serialize() []byte {
	var buf bytes.Buffer
	buf.WriteByte(walletPolicyVersion)
	buf.WriteByte(byte(len(w.name)))
	buf.WriteString(w.name)
	_ = wire.WriteVarInt(&buf, 0, uint64(len(w.template)))
	th := chainhash.HashH([]byte(w.template))
	buf.Write(th[:])
	_ = wire.WriteVarInt(&buf, 0, uint64(len(w.keys)))
	root := listRoot(w.keyBytes())
	buf.Write(root[:])
	return buf.Bytes()
}

// id is the wallet id the device derives for the policy.
func (w walletPolicy) id() [32]byte {
	return chainhash.HashH(w.serialize())
}

// registeredWallet is the active wallet context of a handle.
type registeredWallet struct {
	policy walletPolicy
	hmac   [32]byte
}

// ownPath is the derivation of the first key in the input that belongs to
// the device with fingerprint fp.
func ownPath(in *psbt.PInput, fp hwi.Fingerprint) hwi.DerivationPath {
	want := fp.Uint32()
	for _, d := range in.TaprootBip32Derivation {
		if d.MasterKeyFingerprint == want {
			return d.Bip32Path
		}
	}
	for _, d := range in.Bip32Derivation {
		if d.MasterKeyFingerprint == want {
			return d.Bip32Path
		}
	}
	return nil
}

// Copyright (C) 2019-2026, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

// Package psbtutil finds the inputs a device must sign and attaches the
// signatures it produced, all of them or none.
package psbtutil

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"

	hwi "github.com/luxfi/hwi-go"
)

// Signature is one signature yielded by a device.
type Signature struct {
	Input int
	// PubKey is 33 bytes for ECDSA or 32 bytes (x-only) for schnorr.
	PubKey    []byte
	Signature []byte
	// LeafHash is set for taproot script path signatures.
	LeafHash []byte
}

// IsTaproot reports whether the signature is a schnorr signature.
func (s Signature) IsTaproot() bool {
	return len(s.PubKey) == 32
}

// Required returns the inputs carrying a derivation from the device with
// fingerprint fp. An input without any derivation metadata fails with
// ErrUnsupportedInput since no device can tell whether it owns it, and so
// does a transaction with nothing for this device to sign.
func Required(p *psbt.Packet, fp hwi.Fingerprint) ([]int, error) {
	if p == nil || p.UnsignedTx == nil {
		return nil, hwi.InvalidParam("tx", "missing unsigned transaction")
	}
	want := fp.Uint32()

	var required []int
	for i := range p.Inputs {
		in := &p.Inputs[i]
		if len(in.Bip32Derivation) == 0 && len(in.TaprootBip32Derivation) == 0 {
			return nil, hwi.ErrUnsupportedInput
		}
		if ownsInput(in, want) {
			required = append(required, i)
		}
	}
	if len(required) == 0 {
		return nil, hwi.ErrUnsupportedInput
	}
	return required, nil
}

func ownsInput(in *psbt.PInput, fp uint32) bool {
	for _, d := range in.Bip32Derivation {
		if d.MasterKeyFingerprint == fp {
			return true
		}
	}
	for _, d := range in.TaprootBip32Derivation {
		if d.MasterKeyFingerprint == fp {
			return true
		}
	}
	return false
}

// Apply attaches sigs to p when every input in required has at least one
// signature. Otherwise p is left untouched and ErrDeviceDidNotSign returned.
func Apply(p *psbt.Packet, required []int, sigs []Signature) error {
	if len(required) == 0 {
		return hwi.ErrDeviceDidNotSign
	}

	signed := make(map[int]bool, len(sigs))
	for _, s := range sigs {
		if s.Input < 0 || s.Input >= len(p.Inputs) {
			return hwi.DeviceErrorf("signature for input %d out of range", s.Input)
		}
		if len(s.Signature) == 0 {
			continue
		}
		signed[s.Input] = true
	}
	for _, i := range required {
		if !signed[i] {
			return hwi.ErrDeviceDidNotSign
		}
	}

	for _, s := range sigs {
		if len(s.Signature) == 0 {
			continue
		}
		attach(&p.Inputs[s.Input], s)
	}
	return nil
}

func attach(in *psbt.PInput, s Signature) {
	switch {
	case s.IsTaproot() && len(s.LeafHash) == 0:
		in.TaprootKeySpendSig = s.Signature
	case s.IsTaproot():
		for _, existing := range in.TaprootScriptSpendSig {
			if bytes.Equal(existing.XOnlyPubKey, s.PubKey) && bytes.Equal(existing.LeafHash, s.LeafHash) {
				existing.Signature = s.Signature
				return
			}
		}
		in.TaprootScriptSpendSig = append(in.TaprootScriptSpendSig, &psbt.TaprootScriptSpendSig{
			XOnlyPubKey: s.PubKey,
			LeafHash:    s.LeafHash,
			Signature:   s.Signature,
			SigHash:     in.SighashType,
		})
	default:
		for _, existing := range in.PartialSigs {
			if bytes.Equal(existing.PubKey, s.PubKey) {
				existing.Signature = s.Signature
				return
			}
		}
		in.PartialSigs = append(in.PartialSigs, &psbt.PartialSig{
			PubKey:    s.PubKey,
			Signature: s.Signature,
		})
	}
}

// Diff returns the signatures present in signed and absent from orig. Used by
// backends that hand back a whole signed PSBT.
func Diff(orig, signed *psbt.Packet) ([]Signature, error) {
	if len(orig.Inputs) != len(signed.Inputs) {
		return nil, hwi.DeviceErrorf("device returned %d inputs, want %d", len(signed.Inputs), len(orig.Inputs))
	}
	if orig.UnsignedTx.TxHash() != signed.UnsignedTx.TxHash() {
		return nil, hwi.DeviceError("device returned a different transaction")
	}

	var sigs []Signature
	for i := range signed.Inputs {
		before, after := &orig.Inputs[i], &signed.Inputs[i]
		if len(after.TaprootKeySpendSig) > 0 && !bytes.Equal(after.TaprootKeySpendSig, before.TaprootKeySpendSig) {
			xonly, err := keySpendKey(after)
			if err != nil {
				return nil, err
			}
			sigs = append(sigs, Signature{Input: i, PubKey: xonly, Signature: after.TaprootKeySpendSig})
		}
		for _, ss := range after.TaprootScriptSpendSig {
			if !hasScriptSig(before, ss) {
				sigs = append(sigs, Signature{Input: i, PubKey: ss.XOnlyPubKey, LeafHash: ss.LeafHash, Signature: ss.Signature})
			}
		}
		for _, ps := range after.PartialSigs {
			if !hasPartialSig(before, ps) {
				sigs = append(sigs, Signature{Input: i, PubKey: ps.PubKey, Signature: ps.Signature})
			}
		}
	}
	return sigs, nil
}

func keySpendKey(in *psbt.PInput) ([]byte, error) {
	if len(in.TaprootInternalKey) == 32 {
		return in.TaprootInternalKey, nil
	}
	for _, d := range in.TaprootBip32Derivation {
		if len(d.LeafHashes) == 0 {
			return d.XOnlyPubKey, nil
		}
	}
	if in.WitnessUtxo != nil && txscript.IsPayToTaproot(in.WitnessUtxo.PkScript) {
		return in.WitnessUtxo.PkScript[2:], nil
	}
	return nil, fmt.Errorf("taproot key spend signature without a key: %w", hwi.ErrUnsupportedInput)
}

func hasScriptSig(in *psbt.PInput, ss *psbt.TaprootScriptSpendSig) bool {
	for _, existing := range in.TaprootScriptSpendSig {
		if bytes.Equal(existing.XOnlyPubKey, ss.XOnlyPubKey) &&
			bytes.Equal(existing.LeafHash, ss.LeafHash) &&
			bytes.Equal(existing.Signature, ss.Signature) {
			return true
		}
	}
	return false
}

func hasPartialSig(in *psbt.PInput, ps *psbt.PartialSig) bool {
	for _, existing := range in.PartialSigs {
		if bytes.Equal(existing.PubKey, ps.PubKey) && bytes.Equal(existing.Signature, ps.Signature) {
			return true
		}
	}
	return false
}

// Copyright (C) 2019-2026, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package simulator

import (
	"bytes"
	"context"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	hwi "github.com/luxfi/hwi-go"
	"github.com/luxfi/hwi-go/internal/psbtutil"
)

func (d *Device) signTx(ctx context.Context, tx *psbt.Packet) error {
	required, err := psbtutil.Required(tx, d.fingerprint)
	if err != nil {
		return err
	}

	prevOuts := make(map[wire.OutPoint]*wire.TxOut, len(tx.Inputs))
	for i, in := range tx.Inputs {
		if in.WitnessUtxo == nil {
			return fmt.Errorf("input %d has no witness utxo: %w", i, hwi.ErrUnsupportedInput)
		}
		prevOuts[tx.UnsignedTx.TxIn[i].PreviousOutPoint] = in.WitnessUtxo
	}
	fetcher := txscript.NewMultiPrevOutFetcher(prevOuts)

	keys := make(map[int]inputKey, len(required))
	for _, i := range required {
		k, err := d.inputKey(&tx.Inputs[i])
		if err != nil {
			return fmt.Errorf("input %d: %w", i, err)
		}
		keys[i] = k
	}

	if err := d.link.roundTrip(ctx); err != nil {
		return err
	}
	if !d.confirm(PromptSign, summary(tx)) {
		return hwi.ErrDeviceDidNotSign
	}

	hashes := txscript.NewTxSigHashes(tx.UnsignedTx, fetcher)
	sigs := make([]psbtutil.Signature, 0, len(required))
	for _, i := range required {
		s, err := d.signInput(tx, i, keys[i], hashes, fetcher)
		if err != nil {
			return err
		}
		sigs = append(sigs, s)
	}
	return psbtutil.Apply(tx, required, sigs)
}

func summary(tx *psbt.Packet) string {
	var out int64
	for _, o := range tx.UnsignedTx.TxOut {
		out += o.Value
	}
	return fmt.Sprintf("%d inputs, %d outputs, %d sat out", len(tx.UnsignedTx.TxIn), len(tx.UnsignedTx.TxOut), out)
}

// inputKey is the key an owned input is spent with.
type inputKey struct {
	priv    *btcec.PrivateKey
	pub     []byte
	taproot bool
}

// inputKey finds the key this seed spends in with. Only taproot key path
// and P2WPKH spends are supported; anything else is ErrUnsupportedInput.
func (d *Device) inputKey(in *psbt.PInput) (inputKey, error) {
	pkScript := in.WitnessUtxo.PkScript
	want := d.fingerprint.Uint32()

	switch {
	case txscript.IsPayToTaproot(pkScript):
		for _, der := range in.TaprootBip32Derivation {
			if der.MasterKeyFingerprint != want || len(der.LeafHashes) > 0 {
				continue
			}
			priv, err := d.privKey(der.Bip32Path)
			if err != nil {
				return inputKey{}, err
			}
			xonly := schnorr.SerializePubKey(priv.PubKey())
			if bytes.Equal(xonly, der.XOnlyPubKey) {
				return inputKey{priv: priv, pub: xonly, taproot: true}, nil
			}
		}

	case txscript.IsPayToWitnessPubKeyHash(pkScript):
		for _, der := range in.Bip32Derivation {
			if der.MasterKeyFingerprint != want {
				continue
			}
			priv, err := d.privKey(der.Bip32Path)
			if err != nil {
				return inputKey{}, err
			}
			pub := priv.PubKey().SerializeCompressed()
			if bytes.Equal(pub, der.PubKey) {
				return inputKey{priv: priv, pub: pub}, nil
			}
		}
	}

	log.Debugw("unsupported input script", "script", fmt.Sprintf("%x", pkScript))
	return inputKey{}, hwi.ErrUnsupportedInput
}

func (d *Device) privKey(path hwi.DerivationPath) (*btcec.PrivateKey, error) {
	key, err := d.derive(path)
	if err != nil {
		return nil, err
	}
	priv, err := key.ECPrivKey()
	if err != nil {
		return nil, hwi.DeviceErrorf("derive %s: %v", path, err)
	}
	return priv, nil
}

// signInput signs input i with k: BIP341 for taproot, BIP143 for P2WPKH.
func (d *Device) signInput(tx *psbt.Packet, i int, k inputKey, hashes *txscript.TxSigHashes, fetcher txscript.PrevOutputFetcher) (psbtutil.Signature, error) {
	in := &tx.Inputs[i]
	hashType := in.SighashType

	if k.taproot {
		if hashType == 0 {
			hashType = txscript.SigHashDefault
		}
		sigHash, err := txscript.CalcTaprootSignatureHash(hashes, hashType, tx.UnsignedTx, i, fetcher)
		if err != nil {
			return psbtutil.Signature{}, fmt.Errorf("input %d sighash: %w", i, hwi.ErrUnsupportedInput)
		}
		tweaked := txscript.TweakTaprootPrivKey(*k.priv, in.TaprootMerkleRoot)
		sig, err := schnorr.Sign(tweaked, sigHash)
		if err != nil {
			return psbtutil.Signature{}, hwi.DeviceErrorf("input %d: %v", i, err)
		}
		raw := sig.Serialize()
		if hashType != txscript.SigHashDefault {
			raw = append(raw, byte(hashType))
		}
		return psbtutil.Signature{Input: i, PubKey: k.pub, Signature: raw}, nil
	}

	if hashType == 0 {
		hashType = txscript.SigHashAll
	}
	sig, err := txscript.RawTxInWitnessSignature(tx.UnsignedTx, hashes, i, in.WitnessUtxo.Value, in.WitnessUtxo.PkScript, hashType, k.priv)
	if err != nil {
		return psbtutil.Signature{}, hwi.DeviceErrorf("input %d: %v", i, err)
	}
	return psbtutil.Signature{Input: i, PubKey: k.pub, Signature: sig}, nil
}

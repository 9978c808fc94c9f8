// Copyright (C) 2019-2026, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package ledger

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/wire"

	hwi "github.com/luxfi/hwi-go"
	"github.com/luxfi/hwi-go/internal/psbtutil"
)

var bitcoinApps = map[string]bool{
	"Bitcoin":      true,
	"Bitcoin Test": true,
}

// getAppAndVersion asks the dashboard which app is running.
func getAppAndVersion(ctx context.Context, dev LedgerDevice) (string, hwi.Version, error) {
	resp, err := exchange(ctx, dev, command{cla: claDashboard, ins: insGetAppAndVersion}, nil, false)
	if err != nil {
		return "", hwi.Version{}, err
	}

	r := bytes.NewReader(resp)
	format, err := r.ReadByte()
	if err != nil || format != 0x01 {
		return "", hwi.Version{}, hwi.DeviceErrorf("unknown app version format")
	}
	name, err := readShortString(r)
	if err != nil {
		return "", hwi.Version{}, err
	}
	version, err := readShortString(r)
	if err != nil {
		return "", hwi.Version{}, err
	}
	v, err := parseVersion(version)
	return name, v, err
}

func readShortString(r *bytes.Reader) (string, error) {
	n, err := r.ReadByte()
	if err != nil {
		return "", hwi.DeviceError("truncated response")
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", hwi.DeviceError("truncated response")
	}
	return string(b), nil
}

func getMasterFingerprint(ctx context.Context, dev LedgerDevice) (hwi.Fingerprint, error) {
	var fp hwi.Fingerprint
	resp, err := exchange(ctx, dev, command{cla: claBitcoin, ins: insGetMasterFingerprint, p2: protocolVersion}, nil, false)
	if err != nil {
		return fp, err
	}
	if len(resp) != len(fp) {
		return fp, hwi.DeviceErrorf("fingerprint of %d bytes", len(resp))
	}
	copy(fp[:], resp)
	return fp, nil
}

func encodePath(path hwi.DerivationPath) []byte {
	out := make([]byte, 1+4*len(path))
	out[0] = byte(len(path))
	for i, index := range path {
		binary.BigEndian.PutUint32(out[1+4*i:], index)
	}
	return out
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func getExtendedPubkey(ctx context.Context, dev LedgerDevice, path hwi.DerivationPath, display bool) (string, error) {
	data := append([]byte{boolByte(display)}, encodePath(path)...)
	resp, err := exchange(ctx, dev, command{cla: claBitcoin, ins: insGetExtendedPubkey, p2: protocolVersion, data: data}, nil, false)
	if err != nil {
		return "", err
	}
	return string(resp), nil
}

// registerWallet returns the wallet id and the HMAC proving the user approved
// the policy.
func registerWallet(ctx context.Context, dev LedgerDevice, w walletPolicy) ([32]byte, [32]byte, error) {
	var id, hmac [32]byte
	interp := newClientInterpreter()
	interp.addWallet(w)

	serialized := w.serialize()
	data := append(varint(uint64(len(serialized))), serialized...)
	resp, err := exchange(ctx, dev, command{cla: claBitcoin, ins: insRegisterWallet, p2: protocolVersion, data: data}, interp, false)
	if err != nil {
		return id, hmac, err
	}
	if len(resp) != 64 {
		return id, hmac, hwi.DeviceErrorf("register wallet response of %d bytes", len(resp))
	}
	copy(id[:], resp[:32])
	copy(hmac[:], resp[32:])
	return id, hmac, nil
}

// getWalletAddress sends only the wallet id; the app fetches the policy
// itself. A zero hmac selects an unregistered single key policy.
func getWalletAddress(ctx context.Context, dev LedgerDevice, w walletPolicy, hmac [32]byte, change bool, index uint32, display bool) (string, error) {
	interp := newClientInterpreter()
	interp.addWallet(w)
	id := w.id()

	var data bytes.Buffer
	data.WriteByte(boolByte(display))
	data.Write(id[:])
	data.Write(hmac[:])
	data.WriteByte(boolByte(change))
	_ = binary.Write(&data, binary.BigEndian, index)

	resp, err := exchange(ctx, dev, command{cla: claBitcoin, ins: insGetWalletAddress, p2: protocolVersion, data: data.Bytes()}, interp, false)
	if err != nil {
		return "", err
	}
	return string(resp), nil
}

// signPSBT commits to the merkleized maps of p and collects the signatures
// the app yields while it walks them.
func signPSBT(ctx context.Context, dev LedgerDevice, w walletPolicy, hmac [32]byte, p *psbt.Packet) ([]psbtutil.Signature, error) {
	global, inputs, outputs, err := psbtV2Maps(p)
	if err != nil {
		return nil, err
	}

	interp := newClientInterpreter()
	interp.addWallet(w)
	interp.addMapping(global)
	inputCommitments := make([][]byte, len(inputs))
	for i, m := range inputs {
		interp.addMapping(m)
		inputCommitments[i] = m.commitment()
	}
	outputCommitments := make([][]byte, len(outputs))
	for i, m := range outputs {
		interp.addMapping(m)
		outputCommitments[i] = m.commitment()
	}
	inputsRoot := interp.addList(inputCommitments)
	outputsRoot := interp.addList(outputCommitments)

	var data bytes.Buffer
	data.Write(global.commitment())
	_ = wire.WriteVarInt(&data, 0, uint64(len(inputs)))
	data.Write(inputsRoot[:])
	_ = wire.WriteVarInt(&data, 0, uint64(len(outputs)))
	data.Write(outputsRoot[:])
	id := w.id()
	data.Write(id[:])
	data.Write(hmac[:])

	if _, err := exchange(ctx, dev, command{cla: claBitcoin, ins: insSignPSBT, p2: protocolVersion, data: data.Bytes()}, interp, true); err != nil {
		return nil, err
	}
	return parseSignatures(interp.yielded)
}

// musigYield tags yielded MuSig2 records, which carry no signature.
const musigYield = 0xffffffff

// parseSignatures decodes yielded records:
// input index (varint) | key length (1) | key | signature.
// A 64 byte key is an x-only key followed by the tapleaf hash.
func parseSignatures(yielded [][]byte) ([]psbtutil.Signature, error) {
	var sigs []psbtutil.Signature
	for _, record := range yielded {
		r := bytes.NewReader(record)
		index, err := wire.ReadVarInt(r, 0)
		if err != nil {
			return nil, hwi.DeviceError("truncated signature record")
		}
		if index == musigYield {
			continue
		}
		n, err := r.ReadByte()
		if err != nil || int(n) > r.Len() {
			return nil, hwi.DeviceError("truncated signature record")
		}
		key := make([]byte, n)
		_, _ = io.ReadFull(r, key)
		sig := make([]byte, r.Len())
		_, _ = io.ReadFull(r, sig)
		if len(sig) == 0 {
			return nil, hwi.DeviceError("signature record without signature")
		}

		s := psbtutil.Signature{Input: int(index), Signature: sig}
		switch len(key) {
		case 32, 33:
			s.PubKey = key
		case 64:
			s.PubKey, s.LeafHash = key[:32], key[32:]
		default:
			return nil, hwi.DeviceErrorf("signature key of %d bytes", len(key))
		}
		sigs = append(sigs, s)
	}
	return sigs, nil
}

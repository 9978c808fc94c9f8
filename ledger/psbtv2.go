// Copyright (C) 2019-2026, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package ledger

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/wire"

	hwi "github.com/luxfi/hwi-go"
)

// Key types of the version 2 PSBT layout the app reads.
const (
	psbtGlobalUnsignedTx       = 0x00
	psbtGlobalTxVersion        = 0x02
	psbtGlobalFallbackLocktime = 0x03
	psbtGlobalInputCount       = 0x04
	psbtGlobalOutputCount      = 0x05
	psbtGlobalVersion          = 0xfb

	psbtInPreviousTxid = 0x0e
	psbtInOutputIndex  = 0x0f
	psbtInSequence     = 0x10

	psbtOutAmount = 0x03
	psbtOutScript = 0x04
)

var psbtMagic = []byte{'p', 's', 'b', 't', 0xff}

func le32(v uint32) []byte {
	return binary.LittleEndian.AppendUint32(nil, v)
}

func varint(v uint64) []byte {
	var buf bytes.Buffer
	_ = wire.WriteVarInt(&buf, 0, v)
	return buf.Bytes()
}

// psbtV2Maps reads the key-value maps of p and rewrites them into the
// version 2 layout: the unsigned transaction is dropped and its fields move
// into the global, input and output maps.
func psbtV2Maps(p *psbt.Packet) (kvMap, []kvMap, []kvMap, error) {
	var raw bytes.Buffer
	if err := p.Serialize(&raw); err != nil {
		return nil, nil, nil, hwi.ErrUnsupportedInput
	}
	r := bytes.NewReader(raw.Bytes())
	magic := make([]byte, len(psbtMagic))
	if _, err := io.ReadFull(r, magic); err != nil || !bytes.Equal(magic, psbtMagic) {
		return nil, nil, nil, hwi.ErrUnsupportedInput
	}
	limit := uint32(raw.Len())

	global, err := readMap(r, limit)
	if err != nil {
		return nil, nil, nil, err
	}
	tx := p.UnsignedTx
	inputs := make([]kvMap, len(tx.TxIn))
	for i := range inputs {
		if inputs[i], err = readMap(r, limit); err != nil {
			return nil, nil, nil, err
		}
	}
	outputs := make([]kvMap, len(tx.TxOut))
	for i := range outputs {
		if outputs[i], err = readMap(r, limit); err != nil {
			return nil, nil, nil, err
		}
	}

	delete(global, string([]byte{psbtGlobalUnsignedTx}))
	global.set(psbtGlobalTxVersion, le32(uint32(tx.Version)))
	global.set(psbtGlobalFallbackLocktime, le32(tx.LockTime))
	global.set(psbtGlobalInputCount, varint(uint64(len(tx.TxIn))))
	global.set(psbtGlobalOutputCount, varint(uint64(len(tx.TxOut))))
	global.set(psbtGlobalVersion, le32(2))

	for i, in := range tx.TxIn {
		txid := in.PreviousOutPoint.Hash
		inputs[i].set(psbtInPreviousTxid, txid[:])
		inputs[i].set(psbtInOutputIndex, le32(in.PreviousOutPoint.Index))
		inputs[i].set(psbtInSequence, le32(in.Sequence))
	}
	for i, out := range tx.TxOut {
		outputs[i].set(psbtOutAmount, binary.LittleEndian.AppendUint64(nil, uint64(out.Value)))
		outputs[i].set(psbtOutScript, out.PkScript)
	}
	return global, inputs, outputs, nil
}

func (m kvMap) set(keyType byte, value []byte) {
	m[string([]byte{keyType})] = value
}

// readMap reads key-value pairs up to the 0x00 separator.
func readMap(r io.Reader, limit uint32) (kvMap, error) {
	m := kvMap{}
	for {
		key, err := wire.ReadVarBytes(r, 0, limit, "psbt key")
		if err != nil {
			return nil, hwi.ErrUnsupportedInput
		}
		if len(key) == 0 {
			return m, nil
		}
		value, err := wire.ReadVarBytes(r, 0, limit, "psbt value")
		if err != nil {
			return nil, hwi.ErrUnsupportedInput
		}
		m[string(key)] = value
	}
}

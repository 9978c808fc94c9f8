// Copyright (C) 2019-2026, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package specter

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	hwi "github.com/luxfi/hwi-go"
)

const h = hwi.HardenedKeyStart

func testDescriptor(f *fakeSpecter) string {
	account := hwi.DerivationPath{48 + h, 1 + h, h, 2 + h}
	return "wsh(sortedmulti(1,[" + f.fingerprint().String() + "/48'/1'/0'/2']" + f.xpub(account) + "/**))"
}

func TestGetVersionUnimplemented(t *testing.T) {
	dev, f := startFake(t)
	_, err := dev.GetVersion(context.Background())
	require.ErrorIs(t, err, hwi.ErrUnimplementedMethod)
	require.Empty(t, f.sent())
	require.Equal(t, hwi.Idle, dev.Session().State())
}

func TestFingerprint(t *testing.T) {
	dev, f := startFake(t)
	require.NoError(t, dev.IsConnected(context.Background()))

	fp, err := dev.GetMasterFingerprint(context.Background())
	require.NoError(t, err)
	require.Equal(t, f.fingerprint(), fp)
	require.Equal(t, []string{"fingerprint"}, f.sent())
}

func TestGetExtendedPubkey(t *testing.T) {
	dev, f := startFake(t)
	path := hwi.DerivationPath{84 + h, 1 + h, h}

	key, err := dev.GetExtendedPubkey(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, f.xpub(path), key.String())
	require.Equal(t, []string{"xpub m/84'/1'/0'"}, f.sent())

	_, err = dev.GetExtendedPubkey(context.Background(), make(hwi.DerivationPath, 9))
	require.ErrorIs(t, err, hwi.ErrUnsupportedInput)
	require.Len(t, f.sent(), 1)
}

func TestRegisterWallet(t *testing.T) {
	dev, f := startFake(t)
	desc := testDescriptor(f)

	id, err := dev.RegisterWallet(context.Background(), "vault", desc)
	require.NoError(t, err)
	require.Nil(t, id)
	require.Equal(t, "addwallet vault&"+desc, f.sent()[0])

	id, err = dev.RegisterWallet(context.Background(), "vault", desc)
	require.NoError(t, err, "already registered counts as success")
	require.Nil(t, id)
}

func TestRegisterWalletErrors(t *testing.T) {
	dev, f := startFake(t)
	desc := testDescriptor(f)

	_, err := dev.RegisterWallet(context.Background(), "a&b", desc)
	require.Equal(t, hwi.InvalidParameter, hwi.KindOf(err))

	_, err = dev.RegisterWallet(context.Background(), "vault", "tr(")
	require.Equal(t, hwi.ParsingPolicy, hwi.KindOf(err))
	require.Empty(t, f.sent())

	f.set(func(f *fakeSpecter) { f.cancel = true })
	_, err = dev.RegisterWallet(context.Background(), "vault", desc)
	require.EqualError(t, err, "User cancelled")
	require.Equal(t, hwi.Device, hwi.KindOf(err))
}

func TestDisplayAddress(t *testing.T) {
	dev, f := startFake(t)

	err := dev.DisplayAddress(context.Background(), hwi.Miniscript{Index: 4})
	require.ErrorIs(t, err, hwi.ErrMissingPolicy)
	require.Empty(t, f.sent())

	require.NoError(t, dev.DisplayAddress(context.Background(), hwi.P2TR{Path: hwi.DerivationPath{86 + h, 1 + h, h, 0, 1}}))
	require.Equal(t, "showaddr tr m/86'/1'/0'/0/1", f.sent()[0])

	_, err = dev.RegisterWallet(context.Background(), "vault", testDescriptor(f))
	require.NoError(t, err)
	require.NoError(t, dev.DisplayAddress(context.Background(), hwi.Miniscript{Index: 4, Change: true}))

	sent := f.sent()
	last := sent[len(sent)-1]
	require.True(t, strings.HasPrefix(last, "showdescraddr wsh(sortedmulti(1,"))
	require.Contains(t, last, "/1/4))#")
}

func TestDeviceErrorMessage(t *testing.T) {
	dev, f := startFake(t)
	f.set(func(f *fakeSpecter) { f.reply["fingerprint"] = "error: Device is locked" })

	_, err := dev.GetMasterFingerprint(context.Background())
	require.EqualError(t, err, "Device is locked")
	require.Equal(t, hwi.Idle, dev.Session().State())
}

func TestMissingACK(t *testing.T) {
	dev, f := startFake(t)
	f.set(func(f *fakeSpecter) { f.noACK = true })

	_, err := dev.GetMasterFingerprint(context.Background())
	require.Equal(t, hwi.Device, hwi.KindOf(err))
}

func newTestPacket(t *testing.T, fp hwi.Fingerprint, inputs int) *psbt.Packet {
	t.Helper()
	priv, _ := btcec.PrivKeyFromBytes(bytes.Repeat([]byte{9}, 32))
	xonly := schnorr.SerializePubKey(priv.PubKey())
	script := append([]byte{0x51, 0x20}, xonly...)

	outpoints := make([]*wire.OutPoint, inputs)
	sequences := make([]uint32, inputs)
	for i := range outpoints {
		outpoints[i] = wire.NewOutPoint(&chainhash.Hash{byte(i + 1)}, 0)
		sequences[i] = wire.MaxTxInSequenceNum
	}
	p, err := psbt.New(outpoints, []*wire.TxOut{wire.NewTxOut(500, script)}, 2, 0, sequences)
	require.NoError(t, err)
	for i := range p.Inputs {
		p.Inputs[i].WitnessUtxo = wire.NewTxOut(1000, script)
		p.Inputs[i].TaprootInternalKey = xonly
		p.Inputs[i].TaprootBip32Derivation = []*psbt.TaprootBip32Derivation{{
			XOnlyPubKey:          xonly,
			MasterKeyFingerprint: fp.Uint32(),
			Bip32Path:            []uint32{86 + h, 1 + h, h, 0, uint32(i)},
		}}
	}
	return p
}

func TestSignTx(t *testing.T) {
	dev, f := startFake(t)
	p := newTestPacket(t, f.fingerprint(), 2)

	require.NoError(t, dev.SignTx(context.Background(), p))
	require.Equal(t, bytes.Repeat([]byte{1}, 64), p.Inputs[0].TaprootKeySpendSig)
	require.Equal(t, bytes.Repeat([]byte{2}, 64), p.Inputs[1].TaprootKeySpendSig)
}

func TestSignTxPartialIsRejected(t *testing.T) {
	dev, f := startFake(t)
	p := newTestPacket(t, f.fingerprint(), 2)
	f.set(func(f *fakeSpecter) { f.signs = []int{1} })

	err := dev.SignTx(context.Background(), p)
	require.ErrorIs(t, err, hwi.ErrDeviceDidNotSign)
	require.Empty(t, p.Inputs[0].TaprootKeySpendSig)
	require.Empty(t, p.Inputs[1].TaprootKeySpendSig)
}

func TestSignTxCancelled(t *testing.T) {
	dev, f := startFake(t)
	p := newTestPacket(t, f.fingerprint(), 1)
	f.set(func(f *fakeSpecter) { f.cancel = true })

	err := dev.SignTx(context.Background(), p)
	require.ErrorIs(t, err, hwi.ErrDeviceDidNotSign)
	require.Empty(t, p.Inputs[0].TaprootKeySpendSig)
}

func TestHangupDisconnects(t *testing.T) {
	dev, f := startFake(t)
	f.set(func(f *fakeSpecter) { f.hangup = true })

	_, err := dev.GetMasterFingerprint(context.Background())
	require.ErrorIs(t, err, hwi.ErrDeviceDisconnected)
	require.Equal(t, hwi.Disconnected, dev.Session().State())

	sent := len(f.sent())
	_, err = dev.GetExtendedPubkey(context.Background(), hwi.DerivationPath{84 + h})
	require.ErrorIs(t, err, hwi.ErrDeviceDisconnected)
	require.Len(t, f.sent(), sent)
}

func TestAbbreviate(t *testing.T) {
	require.Equal(t, "short", abbreviate("short"))
	long := abbreviate(strings.Repeat("a", 200))
	require.True(t, strings.HasSuffix(long, "(200 bytes)"))
}

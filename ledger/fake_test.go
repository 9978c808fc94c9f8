// Copyright (C) 2019-2026, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package ledger

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	hwi "github.com/luxfi/hwi-go"
)

// fakeApp answers APDUs the way the Bitcoin app does. Commands that need
// host data run as a coroutine that interrupts with client commands and
// resumes on each CONTINUE.
type fakeApp struct {
	t       *testing.T
	master  *hdkeychain.ExtendedKey
	app     string
	version string

	mu        sync.Mutex
	exchanges int
	unplugged bool
	reject    bool
	badID     bool
	yields    [][]byte
	last      command
	lastData  []byte

	// What the app read back from the host.
	name       string
	template   string
	keys       []string
	inputsSeen int
	requests   map[byte]int

	running bool
	out     chan []byte
	replies chan []byte
}

func newFakeApp(t *testing.T) *fakeApp {
	t.Helper()
	master, err := hdkeychain.NewMaster(bytes.Repeat([]byte{0x42}, 32), &chaincfg.TestNet3Params)
	require.NoError(t, err)
	return &fakeApp{
		t:        t,
		master:   master,
		app:      "Bitcoin Test",
		version:  "2.1.3",
		requests: map[byte]int{},
		out:      make(chan []byte),
		replies:  make(chan []byte),
	}
}

func (f *fakeApp) fingerprint() hwi.Fingerprint {
	pub, err := f.master.ECPubKey()
	require.NoError(f.t, err)
	var fp hwi.Fingerprint
	copy(fp[:], btcutil.Hash160(pub.SerializeCompressed())[:4])
	return fp
}

func (f *fakeApp) xpub(path hwi.DerivationPath) string {
	key := f.master
	for _, index := range path {
		var err error
		key, err = key.Derive(index)
		require.NoError(f.t, err)
	}
	pub, err := key.Neuter()
	require.NoError(f.t, err)
	return pub.String()
}

func (f *fakeApp) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.exchanges
}

func (f *fakeApp) unplug() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unplugged = true
}

func ok(data []byte) []byte {
	return append(append([]byte{}, data...), 0x90, 0x00)
}

func sw(code uint16) []byte {
	return binary.BigEndian.AppendUint16(nil, code)
}

func (f *fakeApp) Exchange(ctx context.Context, raw []byte) ([]byte, error) {
	f.mu.Lock()
	f.exchanges++
	if f.unplugged {
		f.mu.Unlock()
		return nil, io.EOF
	}
	c := command{cla: raw[0], ins: raw[1], p1: raw[2], p2: raw[3], data: raw[5:]}
	require.Equal(f.t, int(raw[4]), len(c.data))

	if c.cla == claFramework {
		running := f.running
		f.mu.Unlock()
		if c.ins != insContinue || !running {
			return sw(swClaNotSupported), nil
		}
		f.replies <- c.data
		return <-f.out, nil
	}
	if f.running {
		f.mu.Unlock()
		f.t.Errorf("command 0x%02x sent while another is interrupted", c.ins)
		return sw(swDenied), nil
	}
	f.last, f.lastData = c, c.data

	if c.cla == claDashboard && c.ins == insGetAppAndVersion {
		f.mu.Unlock()
		out := []byte{0x01, byte(len(f.app))}
		out = append(out, f.app...)
		out = append(out, byte(len(f.version)))
		out = append(out, f.version...)
		out = append(out, 0x01, 0x00)
		return ok(out), nil
	}
	if c.cla != claBitcoin {
		f.mu.Unlock()
		return sw(swClaNotSupported), nil
	}
	require.Equal(f.t, byte(protocolVersion), c.p2)

	var program func(data []byte) []byte
	switch c.ins {
	case insGetMasterFingerprint:
		f.mu.Unlock()
		fp := f.fingerprint()
		return ok(fp[:]), nil
	case insGetExtendedPubkey:
		f.mu.Unlock()
		n := int(c.data[1])
		path := make(hwi.DerivationPath, n)
		for i := range path {
			path[i] = binary.BigEndian.Uint32(c.data[2+4*i:])
		}
		return ok([]byte(f.xpub(path))), nil
	case insRegisterWallet:
		program = f.registerWallet
	case insGetWalletAddress:
		program = f.walletAddress
	case insSignPSBT:
		program = f.signPSBT
	default:
		f.mu.Unlock()
		return sw(swInsNotSupported), nil
	}

	f.running = true
	f.mu.Unlock()
	go func() {
		resp := program(c.data)
		f.mu.Lock()
		f.running = false
		f.mu.Unlock()
		f.out <- resp
	}()
	return <-f.out, nil
}

func (f *fakeApp) Close() error {
	return nil
}

// ask interrupts the host with a client command and waits for its reply.
func (f *fakeApp) ask(req []byte) []byte {
	f.mu.Lock()
	f.requests[req[0]]++
	f.mu.Unlock()
	f.out <- append(append([]byte{}, req...), 0xe0, 0x00)
	return <-f.replies
}

func (f *fakeApp) moreElements() ([][]byte, error) {
	resp := f.ask([]byte{ccGetMoreElements})
	if len(resp) < 2 || len(resp) != 2+int(resp[0])*int(resp[1]) {
		return nil, errors.New("malformed GET_MORE_ELEMENTS reply")
	}
	n, size := int(resp[0]), int(resp[1])
	out := make([][]byte, n)
	for i := range out {
		out[i] = resp[2+i*size : 2+(i+1)*size]
	}
	return out, nil
}

func (f *fakeApp) preimage(h chainhash.Hash) ([]byte, error) {
	resp := f.ask(append([]byte{ccGetPreimage, 0}, h[:]...))
	r := bytes.NewReader(resp)
	total, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return nil, err
	}
	n, err := r.ReadByte()
	if err != nil || int(n) != r.Len() {
		return nil, errors.New("malformed GET_PREIMAGE reply")
	}
	out := make([]byte, n)
	_, _ = io.ReadFull(r, out)
	for uint64(len(out)) < total {
		more, err := f.moreElements()
		if err != nil {
			return nil, err
		}
		for _, b := range more {
			out = append(out, b...)
		}
	}
	if chainhash.HashH(out) != h {
		return nil, errors.New("preimage does not hash to the request")
	}
	return out, nil
}

// provenRoot folds a bottom-up proof into the root of a tree of size leaves.
func provenRoot(size, index int, leaf chainhash.Hash, proof []chainhash.Hash) (chainhash.Hash, bool) {
	if size == 1 {
		return leaf, len(proof) == 0
	}
	if len(proof) == 0 {
		return chainhash.Hash{}, false
	}
	sibling, rest := proof[len(proof)-1], proof[:len(proof)-1]
	p := splitPoint(size)
	if index < p {
		left, ok := provenRoot(p, index, leaf, rest)
		return combineHashes(left, sibling), ok
	}
	right, ok := provenRoot(size-p, index-p, leaf, rest)
	return combineHashes(sibling, right), ok
}

func (f *fakeApp) leaf(root chainhash.Hash, size, index int) (chainhash.Hash, error) {
	var req bytes.Buffer
	req.WriteByte(ccGetMerkleLeafProof)
	req.Write(root[:])
	_ = wire.WriteVarInt(&req, 0, uint64(size))
	_ = wire.WriteVarInt(&req, 0, uint64(index))
	resp := f.ask(req.Bytes())

	var leaf chainhash.Hash
	if len(resp) < 34 || len(resp) != 34+32*int(resp[33]) {
		return leaf, errors.New("malformed GET_MERKLE_LEAF_PROOF reply")
	}
	copy(leaf[:], resp)
	total := int(resp[32])
	var proof []chainhash.Hash
	for i := 34; i < len(resp); i += 32 {
		var h chainhash.Hash
		copy(h[:], resp[i:])
		proof = append(proof, h)
	}
	for len(proof) < total {
		more, err := f.moreElements()
		if err != nil {
			return leaf, err
		}
		for _, b := range more {
			var h chainhash.Hash
			copy(h[:], b)
			proof = append(proof, h)
		}
	}
	if got, ok := provenRoot(size, index, leaf, proof); !ok || got != root {
		return leaf, fmt.Errorf("proof of leaf %d does not match the root", index)
	}
	return leaf, nil
}

func (f *fakeApp) listElement(root chainhash.Hash, size, index int) ([]byte, error) {
	leaf, err := f.leaf(root, size, index)
	if err != nil {
		return nil, err
	}
	pre, err := f.preimage(leaf)
	if err != nil {
		return nil, err
	}
	if len(pre) == 0 || pre[0] != 0 {
		return nil, errors.New("list element without its 0x00 prefix")
	}
	return pre[1:], nil
}

// mapValue looks key up in a merkleized map.
func (f *fakeApp) mapValue(keysRoot, valuesRoot chainhash.Hash, size int, key []byte) ([]byte, error) {
	h := elementHash(key)
	resp := f.ask(append(append([]byte{ccGetMerkleLeafIndex}, keysRoot[:]...), h[:]...))
	if len(resp) < 2 || resp[0] != 1 {
		return nil, fmt.Errorf("key %x not in map", key)
	}
	index, err := wire.ReadVarInt(bytes.NewReader(resp[1:]), 0)
	if err != nil {
		return nil, err
	}
	return f.listElement(valuesRoot, size, int(index))
}

func readHash(r *bytes.Reader) chainhash.Hash {
	var h chainhash.Hash
	_, _ = io.ReadFull(r, h[:])
	return h
}

// readWallet parses a serialized policy and fetches its template and keys.
func (f *fakeApp) readWallet(serialized []byte) error {
	r := bytes.NewReader(serialized)
	if v, _ := r.ReadByte(); v != walletPolicyVersion {
		return fmt.Errorf("wallet policy version %d", v)
	}
	n, _ := r.ReadByte()
	name := make([]byte, n)
	_, _ = io.ReadFull(r, name)
	if _, err := wire.ReadVarInt(r, 0); err != nil {
		return err
	}
	templateHash := readHash(r)
	nKeys, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return err
	}
	keysRoot := readHash(r)
	if r.Len() != 0 {
		return errors.New("trailing bytes after wallet policy")
	}

	template, err := f.preimage(templateHash)
	if err != nil {
		return err
	}
	keys := make([]string, nKeys)
	for i := range keys {
		k, err := f.listElement(keysRoot, int(nKeys), i)
		if err != nil {
			return err
		}
		keys[i] = string(k)
	}

	f.mu.Lock()
	f.name, f.template, f.keys = string(name), string(template), keys
	f.mu.Unlock()
	return nil
}

func fakeHMAC(id []byte) [32]byte {
	return chainhash.HashH(append([]byte("hmac"), id...))
}

func (f *fakeApp) fail(err error) []byte {
	f.t.Errorf("fake app: %v", err)
	return sw(swWrongData)
}

func (f *fakeApp) registerWallet(data []byte) []byte {
	r := bytes.NewReader(data)
	n, err := wire.ReadVarInt(r, 0)
	if err != nil || int(n) != r.Len() {
		return sw(swWrongData)
	}
	serialized := data[len(data)-int(n):]
	if err := f.readWallet(serialized); err != nil {
		return f.fail(err)
	}
	if f.reject {
		return sw(swDenied)
	}
	id := chainhash.HashH(serialized)
	hmac := fakeHMAC(id[:])
	if f.badID {
		id[0] ^= 0xff
	}
	return ok(append(id[:], hmac[:]...))
}

func (f *fakeApp) walletAddress(data []byte) []byte {
	if len(data) != 70 {
		return sw(swWrongData)
	}
	var id chainhash.Hash
	copy(id[:], data[1:33])
	serialized, err := f.preimage(id)
	if err != nil {
		return f.fail(err)
	}
	if err := f.readWallet(serialized); err != nil {
		return f.fail(err)
	}
	var zero [32]byte
	hmac := fakeHMAC(id[:])
	if !bytes.Equal(data[33:65], zero[:]) && !bytes.Equal(data[33:65], hmac[:]) {
		return sw(swDenied)
	}
	return ok([]byte("tb1qfakeaddress"))
}

func (f *fakeApp) signPSBT(data []byte) []byte {
	r := bytes.NewReader(data)
	globalSize, _ := wire.ReadVarInt(r, 0)
	globalKeys, globalValues := readHash(r), readHash(r)
	nInputs, _ := wire.ReadVarInt(r, 0)
	inputsRoot := readHash(r)
	if _, err := wire.ReadVarInt(r, 0); err != nil {
		return sw(swWrongData)
	}
	_ = readHash(r)
	id := readHash(r)

	serialized, err := f.preimage(id)
	if err != nil {
		return f.fail(err)
	}
	if err := f.readWallet(serialized); err != nil {
		return f.fail(err)
	}

	count, err := f.mapValue(globalKeys, globalValues, int(globalSize), []byte{psbtGlobalInputCount})
	if err != nil {
		return f.fail(err)
	}
	if !bytes.Equal(count, varint(nInputs)) {
		return f.fail(fmt.Errorf("input count %x, committed %d", count, nInputs))
	}
	for i := 0; i < int(nInputs); i++ {
		commitment, err := f.listElement(inputsRoot, int(nInputs), i)
		if err != nil {
			return f.fail(err)
		}
		cr := bytes.NewReader(commitment)
		size, _ := wire.ReadVarInt(cr, 0)
		keys, values := readHash(cr), readHash(cr)
		if _, err := f.mapValue(keys, values, int(size), []byte{psbtInPreviousTxid}); err != nil {
			return f.fail(err)
		}
		f.mu.Lock()
		f.inputsSeen++
		f.mu.Unlock()
	}

	if f.reject {
		return sw(swDenied)
	}
	for _, y := range f.yields {
		f.ask(append([]byte{ccYield}, y...))
	}
	return ok(nil)
}

// sigRecord encodes one yielded signature.
func sigRecord(input uint64, key, sig []byte) []byte {
	var buf bytes.Buffer
	_ = wire.WriteVarInt(&buf, 0, input)
	buf.WriteByte(byte(len(key)))
	buf.Write(key)
	buf.Write(sig)
	return buf.Bytes()
}

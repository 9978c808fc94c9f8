// Copyright (C) 2019-2026, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package ledger

import (
	"bytes"
	"sort"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	hwi "github.com/luxfi/hwi-go"
)

// Client commands the app sends with status 0xE000 while it executes a
// request. The host answers each one with CONTINUE.
const (
	ccYield              = 0x10
	ccGetPreimage        = 0x40
	ccGetMerkleLeafProof = 0x41
	ccGetMerkleLeafIndex = 0x42
	ccGetMoreElements    = 0xa0
)

// maxResponse is the largest payload a CONTINUE apdu carries.
const maxResponse = 255

// clientInterpreter answers the app's requests for data it only holds
// commitments to: preimages of hashes, merkle proofs and leaf positions.
// Answers too long for one apdu leave the rest queued for GET_MORE_ELEMENTS.
type clientInterpreter struct {
	preimages map[chainhash.Hash][]byte
	trees     map[chainhash.Hash]*merkleTree
	queue     [][]byte
	yielded   [][]byte
}

func newClientInterpreter() *clientInterpreter {
	return &clientInterpreter{
		preimages: make(map[chainhash.Hash][]byte),
		trees:     make(map[chainhash.Hash]*merkleTree),
	}
}

func (c *clientInterpreter) addPreimage(b []byte) {
	c.preimages[chainhash.HashH(b)] = b
}

// addList makes the elements and their merkle tree known and returns the root.
func (c *clientInterpreter) addList(elements [][]byte) chainhash.Hash {
	leaves := make([]chainhash.Hash, len(elements))
	for i, e := range elements {
		prefixed := append([]byte{0x00}, e...)
		c.addPreimage(prefixed)
		leaves[i] = chainhash.HashH(prefixed)
	}
	t := newMerkleTree(leaves)
	root := t.root()
	c.trees[root] = t
	return root
}

// addMapping makes a merkleized key-value map known.
func (c *clientInterpreter) addMapping(m kvMap) {
	keys, values := m.sorted()
	c.addList(keys)
	c.addList(values)
}

// addWallet makes everything the app may ask about a wallet policy known.
func (c *clientInterpreter) addWallet(w walletPolicy) {
	c.addList(w.keyBytes())
	c.addPreimage(w.serialize())
	c.addPreimage([]byte(w.template))
}

func (c *clientInterpreter) execute(req []byte) ([]byte, error) {
	if len(req) == 0 {
		return nil, hwi.DeviceError("empty client command")
	}
	switch req[0] {
	case ccYield:
		c.yielded = append(c.yielded, append([]byte(nil), req[1:]...))
		return nil, nil
	case ccGetPreimage:
		return c.getPreimage(req[1:])
	case ccGetMerkleLeafProof:
		return c.getMerkleLeafProof(req[1:])
	case ccGetMerkleLeafIndex:
		return c.getMerkleLeafIndex(req[1:])
	case ccGetMoreElements:
		return c.getMoreElements()
	default:
		return nil, hwi.DeviceErrorf("unknown client command 0x%02x", req[0])
	}
}

func (c *clientInterpreter) getPreimage(req []byte) ([]byte, error) {
	if len(req) != 1+chainhash.HashSize || req[0] != 0 {
		return nil, hwi.DeviceError("malformed GET_PREIMAGE")
	}
	var h chainhash.Hash
	copy(h[:], req[1:])
	preimage, ok := c.preimages[h]
	if !ok {
		return nil, hwi.DeviceErrorf("preimage of %x requested but unknown", h[:])
	}

	var out bytes.Buffer
	_ = wire.WriteVarInt(&out, 0, uint64(len(preimage)))
	n := min(maxResponse-out.Len()-1, len(preimage))
	out.WriteByte(byte(n))
	out.Write(preimage[:n])
	for i := n; i < len(preimage); i++ {
		c.queue = append(c.queue, preimage[i:i+1])
	}
	return out.Bytes(), nil
}

func (c *clientInterpreter) getMerkleLeafProof(req []byte) ([]byte, error) {
	if len(req) < chainhash.HashSize {
		return nil, hwi.DeviceError("malformed GET_MERKLE_LEAF_PROOF")
	}
	var root chainhash.Hash
	copy(root[:], req)
	r := bytes.NewReader(req[chainhash.HashSize:])
	size, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return nil, hwi.DeviceError("malformed GET_MERKLE_LEAF_PROOF")
	}
	index, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return nil, hwi.DeviceError("malformed GET_MERKLE_LEAF_PROOF")
	}

	t, ok := c.trees[root]
	if !ok || uint64(t.size()) != size || index >= size {
		return nil, hwi.DeviceErrorf("proof requested for unknown tree %x", root[:])
	}
	proof := t.proof(int(index))
	n := min((maxResponse-chainhash.HashSize-2)/chainhash.HashSize, len(proof))

	var out bytes.Buffer
	out.Write(t.leaves[index][:])
	out.WriteByte(byte(len(proof)))
	out.WriteByte(byte(n))
	for _, h := range proof[:n] {
		out.Write(h[:])
	}
	for _, h := range proof[n:] {
		c.queue = append(c.queue, append([]byte(nil), h[:]...))
	}
	return out.Bytes(), nil
}

func (c *clientInterpreter) getMerkleLeafIndex(req []byte) ([]byte, error) {
	if len(req) != 2*chainhash.HashSize {
		return nil, hwi.DeviceError("malformed GET_MERKLE_LEAF_INDEX")
	}
	var root, leaf chainhash.Hash
	copy(root[:], req)
	copy(leaf[:], req[chainhash.HashSize:])
	t, ok := c.trees[root]
	if !ok {
		return nil, hwi.DeviceErrorf("index requested in unknown tree %x", root[:])
	}

	var out bytes.Buffer
	index, found := t.indexOf(leaf)
	out.WriteByte(boolByte(found))
	_ = wire.WriteVarInt(&out, 0, uint64(index))
	return out.Bytes(), nil
}

// getMoreElements drains queued elements of equal length.
func (c *clientInterpreter) getMoreElements() ([]byte, error) {
	if len(c.queue) == 0 {
		return nil, hwi.DeviceError("GET_MORE_ELEMENTS with nothing queued")
	}
	size := len(c.queue[0])
	var elements [][]byte
	for len(c.queue) > 0 && len(c.queue[0]) == size && (len(elements)+1)*size <= maxResponse-2 {
		elements = append(elements, c.queue[0])
		c.queue = c.queue[1:]
	}
	out := []byte{byte(len(elements)), byte(size)}
	for _, e := range elements {
		out = append(out, e...)
	}
	return out, nil
}

// kvMap is one PSBT map keyed by the raw key bytes (type and key data).
type kvMap map[string][]byte

// sorted returns keys and values in key order.
func (m kvMap) sorted() (keys, values [][]byte) {
	ks := make([]string, 0, len(m))
	for k := range m {
		ks = append(ks, k)
	}
	sort.Strings(ks)
	for _, k := range ks {
		keys = append(keys, []byte(k))
		values = append(values, m[k])
	}
	return keys, values
}

// commitment is varint(len) || keys root || values root.
func (m kvMap) commitment() []byte {
	keys, values := m.sorted()
	var out bytes.Buffer
	_ = wire.WriteVarInt(&out, 0, uint64(len(m)))
	kr, vr := listRoot(keys), listRoot(values)
	out.Write(kr[:])
	out.Write(vr[:])
	return out.Bytes()
}

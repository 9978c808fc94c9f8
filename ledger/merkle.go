// Copyright (C) 2019-2026, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package ledger

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// elementHash is the leaf hash of a list element: sha256(0x00 || element).
func elementHash(element []byte) chainhash.Hash {
	return chainhash.HashH(append([]byte{0x00}, element...))
}

func combineHashes(left, right chainhash.Hash) chainhash.Hash {
	buf := make([]byte, 0, 1+2*chainhash.HashSize)
	buf = append(buf, 0x01)
	buf = append(buf, left[:]...)
	buf = append(buf, right[:]...)
	return chainhash.HashH(buf)
}

// splitPoint is the size of the left subtree of a tree with n > 1 leaves:
// the largest power of two strictly below n.
func splitPoint(n int) int {
	p := 1
	for p*2 < n {
		p *= 2
	}
	return p
}

// merkleTree commits to a list of leaf hashes the way the Bitcoin app
// expects. The left subtree of every node is complete.
type merkleTree struct {
	leaves []chainhash.Hash
}

func newMerkleTree(leaves []chainhash.Hash) *merkleTree {
	return &merkleTree{leaves: leaves}
}

func (t *merkleTree) size() int {
	return len(t.leaves)
}

// root of an empty tree is all zeros.
func (t *merkleTree) root() chainhash.Hash {
	return subtreeRoot(t.leaves)
}

func subtreeRoot(leaves []chainhash.Hash) chainhash.Hash {
	switch len(leaves) {
	case 0:
		return chainhash.Hash{}
	case 1:
		return leaves[0]
	}
	p := splitPoint(len(leaves))
	return combineHashes(subtreeRoot(leaves[:p]), subtreeRoot(leaves[p:]))
}

// proof returns the sibling hashes from the leaf at index up to the root.
func (t *merkleTree) proof(index int) []chainhash.Hash {
	return subtreeProof(t.leaves, index)
}

func subtreeProof(leaves []chainhash.Hash, index int) []chainhash.Hash {
	if len(leaves) <= 1 {
		return nil
	}
	p := splitPoint(len(leaves))
	if index < p {
		return append(subtreeProof(leaves[:p], index), subtreeRoot(leaves[p:]))
	}
	return append(subtreeProof(leaves[p:], index-p), subtreeRoot(leaves[:p]))
}

func (t *merkleTree) indexOf(leaf chainhash.Hash) (int, bool) {
	for i, l := range t.leaves {
		if l == leaf {
			return i, true
		}
	}
	return 0, false
}

// listRoot is the root over the element hashes of elements.
func listRoot(elements [][]byte) chainhash.Hash {
	leaves := make([]chainhash.Hash, len(elements))
	for i, e := range elements {
		leaves[i] = elementHash(e)
	}
	return subtreeRoot(leaves)
}

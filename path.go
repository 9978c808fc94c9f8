// Copyright (C) 2019-2026, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package hwi

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
)

const (
	// HardenedKeyStart is the first hardened child index.
	HardenedKeyStart = hdkeychain.HardenedKeyStart

	// MaxPathDepth is the deepest derivation any backend accepts.
	MaxPathDepth = 8

	purposeBIP86 = 86 + HardenedKeyStart
)

// DerivationPath is an ordered list of BIP32 child indexes from the master key.
type DerivationPath []uint32

// ParseDerivationPath parses "m/86'/0'/0'/0/1". Hardened steps may be marked
// with ', h or H. The leading "m" is optional.
func ParseDerivationPath(s string) (DerivationPath, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "m")
	s = strings.TrimPrefix(s, "/")
	if s == "" {
		return DerivationPath{}, nil
	}

	parts := strings.Split(s, "/")
	path := make(DerivationPath, 0, len(parts))
	for _, part := range parts {
		hardened := false
		if n := len(part); n > 0 && strings.ContainsAny(part[n-1:], "'hH") {
			hardened = true
			part = part[:n-1]
		}
		index, err := strconv.ParseUint(part, 10, 32)
		if err != nil || index >= HardenedKeyStart {
			return nil, InvalidParam("path", fmt.Sprintf("bad path element %q", part))
		}
		if hardened {
			index += HardenedKeyStart
		}
		path = append(path, uint32(index))
	}
	return path, nil
}

func (p DerivationPath) String() string {
	var b strings.Builder
	b.WriteString("m")
	for _, index := range p {
		b.WriteByte('/')
		if index >= HardenedKeyStart {
			b.WriteString(strconv.FormatUint(uint64(index-HardenedKeyStart), 10))
			b.WriteByte('\'')
		} else {
			b.WriteString(strconv.FormatUint(uint64(index), 10))
		}
	}
	return b.String()
}

// Child returns a copy of p extended with the given indexes.
func (p DerivationPath) Child(indexes ...uint32) DerivationPath {
	out := make(DerivationPath, 0, len(p)+len(indexes))
	out = append(out, p...)
	return append(out, indexes...)
}

func isHardened(index uint32) bool {
	return index >= HardenedKeyStart
}

// CheckBIP86 checks that path has the BIP86 single key shape
// m/86'/coin'/account'/change/index with coin 0' or 1'. With full unset only
// the account level prefix is required and deeper elements are optional.
func CheckBIP86(path DerivationPath, full bool) error {
	if full && len(path) != 5 {
		return ErrUnsupportedInput
	}
	if len(path) < 3 || len(path) > 5 {
		return ErrUnsupportedInput
	}
	if path[0] != purposeBIP86 {
		return ErrUnsupportedInput
	}
	if coin := path[1]; coin != HardenedKeyStart && coin != HardenedKeyStart+1 {
		return ErrUnsupportedInput
	}
	if !isHardened(path[2]) {
		return ErrUnsupportedInput
	}
	if len(path) > 3 && path[3] > 1 {
		return ErrUnsupportedInput
	}
	if len(path) > 4 && isHardened(path[4]) {
		return ErrUnsupportedInput
	}
	return nil
}

// CheckXpubPath applies the rules every backend shares for GetExtendedPubkey.
func CheckXpubPath(path DerivationPath) error {
	if len(path) > MaxPathDepth {
		return ErrUnsupportedInput
	}
	if len(path) > 0 && path[0] == purposeBIP86 {
		return CheckBIP86(path, false)
	}
	return nil
}

// Fingerprint is the first four bytes of HASH160 of the master public key.
type Fingerprint [4]byte

// ParseFingerprint decodes eight hex characters.
func ParseFingerprint(s string) (Fingerprint, error) {
	var fp Fingerprint
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != len(fp) {
		return fp, InvalidParam("fingerprint", fmt.Sprintf("want 8 hex characters, got %q", s))
	}
	copy(fp[:], b)
	return fp, nil
}

func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// Uint32 returns the fingerprint as PSBT derivation records store it.
func (f Fingerprint) Uint32() uint32 {
	return binary.LittleEndian.Uint32(f[:])
}

// FingerprintFromUint32 is the inverse of Fingerprint.Uint32.
func FingerprintFromUint32(v uint32) Fingerprint {
	var fp Fingerprint
	binary.LittleEndian.PutUint32(fp[:], v)
	return fp
}

// PolicyID is the opaque token a device returns for a registered wallet.
type PolicyID [32]byte

func (id PolicyID) String() string {
	return hex.EncodeToString(id[:])
}

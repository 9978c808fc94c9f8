// Copyright (C) 2019-2026, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package simulator

import (
	"bytes"
	"crypto/sha256"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"

	"github.com/luxfi/hwi-go/policy"
)

var (
	keyPlaceholder = regexp.MustCompile(`@(\d+)/(\*\*|<(\d+);(\d+)>/\*)`)
	multiShape     = regexp.MustCompile(`^(sorted)?multi\((\d+),(@K(?:,@K)*)\)$`)
)

// childKey derives xpub/branch/index.
func childKey(xpub string, branch, index uint32) (*btcec.PublicKey, error) {
	key, err := hdkeychain.NewKeyFromString(xpub)
	if err != nil {
		return nil, err
	}
	if key, err = key.Derive(branch); err != nil {
		return nil, err
	}
	if key, err = key.Derive(index); err != nil {
		return nil, err
	}
	return key.ECPubKey()
}

// resolveKeys replaces every key of the template with @K and derives the
// keys, in order of appearance, at the receive or change branch.
func resolveKeys(desc *policy.Descriptor, change bool, index uint32) (string, []*btcec.PublicKey, bool) {
	var (
		pubs []*btcec.PublicKey
		ok   = true
	)
	shape := keyPlaceholder.ReplaceAllStringFunc(desc.Template, func(m string) string {
		sub := keyPlaceholder.FindStringSubmatch(m)
		i, _ := strconv.Atoi(sub[1])
		branch := "0"
		switch {
		case sub[2] == "**" && change:
			branch = "1"
		case sub[2] != "**" && change:
			branch = sub[4]
		case sub[2] != "**":
			branch = sub[3]
		}
		b, err := strconv.ParseUint(branch, 10, 31)
		if err != nil || i >= len(desc.Keys) {
			ok = false
			return m
		}
		pub, err := childKey(desc.Keys[i].XPub, uint32(b), index)
		if err != nil {
			ok = false
			return m
		}
		pubs = append(pubs, pub)
		return "@K"
	})
	return shape, pubs, ok
}

// policyAddress renders the address of desc at (change, index). It covers
// single key policies and multi or sortedmulti under wsh or sh(wsh); ok is
// false for every other shape.
func policyAddress(desc *policy.Descriptor, change bool, index uint32, net *chaincfg.Params) (string, bool) {
	shape, pubs, ok := resolveKeys(desc, change, index)
	if !ok || len(pubs) == 0 {
		return "", false
	}

	var (
		addr btcutil.Address
		err  error
	)
	switch shape {
	case "pkh(@K)":
		addr, err = btcutil.NewAddressPubKeyHash(btcutil.Hash160(pubs[0].SerializeCompressed()), net)
	case "wpkh(@K)":
		addr, err = btcutil.NewAddressWitnessPubKeyHash(btcutil.Hash160(pubs[0].SerializeCompressed()), net)
	case "sh(wpkh(@K))":
		addr, err = nestedWitness(net)(btcutil.NewAddressWitnessPubKeyHash(btcutil.Hash160(pubs[0].SerializeCompressed()), net))
	case "tr(@K)":
		output := txscript.ComputeTaprootKeyNoScript(pubs[0])
		addr, err = btcutil.NewAddressTaproot(schnorr.SerializePubKey(output), net)
	default:
		addr, err = multisigAddress(shape, pubs, net)
	}
	if err != nil || addr == nil {
		return "", false
	}
	return addr.EncodeAddress(), true
}

func multisigAddress(shape string, pubs []*btcec.PublicKey, net *chaincfg.Params) (btcutil.Address, error) {
	nested := strings.HasPrefix(shape, "sh(wsh(")
	inner, found := strings.CutPrefix(shape, "wsh(")
	if nested {
		inner, found = strings.CutPrefix(shape, "sh(wsh(")
		inner, found = strings.CutSuffix(inner, "))")
	} else if found {
		inner, found = strings.CutSuffix(inner, ")")
	}
	m := multiShape.FindStringSubmatch(inner)
	if !found || m == nil {
		return nil, nil
	}
	threshold, _ := strconv.Atoi(m[2])

	if m[1] == "sorted" {
		sort.Slice(pubs, func(i, j int) bool {
			return bytes.Compare(pubs[i].SerializeCompressed(), pubs[j].SerializeCompressed()) < 0
		})
	}
	keys := make([]*btcutil.AddressPubKey, len(pubs))
	for i, pub := range pubs {
		k, err := btcutil.NewAddressPubKey(pub.SerializeCompressed(), net)
		if err != nil {
			return nil, err
		}
		keys[i] = k
	}
	script, err := txscript.MultiSigScript(keys, threshold)
	if err != nil {
		return nil, err
	}
	hash := sha256.Sum256(script)
	wsh, err := btcutil.NewAddressWitnessScriptHash(hash[:], net)
	if nested {
		return nestedWitness(net)(wsh, err)
	}
	return wsh, err
}

// nestedWitness wraps a witness program in P2SH.
func nestedWitness(net *chaincfg.Params) func(btcutil.Address, error) (btcutil.Address, error) {
	return func(addr btcutil.Address, err error) (btcutil.Address, error) {
		if err != nil {
			return nil, err
		}
		script, err := txscript.PayToAddrScript(addr)
		if err != nil {
			return nil, err
		}
		return btcutil.NewAddressScriptHash(script, net)
	}
}

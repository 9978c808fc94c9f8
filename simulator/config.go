// Copyright (C) 2019-2026, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package simulator

import (
	"time"

	"github.com/btcsuite/btcd/chaincfg"

	hwi "github.com/luxfi/hwi-go"
)

// PromptKind names what the user is asked to approve.
type PromptKind int

const (
	PromptRegister PromptKind = iota
	PromptSign
)

func (k PromptKind) String() string {
	switch k {
	case PromptRegister:
		return "register"
	case PromptSign:
		return "sign"
	default:
		return "unknown"
	}
}

// Prompt is one on-screen confirmation.
type Prompt struct {
	Kind PromptKind
	Text string
}

// Config describes the simulated device.
type Config struct {
	// Kind is reported by DeviceKind.
	Kind hwi.DeviceKind
	// Seed is the BIP32 seed, 16 to 64 bytes. An empty seed simulates a
	// device that was never initialized.
	Seed    []byte
	Network *chaincfg.Params
	Version hwi.Version

	// PolicySupport unset makes RegisterWallet fail with
	// ErrUnsupportedVersion, like firmware predating wallet policies.
	PolicySupport bool
	// PolicyIDs unset makes RegisterWallet return a nil id.
	PolicyIDs bool

	// Confirm answers every prompt. Nil approves everything.
	Confirm func(Prompt) bool
	// Latency is added to every round trip.
	Latency time.Duration
	// StoragePath, when set, is a bbolt file keeping registered policies
	// across handles.
	StoragePath string
	Timeouts    hwi.Timeouts
}

// DefaultConfig is a policy capable testnet device with the given seed.
func DefaultConfig(seed []byte) Config {
	return Config{
		Kind:          hwi.LedgerSimulator,
		Seed:          seed,
		Network:       &chaincfg.TestNet3Params,
		Version:       hwi.Version{Major: 2, Minor: 1, Patch: 0},
		PolicySupport: true,
		PolicyIDs:     true,
		Timeouts:      hwi.DefaultTimeouts,
	}
}

// ApproveAll confirms every prompt.
func ApproveAll(Prompt) bool { return true }

// RejectAll declines every prompt.
func RejectAll(Prompt) bool { return false }

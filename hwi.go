// Copyright (C) 2019-2026, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

// Package hwi is the common Hardware Wallet Interface: one contract that every
// signing device backend implements, whatever its wire protocol.
//
// A handle is bound to one device for its lifetime and serves one call at a
// time. Once the link is lost every call fails with ErrDeviceDisconnected
// without touching the transport. Only DisplayAddress and SignTx may wait on
// the user; the other calls are bounded by Timeouts.Query.
package hwi

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/btcutil/psbt"
)

// HWI is implemented by every backend adapter.
type HWI interface {
	// DeviceKind never blocks and never fails.
	DeviceKind() DeviceKind
	// IsConnected checks that the device is connected but not necessarily
	// available.
	IsConnected(ctx context.Context) error
	GetVersion(ctx context.Context) (Version, error)
	// GetMasterFingerprint fails with ErrUnsupportedInput when the device has
	// no seed.
	GetMasterFingerprint(ctx context.Context) (Fingerprint, error)
	// GetExtendedPubkey returns the xpub the device derives at path.
	GetExtendedPubkey(ctx context.Context, path DerivationPath) (*hdkeychain.ExtendedKey, error)
	// RegisterWallet teaches the device a named policy descriptor. The
	// returned id is nil for devices that do not issue one.
	RegisterWallet(ctx context.Context, name, policy string) (*PolicyID, error)
	// DisplayAddress returns once the device renders the address.
	DisplayAddress(ctx context.Context, script AddressScript) error
	// SignTx attaches the device's signatures to tx, all of them or none.
	SignTx(ctx context.Context, tx *psbt.Packet) error
	// Close drops the handle.
	Close() error
}

const maxWalletNameLen = 64

// CheckWalletName validates the name argument of RegisterWallet.
func CheckWalletName(name string) error {
	if name == "" {
		return InvalidParam("name", "must not be empty")
	}
	if len(name) > maxWalletNameLen {
		return InvalidParam("name", fmt.Sprintf("longer than %d bytes", maxWalletNameLen))
	}
	for _, c := range []byte(name) {
		if c < 0x20 || c > 0x7e {
			return InvalidParam("name", "must be printable ASCII")
		}
	}
	return nil
}

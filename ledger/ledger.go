// Copyright (C) 2019-2026, Lux Industries Inc. All rights reserved.
// Forked from github.com/zondax/ledger-go
// Licensed under the Apache License, Version 2.0

// Package ledger drives the Ledger Bitcoin application, over USB HID for
// physical devices and over TCP for the Speculos simulator.
//
// Wallet registrations are not stored on the device: the device returns an
// HMAC that proves a policy was approved, and the handle keeps it in memory.
// After a reconnect the wallet must be registered again before Miniscript
// addresses can be displayed.
package ledger

import (
	"context"

	"github.com/luxfi/hwi-go/internal/logging"
)

var log = logging.Named("ledger")

// LedgerAdmin defines the interface for managing Ledger devices.
type LedgerAdmin interface {
	CountDevices() int
	ListDevices() ([]string, error)
	Connect(deviceIndex int) (LedgerDevice, error)
	ConnectPath(path string) (LedgerDevice, error)
}

// LedgerDevice defines the interface for interacting with a Ledger device.
type LedgerDevice interface {
	// Exchange sends one APDU and returns the response including the two
	// status word bytes.
	Exchange(ctx context.Context, command []byte) ([]byte, error)
	Close() error
}

// disconnectNotifier is implemented by transports that can tell when the
// device goes away on its own.
type disconnectNotifier interface {
	NotifyDisconnect(fn func())
}

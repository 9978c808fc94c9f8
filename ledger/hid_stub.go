//go:build ledger_nohid
// +build ledger_nohid

// Copyright (C) 2019-2026, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package ledger

import hwi "github.com/luxfi/hwi-go"

// noHIDAdmin is used in builds without hidapi. It never finds a device, so
// only Speculos is reachable.
type noHIDAdmin struct{}

func NewLedgerAdmin() LedgerAdmin {
	return noHIDAdmin{}
}

func (noHIDAdmin) CountDevices() int { return 0 }

func (noHIDAdmin) ListDevices() ([]string, error) { return nil, nil }

func (noHIDAdmin) Connect(int) (LedgerDevice, error) { return nil, hwi.ErrDeviceNotFound }

func (noHIDAdmin) ConnectPath(string) (LedgerDevice, error) { return nil, hwi.ErrDeviceNotFound }

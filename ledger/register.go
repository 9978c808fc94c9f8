// Copyright (C) 2019-2026, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package ledger

import (
	"context"

	hwi "github.com/luxfi/hwi-go"
)

func init() {
	hwi.Register(hwi.Ledger, openHID)
	hwi.Register(hwi.LedgerSimulator, openSpeculos)
}

func openHID(ctx context.Context, ep hwi.Endpoint) (hwi.HWI, error) {
	dev, err := NewLedgerAdmin().ConnectPath(ep.Path)
	if err != nil {
		return nil, err
	}
	return NewDevice(hwi.Ledger, dev, ep), nil
}

func openSpeculos(ctx context.Context, ep hwi.Endpoint) (hwi.HWI, error) {
	dev, err := DialSpeculos(ctx, ep.Path)
	if err != nil {
		log.Debugf("speculos unavailable: %v", err)
		return nil, hwi.ErrDeviceNotFound
	}
	return NewDevice(hwi.LedgerSimulator, dev, ep), nil
}

// Copyright (C) 2019-2026, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package specter

import (
	"context"
	"errors"
	"io/fs"
	"net"
	"os"

	hwi "github.com/luxfi/hwi-go"
)

// DefaultSimulatorAddr is where the Specter simulator serves its USB port.
const DefaultSimulatorAddr = "127.0.0.1:8789"

func init() {
	hwi.Register(hwi.Specter, openSerial)
	hwi.Register(hwi.SpecterSimulator, openSimulator)
}

func openSerial(ctx context.Context, ep hwi.Endpoint) (hwi.HWI, error) {
	if ep.Path == "" {
		return nil, hwi.InvalidParam("path", "serial device path required")
	}
	f, err := os.OpenFile(ep.Path, os.O_RDWR, 0)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, hwi.ErrDeviceNotFound
		}
		return nil, err
	}
	log.Debugw("serial port opened", "path", ep.Path)
	return NewDevice(hwi.Specter, f, ep), nil
}

func openSimulator(ctx context.Context, ep hwi.Endpoint) (hwi.HWI, error) {
	addr := ep.Path
	if addr == "" {
		addr = DefaultSimulatorAddr
	}
	var d net.Dialer
	c, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		log.Debugf("specter simulator unavailable at %s: %v", addr, err)
		return nil, hwi.ErrDeviceNotFound
	}
	return NewDevice(hwi.SpecterSimulator, c, ep), nil
}

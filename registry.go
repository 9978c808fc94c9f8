// Copyright (C) 2019-2026, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package hwi

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/btcsuite/btcd/chaincfg"
)

// Endpoint tells an adapter where the already discovered device lives.
type Endpoint struct {
	// Path is a HID path, a serial device or host:port, depending on the
	// backend. Empty selects the backend default.
	Path     string
	Timeouts Timeouts
	// Network selects xpub and address encoding. Nil means mainnet.
	Network *chaincfg.Params
}

// Net returns the endpoint network, defaulting to mainnet.
func (e Endpoint) Net() *chaincfg.Params {
	if e.Network == nil {
		return &chaincfg.MainNetParams
	}
	return e.Network
}

// Opener connects a backend adapter to the device at ep.
type Opener func(ctx context.Context, ep Endpoint) (HWI, error)

var (
	registryMu sync.RWMutex
	openers    = map[DeviceKind]Opener{}
)

// Register makes an adapter available for kind. Adapter packages call it from
// init; registering a kind twice panics.
func Register(kind DeviceKind, open Opener) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if open == nil {
		panic(fmt.Sprintf("hwi: nil opener for %s", kind))
	}
	if _, dup := openers[kind]; dup {
		panic(fmt.Sprintf("hwi: adapter for %s registered twice", kind))
	}
	openers[kind] = open
}

// Registered lists the kinds that have an adapter linked in.
func Registered() []DeviceKind {
	registryMu.RLock()
	defer registryMu.RUnlock()
	kinds := make([]DeviceKind, 0, len(openers))
	for kind := range openers {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Open instantiates the adapter registered for kind. Kinds without an
// adapter fail with ErrUnimplementedMethod.
func Open(ctx context.Context, kind DeviceKind, ep Endpoint) (HWI, error) {
	registryMu.RLock()
	open, ok := openers[kind]
	registryMu.RUnlock()
	if !ok {
		return nil, ErrUnimplementedMethod
	}
	if ep.Timeouts == (Timeouts{}) {
		ep.Timeouts = DefaultTimeouts
	}

	device, err := open(ctx, ep)
	if err != nil {
		return nil, AsError(err)
	}
	log.Debugw("opened device", "device", kind.String(), "path", ep.Path)
	return device, nil
}

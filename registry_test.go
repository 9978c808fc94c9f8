// Copyright (C) 2019-2026, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package hwi

import (
	"context"
	"errors"
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/require"
)

func withCleanRegistry(t *testing.T) {
	t.Helper()
	registryMu.Lock()
	saved := openers
	openers = map[DeviceKind]Opener{}
	registryMu.Unlock()
	t.Cleanup(func() {
		registryMu.Lock()
		openers = saved
		registryMu.Unlock()
	})
}

func TestOpenUnregisteredKind(t *testing.T) {
	withCleanRegistry(t)
	_, err := Open(context.Background(), BitBox02, Endpoint{})
	require.ErrorIs(t, err, ErrUnimplementedMethod)
}

func TestRegisterAndOpen(t *testing.T) {
	withCleanRegistry(t)

	var got Endpoint
	Register(LedgerSimulator, func(ctx context.Context, ep Endpoint) (HWI, error) {
		got = ep
		return nil, nil
	})
	require.Equal(t, []DeviceKind{LedgerSimulator}, Registered())

	_, err := Open(context.Background(), LedgerSimulator, Endpoint{Path: "127.0.0.1:9999"})
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9999", got.Path)
	require.Equal(t, DefaultTimeouts, got.Timeouts)

	require.Panics(t, func() {
		Register(LedgerSimulator, func(ctx context.Context, ep Endpoint) (HWI, error) { return nil, nil })
	})
}

func TestOpenNormalizesOpenerErrors(t *testing.T) {
	withCleanRegistry(t)
	Register(Specter, func(ctx context.Context, ep Endpoint) (HWI, error) {
		return nil, errors.New("no such file or directory")
	})
	_, err := Open(context.Background(), Specter, Endpoint{})
	require.Equal(t, Device, KindOf(err))
}

func TestEndpointNet(t *testing.T) {
	require.Equal(t, &chaincfg.MainNetParams, Endpoint{}.Net())
	require.Equal(t, &chaincfg.TestNet3Params, Endpoint{Network: &chaincfg.TestNet3Params}.Net())
}

// Copyright (C) 2019-2026, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package commands

import (
	"context"
	"fmt"

	"github.com/agnivade/levenshtein"
	"github.com/spf13/cobra"

	hwi "github.com/luxfi/hwi-go"
	_ "github.com/luxfi/hwi-go/ledger"
	"github.com/luxfi/hwi-go/simulator"
	_ "github.com/luxfi/hwi-go/specter"
)

var (
	cfgFile string
	cfg     Config
)

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "hwi",
		Short:         "Talk to hardware signing devices",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = loadConfig(cmd.Flags(), cfgFile)
			return err
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default $HWI_CONFIG or ~/.config/hwi/config.toml)")
	flags.StringP("device", "d", "", "device kind, see 'hwi kinds'")
	flags.String("path", "", "HID path, serial device or host:port of the device")
	flags.String("network", "mainnet", "mainnet, testnet, signet or regtest")
	flags.Duration("timeout", hwi.DefaultTimeouts.Query, "bound on calls that need no user interaction")
	flags.Bool("simulate", false, "run against an in-process simulator")
	flags.BoolP("yes", "y", false, "approve every simulator prompt")

	root.AddCommand(
		kindsCmd(),
		versionCmd(),
		fingerprintCmd(),
		xpubCmd(),
		registerCmd(),
		displayCmd(),
		signCmd(),
	)
	return root
}

// openDevice connects to the configured device, or powers on a simulator.
func openDevice(ctx context.Context, cmd *cobra.Command) (hwi.HWI, error) {
	net, err := cfg.network()
	if err != nil {
		return nil, err
	}
	timeouts := hwi.Timeouts{Query: cfg.Timeout}

	var kind hwi.DeviceKind
	if cfg.Device != "" {
		kind, err = parseKind(cfg.Device)
		if err != nil {
			return nil, err
		}
	}

	if cfg.Simulate {
		seed, err := cfg.simulatorSeed()
		if err != nil {
			return nil, err
		}
		sc := simulator.DefaultConfig(seed)
		if cfg.Device != "" {
			sc.Kind = kind
		}
		sc.Network = net
		sc.Timeouts = timeouts
		sc.StoragePath = cfg.Simulator.Storage
		sc.Confirm = confirmer(cmd, cfg.Yes)
		return simulator.New(sc)
	}

	if cfg.Device == "" {
		return nil, fmt.Errorf("--device is required, one of %v", hwi.Registered())
	}
	return hwi.Open(ctx, kind, hwi.Endpoint{Path: cfg.Path, Timeouts: timeouts, Network: net})
}

// parseKind parses code and suggests the closest known kind on a typo.
func parseKind(code string) (hwi.DeviceKind, error) {
	kind, err := hwi.ParseDeviceKind(code)
	if err == nil {
		return kind, nil
	}
	if s := suggestKind(code); s != "" {
		return 0, fmt.Errorf("%w, did you mean %q?", err, s)
	}
	return 0, err
}

func suggestKind(code string) string {
	best, bestDist := "", 4
	for _, k := range hwi.DeviceKinds() {
		if d := levenshtein.ComputeDistance(code, k.String()); d < bestDist {
			best, bestDist = k.String(), d
		}
	}
	return best
}

// withDevice opens the device for the duration of fn.
func withDevice(cmd *cobra.Command, fn func(ctx context.Context, dev hwi.HWI) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	dev, err := openDevice(ctx, cmd)
	if err != nil {
		return err
	}
	defer dev.Close()
	return fn(ctx, dev)
}

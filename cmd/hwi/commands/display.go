// Copyright (C) 2019-2026, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	hwi "github.com/luxfi/hwi-go"
	"github.com/luxfi/hwi-go/simulator"
)

func displayCmd() *cobra.Command {
	var (
		path   string
		index  uint32
		change bool
		policy string
		name   string
	)
	cmd := &cobra.Command{
		Use:   "display",
		Short: "Show an address on the device screen",
		Long: `Show a BIP86 taproot address with --address-path, or the address at
--index of a wallet policy. Devices only remember the active policy for the
length of a session, so pass --policy and --name to register it first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			script, err := addressScript(cmd, path, index, change)
			if err != nil {
				return err
			}
			return withDevice(cmd, func(ctx context.Context, dev hwi.HWI) error {
				if policy != "" {
					if _, err := dev.RegisterWallet(ctx, name, policy); err != nil {
						return err
					}
				}
				if err := dev.DisplayAddress(ctx, script); err != nil {
					return err
				}
				if sim, ok := dev.(*simulator.Device); ok {
					screen := sim.Screen()
					fmt.Fprintln(cmd.OutOrStdout(), screen[len(screen)-1])
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s shown on device\n", script)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&path, "address-path", "", "BIP86 path m/86'/coin'/account'/change/index")
	cmd.Flags().Uint32Var(&index, "index", 0, "address index within the wallet policy")
	cmd.Flags().BoolVar(&change, "change", false, "use the change branch of the wallet policy")
	cmd.Flags().StringVar(&policy, "policy", "", "wallet policy descriptor to register first")
	cmd.Flags().StringVar(&name, "name", "default", "wallet name used with --policy")
	cmd.MarkFlagsMutuallyExclusive("address-path", "index")
	cmd.MarkFlagsMutuallyExclusive("address-path", "change")
	cmd.MarkFlagsMutuallyExclusive("address-path", "policy")
	return cmd
}

func addressScript(cmd *cobra.Command, path string, index uint32, change bool) (hwi.AddressScript, error) {
	if path != "" {
		p, err := hwi.ParseDerivationPath(path)
		if err != nil {
			return nil, err
		}
		return hwi.P2TR{Path: p}, nil
	}
	if !cmd.Flags().Changed("index") {
		return nil, errors.New("one of --address-path or --index is required")
	}
	return hwi.Miniscript{Index: index, Change: change}, nil
}

// Copyright (C) 2019-2026, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	hwi "github.com/luxfi/hwi-go"
)

func registerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "register <name> <descriptor>",
		Short: "Register a wallet policy on the device",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDevice(cmd, func(ctx context.Context, dev hwi.HWI) error {
				id, err := dev.RegisterWallet(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				if id == nil {
					fmt.Fprintln(cmd.OutOrStdout(), "registered")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), id)
				return nil
			})
		},
	}
}

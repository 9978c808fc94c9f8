// Copyright (C) 2019-2026, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	hwi "github.com/luxfi/hwi-go"
)

func xpubCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "xpub <path>",
		Short:   "Print the extended public key at a derivation path",
		Example: "  hwi xpub m/86'/0'/0' --device ledger",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := hwi.ParseDerivationPath(args[0])
			if err != nil {
				return err
			}
			return withDevice(cmd, func(ctx context.Context, dev hwi.HWI) error {
				key, err := dev.GetExtendedPubkey(ctx, path)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), key)
				return nil
			})
		},
	}
}

// Copyright (C) 2019-2026, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	hwi "github.com/luxfi/hwi-go"
)

func fingerprintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fingerprint",
		Short: "Print the master key fingerprint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDevice(cmd, func(ctx context.Context, dev hwi.HWI) error {
				fp, err := dev.GetMasterFingerprint(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), fp)
				return nil
			})
		},
	}
}

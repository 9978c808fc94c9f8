// Copyright (C) 2019-2026, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	hwi "github.com/luxfi/hwi-go"
)

func kindsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "kinds",
		Short: "List device kinds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			available := map[hwi.DeviceKind]bool{}
			for _, k := range hwi.Registered() {
				available[k] = true
			}
			for _, k := range hwi.DeviceKinds() {
				status := "no adapter"
				if available[k] {
					status = "available"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-20s %s\n", k, status)
			}
			return nil
		},
	}
}

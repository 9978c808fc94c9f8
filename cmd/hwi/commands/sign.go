// Copyright (C) 2019-2026, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package commands

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/spf13/cobra"

	hwi "github.com/luxfi/hwi-go"
)

func signCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "sign <psbt-file>",
		Short: "Sign a PSBT, binary or base64, and print it as base64",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			packet, err := readPSBT(args[0])
			if err != nil {
				return err
			}
			return withDevice(cmd, func(ctx context.Context, dev hwi.HWI) error {
				if err := dev.SignTx(ctx, packet); err != nil {
					return err
				}
				encoded, err := packet.B64Encode()
				if err != nil {
					return err
				}
				if output == "" {
					fmt.Fprintln(cmd.OutOrStdout(), encoded)
					return nil
				}
				return os.WriteFile(output, []byte(encoded+"\n"), 0o600)
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the signed PSBT here instead of stdout")
	return cmd
}

// readPSBT accepts both the binary and the base64 encoding.
func readPSBT(file string) (*psbt.Packet, error) {
	raw, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	raw = bytes.TrimSpace(raw)
	b64 := !bytes.HasPrefix(raw, []byte("psbt\xff"))
	packet, err := psbt.NewFromRawBytes(bytes.NewReader(raw), b64)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", file, err)
	}
	return packet, nil
}

// Copyright (C) 2019-2026, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package commands

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/luxfi/hwi-go/simulator"
)

// confirmer answers simulator prompts from the command input. Without a
// terminal and without --yes every prompt is declined.
func confirmer(cmd *cobra.Command, yes bool) func(simulator.Prompt) bool {
	if yes {
		return simulator.ApproveAll
	}
	in := bufio.NewReader(cmd.InOrStdin())
	interactive := cmd.InOrStdin() == os.Stdin && term.IsTerminal(int(os.Stdin.Fd()))

	return func(p simulator.Prompt) bool {
		if interactive {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "[simulator] %s: %s\napprove? [y/N] ", p.Kind, p.Text)
		}
		line, err := in.ReadString('\n')
		if err != nil && line == "" {
			return false
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true
		default:
			return false
		}
	}
}

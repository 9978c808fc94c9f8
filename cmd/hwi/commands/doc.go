// Copyright (C) 2019-2026, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

// Package commands defines the hwi CLI.
//
// Commands
//
//   - kinds        List device kinds and which ones have an adapter
//   - version      Print the firmware or app version
//   - fingerprint  Print the master key fingerprint
//   - xpub         Print the extended public key at a path
//   - register     Register a wallet policy descriptor
//   - display      Show an address on the device screen
//   - sign         Sign a PSBT file
//
// # Configuration
//
// Flags override HWI_* environment variables, which override the toml file
// named by $HWI_CONFIG or ~/.config/hwi/config.toml. With --simulate every
// command runs against an in-process simulator instead of hardware.
package commands

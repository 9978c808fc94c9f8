// Copyright (C) 2019-2026, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package hwi

import "fmt"

// AddressScript selects how DisplayAddress derives the address it shows.
// The set is closed: P2TR and Miniscript.
type AddressScript interface {
	fmt.Stringer
	addressScript()
}

// P2TR is a BIP86 single key taproot address at Path.
type P2TR struct {
	Path DerivationPath
}

// Miniscript is an address of the wallet policy most recently registered on
// the handle.
type Miniscript struct {
	Index  uint32
	Change bool
}

func (P2TR) addressScript()       {}
func (Miniscript) addressScript() {}

func (s P2TR) String() string {
	return "p2tr(" + s.Path.String() + ")"
}

func (s Miniscript) String() string {
	change := 0
	if s.Change {
		change = 1
	}
	return fmt.Sprintf("miniscript(%d/%d)", change, s.Index)
}

// Copyright (C) 2019-2026, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package hwi

import "fmt"

// DeviceKind identifies a backend family and whether it is a simulator.
// It is produced by device discovery and never changes for a handle.
type DeviceKind int

const (
	Specter DeviceKind = iota + 1
	SpecterSimulator
	Ledger
	LedgerSimulator
	BitBox02
	BitBox02Simulator
)

var deviceKindCodes = []struct {
	kind DeviceKind
	code string
}{
	{Specter, "specter"},
	{SpecterSimulator, "specter-simulator"},
	{Ledger, "ledger"},
	{LedgerSimulator, "ledger-simulator"},
	{BitBox02, "bitbox02"},
	{BitBox02Simulator, "bitbox02-simulator"},
}

// UnknownDeviceKindError is returned when a code names no DeviceKind.
type UnknownDeviceKindError struct {
	Code string
}

func (e *UnknownDeviceKindError) Error() string {
	return fmt.Sprintf("unknown device kind %q", e.Code)
}

// DeviceKinds lists every defined kind in declaration order.
func DeviceKinds() []DeviceKind {
	kinds := make([]DeviceKind, 0, len(deviceKindCodes))
	for _, c := range deviceKindCodes {
		kinds = append(kinds, c.kind)
	}
	return kinds
}

// ParseDeviceKind is the inverse of DeviceKind.String.
func ParseDeviceKind(code string) (DeviceKind, error) {
	for _, c := range deviceKindCodes {
		if c.code == code {
			return c.kind, nil
		}
	}
	return 0, &UnknownDeviceKindError{Code: code}
}

// String returns the stable lowercase code of the kind.
func (k DeviceKind) String() string {
	for _, c := range deviceKindCodes {
		if c.kind == k {
			return c.code
		}
	}
	return fmt.Sprintf("DeviceKind(%d)", int(k))
}

// IsSimulator reports whether the kind names a simulated device.
func (k DeviceKind) IsSimulator() bool {
	switch k {
	case SpecterSimulator, LedgerSimulator, BitBox02Simulator:
		return true
	default:
		return false
	}
}

// MarshalText renders the kind code, so kinds read naturally in JSON and
// config files. Unknown kinds fail to marshal.
func (k DeviceKind) MarshalText() ([]byte, error) {
	if _, err := ParseDeviceKind(k.String()); err != nil {
		return nil, err
	}
	return []byte(k.String()), nil
}

// UnmarshalText accepts the codes ParseDeviceKind does.
func (k *DeviceKind) UnmarshalText(text []byte) error {
	parsed, err := ParseDeviceKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

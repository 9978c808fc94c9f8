// Copyright (C) 2019-2026, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package ledger

import (
	"context"
	"encoding/binary"
	"fmt"
	"strings"

	hwi "github.com/luxfi/hwi-go"
)

const (
	claBitcoin   = 0xe1
	claDashboard = 0xb0
	claFramework = 0xf8

	insGetExtendedPubkey    = 0x00
	insRegisterWallet       = 0x02
	insGetWalletAddress     = 0x03
	insSignPSBT             = 0x04
	insGetMasterFingerprint = 0x05
	insGetAppAndVersion     = 0x01
	insContinue             = 0x01

	// protocolVersion goes in P2 of every Bitcoin app command.
	protocolVersion = 0x01
)

// Status words returned by the device.
const (
	swOK                 = 0x9000
	swInterrupted        = 0xe000
	swDenied             = 0x6985
	swWrongData          = 0x6a80
	swNotFound           = 0x6a82
	swInsNotSupported    = 0x6d00
	swClaNotSupported    = 0x6e00
	swAppNotOpen         = 0x6e01
	swWrongApp           = 0x6511
	swLocked             = 0x5515
	swSecurityNotAllowed = 0x6982
)

type command struct {
	cla, ins, p1, p2 byte
	data             []byte
}

func (c command) bytes() []byte {
	out := make([]byte, 5+len(c.data))
	out[0], out[1], out[2], out[3] = c.cla, c.ins, c.p1, c.p2
	out[4] = byte(len(c.data))
	copy(out[5:], c.data)
	return out
}

// statusError maps a status word onto the error taxonomy. signing selects
// how a user rejection is reported.
func statusError(sw uint16, signing bool) error {
	switch sw {
	case swOK:
		return nil
	case swDenied:
		if signing {
			return hwi.ErrDeviceDidNotSign
		}
		return hwi.DeviceError("denied by the user")
	case swWrongData, swNotFound:
		return hwi.ErrUnsupportedInput
	case swInsNotSupported:
		return hwi.ErrUnsupportedVersion
	case swClaNotSupported, swAppNotOpen, swWrongApp:
		return hwi.ErrDeviceNotFound
	case swLocked, swSecurityNotAllowed:
		return hwi.DeviceError("device locked")
	default:
		return hwi.DeviceErrorf("status 0x%04x", sw)
	}
}

// exchange sends c and serves the client commands the app interrupts it
// with until a final status arrives. interp may be nil for commands that
// never interrupt.
func exchange(ctx context.Context, dev LedgerDevice, c command, interp *clientInterpreter, signing bool) ([]byte, error) {
	if len(c.data) > maxResponse {
		return nil, hwi.InvalidParam("apdu", "payload longer than 255 bytes")
	}
	apdu := c.bytes()
	for {
		response, err := dev.Exchange(ctx, apdu)
		if err != nil {
			return nil, err
		}
		if len(response) < 2 {
			return nil, hwi.DeviceErrorf("response too short: %d bytes", len(response))
		}
		sw := binary.BigEndian.Uint16(response[len(response)-2:])
		data := response[:len(response)-2]
		if sw != swInterrupted {
			if err := statusError(sw, signing); err != nil {
				return nil, err
			}
			return data, nil
		}

		if interp == nil {
			return nil, hwi.DeviceError("unexpected client command")
		}
		reply, err := interp.execute(data)
		if err != nil {
			return nil, err
		}
		apdu = command{cla: claFramework, ins: insContinue, p2: protocolVersion, data: reply}.bytes()
	}
}

// parseVersion reads "major.minor.patch" with an optional "-prerelease".
func parseVersion(s string) (hwi.Version, error) {
	var v hwi.Version
	core, pre, _ := strings.Cut(s, "-")
	n, err := fmt.Sscanf(core, "%d.%d.%d", &v.Major, &v.Minor, &v.Patch)
	if err != nil || n != 3 {
		return v, hwi.DeviceErrorf("unparseable app version %q", s)
	}
	v.Prerelease = pre
	return v, nil
}

// before reports whether v is older than major.minor.patch, ignoring
// prerelease tags.
func before(v hwi.Version, major, minor, patch uint32) bool {
	if v.Major != major {
		return v.Major < major
	}
	if v.Minor != minor {
		return v.Minor < minor
	}
	return v.Patch < patch
}

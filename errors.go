// Copyright (C) 2019-2026, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package hwi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
)

// Kind is the closed set of failures an HWI call can report.
type Kind int

const (
	// UnsupportedInput: the operation or parameter shape is not valid for
	// this backend or device state.
	UnsupportedInput Kind = iota + 1
	// UnimplementedMethod: the backend does not provide this capability.
	UnimplementedMethod
	// DeviceDisconnected: the link was lost before or during the call.
	DeviceDisconnected
	// DeviceNotFound: no matching device was present at call time.
	DeviceNotFound
	// DeviceDidNotSign: the signing flow completed without every required
	// signature.
	DeviceDidNotSign
	// Device carries a backend specific diagnostic message.
	Device
	// ParsingPolicy: the policy descriptor failed structural validation.
	ParsingPolicy
	// MissingPolicy: an indexed policy was referenced before registration.
	MissingPolicy
	// UnsupportedVersion: firmware or app version cannot serve the request.
	UnsupportedVersion
	// InvalidParameter: a named argument failed its precondition.
	InvalidParameter
)

var kindNames = map[Kind]string{
	UnsupportedInput:    "UnsupportedInput",
	UnimplementedMethod: "UnimplementedMethod",
	DeviceDisconnected:  "DeviceDisconnected",
	DeviceNotFound:      "DeviceNotFound",
	DeviceDidNotSign:    "DeviceDidNotSign",
	Device:              "Device",
	ParsingPolicy:       "ParsingPolicy",
	MissingPolicy:       "MissingPolicy",
	UnsupportedVersion:  "UnsupportedVersion",
	InvalidParameter:    "InvalidParameter",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error is the only error type returned by an HWI call.
type Error struct {
	Kind Kind
	// Message is set for Device and InvalidParameter.
	Message string
	// Param names the offending argument of an InvalidParameter error.
	Param string
	// Err is the policy parse error of a ParsingPolicy error.
	Err error
}

var (
	ErrUnsupportedInput    = &Error{Kind: UnsupportedInput}
	ErrUnimplementedMethod = &Error{Kind: UnimplementedMethod}
	ErrDeviceDisconnected  = &Error{Kind: DeviceDisconnected}
	ErrDeviceNotFound      = &Error{Kind: DeviceNotFound}
	ErrDeviceDidNotSign    = &Error{Kind: DeviceDidNotSign}
	ErrMissingPolicy       = &Error{Kind: MissingPolicy}
	ErrUnsupportedVersion  = &Error{Kind: UnsupportedVersion}
)

// DeviceError returns a Device error carrying msg verbatim.
func DeviceError(msg string) *Error {
	return &Error{Kind: Device, Message: msg}
}

// DeviceErrorf formats a Device error.
func DeviceErrorf(format string, args ...any) *Error {
	return DeviceError(fmt.Sprintf(format, args...))
}

// InvalidParam returns an InvalidParameter error for the named argument.
func InvalidParam(name, msg string) *Error {
	return &Error{Kind: InvalidParameter, Param: name, Message: msg}
}

// PolicyParseError wraps a descriptor parse failure.
func PolicyParseError(err error) *Error {
	return &Error{Kind: ParsingPolicy, Err: err}
}

func (e *Error) Error() string {
	switch e.Kind {
	case UnsupportedInput:
		return "Unsupported input"
	case UnimplementedMethod:
		return "Unimplemented method"
	case DeviceDisconnected:
		return "Device disconnected"
	case DeviceNotFound:
		return "Device not found"
	case DeviceDidNotSign:
		return "Device did not sign"
	case Device:
		return e.Message
	case ParsingPolicy:
		if e.Err == nil {
			return "Parsing policy"
		}
		return "Parsing policy: " + e.Err.Error()
	case MissingPolicy:
		return "Missing policy"
	case UnsupportedVersion:
		return "Unsupported version"
	case InvalidParameter:
		return fmt.Sprintf("Invalid parameter %s: %s", e.Param, e.Message)
	default:
		return e.Kind.String()
	}
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrMissingPolicy)
// works regardless of payload.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the first *Error in err's chain, or zero.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// Retryable reports whether the failure may go away after the user
// reconnects or attaches the device.
func Retryable(err error) bool {
	switch KindOf(err) {
	case DeviceDisconnected, DeviceNotFound:
		return true
	default:
		return false
	}
}

// AsError maps any error onto the taxonomy. Link level failures become
// DeviceDisconnected, everything else that is not already an *Error becomes
// a Device error with the original text.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, io.ErrClosedPipe),
		errors.Is(err, net.ErrClosed),
		errors.Is(err, os.ErrClosed):
		return ErrDeviceDisconnected
	}
	return DeviceError(err.Error())
}

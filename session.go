// Copyright (C) 2019-2026, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package hwi

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/luxfi/hwi-go/internal/logging"
)

var log = logging.Named("hwi")

// State is the per handle protocol state.
type State int32

const (
	// Idle handles accept the next call.
	Idle State = iota
	// Busy handles are executing a call.
	Busy
	// Disconnected is absorbing: every later call fails without I/O.
	Disconnected
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Busy:
		return "busy"
	case Disconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Interaction tells the session whether a call may wait on the user.
type Interaction int

const (
	// Query calls must answer without user input.
	Query Interaction = iota
	// Interactive calls may wait for on-device confirmation.
	Interactive
)

// Timeouts bound each call. A zero Query bound falls back to
// DefaultTimeouts.Query. A zero Interactive bound leaves the call to the
// caller's context.
type Timeouts struct {
	Query       time.Duration
	Interactive time.Duration
}

// DefaultTimeouts bounds queries the same way the HID transport bounds a
// single read, and leaves interactive calls to the caller's context.
var DefaultTimeouts = Timeouts{Query: 20 * time.Second}

// Session serializes calls against one device and owns its transport. It
// turns any link failure into the absorbing Disconnected state.
type Session struct {
	kind     DeviceKind
	id       uuid.UUID
	timeouts Timeouts
	slot     chan struct{}
	log      *zap.SugaredLogger

	mu        sync.Mutex
	state     State
	transport io.Closer
	closeErr  error
	closed    bool
}

// NewSession binds a session to an open transport. transport may be nil for
// backends without one.
func NewSession(kind DeviceKind, transport io.Closer, timeouts Timeouts) *Session {
	if timeouts.Query <= 0 {
		timeouts.Query = DefaultTimeouts.Query
	}
	id := uuid.New()
	return &Session{
		kind:      kind,
		id:        id,
		timeouts:  timeouts,
		slot:      make(chan struct{}, 1),
		log:       log.With("device", kind.String(), "session", id.String()),
		state:     Idle,
		transport: transport,
	}
}

// Kind is the device kind the session was opened for.
func (s *Session) Kind() DeviceKind { return s.kind }

// ID identifies the session in logs.
func (s *Session) ID() string { return s.id.String() }

// Logger carries the device kind and session id.
func (s *Session) Logger() *zap.SugaredLogger { return s.log }

// State reports the current protocol state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Do runs fn as one call of the handle. fn is never invoked once the session
// is disconnected, and concurrent callers wait their turn until their ctx
// expires.
func (s *Session) Do(ctx context.Context, op string, mode Interaction, fn func(ctx context.Context) error) error {
	if s.State() == Disconnected {
		return ErrDeviceDisconnected
	}

	select {
	case s.slot <- struct{}{}:
	case <-ctx.Done():
		return DeviceErrorf("%s: %v while waiting for the device", op, ctx.Err())
	}
	defer func() { <-s.slot }()

	s.mu.Lock()
	if s.state == Disconnected {
		s.mu.Unlock()
		return ErrDeviceDisconnected
	}
	s.state = Busy
	s.mu.Unlock()

	callCtx, cancel := s.withTimeout(ctx, mode)
	defer cancel()

	s.log.Debugw("call", "op", op)
	err := fn(callCtx)
	if err != nil && callCtx.Err() != nil {
		// The device may still act on the request; the stream can't be trusted.
		err = ErrDeviceDisconnected
	}

	e := AsError(err)
	if e != nil && e.Kind == DeviceDisconnected {
		s.disconnect(op)
		return e
	}

	s.mu.Lock()
	if s.state == Busy {
		s.state = Idle
	}
	s.mu.Unlock()

	if e != nil {
		s.log.Debugw("call failed", "op", op, "kind", e.Kind.String(), "err", e.Error())
		return e
	}
	return nil
}

func (s *Session) withTimeout(ctx context.Context, mode Interaction) (context.Context, context.CancelFunc) {
	timeout := s.timeouts.Query
	if mode == Interactive {
		timeout = s.timeouts.Interactive
	}
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// Disconnect records a link loss reported by the transport.
func (s *Session) Disconnect() {
	s.disconnect("event")
}

func (s *Session) disconnect(reason string) {
	s.mu.Lock()
	already := s.state == Disconnected
	s.state = Disconnected
	s.mu.Unlock()

	if !already {
		s.log.Infow("device disconnected", "reason", reason)
	}
	_ = s.closeTransport()
}

// Close drops the handle and releases the transport.
func (s *Session) Close() error {
	s.mu.Lock()
	s.state = Disconnected
	s.mu.Unlock()
	return s.closeTransport()
}

func (s *Session) closeTransport() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return s.closeErr
	}
	s.closed = true
	if s.transport != nil {
		s.closeErr = s.transport.Close()
	}
	return s.closeErr
}

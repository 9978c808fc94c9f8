// Copyright (C) 2019-2026, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package ledger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

// DefaultSpeculosAddr is the APDU port Speculos listens on.
const DefaultSpeculosAddr = "127.0.0.1:9999"

// maxSpeculosResponse bounds a single response read from the simulator.
const maxSpeculosResponse = 1 << 16

// SpeculosDevice talks to the Speculos simulator. Each APDU is prefixed by
// its 4 byte big endian length; the reply carries the data length, the data
// and the 2 byte status word.
type SpeculosDevice struct {
	conn net.Conn
}

// DialSpeculos connects to a running Speculos instance.
func DialSpeculos(ctx context.Context, addr string) (*SpeculosDevice, error) {
	if addr == "" {
		addr = DefaultSpeculosAddr
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial speculos %s: %w", addr, err)
	}
	return NewSpeculosDevice(conn), nil
}

// NewSpeculosDevice wraps an established connection.
func NewSpeculosDevice(conn net.Conn) *SpeculosDevice {
	return &SpeculosDevice{conn: conn}
}

func (s *SpeculosDevice) Exchange(ctx context.Context, command []byte) ([]byte, error) {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Time{}
	}
	if err := s.conn.SetDeadline(deadline); err != nil {
		return nil, err
	}

	stop := context.AfterFunc(ctx, func() {
		_ = s.conn.SetDeadline(time.Now())
	})
	defer stop()

	log.Debugf("[TCP] => %x", command)

	frame := make([]byte, 4+len(command))
	binary.BigEndian.PutUint32(frame[:4], uint32(len(command)))
	copy(frame[4:], command)
	if _, err := s.conn.Write(frame); err != nil {
		return nil, s.ioError(ctx, err)
	}

	var header [4]byte
	if _, err := io.ReadFull(s.conn, header[:]); err != nil {
		return nil, s.ioError(ctx, err)
	}
	size := binary.BigEndian.Uint32(header[:])
	if size > maxSpeculosResponse {
		return nil, fmt.Errorf("response of %d bytes exceeds limit", size)
	}

	response := make([]byte, int(size)+2)
	if _, err := io.ReadFull(s.conn, response); err != nil {
		return nil, s.ioError(ctx, err)
	}

	log.Debugf("[TCP] <= %x", response)
	return response, nil
}

// ioError prefers the context error so that expiry is reported as such.
func (s *SpeculosDevice) ioError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return context.DeadlineExceeded
	}
	return err
}

func (s *SpeculosDevice) Close() error {
	return s.conn.Close()
}

// Copyright (C) 2019-2026, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package specter

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	hwi "github.com/luxfi/hwi-go"
)

const (
	ack         = "ACK"
	errorPrefix = "error: "
	userCancel  = "User cancelled"
)

type deadliner interface {
	SetDeadline(t time.Time) error
}

// conn speaks the line protocol: the host writes "<cmd>\r\n", the device
// acknowledges with "ACK\r\n" and then sends a single result line.
type conn struct {
	rw io.ReadWriteCloser
	r  *bufio.Reader
}

func newConn(rw io.ReadWriteCloser) *conn {
	return &conn{rw: rw, r: bufio.NewReader(rw)}
}

// request sends cmd and returns the result line. signing selects how a user
// cancellation is reported.
func (c *conn) request(ctx context.Context, cmd string, signing bool) (string, error) {
	if d, ok := c.rw.(deadliner); ok {
		deadline, _ := ctx.Deadline()
		if err := d.SetDeadline(deadline); err != nil && !errors.Is(err, os.ErrNoDeadline) {
			return "", err
		}
		stop := context.AfterFunc(ctx, func() {
			_ = d.SetDeadline(time.Now())
		})
		defer stop()
	}

	log.Debugf("[serial] => %s", abbreviate(cmd))
	if _, err := io.WriteString(c.rw, cmd+"\r\n"); err != nil {
		return "", ioError(ctx, err)
	}

	line, err := c.readLine(ctx)
	if err != nil {
		return "", err
	}
	if line != ack {
		return "", hwi.DeviceErrorf("expected ACK, got %q", abbreviate(line))
	}
	result, err := c.readLine(ctx)
	if err != nil {
		return "", err
	}
	log.Debugf("[serial] <= %s", abbreviate(result))

	if msg, isErr := strings.CutPrefix(result, errorPrefix); isErr {
		if signing && msg == userCancel {
			return "", hwi.ErrDeviceDidNotSign
		}
		return "", hwi.DeviceError(msg)
	}
	return result, nil
}

func (c *conn) readLine(ctx context.Context) (string, error) {
	line, err := c.r.ReadString('\n')
	if err != nil {
		return "", ioError(ctx, err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (c *conn) Close() error {
	return c.rw.Close()
}

// ioError reports an expired context as such, and read timeouts as the
// deadline they are.
func ioError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return context.DeadlineExceeded
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return context.DeadlineExceeded
	}
	return fmt.Errorf("specter link: %w", err)
}

// abbreviate keeps PSBTs out of debug logs.
func abbreviate(s string) string {
	const limit = 80
	if len(s) <= limit {
		return s
	}
	return fmt.Sprintf("%s... (%d bytes)", s[:limit], len(s))
}

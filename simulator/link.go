// Copyright (C) 2019-2026, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package simulator

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// link stands in for the transport: it counts round trips and fails them
// once the device is unplugged.
type link struct {
	latency time.Duration
	calls   atomic.Int64

	mu     sync.Mutex
	down   bool
	closed bool
}

func (l *link) roundTrip(ctx context.Context) error {
	l.calls.Add(1)

	l.mu.Lock()
	down := l.down || l.closed
	l.mu.Unlock()
	if down {
		return io.EOF
	}

	if l.latency <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(l.latency)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *link) unplug() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.down = true
}

func (l *link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

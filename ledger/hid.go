//go:build !ledger_nohid
// +build !ledger_nohid

// Copyright (C) 2019-2026, Lux Industries Inc. All rights reserved.
// Forked from github.com/zondax/ledger-go
// Licensed under the Apache License, Version 2.0

package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/luxfi/hid"

	hwi "github.com/luxfi/hwi-go"
)

const (
	VendorLedger = 0x2c97
	// UsagePageLedger is the vendor usage page of the APDU interface.
	UsagePageLedger = 0xffa0

	hidChannel    = 0x0101
	hidPacketSize = 64
	hidQueue      = 256
)

// Product id high bytes of the models that may report an empty usage page,
// mapped to the interface number carrying APDUs.
var apduInterface = map[uint8]int{
	0x10: 0, // Nano S
	0x40: 0, // Nano X
	0x50: 0, // Nano S Plus
	0x60: 0, // Stax
	0x70: 0, // Flex
}

// HIDAdmin finds Ledger devices on the USB bus.
type HIDAdmin struct{}

func NewLedgerAdmin() LedgerAdmin {
	return HIDAdmin{}
}

func isLedger(d hid.DeviceInfo) bool {
	if d.VendorID != VendorLedger {
		return false
	}
	if d.UsagePage == UsagePageLedger {
		return true
	}
	iface, known := apduInterface[uint8(d.ProductID>>8)]
	return known && iface == d.Interface
}

func enumerate() []hid.DeviceInfo {
	var found []hid.DeviceInfo
	for _, d := range hid.Enumerate(VendorLedger, 0) {
		if isLedger(d) {
			found = append(found, d)
		}
	}
	return found
}

func (HIDAdmin) CountDevices() int {
	return len(enumerate())
}

func (HIDAdmin) ListDevices() ([]string, error) {
	devices := enumerate()
	if len(devices) == 0 {
		log.Debug("no Ledger found, it may be locked or held by another program")
	}
	paths := make([]string, len(devices))
	for i, d := range devices {
		log.Debugw("ledger found", "path", d.Path, "product", d.Product, "pid", fmt.Sprintf("%04x", d.ProductID), "interface", d.Interface)
		paths[i] = d.Path
	}
	return paths, nil
}

func (HIDAdmin) Connect(index int) (LedgerDevice, error) {
	devices := enumerate()
	if index < 0 || index >= len(devices) {
		return nil, hwi.ErrDeviceNotFound
	}
	return openHIDDevice(devices[index])
}

// ConnectPath opens the device at the given HID path. An empty path selects
// the first Ledger found.
func (a HIDAdmin) ConnectPath(path string) (LedgerDevice, error) {
	if path == "" {
		return a.Connect(0)
	}
	for _, d := range enumerate() {
		if d.Path == path {
			return openHIDDevice(d)
		}
	}
	return nil, hwi.ErrDeviceNotFound
}

// HIDDevice exchanges APDUs with one Ledger over USB HID.
type HIDDevice struct {
	dev     *hid.Device
	packets chan []byte
	done    chan struct{}
	reading sync.Once

	mu     sync.Mutex
	closed bool
	onLost func()
}

func openHIDDevice(info hid.DeviceInfo) (LedgerDevice, error) {
	dev, err := info.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", info.Path, err)
	}
	return &HIDDevice{
		dev:     dev,
		packets: make(chan []byte, hidQueue),
		done:    make(chan struct{}),
	}, nil
}

// NotifyDisconnect registers fn to run when the read loop ends without Close.
func (d *HIDDevice) NotifyDisconnect(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onLost = fn
}

func (d *HIDDevice) readLoop() {
	defer close(d.packets)
	for {
		buf := make([]byte, hidPacketSize)
		n, err := d.dev.Read(buf)
		if err != nil {
			d.lost(err)
			return
		}
		select {
		case d.packets <- buf[:n]:
		case <-d.done:
			return
		}
	}
}

func (d *HIDDevice) lost(err error) {
	d.mu.Lock()
	closed, fn := d.closed, d.onLost
	d.mu.Unlock()
	if closed {
		return
	}
	log.Debugf("[HID] read loop ended: %v", err)
	if fn != nil {
		fn()
	}
}

func (d *HIDDevice) Exchange(ctx context.Context, command []byte) ([]byte, error) {
	if len(command) < 5 {
		return nil, errors.New("APDU shorter than its 5 byte header")
	}
	d.reading.Do(func() { go d.readLoop() })

	log.Debugf("[HID] => %x", command)
	packets, err := WrapCommandAPDU(hidChannel, command, hidPacketSize)
	if err != nil {
		return nil, err
	}
	for _, p := range packets {
		if err := d.writePacket(p); err != nil {
			return nil, err
		}
	}

	r := newResponseReader(hidChannel)
	for {
		select {
		case p, ok := <-d.packets:
			if !ok {
				return nil, io.EOF
			}
			done, err := r.Feed(p)
			if err != nil {
				return nil, err
			}
			if done {
				log.Debugf("[HID] <= %x", r.data)
				return r.data, nil
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (d *HIDDevice) writePacket(p []byte) error {
	for len(p) > 0 {
		n, err := d.dev.Write(p)
		if err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}

func (d *HIDDevice) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()
	close(d.done)
	return d.dev.Close()
}

// Copyright (C) 2019-2026, Lux Industries Inc. All rights reserved.
// Forked from github.com/zondax/ledger-go
// Licensed under the Apache License, Version 2.0

package ledger

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	tagAPDU      = 0x05
	headerSize   = 5 // channel(2) tag(1) sequence(2)
	lengthPrefix = 2
)

// WrapCommandAPDU turns the command into a sequence of packetSize byte packets
// for HID transport. The first packet carries the total command length.
func WrapCommandAPDU(channel uint16, command []byte, packetSize int) ([][]byte, error) {
	if packetSize < headerSize+lengthPrefix+1 {
		return nil, fmt.Errorf("packet size must be at least %d", headerSize+lengthPrefix+1)
	}
	if len(command) > 0xffff {
		return nil, errors.New("command too long")
	}

	var chunks [][]byte
	offset := 0
	for seq := uint16(0); seq == 0 || offset < len(command); seq++ {
		packet := make([]byte, packetSize)
		binary.BigEndian.PutUint16(packet[0:2], channel)
		packet[2] = tagAPDU
		binary.BigEndian.PutUint16(packet[3:5], seq)

		body := packet[headerSize:]
		if seq == 0 {
			binary.BigEndian.PutUint16(body[0:2], uint16(len(command)))
			body = body[lengthPrefix:]
		}
		offset += copy(body, command[offset:])
		chunks = append(chunks, packet)
	}

	return chunks, nil
}

// responseReader reassembles a response from HID packets.
type responseReader struct {
	channel uint16
	seq     uint16
	total   int
	data    []byte
}

func newResponseReader(channel uint16) *responseReader {
	return &responseReader{channel: channel, total: -1}
}

// Feed consumes one packet and reports whether the response is complete.
// Packets for other channels or tags are ignored.
func (r *responseReader) Feed(packet []byte) (bool, error) {
	if len(packet) < headerSize {
		return false, nil
	}
	if binary.BigEndian.Uint16(packet[0:2]) != r.channel || packet[2] != tagAPDU {
		return false, nil
	}

	seq := binary.BigEndian.Uint16(packet[3:5])
	if seq != r.seq {
		return false, fmt.Errorf("unexpected packet sequence %d, want %d", seq, r.seq)
	}
	r.seq++

	body := packet[headerSize:]
	if r.total < 0 {
		if len(body) < lengthPrefix {
			return false, errors.New("first response packet too short")
		}
		r.total = int(binary.BigEndian.Uint16(body[0:2]))
		body = body[lengthPrefix:]
	}

	need := r.total - len(r.data)
	if need > len(body) {
		need = len(body)
	}
	r.data = append(r.data, body[:need]...)
	return len(r.data) == r.total, nil
}

// UnwrapResponseAPDU reassembles a complete response from packets.
func UnwrapResponseAPDU(channel uint16, packets [][]byte) ([]byte, error) {
	r := newResponseReader(channel)
	for _, packet := range packets {
		done, err := r.Feed(packet)
		if err != nil {
			return nil, err
		}
		if done {
			return r.data, nil
		}
	}
	return nil, errors.New("incomplete response")
}

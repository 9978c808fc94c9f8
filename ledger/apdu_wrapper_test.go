// Copyright (C) 2019-2026, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package ledger

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWrapCommandAPDU(t *testing.T) {
	command := bytes.Repeat([]byte{0xab}, 100)
	packets, err := WrapCommandAPDU(0x0101, command, 64)
	require.NoError(t, err)
	// 57 bytes fit the first packet, 59 every following one.
	require.Len(t, packets, 2)

	first := packets[0]
	require.Len(t, first, 64)
	require.Equal(t, []byte{0x01, 0x01, tagAPDU, 0x00, 0x00, 0x00, 100}, first[:7])
	require.Equal(t, uint16(1), binary.BigEndian.Uint16(packets[1][3:5]))
}

func TestWrapCommandAPDUErrors(t *testing.T) {
	_, err := WrapCommandAPDU(0x0101, []byte{1}, 7)
	require.Error(t, err)

	_, err = WrapCommandAPDU(0x0101, make([]byte, 0x10000), 64)
	require.Error(t, err)
}

func TestUnwrapRoundTrip(t *testing.T) {
	for _, size := range []int{0, 1, 57, 58, 300} {
		payload := make([]byte, size)
		for i := range payload {
			payload[i] = byte(i)
		}
		packets, err := WrapCommandAPDU(0x0101, payload, 64)
		require.NoError(t, err)

		out, err := UnwrapResponseAPDU(0x0101, packets)
		require.NoError(t, err, "size %d", size)
		require.Equal(t, payload, out, "size %d", size)
	}
}

func TestUnwrapSkipsForeignPackets(t *testing.T) {
	packets, err := WrapCommandAPDU(0x0101, []byte{0x90, 0x00}, 64)
	require.NoError(t, err)
	foreign, err := WrapCommandAPDU(0x0202, []byte{0x6e, 0x00}, 64)
	require.NoError(t, err)

	out, err := UnwrapResponseAPDU(0x0101, append(foreign, packets...))
	require.NoError(t, err)
	require.Equal(t, []byte{0x90, 0x00}, out)
}

func TestUnwrapErrors(t *testing.T) {
	packets, err := WrapCommandAPDU(0x0101, make([]byte, 200), 64)
	require.NoError(t, err)

	_, err = UnwrapResponseAPDU(0x0101, packets[:2])
	require.ErrorContains(t, err, "incomplete")

	_, err = UnwrapResponseAPDU(0x0101, [][]byte{packets[0], packets[2]})
	require.ErrorContains(t, err, "sequence")
}

// Copyright (C) 2019-2026, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package policy

import "strings"

const (
	inputCharset    = "0123456789()[],'/*abcdefgh@:$%{}IJKLMNOPQRSTUVWXYZ&+-.;<=>?!^_|~ijklmnopqrstuvwxyzABCDEFGH`#\"\\ "
	checksumCharset = "qpzry9x8gf2tvdw0s3jn54khce6mua7l"
	checksumLen     = 8
)

var checksumGenerator = [5]uint64{0xf5dee51989, 0xa9fdca3312, 0x1bab10e32d, 0x3706b1677a, 0x644d626ffd}

func polymod(c uint64, value int) uint64 {
	top := c >> 35
	c = (c&0x7ffffffff)<<5 ^ uint64(value)
	for i, g := range checksumGenerator {
		if (top>>uint(i))&1 == 1 {
			c ^= g
		}
	}
	return c
}

// Checksum returns the eight character descriptor checksum of desc, or false
// when desc holds a character outside the descriptor charset.
func Checksum(desc string) (string, bool) {
	c := uint64(1)
	class, count := 0, 0
	for _, ch := range desc {
		pos := strings.IndexRune(inputCharset, ch)
		if pos < 0 {
			return "", false
		}
		c = polymod(c, pos&31)
		class = class*3 + pos>>5
		count++
		if count == 3 {
			c = polymod(c, class)
			class, count = 0, 0
		}
	}
	if count > 0 {
		c = polymod(c, class)
	}
	for i := 0; i < checksumLen; i++ {
		c = polymod(c, 0)
	}
	c ^= 1

	var out [checksumLen]byte
	for i := range out {
		out[i] = checksumCharset[(c>>(5*(7-uint(i))))&31]
	}
	return string(out[:]), true
}

// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package common contains functions used across multiple packages: the
// Sensirion CRC8, the checksummed word framing built on it, and the errors
// shared by the sensor drivers.
package common

const (
	crc8Polynomial = 0x31
	crc8Init       = 0xff
)

// crc8Table holds the CRC of every byte value for a zero initial value.
var crc8Table = makeCRC8Table()

func makeCRC8Table() [256]byte {
	var t [256]byte
	for i := range t {
		crc := byte(i)
		for j := 0; j < 8; j++ {
			if crc&0x80 == 0 {
				crc <<= 1
			} else {
				crc = crc<<1 ^ crc8Polynomial
			}
		}
		t[i] = crc
	}
	return t
}

// CRC8 calculates the 8-bit CRC of b. The polynomial is x^8+x^5+x^4+1 (0x31),
// initialized with 0xff and without final xor, as used by sensors from TI and
// Sensirion.
func CRC8(b []byte) byte {
	crc := byte(crc8Init)
	for _, v := range b {
		crc = crc8Table[crc^v]
	}
	return crc
}

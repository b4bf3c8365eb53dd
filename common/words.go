// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package common

import "fmt"

// WordSize is the number of bytes a 16 bit word takes on the wire: MSB, LSB
// and the CRC8 of both.
const WordSize = 3

// EncodeCommand converts a 16 bit command and its arguments into the bytes to
// write to the device. The command itself is sent without CRC, each argument
// is followed by its CRC8.
func EncodeCommand(cmd uint16, args ...uint16) []byte {
	w := make([]byte, 2, 2+len(args)*WordSize)
	w[0] = byte(cmd >> 8)
	w[1] = byte(cmd)
	for _, arg := range args {
		data := []byte{byte(arg >> 8), byte(arg)}
		w = append(w, data[0], data[1], CRC8(data))
	}
	return w
}

// DecodeWords verifies the CRC8 of every word in raw and returns the words
// with the CRC bytes stripped. No words are returned if any check fails.
func DecodeWords(raw []byte) ([]uint16, error) {
	if len(raw)%WordSize != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a whole number of words", ErrChecksum, len(raw))
	}
	words := make([]uint16, len(raw)/WordSize)
	for ix := range words {
		chunk := raw[ix*WordSize : ix*WordSize+WordSize]
		if crc := CRC8(chunk[:2]); crc != chunk[2] {
			return nil, fmt.Errorf("%w: word %d crc 0x%02x expected 0x%02x", ErrChecksum, ix, chunk[2], crc)
		}
		words[ix] = uint16(chunk[0])<<8 | uint16(chunk[1])
	}
	return words, nil
}

// DecodeResponse is DecodeWords for a response that must hold exactly n
// words. A response of any other size returns ErrProtocol.
func DecodeResponse(raw []byte, n int) ([]uint16, error) {
	if len(raw) != n*WordSize {
		return nil, fmt.Errorf("%w: %d bytes, expected %d", ErrProtocol, len(raw), n*WordSize)
	}
	return DecodeWords(raw)
}

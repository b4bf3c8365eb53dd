// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package common

import "errors"

var (
	// ErrChecksum is returned when a response word fails its CRC8 check. The
	// whole response is discarded.
	ErrChecksum = errors.New("invalid crc")
	// ErrProtocol is returned when a response doesn't have the expected size.
	ErrProtocol = errors.New("unexpected response length")
	// ErrInvalidArgument is returned for out of range configuration values.
	// It is always detected before the bus is touched.
	ErrInvalidArgument = errors.New("invalid argument")
)

// InitError is returned by driver constructors. When a constructor fails, no
// device is returned and the caller shouldn't retry with the same device.
type InitError struct {
	// Device is the driver name, e.g. "scd30".
	Device string
	Err    error
}

func (e *InitError) Error() string {
	return e.Device + ": init: " + e.Err.Error()
}

func (e *InitError) Unwrap() error {
	return e.Err
}

// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package monitor fuses the readings of a CCS811 gas sensor and an SCD30
// CO2 sensor sharing one bus.
//
// A single loop polls both sensors, CCS811 first, and keeps the latest value
// of each. Every RecalibrationInterval the SCD30 temperature and humidity are
// pushed into the CCS811 environment compensation registers and used as its
// thermistor offset.
//
// Readers take a value copy with Snapshot(); the two sensor groups are
// updated independently, so one may be up to a poll period older than the
// other.
//
// Errors from either sensor are logged and counted; the previous values are
// kept and the next cycle tries again. A bus transaction that never returns
// stalls the loop.
package monitor

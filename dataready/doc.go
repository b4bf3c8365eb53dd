// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package dataready selects how a sensor driver learns that a new sample is
// available.
//
// A Polled strategy asks the sensor over the bus every time. An EdgeTriggered
// strategy watches the sensor's data ready line: a Signal latches on the
// active edge and the driver reads the latch without any bus traffic. The
// driver clears the latch when it reads the measurement, so once raised the
// latch stays raised until the sample is consumed.
package dataready

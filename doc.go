// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package airquality is a container for the drivers and the acquisition
// loop of an indoor air quality monitor built around a CCS811 gas sensor and
// an SCD30 CO2 sensor.
//
// The drivers are in ccs811 and scd30, the wire helpers shared by them in
// common and the data-ready strategies in dataready. monitor fuses both
// sensors; csvlog and console consume its snapshots. cmd/airmonitor wires
// everything together.
package airquality

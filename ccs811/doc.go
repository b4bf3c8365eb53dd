// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ccs811 provides a driver for the ams CCS811 digital gas sensor.
//
// The CCS811 reports equivalent CO2 (eCO2) and total volatile organic
// compounds (TVOC). Its algorithm is compensated with ambient temperature and
// humidity written by the host, and an optional NTC thermistor can be read
// through the sensor.
//
// Datasheet
//
// https://www.sciosense.com/wp-content/uploads/documents/SC-001232-DS-3-CCS811B-Datasheet-Revision-2.pdf
package ccs811

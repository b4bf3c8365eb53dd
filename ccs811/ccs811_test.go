// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ccs811

import (
	"errors"
	"math"
	"testing"

	"github.com/GermanBionicSystems/airquality/common"
	"github.com/GermanBionicSystems/airquality/dataready"
	"periph.io/x/conn/v3/i2c/i2ctest"
	"periph.io/x/conn/v3/physic"
)

// startup is the playback of a successful NewI2C() in polled mode.
var startup = []i2ctest.IO{
	{Addr: DefaultAddress, W: []byte{regHardwareID}, R: []byte{0x81}},
	{Addr: DefaultAddress, W: []byte{regAppStart}},
	{Addr: DefaultAddress, W: []byte{regStatus}, R: []byte{0x10}},
	{Addr: DefaultAddress, W: []byte{regMeasMode, 0x10}},
}

// startupInterrupt is the playback of NewI2C() with an edge triggered
// strategy, which enables the interrupt output.
var startupInterrupt = []i2ctest.IO{
	{Addr: DefaultAddress, W: []byte{regHardwareID}, R: []byte{0x81}},
	{Addr: DefaultAddress, W: []byte{regAppStart}},
	{Addr: DefaultAddress, W: []byte{regStatus}, R: []byte{0x10}},
	{Addr: DefaultAddress, W: []byte{regMeasMode, 0x18}},
}

func playback(ops ...[]i2ctest.IO) *i2ctest.Playback {
	pb := &i2ctest.Playback{DontPanic: true}
	for _, o := range ops {
		pb.Ops = append(pb.Ops, o...)
	}
	return pb
}

func getDev(t *testing.T, pb *i2ctest.Playback, opts *Opts) *Dev {
	dev, err := NewI2C(pb, DefaultAddress, opts)
	if err != nil {
		t.Fatal(err)
	}
	return dev
}

func TestNewI2C(t *testing.T) {
	pb := playback(startup)
	dev := getDev(t, pb, nil)
	if err := pb.Close(); err != nil {
		t.Error(err)
	}
	if dev.State() != StateOperational {
		t.Errorf("unexpected state %s", dev.State())
	}
	if s := dev.String(); s != "ccs811: playback(90)" {
		t.Errorf("unexpected String() %q", s)
	}
}

func TestNewI2CErrors(t *testing.T) {
	tests := []struct {
		name     string
		ops      []i2ctest.IO
		expected error
	}{
		{
			name:     "hardware id",
			ops:      []i2ctest.IO{{Addr: DefaultAddress, W: []byte{regHardwareID}, R: []byte{0x55}}},
			expected: ErrHardwareID,
		},
		{
			name: "firmware error",
			ops: []i2ctest.IO{
				{Addr: DefaultAddress, W: []byte{regHardwareID}, R: []byte{0x81}},
				{Addr: DefaultAddress, W: []byte{regAppStart}},
				{Addr: DefaultAddress, W: []byte{regStatus}, R: []byte{0x11}},
			},
			expected: ErrFirmware,
		},
		{
			name: "firmware not ready",
			ops: []i2ctest.IO{
				{Addr: DefaultAddress, W: []byte{regHardwareID}, R: []byte{0x81}},
				{Addr: DefaultAddress, W: []byte{regAppStart}},
				{Addr: DefaultAddress, W: []byte{regStatus}, R: []byte{0x00}},
			},
			expected: ErrFirmwareNotReady,
		},
	}
	for _, test := range tests {
		pb := playback(test.ops)
		dev, err := NewI2C(pb, DefaultAddress, nil)
		if dev != nil {
			t.Errorf("%s: device returned with error %v", test.name, err)
		}
		if !errors.Is(err, test.expected) {
			t.Errorf("%s: expected %v got %v", test.name, test.expected, err)
		}
		var ie *common.InitError
		if !errors.As(err, &ie) {
			t.Errorf("%s: %v is not an InitError", test.name, err)
		}
		// Nothing is attempted after the failing step.
		if err := pb.Close(); err != nil {
			t.Errorf("%s: %v", test.name, err)
		}
	}
}

func TestNewI2CBusError(t *testing.T) {
	_, err := NewI2C(playback(), DefaultAddress, nil)
	if err == nil {
		t.Fatal("expected an error from an empty bus")
	}
	var ie *common.InitError
	if !errors.As(err, &ie) || ie.Device != "ccs811" {
		t.Errorf("%v is not an InitError", err)
	}
}

func TestDataReadyPolled(t *testing.T) {
	pb := playback(startup, []i2ctest.IO{
		{Addr: DefaultAddress, W: []byte{regStatus}, R: []byte{0x98}},
		{Addr: DefaultAddress, W: []byte{regStatus}, R: []byte{0x90}},
	})
	dev := getDev(t, pb, nil)
	ready, err := dev.DataReady()
	if err != nil || !ready {
		t.Errorf("DataReady()=%t, %v expected true", ready, err)
	}
	ready, err = dev.DataReady()
	if err != nil || ready {
		t.Errorf("DataReady()=%t, %v expected false", ready, err)
	}
	if err := pb.Close(); err != nil {
		t.Error(err)
	}
}

func TestDataReadyEdge(t *testing.T) {
	sig := dataready.NewCallbackSignal()
	pb := playback(startupInterrupt, []i2ctest.IO{
		{Addr: DefaultAddress, W: []byte{regAlgResult}, R: []byte{0x01, 0x90, 0x00, 0x2a, 0x98}},
	})
	dev := getDev(t, pb, &Opts{Ready: dataready.EdgeTriggered(sig)})

	// No bus traffic: the playback would fail on an unexpected status read.
	if ready, err := dev.DataReady(); err != nil || ready {
		t.Fatalf("DataReady()=%t, %v before the edge", ready, err)
	}
	sig.Raise()
	for j := 0; j < 3; j++ {
		if ready, err := dev.DataReady(); err != nil || !ready {
			t.Fatalf("DataReady()=%t, %v after the edge", ready, err)
		}
	}
	if _, err := dev.ReadMeasurement(); err != nil {
		t.Fatal(err)
	}
	if ready, _ := dev.DataReady(); ready {
		t.Error("reading the measurement didn't clear the latch")
	}
	if err := pb.Close(); err != nil {
		t.Error(err)
	}
}

func TestReadMeasurement(t *testing.T) {
	pb := playback(startup, []i2ctest.IO{
		{Addr: DefaultAddress, W: []byte{regAlgResult}, R: []byte{0x01, 0x90, 0x00, 0x2a, 0x98}},
		{Addr: DefaultAddress, W: []byte{regAlgResult}, R: []byte{0x01, 0x90, 0x00, 0x2a, 0x99}},
	})
	dev := getDev(t, pb, nil)
	env, err := dev.ReadMeasurement()
	if err != nil {
		t.Fatal(err)
	}
	if env.ECO2 != 400 || env.TVOC != 42 {
		t.Errorf("unexpected measurement %s", env.String())
	}
	if s := env.String(); s != "eCO2: 400ppm TVOC: 42ppb" {
		t.Errorf("unexpected String() %q", s)
	}

	env, err = dev.ReadMeasurement()
	if !errors.Is(err, ErrSensor) {
		t.Errorf("expected ErrSensor, got %v", err)
	}
	if env != (Env{}) {
		t.Errorf("values returned with a sensor error: %#v", env)
	}
}

func TestNTCCelsius(t *testing.T) {
	tests := []struct {
		vref, vntc uint16
		expected   float64
	}{
		// 10kΩ, the Beta reference point.
		{vref: 1000, vntc: 100, expected: 25.0},
		// 32.7kΩ, below freezing.
		{vref: 1000, vntc: 327, expected: -3.2113906057474537},
		// 3kΩ, hot.
		{vref: 1000, vntc: 30, expected: 60.42668163820565},
		// 5kΩ reached with two different divider readings.
		{vref: 2000, vntc: 100, expected: 44.416848098726064},
		{vref: 1000, vntc: 50, expected: 44.416848098726064},
	}
	for _, test := range tests {
		res := ntcCelsius(test.vref, test.vntc)
		if math.Abs(res-test.expected) > 1e-6 {
			t.Errorf("ntcCelsius(%d, %d)=%.9f expected %.9f", test.vref, test.vntc, res, test.expected)
		}
	}
}

func TestThermistorTemperature(t *testing.T) {
	ntc := i2ctest.IO{Addr: DefaultAddress, W: []byte{regNTC}, R: []byte{0x03, 0xe8, 0x00, 0x64}}
	pb := playback(startup, []i2ctest.IO{ntc, ntc, {Addr: DefaultAddress, W: []byte{regNTC}, R: []byte{0x00, 0x00, 0x00, 0x64}}})
	dev := getDev(t, pb, nil)

	temp, err := dev.ThermistorTemperature()
	if err != nil {
		t.Fatal(err)
	}
	if c := temp.Celsius(); math.Abs(c-25) > 1e-6 {
		t.Errorf("got %.9f°C expected 25°C", c)
	}

	dev.SetThermistorOffset(2 * physic.Celsius)
	if dev.ThermistorOffset() != 2*physic.Celsius {
		t.Errorf("offset not stored: %s", dev.ThermistorOffset())
	}
	temp, err = dev.ThermistorTemperature()
	if err != nil {
		t.Fatal(err)
	}
	if c := temp.Celsius(); math.Abs(c-23) > 1e-6 {
		t.Errorf("got %.9f°C expected 23°C with offset", c)
	}

	if _, err = dev.ThermistorTemperature(); !errors.Is(err, ErrSensor) {
		t.Errorf("expected ErrSensor for a zero reference, got %v", err)
	}
}

func TestEncodeEnvironment(t *testing.T) {
	tests := []struct {
		celsius, rh float64
		expected    [4]byte
	}{
		// Worked example of the datasheet.
		{celsius: 23.5, rh: 48.5, expected: [4]byte{0x61, 0x00, 0x61, 0x00}},
		// Power on defaults.
		{celsius: 25, rh: 50, expected: [4]byte{0x64, 0x00, 0x64, 0x00}},
		{celsius: 0, rh: 100, expected: [4]byte{0x32, 0x00, 0xc8, 0x00}},
		{celsius: -25, rh: 0, expected: [4]byte{0x00, 0x00, 0x00, 0x00}},
		{celsius: 21.25, rh: 40, expected: [4]byte{0x5c, 0x80, 0x50, 0x00}},
		// Out of range values saturate.
		{celsius: -40, rh: 200, expected: [4]byte{0x00, 0x00, 0xff, 0xff}},
	}
	for _, test := range tests {
		res := encodeEnvironment(test.celsius, test.rh)
		if res != test.expected {
			t.Errorf("encodeEnvironment(%v, %v)=%#v expected %#v", test.celsius, test.rh, res, test.expected)
		}
	}
}

func TestSetEnvironment(t *testing.T) {
	pb := playback(startup, []i2ctest.IO{
		{Addr: DefaultAddress, W: []byte{regEnvData, 0x61, 0x00, 0x61, 0x00}},
	})
	dev := getDev(t, pb, nil)
	temp := physic.ZeroCelsius + physic.Temperature(23.5*float64(physic.Celsius))
	hum := physic.RelativeHumidity(48.5 * float64(physic.PercentRH))
	if err := dev.SetEnvironment(temp, hum); err != nil {
		t.Fatal(err)
	}
	if err := pb.Close(); err != nil {
		t.Error(err)
	}
}

func TestHalt(t *testing.T) {
	pb := playback(startup, []i2ctest.IO{{Addr: DefaultAddress, W: []byte{regMeasMode, 0x00}}})
	dev := getDev(t, pb, nil)
	if err := dev.Halt(); err != nil {
		t.Fatal(err)
	}
	if err := pb.Close(); err != nil {
		t.Error(err)
	}
}

func TestStateString(t *testing.T) {
	for s, expected := range map[State]string{
		StateUninitialized: "uninitialized",
		StateBooting:       "booting",
		StateFirmwareError: "firmware error",
		StateOperational:   "operational",
		State(9):           "State(9)",
	} {
		if s.String() != expected {
			t.Errorf("%d.String()=%q expected %q", int(s), s.String(), expected)
		}
	}
}

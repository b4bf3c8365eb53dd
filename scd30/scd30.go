// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package scd30

import (
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/GermanBionicSystems/airquality/common"
	"github.com/GermanBionicSystems/airquality/dataready"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

const (
	// This device only supports this i2c address.
	SensorAddress uint16 = 0x61
)

// PPM=Parts Per Million. Units of measure for CO2 concentration.
type PPM float32

func (ppm PPM) String() string {
	return strconv.FormatFloat(float64(ppm), 'f', 1, 32) + " PPM"
}

// State of the measurement engine.
type State int

const (
	StateUninitialized State = iota
	StateMeasuringContinuous
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateMeasuringContinuous:
		return "measuring continuous"
	}
	return "State(" + strconv.Itoa(int(s)) + ")"
}

// Structure to simplify sending commands to the device.
type command struct {
	// The 16-bit command word.
	cmdWord uint16
	// The expected number of bytes returned, including CRCs.
	responseSize int
}

var cmdTriggerContinuous = command{cmdWord: 0x0010}
var cmdStopContinuous = command{cmdWord: 0x0104}
var cmdSetInterval = command{cmdWord: 0x4600}
var cmdSetASC = command{cmdWord: 0x5306}
var cmdReadMeasurement = command{
	cmdWord:      0x0300,
	responseSize: 18,
}
var cmdGetDataReady = command{
	cmdWord:      0x0202,
	responseSize: 3,
}
var cmdFirmwareVersion = command{
	cmdWord:      0xd100,
	responseSize: 3,
}

const (
	// Minimum time between the command write and the response read.
	processingDelay = 3 * time.Millisecond
	// Time given to the sensor to apply the start up configuration.
	settleDelay = 100 * time.Millisecond

	millibar = 100 * physic.Pascal

	// DefaultPressure is the ambient pressure compensation used when
	// Opts.AmbientPressure is zero.
	DefaultPressure = 1000 * millibar
	MinPressure     = 700 * millibar
	MaxPressure     = 1200 * millibar

	// DefaultInterval is the measurement interval used when Opts.Interval is
	// zero.
	DefaultInterval = 2 * time.Second
	MinInterval     = 2 * time.Second
	MaxInterval     = 1800 * time.Second
)

// Opts holds the configuration options.
type Opts struct {
	// AmbientPressure is used to compensate the CO2 reading. Must be within
	// [700, 1200] mbar and is truncated to whole millibars.
	AmbientPressure physic.Pressure
	// Interval between measurements, within [2s, 1800s]. Truncated to whole
	// seconds.
	Interval time.Duration
	// DisableASC turns off automatic self calibration.
	DisableASC bool
	// Ready selects how DataReady() learns of new samples. For edge
	// triggering, watch the RDY pin for gpio.RisingEdge.
	Ready dataready.Strategy
}

// Dev represents an SCD30 device.
type Dev struct {
	// The i2c bus device.
	d     conn.Conn
	name  string
	ready dataready.Strategy
	mu    sync.Mutex
	state State
}

// The sensor reading. Returns CO2 PPM, Temperature, and Humidity.
type Env struct {
	physic.Env
	CO2 PPM
}

// Return the sensor readings in string format.
func (e *Env) String() string {
	return fmt.Sprintf("Temperature: %s Humidity: %s CO2: %s", e.Temperature.String(), e.Humidity.String(), e.CO2.String())
}

// NewI2C creates a new SCD30 sensor using the supplied bus and address, and
// starts continuous measurement. The constant value SensorAddress should be
// supplied as the value for addr.
//
// Options are validated before the bus is used; an out of range value
// returns an *common.InitError wrapping common.ErrInvalidArgument.
func NewI2C(b i2c.Bus, addr uint16, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = &Opts{}
	}
	pressure, interval, err := validate(opts)
	if err != nil {
		return nil, &common.InitError{Device: "scd30", Err: err}
	}
	i2cDev := &i2c.Dev{Bus: b, Addr: addr}
	d := &Dev{d: i2cDev, name: i2cDev.String(), ready: opts.Ready}
	if err := d.start(pressure, interval, !opts.DisableASC); err != nil {
		return nil, &common.InitError{Device: "scd30", Err: err}
	}
	return d, nil
}

// validate returns the pressure in mbar and the interval in seconds.
func validate(opts *Opts) (uint16, uint16, error) {
	p := opts.AmbientPressure
	if p == 0 {
		p = DefaultPressure
	}
	if p < MinPressure || p > MaxPressure {
		return 0, 0, fmt.Errorf("%w: ambient pressure %s not in [%s, %s]", common.ErrInvalidArgument, p, MinPressure, MaxPressure)
	}
	interval := opts.Interval
	if interval == 0 {
		interval = DefaultInterval
	}
	if interval < MinInterval || interval > MaxInterval {
		return 0, 0, fmt.Errorf("%w: measurement interval %s not in [%s, %s]", common.ErrInvalidArgument, interval, MinInterval, MaxInterval)
	}
	return uint16(p / millibar), uint16(interval / time.Second), nil
}

// start continuous measurement.
func (d *Dev) start(pressure, interval uint16, asc bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, err := d.sendCommand(cmdTriggerContinuous, pressure); err != nil {
		return err
	}
	d.state = StateMeasuringContinuous
	if _, err := d.sendCommand(cmdSetInterval, interval); err != nil {
		return err
	}
	var ascWord uint16
	if asc {
		ascWord = 1
	}
	if _, err := d.sendCommand(cmdSetASC, ascWord); err != nil {
		return err
	}
	time.Sleep(settleDelay)
	return nil
}

// State returns the measurement state.
func (d *Dev) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// DataReady returns true when a measurement can be read. With an edge
// triggered strategy no bus transaction happens.
func (d *Dev) DataReady() (bool, error) {
	if s := d.ready.Signal(); s != nil {
		return s.Raised(), nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	words, err := d.sendCommand(cmdGetDataReady)
	if err != nil {
		return false, err
	}
	return words[0]&0xff != 0, nil
}

// ReadMeasurement reads CO2 concentration, temperature and humidity. A CRC
// failure on any word discards the whole measurement.
func (d *Dev) ReadMeasurement() (Env, error) {
	if s := d.ready.Signal(); s != nil {
		s.Clear()
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	words, err := d.sendCommand(cmdReadMeasurement)
	if err != nil {
		return Env{}, err
	}
	var env Env
	env.CO2 = PPM(wordsToFloat(words[0], words[1]))
	env.Temperature = celsiusToTemp(wordsToFloat(words[2], words[3]))
	env.Humidity = percentToHumidity(wordsToFloat(words[4], words[5]))
	return env, nil
}

// FirmwareVersion returns the major and minor firmware version.
func (d *Dev) FirmwareVersion() (major, minor byte, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	words, err := d.sendCommand(cmdFirmwareVersion)
	if err != nil {
		return 0, 0, err
	}
	return byte(words[0] >> 8), byte(words[0]), nil
}

// Halt stops continuous measurement. Implements conn.Resource.
func (d *Dev) Halt() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != StateMeasuringContinuous {
		return nil
	}
	if _, err := d.sendCommand(cmdStopContinuous); err != nil {
		return err
	}
	d.state = StateUninitialized
	return nil
}

func (d *Dev) String() string {
	return "scd30: " + d.name
}

// All commands to read or write to the sensor go through this function. The
// SCD30 doesn't support repeated start, so the response is read in its own
// transaction.
func (d *Dev) sendCommand(cmd command, args ...uint16) ([]uint16, error) {
	if err := d.d.Tx(common.EncodeCommand(cmd.cmdWord, args...), nil); err != nil {
		return nil, fmt.Errorf("scd30 cmd 0x%04x: %w", cmd.cmdWord, err)
	}
	if cmd.responseSize == 0 {
		return nil, nil
	}
	time.Sleep(processingDelay)
	r := make([]byte, cmd.responseSize)
	if err := d.d.Tx(nil, r); err != nil {
		return nil, fmt.Errorf("scd30 cmd 0x%04x: %w", cmd.cmdWord, err)
	}
	words, err := common.DecodeResponse(r, cmd.responseSize/common.WordSize)
	if err != nil {
		return nil, fmt.Errorf("scd30 cmd 0x%04x: %w", cmd.cmdWord, err)
	}
	return words, nil
}

// wordsToFloat reassembles a big endian IEEE754 float from two words.
func wordsToFloat(msw, lsw uint16) float32 {
	return math.Float32frombits(uint32(msw)<<16 | uint32(lsw))
}

func celsiusToTemp(c float32) physic.Temperature {
	return physic.ZeroCelsius + physic.Temperature(float64(c)*float64(physic.Celsius))
}

func percentToHumidity(rh float32) physic.RelativeHumidity {
	return physic.RelativeHumidity(float64(rh) * float64(physic.PercentRH))
}

var _ conn.Resource = &Dev{}

// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ccs811

import (
	"encoding/binary"
	"errors"
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
	// DefaultAddress is the address with ADDR low.
	DefaultAddress uint16 = 0x5a
	// AlternateAddress is the address with ADDR high.
	AlternateAddress uint16 = 0x5b
)

// Registers.
const (
	regStatus       byte = 0x00
	regMeasMode     byte = 0x01
	regAlgResult    byte = 0x02
	regEnvData      byte = 0x05
	regNTC          byte = 0x06
	regHardwareID   byte = 0x20
	regAppStart     byte = 0xf4
	hardwareIDValue byte = 0x81
)

// Status register bits.
const (
	statusError     byte = 1 << 0
	statusDataReady byte = 1 << 3
	statusAppValid  byte = 1 << 4
)

// Measurement mode register values.
const (
	modeIdle        byte = 0x00
	modeDrive1Sec   byte = 0x10
	modeInterrupt   byte = 0x08
	algResultLength      = 5
)

// Time for the firmware to switch from boot to application mode.
const appStartDelay = 100 * time.Millisecond

// NTC thermistor constants. The thermistor sits in a divider with a reference
// resistor; the Beta equation is referenced at 25°C/10kΩ.
const (
	ntcRefResistor   = 100000.0
	ntcNominal       = 10000.0
	ntcBeta          = 3380.0
	ntcNominalKelvin = 298.15
)

var (
	// ErrHardwareID is returned by NewI2C when the device doesn't identify as
	// a CCS811.
	ErrHardwareID = errors.New("ccs811: unexpected hardware id")
	// ErrFirmware is returned by NewI2C when the status register reports an
	// error after starting the application.
	ErrFirmware = errors.New("ccs811: firmware error")
	// ErrFirmwareNotReady is returned by NewI2C when no valid application
	// firmware is loaded.
	ErrFirmwareNotReady = errors.New("ccs811: firmware not ready")
	// ErrSensor is returned when the sensor flags an error on a measurement.
	// The measurement must be discarded.
	ErrSensor = errors.New("ccs811: sensor error")
)

// State is the initialization state of the device.
type State int

const (
	StateUninitialized State = iota
	StateBooting
	StateFirmwareError
	StateOperational
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateBooting:
		return "booting"
	case StateFirmwareError:
		return "firmware error"
	case StateOperational:
		return "operational"
	}
	return "State(" + strconv.Itoa(int(s)) + ")"
}

// PPM is the equivalent CO2 concentration in parts per million.
type PPM uint16

func (p PPM) String() string {
	return strconv.Itoa(int(p)) + "ppm"
}

func (p *PPM) set(b []byte) {
	*p = PPM(binary.BigEndian.Uint16(b))
}

// PPB is the total volatile organic compounds concentration in parts per
// billion.
type PPB uint16

func (p PPB) String() string {
	return strconv.Itoa(int(p)) + "ppb"
}

func (p *PPB) set(b []byte) {
	*p = PPB(binary.BigEndian.Uint16(b))
}

// Env represents a gas measurement.
type Env struct {
	ECO2 PPM
	TVOC PPB
}

func (e *Env) String() string {
	return "eCO2: " + e.ECO2.String() + " TVOC: " + e.TVOC.String()
}

// Opts holds the configuration options.
type Opts struct {
	// Ready selects how DataReady() learns of new samples. With an edge
	// triggered strategy the interrupt output is enabled; wire nINT to a
	// pin watched for gpio.FallingEdge.
	Ready dataready.Strategy
	// ThermistorOffset is subtracted from ThermistorTemperature().
	ThermistorOffset physic.Temperature
}

// Dev is a handle to an initialized CCS811 device.
type Dev struct {
	d      conn.Conn
	name   string
	ready  dataready.Strategy
	mu     sync.Mutex
	state  State
	offset physic.Temperature
}

// NewI2C returns a device that communicates over I2C with a CCS811 at addr.
// It brings the firmware from boot to application mode and starts
// measuring once per second. The sequence isn't retried: when it fails, an
// *common.InitError wrapping ErrHardwareID, ErrFirmware or
// ErrFirmwareNotReady (or the bus error) is returned.
func NewI2C(b i2c.Bus, addr uint16, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = &Opts{}
	}
	i2cDev := &i2c.Dev{Bus: b, Addr: addr}
	d := &Dev{
		d:      i2cDev,
		name:   i2cDev.String(),
		ready:  opts.Ready,
		offset: opts.ThermistorOffset,
	}
	if err := d.init(); err != nil {
		return nil, &common.InitError{Device: "ccs811", Err: err}
	}
	return d, nil
}

func (d *Dev) init() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	id, err := d.readByte(regHardwareID)
	if err != nil {
		return err
	}
	if id != hardwareIDValue {
		return fmt.Errorf("%w: 0x%02x", ErrHardwareID, id)
	}
	d.state = StateBooting

	if err := d.d.Tx([]byte{regAppStart}, nil); err != nil {
		return fmt.Errorf("app start: %w", err)
	}
	time.Sleep(appStartDelay)

	status, err := d.readByte(regStatus)
	if err != nil {
		return err
	}
	if status&statusError != 0 {
		d.state = StateFirmwareError
		return fmt.Errorf("%w: status 0x%02x", ErrFirmware, status)
	}
	if status&statusAppValid == 0 {
		d.state = StateFirmwareError
		return fmt.Errorf("%w: status 0x%02x", ErrFirmwareNotReady, status)
	}
	d.state = StateOperational

	mode := modeDrive1Sec
	if d.ready.Signal() != nil {
		mode |= modeInterrupt
	}
	return d.writeReg(regMeasMode, mode)
}

// State returns the initialization state.
func (d *Dev) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// DataReady returns true when a new measurement can be read. With an edge
// triggered strategy no bus transaction happens.
func (d *Dev) DataReady() (bool, error) {
	if s := d.ready.Signal(); s != nil {
		return s.Raised(), nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	status, err := d.readByte(regStatus)
	if err != nil {
		return false, err
	}
	return status&statusDataReady != 0, nil
}

// ReadMeasurement reads the eCO2 and TVOC values of the last sample. If the
// status byte returned with the values has its error bit set, ErrSensor is
// returned and the values are discarded.
func (d *Dev) ReadMeasurement() (Env, error) {
	if s := d.ready.Signal(); s != nil {
		s.Clear()
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	var buf [algResultLength]byte
	if err := d.readReg(regAlgResult, buf[:]); err != nil {
		return Env{}, err
	}
	if status := buf[4]; status&statusError != 0 {
		return Env{}, fmt.Errorf("%w: status 0x%02x", ErrSensor, status)
	}
	var e Env
	e.ECO2.set(buf[0:2])
	e.TVOC.set(buf[2:4])
	return e, nil
}

// ThermistorTemperature reads the NTC divider voltages and returns the
// thermistor temperature minus the configured offset.
func (d *Dev) ThermistorTemperature() (physic.Temperature, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var buf [4]byte
	if err := d.readReg(regNTC, buf[:]); err != nil {
		return 0, err
	}
	vref := binary.BigEndian.Uint16(buf[0:2])
	vntc := binary.BigEndian.Uint16(buf[2:4])
	if vref == 0 || vntc == 0 {
		return 0, fmt.Errorf("%w: ntc vref=%d vntc=%d", ErrSensor, vref, vntc)
	}
	c := ntcCelsius(vref, vntc) - toCelsius(d.offset)
	return fromCelsius(c), nil
}

// SetThermistorOffset changes the value subtracted from
// ThermistorTemperature().
func (d *Dev) SetThermistorOffset(offset physic.Temperature) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.offset = offset
}

// ThermistorOffset returns the current thermistor offset.
func (d *Dev) ThermistorOffset() physic.Temperature {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.offset
}

// SetEnvironment writes the ambient temperature and humidity the algorithm
// compensates for. The range isn't checked; values outside of the sensor's
// rating are accepted but the compensation is meaningless.
func (d *Dev) SetEnvironment(t physic.Temperature, h physic.RelativeHumidity) error {
	data := encodeEnvironment(t.Celsius(), float64(h)/float64(physic.PercentRH))
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writeReg(regEnvData, data[:]...)
}

// Halt puts the sensor in idle mode. Implements conn.Resource.
func (d *Dev) Halt() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != StateOperational {
		return nil
	}
	return d.writeReg(regMeasMode, modeIdle)
}

func (d *Dev) String() string {
	return "ccs811: " + d.name
}

func (d *Dev) readByte(reg byte) (byte, error) {
	var b [1]byte
	err := d.readReg(reg, b[:])
	return b[0], err
}

func (d *Dev) readReg(reg byte, b []byte) error {
	if err := d.d.Tx([]byte{reg}, b); err != nil {
		return fmt.Errorf("ccs811: read register 0x%02x: %w", reg, err)
	}
	return nil
}

func (d *Dev) writeReg(reg byte, data ...byte) error {
	if err := d.d.Tx(append([]byte{reg}, data...), nil); err != nil {
		return fmt.Errorf("ccs811: write register 0x%02x: %w", reg, err)
	}
	return nil
}

// encodeEnvironment converts the compensation values to the ENV_DATA
// format: two big endian unsigned values in 1/512 units, the temperature
// shifted by 25°C so that 0 is -25°C.
func encodeEnvironment(celsius, rh float64) [4]byte {
	var b [4]byte
	binary.BigEndian.PutUint16(b[0:2], toFixed512(celsius+25))
	binary.BigEndian.PutUint16(b[2:4], toFixed512(rh))
	return b
}

func toFixed512(v float64) uint16 {
	f := math.Round(v * 512)
	if f < 0 {
		return 0
	}
	if f > math.MaxUint16 {
		return math.MaxUint16
	}
	return uint16(f)
}

// ntcCelsius converts the divider voltages to the thermistor temperature.
func ntcCelsius(vref, vntc uint16) float64 {
	r := float64(vntc) * ntcRefResistor / float64(vref)
	return 1/(math.Log(r/ntcNominal)/ntcBeta+1/ntcNominalKelvin) - 273.15
}

func toCelsius(t physic.Temperature) float64 {
	return float64(t) / float64(physic.Celsius)
}

func fromCelsius(c float64) physic.Temperature {
	return physic.ZeroCelsius + physic.Temperature(c*float64(physic.Celsius))
}

var _ conn.Resource = &Dev{}

// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/GermanBionicSystems/airquality/ccs811"
	"github.com/GermanBionicSystems/airquality/scd30"
	"periph.io/x/conn/v3/physic"
)

// GasSensor is the subset of *ccs811.Dev used by the monitor.
type GasSensor interface {
	DataReady() (bool, error)
	ReadMeasurement() (ccs811.Env, error)
	ThermistorTemperature() (physic.Temperature, error)
	SetEnvironment(t physic.Temperature, h physic.RelativeHumidity) error
	SetThermistorOffset(offset physic.Temperature)
}

// CO2Sensor is the subset of *scd30.Dev used by the monitor.
type CO2Sensor interface {
	DataReady() (bool, error)
	ReadMeasurement() (scd30.Env, error)
}

var (
	// ErrRunning is returned by Run when the loop is already running.
	ErrRunning = errors.New("monitor: already running")
	// ErrNoReference is returned by Recalibrate before the CO2 sensor
	// produced its first sample.
	ErrNoReference = errors.New("monitor: no reference temperature yet")
)

const (
	DefaultPollInterval          = 500 * time.Millisecond
	DefaultRecalibrationInterval = 10 * time.Minute
)

// Opts holds the configuration options.
type Opts struct {
	// PollInterval is the period of the poll cycle.
	PollInterval time.Duration
	// RecalibrationInterval is rounded down to a number of poll cycles, with a
	// minimum of one.
	RecalibrationInterval time.Duration
	// RecalibrateOnFirstSample pushes the environment as soon as the CO2
	// sensor produced its first sample instead of waiting a full interval.
	RecalibrateOnFirstSample bool
	// SenseThermistor also reads the CCS811 NTC temperature after each gas
	// measurement.
	SenseThermistor bool
	// Logger defaults to slog.Default().
	Logger *slog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Errors counts the failed operations per kind since the monitor was
// created.
type Errors struct {
	Gas           uint64
	CO2           uint64
	Thermistor    uint64
	Recalibration uint64
}

// Total returns the sum of all the counters.
func (e Errors) Total() uint64 {
	return e.Gas + e.CO2 + e.Thermistor + e.Recalibration
}

// State is the fused state of both sensors. The zero time means the
// corresponding group was never read.
type State struct {
	// From the SCD30.
	CO2         scd30.PPM
	Temperature physic.Temperature
	Humidity    physic.RelativeHumidity
	CO2Time     time.Time

	// From the CCS811.
	ECO2    ccs811.PPM
	TVOC    ccs811.PPB
	GasTime time.Time

	ThermistorTemperature physic.Temperature
	ThermistorTime        time.Time

	// RecalibrationIn is the number of poll cycles left before the next
	// scheduled recalibration.
	RecalibrationIn int
	// Recalibrated is the time of the last successful recalibration.
	Recalibrated time.Time
	Errors       Errors
}

func (s State) String() string {
	return fmt.Sprintf("CO2: %s Temperature: %s Humidity: %s eCO2: %s TVOC: %s", s.CO2, s.Temperature, s.Humidity, s.ECO2, s.TVOC)
}

// Monitor owns the poll loop and the fused state.
type Monitor struct {
	gas    GasSensor
	co2    CO2Sensor
	opts   Opts
	logger *slog.Logger
	cycles int

	// busMu serializes every sensor access.
	busMu sync.Mutex
	// mu guards state and running.
	mu           sync.RWMutex
	state        State
	running      bool
	firstApplied bool
}

// New returns a monitor reading gas and co2. The loop isn't started; call
// Run.
func New(gas GasSensor, co2 CO2Sensor, opts *Opts) (*Monitor, error) {
	if gas == nil || co2 == nil {
		return nil, errors.New("monitor: both sensors are required")
	}
	o := Opts{}
	if opts != nil {
		o = *opts
	}
	if o.PollInterval < 0 || o.RecalibrationInterval < 0 {
		return nil, errors.New("monitor: negative interval")
	}
	if o.PollInterval == 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.RecalibrationInterval == 0 {
		o.RecalibrationInterval = DefaultRecalibrationInterval
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	cycles := int(o.RecalibrationInterval / o.PollInterval)
	if cycles < 1 {
		cycles = 1
	}
	m := &Monitor{
		gas:    gas,
		co2:    co2,
		opts:   o,
		logger: o.Logger.With("component", "monitor"),
		cycles: cycles,
	}
	m.state.RecalibrationIn = cycles
	return m, nil
}

// Snapshot returns a copy of the current state.
func (m *Monitor) Snapshot() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Run polls the sensors immediately then once per PollInterval until ctx is
// cancelled, and returns ctx.Err().
func (m *Monitor) Run(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return ErrRunning
	}
	m.running = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
	}()

	m.logger.Info("started", "poll", m.opts.PollInterval, "recalibration_cycles", m.cycles)
	ticker := time.NewTicker(m.opts.PollInterval)
	defer ticker.Stop()
	for {
		m.Poll()
		select {
		case <-ctx.Done():
			m.logger.Info("stopped", "reason", ctx.Err())
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Poll runs one cycle: the gas sensor, then the CO2 sensor, then the
// recalibration countdown.
func (m *Monitor) Poll() {
	m.pollGas()
	m.pollCO2()

	m.mu.Lock()
	m.state.RecalibrationIn--
	due := m.state.RecalibrationIn <= 0
	first := m.opts.RecalibrateOnFirstSample && !m.firstApplied && !m.state.CO2Time.IsZero()
	m.mu.Unlock()

	if !due && !first {
		return
	}
	err := m.Recalibrate()
	if errors.Is(err, ErrNoReference) {
		// Retried on the next cycle.
		m.mu.Lock()
		m.state.RecalibrationIn = 0
		m.mu.Unlock()
		return
	}
	if err != nil {
		m.logger.Warn("recalibration failed", "err", err)
	}
}

// Recalibrate pushes the latest SCD30 temperature and humidity to the
// CCS811 now and restarts the countdown.
func (m *Monitor) Recalibrate() error {
	s := m.Snapshot()
	if s.CO2Time.IsZero() {
		return ErrNoReference
	}
	m.busMu.Lock()
	err := m.gas.SetEnvironment(s.Temperature, s.Humidity)
	if err == nil {
		m.gas.SetThermistorOffset(s.Temperature - physic.ZeroCelsius)
	}
	m.busMu.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.RecalibrationIn = m.cycles
	m.firstApplied = true
	if err != nil {
		m.state.Errors.Recalibration++
		return fmt.Errorf("monitor: recalibrate: %w", err)
	}
	m.state.Recalibrated = m.opts.Now()
	m.logger.Debug("recalibrated", "temperature", s.Temperature, "humidity", s.Humidity)
	return nil
}

func (m *Monitor) pollGas() {
	m.busMu.Lock()
	ready, err := m.gas.DataReady()
	var env ccs811.Env
	if err == nil && ready {
		env, err = m.gas.ReadMeasurement()
	}
	var ntc physic.Temperature
	var ntcErr error
	sensed := false
	if err == nil && ready && m.opts.SenseThermistor {
		ntc, ntcErr = m.gas.ThermistorTemperature()
		sensed = true
	}
	m.busMu.Unlock()

	if err != nil {
		m.fail(&m.state.Errors.Gas, "gas sensor", err)
		return
	}
	if !ready {
		return
	}
	now := m.opts.Now()
	m.mu.Lock()
	m.state.ECO2 = env.ECO2
	m.state.TVOC = env.TVOC
	m.state.GasTime = now
	if sensed && ntcErr == nil {
		m.state.ThermistorTemperature = ntc
		m.state.ThermistorTime = now
	}
	m.mu.Unlock()
	if ntcErr != nil {
		m.fail(&m.state.Errors.Thermistor, "thermistor", ntcErr)
	}
}

func (m *Monitor) pollCO2() {
	m.busMu.Lock()
	ready, err := m.co2.DataReady()
	var env scd30.Env
	if err == nil && ready {
		env, err = m.co2.ReadMeasurement()
	}
	m.busMu.Unlock()

	if err != nil {
		m.fail(&m.state.Errors.CO2, "co2 sensor", err)
		return
	}
	if !ready {
		return
	}
	now := m.opts.Now()
	m.mu.Lock()
	m.state.CO2 = env.CO2
	m.state.Temperature = env.Temperature
	m.state.Humidity = env.Humidity
	m.state.CO2Time = now
	m.mu.Unlock()
}

// fail increments counter, which must point into m.state, and logs err.
func (m *Monitor) fail(counter *uint64, what string, err error) {
	m.mu.Lock()
	*counter++
	m.mu.Unlock()
	m.logger.Warn(what+" read failed", "err", err)
}

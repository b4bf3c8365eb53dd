// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/GermanBionicSystems/airquality/ccs811"
	"github.com/GermanBionicSystems/airquality/console"
	"github.com/GermanBionicSystems/airquality/csvlog"
	"github.com/GermanBionicSystems/airquality/monitor"
	"github.com/GermanBionicSystems/airquality/scd30"
	"gopkg.in/yaml.v3"
	"periph.io/x/conn/v3/physic"
)

// Config is the content of the YAML configuration file.
type Config struct {
	// Bus is the I²C bus name passed to i2creg.Open; empty selects the first
	// one.
	Bus      string        `yaml:"bus"`
	LogLevel string        `yaml:"log_level"`
	CCS811   CCS811Config  `yaml:"ccs811"`
	SCD30    SCD30Config   `yaml:"scd30"`
	Monitor  MonitorConfig `yaml:"monitor"`
	CSV      CSVConfig     `yaml:"csv"`
	Console  ConsoleConfig `yaml:"console"`
}

type CCS811Config struct {
	Address uint16 `yaml:"address"`
	// InterruptPin is the GPIO wired to nINT. Empty polls the status
	// register.
	InterruptPin string `yaml:"interrupt_pin"`
}

type SCD30Config struct {
	PressureMbar uint16        `yaml:"pressure_mbar"`
	Interval     time.Duration `yaml:"interval"`
	DisableASC   bool          `yaml:"disable_asc"`
	// ReadyPin is the GPIO wired to RDY. Empty polls the sensor.
	ReadyPin string `yaml:"ready_pin"`
}

type MonitorConfig struct {
	PollInterval             time.Duration `yaml:"poll_interval"`
	RecalibrationInterval    time.Duration `yaml:"recalibration_interval"`
	RecalibrateOnFirstSample bool          `yaml:"recalibrate_on_first_sample"`
	SenseThermistor          bool          `yaml:"sense_thermistor"`
}

type CSVConfig struct {
	// Path of the file, truncated at start. Empty disables the log.
	Path     string        `yaml:"path"`
	Interval time.Duration `yaml:"interval"`
}

type ConsoleConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	NoColor  bool          `yaml:"no_color"`
}

// ConfigError is returned when the configuration can't be loaded.
type ConfigError struct {
	File    string
	Message string
	Cause   error
}

func (e *ConfigError) Error() string {
	msg := e.Message
	if e.File != "" {
		msg = e.File + ": " + msg
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// DefaultConfig returns the configuration used for the fields missing from
// the file.
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		CCS811:   CCS811Config{Address: ccs811.DefaultAddress},
		SCD30: SCD30Config{
			PressureMbar: 1000,
			Interval:     scd30.DefaultInterval,
		},
		Monitor: MonitorConfig{
			PollInterval:             monitor.DefaultPollInterval,
			RecalibrationInterval:    monitor.DefaultRecalibrationInterval,
			RecalibrateOnFirstSample: true,
		},
		CSV:     CSVConfig{Path: "air_log.csv", Interval: csvlog.DefaultInterval},
		Console: ConsoleConfig{Enabled: true, Interval: console.DefaultInterval},
	}
}

// ParseConfig decodes data over the defaults and validates the result.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, &ConfigError{Message: "failed to parse YAML", Cause: err}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfig reads the file at path. An empty path returns the defaults.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{File: path, Message: "failed to read file", Cause: err}
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		if ce, ok := err.(*ConfigError); ok {
			ce.File = path
		}
		return nil, err
	}
	return cfg, nil
}

// Validate checks the ranges the drivers would otherwise reject at start up.
func (c *Config) Validate() error {
	if _, err := c.Level(); err != nil {
		return &ConfigError{Message: "invalid log_level", Cause: err}
	}
	if c.CCS811.Address != ccs811.DefaultAddress && c.CCS811.Address != ccs811.AlternateAddress {
		return &ConfigError{Message: fmt.Sprintf("ccs811 address 0x%02x must be 0x%02x or 0x%02x", c.CCS811.Address, ccs811.DefaultAddress, ccs811.AlternateAddress)}
	}
	if p := c.SCD30.Pressure(); p < scd30.MinPressure || p > scd30.MaxPressure {
		return &ConfigError{Message: fmt.Sprintf("scd30 pressure_mbar %d not in [700, 1200]", c.SCD30.PressureMbar)}
	}
	if i := c.SCD30.Interval; i < scd30.MinInterval || i > scd30.MaxInterval {
		return &ConfigError{Message: fmt.Sprintf("scd30 interval %s not in [%s, %s]", i, scd30.MinInterval, scd30.MaxInterval)}
	}
	durations := []struct {
		name string
		d    time.Duration
	}{
		{"monitor poll_interval", c.Monitor.PollInterval},
		{"monitor recalibration_interval", c.Monitor.RecalibrationInterval},
		{"csv interval", c.CSV.Interval},
		{"console interval", c.Console.Interval},
	}
	for _, d := range durations {
		if d.d <= 0 {
			return &ConfigError{Message: fmt.Sprintf("%s must be positive, got %s", d.name, d.d)}
		}
	}
	if c.Monitor.RecalibrationInterval < c.Monitor.PollInterval {
		return &ConfigError{Message: "monitor recalibration_interval is shorter than poll_interval"}
	}
	return nil
}

// Level returns the parsed LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	err := l.UnmarshalText([]byte(c.LogLevel))
	return l, err
}

// Pressure returns the ambient pressure.
func (s *SCD30Config) Pressure() physic.Pressure {
	return physic.Pressure(s.PressureMbar) * 100 * physic.Pascal
}

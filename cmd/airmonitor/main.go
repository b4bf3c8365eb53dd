// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Command airmonitor reads a CCS811 and an SCD30 sharing an I²C bus, logs the
// fused readings to a CSV file and prints them to the console.
//
// Usage:
//
//	airmonitor [flags]
//
// Flags:
//
//	-config string     YAML configuration file (default: built-in defaults)
//	-log-level string  Overrides log_level: debug, info, warn, error
//	-version           Show version information
//
// Example configuration:
//
//	bus: ""
//	ccs811:
//	  address: 0x5a
//	  interrupt_pin: GPIO17
//	scd30:
//	  pressure_mbar: 1013
//	  interval: 2s
//	  ready_pin: GPIO27
//	monitor:
//	  recalibration_interval: 10m
//	csv:
//	  path: air_log.csv
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/GermanBionicSystems/airquality/ccs811"
	"github.com/GermanBionicSystems/airquality/console"
	"github.com/GermanBionicSystems/airquality/csvlog"
	"github.com/GermanBionicSystems/airquality/dataready"
	"github.com/GermanBionicSystems/airquality/monitor"
	"github.com/GermanBionicSystems/airquality/scd30"
	"golang.org/x/sync/errgroup"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// Version is set at build time via ldflags.
var Version = "dev"

var (
	configPath  = flag.String("config", "", "YAML configuration file")
	logLevel    = flag.String("log-level", "", "Log level: debug, info, warn, error")
	showVersion = flag.Bool("version", false, "Show version information")
)

func main() {
	os.Exit(run())
}

func run() int {
	flag.Parse()
	if *showVersion {
		fmt.Printf("airmonitor %s\n", Version)
		return 0
	}

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	level, err := cfg.Level()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid log level %q\n", cfg.LogLevel)
		return 1
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := mainImpl(ctx, cfg, logger); err != nil {
		logger.Error("exiting", "err", err)
		return 1
	}
	return 0
}

func mainImpl(ctx context.Context, cfg *Config, logger *slog.Logger) error {
	if _, err := host.Init(); err != nil {
		return err
	}
	bus, err := i2creg.Open(cfg.Bus)
	if err != nil {
		return err
	}
	defer bus.Close()

	gasReady, err := readyStrategy(cfg.CCS811.InterruptPin, gpio.FallingEdge)
	if err != nil {
		return fmt.Errorf("ccs811: %w", err)
	}
	defer haltSignal(gasReady)
	gas, err := ccs811.NewI2C(bus, cfg.CCS811.Address, &ccs811.Opts{Ready: gasReady})
	if err != nil {
		return err
	}
	defer gas.Halt()
	logger.Info("sensor ready", "dev", gas, "data_ready", gasReady)

	co2Ready, err := readyStrategy(cfg.SCD30.ReadyPin, gpio.RisingEdge)
	if err != nil {
		return fmt.Errorf("scd30: %w", err)
	}
	defer haltSignal(co2Ready)
	co2, err := scd30.NewI2C(bus, scd30.SensorAddress, &scd30.Opts{
		AmbientPressure: cfg.SCD30.Pressure(),
		Interval:        cfg.SCD30.Interval,
		DisableASC:      cfg.SCD30.DisableASC,
		Ready:           co2Ready,
	})
	if err != nil {
		return err
	}
	defer co2.Halt()
	if major, minor, err := co2.FirmwareVersion(); err == nil {
		logger.Info("sensor ready", "dev", co2, "firmware", fmt.Sprintf("%d.%d", major, minor), "data_ready", co2Ready)
	} else {
		logger.Warn("firmware version", "dev", co2, "err", err)
	}

	mon, err := monitor.New(gas, co2, &monitor.Opts{
		PollInterval:             cfg.Monitor.PollInterval,
		RecalibrationInterval:    cfg.Monitor.RecalibrationInterval,
		RecalibrateOnFirstSample: cfg.Monitor.RecalibrateOnFirstSample,
		SenseThermistor:          cfg.Monitor.SenseThermistor,
		Logger:                   logger,
	})
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return mon.Run(ctx) })
	if cfg.CSV.Path != "" {
		w, err := csvlog.Create(cfg.CSV.Path, mon, &csvlog.Opts{Interval: cfg.CSV.Interval, Logger: logger})
		if err != nil {
			return err
		}
		defer w.Close()
		g.Go(func() error { return w.Run(ctx) })
	}
	if cfg.Console.Enabled {
		p, err := console.New(mon, &console.Opts{Interval: cfg.Console.Interval, NoColor: cfg.Console.NoColor})
		if err != nil {
			return err
		}
		defer p.Halt()
		g.Go(func() error { return p.Run(ctx) })
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("stopped", "state", mon.Snapshot().String())
	return nil
}

// readyStrategy returns the edge triggered strategy watching the named pin,
// or the polled one when name is empty.
func readyStrategy(name string, edge gpio.Edge) (dataready.Strategy, error) {
	if name == "" {
		return dataready.Polled(), nil
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return dataready.Strategy{}, fmt.Errorf("no pin named %q", name)
	}
	s, err := dataready.NewSignal(p, edge)
	if err != nil {
		return dataready.Strategy{}, err
	}
	return dataready.EdgeTriggered(s), nil
}

func haltSignal(s dataready.Strategy) {
	if sig := s.Signal(); sig != nil {
		_ = sig.Halt()
	}
}

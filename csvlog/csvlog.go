// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package csvlog appends periodic monitor snapshots to a semicolon separated
// file.
//
// Each row holds the unix time in seconds, the CO2 concentration, the
// temperature, the relative humidity and the TVOC concentration:
//
//	time;co2;temp;hum;tvoc
//	1709294400;612.5;22.25;45.0;12
package csvlog

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/GermanBionicSystems/airquality/monitor"
	"periph.io/x/conn/v3/physic"
)

// DefaultInterval is the row period used when Opts.Interval is zero.
const DefaultInterval = 10 * time.Second

// Header is the first row of every file.
var Header = []string{"time", "co2", "temp", "hum", "tvoc"}

// Source provides the state to log. Implemented by *monitor.Monitor.
type Source interface {
	Snapshot() monitor.State
}

// Opts holds the configuration options.
type Opts struct {
	Interval time.Duration
	Logger   *slog.Logger
	Now      func() time.Time
}

// Writer writes snapshot rows.
type Writer struct {
	w      *csv.Writer
	c      io.Closer
	src    Source
	opts   Opts
	logger *slog.Logger
}

// New writes the header to w and returns a Writer logging src.
func New(w io.Writer, src Source, opts *Opts) (*Writer, error) {
	if src == nil {
		return nil, errors.New("csvlog: nil source")
	}
	o := Opts{}
	if opts != nil {
		o = *opts
	}
	if o.Interval == 0 {
		o.Interval = DefaultInterval
	}
	if o.Interval < 0 {
		return nil, errors.New("csvlog: negative interval")
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	cw := csv.NewWriter(w)
	cw.Comma = ';'
	l := &Writer{w: cw, src: src, opts: o, logger: o.Logger.With("component", "csvlog")}
	if err := l.write(Header); err != nil {
		return nil, err
	}
	return l, nil
}

// Create truncates or creates the file at path and writes the header.
func Create(path string, src Source, opts *Opts) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	l, err := New(f, src, opts)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	l.c = f
	return l, nil
}

// WriteRow writes the current snapshot.
func (l *Writer) WriteRow() error {
	return l.write(Row(l.opts.Now(), l.src.Snapshot()))
}

// Run writes a row immediately then once per interval until ctx is
// cancelled. Write errors are logged and don't stop the loop.
func (l *Writer) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.opts.Interval)
	defer ticker.Stop()
	for {
		if err := l.WriteRow(); err != nil {
			l.logger.Error("write failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Close closes the file opened by Create. It is a no-op for a Writer
// returned by New.
func (l *Writer) Close() error {
	if l.c == nil {
		return nil
	}
	return l.c.Close()
}

func (l *Writer) write(record []string) error {
	if err := l.w.Write(record); err != nil {
		return err
	}
	l.w.Flush()
	return l.w.Error()
}

// Row formats s as a record.
func Row(now time.Time, s monitor.State) []string {
	return []string{
		strconv.FormatInt(now.Unix(), 10),
		strconv.FormatFloat(float64(s.CO2), 'f', 1, 32),
		strconv.FormatFloat(celsius(s.Temperature), 'f', 2, 64),
		strconv.FormatFloat(float64(s.Humidity)/float64(physic.PercentRH), 'f', 1, 64),
		strconv.FormatUint(uint64(s.TVOC), 10),
	}
}

// celsius returns 0 for a temperature that was never measured.
func celsius(t physic.Temperature) float64 {
	if t == 0 {
		return 0
	}
	return t.Celsius()
}

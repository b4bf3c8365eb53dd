// Copyright 2017 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package console prints monitor snapshots to a terminal, with a coloured
// block rating the CO2 concentration using ANSI color codes.
package console

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/color"
	"io"
	"time"

	"github.com/GermanBionicSystems/airquality/monitor"
	"github.com/GermanBionicSystems/airquality/scd30"
	"github.com/maruel/ansi256"
	"github.com/mattn/go-colorable"
	"periph.io/x/conn/v3/physic"
)

// DefaultInterval is the print period used when Opts.Interval is zero.
const DefaultInterval = 3 * time.Second

// Separator starts every printed snapshot.
const Separator = "---------------------------"

// Source provides the state to print. Implemented by *monitor.Monitor.
type Source interface {
	Snapshot() monitor.State
}

// Opts represents the options available for the printer.
type Opts struct {
	// W defaults to a colorable stdout.
	W        io.Writer
	Palette  *ansi256.Palette
	Interval time.Duration
	// NoColor omits the CO2 level block.
	NoColor bool

	_ struct{}
}

// Printer writes snapshots to the console.
type Printer struct {
	w        io.Writer
	src      Source
	palette  ansi256.Palette
	interval time.Duration
	noColor  bool

	buf bytes.Buffer
}

// New returns a Printer for src.
func New(src Source, opts *Opts) (*Printer, error) {
	if src == nil {
		return nil, errors.New("console: nil source")
	}
	if opts == nil {
		opts = &Opts{}
	}
	p := opts.Palette
	if p == nil {
		p = ansi256.Default
	}
	w := opts.W
	if w == nil {
		w = colorable.NewColorableStdout()
	}
	interval := opts.Interval
	if interval == 0 {
		interval = DefaultInterval
	}
	if interval < 0 {
		return nil, errors.New("console: negative interval")
	}
	return &Printer{w: w, src: src, palette: *p, interval: interval, noColor: opts.NoColor}, nil
}

func (p *Printer) String() string {
	return "Console"
}

// Halt implements conn.Resource.
//
// It resets the terminal colors.
func (p *Printer) Halt() error {
	_, err := p.w.Write([]byte("\033[0m\n"))
	return err
}

// Print writes the current snapshot.
func (p *Printer) Print() error {
	s := p.src.Snapshot()
	p.buf.Reset()
	_, _ = fmt.Fprintln(&p.buf, Separator)
	if !p.noColor {
		_, _ = io.WriteString(&p.buf, p.palette.Block(Level(s.CO2)))
		_, _ = p.buf.WriteString("\033[0m ")
	}
	_, _ = fmt.Fprintf(&p.buf, "CO2: %d ppm\n", int(s.CO2))
	_, _ = fmt.Fprintf(&p.buf, "eCO2: %d ppm\n", s.ECO2)
	_, _ = fmt.Fprintf(&p.buf, "temp: %.2f C\n", celsius(s.Temperature))
	_, _ = fmt.Fprintf(&p.buf, "hum: %d%%\n", int(s.Humidity/physic.PercentRH))
	_, _ = fmt.Fprintf(&p.buf, "TVOC: %d ppb\n", s.TVOC)
	_, err := p.buf.WriteTo(p.w)
	return err
}

// Run prints once per interval until ctx is cancelled.
func (p *Printer) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := p.Print(); err != nil {
				return err
			}
		}
	}
}

// Level returns the colour rating a CO2 concentration: green below 800 PPM,
// yellow below 1000, orange below 1400, red above.
func Level(co2 scd30.PPM) color.NRGBA {
	switch {
	case co2 < 800:
		return color.NRGBA{0, 200, 0, 255}
	case co2 < 1000:
		return color.NRGBA{230, 220, 0, 255}
	case co2 < 1400:
		return color.NRGBA{255, 128, 0, 255}
	default:
		return color.NRGBA{220, 0, 0, 255}
	}
}

func celsius(t physic.Temperature) float64 {
	if t == 0 {
		return 0
	}
	return t.Celsius()
}

var _ fmt.Stringer = &Printer{}

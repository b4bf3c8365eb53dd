// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package dataready

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"periph.io/x/conn/v3/gpio"
)

// Strategy is chosen once when a driver is constructed. The zero value is
// Polled.
type Strategy struct {
	signal *Signal
}

// Polled returns the strategy that queries the sensor on every check.
func Polled() Strategy {
	return Strategy{}
}

// EdgeTriggered returns the strategy that reads the latch of s. A nil s is
// the same as Polled.
func EdgeTriggered(s *Signal) Strategy {
	return Strategy{signal: s}
}

// Signal returns the latch used by an EdgeTriggered strategy, or nil when
// the strategy is Polled.
func (s Strategy) Signal() *Signal {
	return s.signal
}

func (s Strategy) String() string {
	if s.signal == nil {
		return "polled"
	}
	return "edge-triggered(" + s.signal.String() + ")"
}

// How long the watcher blocks in WaitForEdge before checking for Halt.
const waitTimeout = 500 * time.Millisecond

// Signal is a one bit latch raised by a data ready line.
type Signal struct {
	pin    gpio.PinIn
	active gpio.Level
	raised atomic.Bool

	mu     sync.Mutex
	halt   chan struct{}
	done   chan struct{}
	halted bool
}

// NewSignal configures pin for edge detection and starts watching it. Use
// gpio.RisingEdge for active high lines (SCD30 RDY) and gpio.FallingEdge for
// active low ones (CCS811 nINT). Call Halt to stop watching.
//
// If the line is already at its active level, the latch starts raised: the
// edge for that sample happened before anyone was listening.
func NewSignal(pin gpio.PinIn, edge gpio.Edge) (*Signal, error) {
	if pin == nil {
		return nil, errors.New("dataready: nil pin")
	}
	s := &Signal{pin: pin, halt: make(chan struct{}), done: make(chan struct{})}
	pull := gpio.PullDown
	switch edge {
	case gpio.RisingEdge:
		s.active = gpio.High
	case gpio.FallingEdge:
		s.active = gpio.Low
		pull = gpio.PullUp
	default:
		return nil, fmt.Errorf("dataready: unsupported edge %s", edge)
	}
	if err := pin.In(pull, edge); err != nil {
		return nil, fmt.Errorf("dataready: %s: %w", pin, err)
	}
	if pin.Read() == s.active {
		s.Raise()
	}
	go s.watch()
	return s, nil
}

// NewCallbackSignal returns a Signal without a pin. The signal source calls
// Raise on every active edge.
func NewCallbackSignal() *Signal {
	s := &Signal{halt: make(chan struct{}), done: make(chan struct{})}
	close(s.done)
	return s
}

func (s *Signal) watch() {
	defer close(s.done)
	for {
		select {
		case <-s.halt:
			return
		default:
		}
		if s.pin.WaitForEdge(waitTimeout) && s.pin.Read() == s.active {
			s.Raise()
		}
	}
}

// Raise sets the latch.
func (s *Signal) Raise() {
	s.raised.Store(true)
}

// Raised reports whether an edge was seen since the last Clear.
func (s *Signal) Raised() bool {
	return s.raised.Load()
}

// Clear resets the latch. Drivers call it right before reading the sample
// the edge announced.
func (s *Signal) Clear() {
	s.raised.Store(false)
}

// Halt stops the pin watcher and waits for it to exit. It is safe to call
// more than once.
func (s *Signal) Halt() error {
	s.mu.Lock()
	if !s.halted {
		s.halted = true
		close(s.halt)
	}
	s.mu.Unlock()
	<-s.done
	return nil
}

func (s *Signal) String() string {
	if s.pin == nil {
		return "callback"
	}
	return s.pin.String()
}

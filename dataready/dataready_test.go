// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package dataready

import (
	"testing"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
)

// waitFor polls cond until it is true or a second elapsed.
func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return cond()
}

func TestStrategy(t *testing.T) {
	if Polled().Signal() != nil {
		t.Error("Polled() has a signal")
	}
	if (Strategy{}).Signal() != nil {
		t.Error("zero Strategy isn't polled")
	}
	if EdgeTriggered(nil).Signal() != nil {
		t.Error("EdgeTriggered(nil) isn't polled")
	}
	s := NewCallbackSignal()
	st := EdgeTriggered(s)
	if st.Signal() != s {
		t.Error("EdgeTriggered() lost its signal")
	}
	if st.String() != "edge-triggered(callback)" || Polled().String() != "polled" {
		t.Errorf("unexpected String() values %q %q", st.String(), Polled().String())
	}
}

func TestSignalRisingEdge(t *testing.T) {
	pin := &gpiotest.Pin{N: "GPIO4", Num: 4, EdgesChan: make(chan gpio.Level)}
	s, err := NewSignal(pin, gpio.RisingEdge)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = s.Halt() }()
	if pin.Pull() != gpio.PullDown {
		t.Errorf("expected pull down, got %s", pin.Pull())
	}
	if s.Raised() {
		t.Fatal("raised before any edge")
	}

	pin.EdgesChan <- gpio.High
	if !waitFor(s.Raised) {
		t.Fatal("rising edge didn't raise the latch")
	}
	// The latch holds until cleared, even when the line drops.
	pin.EdgesChan <- gpio.Low
	time.Sleep(10 * time.Millisecond)
	if !s.Raised() {
		t.Error("latch dropped with the line")
	}
	s.Clear()
	if s.Raised() {
		t.Error("Clear() didn't reset the latch")
	}
	pin.EdgesChan <- gpio.Low
	time.Sleep(10 * time.Millisecond)
	if s.Raised() {
		t.Error("inactive level raised the latch")
	}
	if s.String() != "GPIO4(4)" {
		t.Errorf("unexpected String() %q", s.String())
	}
}

func TestSignalFallingEdge(t *testing.T) {
	pin := &gpiotest.Pin{N: "GPIO17", Num: 17, EdgesChan: make(chan gpio.Level)}
	s, err := NewSignal(pin, gpio.FallingEdge)
	if err != nil {
		t.Fatal(err)
	}
	if pin.Pull() != gpio.PullUp {
		t.Errorf("expected pull up, got %s", pin.Pull())
	}
	if s.Raised() {
		t.Fatal("raised before any edge")
	}
	pin.EdgesChan <- gpio.Low
	if !waitFor(s.Raised) {
		t.Fatal("falling edge didn't raise the latch")
	}
	if err := s.Halt(); err != nil {
		t.Fatal(err)
	}
	// Halt is idempotent.
	if err := s.Halt(); err != nil {
		t.Fatal(err)
	}
}

func TestNewSignalErrors(t *testing.T) {
	if _, err := NewSignal(nil, gpio.RisingEdge); err == nil {
		t.Error("nil pin accepted")
	}
	pin := &gpiotest.Pin{N: "GPIO4", EdgesChan: make(chan gpio.Level)}
	if _, err := NewSignal(pin, gpio.NoEdge); err == nil {
		t.Error("NoEdge accepted")
	}
	// gpiotest refuses edge detection without a channel.
	if _, err := NewSignal(&gpiotest.Pin{N: "GPIO5"}, gpio.RisingEdge); err == nil {
		t.Error("pin error not returned")
	}
}

func TestCallbackSignal(t *testing.T) {
	s := NewCallbackSignal()
	if s.Raised() {
		t.Fatal("new signal raised")
	}
	s.Raise()
	s.Raise()
	if !s.Raised() {
		t.Fatal("Raise() ignored")
	}
	s.Clear()
	if s.Raised() {
		t.Fatal("Clear() ignored")
	}
	if err := s.Halt(); err != nil {
		t.Fatal(err)
	}
}

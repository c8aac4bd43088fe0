// SPDX-License-Identifier: MIT
//
// Copyright © 2024 Kent Gibson <warthog618@gmail.com>.

//go:build linux
// +build linux

// Package chardev provides GPIO access through the GPIO character device of
// the Linux kernel, using gpiod.
//
// Unlike the bcm package this works on any board with a GPIO chip, at the
// cost of a system call per operation.
package chardev

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/warthog618/gpiod"
	"github.com/warthog618/pitrig"
	"github.com/warthog618/pitrig/clock"
)

// DefaultChip is the GPIO chip of the Raspberry Pi header.
const DefaultChip = "gpiochip0"

const consumer = "pitrig"

var (
	// ErrClosed indicates an operation on a Chip that is not open.
	ErrClosed = errors.New("chip not open")
	// ErrInvalidPin indicates a pin outside the range of the chip.
	ErrInvalidPin = errors.New("invalid pin")
)

// Chip provides access to the lines of a GPIO chip.
//
// Lines are requested on first use and held until the Chip is closed.
type Chip struct {
	clock.Monotonic

	name string

	mu    sync.Mutex // Guards the following
	chip  *gpiod.Chip
	lines map[int]*gpiod.Line
	// levels written to lines, applied when they become outputs.
	levels map[int]int
	modes  map[int]pitrig.Mode
}

// New creates a Chip for the named GPIO chip, e.g. "gpiochip0".
func New(name string) *Chip {
	return &Chip{name: name}
}

// Open opens the GPIO chip.
func (c *Chip) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.chip != nil {
		return nil
	}
	chip, err := gpiod.NewChip(c.name, gpiod.WithConsumer(consumer))
	if err != nil {
		return errors.Wrapf(err, "open %s", c.name)
	}
	c.chip = chip
	c.lines = make(map[int]*gpiod.Line)
	c.levels = make(map[int]int)
	c.modes = make(map[int]pitrig.Mode)
	return nil
}

// Close releases any requested lines and the GPIO chip.
func (c *Chip) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.chip == nil {
		return nil
	}
	for _, l := range c.lines {
		l.Close()
	}
	c.lines = nil
	err := c.chip.Close()
	c.chip = nil
	return errors.Wrapf(err, "close %s", c.name)
}

// SetMode requests the line as an input or output.
// An output is driven to the level last written to it, or Low.
func (c *Chip) SetMode(pin int, mode pitrig.Mode) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check(pin); err != nil {
		return err
	}
	var opt lineOption = gpiod.AsInput
	if mode == pitrig.Output {
		opt = gpiod.AsOutput(c.levels[pin])
	}
	if l, ok := c.lines[pin]; ok {
		if err := l.Reconfigure(opt); err != nil {
			return errors.Wrapf(err, "reconfigure line %d", pin)
		}
	} else {
		l, err := c.chip.RequestLine(pin, opt)
		if err != nil {
			return errors.Wrapf(err, "request line %d", pin)
		}
		c.lines[pin] = l
	}
	c.modes[pin] = mode
	return nil
}

// SetPull sets the bias of the line.
// The line is requested as an input if not already requested.
func (c *Chip) SetPull(pin int, pull pitrig.Pull) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check(pin); err != nil {
		return err
	}
	opt := biasOption(pull)
	if l, ok := c.lines[pin]; ok {
		return errors.Wrapf(l.Reconfigure(opt), "set bias of line %d", pin)
	}
	l, err := c.chip.RequestLine(pin, gpiod.AsInput, opt)
	if err != nil {
		return errors.Wrapf(err, "request line %d", pin)
	}
	c.lines[pin] = l
	c.modes[pin] = pitrig.Input
	return nil
}

// Read returns the level of the line.
// The line is requested as an input if not already requested.
func (c *Chip) Read(pin int) (pitrig.Level, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check(pin); err != nil {
		return pitrig.Low, err
	}
	l, ok := c.lines[pin]
	if !ok {
		var err error
		l, err = c.chip.RequestLine(pin, gpiod.AsInput)
		if err != nil {
			return pitrig.Low, errors.Wrapf(err, "request line %d", pin)
		}
		c.lines[pin] = l
		c.modes[pin] = pitrig.Input
	}
	v, err := l.Value()
	if err != nil {
		return pitrig.Low, errors.Wrapf(err, "read line %d", pin)
	}
	return v != 0, nil
}

// Write sets the level of the line.
// If the line is not an output the level is held and applied when it
// becomes one.
func (c *Chip) Write(pin int, level pitrig.Level) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check(pin); err != nil {
		return err
	}
	v := 0
	if level {
		v = 1
	}
	c.levels[pin] = v
	if c.modes[pin] != pitrig.Output {
		return nil
	}
	return errors.Wrapf(c.lines[pin].SetValue(v), "write line %d", pin)
}

// biasOption returns the line bias corresponding to the pull.
func biasOption(pull pitrig.Pull) lineOption {
	switch pull {
	case pitrig.PullDown:
		return gpiod.WithPullDown
	case pitrig.PullUp:
		return gpiod.WithPullUp
	}
	return gpiod.WithBiasDisabled
}

// lineOption is an option applicable both when requesting and reconfiguring
// a line.
type lineOption interface {
	gpiod.LineReqOption
	gpiod.LineConfigOption
}

// check assumes the caller holds mu.
func (c *Chip) check(pin int) error {
	if c.chip == nil {
		return ErrClosed
	}
	if pin < 0 || pin >= c.chip.Lines() {
		return ErrInvalidPin
	}
	return nil
}

var _ pitrig.Hardware = (*Chip)(nil)

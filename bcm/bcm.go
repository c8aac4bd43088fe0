// SPDX-License-Identifier: MIT
//
// Copyright © 2024 Kent Gibson <warthog618@gmail.com>.

//go:build linux
// +build linux

// Package bcm provides register level GPIO access on the Raspberry Pi
// (rev 2 and later) through /dev/gpiomem.
//
// The Chip implements pitrig.Hardware.
// The library uses the raw BCM2835 pin numbers, not the ports as they are
// mapped on the J8 output pins for the Raspberry Pi.
//
// See the datasheet for full details of the BCM2835 controller:
// http://www.raspberrypi.org/wp-content/uploads/2012/02/BCM2835-ARM-Peripherals.pdf
package bcm

import (
	"bytes"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/warthog618/pitrig"
	"github.com/warthog618/pitrig/clock"
)

// Chipset identifies the GPIO controller.
type Chipset int

const (
	// Unknown indicates the chipset has not been determined.
	Unknown Chipset = iota
	// BCM2835 covers the BCM2835, BCM2836 and BCM2837 (Pi 0 to 3).
	BCM2835
	// BCM2711 is the Pi 4.
	BCM2711
)

func (c Chipset) String() string {
	switch c {
	case BCM2835:
		return "bcm2835"
	case BCM2711:
		return "bcm2711"
	}
	return "unknown"
}

// MaxGPIOPin is one more than the highest GPIO on the controller.
const MaxGPIOPin = 54

const (
	memLength = 4096

	modeMask uint32 = 7 // pin mode is 3 bits wide
	pullMask uint32 = 3 // pull mode is 2 bits wide
	// BCM2835 pullReg is the same for all pins.
	pullReg2835 = 37

	defaultPath    = "/dev/gpiomem"
	compatiblePath = "/proc/device-tree/compatible"
)

// fsel values for the pin modes.
const (
	fselInput  uint32 = 0
	fselOutput uint32 = 1
)

var (
	// ErrClosed indicates an operation on a Chip that is not open.
	ErrClosed = errors.New("gpiomem not open")
	// ErrAlreadyOpen indicates the Chip is already open.
	ErrAlreadyOpen = errors.New("already open")
	// ErrInvalidPin indicates a pin outside the range of the controller.
	ErrInvalidPin = errors.New("invalid pin")
)

// Chip provides access to the GPIO registers of a BCM283x/BCM2711.
type Chip struct {
	clock.Monotonic

	path    string
	chipset Chipset

	// The mu is write locked for read/modify/write access to the mem block
	// and for mapping and unmapping it.
	// Individual reads and writes only need the read lock, on the assumption
	// that concurrent register writes are atomic. e.g. Read, Write.
	mu   sync.RWMutex
	mem  []uint32
	mem8 []byte
}

// Option modifies the construction of a Chip.
type Option func(*Chip)

// WithPath overrides the path to the GPIO memory device.
func WithPath(path string) Option {
	return func(c *Chip) {
		c.path = path
	}
}

// WithChipset overrides the detection of the chipset.
func WithChipset(cs Chipset) Option {
	return func(c *Chip) {
		c.chipset = cs
	}
}

// New creates a Chip.
// The chip must be opened before use.
func New(options ...Option) *Chip {
	c := &Chip{path: defaultPath}
	for _, option := range options {
		option(c)
	}
	return c
}

// Chipset returns the chipset the Chip drives.
func (c *Chip) Chipset() Chipset {
	return c.chipset
}

// SetMode sets the pin function to input or output.
func (c *Chip) SetMode(pin int, mode pitrig.Mode) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check(pin); err != nil {
		return err
	}
	fsel := fselInput
	if mode == pitrig.Output {
		fsel = fselOutput
	}
	reg := pin / 10
	// shift for pin mode field within fsel register.
	shift := uint(pin%10) * 3
	c.mem[reg] = c.mem[reg]&^(modeMask<<shift) | fsel<<shift
	return nil
}

// Mode returns the mode of the pin in the Function Select register.
// Alternate functions are reported as neither Input nor Output.
func (c *Chip) Mode(pin int) (pitrig.Mode, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.check(pin); err != nil {
		return pitrig.Input, err
	}
	shift := uint(pin%10) * 3
	switch c.mem[pin/10] >> shift & modeMask {
	case fselInput:
		return pitrig.Input, nil
	case fselOutput:
		return pitrig.Output, nil
	}
	return pitrig.Mode(-1), nil
}

// SetPull sets the pull up/down mode for a pin.
// Unlike the mode, the pull value cannot be read back from hardware and
// so must be remembered by the caller.
func (c *Chip) SetPull(pin int, pull pitrig.Pull) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check(pin); err != nil {
		return err
	}
	switch c.chipset {
	case BCM2711:
		c.setPull2711(pin, pull)
	default:
		c.setPull2835(pin, pull)
	}
	return nil
}

func (c *Chip) setPull2835(pin int, pull pitrig.Pull) {
	bank := pin / 32
	clkReg := bank + 38
	c.mem[pullReg2835] = c.mem[pullReg2835]&^pullMask | uint32(pull)
	// Wait for value to clock in, this is ugly, sorry :(
	// This wait corresponds to at least 150 clock cycles.
	time.Sleep(time.Microsecond)
	c.mem[clkReg] = mask(pin)
	// Wait for value to clock in
	time.Sleep(time.Microsecond)
	c.mem[pullReg2835] = c.mem[pullReg2835] &^ pullMask
	c.mem[clkReg] = 0
}

func (c *Chip) setPull2711(pin int, pull pitrig.Pull) {
	// 2711 reverses up/down sense
	switch pull {
	case pitrig.PullUp:
		pull = pitrig.PullDown
	case pitrig.PullDown:
		pull = pitrig.PullUp
	}
	reg := 57 + pin/16
	shift := uint(pin&0x0f) << 1
	c.mem[reg] = c.mem[reg]&^(pullMask<<shift) | uint32(pull)<<shift
}

// Read returns the level of the pin.
func (c *Chip) Read(pin int) (pitrig.Level, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.check(pin); err != nil {
		return pitrig.Low, err
	}
	// Input level register offset (13 / 14 depending on bank)
	levelReg := 13 + pin/32
	if c.mem[levelReg]&mask(pin) != 0 {
		return pitrig.High, nil
	}
	return pitrig.Low, nil
}

// Write sets the level of the pin.
// The level is latched if the pin is an input, and driven once the pin
// becomes an output.
func (c *Chip) Write(pin int, level pitrig.Level) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.check(pin); err != nil {
		return err
	}
	bank := pin / 32
	if level == pitrig.Low {
		// Clear register, 10 / 11 depending on bank
		c.mem[10+bank] = mask(pin)
	} else {
		// Set register, 7 / 8 depending on bank
		c.mem[7+bank] = mask(pin)
	}
	return nil
}

// check assumes the caller holds mu.
func (c *Chip) check(pin int) error {
	if len(c.mem) == 0 {
		return ErrClosed
	}
	if pin < 0 || pin >= MaxGPIOPin {
		return ErrInvalidPin
	}
	return nil
}

func mask(pin int) uint32 {
	return uint32(1) << uint(pin&0x1f)
}

// Detect identifies the chipset of the host from the device tree.
func Detect() Chipset {
	compat, err := os.ReadFile(compatiblePath)
	if err != nil {
		return Unknown
	}
	return chipsetFromCompatible(compat)
}

func chipsetFromCompatible(compat []byte) Chipset {
	switch {
	case bytes.Contains(compat, []byte("bcm2711")):
		return BCM2711
	case bytes.Contains(compat, []byte("bcm2835")),
		bytes.Contains(compat, []byte("bcm2836")),
		bytes.Contains(compat, []byte("bcm2837")):
		return BCM2835
	}
	return Unknown
}

var _ pitrig.Hardware = (*Chip)(nil)

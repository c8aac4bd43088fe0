// SPDX-License-Identifier: MIT
//
// Copyright © 2024 Kent Gibson <warthog618@gmail.com>.

// Package pitrig provides a minimal trigger layer over the GPIO lines of a
// Raspberry Pi.
//
// Supports:
// - a hardware session with an explicit lifecycle (initialise/terminate)
// - pin configuration as input (pulled down) or output (idle high)
// - a fixed width, active low, trigger pulse
// - a polled wait for an input to go high, with a bounded timeout
//
// The package intentionally does not support edge interrupts. Waits poll the
// line at a fixed period using the microsecond tick of the hardware.
//
// Example of use:
//
//	s, err := pitrig.New(hw)
//	if err != nil {
//		return err
//	}
//	if err := s.Initialize(); err != nil {
//		return err
//	}
//	defer s.Terminate()
//
//	s.ConfigureOutput(23)
//	s.ConfigureInput(24)
//	s.Pulse(23)
//	outcome, err := s.WaitForHigh(24, 1000000)
//
// Pins are identified by their BCM GPIO number, not the J8 header position.
package pitrig

// Level represents the high (true) or low (false) level of a pin.
type Level bool

// Mode defines the direction of a pin.
type Mode int

// Pull defines the bias applied to an input pin.
type Pull int

// Level of pin, High / Low
const (
	Low  Level = false
	High Level = true
)

// Pin Mode, a pin can be set in Input or Output mode
const (
	Input Mode = iota
	Output
)

// Pull Up / Down / Off
const (
	PullNone Pull = iota
	PullDown
	PullUp
)

func (l Level) String() string {
	if l {
		return "high"
	}
	return "low"
}

func (m Mode) String() string {
	switch m {
	case Input:
		return "input"
	case Output:
		return "output"
	}
	return "unknown"
}

func (p Pull) String() string {
	switch p {
	case PullNone:
		return "none"
	case PullDown:
		return "down"
	case PullUp:
		return "up"
	}
	return "unknown"
}

// Hardware is the low level access to the GPIO block of a board.
//
// Implementations are provided by the bcm, chardev and sim packages.
// Hardware is not expected to track any lifecycle beyond Open and Close;
// that is the job of the Session.
type Hardware interface {
	// Open acquires the device.
	Open() error
	// Close releases the device.
	Close() error
	SetMode(pin int, mode Mode) error
	SetPull(pin int, pull Pull) error
	Read(pin int) (Level, error)
	Write(pin int, level Level) error
	// Tick returns a free running microsecond counter.
	// The counter wraps at 2^32.
	Tick() uint32
	// Delay blocks for at least us microseconds.
	Delay(us uint32)
}

// Watchdog is implemented by Hardware that can raise a notification when a
// pin has not changed level within a window.
type Watchdog interface {
	// SetWatchdog arms the watchdog on the pin with a window of ms
	// milliseconds. A zero ms disarms it.
	SetWatchdog(pin int, ms uint32) error
}

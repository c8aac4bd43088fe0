// SPDX-License-Identifier: MIT
//
// Copyright © 2024 Kent Gibson <warthog618@gmail.com>.

//go:build linux
// +build linux

// Package clock provides the microsecond tick and delay used by the hardware
// backends.
package clock

import (
	"time"

	"golang.org/x/sys/unix"
)

// SpinThreshold is the delay, in microseconds, below which Delay spins on the
// tick rather than sleeping.
// The scheduler cannot reliably wake a sleeping thread with less latency.
const SpinThreshold = 100

// Monotonic provides the Tick and Delay of pitrig.Hardware from the
// CLOCK_MONOTONIC of the kernel.
// It may be embedded in a Hardware implementation.
type Monotonic struct{}

// Tick returns the monotonic clock in microseconds, truncated to 32 bits.
func (Monotonic) Tick() uint32 {
	return Tick()
}

// Delay blocks for at least us microseconds.
func (Monotonic) Delay(us uint32) {
	Delay(us)
}

// Tick returns the monotonic clock in microseconds, truncated to 32 bits.
func Tick() uint32 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		// CLOCK_MONOTONIC is always supported on linux
		panic(err)
	}
	return uint32(ts.Nano() / 1000)
}

// Delay blocks for at least us microseconds.
// Short delays spin, longer delays sleep.
func Delay(us uint32) {
	if us >= SpinThreshold {
		time.Sleep(time.Duration(us) * time.Microsecond)
		return
	}
	if us == 0 {
		return
	}
	// the tick is truncated, so wait for one extra tick to be sure
	start := Tick()
	for Tick()-start <= us {
	}
}

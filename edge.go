// SPDX-License-Identifier: MIT
//
// Copyright © 2024 Kent Gibson <warthog618@gmail.com>.

package pitrig

import (
	"context"
	"math"

	"github.com/pkg/errors"
)

// Outcome is the result of a wait for an edge.
type Outcome int

const (
	// TimedOut indicates the pin did not go high within the timeout.
	TimedOut Outcome = iota
	// DetectedHigh indicates the pin was read high.
	DetectedHigh
)

func (o Outcome) String() string {
	if o == DetectedHigh {
		return "detected high"
	}
	return "timed out"
}

// Elapsed returns the microseconds from start to now.
// The unsigned subtraction is correct across a single wrap of the tick counter.
func Elapsed(start, now uint32) uint32 {
	return now - start
}

// WaitForHigh polls the pin until it reads High or the timeout, in
// microseconds, expires.
//
// A pin that is already High returns DetectedHigh immediately, whatever the
// timeout. A timeout of zero, or less, disables the timeout and the call
// blocks until the pin goes High.
func (s *Session) WaitForHigh(pin int, timeout int) (Outcome, error) {
	return s.WaitForHighContext(context.Background(), pin, timeout)
}

// WaitForHighContext is WaitForHigh with cancellation.
//
// The ctx is checked once per poll, so cancellation is noticed within one poll
// period. A cancelled wait returns TimedOut and the ctx error.
func (s *Session) WaitForHighContext(ctx context.Context, pin int, timeout int) (Outcome, error) {
	if err := s.ready("wait for high", pin); err != nil {
		return TimedOut, err
	}
	// elapsed must be able to exceed the timeout before the tick wraps,
	// and may overshoot it by up to a poll period.
	if timeout > 0 && uint64(timeout) > math.MaxUint32-uint64(s.period) {
		return TimedOut, ErrTimeoutRange
	}
	if s.watchdog {
		if disarm := s.armWatchdog(pin, timeout); disarm != nil {
			defer disarm()
		}
	}
	s.logger.Debug("busy-wait", "pin", pin, "timeout", timeout, "period", s.period)
	start := s.hw.Tick()
	for {
		l, err := s.hw.Read(pin)
		if err != nil {
			return TimedOut, errors.Wrapf(err, "read pin %d", pin)
		}
		if l == High {
			s.logger.Info("detected high", "pin", pin)
			return DetectedHigh, nil
		}
		elapsed := Elapsed(start, s.hw.Tick())
		if timeout > 0 && elapsed > uint32(timeout) {
			s.logger.Warn("timeout", "pin", pin, "elapsed", elapsed)
			return TimedOut, nil
		}
		if err := ctx.Err(); err != nil {
			return TimedOut, err
		}
		s.hw.Delay(s.period)
	}
}

// armWatchdog arms the hardware watchdog for the wait and returns the func to
// disarm it, or nil if the watchdog was not armed.
// The watchdog has millisecond resolution so timeouts below 1ms are left to
// the poll loop.
func (s *Session) armWatchdog(pin int, timeout int) func() {
	wd, ok := s.hw.(Watchdog)
	if !ok {
		s.logger.Debug("hardware has no watchdog", "pin", pin)
		return nil
	}
	ms := uint32(0)
	if timeout > 0 {
		ms = uint32(timeout / 1000)
	}
	if ms == 0 {
		return nil
	}
	if err := wd.SetWatchdog(pin, ms); err != nil {
		s.logger.Warn("failed to arm watchdog", "pin", pin, "err", err)
		return nil
	}
	return func() {
		if err := wd.SetWatchdog(pin, 0); err != nil {
			s.logger.Warn("failed to disarm watchdog", "pin", pin, "err", err)
		}
	}
}

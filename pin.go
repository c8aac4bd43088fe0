// SPDX-License-Identifier: MIT
//
// Copyright © 2024 Kent Gibson <warthog618@gmail.com>.

package pitrig

import (
	"github.com/pkg/errors"
)

// ConfigureInput sets the pin as an input with the pull-down enabled, so an
// unconnected pin reads Low.
func (s *Session) ConfigureInput(pin int) error {
	if err := s.ready("configure input", pin); err != nil {
		return err
	}
	if err := s.hw.SetMode(pin, Input); err != nil {
		return errors.Wrapf(err, "set pin %d to input", pin)
	}
	if err := s.hw.SetPull(pin, PullDown); err != nil {
		return errors.Wrapf(err, "set pin %d pull-down", pin)
	}
	s.logger.Info("configured for input with pull-down", "pin", pin)
	return nil
}

// ConfigureOutput sets the pin as an output driven High.
//
// Outputs are inverted - High is the idle state and a trigger is signalled
// by driving the pin Low.
// The level is set before the mode so the pin does not glitch Low.
func (s *Session) ConfigureOutput(pin int) error {
	if err := s.ready("configure output", pin); err != nil {
		return err
	}
	if err := s.hw.Write(pin, High); err != nil {
		return errors.Wrapf(err, "set pin %d high", pin)
	}
	if err := s.hw.SetMode(pin, Output); err != nil {
		return errors.Wrapf(err, "set pin %d to output", pin)
	}
	s.logger.Info("configured for inverted output and set high", "pin", pin)
	return nil
}

// Read returns the current level of the pin.
func (s *Session) Read(pin int) (Level, error) {
	if err := s.ready("read", pin); err != nil {
		return Low, err
	}
	l, err := s.hw.Read(pin)
	if err != nil {
		return Low, errors.Wrapf(err, "read pin %d", pin)
	}
	return l, nil
}

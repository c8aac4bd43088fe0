// SPDX-License-Identifier: MIT
//
// Copyright © 2024 Kent Gibson <warthog618@gmail.com>.

package pitrig

import (
	"github.com/pkg/errors"
)

// PulseWidth is the time, in microseconds, a pulse holds the pin Low.
const PulseWidth uint32 = 1000

// Pulse sends a trigger pulse on an output pin.
//
// The pin is driven Low, held for PulseWidth, then returned High.
// The pin should have been configured with ConfigureOutput.
func (s *Session) Pulse(pin int) error {
	if err := s.ready("pulse", pin); err != nil {
		return err
	}
	if err := s.hw.Write(pin, Low); err != nil {
		return errors.Wrapf(err, "pulse pin %d low", pin)
	}
	s.hw.Delay(PulseWidth)
	if err := s.hw.Write(pin, High); err != nil {
		return errors.Wrapf(err, "pulse pin %d high", pin)
	}
	s.logger.Info("trigger pulse sent", "pin", pin)
	return nil
}

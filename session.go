// SPDX-License-Identifier: MIT
//
// Copyright © 2024 Kent Gibson <warthog618@gmail.com>.

package pitrig

import (
	"os"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
)

// State is the lifecycle state of a Session.
type State int

const (
	// Uninitialized is the state of a new Session.
	Uninitialized State = iota
	// Ready indicates the hardware has been acquired.
	Ready
	// Terminated indicates the hardware has been released.
	Terminated
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Ready:
		return "ready"
	case Terminated:
		return "terminated"
	}
	return "unknown"
}

// DefaultPollPeriod is the period, in microseconds, between reads of the pin
// in WaitForHigh.
const DefaultPollPeriod uint32 = 100

var (
	// ErrNotInitialized indicates a pin operation on a Session that is not Ready.
	ErrNotInitialized = errors.New("not initialized")
	// ErrInvalidPin indicates a negative pin number.
	ErrInvalidPin = errors.New("invalid pin")
	// ErrInvalidPollPeriod indicates a zero poll period.
	ErrInvalidPollPeriod = errors.New("poll period must be positive")
	// ErrTimeoutRange indicates a timeout longer than the tick counter can
	// measure.
	ErrTimeoutRange = errors.New("timeout exceeds tick range")
)

// InitError indicates the hardware could not be acquired.
type InitError struct {
	Err error
}

func (e *InitError) Error() string {
	return "initialize: " + e.Err.Error()
}

// Unwrap returns the error returned by the hardware.
func (e *InitError) Unwrap() error {
	return e.Err
}

// Session is the process-wide handle to the GPIO hardware.
//
// All pin operations require the Session to be Ready.
type Session struct {
	// Immutable fields
	hw       Hardware
	logger   *log.Logger
	period   uint32
	watchdog bool

	// mu guards the state, and so the Open/Close of the hardware.
	mu    sync.Mutex
	state State
}

// Option modifies the configuration of a Session.
type Option func(*Session)

// WithLogger sets the logger used for diagnostics.
func WithLogger(l *log.Logger) Option {
	return func(s *Session) {
		s.logger = l
	}
}

// WithPollPeriod sets the period between reads of the pin while waiting for
// it to go high, in microseconds.
func WithPollPeriod(us uint32) Option {
	return func(s *Session) {
		s.period = us
	}
}

// WithWatchdog enables arming the hardware watchdog on a pin for the duration
// of a wait, if the hardware supports it.
func WithWatchdog() Option {
	return func(s *Session) {
		s.watchdog = true
	}
}

// New creates a Session on the hardware.
// The Session starts Uninitialized.
func New(hw Hardware, options ...Option) (*Session, error) {
	s := &Session{
		hw:     hw,
		period: DefaultPollPeriod,
	}
	for _, option := range options {
		option(s)
	}
	if s.period == 0 {
		return nil, ErrInvalidPollPeriod
	}
	if s.logger == nil {
		s.logger = log.NewWithOptions(os.Stderr, log.Options{Prefix: "pitrig"})
	}
	return s, nil
}

// Initialize acquires the hardware.
// Initializing a Ready Session is a no-op.
func (s *Session) Initialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Ready {
		return nil
	}
	if err := s.hw.Open(); err != nil {
		s.logger.Error("failed to initialize hardware", "err", err)
		return &InitError{Err: err}
	}
	s.state = Ready
	s.logger.Info("hardware initialized")
	return nil
}

// Terminate releases the hardware.
// Terminating a Session that is not Ready is a no-op.
// The Session is Terminated even if the hardware fails to close.
func (s *Session) Terminate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Ready {
		return nil
	}
	s.state = Terminated
	if err := s.hw.Close(); err != nil {
		s.logger.Error("failed to release hardware", "err", err)
		return errors.Wrap(err, "terminate")
	}
	s.logger.Info("hardware terminated")
	return nil
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Logger returns the logger used for diagnostics.
func (s *Session) Logger() *log.Logger {
	return s.logger
}

// ready checks the preconditions common to all pin operations.
func (s *Session) ready(op string, pin int) error {
	if s.State() != Ready {
		s.logger.Error("hardware not initialized, call Initialize first", "op", op, "pin", pin)
		return ErrNotInitialized
	}
	if pin < 0 {
		s.logger.Error("invalid pin", "op", op, "pin", pin)
		return ErrInvalidPin
	}
	return nil
}

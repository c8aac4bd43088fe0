// SPDX-License-Identifier: MIT
//
// Copyright © 2024 Kent Gibson <warthog618@gmail.com>.

// Package server provides a network trigger server for a pitrig Session.
//
// The server drives a trigger output pin and watches a trigger input pin on
// behalf of remote clients, such as data acquisition scripts that need to
// synchronise with an external device.
//
// The protocol is line based ASCII over TCP. Each command line receives a
// single reply line:
//
//	TRIG                                        -> OK
//	STATUS                                      -> READY
//	WAIT_TRIG [seconds]                         -> TRIGGERED | NO_TRIGGER
//
// A WAIT_TRIG of 0 seconds waits until a trigger arrives, the client closes
// the connection, or the server stops.
//	TEST_INPUT <pin> [iterations] [delay]       -> TEST_PASS | TEST_FAIL
//	TEST_OUTPUT <pin> [iterations] [delay]      -> TEST_PASS | TEST_FAIL
//
// Failures are reported as "ERR <reason>".
package server

import (
	"bufio"
	"context"
	"io"
	"math"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
	"github.com/warthog618/pitrig"
	"golang.org/x/time/rate"
)

// Commands
const (
	CmdTrig       = "TRIG"
	CmdStatus     = "STATUS"
	CmdWaitTrig   = "WAIT_TRIG"
	CmdTestInput  = "TEST_INPUT"
	CmdTestOutput = "TEST_OUTPUT"
)

// Replies
const (
	ReplyOK         = "OK"
	ReplyReady      = "READY"
	ReplyTriggered  = "TRIGGERED"
	ReplyNoTrigger  = "NO_TRIGGER"
	ReplyTestPass   = "TEST_PASS"
	ReplyTestFail   = "TEST_FAIL"
	ReplyErrPrefix  = "ERR "
	ErrEmptyCommand = ReplyErrPrefix + "EMPTY_COMMAND"
	ErrMissingPin   = ReplyErrPrefix + "MISSING_PIN"
	ErrInvalidParam = ReplyErrPrefix + "INVALID_PARAMETERS"
	ErrInvalidTime  = ReplyErrPrefix + "INVALID_TIMEOUT"
	ErrUnknownCmd   = ReplyErrPrefix + "UNKNOWN_CMD"
)

const (
	// DefaultWaitTimeout is the WAIT_TRIG timeout if none is provided.
	DefaultWaitTimeout = time.Second
	// DefaultTestIterations is the number of cycles run by the TEST commands.
	DefaultTestIterations = 5
	// DefaultTestDelay is the delay between cycles of the TEST commands.
	DefaultTestDelay = 100 * time.Millisecond
	// testInputTimeout is the time allowed for each TEST_INPUT detection.
	testInputTimeout = 1000000
)

// Server handles trigger commands for a Session.
type Server struct {
	session *pitrig.Session
	out     int
	in      int
	logger  *log.Logger
	limiter *rate.Limiter
	version string

	// mu serialises commands as the hardware operations are synchronous.
	mu sync.Mutex
}

// Option modifies the construction of a Server.
type Option func(*Server)

// WithLogger sets the logger for the server.
func WithLogger(l *log.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithMinTriggerInterval sets the minimum time between TRIG pulses.
// A TRIG arriving sooner is delayed until the interval has passed.
func WithMinTriggerInterval(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.limiter = rate.NewLimiter(rate.Every(d), 1)
		}
	}
}

// WithVersion sets the version reported by the HTTP interface.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = v
	}
}

// New creates a Server that pulses the out pin and waits on the in pin.
//
// The session must be Ready. The out pin is configured as an output and the
// in pin as an input.
func New(session *pitrig.Session, out, in int, options ...Option) (*Server, error) {
	s := &Server{
		session: session,
		out:     out,
		in:      in,
		limiter: rate.NewLimiter(rate.Inf, 1),
		version: "dev",
	}
	for _, option := range options {
		option(s)
	}
	if s.logger == nil {
		s.logger = log.NewWithOptions(os.Stderr, log.Options{Prefix: "server"})
	}
	if err := session.ConfigureOutput(out); err != nil {
		return nil, errors.Wrapf(err, "setup output pin %d", out)
	}
	if err := session.ConfigureInput(in); err != nil {
		return nil, errors.Wrapf(err, "setup input pin %d", in)
	}
	return s, nil
}

// ListenAndServe listens on the TCP address and serves until the ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", addr)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on the listener until the ctx is done.
//
// Connections are served concurrently but commands are handled one at a time.
// Cancelling the ctx closes the listener and all connections, and abandons
// any wait in progress.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	var wg sync.WaitGroup
	defer wg.Wait()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	s.logger.Info("listening", "addr", ln.Addr())
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "accept")
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.serveConn(ctx, conn)
		}()
	}
}

// serveConn handles the commands from a connection in turn.
//
// The connection is read ahead of the command being handled, so the client
// closing the connection cancels a command in progress.
func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()
	// hangup is called when the client stops sending.
	cmdCtx, hangup := context.WithCancel(ctx)
	defer hangup()
	addr := conn.RemoteAddr()
	s.logger.Info("connected", "remote", addr)
	lines := make(chan string)
	go func() {
		defer hangup()
		defer close(lines)
		scanner := bufio.NewScanner(conn)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-cmdCtx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			s.logger.Warn("read failed", "remote", addr, "err", err)
		}
	}()
	for line := range lines {
		reply := s.Handle(cmdCtx, line)
		if _, err := io.WriteString(conn, reply+"\n"); err != nil {
			if ctx.Err() == nil {
				s.logger.Warn("write failed", "remote", addr, "err", err)
			}
			break
		}
	}
	s.logger.Info("disconnected", "remote", addr)
}

// Handle executes a single command and returns the reply.
// Commands are case insensitive.
func (s *Server) Handle(ctx context.Context, command string) string {
	fields := strings.Fields(strings.ToUpper(command))
	if len(fields) == 0 {
		return ErrEmptyCommand
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger.Debug("command", "cmd", fields)
	switch fields[0] {
	case CmdTrig:
		if err := s.trigger(ctx); err != nil {
			return errReply(err)
		}
		return ReplyOK
	case CmdStatus:
		return ReplyReady
	case CmdWaitTrig:
		us, err := parseWaitTimeout(fields[1:])
		if err != nil {
			return ErrInvalidTime
		}
		if us > math.MaxUint32 || us > math.MaxInt {
			return errReply(pitrig.ErrTimeoutRange)
		}
		o, err := s.session.WaitForHighContext(ctx, s.in, int(us))
		if err != nil {
			return errReply(err)
		}
		if o == pitrig.DetectedHigh {
			return ReplyTriggered
		}
		return ReplyNoTrigger
	case CmdTestInput, CmdTestOutput:
		if len(fields) < 2 {
			return ErrMissingPin
		}
		pin, iterations, delay, err := parseTestParams(fields[1:])
		if err != nil {
			return ErrInvalidParam
		}
		test := s.testInput
		if fields[0] == CmdTestOutput {
			test = s.testOutput
		}
		if test(ctx, pin, iterations, delay) {
			return ReplyTestPass
		}
		return ReplyTestFail
	}
	return ErrUnknownCmd
}

func (s *Server) trigger(ctx context.Context) error {
	if s.limiter.Limit() != rate.Inf {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	return s.session.Pulse(s.out)
}

// testInput waits for a signal on the pin for each iteration and passes if
// every one was detected.
func (s *Server) testInput(ctx context.Context, pin, iterations int, delay time.Duration) bool {
	logger := s.logger.With("test", "input", "pin", pin)
	logger.Info("starting", "iterations", iterations, "delay", delay)
	if err := s.session.ConfigureInput(pin); err != nil {
		logger.Error("test failed", "err", err)
		return false
	}
	detected := 0
	for i := 0; i < iterations; i++ {
		o, err := s.session.WaitForHighContext(ctx, pin, testInputTimeout)
		switch {
		case err != nil:
			logger.Error("error during detection", "iteration", i+1, "err", err)
		case o == pitrig.DetectedHigh:
			detected++
			logger.Info("signal detected", "iteration", i+1)
		default:
			logger.Warn("no signal detected", "iteration", i+1)
		}
		if err := sleep(ctx, delay); err != nil {
			break
		}
	}
	logger.Info("test complete", "successful", detected, "iterations", iterations)
	return detected == iterations
}

// testOutput pulses the pin for each iteration and passes if every pulse
// was sent.
func (s *Server) testOutput(ctx context.Context, pin, iterations int, delay time.Duration) bool {
	logger := s.logger.With("test", "output", "pin", pin)
	logger.Info("starting", "iterations", iterations, "delay", delay)
	if err := s.session.ConfigureOutput(pin); err != nil {
		logger.Error("test failed", "err", err)
		return false
	}
	sent := 0
	for i := 0; i < iterations; i++ {
		if err := s.session.Pulse(pin); err != nil {
			logger.Error("failed to send trigger", "iteration", i+1, "err", err)
		} else {
			sent++
			logger.Info("trigger sent", "iteration", i+1)
		}
		if err := sleep(ctx, delay); err != nil {
			break
		}
	}
	logger.Info("test complete", "successful", sent, "iterations", iterations)
	return sent == iterations
}

// parseWaitTimeout returns the WAIT_TRIG timeout in microseconds.
// A timeout of 0 waits until a trigger, or until the client disconnects.
// Positive timeouts are at least 1µs so they never become a wait forever.
func parseWaitTimeout(args []string) (float64, error) {
	if len(args) == 0 {
		return float64(DefaultWaitTimeout / time.Microsecond), nil
	}
	secs, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(secs) || math.IsInf(secs, 0) || secs < 0 {
		return 0, errors.New("out of range")
	}
	us := math.Round(secs * 1e6)
	if secs > 0 && us < 1 {
		us = 1
	}
	return us, nil
}

func parseTestParams(args []string) (pin, iterations int, delay time.Duration, err error) {
	iterations = DefaultTestIterations
	delay = DefaultTestDelay
	if pin, err = strconv.Atoi(args[0]); err != nil {
		return
	}
	if len(args) > 1 {
		if iterations, err = strconv.Atoi(args[1]); err != nil {
			return
		}
	}
	if len(args) > 2 {
		var secs float64
		if secs, err = strconv.ParseFloat(args[2], 64); err != nil {
			return
		}
		delay = time.Duration(secs * float64(time.Second))
	}
	if pin < 0 || iterations < 0 || delay < 0 {
		err = errors.New("out of range")
	}
	return
}

func errReply(err error) string {
	return ReplyErrPrefix + err.Error()
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

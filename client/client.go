// SPDX-License-Identifier: MIT
//
// Copyright © 2024 Kent Gibson <warthog618@gmail.com>.

// Package client provides a client for the pitrig trigger server.
package client

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
	"github.com/warthog618/pitrig/server"
)

// Defaults for a Client.
const (
	DefaultRetries    = 3
	DefaultTimeout    = 5 * time.Second
	DefaultRetryDelay = 500 * time.Millisecond
)

// replyMargin is the time left within the Timeout for the reply to a
// WAIT_TRIG to arrive.
const replyMargin = 500 * time.Millisecond

// UnexpectedReplyError indicates the server replied to a command with
// something other than what the command expects.
type UnexpectedReplyError struct {
	Command string
	Reply   string
}

func (e *UnexpectedReplyError) Error() string {
	return fmt.Sprintf("unexpected reply to %s: %q", e.Command, e.Reply)
}

// Client sends commands to a trigger server.
//
// Each command is sent on a new connection.
type Client struct {
	// Addr is the host:port of the server.
	Addr string
	// Retries is the number of attempts made to send a command.
	Retries int
	// Timeout bounds the connect, send and reply of each attempt.
	Timeout time.Duration
	// RetryDelay is the delay between attempts.
	RetryDelay time.Duration
	Logger     *log.Logger
}

// New creates a Client for the server at addr with the default settings.
func New(addr string) *Client {
	return &Client{
		Addr:       addr,
		Retries:    DefaultRetries,
		Timeout:    DefaultTimeout,
		RetryDelay: DefaultRetryDelay,
		Logger:     log.NewWithOptions(os.Stderr, log.Options{Prefix: "client"}),
	}
}

// Command sends the command and returns the reply, retrying on failure.
//
// Replies are returned as is, including ERR replies, which are not
// considered failures.
func (c *Client) Command(ctx context.Context, command string) (string, error) {
	retries := c.Retries
	if retries < 1 {
		retries = 1
	}
	var err error
	for attempt := 1; ; attempt++ {
		var reply string
		reply, err = c.send(ctx, command)
		if err == nil {
			return reply, nil
		}
		if attempt >= retries || ctx.Err() != nil {
			break
		}
		c.logger().Debug("retrying", "cmd", command, "attempt", attempt, "err", err)
		if serr := sleep(ctx, c.RetryDelay); serr != nil {
			break
		}
	}
	return "", errors.Wrapf(err, "%s failed after %d attempts", command, retries)
}

func (c *Client) send(ctx context.Context, command string) (string, error) {
	d := net.Dialer{Timeout: c.Timeout}
	conn, err := d.DialContext(ctx, "tcp", c.Addr)
	if err != nil {
		return "", err
	}
	defer conn.Close()
	if c.Timeout > 0 {
		conn.SetDeadline(time.Now().Add(c.Timeout))
	}
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Now())
	})
	defer stop()
	if _, err = io.WriteString(conn, command+"\n"); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", err
	}
	reply, err := bufio.NewReader(conn).ReadString('\n')
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if err != nil && (err != io.EOF || reply == "") {
		if err == io.EOF {
			err = errors.New("no reply from server")
		}
		return "", err
	}
	return strings.TrimSpace(reply), nil
}

// expect sends the command and checks the reply matches want.
func (c *Client) expect(ctx context.Context, command, want string) error {
	reply, err := c.Command(ctx, command)
	if err != nil {
		return err
	}
	if reply != want {
		return &UnexpectedReplyError{Command: command, Reply: reply}
	}
	return nil
}

// Trigger requests a trigger pulse from the server.
func (c *Client) Trigger(ctx context.Context) error {
	return c.expect(ctx, server.CmdTrig, server.ReplyOK)
}

// Status checks the server is ready.
func (c *Client) Status(ctx context.Context) error {
	return c.expect(ctx, server.CmdStatus, server.ReplyReady)
}

// WaitForTrigger waits up to timeout for the server to see a trigger.
//
// The timeout is passed to the server with WAIT_TRIG. Timeouts too long to
// be replied to within the Timeout are split over several commands.
// Returns false if no trigger was seen before the timeout.
func (c *Client) WaitForTrigger(ctx context.Context, timeout time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		wait := time.Until(deadline)
		if wait < time.Microsecond {
			break
		}
		if limit := c.waitLimit(); limit > 0 && wait > limit {
			wait = limit
		}
		command := server.CmdWaitTrig + " " + strconv.FormatFloat(wait.Seconds(), 'f', 6, 64)
		reply, err := c.Command(ctx, command)
		if err != nil {
			return false, err
		}
		switch reply {
		case server.ReplyTriggered:
			return true, nil
		case server.ReplyNoTrigger:
		default:
			return false, &UnexpectedReplyError{Command: command, Reply: reply}
		}
	}
	c.logger().Warn("timeout waiting for trigger", "timeout", timeout)
	return false, nil
}

// waitLimit returns the longest wait that can be requested in one command,
// or 0 if there is no limit.
func (c *Client) waitLimit() time.Duration {
	switch {
	case c.Timeout <= 0:
		return 0
	case c.Timeout > 2*replyMargin:
		return c.Timeout - replyMargin
	}
	return c.Timeout / 2
}

// TestInput runs the server's input test on the pin.
func (c *Client) TestInput(ctx context.Context, pin, iterations int, delay time.Duration) (bool, error) {
	return c.test(ctx, server.CmdTestInput, pin, iterations, delay)
}

// TestOutput runs the server's output test on the pin.
func (c *Client) TestOutput(ctx context.Context, pin, iterations int, delay time.Duration) (bool, error) {
	return c.test(ctx, server.CmdTestOutput, pin, iterations, delay)
}

func (c *Client) test(ctx context.Context, cmd string, pin, iterations int, delay time.Duration) (bool, error) {
	command := fmt.Sprintf("%s %d %d %g", cmd, pin, iterations, delay.Seconds())
	reply, err := c.Command(ctx, command)
	if err != nil {
		return false, err
	}
	switch reply {
	case server.ReplyTestPass:
		return true, nil
	case server.ReplyTestFail:
		return false, nil
	}
	return false, &UnexpectedReplyError{Command: command, Reply: reply}
}

// LoopConfig controls a TriggerLoop.
type LoopConfig struct {
	// Iterations is the number of trigger cycles to run.
	Iterations int
	// Delay is the delay after each completed cycle.
	Delay time.Duration
	// Timeout is the time allowed for each trigger to be seen.
	Timeout time.Duration
	// Operation, if not nil, is called after each trigger is seen.
	Operation func(iteration int) error
}

// TriggerLoop repeatedly triggers the server and waits for the trigger to be
// seen, then runs the operation.
//
// Cycles where the trigger is not seen are skipped. The loop stops on the
// first error. Returns the number of completed cycles.
func (c *Client) TriggerLoop(ctx context.Context, cfg LoopConfig) (int, error) {
	completed := 0
	for i := 0; i < cfg.Iterations; i++ {
		if err := c.Trigger(ctx); err != nil {
			return completed, err
		}
		seen, err := c.WaitForTrigger(ctx, cfg.Timeout)
		if err != nil {
			return completed, err
		}
		if !seen {
			c.logger().Warn("trigger not received", "iteration", i+1)
			continue
		}
		if cfg.Operation != nil {
			if err := cfg.Operation(i); err != nil {
				return completed, errors.Wrapf(err, "iteration %d", i+1)
			}
		}
		completed++
		if err := sleep(ctx, cfg.Delay); err != nil {
			return completed, err
		}
	}
	return completed, nil
}

func (c *Client) logger() *log.Logger {
	if c.Logger == nil {
		return log.Default()
	}
	return c.Logger
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

// SPDX-License-Identifier: MIT
//
// Copyright © 2024 Kent Gibson <warthog618@gmail.com>.

package client_test

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warthog618/pitrig"
	"github.com/warthog618/pitrig/client"
	"github.com/warthog618/pitrig/server"
	"github.com/warthog618/pitrig/sim"
)

const (
	outPin = 23
	inPin  = 24
)

// startServer runs a trigger server on a simulated board.
func startServer(t *testing.T) (*client.Client, *sim.Board) {
	t.Helper()
	b := sim.New()
	logger := log.New(io.Discard)
	s, err := pitrig.New(b, pitrig.WithLogger(logger))
	require.Nil(t, err)
	require.Nil(t, s.Initialize())
	srv, err := server.New(s, outPin, inPin, server.WithLogger(logger))
	require.Nil(t, err)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.Nil(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		srv.Serve(ctx, ln)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		s.Terminate()
	})
	return newClient(ln.Addr().String()), b
}

func newClient(addr string) *client.Client {
	c := client.New(addr)
	c.Logger = log.New(io.Discard)
	c.Timeout = time.Second
	c.RetryDelay = time.Millisecond
	return c
}

// fake is a server that replies to each connection with the next reply.
// An empty reply closes the connection without replying.
type fake struct {
	replies []string
	delay   time.Duration

	mu       sync.Mutex
	count    int
	commands []string
}

func (f *fake) serve(conn net.Conn) {
	defer conn.Close()
	f.mu.Lock()
	f.count++
	reply := f.replies[len(f.replies)-1]
	if f.count <= len(f.replies) {
		reply = f.replies[f.count-1]
	}
	f.mu.Unlock()
	cmd, _ := bufio.NewReader(conn).ReadString('\n')
	f.mu.Lock()
	f.commands = append(f.commands, strings.TrimSpace(cmd))
	f.mu.Unlock()
	time.Sleep(f.delay)
	if reply != "" {
		io.WriteString(conn, reply+"\n")
	}
}

func (f *fake) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count
}

func (f *fake) Commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.commands...)
}

func startFake(t *testing.T, replies ...string) (*client.Client, *fake) {
	t.Helper()
	return startDelayedFake(t, 0, replies...)
}

func startDelayedFake(t *testing.T, delay time.Duration, replies ...string) (*client.Client, *fake) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.Nil(t, err)
	t.Cleanup(func() { ln.Close() })
	f := &fake{replies: replies, delay: delay}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go f.serve(conn)
		}
	}()
	return newClient(ln.Addr().String()), f
}

// waitArg returns the timeout argument of a WAIT_TRIG command.
func waitArg(t *testing.T, cmd string) time.Duration {
	t.Helper()
	fields := strings.Fields(cmd)
	require.Len(t, fields, 2, cmd)
	assert.Equal(t, server.CmdWaitTrig, fields[0])
	secs, err := strconv.ParseFloat(fields[1], 64)
	require.Nil(t, err)
	return time.Duration(secs * float64(time.Second))
}

func TestNew(t *testing.T) {
	c := client.New("pi:5000")
	assert.Equal(t, "pi:5000", c.Addr)
	assert.Equal(t, client.DefaultRetries, c.Retries)
	assert.Equal(t, client.DefaultTimeout, c.Timeout)
	assert.Equal(t, client.DefaultRetryDelay, c.RetryDelay)
	assert.NotNil(t, c.Logger)
}

func TestCommand(t *testing.T) {
	c, _ := startServer(t)
	ctx := context.Background()
	reply, err := c.Command(ctx, "STATUS")
	assert.Nil(t, err)
	assert.Equal(t, server.ReplyReady, reply)

	reply, err = c.Command(ctx, "NOPE")
	assert.Nil(t, err)
	assert.Equal(t, server.ErrUnknownCmd, reply)
}

func TestCommandRetries(t *testing.T) {
	c, f := startFake(t, "", "", "READY")
	reply, err := c.Command(context.Background(), "STATUS")
	assert.Nil(t, err)
	assert.Equal(t, "READY", reply)
	assert.Equal(t, 3, f.Count())
}

func TestCommandFailure(t *testing.T) {
	c, f := startFake(t, "")
	reply, err := c.Command(context.Background(), "STATUS")
	assert.NotNil(t, err)
	assert.Equal(t, "", reply)
	assert.Eventually(t, func() bool { return f.Count() == 3 }, time.Second, time.Millisecond)

	// refused
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.Nil(t, err)
	addr := ln.Addr().String()
	ln.Close()
	c = newClient(addr)
	c.Retries = 2
	_, err = c.Command(context.Background(), "STATUS")
	assert.NotNil(t, err)
}

func TestStatusAndTrigger(t *testing.T) {
	c, b := startServer(t)
	ctx := context.Background()
	assert.Nil(t, c.Status(ctx))
	b.ResetCalls()
	assert.Nil(t, c.Trigger(ctx))
	assert.Len(t, b.CallsOf(sim.OpWrite), 2)
	assert.Equal(t, pitrig.High, b.Level(outPin))
}

func TestUnexpectedReply(t *testing.T) {
	c, _ := startFake(t, "BUSY")
	ctx := context.Background()
	err := c.Status(ctx)
	var ure *client.UnexpectedReplyError
	require.True(t, errors.As(err, &ure))
	assert.Equal(t, "STATUS", ure.Command)
	assert.Equal(t, "BUSY", ure.Reply)

	err = c.Trigger(ctx)
	assert.True(t, errors.As(err, &ure))

	_, err = c.WaitForTrigger(ctx, time.Second)
	assert.True(t, errors.As(err, &ure))

	_, err = c.TestInput(ctx, 4, 1, 0)
	assert.True(t, errors.As(err, &ure))
}

func TestWaitForTrigger(t *testing.T) {
	c, b := startServer(t)
	ctx := context.Background()

	seen, err := c.WaitForTrigger(ctx, 20*time.Millisecond)
	assert.Nil(t, err)
	assert.False(t, seen)

	b.Drive(inPin, pitrig.High)
	seen, err = c.WaitForTrigger(ctx, time.Second)
	assert.Nil(t, err)
	assert.True(t, seen)
}

func TestWaitForTriggerForwardsTimeout(t *testing.T) {
	c, f := startFake(t, "TRIGGERED")
	seen, err := c.WaitForTrigger(context.Background(), 350*time.Millisecond)
	assert.Nil(t, err)
	assert.True(t, seen)
	cmds := f.Commands()
	require.Len(t, cmds, 1)
	wait := waitArg(t, cmds[0])
	assert.LessOrEqual(t, wait, 350*time.Millisecond)
	assert.Greater(t, wait, 300*time.Millisecond)
}

func TestWaitForTriggerSplitsLongTimeout(t *testing.T) {
	c, f := startDelayedFake(t, 50*time.Millisecond, "NO_TRIGGER", "TRIGGERED")
	c.Timeout = 2 * time.Second
	seen, err := c.WaitForTrigger(context.Background(), time.Minute)
	assert.Nil(t, err)
	assert.True(t, seen)
	cmds := f.Commands()
	require.Len(t, cmds, 2)
	// each wait leaves time within the Timeout for the reply
	for _, cmd := range cmds {
		wait := waitArg(t, cmd)
		assert.Less(t, wait, c.Timeout)
		assert.Greater(t, wait, time.Second)
	}
}

func TestWaitForTriggerTimeout(t *testing.T) {
	c, f := startDelayedFake(t, 20*time.Millisecond, "NO_TRIGGER")
	start := time.Now()
	seen, err := c.WaitForTrigger(context.Background(), 30*time.Millisecond)
	assert.Nil(t, err)
	assert.False(t, seen)
	assert.Less(t, time.Since(start), time.Second)
	cmds := f.Commands()
	require.NotEmpty(t, cmds)
	// later commands only ask for the time remaining
	for _, cmd := range cmds {
		assert.LessOrEqual(t, waitArg(t, cmd), 30*time.Millisecond)
	}
}

func TestWaitForTriggerCancel(t *testing.T) {
	c, _ := startDelayedFake(t, time.Hour, "NO_TRIGGER")
	c.Timeout = time.Hour
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	seen, err := c.WaitForTrigger(ctx, time.Minute)
	assert.False(t, seen)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTests(t *testing.T) {
	c, b := startServer(t)
	ctx := context.Background()

	pass, err := c.TestOutput(ctx, 17, 3, 0)
	assert.Nil(t, err)
	assert.True(t, pass)

	pass, err = c.TestInput(ctx, 22, 2, 0)
	assert.Nil(t, err)
	assert.False(t, pass)

	b.Drive(22, pitrig.High)
	pass, err = c.TestInput(ctx, 22, 2, 0)
	assert.Nil(t, err)
	assert.True(t, pass)
}

func TestTriggerLoop(t *testing.T) {
	c, b := startServer(t)
	b.Connect(outPin, inPin)
	ctx := context.Background()
	var ran []int
	n, err := c.TriggerLoop(ctx, client.LoopConfig{
		Iterations: 3,
		Timeout:    time.Second,
		Operation: func(i int) error {
			ran = append(ran, i)
			return nil
		},
	})
	assert.Nil(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []int{0, 1, 2}, ran)

	opErr := errors.New("motor stalled")
	n, err = c.TriggerLoop(ctx, client.LoopConfig{
		Iterations: 3,
		Timeout:    time.Second,
		Operation: func(i int) error {
			if i == 1 {
				return opErr
			}
			return nil
		},
	})
	assert.ErrorIs(t, err, opErr)
	assert.Equal(t, 1, n)
}

func TestTriggerLoopMissed(t *testing.T) {
	c, _ := startServer(t)
	n, err := c.TriggerLoop(context.Background(), client.LoopConfig{
		Iterations: 2,
		Timeout:    5 * time.Millisecond,
	})
	assert.Nil(t, err)
	assert.Equal(t, 0, n)
}

// SPDX-License-Identifier: MIT
//
// Copyright © 2024 Kent Gibson <warthog618@gmail.com>.

package pitrig_test

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warthog618/pitrig"
	"github.com/warthog618/pitrig/sim"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard)
}

func newSession(t *testing.T, b *sim.Board, options ...pitrig.Option) *pitrig.Session {
	t.Helper()
	options = append([]pitrig.Option{pitrig.WithLogger(quietLogger())}, options...)
	s, err := pitrig.New(b, options...)
	require.Nil(t, err)
	return s
}

func readySession(t *testing.T, b *sim.Board, options ...pitrig.Option) *pitrig.Session {
	t.Helper()
	s := newSession(t, b, options...)
	require.Nil(t, s.Initialize())
	t.Cleanup(func() { s.Terminate() })
	return s
}

func TestNewInvalidPollPeriod(t *testing.T) {
	s, err := pitrig.New(sim.New(), pitrig.WithPollPeriod(0))
	assert.Equal(t, pitrig.ErrInvalidPollPeriod, err)
	assert.Nil(t, s)
}

func TestInitialize(t *testing.T) {
	b := sim.New()
	s := newSession(t, b)
	assert.Equal(t, pitrig.Uninitialized, s.State())
	assert.Nil(t, s.Initialize())
	assert.Equal(t, pitrig.Ready, s.State())
	assert.True(t, b.IsOpen())
}

func TestInitializeIdempotent(t *testing.T) {
	b := sim.New()
	s := newSession(t, b)
	assert.Nil(t, s.Initialize())
	assert.Nil(t, s.Initialize())
	assert.Equal(t, pitrig.Ready, s.State())
	assert.Len(t, b.CallsOf(sim.OpOpen), 1)
}

func TestInitializeError(t *testing.T) {
	herr := errors.New("device busy")
	b := sim.New(sim.WithOpenError(herr))
	s := newSession(t, b)
	err := s.Initialize()
	var ierr *pitrig.InitError
	require.True(t, errors.As(err, &ierr))
	assert.Equal(t, herr, ierr.Err)
	assert.True(t, errors.Is(err, herr))
	assert.Equal(t, pitrig.Uninitialized, s.State())
	assert.Equal(t, pitrig.ErrNotInitialized, s.ConfigureInput(4))
}

func TestTerminate(t *testing.T) {
	b := sim.New()
	s := newSession(t, b)
	// no-op when never initialized
	assert.Nil(t, s.Terminate())
	assert.Equal(t, pitrig.Uninitialized, s.State())
	assert.Empty(t, b.CallsOf(sim.OpClose))

	require.Nil(t, s.Initialize())
	assert.Nil(t, s.Terminate())
	assert.Equal(t, pitrig.Terminated, s.State())
	assert.False(t, b.IsOpen())
	assert.Nil(t, s.Terminate())
	assert.Equal(t, pitrig.Terminated, s.State())
	assert.Len(t, b.CallsOf(sim.OpClose), 1)
}

func TestReinitialize(t *testing.T) {
	b := sim.New()
	s := newSession(t, b)
	require.Nil(t, s.Initialize())
	require.Nil(t, s.Terminate())
	assert.Equal(t, pitrig.ErrNotInitialized, s.Pulse(18))
	assert.Nil(t, s.Initialize())
	assert.Equal(t, pitrig.Ready, s.State())
	assert.Nil(t, s.ConfigureOutput(18))
}

func TestConcurrentLifecycle(t *testing.T) {
	b := sim.New()
	s := newSession(t, b)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Initialize()
		}()
	}
	wg.Wait()
	assert.Equal(t, pitrig.Ready, s.State())
	assert.Len(t, b.CallsOf(sim.OpOpen), 1)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Terminate()
		}()
	}
	wg.Wait()
	assert.Equal(t, pitrig.Terminated, s.State())
	assert.Len(t, b.CallsOf(sim.OpClose), 1)
}

func TestNotInitialized(t *testing.T) {
	b := sim.New()
	s := newSession(t, b)
	patterns := []struct {
		name string
		op   func() error
	}{
		{"configure input", func() error { return s.ConfigureInput(24) }},
		{"configure output", func() error { return s.ConfigureOutput(23) }},
		{"pulse", func() error { return s.Pulse(23) }},
		{"read", func() error { _, err := s.Read(24); return err }},
		{"wait", func() error {
			o, err := s.WaitForHigh(24, 1000)
			assert.Equal(t, pitrig.TimedOut, o)
			return err
		}},
	}
	for _, p := range patterns {
		t.Run(p.name, func(t *testing.T) {
			assert.Equal(t, pitrig.ErrNotInitialized, p.op())
		})
	}
	// no hardware touched at all
	assert.Empty(t, b.Calls())
}

func TestInvalidPin(t *testing.T) {
	b := sim.New()
	s := readySession(t, b)
	b.ResetCalls()
	assert.Equal(t, pitrig.ErrInvalidPin, s.ConfigureInput(-1))
	assert.Equal(t, pitrig.ErrInvalidPin, s.ConfigureOutput(-1))
	assert.Equal(t, pitrig.ErrInvalidPin, s.Pulse(-1))
	_, err := s.WaitForHigh(-1, 100)
	assert.Equal(t, pitrig.ErrInvalidPin, err)
	assert.Empty(t, b.Calls())
}

func TestDiagnostics(t *testing.T) {
	var buf bytes.Buffer
	b := sim.New()
	s, err := pitrig.New(b, pitrig.WithLogger(log.New(&buf)))
	require.Nil(t, err)
	s.ConfigureInput(24)
	assert.Contains(t, buf.String(), "not initialized")
	buf.Reset()
	require.Nil(t, s.Initialize())
	defer s.Terminate()
	require.Nil(t, s.ConfigureInput(24))
	assert.Contains(t, buf.String(), "pin=24")
	assert.Contains(t, buf.String(), "pull-down")
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "uninitialized", pitrig.Uninitialized.String())
	assert.Equal(t, "ready", pitrig.Ready.String())
	assert.Equal(t, "terminated", pitrig.Terminated.String())
	assert.Equal(t, "unknown", pitrig.State(42).String())
}

// SPDX-License-Identifier: MIT
//
// Copyright © 2024 Kent Gibson <warthog618@gmail.com>.

//go:build linux
// +build linux

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warthog618/pitrig/bcm"
	"github.com/warthog618/pitrig/chardev"
	"github.com/warthog618/pitrig/sim"
)

func TestParsePin(t *testing.T) {
	patterns := []struct {
		arg string
		pin int
		err bool
	}{
		{"4", 4, false},
		{"23", 23, false},
		{"53", 53, false},
		{"54", 0, true},
		{"-1", 0, true},
		{"GPIO23", 23, false},
		{"J8p16", 23, false},
		{"J8p7", 4, false},
		{"J8p1", 0, true},
		{"pin4", 0, true},
		{"", 0, true},
	}
	for _, p := range patterns {
		tf := func(t *testing.T) {
			pin, err := parsePin(p.arg)
			if p.err {
				assert.NotNil(t, err)
				return
			}
			assert.Nil(t, err)
			assert.Equal(t, p.pin, pin)
		}
		t.Run(p.arg, tf)
	}
}

func TestParsePins(t *testing.T) {
	pp, err := parsePins([]string{"23", "J8p18"})
	assert.Nil(t, err)
	assert.Equal(t, []int{23, 24}, pp)

	pp, err = parsePins([]string{"23", "bogus"})
	assert.NotNil(t, err)
	assert.Nil(t, pp)
}

func TestNewHardware(t *testing.T) {
	hw, err := newHardware("bcm", "")
	assert.Nil(t, err)
	assert.IsType(t, &bcm.Chip{}, hw)

	hw, err = newHardware("chardev", "gpiochip0")
	assert.Nil(t, err)
	assert.IsType(t, &chardev.Chip{}, hw)

	hw, err = newHardware("sim", "")
	assert.Nil(t, err)
	assert.IsType(t, &sim.Board{}, hw)

	hw, err = newHardware("pigpio", "")
	assert.NotNil(t, err)
	assert.Nil(t, hw)
}

func TestNewConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pitrig.json")
	err := os.WriteFile(path, []byte(`{"chip": "gpiochip4", "poll": {"period": 250}, "trigger": {"out": 17}}`), 0644)
	require.Nil(t, err)
	t.Setenv("PITRIG_POLL_PERIOD", "50")
	t.Setenv("PITRIG_BACKEND", "chardev")

	cfg := newConfig(map[string]interface{}{
		"config.file": path,
		"backend":     "sim",
	})
	// flag over env
	assert.Equal(t, "sim", cfg.MustGet("backend").String())
	// env over file
	assert.EqualValues(t, 50, cfg.MustGet("poll.period").Uint())
	// file over default
	assert.Equal(t, "gpiochip4", cfg.MustGet("chip").String())
	assert.EqualValues(t, 17, cfg.MustGet("trigger.out").Int())
	// default
	assert.EqualValues(t, 24, cfg.MustGet("trigger.in").Int())
	assert.Equal(t, "info", cfg.MustGet("log.level").String())
	assert.False(t, cfg.MustGet("watchdog").Bool())
}

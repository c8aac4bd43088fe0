// SPDX-License-Identifier: MIT
//
// Copyright © 2024 Kent Gibson <warthog618@gmail.com>.

//go:build linux
// +build linux

package main

import (
	"fmt"

	"github.com/warthog618/config"
	"github.com/warthog618/config/blob"
	"github.com/warthog618/config/blob/decoder/json"
	"github.com/warthog618/config/dict"
	"github.com/warthog618/config/env"
	"github.com/warthog618/config/pflag"
	"github.com/warthog618/pitrig"
	"github.com/warthog618/pitrig/bcm"
)

// This example sends a trigger pulse on one pin and waits for it on another.
// The default pin assignments are defined in loadConfig, but can be altered
// via configuration (env, flag or config file).
// The out pin must be jumpered to the in pin.
// The out pin is driven so do not run this example on a board where that pin
// serves other purposes.
func main() {
	cfg := loadConfig()
	s, err := pitrig.New(bcm.New(),
		pitrig.WithPollPeriod(uint32(cfg.MustGet("poll").Uint())))
	if err != nil {
		panic(err)
	}
	if err = s.Initialize(); err != nil {
		panic(err)
	}
	defer s.Terminate()
	out := cfg.MustGet("out").Int()
	in := cfg.MustGet("in").Int()
	if err = s.ConfigureOutput(out); err != nil {
		panic(err)
	}
	if err = s.ConfigureInput(in); err != nil {
		panic(err)
	}
	for i := 0; i < cfg.MustGet("count").Int(); i++ {
		if err = s.Pulse(out); err != nil {
			panic(err)
		}
		o, err := s.WaitForHigh(in, cfg.MustGet("timeout").Int())
		if err != nil {
			panic(err)
		}
		fmt.Printf("pulse %d: %s\n", i+1, o)
	}
}

func loadConfig() *config.Config {
	defaultConfig := map[string]interface{}{
		"out":     23,
		"in":      24,
		"count":   5,
		"poll":    100,
		"timeout": 1000000,
	}
	def := dict.New(dict.WithMap(defaultConfig))
	cfg := config.New(
		pflag.New(pflag.WithFlags(
			[]pflag.Flag{{Short: 'c', Name: "config-file"}})),
		env.New(env.WithEnvPrefix("LOOPBACK_")),
		config.WithDefault(def))
	cfg.Append(
		blob.NewConfigFile(cfg, "config.file", "loopback.json", json.NewDecoder()))
	cfg = cfg.GetConfig("", config.WithMust)
	return cfg
}

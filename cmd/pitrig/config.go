// SPDX-License-Identifier: MIT
//
// Copyright © 2024 Kent Gibson <warthog618@gmail.com>.

//go:build linux
// +build linux

package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/warthog618/config"
	"github.com/warthog618/config/blob"
	"github.com/warthog618/config/blob/decoder/json"
	"github.com/warthog618/config/dict"
	"github.com/warthog618/config/env"
	"github.com/warthog618/pitrig"
	"github.com/warthog618/pitrig/chardev"
)

// flagKeys maps command line flags to their configuration keys.
var flagKeys = map[string]string{
	"backend":      "backend",
	"chip":         "chip",
	"config":       "config.file",
	"log-level":    "log.level",
	"poll":         "poll.period",
	"watchdog":     "watchdog",
	"listen":       "server.listen",
	"http":         "server.http",
	"advertise":    "server.advertise",
	"min-interval": "server.min.interval",
	"out":          "trigger.out",
	"in":           "trigger.in",
	"addr":         "client.addr",
}

var defaultConfig = map[string]interface{}{
	"backend":             "bcm",
	"chip":                chardev.DefaultChip,
	"log.level":           "info",
	"poll.period":         int(pitrig.DefaultPollPeriod),
	"watchdog":            false,
	"server.listen":       ":5000",
	"server.http":         "",
	"server.advertise":    "",
	"server.min.interval": "0s",
	"trigger.out":         23,
	"trigger.in":          24,
	"client.addr":         "localhost:5000",
}

// newConfig layers the flags set on the command line over the environment,
// then the config file, then the defaults.
func newConfig(flags map[string]interface{}) *config.Config {
	def := dict.New(dict.WithMap(defaultConfig))
	cfg := config.New(
		dict.New(dict.WithMap(flags)),
		env.New(env.WithEnvPrefix("PITRIG_")),
		config.WithDefault(def))
	cfg.Append(
		blob.NewConfigFile(cfg, "config.file", "pitrig.json", json.NewDecoder()))
	return cfg.GetConfig("", config.WithMust)
}

// changedFlags returns the values of the flags explicitly set for the command.
func changedFlags(cmd *cobra.Command) map[string]interface{} {
	flags := make(map[string]interface{})
	cmd.Flags().Visit(func(f *pflag.Flag) {
		if key, ok := flagKeys[f.Name]; ok {
			flags[key] = f.Value.String()
		}
	})
	return flags
}

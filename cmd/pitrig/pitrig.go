// SPDX-License-Identifier: MIT
//
// Copyright © 2024 Kent Gibson <warthog618@gmail.com>.

//go:build linux
// +build linux

// pitrig is a utility to emit and detect trigger pulses on Raspberry Pi GPIO
// pins, and to serve them to remote clients.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/warthog618/config"
	"github.com/warthog618/gpiod/device/rpi"
	"github.com/warthog618/pitrig"
	"github.com/warthog618/pitrig/bcm"
	"github.com/warthog618/pitrig/chardev"
	"github.com/warthog618/pitrig/sim"
)

var rootCmd = &cobra.Command{
	Use:   "pitrig",
	Short: "pitrig is a utility to emit and detect triggers on Raspberry Pi GPIO pins",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
	PersistentPreRunE: setup,
	SilenceUsage:      true,
	SilenceErrors:     true,
	Version:           version,
}

var (
	// cfg is the configuration of the command being run.
	cfg    *config.Config
	logger *log.Logger
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringP("backend", "b", "bcm", "GPIO access method [bcm|chardev|sim]")
	pf.String("chip", chardev.DefaultChip, "GPIO chip used by the chardev backend")
	pf.StringP("config", "c", "pitrig.json", "configuration file")
	pf.String("log-level", "info", "logging level [debug|info|warn|error]")
	pf.Uint32("poll", pitrig.DefaultPollPeriod, "period between reads of a pin, in microseconds")
	pf.Bool("watchdog", false, "arm the hardware watchdog while waiting, if supported")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logErr(rootCmd, err)
		os.Exit(1)
	}
}

func logErr(cmd *cobra.Command, err error) {
	fmt.Fprintf(os.Stderr, "pitrig %s: %s\n", cmd.Name(), err)
}

func setup(cmd *cobra.Command, args []string) error {
	cfg = newConfig(changedFlags(cmd))
	lvl, err := log.ParseLevel(cfg.MustGet("log.level").String())
	if err != nil {
		return err
	}
	logger = log.NewWithOptions(os.Stderr, log.Options{
		Prefix:          "pitrig",
		Level:           lvl,
		ReportTimestamp: true,
	})
	return nil
}

func newHardware(backend, chip string) (pitrig.Hardware, error) {
	switch backend {
	case "bcm":
		return bcm.New(), nil
	case "chardev":
		return chardev.New(chip), nil
	case "sim":
		return sim.New(), nil
	}
	return nil, errors.Errorf("unknown backend '%s'", backend)
}

// openSession returns an initialized session on the configured backend.
func openSession() (*pitrig.Session, error) {
	hw, err := newHardware(cfg.MustGet("backend").String(), cfg.MustGet("chip").String())
	if err != nil {
		return nil, err
	}
	options := []pitrig.Option{
		pitrig.WithLogger(logger),
		pitrig.WithPollPeriod(uint32(cfg.MustGet("poll.period").Uint())),
	}
	if cfg.MustGet("watchdog").Bool() {
		options = append(options, pitrig.WithWatchdog())
	}
	s, err := pitrig.New(hw, options...)
	if err != nil {
		return nil, err
	}
	if err = s.Initialize(); err != nil {
		return nil, err
	}
	return s, nil
}

// signalContext returns a context cancelled by SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func parsePin(arg string) (int, error) {
	if o, err := strconv.ParseUint(arg, 10, 64); err == nil {
		if o >= bcm.MaxGPIOPin {
			return 0, fmt.Errorf("unknown pin '%d'", o)
		}
		return int(o), nil
	}
	o, err := rpi.Pin(arg)
	if err != nil {
		return 0, fmt.Errorf("can't parse pin '%s'", arg)
	}
	return o, nil
}

func parsePins(args []string) ([]int, error) {
	oo := []int(nil)
	for _, arg := range args {
		o, err := parsePin(arg)
		if err != nil {
			return nil, err
		}
		oo = append(oo, o)
	}
	return oo, nil
}

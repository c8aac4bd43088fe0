// SPDX-License-Identifier: MIT
//
// Copyright © 2024 Kent Gibson <warthog618@gmail.com>.

//go:build linux
// +build linux

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	pulseCmd.Flags().UintVarP(&pulseOpts.Count, "count", "n", 1, "number of pulses to send")
	pulseCmd.Flags().DurationVarP(&pulseOpts.Interval, "interval", "i", 100*time.Millisecond, "time between pulses")
	pulseCmd.SetHelpTemplate(pulseCmd.HelpTemplate() + extendedPinHelp)
	rootCmd.AddCommand(pulseCmd)
}

var (
	pulseCmd = &cobra.Command{
		Use:     "pulse <pin>",
		Short:   "Send a trigger pulse on a pin",
		Long:    `Drive the pin low for 1ms then return it high.`,
		Args:    cobra.ExactArgs(1),
		RunE:    pulse,
		Example: "  pitrig pulse GPIO23",
	}
	pulseOpts = struct {
		Count    uint
		Interval time.Duration
	}{}
)

var extendedPinHelp = `
Pins:
  Pins may be identified by name (J8pXX or GPIOXX) or number (0-53).
`

func pulse(cmd *cobra.Command, args []string) error {
	pin, err := parsePin(args[0])
	if err != nil {
		return err
	}
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Terminate()
	if err = s.ConfigureOutput(pin); err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()
	for i := uint(0); i < pulseOpts.Count; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(pulseOpts.Interval):
			}
		}
		if err = s.Pulse(pin); err != nil {
			return err
		}
		fmt.Printf("pin %2d: pulse %d sent\n", pin, i+1)
	}
	return nil
}

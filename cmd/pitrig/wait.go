// SPDX-License-Identifier: MIT
//
// Copyright © 2024 Kent Gibson <warthog618@gmail.com>.

//go:build linux
// +build linux

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/warthog618/pitrig"
)

func init() {
	waitCmd.Flags().IntVarP(&waitOpts.Timeout, "timeout", "t", 0, "timeout in microseconds, 0 waits forever")
	waitCmd.Flags().BoolVarP(&waitOpts.Quiet, "quiet", "q", false, "don't display the outcome")
	waitCmd.SetHelpTemplate(waitCmd.HelpTemplate() + extendedWaitHelp)
	rootCmd.AddCommand(waitCmd)
}

var (
	waitCmd = &cobra.Command{
		Use:     "wait <pin>",
		Short:   "Wait for a pin to go high",
		Args:    cobra.ExactArgs(1),
		RunE:    wait,
		Example: "  pitrig wait -t 500000 J8p18",
	}
	waitOpts = struct {
		Timeout int
		Quiet   bool
	}{}
)

var extendedWaitHelp = extendedPinHelp + `
The pin is configured as an input with pull-down before waiting.
Exits with an error if the timeout expires.
`

func wait(cmd *cobra.Command, args []string) error {
	pin, err := parsePin(args[0])
	if err != nil {
		return err
	}
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Terminate()
	if err = s.ConfigureInput(pin); err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()
	o, err := s.WaitForHighContext(ctx, pin, waitOpts.Timeout)
	if err != nil {
		return err
	}
	if !waitOpts.Quiet {
		fmt.Printf("pin %2d: %s\n", pin, o)
	}
	if o != pitrig.DetectedHigh {
		return errTimeout
	}
	return nil
}

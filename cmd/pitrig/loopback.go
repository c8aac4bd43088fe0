// SPDX-License-Identifier: MIT
//
// Copyright © 2024 Kent Gibson <warthog618@gmail.com>.

//go:build linux
// +build linux

package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/warthog618/pitrig"
)

func init() {
	loopbackCmd.Flags().IntVarP(&loopbackOpts.Timeout, "timeout", "t", 1000000, "time allowed for the pulse to be seen, in microseconds, 0 waits forever")
	loopbackCmd.SetHelpTemplate(loopbackCmd.HelpTemplate() + extendedLoopbackHelp)
	rootCmd.AddCommand(loopbackCmd)
}

var (
	loopbackCmd = &cobra.Command{
		Use:     "loopback [out] [in]",
		Short:   "Check a trigger output is seen by a trigger input",
		Args:    cobra.MaximumNArgs(2),
		RunE:    loopback,
		Example: "  pitrig loopback 23 24",
	}
	loopbackOpts = struct {
		Timeout int
	}{}
)

var extendedLoopbackHelp = extendedPinHelp + `
The out pin defaults to 23 and the in pin to 24.
The out pin must be wired to the in pin.
`

var errTimeout = errors.New("timed out")

func loopback(cmd *cobra.Command, args []string) error {
	pins := []string{"23", "24"}
	copy(pins, args)
	pp, err := parsePins(pins)
	if err != nil {
		return err
	}
	out, in := pp[0], pp[1]
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Terminate()
	if err = s.ConfigureOutput(out); err != nil {
		return err
	}
	if err = s.ConfigureInput(in); err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()
	fmt.Printf("sending a trigger pulse on pin %d...\n", out)
	if err = s.Pulse(out); err != nil {
		return err
	}
	fmt.Printf("waiting for pin %d to go high...\n", in)
	o, err := s.WaitForHighContext(ctx, in, loopbackOpts.Timeout)
	if err != nil {
		return err
	}
	if o != pitrig.DetectedHigh {
		return errTimeout
	}
	fmt.Printf("pin %d detected high\n", in)
	return nil
}

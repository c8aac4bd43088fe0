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
	getCmd.Flags().BoolVarP(&getOpts.ActiveLow, "active-low", "l", false, "treat the line level as active low")
	getCmd.Flags().BoolVarP(&getOpts.Short, "short", "s", false, "single line output format")
	getCmd.SetHelpTemplate(getCmd.HelpTemplate() + extendedPinHelp)
	rootCmd.AddCommand(getCmd)
}

var (
	getCmd = &cobra.Command{
		Use:     "get <pin1>...",
		Short:   "Read the level of a pin or pins",
		Example: "  pitrig get 23 J8p18",
		Args:    cobra.MinimumNArgs(1),
		RunE:    get,
	}
	getOpts = struct {
		ActiveLow bool
		Short     bool
	}{}
)

func get(cmd *cobra.Command, args []string) error {
	oo, err := parsePins(args)
	if err != nil {
		return err
	}
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Terminate()
	vv := make([]pitrig.Level, len(oo))
	for i, o := range oo {
		v, err := s.Read(o)
		if err != nil {
			return err
		}
		if getOpts.ActiveLow {
			v = !v
		}
		vv[i] = v
	}
	if getOpts.Short {
		printValuesShort(vv)
	} else {
		printValues(oo, vv)
	}
	return nil
}

func printValues(oo []int, vv []pitrig.Level) {
	for i, o := range oo {
		fmt.Printf("pin %2d: %s\n", o, vv[i])
	}
}

func printValuesShort(vv []pitrig.Level) {
	fmt.Printf("%d", level2Int(vv[0]))
	for _, v := range vv[1:] {
		fmt.Printf(" %d", level2Int(v))
	}
	fmt.Println()
}

func level2Int(l pitrig.Level) int {
	if l == pitrig.Low {
		return 0
	}
	return 1
}

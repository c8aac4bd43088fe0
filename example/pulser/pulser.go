// SPDX-License-Identifier: MIT
//
// Copyright © 2024 Kent Gibson <warthog618@gmail.com>.

//go:build linux
// +build linux

package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warthog618/pitrig"
	"github.com/warthog618/pitrig/bcm"
)

// This example pulses GPIO 23, which is pin J8 16.
// The pin idles high and is pulsed low for 1ms once a second.
// Do not run this on a Raspberry Pi which has this pin externally driven.
func main() {
	s, err := pitrig.New(bcm.New())
	if err != nil {
		panic(err)
	}
	if err = s.Initialize(); err != nil {
		panic(err)
	}
	defer s.Terminate()
	pin := 23
	if err = s.ConfigureOutput(pin); err != nil {
		panic(err)
	}
	// capture exit signals to ensure the session is released on exit.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)
	for {
		select {
		case <-time.After(time.Second):
			if err = s.Pulse(pin); err != nil {
				fmt.Println(err)
				return
			}
			fmt.Println("Pulsed", pin)
		case <-quit:
			return
		}
	}
}

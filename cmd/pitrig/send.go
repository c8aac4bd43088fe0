// SPDX-License-Identifier: MIT
//
// Copyright © 2024 Kent Gibson <warthog618@gmail.com>.

//go:build linux
// +build linux

package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/warthog618/pitrig/client"
)

func init() {
	sendCmd.Flags().StringP("addr", "a", "localhost:5000", "address of the trigger server")
	sendCmd.Flags().IntVarP(&sendOpts.Retries, "retries", "r", client.DefaultRetries, "number of attempts to send the command")
	sendCmd.Flags().DurationVarP(&sendOpts.Timeout, "timeout", "t", client.DefaultTimeout, "time allowed for each attempt")
	rootCmd.AddCommand(sendCmd)
}

var (
	sendCmd = &cobra.Command{
		Use:     "send <command>...",
		Short:   "Send a command to a trigger server",
		Args:    cobra.MinimumNArgs(1),
		RunE:    send,
		Example: "  pitrig send -a lab-pi:5000 WAIT_TRIG 2.5",
	}
	sendOpts = struct {
		Retries int
		Timeout time.Duration
	}{}
)

func send(cmd *cobra.Command, args []string) error {
	c := client.New(cfg.MustGet("client.addr").String())
	c.Retries = sendOpts.Retries
	c.Timeout = sendOpts.Timeout
	c.Logger = logger.WithPrefix("client")
	ctx, cancel := signalContext()
	defer cancel()
	reply, err := c.Command(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}
	fmt.Println(reply)
	return nil
}

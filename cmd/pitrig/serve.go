// SPDX-License-Identifier: MIT
//
// Copyright © 2024 Kent Gibson <warthog618@gmail.com>.

//go:build linux
// +build linux

package main

import (
	"net"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/warthog618/pitrig/server"
)

func init() {
	f := serveCmd.Flags()
	f.StringP("listen", "L", ":5000", "TCP address of the trigger server")
	f.String("http", "", "address of the HTTP interface, disabled if empty")
	f.String("advertise", "", "advertise the server via mDNS under this instance name")
	f.Duration("min-interval", 0, "minimum time between trigger pulses")
	f.Int("out", 23, "trigger output pin")
	f.Int("in", 24, "trigger input pin")
	serveCmd.SetHelpTemplate(serveCmd.HelpTemplate() + extendedServeHelp)
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Serve trigger commands to remote clients",
	Args:    cobra.NoArgs,
	RunE:    serve,
	Example: "  pitrig serve --http :8080 --advertise lab-pi",
}

var extendedServeHelp = `
Commands:
  TRIG, STATUS, WAIT_TRIG [seconds],
  TEST_INPUT <pin> [iterations] [delay], TEST_OUTPUT <pin> [iterations] [delay]

  Commands are sent one per line and each receives a single line reply.
`

func serve(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Terminate()
	srv, err := server.New(s,
		cfg.MustGet("trigger.out").Int(),
		cfg.MustGet("trigger.in").Int(),
		server.WithLogger(logger.WithPrefix("server")),
		server.WithMinTriggerInterval(cfg.MustGet("server.min.interval").Duration()),
		server.WithVersion(version))
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()
	addr := cfg.MustGet("server.listen").String()
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", addr)
	}
	if name := cfg.MustGet("server.advertise").String(); name != "" {
		port := ln.Addr().(*net.TCPAddr).Port
		zs, err := server.Advertise(name, port, "version="+version)
		if err != nil {
			ln.Close()
			return err
		}
		defer zs.Shutdown()
		logger.Info("advertising", "instance", name, "service", server.ServiceType, "port", port)
	}
	if haddr := cfg.MustGet("server.http").String(); haddr != "" {
		app := srv.HTTPHandler()
		go func() {
			if err := app.Listen(haddr); err != nil {
				logger.Error("http server failed", "addr", haddr, "err", err)
				cancel()
			}
		}()
		defer app.Shutdown()
	}
	return srv.Serve(ctx, ln)
}

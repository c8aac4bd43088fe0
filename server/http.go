// SPDX-License-Identifier: MIT
//
// Copyright © 2024 Kent Gibson <warthog618@gmail.com>.

package server

import (
	"net/http"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Reply is the body of the HTTP responses to commands.
type Reply struct {
	Command string `json:"command"`
	Reply   string `json:"reply"`
}

// HTTPHandler returns a web interface to the server.
//
//	GET  /status          STATUS
//	POST /trigger         TRIG
//	POST /wait?timeout=s  WAIT_TRIG s
//	GET  /health          process health
//	GET  /version         server version
//
// Command replies starting with ERR are returned with status 400.
// A wait must have a timeout, as an abandoned request cannot cancel it.
func (s *Server) HTTPHandler() *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/status", s.handleCommand(func(*fiber.Ctx) string {
		return CmdStatus
	}))
	app.Post("/trigger", s.handleCommand(func(*fiber.Ctx) string {
		return CmdTrig
	}))
	app.Post("/wait", s.handleWait)
	app.Get("/health", s.handleHealth)
	app.Get("/version", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"version": s.version})
	})
	return app
}

func (s *Server) handleCommand(command func(*fiber.Ctx) string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return s.reply(c, command(c))
	}
}

func (s *Server) handleWait(c *fiber.Ctx) error {
	cmd := CmdWaitTrig
	if t := c.Query("timeout"); t != "" {
		cmd += " " + t
		if us, err := parseWaitTimeout([]string{t}); err == nil && us == 0 {
			return c.Status(http.StatusBadRequest).JSON(Reply{Command: cmd, Reply: ErrInvalidTime})
		}
	}
	return s.reply(c, cmd)
}

func (s *Server) reply(c *fiber.Ctx, cmd string) error {
	s.logger.Info("web request", "cmd", cmd)
	reply := s.Handle(c.UserContext(), cmd)
	if strings.HasPrefix(reply, ReplyErrPrefix) {
		c.Status(http.StatusBadRequest)
	}
	return c.JSON(Reply{Command: cmd, Reply: reply})
}

// handleHealth returns data about the health of the server process.
func (s *Server) handleHealth(c *fiber.Ctx) error {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	host, _ := os.Hostname()
	health := struct {
		State          string
		OutPin         int
		InPin          int
		NumGoroutines  int
		HeapAllocBytes uint64
		Version        string
		ProgLang       string
		HostName       string
		Time           string
	}{
		State:          s.session.State().String(),
		OutPin:         s.out,
		InPin:          s.in,
		NumGoroutines:  runtime.NumGoroutine(),
		HeapAllocBytes: m.Alloc,
		Version:        s.version,
		ProgLang:       runtime.Version(),
		HostName:       host,
		Time:           time.Now().Format(time.RFC3339),
	}
	return c.JSON(health)
}

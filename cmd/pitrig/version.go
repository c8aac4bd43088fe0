// SPDX-License-Identifier: MIT
//
// Copyright © 2024 Kent Gibson <warthog618@gmail.com>.

//go:build linux
// +build linux

package main

// version is set at build time with -ldflags "-X main.version=..."
var version = "undefined"

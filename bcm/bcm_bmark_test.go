// SPDX-License-Identifier: MIT
//
// Copyright © 2024 Kent Gibson <warthog618@gmail.com>.

//go:build linux
// +build linux

// Benchmarks use GPIO 4, J8 pin 7.
package bcm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/warthog618/pitrig"
	"github.com/warthog618/pitrig/bcm"
)

const benchPin = 4

func BenchmarkRead(b *testing.B) {
	requireGPIOMem(b)
	c := bcm.New()
	assert.Nil(b, c.Open())
	defer c.Close()
	assert.Nil(b, c.SetMode(benchPin, pitrig.Input))
	for i := 0; i < b.N; i++ {
		c.Read(benchPin)
	}
}

func BenchmarkWrite(b *testing.B) {
	requireGPIOMem(b)
	c := bcm.New()
	assert.Nil(b, c.Open())
	defer c.Close()
	assert.Nil(b, c.SetMode(benchPin, pitrig.Input))
	for i := 0; i < b.N; i++ {
		c.Write(benchPin, pitrig.Low)
	}
}

func BenchmarkToggle(b *testing.B) {
	requireGPIOMem(b)
	c := bcm.New()
	assert.Nil(b, c.Open())
	defer c.Close()
	assert.Nil(b, c.SetMode(benchPin, pitrig.Input))
	l := pitrig.Low
	for i := 0; i < b.N; i++ {
		l = !l
		c.Write(benchPin, l)
	}
}

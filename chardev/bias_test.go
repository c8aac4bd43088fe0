// SPDX-License-Identifier: MIT
//
// Copyright © 2024 Kent Gibson <warthog618@gmail.com>.

//go:build linux
// +build linux

package chardev

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/warthog618/gpiod"
	"github.com/warthog618/pitrig"
)

func TestBiasOption(t *testing.T) {
	assert.Equal(t, gpiod.WithPullDown, biasOption(pitrig.PullDown))
	assert.Equal(t, gpiod.WithPullUp, biasOption(pitrig.PullUp))
	assert.Equal(t, gpiod.WithBiasDisabled, biasOption(pitrig.PullNone))
}

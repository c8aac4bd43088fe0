// SPDX-License-Identifier: MIT
//
// Copyright © 2024 Kent Gibson <warthog618@gmail.com>.

//go:build linux
// +build linux

package bcm

import (
	"os"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Open and memory map the GPIO memory range from /dev/gpiomem.
// If the chipset was not provided it is detected, defaulting to BCM2835.
func (c *Chip) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.mem) != 0 {
		return ErrAlreadyOpen
	}
	if c.chipset == Unknown {
		c.chipset = Detect()
		if c.chipset == Unknown {
			c.chipset = BCM2835
		}
	}
	file, err := os.OpenFile(c.path, os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return errors.Wrapf(err, "open %s", c.path)
	}
	defer file.Close()

	mem8, err := unix.Mmap(
		int(file.Fd()),
		0,
		memLength,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_SHARED)
	if err != nil {
		return errors.Wrapf(err, "mmap %s", c.path)
	}
	c.mem8 = mem8
	// 32 bit register view of the mapped bytes
	c.mem = unsafe.Slice((*uint32)(unsafe.Pointer(&mem8[0])), len(mem8)/4)
	return nil
}

// Close unmaps GPIO memory.
func (c *Chip) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.mem) == 0 {
		return nil
	}
	c.mem = nil
	mem8 := c.mem8
	c.mem8 = nil
	return errors.Wrap(unix.Munmap(mem8), "munmap")
}

// SPDX-License-Identifier: MIT
//
// Copyright © 2024 Kent Gibson <warthog618@gmail.com>.

package server

import (
	"github.com/grandcat/zeroconf"
	"github.com/pkg/errors"
)

// ServiceType is the DNS-SD service type advertised for the trigger server.
const ServiceType = "_pitrig._tcp"

// Advertise announces the trigger server on the local network via mDNS, so
// clients need not be configured with the address of the board.
//
// The returned server must be Shutdown to withdraw the announcement.
func Advertise(instance string, port int, txt ...string) (*zeroconf.Server, error) {
	zs, err := zeroconf.Register(instance, ServiceType, "local.", port, txt, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "advertise %s on port %d", instance, port)
	}
	return zs, nil
}

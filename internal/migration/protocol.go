// SPDX-License-Identifier: GPL-3.0-or-later

// Package migration defines the shared vocabulary of migration protocols
// and per-connection transport state used by the control-plane codec, the
// configuration loader, the server coordinator, and the client driver.
package migration

import (
	"fmt"
	"net/netip"

	"github.com/quicmigrate/qmigrate/internal/obs"
)

// Protocol is the migration protocol variant negotiated for a connection.
type Protocol int

const (
	// Explicit conveys a single destination address in advance.
	Explicit Protocol = iota
	// PoolOfAddresses conveys a set of candidate addresses in-band.
	PoolOfAddresses
	// Symmetric relies on path probing initiated by either side.
	Symmetric
	// SynchronizedSymmetric adds a barrier signaling both sides.
	SynchronizedSymmetric
)

// wireNames are the exact control-plane wire-format strings, indexed by
// [Protocol].
var wireNames = [...]string{
	Explicit:              "Explicit",
	PoolOfAddresses:       "Pool of Addresses",
	Symmetric:             "Symmetric",
	SynchronizedSymmetric: "Synchronized Symmetric",
}

// String implements [fmt.Stringer], returning the exact wire-format name.
func (p Protocol) String() string {
	if int(p) < 0 || int(p) >= len(wireNames) {
		return "Unknown"
	}
	return wireNames[p]
}

// ParseProtocol parses the exact control-plane wire-format protocol name.
func ParseProtocol(s string) (Protocol, error) {
	for i, name := range wireNames {
		if name == s {
			return Protocol(i), nil
		}
	}
	return 0, obs.NewError("migration.ParseProtocol", obs.KindConfigError,
		fmt.Errorf("unknown migration protocol %q", s))
}

// RequiresAddress reports whether p's on-imminent-migration command must
// carry a destination address.
func (p Protocol) RequiresAddress() bool {
	return p == Explicit
}

// TransportState is the per-connection migration readiness state tracked by
// the server coordinator.
type TransportState int

const (
	// NotReady is the initial state of every tracked connection.
	NotReady TransportState = iota
	// Ready marks a connection that has finished local migration
	// preparation.
	Ready
	// Completed marks a connection that has finished migrating.
	Completed
)

// String implements [fmt.Stringer].
func (s TransportState) String() string {
	switch s {
	case NotReady:
		return "NotReady"
	case Ready:
		return "Ready"
	case Completed:
		return "Completed"
	default:
		return "Unknown"
	}
}

// Address is the wire representation of an endpoint address: "ip:port",
// with IPv6 literals bracketed per convention (net/netip does this for us).
type Address = netip.AddrPort

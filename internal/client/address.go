// SPDX-License-Identifier: GPL-3.0-or-later

package client

import "net/netip"

// netipAddrPortWithPort rebuilds addr with port replacing its existing
// port: the management port stays the same across migrations.
func netipAddrPortWithPort(addr netip.AddrPort, port uint16) netip.AddrPort {
	return netip.AddrPortFrom(addr.Addr(), port)
}

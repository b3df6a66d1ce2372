// SPDX-License-Identifier: GPL-3.0-or-later

package controlplane

import "net/netip"

// parseAddress parses the "ip:port" wire form.
func parseAddress(s string) (netip.AddrPort, error) {
	return netip.ParseAddrPort(s)
}

// SPDX-License-Identifier: GPL-3.0-or-later

// Package controlplane implements the out-of-band JSON-over-UDP control
// plane: [Encode]/[Decode] for the wire format, [ClientEndpoint] for
// the client's reliable send-with-retransmission, and
// [ServerEndpoint] for the server's command dispatcher.
package controlplane

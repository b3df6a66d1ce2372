// SPDX-License-Identifier: GPL-3.0-or-later

package obs

import (
	"github.com/bassosimone/runtimex"
	"github.com/google/uuid"
)

// NewSpanID returns a UUIDv7 representing a span.
//
// A span is a sequence of operations that can fail in a single, specific
// way: a control-plane request/response exchange, a client request
// submitted across the request-loop/transport-event-loop boundary, or a
// single coordinator state transition. Use a span id to correlate the
// structured log lines emitted across that boundary.
//
// The span terminology is borrowed from OTel.
//
// This function panics if the system random number generator fails, which
// should only happen under extraordinary circumstances.
func NewSpanID() string {
	return runtimex.PanicOnError1(uuid.NewV7()).String()
}

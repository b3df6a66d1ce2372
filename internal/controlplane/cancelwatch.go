// SPDX-License-Identifier: GPL-3.0-or-later

package controlplane

import (
	"context"
	"io"
)

// CancelWatch arranges for conn to be closed when ctx is done (cancelled
// or deadline exceeded). This provides responsive teardown of a blocked
// datagram read on external cancellation (e.g., SIGINT via
// signal.NotifyContext) rather than waiting for a per-operation timeout.
//
// The returned stop function unregisters the watcher without closing the
// connection and reports whether it prevented the close from running.
// Callers defer it so no watcher outlives the event loop it guards.
//
// CancelWatch is safe with any [io.Closer] that follows the standard
// library's net.ErrClosed discipline: closing an already-closed socket
// fails gracefully and unblocks in-flight I/O.
func CancelWatch(ctx context.Context, conn io.Closer) (stop func() bool) {
	return context.AfterFunc(ctx, func() { conn.Close() })
}

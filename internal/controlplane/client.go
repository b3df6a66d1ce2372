// SPDX-License-Identifier: GPL-3.0-or-later

package controlplane

import (
	"context"
	"fmt"
	"net/netip"
	"sync"
	"time"

	"github.com/quicmigrate/qmigrate/internal/obs"
)

// responseTimeout is the per-attempt wait before retransmitting.
const responseTimeout = 1 * time.Second

// maxRetransmissions bounds the number of retransmissions after the
// initial send: 5, for 6 total transmissions.
const maxRetransmissions = 5

// ClientEndpoint is the client-side control-plane endpoint: a single UDP
// socket whose I/O runs on a dedicated goroutine (the event-loop thread).
// [ClientEndpoint.Send] is called from the request-loop goroutine and
// synchronizes with the event loop via a single reusable waitable flag.
//
// There is no response payload schema: any datagram from an allowed source
// ends the wait, so commands must be idempotent on the receiver.
type ClientEndpoint struct {
	conn           DatagramConn
	allowedSources map[netip.AddrPort]struct{}
	logger         obs.SLogger

	mu      sync.Mutex
	waiting chan struct{}
}

// NewClientEndpoint wraps conn as a [*ClientEndpoint]. allowedSources lists
// the peer addresses whose datagrams are treated as a reply (typically
// serverManagement and containerMigrationScript); datagrams from any other
// source are ignored, not just unused.
func NewClientEndpoint(conn DatagramConn, allowedSources []netip.AddrPort, logger obs.SLogger) *ClientEndpoint {
	if logger == nil {
		logger = obs.DefaultSLogger()
	}
	sources := make(map[netip.AddrPort]struct{}, len(allowedSources))
	for _, a := range allowedSources {
		sources[a] = struct{}{}
	}
	return &ClientEndpoint{conn: conn, allowedSources: sources, logger: logger}
}

// Run drains incoming datagrams until ctx is done, posting the waitable
// flag whenever a datagram arrives from an allowed source. Run must be
// started in its own goroutine before the first [ClientEndpoint.Send] call.
func (c *ClientEndpoint) Run(ctx context.Context) {
	defer CancelWatch(ctx, c.conn)()

	buf := make([]byte, 2048)
	for {
		n, raddr, err := c.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			return
		}
		if _, ok := c.allowedSources[raddr]; !ok {
			c.logger.Debug("controlplaneClient.ignoredDatagram", "source", raddr.String())
			continue
		}
		c.logger.Debug("controlplaneClient.reply", "source", raddr.String(), "bytes", n)
		c.postWaiting()
	}
}

func (c *ClientEndpoint) postWaiting() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.waiting != nil {
		close(c.waiting)
		c.waiting = nil
	}
}

// Send transmits payload to dest, retransmitting up to [maxRetransmissions]
// times at [responseTimeout] intervals until any datagram arrives from an
// allowed source.
//
// Send fails with [obs.KindControlPlaneLoss] once the retransmission budget
// is exhausted; the caller treats the command's effect as
// best-effort and continues.
func (c *ClientEndpoint) Send(ctx context.Context, dest netip.AddrPort, payload []byte) error {
	const op = "controlplane.ClientEndpoint.Send"
	spanID := obs.NewSpanID()

	for attempt := 0; attempt <= maxRetransmissions; attempt++ {
		c.mu.Lock()
		flag := make(chan struct{})
		c.waiting = flag
		c.mu.Unlock()

		c.logger.Info("controlplaneClient.send", "span", spanID, "attempt", attempt, "dest", dest.String())
		if _, err := c.conn.WriteToUDPAddrPort(payload, dest); err != nil {
			return obs.NewError(op, obs.KindControlPlaneLoss, err)
		}

		timer := time.NewTimer(responseTimeout)
		select {
		case <-flag:
			timer.Stop()
			c.logger.Info("controlplaneClient.replyReceived", "span", spanID, "attempt", attempt)
			return nil
		case <-timer.C:
			continue
		case <-ctx.Done():
			timer.Stop()
			return obs.NewError(op, obs.KindTransportTimeout, ctx.Err())
		}
	}

	return obs.NewError(op, obs.KindControlPlaneLoss,
		fmt.Errorf("no reply after %d transmissions", maxRetransmissions+1))
}

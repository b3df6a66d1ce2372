// SPDX-License-Identifier: GPL-3.0-or-later

package controlplane

import (
	"context"
	"fmt"
	"net/netip"

	"github.com/quicmigrate/qmigrate/internal/obs"
)

// CoordinatorHandler is the subset of the server migration coordinator
// that the control-plane server endpoint drives. It is an interface,
// not a concrete dependency, so this package never imports the coordinator
// package: the capability the endpoint needs is modeled as its own small
// handle.
type CoordinatorHandler interface {
	// OnImminentServerMigration handles an onImminentServerMigration
	// command.
	OnImminentServerMigration(cmd Command) error

	// OnNetworkSwitch handles an onNetworkSwitch command. It returns an
	// error if no migration is in progress.
	OnNetworkSwitch() error
}

// ServerEndpoint is the server-side control-plane endpoint: a UDP
// socket bound to (host, managementPort) that decodes incoming commands and
// dispatches them to a [CoordinatorHandler], replying "OK" or a descriptive
// error string.
type ServerEndpoint struct {
	conn    DatagramConn
	handler CoordinatorHandler
	logger  obs.SLogger

	// shutdown is closed exactly once, after a shutdown command's "OK"
	// reply has been sent, so the caller's event loop can stop: the reply
	// is emitted before the event loop terminates.
	shutdown chan struct{}
}

// NewServerEndpoint wraps conn as a [*ServerEndpoint].
func NewServerEndpoint(conn DatagramConn, handler CoordinatorHandler, logger obs.SLogger) *ServerEndpoint {
	if logger == nil {
		logger = obs.DefaultSLogger()
	}
	return &ServerEndpoint{conn: conn, handler: handler, logger: logger, shutdown: make(chan struct{})}
}

// Shutdown returns a channel that is closed once a shutdown command has
// been processed and its "OK" reply sent.
func (s *ServerEndpoint) Shutdown() <-chan struct{} {
	return s.shutdown
}

// Run processes incoming datagrams until ctx is done or a shutdown command
// is handled.
func (s *ServerEndpoint) Run(ctx context.Context) {
	defer CancelWatch(ctx, s.conn)()

	buf := make([]byte, 2048)
	for {
		n, raddr, err := s.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			return
		}

		shutdownRequested := s.dispatch(raddr, buf[:n])
		if shutdownRequested {
			close(s.shutdown)
			return
		}
	}
}

// dispatch decodes and handles one datagram, replying to raddr, and
// reports whether it was a shutdown command.
func (s *ServerEndpoint) dispatch(raddr netip.AddrPort, raw []byte) bool {
	cmd, err := Decode(raw)
	if err != nil {
		s.logger.Info("controlplaneServer.badRequest", "err", err, "source", raddr.String())
		s.reply(raddr, fmt.Sprintf("Bad request. Error: %s", err.Error()))
		return false
	}

	switch cmd.Action {
	case OnImminentServerMigration:
		if err := s.handler.OnImminentServerMigration(cmd); err != nil {
			s.logger.Info("controlplaneServer.onImminentFailed", "err", err)
			s.reply(raddr, fmt.Sprintf("Bad request. Error: %s", err.Error()))
			return false
		}
		s.reply(raddr, "OK")
		return false
	case OnNetworkSwitch:
		if err := s.handler.OnNetworkSwitch(); err != nil {
			s.logger.Info("controlplaneServer.onNetworkSwitchFailed", "err", err)
			s.reply(raddr, fmt.Sprintf("Bad request. Error: %s", err.Error()))
			return false
		}
		s.reply(raddr, "OK")
		return false
	case Shutdown:
		s.logger.Info("controlplaneServer.shutdown", "source", raddr.String())
		s.reply(raddr, "OK")
		return true
	default:
		s.reply(raddr, "Bad request. Error: bad action")
		return false
	}
}

func (s *ServerEndpoint) reply(raddr netip.AddrPort, payload string) {
	if _, err := s.conn.WriteToUDPAddrPort([]byte(payload), raddr); err != nil {
		s.logger.Info("controlplaneServer.replyFailed", "err", err, "dest", raddr.String())
	}
}

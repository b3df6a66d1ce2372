// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"github.com/quicmigrate/qmigrate/internal/migration"
	"github.com/quicmigrate/qmigrate/internal/server"
	"github.com/quicmigrate/qmigrate/internal/transport"
)

// fleet adapts the set of connections registered on a [*transport.QUICGoServer]
// to [server.TransportFleet], fanning a coordinator decision out to every
// tracked transport.
type fleet struct {
	server *transport.QUICGoServer
}

var _ server.TransportFleet = (*fleet)(nil)

func (f *fleet) OnImminentServerMigration(protocol migration.Protocol, address migration.Address, hasAddress bool) error {
	for _, conn := range f.server.Conns() {
		if err := conn.OnImminentServerMigration(protocol, address, hasAddress); err != nil {
			return err
		}
	}
	return nil
}

func (f *fleet) OnNetworkSwitch() error {
	for _, conn := range f.server.Conns() {
		if err := conn.OnNetworkSwitch(); err != nil {
			return err
		}
	}
	return nil
}

// coordinatorMigrationSink adapts [*server.Coordinator] to
// [transport.ServerMigrationEventSink].
type coordinatorMigrationSink struct {
	c *server.Coordinator
}

var _ transport.ServerMigrationEventSink = coordinatorMigrationSink{}

func (s coordinatorMigrationSink) OnServerMigrationReady(cid string) {
	s.c.OnServerMigrationReady(server.ConnID(cid))
}

func (s coordinatorMigrationSink) OnServerMigrationCompleted(cid string) {
	s.c.OnServerMigrationCompleted(server.ConnID(cid))
}

func (s coordinatorMigrationSink) OnServerMigrationFailed(cid string, err error) {
	s.c.OnServerMigrationFailed(server.ConnID(cid), err)
}

// coordinatorClientSink adapts [*server.Coordinator] to
// [transport.ClientStateSink]. OnHandshakeFinished is a no-op here: the
// transport factory already calls [server.Coordinator.OnHandshakeFinished]
// directly when it allocates the session, so wiring it twice would
// double-count the connection.
type coordinatorClientSink struct {
	c *server.Coordinator
}

var _ transport.ClientStateSink = coordinatorClientSink{}

func (coordinatorClientSink) OnHandshakeFinished(cid string)       {}
func (coordinatorClientSink) OnClientMigrationDetected(cid string) {}

func (s coordinatorClientSink) OnConnectionClosed(cid string) {
	s.c.OnConnectionClosed(server.ConnID(cid))
}

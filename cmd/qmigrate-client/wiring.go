// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"github.com/quicmigrate/qmigrate/internal/client"
	"github.com/quicmigrate/qmigrate/internal/migration"
	"github.com/quicmigrate/qmigrate/internal/obs"
	"github.com/quicmigrate/qmigrate/internal/pool"
	"github.com/quicmigrate/qmigrate/internal/transport"
)

// poolSchedulerFactory builds one [*pool.Scheduler] pre-loaded with
// addresses, satisfying [transport.PoolMigrationAddressSchedulerFactory].
type poolSchedulerFactory struct {
	seed      uint32
	addresses []migration.Address
}

var _ transport.PoolMigrationAddressSchedulerFactory = poolSchedulerFactory{}

func (f poolSchedulerFactory) Make() transport.PoolMigrationAddressScheduler {
	s := pool.NewScheduler(f.seed)
	for _, addr := range f.addresses {
		s.Insert(addr)
	}
	return s
}

// driverMigrationSink forwards the transport's server-migration events
// into the experiment driver. On completion it reads the post-migration
// peer address back from the transport, which is what the driver uses to
// rewrite its control-plane destination on its own goroutine.
type driverMigrationSink struct {
	driver *client.Driver
	tr     transport.ClientTransport
	logger obs.SLogger
}

var _ transport.ServerMigrationEventSink = driverMigrationSink{}

func (s driverMigrationSink) OnServerMigrationReady(cid string) {}

func (s driverMigrationSink) OnServerMigrationCompleted(cid string) {
	s.driver.OnServerMigrationCompleted(s.tr.PeerAddress())
}

func (s driverMigrationSink) OnServerMigrationFailed(cid string, err error) {
	s.logger.Info("clientTransport.serverMigrationFailed", "cid", cid,
		"errClass", obs.ClassifySystem(err), "err", err)
}

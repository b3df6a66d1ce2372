// SPDX-License-Identifier: GPL-3.0-or-later

package server

import (
	"github.com/quicmigrate/qmigrate/internal/migration"
	"github.com/quicmigrate/qmigrate/internal/obs"
	"github.com/quicmigrate/qmigrate/internal/seed"
)

// Factory is the transport factory: for every accepted connection it
// allocates the next per-connection seed, builds a [SessionController], and
// wires the connection into the [Coordinator].
type Factory struct {
	seeds            *seed.Buffer
	coordinator      *Coordinator
	allowedProtocols []migration.Protocol
	poolAddresses    []migration.Address
	logger           obs.SLogger
}

// NewFactory returns a new [*Factory].
func NewFactory(seeds *seed.Buffer, coordinator *Coordinator, allowedProtocols []migration.Protocol,
	poolAddresses []migration.Address, logger obs.SLogger) *Factory {
	if logger == nil {
		logger = obs.DefaultSLogger()
	}
	return &Factory{
		seeds:            seeds,
		coordinator:      coordinator,
		allowedProtocols: allowedProtocols,
		poolAddresses:    poolAddresses,
		logger:           logger,
	}
}

// NewConnection performs the per-connection setup for a newly accepted
// connection identified by cid, returning the per-connection seed and a
// ready-to-use [SessionController].
func (f *Factory) NewConnection(cid ConnID) (uint32, *SessionController) {
	connSeed := f.seeds.Next()
	controller := NewSessionController(connSeed, f.logger)

	f.coordinator.OnHandshakeFinished(cid)

	f.logger.Info("factory.newConnection", "cid", string(cid), "seed", connSeed,
		"allowedProtocols", len(f.allowedProtocols), "poolAddresses", len(f.poolAddresses))

	return connSeed, controller
}

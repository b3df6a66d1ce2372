// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"net/http"
	"net/netip"
	"sync"

	"github.com/quicmigrate/qmigrate/internal/migration"
	"github.com/quicmigrate/qmigrate/internal/obs"
	"github.com/quicmigrate/qmigrate/internal/seed"
	"github.com/quicmigrate/qmigrate/internal/server"
	"github.com/quicmigrate/qmigrate/internal/transport"
)

// sessionRegistry maps each accepted connection's 4-tuple to its
// [server.SessionController] and [transport.ServerTransport] adapter, both
// created lazily on the connection's first request.
//
// quic-go's net/http-facing handler signature carries no stable
// per-connection identifier, so the remote address stands in for it: a
// migration experiment's clients each hold one connection for the
// process lifetime, so the 4-tuple is as stable as a real connection ID
// would be here.
type sessionRegistry struct {
	seeds            *seed.Buffer
	allowedProtocols []migration.Protocol
	poolAddresses    []migration.Address
	logger           obs.SLogger

	quicServer    *transport.QUICGoServer
	factory       *server.Factory
	migrationSink transport.ServerMigrationEventSink
	clientSink    transport.ClientStateSink

	mu       sync.Mutex
	sessions map[string]*server.SessionController
}

func newSessionRegistry(seeds *seed.Buffer, allowedProtocols []migration.Protocol,
	poolAddresses []migration.Address, logger obs.SLogger) *sessionRegistry {
	return &sessionRegistry{
		seeds:            seeds,
		allowedProtocols: allowedProtocols,
		poolAddresses:    poolAddresses,
		logger:           logger,
		sessions:         make(map[string]*server.SessionController),
	}
}

func (r *sessionRegistry) serveHTTP(w http.ResponseWriter, req *http.Request) {
	controller := r.sessionFor(req.RemoteAddr, transport.ConnContext(req))
	controller.Handler().ServeHTTP(w, req)
}

func (r *sessionRegistry) sessionFor(cid string, connCtx context.Context) *server.SessionController {
	r.mu.Lock()
	defer r.mu.Unlock()

	if controller, ok := r.sessions[cid]; ok {
		return controller
	}

	connSeed, controller := r.factory.NewConnection(server.ConnID(cid))
	r.sessions[cid] = controller

	peer, err := netip.ParseAddrPort(cid)
	if err != nil {
		r.logger.Info("sessionRegistry.badPeerAddress", "cid", cid, "err", err)
	}

	conn := r.quicServer.ConnFor(cid, peer, registryClientSink{registry: r}, connCtx)
	conn.SetServerMigrationEventCallback(r.migrationSink)
	conn.AllowServerMigration(r.allowedProtocols)
	for _, addr := range r.poolAddresses {
		conn.AddPoolMigrationAddress(addr)
	}

	r.logger.Info("sessionRegistry.newSession", "cid", cid, "seed", connSeed)
	return controller
}

func (r *sessionRegistry) removeSession(cid string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, cid)
}

// registryClientSink forwards client lifecycle events to the registry's
// configured sink and additionally drops the registry's own session entry
// on connection close, so neither map outlives the connections it tracks.
type registryClientSink struct {
	registry *sessionRegistry
}

var _ transport.ClientStateSink = registryClientSink{}

func (s registryClientSink) OnHandshakeFinished(cid string) {
	s.registry.clientSink.OnHandshakeFinished(cid)
}

func (s registryClientSink) OnClientMigrationDetected(cid string) {
	s.registry.clientSink.OnClientMigrationDetected(cid)
}

func (s registryClientSink) OnConnectionClosed(cid string) {
	s.registry.removeSession(cid)
	s.registry.clientSink.OnConnectionClosed(cid)
}

// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"time"

	"github.com/quicmigrate/qmigrate/internal/migration"
)

// Settings configures a transport instance.
type Settings struct {
	IdleTimeout                     time.Duration
	AdvertisedInitialMaxStreamsBidi uint64
	AdvertisedInitialMaxStreamsUni  uint64
	MaxNumPTOs                      uint16
	SelfActiveConnectionIDLimit     uint64
	DisableMigration                bool
	EnableKeepalive                 bool
	ALPNs                           []string
	Certificates                    []tls.Certificate

	// KeyLogWriter, when non-nil, receives NSS-format TLS session keys so
	// packet captures of an experiment run can be decrypted afterwards.
	KeyLogWriter io.Writer
}

// NewServerSettings returns the server-side defaults:
// maxNumPTOs=100, selfActiveConnectionIdLimit=30, disableMigration=false,
// enableKeepalive=true.
func NewServerSettings() Settings {
	return Settings{
		IdleTimeout:                     60 * time.Second,
		AdvertisedInitialMaxStreamsBidi: 1 << 16,
		AdvertisedInitialMaxStreamsUni:  1 << 16,
		MaxNumPTOs:                      100,
		SelfActiveConnectionIDLimit:     30,
		DisableMigration:                false,
		EnableKeepalive:                 true,
		ALPNs:                           []string{"h3", "hq-interop", "h3-29", "h3-32"},
	}
}

// NewClientSettings returns the client-side defaults. They match the server
// defaults except that the client carries no certificates of its own.
func NewClientSettings() Settings {
	s := NewServerSettings()
	s.Certificates = nil
	return s
}

// ClientStateSink receives client lifecycle events: handshake completion,
// client-initiated migration detection, and connection close.
type ClientStateSink interface {
	OnHandshakeFinished(cid string)
	OnClientMigrationDetected(cid string)
	OnConnectionClosed(cid string)
}

// ServerMigrationEventSink receives per-transport migration progress
// events.
type ServerMigrationEventSink interface {
	OnServerMigrationReady(cid string)
	OnServerMigrationCompleted(cid string)
	OnServerMigrationFailed(cid string, err error)
}

// ServerTransport is the contract the core depends on for the server side
// of a single accepted connection.
type ServerTransport interface {
	ConnID() string
	PeerAddress() migration.Address
	GetNumOpenableBidirectionalStreams() int64

	AllowServerMigration(protocols []migration.Protocol)
	AddPoolMigrationAddress(addr migration.Address)
	SetClientStateUpdateCallback(sink ClientStateSink)
	SetServerMigrationEventCallback(sink ServerMigrationEventSink)

	// OnImminentServerMigration is simulated: quic-go exposes no wire
	// frame for this notification, so the adapter invokes the sink's
	// readiness callback directly, with no preparation delay.
	OnImminentServerMigration(protocol migration.Protocol, address migration.Address, hasAddress bool) error

	// OnNetworkSwitch is simulated for the same reason as
	// OnImminentServerMigration.
	OnNetworkSwitch() error
}

// ClientTransport is the contract the core depends on for the client side
// of a single connection.
type ClientTransport interface {
	PeerAddress() migration.Address
	GetNumOpenableBidirectionalStreams() int64

	AllowServerMigration(protocols []migration.Protocol)
	SetPoolMigrationAddressSchedulerFactory(factory PoolMigrationAddressSchedulerFactory)
	SetServerMigrationEventCallback(sink ServerMigrationEventSink)

	// OnProbeTimeout forces the transport's probe-timeout handler to run
	// on the next request submission (Proactive Explicit). quic-go
	// does not expose this hook; the adapter records the intent and
	// documents it as a best-effort simulation (see quicgo.go).
	OnProbeTimeout()

	// OnNetworkSwitch hands the transport a replacement UDP socket bound
	// to the client's new local address, after a client-side network
	// handover. The transport tears down its current connection and
	// dials every subsequent request from newSocket, so the server
	// observes the path change. The transport owns newSocket from this
	// point on.
	OnNetworkSwitch(newSocket net.PacketConn) error

	// SendRequest submits an HTTP/3 request over the transport's
	// underlying round-tripper and reports the response status, the
	// peer address the response arrived from, and the response body
	// size in bytes.
	SendRequest(ctx context.Context, method, path string, body []byte) (status int, peer migration.Address, responseBodySize int64, err error)
}

// PoolMigrationAddressSchedulerFactory builds a new pool scheduler instance
// for a transport, matching the
// setPoolMigrationAddressSchedulerFactory transport contract.
type PoolMigrationAddressSchedulerFactory interface {
	Make() PoolMigrationAddressScheduler
}

// PoolMigrationAddressScheduler is the minimal surface [transport] needs
// from the pool scheduler; see package pool for the concrete
// implementation.
type PoolMigrationAddressScheduler interface {
	Insert(addr migration.Address)
	Next() (migration.Address, error)
}

// SPDX-License-Identifier: GPL-3.0-or-later

// Package transport defines the interfaces the core of this module
// depends on for a single QUIC connection, plus a quic-go/http3
// backed adapter implementing them.
//
// The QUIC/HTTP3 transport implementation itself is explicitly out of
// scope: this package draws the boundary the core code is written
// against; quicgo.go supplies one concrete, real implementation of it.
// quic-go has no wire-level support for the migration-notification and
// address-change frames a migration-capable transport exposes (POOL_MIGRATION_ADDRESS,
// SERVER_MIGRATION, SERVER_MIGRATED); the adapter's migration announcement
// hooks are therefore simulated locally rather than signaled over the
// wire, flagged on each such method's doc comment. Connection close
// detection, the client's local-socket switch after a network handover,
// and peer-address-change observation are real: they ride on quic-go's
// connection contexts and dial plumbing.
package transport

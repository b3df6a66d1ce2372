// SPDX-License-Identifier: GPL-3.0-or-later

// Package qmigrate is an experimental harness that drives, measures, and
// coordinates QUIC server migration: the ability of an HTTP/3 server to
// move to a new network address while keeping existing connections alive.
//
// The harness ships as two binaries plus supporting packages:
//
//   - cmd/qmigrate-server accepts HTTP/3 connections, serves the /echo and
//     /distribution endpoints, and drives the migration of its connection
//     fleet on commands received over a UDP management socket.
//   - cmd/qmigrate-client schedules HTTP/3 requests against the server,
//     triggers the migration at scripted points in the request stream, and
//     records per-request service times across the migration event.
//
// Four migration protocol variants are supported: Explicit (with proactive
// and reactive client flavors), Pool of Addresses, Symmetric, and
// Synchronized Symmetric. Experiments are selected by an integer id in the
// JSON configuration and differ in when the client notifies the server,
// when it triggers the container move, and which measurements it saves.
//
// # Package layout
//
//   - internal/obs: structured logging, error classification, span ids
//   - internal/config: JSON configuration loading and validation
//   - internal/seed: deterministic sub-seed fan-out from a master seed
//   - internal/pool: seeded random cycle over candidate server addresses
//   - internal/reqsched: synthetic request scheduling and body sizing
//   - internal/controlplane: JSON-over-UDP command codec and endpoints
//   - internal/transport: transport contracts plus a quic-go/http3 adapter
//   - internal/server: migration coordinator, session controller, factory
//   - internal/client: experiment driver, output record, handover manager
//
// All randomness used for scheduling decisions derives from the single
// configured master seed, so two runs with the same seed and command order
// make identical draws.
package qmigrate

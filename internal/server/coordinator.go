// SPDX-License-Identifier: GPL-3.0-or-later

// Package server implements the server-side migration coordinator,
// the per-connection session controller, and the transport
// factory.
package server

import (
	"fmt"
	"time"

	"github.com/quicmigrate/qmigrate/internal/controlplane"
	"github.com/quicmigrate/qmigrate/internal/migration"
	"github.com/quicmigrate/qmigrate/internal/obs"

	"sync"
)

// ConnID identifies one server-side transport/connection for the
// coordinator's bookkeeping map. The transport factory assigns it at
// handshake completion; any stable, comparable value works (quic-go
// connection IDs, a monotonic counter, ...).
type ConnID string

// TransportFleet is the capability handle the coordinator uses to drive
// every tracked transport through a migration transition. It is injected,
// not embedded: the coordinator never reaches into transport internals
// directly.
type TransportFleet interface {
	// OnImminentServerMigration is invoked exactly once per migration
	// round, fanning the announcement out to every connection.
	OnImminentServerMigration(protocol migration.Protocol, address migration.Address, hasAddress bool) error

	// OnNetworkSwitch is invoked exactly once per migration round, after
	// the server has actually moved.
	OnNetworkSwitch() error
}

// Coordinator is the server migration coordinator: the central state
// machine guarded by a single mutex. Every method preserves two invariants:
// the ready/migrated counters always equal the per-state populations of the
// transport map, and all counters and latches are zero while no migration
// is in progress.
type Coordinator struct {
	mu sync.Mutex

	transports map[ConnID]migration.TransportState

	migrationInProgress        bool
	transportsReady            bool
	networkSwitched            bool
	numberOfTransportsReady    int
	numberOfTransportsMigrated int

	protocol   migration.Protocol
	address    migration.Address
	hasAddress bool

	migrationNotificationReceptionTime time.Time

	// reachedReady and its companions are sticky across
	// [Coordinator.resetMigrationState]: they record the very first time
	// this process ever latched transportsReady, for the
	// migrationNotificationTime dump emitted once, on shutdown.
	reachedReady          bool
	firstNotificationTime time.Time
	firstReadyTime        time.Time

	fleet   TransportFleet
	logger  obs.SLogger
	timeNow func() time.Time
}

// NewCoordinator returns a new [*Coordinator] driving fleet.
func NewCoordinator(fleet TransportFleet, logger obs.SLogger) *Coordinator {
	if logger == nil {
		logger = obs.DefaultSLogger()
	}
	return &Coordinator{
		transports: make(map[ConnID]migration.TransportState),
		fleet:      fleet,
		logger:     logger,
		timeNow:    time.Now,
	}
}

var _ controlplane.CoordinatorHandler = (*Coordinator)(nil)

// OnImminentServerMigration implements [controlplane.CoordinatorHandler].
//
// Idle -> PreparingMigration on the first call (subsequent calls while
// migrationInProgress are a no-op). If the transport map is empty at the
// moment of this call, transportsReady latches immediately
// (readiness under emptiness).
func (c *Coordinator) OnImminentServerMigration(cmd controlplane.Command) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.migrationInProgress {
		c.logger.Info("coordinator.onImminentServerMigration.duplicate")
		return nil
	}

	if err := c.fleet.OnImminentServerMigration(cmd.Protocol, cmd.Address, cmd.HasAddress()); err != nil {
		return obs.NewError("coordinator.OnImminentServerMigration", obs.KindInternalError, err)
	}

	now := c.timeNow()
	c.protocol = cmd.Protocol
	c.address = cmd.Address
	c.hasAddress = cmd.HasAddress()
	c.migrationNotificationReceptionTime = now
	c.migrationInProgress = true

	if !c.reachedReady {
		c.firstNotificationTime = now
	}

	c.logger.Info("coordinator.stateTransition", "from", "Idle", "to", "PreparingMigration", "protocol", cmd.Protocol.String())

	if len(c.transports) == 0 {
		c.latchTransportsReady(now)
	}
	return nil
}

// OnNetworkSwitch implements [controlplane.CoordinatorHandler].
//
// PreparingMigration -> AwaitingCompletion. Fails with [obs.KindConfigError]
// if no migration is in progress. A repeated call while networkSwitched
// is a no-op.
func (c *Coordinator) OnNetworkSwitch() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.migrationInProgress {
		return obs.NewError("coordinator.OnNetworkSwitch", obs.KindConfigError,
			fmt.Errorf("no migration in progress"))
	}
	if c.networkSwitched {
		c.logger.Info("coordinator.onNetworkSwitch.duplicate")
		return nil
	}

	if err := c.fleet.OnNetworkSwitch(); err != nil {
		return obs.NewError("coordinator.OnNetworkSwitch", obs.KindInternalError, err)
	}

	c.networkSwitched = true
	c.logger.Info("coordinator.stateTransition", "from", "PreparingMigration", "to", "AwaitingCompletion")

	if c.numberOfTransportsMigrated == len(c.transports) {
		c.resetMigrationState()
	}
	return nil
}

// OnHandshakeFinished records a new connection. If the coordinator has
// already observed onNetworkSwitch, the new entry is counted as
// pre-completed so it does not block completion detection.
func (c *Coordinator) OnHandshakeFinished(cid ConnID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.transports[cid] = migration.NotReady
	if c.networkSwitched {
		c.numberOfTransportsMigrated++
	}
}

// OnServerMigrationReady records that the transport for cid has finished
// local migration preparation. If every tracked transport is now Ready,
// transportsReady latches.
func (c *Coordinator) OnServerMigrationReady(cid ConnID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.transports[cid] = migration.Ready
	c.numberOfTransportsReady++
	if c.numberOfTransportsReady == len(c.transports) {
		c.latchTransportsReady(c.timeNow())
	}
}

// OnServerMigrationCompleted records that the transport for cid has
// finished migrating. If every tracked transport has now completed, the
// coordinator resets to Idle.
func (c *Coordinator) OnServerMigrationCompleted(cid ConnID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.transports[cid] = migration.Completed
	c.numberOfTransportsMigrated++
	if c.numberOfTransportsMigrated == len(c.transports) {
		c.resetMigrationState()
	}
}

// OnServerMigrationFailed logs a per-transport migration failure. Counters
// are left untouched: the transport closes the connection next, and
// [Coordinator.OnConnectionClosed] performs the accounting.
func (c *Coordinator) OnServerMigrationFailed(cid ConnID, err error) {
	c.logger.Info("coordinator.serverMigrationFailed", "cid", string(cid),
		"errClass", obs.ClassifyKind(err), "err", err)
}

// OnConnectionClosed removes cid from the tracked set, adjusting counters
// and latches so they stay consistent with the map even for connections
// that close mid-round.
func (c *Coordinator) OnConnectionClosed(cid ConnID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	state, ok := c.transports[cid]
	if !ok {
		return
	}

	if !c.migrationInProgress {
		delete(c.transports, cid)
		return
	}

	if c.networkSwitched {
		if state == migration.Completed {
			c.numberOfTransportsMigrated--
		}
		delete(c.transports, cid)
		if c.numberOfTransportsMigrated == len(c.transports) {
			c.resetMigrationState()
		}
		return
	}

	// Still PreparingMigration.
	if state == migration.Ready {
		c.numberOfTransportsReady--
	}
	delete(c.transports, cid)
	if c.numberOfTransportsReady == len(c.transports) && !c.transportsReady {
		c.latchTransportsReady(c.timeNow())
	}
}

// latchTransportsReady must be called with mu held.
func (c *Coordinator) latchTransportsReady(now time.Time) {
	c.transportsReady = true
	if !c.reachedReady {
		c.reachedReady = true
		c.firstReadyTime = now
	}
	c.logger.Info("coordinator.transportsReady")
}

// resetMigrationState zeroes all per-round counters and latches, returning
// the coordinator to Idle. The transport map itself is not cleared: every
// tracked connection is reset to NotReady, ready for the next round.
// Must be called with mu held.
func (c *Coordinator) resetMigrationState() {
	for cid := range c.transports {
		c.transports[cid] = migration.NotReady
	}
	c.migrationInProgress = false
	c.transportsReady = false
	c.networkSwitched = false
	c.numberOfTransportsReady = 0
	c.numberOfTransportsMigrated = 0
	c.logger.Info("coordinator.stateTransition", "from", "AwaitingCompletion", "to", "Idle")
}

// MigrationNotificationTime returns the elapsed time between the receipt of
// the first onImminentServerMigration and the first moment transportsReady
// ever latched, for the migration_notification_time.json dump. The
// second return value is false if transportsReady was never reached.
func (c *Coordinator) MigrationNotificationTime() (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.reachedReady {
		return 0, false
	}
	return c.firstReadyTime.Sub(c.firstNotificationTime), true
}

// Snapshot returns a point-in-time, defensively-copied view of the
// coordinator state, for tests and diagnostics.
type Snapshot struct {
	Transports                 map[ConnID]migration.TransportState
	MigrationInProgress        bool
	TransportsReady            bool
	NetworkSwitched            bool
	NumberOfTransportsReady    int
	NumberOfTransportsMigrated int
}

// Snapshot returns the coordinator's current state.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	cp := make(map[ConnID]migration.TransportState, len(c.transports))
	for k, v := range c.transports {
		cp[k] = v
	}
	return Snapshot{
		Transports:                 cp,
		MigrationInProgress:        c.migrationInProgress,
		TransportsReady:            c.transportsReady,
		NetworkSwitched:            c.networkSwitched,
		NumberOfTransportsReady:    c.numberOfTransportsReady,
		NumberOfTransportsMigrated: c.numberOfTransportsMigrated,
	}
}

// SPDX-License-Identifier: GPL-3.0-or-later

package client

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quicmigrate/qmigrate/internal/controlplane"
	"github.com/quicmigrate/qmigrate/internal/migration"
	"github.com/quicmigrate/qmigrate/internal/obs"
	"github.com/quicmigrate/qmigrate/internal/reqsched"
	"github.com/quicmigrate/qmigrate/internal/transport"
)

// drainPeriod lets control-stream frames be acknowledged before a server
// migration is triggered, so a spurious PTO does not contaminate the
// measurement.
const drainPeriod = 2 * time.Second

// migrateCommand is the literal control-plane token the driver sends to
// the container migration script.
const migrateCommand = "migrate"

var errSessionClosed = errors.New("session closed")

// Config collects the per-driver configuration derived from the
// experiment and server-migration sections of the configuration.
type Config struct {
	ExperimentID                        ExperimentID
	NotifyImminentMigrationAfterRequest int64
	TriggerMigrationAfterRequest        int64
	ShutdownAfterRequest                int64
	Protocol                            migration.Protocol
	ProactiveExplicit                   bool
	MigrationAddress                    migration.Address
	HasMigrationAddress                 bool
	ServerManagementAddress             migration.Address
	ContainerMigrationScriptAddress     migration.Address
	Seed                                uint32
	TransactionTimeout                  time.Duration
}

// Driver is the client experiment driver: it advances the
// request loop, fires the experiment's notify/trigger/stop hooks at the
// configured points, and accumulates the output record described in
// record.go.
type Driver struct {
	cfg    Config
	cp     *controlplane.ClientEndpoint
	logger obs.SLogger

	mu                                        sync.Mutex
	serviceTimes                              []int64
	serverAddresses                           []string
	requestTimestamps                         []int64
	requestMethods                            []string
	requestBodySizes                          []int64
	responseBodySizes                         []int64
	firstRequestAfterMigrationTriggered       int64
	connectionEndedDueToTimeout               bool
	originalServerAddress                     migration.Address
	hasOriginalServerAddress                  bool
	firstResponseFromNewServerAddressReceived bool
	secondExpResponsesRemaining               int
	fourthExpResponsesRemaining               int
	serverManagementAddress                   migration.Address
	pendingManagementAddress                  migration.Address
	hasPendingManagementAddress               bool

	sessionClosed atomic.Bool
}

// NewDriver constructs a [Driver]. cp is the control-plane client
// endpoint used to notify the server and trigger the container migration
// script; it must already be running its read loop (see
// [controlplane.ClientEndpoint.Run]).
func NewDriver(cfg Config, cp *controlplane.ClientEndpoint, logger obs.SLogger) *Driver {
	if logger == nil {
		logger = obs.DefaultSLogger()
	}
	return &Driver{
		cfg:                                 cfg,
		cp:                                  cp,
		logger:                              logger,
		firstRequestAfterMigrationTriggered: -1,
		secondExpResponsesRemaining:         10,
		fourthExpResponsesRemaining:         30,
		serverManagementAddress:             cfg.ServerManagementAddress,
	}
}

// MarkSessionClosed signals the request loop to stop with a
// timeout-class failure at its next check.
func (d *Driver) MarkSessionClosed() { d.sessionClosed.Store(true) }

func (d *Driver) isSessionClosed() bool { return d.sessionClosed.Load() }

// OnServerMigrationCompleted records the server's new address under a
// mutex for the request loop to later apply to the control-plane
// destination.
func (d *Driver) OnServerMigrationCompleted(newServerIP migration.Address) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pendingManagementAddress = newServerIP
	d.hasPendingManagementAddress = true
}

// applyPendingManagementAddressUpdate rewrites the control-plane
// destination to (newIP, originalManagementPort), run only on the
// driver's own goroutine.
func (d *Driver) applyPendingManagementAddressUpdate() {
	d.mu.Lock()
	if !d.hasPendingManagementAddress {
		d.mu.Unlock()
		return
	}
	newAddr := d.pendingManagementAddress
	d.hasPendingManagementAddress = false
	port := d.serverManagementAddress.Port()
	d.serverManagementAddress = migration.Address(netipAddrPortWithPort(newAddr, port))
	d.mu.Unlock()
}

// Run drives the request loop until the experiment
// stops or tr reports it has no openable streams left.
func (d *Driver) Run(ctx context.Context, tr transport.ClientTransport, sched *reqsched.Scheduler) error {
	var completed int64
	var triggerPTO bool

	for {
		if tr.GetNumOpenableBidirectionalStreams() <= 0 {
			return nil
		}

		req, err := sched.Next(ctx)
		if err != nil {
			return err
		}

		d.applyPendingManagementAddressUpdate()

		if d.isSessionClosed() {
			peer := tr.PeerAddress()
			if err := d.StopExperimentDueToTimeout(ctx, peer); err != nil {
				d.logger.Info("driver.stopExperimentDueToTimeout.failed", "error", err.Error())
			}
			return obs.NewError("client.Driver.Run", obs.KindTransportTimeout, errSessionClosed)
		}

		if triggerPTO {
			tr.OnProbeTimeout()
		}

		reqCtx := ctx
		var cancel context.CancelFunc
		if d.cfg.TransactionTimeout > 0 {
			reqCtx, cancel = context.WithTimeout(ctx, d.cfg.TransactionTimeout)
		}
		start := time.Now()
		_, peer, respSize, sendErr := tr.SendRequest(reqCtx, req.Method, req.Path, req.Body)
		if cancel != nil {
			cancel()
		}
		if sendErr != nil {
			if err := d.StopExperimentDueToTimeout(ctx, peer); err != nil {
				d.logger.Info("driver.stopExperimentDueToTimeout.failed", "error", err.Error())
			}
			return nil
		}

		serviceTime := time.Since(start)
		triggerPTO = false
		completed++

		if err := d.MaybeNotifyImminentServerMigration(ctx, completed); err != nil {
			d.logger.Info("driver.maybeNotifyImminentServerMigration.failed", "error", err.Error())
		}

		d.MaybeSaveServiceTime(completed, start.UnixMicro(), req.Method, int64(len(req.Body)), respSize, serviceTime.Microseconds(), peer)

		pto, err := d.MaybeTriggerServerMigration(ctx, completed)
		if err != nil {
			d.logger.Info("driver.maybeTriggerServerMigration.failed", "error", err.Error())
		}
		triggerPTO = pto

		stop, err := d.MaybeStopExperiment(ctx, completed)
		if err != nil {
			d.logger.Info("driver.maybeStopExperiment.failed", "error", err.Error())
		}
		if stop {
			return nil
		}
	}
}

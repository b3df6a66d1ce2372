// SPDX-License-Identifier: GPL-3.0-or-later

package client

import (
	"context"
	"time"

	"github.com/quicmigrate/qmigrate/internal/controlplane"
	"github.com/quicmigrate/qmigrate/internal/migration"
)

// MaybeNotifyImminentServerMigration implements the "notify imminent"
// column of the experiment table.
func (d *Driver) MaybeNotifyImminentServerMigration(ctx context.Context, completed int64) error {
	switch d.cfg.ExperimentID {
	case Baseline, Four, Five, ClientMigrationBaseline:
		return nil
	case One, Two:
		if completed == d.cfg.NotifyImminentMigrationAfterRequest {
			return d.notifyImminentServerMigration(ctx)
		}
		return nil
	case Three:
		// Experiment Three runs multiple clients; only the "last" client
		// has a positive NotifyImminentMigrationAfterRequest.
		if d.cfg.NotifyImminentMigrationAfterRequest > 0 && completed == d.cfg.NotifyImminentMigrationAfterRequest {
			return d.notifyImminentServerMigration(ctx)
		}
		return nil
	default:
		return nil
	}
}

func (d *Driver) notifyImminentServerMigration(ctx context.Context) error {
	cmd := controlplane.NewOnImminentServerMigration(d.cfg.Protocol, d.cfg.MigrationAddress, d.cfg.HasMigrationAddress)
	payload, err := controlplane.Encode(cmd)
	if err != nil {
		return err
	}
	d.mu.Lock()
	dest := d.serverManagementAddress
	d.mu.Unlock()
	return d.cp.Send(ctx, dest, payload)
}

// MaybeTriggerServerMigration implements the "trigger" column. It
// reports whether the next request submission must force a PTO
// (Proactive Explicit only).
func (d *Driver) MaybeTriggerServerMigration(ctx context.Context, completed int64) (bool, error) {
	switch d.cfg.ExperimentID {
	case One, Two:
		if completed == d.cfg.TriggerMigrationAfterRequest {
			if err := d.triggerServerMigration(ctx, true); err != nil {
				return false, err
			}
			return d.cfg.ProactiveExplicit, nil
		}
		return false, nil
	default:
		return false, nil
	}
}

func (d *Driver) triggerServerMigration(ctx context.Context, drain bool) error {
	if drain {
		timer := time.NewTimer(drainPeriod)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	d.mu.Lock()
	dest := d.cfg.ContainerMigrationScriptAddress
	d.mu.Unlock()
	return d.cp.Send(ctx, dest, []byte(migrateCommand))
}

// MaybeStopExperiment implements the "stop condition" column. It
// reports whether the driver should stop the request loop.
func (d *Driver) MaybeStopExperiment(ctx context.Context, completed int64) (bool, error) {
	switch d.cfg.ExperimentID {
	case Baseline:
		if completed == d.cfg.ShutdownAfterRequest {
			return true, d.stopExperiment(ctx, false)
		}
		return false, nil
	case One:
		if completed == d.cfg.ShutdownAfterRequest {
			return true, d.stopExperiment(ctx, true)
		}
		return false, nil
	case Two:
		d.mu.Lock()
		responded := d.firstResponseFromNewServerAddressReceived
		if responded {
			d.secondExpResponsesRemaining--
		}
		remaining := d.secondExpResponsesRemaining
		d.mu.Unlock()
		if responded && remaining <= 0 {
			return true, d.stopExperiment(ctx, true)
		}
		return false, nil
	case Three:
		if completed == d.cfg.ShutdownAfterRequest {
			if d.cfg.NotifyImminentMigrationAfterRequest > 0 {
				return true, d.stopExperiment(ctx, false)
			}
			return true, nil
		}
		return false, nil
	case Four:
		d.mu.Lock()
		responded := d.firstResponseFromNewServerAddressReceived
		if responded {
			d.fourthExpResponsesRemaining--
		}
		remaining := d.fourthExpResponsesRemaining
		d.mu.Unlock()
		if responded && remaining <= 0 {
			return true, nil
		}
		return false, nil
	case Five, ClientMigrationBaseline:
		// These stop only on idle timeout, handled by the caller's
		// transaction-timeout path, not here.
		return false, nil
	default:
		return false, nil
	}
}

func (d *Driver) stopExperiment(ctx context.Context, shutdownContainerMigrationScript bool) error {
	cmd := controlplane.NewShutdown()
	payload, err := controlplane.Encode(cmd)
	if err != nil {
		return err
	}
	d.mu.Lock()
	serverDest := d.serverManagementAddress
	scriptDest := d.cfg.ContainerMigrationScriptAddress
	d.mu.Unlock()

	if err := d.cp.Send(ctx, serverDest, payload); err != nil {
		return err
	}
	if shutdownContainerMigrationScript {
		return d.cp.Send(ctx, scriptDest, payload)
	}
	return nil
}

// StopExperimentDueToTimeout implements the request loop's transaction-timeout
// path.
func (d *Driver) StopExperimentDueToTimeout(ctx context.Context, currentPeer migration.Address) error {
	switch d.cfg.ExperimentID {
	case Baseline:
		return d.stopExperiment(ctx, false)
	case One, Two:
		d.mu.Lock()
		currentManagement := netipAddrPortWithPort(currentPeer, d.serverManagementAddress.Port())
		if currentManagement != d.serverManagementAddress {
			d.serverManagementAddress = currentManagement
		}
		d.mu.Unlock()
		return d.stopExperiment(ctx, true)
	case Three:
		if d.cfg.NotifyImminentMigrationAfterRequest > 0 {
			return d.stopExperiment(ctx, false)
		}
		return nil
	case Four:
		d.mu.Lock()
		d.connectionEndedDueToTimeout = true
		d.mu.Unlock()
		return nil
	case Five, ClientMigrationBaseline:
		return nil
	default:
		return nil
	}
}

// MaybeSaveServiceTime implements the "save times" column.
func (d *Driver) MaybeSaveServiceTime(requestNumber, requestTimestamp int64, method string, requestBodySize, responseBodySize, serviceTimeMicros int64, serverAddress migration.Address) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch d.cfg.ExperimentID {
	case Baseline:
		if requestNumber == 5 {
			d.serviceTimes = append(d.serviceTimes, serviceTimeMicros)
			d.serverAddresses = append(d.serverAddresses, serverAddress.String())
		}
	case One:
		if requestNumber == d.cfg.TriggerMigrationAfterRequest+1 {
			d.serviceTimes = append(d.serviceTimes, serviceTimeMicros)
			d.serverAddresses = append(d.serverAddresses, serverAddress.String())
			d.firstRequestAfterMigrationTriggered = requestNumber
		}
	case Two:
		if requestNumber == d.cfg.TriggerMigrationAfterRequest+1 {
			d.firstRequestAfterMigrationTriggered = requestNumber
		}
		d.serviceTimes = append(d.serviceTimes, serviceTimeMicros)
		d.serverAddresses = append(d.serverAddresses, serverAddress.String())

		if requestNumber == 1 {
			d.originalServerAddress = serverAddress
			d.hasOriginalServerAddress = true
			return
		}
		if requestNumber > d.cfg.TriggerMigrationAfterRequest &&
			!d.firstResponseFromNewServerAddressReceived &&
			d.hasOriginalServerAddress && d.originalServerAddress != serverAddress {
			d.firstResponseFromNewServerAddressReceived = true
		}
	case Three:
		// Experiment Three measures notification time only; no service
		// times are recorded.
	case Four:
		d.serviceTimes = append(d.serviceTimes, serviceTimeMicros)
		d.serverAddresses = append(d.serverAddresses, serverAddress.String())
		d.requestTimestamps = append(d.requestTimestamps, requestTimestamp)
		d.requestMethods = append(d.requestMethods, method)
		d.requestBodySizes = append(d.requestBodySizes, requestBodySize)
		d.responseBodySizes = append(d.responseBodySizes, responseBodySize)

		if requestNumber == 1 {
			d.originalServerAddress = serverAddress
			d.hasOriginalServerAddress = true
			return
		}
		if !d.firstResponseFromNewServerAddressReceived &&
			d.hasOriginalServerAddress && d.originalServerAddress != serverAddress {
			d.firstResponseFromNewServerAddressReceived = true
		}
	case Five, ClientMigrationBaseline:
		d.serviceTimes = append(d.serviceTimes, serviceTimeMicros)
		d.serverAddresses = append(d.serverAddresses, serverAddress.String())
		d.requestTimestamps = append(d.requestTimestamps, requestTimestamp)
	}
}

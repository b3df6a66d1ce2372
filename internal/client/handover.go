// SPDX-License-Identifier: GPL-3.0-or-later

package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/quicmigrate/qmigrate/internal/controlplane"
	"github.com/quicmigrate/qmigrate/internal/obs"
)

// handoverMaxAttempts and handoverRetryInterval bound the OS-level
// network-change probe loop: Wi-Fi reconnect and routing table
// update are each retried this many times at this fixed interval before
// the handover is abandoned.
const (
	handoverMaxAttempts   = 10
	handoverRetryInterval = 1 * time.Second
)

// NetworkChanger performs the OS-level steps of a real network handover.
// The production command entrypoints wire a changer that shells out to
// nmcli/ip route; tests use a fake that never touches the host network.
type NetworkChanger interface {
	ConnectAccessPoint(ctx context.Context, accessPoint string) error
	AddRoute(ctx context.Context, subnet, gateway string) error
}

// handoverCommand is the JSON wire shape of a handover notification.
type handoverCommand struct {
	Action                 string `json:"action"`
	Address                string `json:"address"`
	AccessPoint            string `json:"accessPoint"`
	AccessPointRouter      string `json:"accessPointRouter"`
	OtherAccessPointSubnet string `json:"otherAccessPointSubnet"`
}

// HandoverManager listens for handover commands and, on receipt, drives
// the host network change and hands the transport a new local socket
// bound to the new address.
type HandoverManager struct {
	conn     *net.UDPConn
	changer  NetworkChanger
	onSwitch func(ctx context.Context, newLocalAddr netip.AddrPort) error
	logger   obs.SLogger
}

// NewHandoverManager wraps conn as a [*HandoverManager]. onSwitch is
// invoked, on the caller's goroutine, once both network-change steps
// succeed; it is expected to bind a new UDP socket to newLocalAddr and
// hand it to the transport (the transport-specific
// "onNetworkSwitch(newSocket)" operation).
func NewHandoverManager(conn *net.UDPConn, changer NetworkChanger, onSwitch func(ctx context.Context, newLocalAddr netip.AddrPort) error, logger obs.SLogger) *HandoverManager {
	if logger == nil {
		logger = obs.DefaultSLogger()
	}
	return &HandoverManager{conn: conn, changer: changer, onSwitch: onSwitch, logger: logger}
}

// Run drains incoming handover commands until ctx is done.
func (h *HandoverManager) Run(ctx context.Context) {
	defer controlplane.CancelWatch(ctx, h.conn)()

	buf := make([]byte, 2048)
	for {
		n, raddr, err := h.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			return
		}
		h.dispatch(ctx, raddr, append([]byte(nil), buf[:n]...))
	}
}

func (h *HandoverManager) dispatch(ctx context.Context, raddr netip.AddrPort, raw []byte) {
	var cmd handoverCommand
	if err := json.Unmarshal(raw, &cmd); err != nil {
		h.reply(raddr, fmt.Sprintf("Bad request. Error: %s", err))
		return
	}
	if cmd.Action != "handover" {
		return
	}
	newAddr, err := netip.ParseAddrPort(cmd.Address)
	if err != nil {
		h.reply(raddr, fmt.Sprintf("Bad request. Error: %s", err))
		return
	}

	if err := h.doHandover(ctx, newAddr, cmd.AccessPoint, cmd.AccessPointRouter, cmd.OtherAccessPointSubnet); err != nil {
		h.logger.Info("handover.failed", "error", err.Error())
	}
}

func (h *HandoverManager) reply(raddr netip.AddrPort, payload string) {
	_, _ = h.conn.WriteToUDPAddrPort([]byte(payload), raddr)
}

func (h *HandoverManager) doHandover(ctx context.Context, newAddr netip.AddrPort, accessPoint, accessPointRouter, otherAccessPointSubnet string) error {
	const op = "client.HandoverManager.doHandover"

	if err := retryUntilSuccess(ctx, handoverMaxAttempts, handoverRetryInterval, func() error {
		return h.changer.ConnectAccessPoint(ctx, accessPoint)
	}); err != nil {
		return obs.NewError(op, obs.KindMigrationFailure, fmt.Errorf("handover failed: %w", err))
	}

	if err := retryUntilSuccess(ctx, handoverMaxAttempts, handoverRetryInterval, func() error {
		return h.changer.AddRoute(ctx, otherAccessPointSubnet, accessPointRouter)
	}); err != nil {
		return obs.NewError(op, obs.KindMigrationFailure, fmt.Errorf("routing table update failed: %w", err))
	}

	return h.onSwitch(ctx, newAddr)
}

func retryUntilSuccess(ctx context.Context, maxAttempts int, interval time.Duration, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
		}
		timer := time.NewTimer(interval)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
	return lastErr
}

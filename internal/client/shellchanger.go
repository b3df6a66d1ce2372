// SPDX-License-Identifier: GPL-3.0-or-later

package client

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/quicmigrate/qmigrate/internal/obs"
)

// ShellNetworkChanger is the real [NetworkChanger]: it shells out to
// nmcli and ip route to drive the host network change. It
// is only ever constructed by cmd/qmigrate-client, never by tests.
type ShellNetworkChanger struct {
	logger obs.SLogger
}

// NewShellNetworkChanger constructs a [*ShellNetworkChanger].
func NewShellNetworkChanger(logger obs.SLogger) *ShellNetworkChanger {
	if logger == nil {
		logger = obs.DefaultSLogger()
	}
	return &ShellNetworkChanger{logger: logger}
}

var _ NetworkChanger = (*ShellNetworkChanger)(nil)

// ConnectAccessPoint runs `nmcli dev wifi connect <accessPoint>`.
func (c *ShellNetworkChanger) ConnectAccessPoint(ctx context.Context, accessPoint string) error {
	return c.run(ctx, "nmcli", "dev", "wifi", "connect", accessPoint)
}

// AddRoute runs `ip route add <subnet> via <gateway>`.
func (c *ShellNetworkChanger) AddRoute(ctx context.Context, subnet, gateway string) error {
	return c.run(ctx, "ip", "route", "add", subnet, "via", gateway)
}

func (c *ShellNetworkChanger) run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	c.logger.Debug("shellNetworkChanger.run", "command", name, "output", string(out))
	if err != nil {
		return obs.NewError("client.ShellNetworkChanger.run", obs.KindMigrationFailure,
			fmt.Errorf("%s: %w", name, err))
	}
	return nil
}

// SPDX-License-Identifier: GPL-3.0-or-later

// Command qmigrate-client drives the client side of a QUIC
// server-migration experiment: it submits the scheduled request sequence
// over HTTP/3, fires the experiment's control-plane hooks at the
// configured points, and writes the resulting service-time record
// on exit.
package main

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quicmigrate/qmigrate/internal/client"
	"github.com/quicmigrate/qmigrate/internal/config"
	"github.com/quicmigrate/qmigrate/internal/controlplane"
	"github.com/quicmigrate/qmigrate/internal/migration"
	"github.com/quicmigrate/qmigrate/internal/obs"
	"github.com/quicmigrate/qmigrate/internal/reqsched"
	"github.com/quicmigrate/qmigrate/internal/seed"
	"github.com/quicmigrate/qmigrate/internal/transport"

	"github.com/spf13/cobra"
	"log/slog"
)

// handoverListenPort is the fixed UDP port the handover manager listens
// on for handover commands.
const handoverListenPort = 5555

var configPath string

var rootCmd = &cobra.Command{
	Use:   "qmigrate-client",
	Short: "Run the QUIC server-migration experiment client",
	RunE:  run,
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "", "path to the JSON configuration file")
	_ = rootCmd.MarkFlagRequired("config")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	f, err := os.Open(configPath)
	if err != nil {
		return fmt.Errorf("opening config: %w", err)
	}
	cfg, err := config.Load(f)
	f.Close()
	if err != nil {
		return err
	}

	experimentID, err := client.ParseExperimentID(cfg.Experiment.ID)
	if err != nil {
		return err
	}

	var selection client.ProtocolSelection
	if cfg.Experiment.ServerMigrationProtocol != "" {
		selection, err = client.ParseProtocolSelection(cfg.Experiment.ServerMigrationProtocol)
		if err != nil {
			return err
		}
	}

	serverManagementAddress, err := resolveAddrPort(cfg.Experiment.ServerMigrationHost, cfg.Experiment.ServerManagementPort)
	if err != nil {
		return fmt.Errorf("resolving server management address: %w", err)
	}
	containerScriptAddress, err := resolveAddrPort(cfg.Experiment.ContainerMigrationScriptHost, cfg.Experiment.ContainerMigrationScriptPort)
	if err != nil {
		return fmt.Errorf("resolving container migration script address: %w", err)
	}

	var migrationAddress migration.Address
	hasMigrationAddress := false
	if selection.Protocol == migration.Explicit && cfg.Experiment.ServerMigrationHost != "" && cfg.Experiment.ServerMigrationPort != 0 {
		migrationAddress, err = resolveAddrPort(cfg.Experiment.ServerMigrationHost, cfg.Experiment.ServerMigrationPort)
		if err != nil {
			return fmt.Errorf("resolving migration address: %w", err)
		}
		hasMigrationAddress = true
	}

	expander := seed.NewExpander(cfg.Seed)
	driverSeed := expander.Next()
	schedRequestTypeSeed := expander.Next()
	schedPostBodySeed := expander.Next()
	poolSeed := expander.Next()

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	localConn, err := net.ListenUDP("udp", &net.UDPAddr{})
	if err != nil {
		return fmt.Errorf("binding control-plane socket: %w", err)
	}
	observedConn := controlplane.ObserveDatagramConn(localConn, obs.ErrClassifierFunc(obs.ClassifySystem), logger)
	cp := controlplane.NewClientEndpoint(observedConn,
		[]netip.AddrPort{serverManagementAddress, containerScriptAddress}, logger)
	go cp.Run(ctx)

	driverCfg := client.Config{
		ExperimentID:                        experimentID,
		NotifyImminentMigrationAfterRequest: int64(cfg.Experiment.NotifyImminentMigrationAfterRequest),
		TriggerMigrationAfterRequest:        int64(cfg.Experiment.TriggerMigrationAfterRequest),
		ShutdownAfterRequest:                int64(cfg.Experiment.ShutdownAfterRequest),
		Protocol:                            selection.Protocol,
		ProactiveExplicit:                   selection.Proactive,
		MigrationAddress:                    migrationAddress,
		HasMigrationAddress:                 hasMigrationAddress,
		ServerManagementAddress:             serverManagementAddress,
		ContainerMigrationScriptAddress:     containerScriptAddress,
		Seed:                                driverSeed,
		TransactionTimeout:                  30 * time.Second,
	}
	driver := client.NewDriver(driverCfg, cp, logger)

	settings, cleanup, err := transportSettings(cfg)
	if err != nil {
		return err
	}
	defer cleanup()
	tr, err := transport.NewQUICGoClient(fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.ServerPort),
		settings, true, logger)
	if err != nil {
		return fmt.Errorf("dialing server: %w", err)
	}
	tr.SetServerMigrationEventCallback(driverMigrationSink{driver: driver, tr: tr, logger: logger})
	if cfg.ServerMigration.Enable {
		tr.AllowServerMigration([]migration.Protocol{selection.Protocol})
	}
	if selection.Protocol == migration.PoolOfAddresses {
		addressPool, err := parseAddressPool(cfg.ServerMigration.AddressPool)
		if err != nil {
			return err
		}
		tr.SetPoolMigrationAddressSchedulerFactory(poolSchedulerFactory{seed: poolSeed, addresses: addressPool})
	}

	var handover *client.HandoverManager
	if experimentID == client.ClientMigrationBaseline {
		handoverConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4zero, Port: handoverListenPort})
		if err != nil {
			return fmt.Errorf("binding handover socket: %w", err)
		}
		onSwitch := func(_ context.Context, newAddr netip.AddrPort) error {
			newSocket, err := net.ListenUDP("udp", net.UDPAddrFromAddrPort(newAddr))
			if err != nil {
				return fmt.Errorf("binding new local address %s: %w", newAddr, err)
			}
			return tr.OnNetworkSwitch(newSocket)
		}
		handover = client.NewHandoverManager(handoverConn, client.NewShellNetworkChanger(logger), onSwitch, logger)
		go handover.Run(ctx)
	}

	pattern := reqsched.BackToBack
	if cfg.RequestPattern.Sporadic {
		pattern = reqsched.Sporadic
	}
	body := reqsched.Fixed
	if cfg.RequestBody.FromDistribution {
		body = reqsched.FromDistribution
	}
	sporadicInterval := time.Duration(cfg.RequestPattern.SporadicInterval) * time.Second
	sched := reqsched.NewScheduler(pattern, sporadicInterval, body, schedRequestTypeSeed, schedPostBodySeed, logger)

	if err := driver.Run(ctx, tr, sched); err != nil {
		logger.Info("qmigrate-client.run", "err", err)
	}

	return dumpServiceTimes(driver)
}

func dumpServiceTimes(driver *client.Driver) error {
	out, err := os.Create(driver.OutputFilename())
	if err != nil {
		return fmt.Errorf("creating service times file: %w", err)
	}
	defer out.Close()
	return driver.DumpServiceTimesToFile(out)
}

func resolveAddrPort(host string, port int) (netip.AddrPort, error) {
	if host == "" || port == 0 {
		return netip.AddrPort{}, nil
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		ips, lookupErr := net.LookupHost(host)
		if lookupErr != nil || len(ips) == 0 {
			return netip.AddrPort{}, lookupErr
		}
		addr, err = netip.ParseAddr(ips[0])
		if err != nil {
			return netip.AddrPort{}, err
		}
	}
	return netip.AddrPortFrom(addr, uint16(port)), nil
}

func parseAddressPool(raw []string) ([]migration.Address, error) {
	addrs := make([]migration.Address, 0, len(raw))
	for _, s := range raw {
		a, err := netip.ParseAddrPort(s)
		if err != nil {
			return nil, obs.NewError("qmigrate-client.parseAddressPool", obs.KindConfigError, err)
		}
		addrs = append(addrs, a)
	}
	return addrs, nil
}

func transportSettings(cfg *config.Config) (transport.Settings, func(), error) {
	settings := transport.NewClientSettings()
	settings.DisableMigration = !cfg.ServerMigration.Enable
	cleanup := func() {}
	if cfg.KeyLogging.Enable {
		klw, err := os.OpenFile(cfg.KeyLogging.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return settings, cleanup, fmt.Errorf("opening key log file: %w", err)
		}
		settings.KeyLogWriter = klw
		cleanup = func() { klw.Close() }
	}
	return settings, cleanup, nil
}

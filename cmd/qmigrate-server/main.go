// SPDX-License-Identifier: GPL-3.0-or-later

// Command qmigrate-server runs the server side of a QUIC server-migration
// experiment: it accepts HTTP/3 connections, serves the /echo and
// /distribution endpoints, and drives server migration on commands
// received over its control-plane management socket.
package main

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"

	"github.com/quicmigrate/qmigrate/internal/config"
	"github.com/quicmigrate/qmigrate/internal/controlplane"
	"github.com/quicmigrate/qmigrate/internal/migration"
	"github.com/quicmigrate/qmigrate/internal/obs"
	"github.com/quicmigrate/qmigrate/internal/seed"
	"github.com/quicmigrate/qmigrate/internal/server"
	"github.com/quicmigrate/qmigrate/internal/transport"

	"github.com/spf13/cobra"
	"log/slog"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "qmigrate-server",
	Short: "Run the QUIC server-migration experiment server",
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

	allowedProtocols := allowedServerProtocols(cfg)
	poolAddresses, err := parseAddressPool(cfg.ServerMigration.AddressPool)
	if err != nil {
		return err
	}

	settings := transport.NewServerSettings()
	settings.DisableMigration = !cfg.ServerMigration.Enable
	settings.Certificates, err = selfSignedCertificates(cfg.ServerHost)
	if err != nil {
		return err
	}
	if cfg.KeyLogging.Enable {
		klw, err := os.OpenFile(cfg.KeyLogging.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return fmt.Errorf("opening key log file: %w", err)
		}
		defer klw.Close()
		settings.KeyLogWriter = klw
	}

	if cfg.NumberOfWorkerThreads > 0 {
		runtime.GOMAXPROCS(cfg.NumberOfWorkerThreads)
	}

	ballast := server.InflateMemoryFootprint(memoryInflationBytes(cfg))
	defer runtime.KeepAlive(ballast)

	reg := newSessionRegistry(seed.NewBuffer(cfg.Seed), allowedProtocols, poolAddresses, logger)

	addr := net.JoinHostPort(cfg.ServerHost, fmt.Sprintf("%d", cfg.ServerPort))
	quicServer := transport.NewQUICGoServer(addr, settings, http.HandlerFunc(reg.serveHTTP), logger)
	reg.quicServer = quicServer

	coordinator := server.NewCoordinator(&fleet{server: quicServer}, logger)
	reg.factory = server.NewFactory(reg.seeds, coordinator, allowedProtocols, poolAddresses, logger)
	reg.migrationSink = coordinatorMigrationSink{c: coordinator}
	reg.clientSink = coordinatorClientSink{c: coordinator}

	mgmtHost := cfg.ServerHost
	mgmtConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP(mgmtHost), Port: cfg.ManagementPort})
	if err != nil {
		return fmt.Errorf("binding management socket: %w", err)
	}
	observedMgmt := controlplane.ObserveDatagramConn(mgmtConn, obs.ErrClassifierFunc(obs.ClassifySystem), logger)
	cpServer := controlplane.NewServerEndpoint(observedMgmt, coordinator, logger)

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		cpServer.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		if err := quicServer.Serve(ctx); err != nil {
			logger.Error("qmigrate-server.serve", "err", err)
		}
	}()

	select {
	case <-ctx.Done():
	case <-cpServer.Shutdown():
		cancel()
	}
	wg.Wait()

	return dumpMigrationNotificationTime(coordinator)
}

func memoryInflationBytes(cfg *config.Config) int {
	if !cfg.MemoryFootprintInflation.Enable {
		return 0
	}
	return cfg.MemoryFootprintInflation.AdditionalBytes
}

func allowedServerProtocols(cfg *config.Config) []migration.Protocol {
	if !cfg.ServerMigration.Enable {
		return nil
	}
	var protocols []migration.Protocol
	if cfg.ServerMigration.Explicit {
		protocols = append(protocols, migration.Explicit)
	}
	if cfg.ServerMigration.PoolOfAddresses {
		protocols = append(protocols, migration.PoolOfAddresses)
	}
	if cfg.ServerMigration.Symmetric {
		protocols = append(protocols, migration.Symmetric)
	}
	if cfg.ServerMigration.SynchronizedSymmetric {
		protocols = append(protocols, migration.SynchronizedSymmetric)
	}
	return protocols
}

func parseAddressPool(raw []string) ([]migration.Address, error) {
	addrs := make([]migration.Address, 0, len(raw))
	for _, s := range raw {
		a, err := netip.ParseAddrPort(s)
		if err != nil {
			return nil, obs.NewError("qmigrate-server.parseAddressPool", obs.KindConfigError, err)
		}
		addrs = append(addrs, a)
	}
	return addrs, nil
}

func dumpMigrationNotificationTime(c *server.Coordinator) error {
	f, err := os.Create("migration_notification_time.json")
	if err != nil {
		return fmt.Errorf("creating migration_notification_time.json: %w", err)
	}
	defer f.Close()
	return c.DumpMigrationNotificationTime(f)
}

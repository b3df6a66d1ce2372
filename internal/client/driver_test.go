// SPDX-License-Identifier: GPL-3.0-or-later

package client

import (
	"context"
	"net"
	"net/netip"
	"testing"

	"github.com/quicmigrate/qmigrate/internal/controlplane"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoingPeer binds a loopback UDP socket and replies "OK" to every
// datagram, standing in for both the server management endpoint and the
// container migration script in tests.
func echoingPeer(t *testing.T) (netip.AddrPort, func()) {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		buf := make([]byte, 2048)
		for {
			_, raddr, err := conn.ReadFromUDPAddrPort(buf)
			if err != nil {
				return
			}
			_, _ = conn.WriteToUDPAddrPort([]byte("OK"), raddr)
		}
	}()
	addr := netip.MustParseAddrPort(conn.LocalAddr().String())
	return addr, func() {
		cancel()
		conn.Close()
		<-ctx.Done()
	}
}

func newTestDriver(t *testing.T, cfg Config) (*Driver, func()) {
	t.Helper()
	peerAddr, stopPeer := echoingPeer(t)
	cfg.ServerManagementAddress = peerAddr
	cfg.ContainerMigrationScriptAddress = peerAddr

	clientConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	cp := controlplane.NewClientEndpoint(clientConn, []netip.AddrPort{peerAddr}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go cp.Run(ctx)

	d := NewDriver(cfg, cp, nil)
	return d, func() {
		cancel()
		stopPeer()
	}
}

func TestMaybeStopExperimentBaselineFiresAtShutdownAfter(t *testing.T) {
	d, cleanup := newTestDriver(t, Config{ExperimentID: Baseline, ShutdownAfterRequest: 3})
	defer cleanup()

	stop, err := d.MaybeStopExperiment(context.Background(), 2)
	require.NoError(t, err)
	assert.False(t, stop)

	stop, err = d.MaybeStopExperiment(context.Background(), 3)
	require.NoError(t, err)
	assert.True(t, stop)
}

func TestMaybeStopExperimentThreeOnlyLastClientSendsShutdown(t *testing.T) {
	d, cleanup := newTestDriver(t, Config{ExperimentID: Three, ShutdownAfterRequest: 5, NotifyImminentMigrationAfterRequest: 0})
	defer cleanup()

	stop, err := d.MaybeStopExperiment(context.Background(), 5)
	require.NoError(t, err)
	assert.True(t, stop)
}

func TestMaybeStopExperimentFourDoesNotSendShutdown(t *testing.T) {
	d, cleanup := newTestDriver(t, Config{ExperimentID: Four})
	defer cleanup()

	d.mu.Lock()
	d.firstResponseFromNewServerAddressReceived = true
	d.fourthExpResponsesRemaining = 1
	d.mu.Unlock()

	stop, err := d.MaybeStopExperiment(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, stop)
}

func TestMaybeStopExperimentFiveNeverStopsOnRequestCount(t *testing.T) {
	d, cleanup := newTestDriver(t, Config{ExperimentID: Five})
	defer cleanup()

	stop, err := d.MaybeStopExperiment(context.Background(), 1000)
	require.NoError(t, err)
	assert.False(t, stop)
}

func TestMaybeSaveServiceTimeBaselineOnlySavesFifthRequest(t *testing.T) {
	d, cleanup := newTestDriver(t, Config{ExperimentID: Baseline})
	defer cleanup()

	peer := netip.MustParseAddrPort("203.0.113.1:443")
	d.MaybeSaveServiceTime(4, 0, "GET", 0, 0, 100, peer)
	d.MaybeSaveServiceTime(5, 0, "GET", 0, 0, 200, peer)

	d.mu.Lock()
	defer d.mu.Unlock()
	assert.Equal(t, []int64{200}, d.serviceTimes)
}

func TestMaybeSaveServiceTimeOneRecordsMigrationTriggerRequestNumber(t *testing.T) {
	d, cleanup := newTestDriver(t, Config{ExperimentID: One, TriggerMigrationAfterRequest: 3})
	defer cleanup()

	peer := netip.MustParseAddrPort("203.0.113.1:443")
	d.MaybeSaveServiceTime(4, 0, "GET", 0, 0, 150, peer)

	d.mu.Lock()
	defer d.mu.Unlock()
	assert.Equal(t, []int64{150}, d.serviceTimes)
	assert.Equal(t, int64(4), d.firstRequestAfterMigrationTriggered)
}

func TestMaybeSaveServiceTimeTwoDetectsNewPeerAddress(t *testing.T) {
	d, cleanup := newTestDriver(t, Config{ExperimentID: Two, TriggerMigrationAfterRequest: 2})
	defer cleanup()

	original := netip.MustParseAddrPort("203.0.113.1:443")
	newPeer := netip.MustParseAddrPort("203.0.113.2:443")

	d.MaybeSaveServiceTime(1, 0, "GET", 0, 0, 100, original)
	d.MaybeSaveServiceTime(2, 0, "GET", 0, 0, 100, original)
	d.MaybeSaveServiceTime(3, 0, "GET", 0, 0, 100, newPeer)

	d.mu.Lock()
	defer d.mu.Unlock()
	assert.True(t, d.firstResponseFromNewServerAddressReceived)
	assert.Len(t, d.serviceTimes, 3)
}

func TestStopExperimentDueToTimeoutUpdatesManagementAddressForOneAndTwo(t *testing.T) {
	d, cleanup := newTestDriver(t, Config{ExperimentID: One})
	defer cleanup()

	// Nothing answers at the new management address, so the shutdown send
	// exhausts its budget and reports an error; the address update is what
	// this test is about.
	newPeer := netip.MustParseAddrPort("203.0.113.9:443")
	require.Error(t, d.StopExperimentDueToTimeout(context.Background(), newPeer))

	d.mu.Lock()
	defer d.mu.Unlock()
	assert.Equal(t, newPeer.Addr(), d.serverManagementAddress.Addr())
}

func TestOnServerMigrationCompletedAppliesOnNextLoopIteration(t *testing.T) {
	d, cleanup := newTestDriver(t, Config{ExperimentID: Baseline})
	defer cleanup()

	newPeer := netip.MustParseAddrPort("198.51.100.7:9000")
	d.OnServerMigrationCompleted(newPeer)

	d.applyPendingManagementAddressUpdate()

	d.mu.Lock()
	defer d.mu.Unlock()
	assert.Equal(t, newPeer.Addr(), d.serverManagementAddress.Addr())
	assert.False(t, d.hasPendingManagementAddress)
}

func TestMarkSessionClosed(t *testing.T) {
	d, cleanup := newTestDriver(t, Config{ExperimentID: Baseline})
	defer cleanup()

	assert.False(t, d.isSessionClosed())
	d.MarkSessionClosed()
	assert.True(t, d.isSessionClosed())
}

func TestNetipAddrPortWithPort(t *testing.T) {
	addr := netip.MustParseAddrPort("203.0.113.1:443")
	out := netipAddrPortWithPort(addr, 9000)
	assert.Equal(t, uint16(9000), out.Port())
	assert.Equal(t, addr.Addr(), out.Addr())
}

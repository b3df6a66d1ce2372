// SPDX-License-Identifier: GPL-3.0-or-later

package client

import (
	"context"
	"net"
	"net/netip"
	"sync/atomic"
	"testing"

	"github.com/quicmigrate/qmigrate/internal/migration"
	"github.com/quicmigrate/qmigrate/internal/reqsched"
	"github.com/quicmigrate/qmigrate/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClientTransport struct {
	peer            netip.AddrPort
	openableStreams int64
	probeTimeouts   int32
	requestsSent    int32

	// ptoAtRequestCounts records, for each forced probe timeout, how many
	// requests had been sent when it fired. Written and read from the
	// driver's goroutine only.
	ptoAtRequestCounts []int32
}

var _ transport.ClientTransport = (*fakeClientTransport)(nil)

func (f *fakeClientTransport) PeerAddress() migration.Address { return f.peer }
func (f *fakeClientTransport) GetNumOpenableBidirectionalStreams() int64 {
	return atomic.LoadInt64(&f.openableStreams)
}
func (f *fakeClientTransport) AllowServerMigration(_ []migration.Protocol) {}
func (f *fakeClientTransport) SetPoolMigrationAddressSchedulerFactory(_ transport.PoolMigrationAddressSchedulerFactory) {
}
func (f *fakeClientTransport) SetServerMigrationEventCallback(_ transport.ServerMigrationEventSink) {
}
func (f *fakeClientTransport) OnNetworkSwitch(_ net.PacketConn) error { return nil }

func (f *fakeClientTransport) OnProbeTimeout() {
	atomic.AddInt32(&f.probeTimeouts, 1)
	f.ptoAtRequestCounts = append(f.ptoAtRequestCounts, atomic.LoadInt32(&f.requestsSent))
}

func (f *fakeClientTransport) SendRequest(_ context.Context, _, _ string, _ []byte) (int, migration.Address, int64, error) {
	atomic.AddInt32(&f.requestsSent, 1)
	atomic.AddInt64(&f.openableStreams, -1)
	return 200, f.peer, 0, nil
}

func TestDriverRunStopsWhenNoOpenableStreams(t *testing.T) {
	d, cleanup := newTestDriver(t, Config{ExperimentID: Baseline, ShutdownAfterRequest: 1000})
	defer cleanup()

	sched := reqsched.NewScheduler(reqsched.BackToBack, 0, reqsched.Fixed, 1, 2, nil)

	tr := &fakeClientTransport{peer: netip.MustParseAddrPort("203.0.113.1:443"), openableStreams: 0}

	err := d.Run(context.Background(), tr, sched)
	require.NoError(t, err)
	assert.Equal(t, int32(0), tr.requestsSent)
}

func TestDriverRunProactiveExplicitForcesPTOOnNextSubmission(t *testing.T) {
	d, cleanup := newTestDriver(t, Config{
		ExperimentID:                 One,
		TriggerMigrationAfterRequest: 3,
		ShutdownAfterRequest:         5,
		Protocol:                     migration.Explicit,
		ProactiveExplicit:            true,
	})
	defer cleanup()

	sched := reqsched.NewScheduler(reqsched.BackToBack, 0, reqsched.Fixed, 1, 2, nil)
	tr := &fakeClientTransport{
		peer:            netip.MustParseAddrPort("203.0.113.1:443"),
		openableStreams: 100,
	}

	require.NoError(t, d.Run(context.Background(), tr, sched))

	assert.Equal(t, int32(5), tr.requestsSent)
	require.Equal(t, int32(1), atomic.LoadInt32(&tr.probeTimeouts))
	// Forced exactly once, on the submission of request #4 (three
	// requests already sent at that point).
	assert.Equal(t, []int32{3}, tr.ptoAtRequestCounts)
}

func TestDriverRunReactiveExplicitNeverForcesPTO(t *testing.T) {
	d, cleanup := newTestDriver(t, Config{
		ExperimentID:                 One,
		TriggerMigrationAfterRequest: 3,
		ShutdownAfterRequest:         5,
		Protocol:                     migration.Explicit,
	})
	defer cleanup()

	sched := reqsched.NewScheduler(reqsched.BackToBack, 0, reqsched.Fixed, 1, 2, nil)
	tr := &fakeClientTransport{
		peer:            netip.MustParseAddrPort("203.0.113.1:443"),
		openableStreams: 100,
	}

	require.NoError(t, d.Run(context.Background(), tr, sched))
	assert.Equal(t, int32(0), atomic.LoadInt32(&tr.probeTimeouts))
}

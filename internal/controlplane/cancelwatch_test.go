// SPDX-License-Identifier: GPL-3.0-or-later

package controlplane

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCancelWatchClosesOnCancel(t *testing.T) {
	conn := listenLoopbackUDP(t)
	ctx, cancel := context.WithCancel(context.Background())

	stop := CancelWatch(ctx, conn)
	defer stop()
	cancel()

	// The blocked read must fail promptly once the watcher fires.
	done := make(chan error, 1)
	go func() {
		buf := make([]byte, 16)
		_, _, err := conn.ReadFromUDPAddrPort(buf)
		done <- err
	}()
	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("read did not unblock after cancellation")
	}
}

func TestCancelWatchStopPreventsClose(t *testing.T) {
	conn := listenLoopbackUDP(t)
	ctx, cancel := context.WithCancel(context.Background())

	stop := CancelWatch(ctx, conn)
	assert.True(t, stop())
	cancel()

	// The socket stays usable: stop() removed the watcher before the
	// context ended.
	addr := conn.LocalAddr().(*net.UDPAddr).AddrPort()
	_, err := conn.WriteToUDPAddrPort([]byte("x"), addr)
	require.NoError(t, err)
}

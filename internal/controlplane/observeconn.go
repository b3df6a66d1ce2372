//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: https://github.com/ooni/probe-cli/blob/v3.20.1/internal/measurexlite/conn.go
// Adapted from: https://github.com/rbmk-project/rbmk/blob/v0.17.0/pkg/x/netcore/conn.go
//

package controlplane

import (
	"log/slog"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/bassosimone/safeconn"
	"github.com/quicmigrate/qmigrate/internal/obs"
)

// DatagramConn is the socket surface both control-plane endpoints need:
// datagram reads with the source address, addressed writes, and close.
// [*net.UDPConn] satisfies it directly.
type DatagramConn interface {
	ReadFromUDPAddrPort(b []byte) (int, netip.AddrPort, error)
	WriteToUDPAddrPort(b []byte, addr netip.AddrPort) (int, error)
	Close() error
}

// ObserveDatagramConn wraps conn so every datagram read, write, and the
// final close are logged with structured fields, including an errClass
// label from classifier. Reads and writes log at Debug, close at Info.
//
// The local address and network are captured once at wrap time using
// safeconn, so logging stays safe even while the socket is being torn
// down concurrently by a context watcher.
func ObserveDatagramConn(conn DatagramConn, classifier obs.ErrClassifier, logger obs.SLogger) DatagramConn {
	if classifier == nil {
		classifier = obs.DefaultErrClassifier
	}
	if logger == nil {
		logger = obs.DefaultSLogger()
	}
	observed := &observedDatagramConn{
		classifier: classifier,
		conn:       conn,
		logger:     logger,
		timeNow:    time.Now,
	}
	if nc, ok := conn.(net.Conn); ok {
		observed.laddr = safeconn.LocalAddr(nc)
		observed.protocol = safeconn.Network(nc)
	}
	return observed
}

type observedDatagramConn struct {
	classifier obs.ErrClassifier
	closeonce  sync.Once
	conn       DatagramConn
	laddr      string
	logger     obs.SLogger
	protocol   string
	timeNow    func() time.Time
}

var _ DatagramConn = &observedDatagramConn{}

// ReadFromUDPAddrPort implements [DatagramConn].
func (c *observedDatagramConn) ReadFromUDPAddrPort(b []byte) (int, netip.AddrPort, error) {
	t0 := c.timeNow()
	count, raddr, err := c.conn.ReadFromUDPAddrPort(b)
	c.logger.Debug(
		"datagramReadDone",
		slog.Int("ioBytesCount", count),
		slog.Any("err", err),
		slog.String("errClass", c.classifier.Classify(err)),
		slog.String("localAddr", c.laddr),
		slog.String("protocol", c.protocol),
		slog.String("remoteAddr", raddr.String()),
		slog.Time("t0", t0),
		slog.Time("t", c.timeNow()),
	)
	return count, raddr, err
}

// WriteToUDPAddrPort implements [DatagramConn].
func (c *observedDatagramConn) WriteToUDPAddrPort(b []byte, addr netip.AddrPort) (int, error) {
	t0 := c.timeNow()
	count, err := c.conn.WriteToUDPAddrPort(b, addr)
	c.logger.Debug(
		"datagramWriteDone",
		slog.Int("ioBufferSize", len(b)),
		slog.Int("ioBytesCount", count),
		slog.Any("err", err),
		slog.String("errClass", c.classifier.Classify(err)),
		slog.String("localAddr", c.laddr),
		slog.String("protocol", c.protocol),
		slog.String("remoteAddr", addr.String()),
		slog.Time("t0", t0),
		slog.Time("t", c.timeNow()),
	)
	return count, err
}

// Close implements [DatagramConn].
//
// Subsequent calls return [net.ErrClosed], consistent with Go's standard
// library behavior for closed connections.
func (c *observedDatagramConn) Close() (err error) {
	err = net.ErrClosed
	c.closeonce.Do(func() {
		t0 := c.timeNow()
		err = c.conn.Close()
		c.logger.Info(
			"datagramCloseDone",
			slog.Any("err", err),
			slog.String("errClass", c.classifier.Classify(err)),
			slog.String("localAddr", c.laddr),
			slog.String("protocol", c.protocol),
			slog.Time("t0", t0),
			slog.Time("t", c.timeNow()),
		)
	})
	return
}

// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"sync"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"
	"github.com/quicmigrate/qmigrate/internal/migration"
	"github.com/quicmigrate/qmigrate/internal/obs"
)

func quicConfig(s Settings) *quic.Config {
	return &quic.Config{
		MaxIdleTimeout:          s.IdleTimeout,
		MaxIncomingStreams:      int64(s.AdvertisedInitialMaxStreamsBidi),
		MaxIncomingUniStreams:   int64(s.AdvertisedInitialMaxStreamsUni),
		KeepAlivePeriod:         keepAlivePeriod(s),
		DisablePathMTUDiscovery: false,
	}
}

func keepAlivePeriod(s Settings) time.Duration {
	if !s.EnableKeepalive {
		return 0
	}
	return s.IdleTimeout / 2
}

// QUICGoServer is the real transport.ServerTransport adapter, backed by
// quic-go and quic-go/http3. Each accepted QUIC connection is wrapped in
// its own *QUICGoServerConn; migration hooks on that type are simulated
// locally, since quic-go issues no SERVER_MIGRATION or SERVER_MIGRATED
// wire frames (see package doc).
type QUICGoServer struct {
	settings Settings
	handler  http.Handler
	server   *http3.Server
	logger   obs.SLogger

	mu    sync.Mutex
	conns map[string]*QUICGoServerConn
}

// NewQUICGoServer constructs a server transport bound to addr, serving
// handler over HTTP/3. Listen does not occur until Serve is called.
func NewQUICGoServer(addr string, settings Settings, handler http.Handler, logger obs.SLogger) *QUICGoServer {
	if logger == nil {
		logger = obs.DefaultSLogger()
	}
	s := &QUICGoServer{
		settings: settings,
		handler:  handler,
		logger:   logger,
		conns:    make(map[string]*QUICGoServerConn),
	}
	serverTLS := tlsConfig(settings)
	logTLSConfig(logger, "quicgoserver.tlsConfig", serverTLS)
	s.server = &http3.Server{
		Addr:       addr,
		TLSConfig:  serverTLS,
		QUICConfig: quicConfig(settings),
		Handler:    http.HandlerFunc(s.serveHTTP),
		ConnContext: func(ctx context.Context, qc *quic.Conn) context.Context {
			return context.WithValue(ctx, connContextKey{}, qc)
		},
	}
	return s
}

type connContextKey struct{}

// ConnContext returns the context of the QUIC connection that carried r.
// The context ends when the connection closes, which is the signal
// [QUICGoServer.ConnFor] uses for close detection. Requests that did not
// travel over quic-go (tests driving handlers directly) yield a context
// that never ends.
func ConnContext(r *http.Request) context.Context {
	if qc, ok := r.Context().Value(connContextKey{}).(*quic.Conn); ok {
		return qc.Context()
	}
	return context.Background()
}

// Serve runs the HTTP/3 listener until ctx is canceled or an
// unrecoverable error occurs.
func (s *QUICGoServer) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.server.ListenAndServe() }()

	select {
	case <-ctx.Done():
		_ = s.server.Close()
		return nil
	case err := <-errCh:
		if err != nil {
			return obs.NewError("quicgoserver.Serve", obs.KindTransportTimeout, err)
		}
		return nil
	}
}

func (s *QUICGoServer) serveHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// ConnFor returns (creating if necessary) the per-connection adapter for
// cid, registering it for later lookup by the coordinator. connCtx is the
// underlying QUIC connection's context (see [ConnContext]): when it ends,
// the adapter is dropped from the registry and the client-state sink's
// OnConnectionClosed fires exactly once.
func (s *QUICGoServer) ConnFor(cid string, peer migration.Address, sink ClientStateSink, connCtx context.Context) *QUICGoServerConn {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.conns[cid]; ok {
		return c
	}
	c := &QUICGoServerConn{cid: cid, peer: peer, logger: s.logger}
	c.SetClientStateUpdateCallback(sink)
	s.conns[cid] = c
	context.AfterFunc(connCtx, func() {
		s.mu.Lock()
		delete(s.conns, cid)
		s.mu.Unlock()
		c.notifyClosed()
	})
	return c
}

// Conns returns a snapshot of every connection adapter registered so far,
// for fanning out migration events across the fleet.
func (s *QUICGoServer) Conns() []*QUICGoServerConn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*QUICGoServerConn, 0, len(s.conns))
	for _, c := range s.conns {
		out = append(out, c)
	}
	return out
}

// QUICGoServerConn adapts a single accepted connection to
// transport.ServerTransport.
type QUICGoServerConn struct {
	mu        sync.Mutex
	cid       string
	peer      migration.Address
	logger    obs.SLogger
	closeOnce sync.Once

	clientSink    ClientStateSink
	migrationSink ServerMigrationEventSink
	allowed       []migration.Protocol
	poolAddresses []migration.Address
}

var _ ServerTransport = (*QUICGoServerConn)(nil)

func (c *QUICGoServerConn) ConnID() string                 { return c.cid }
func (c *QUICGoServerConn) PeerAddress() migration.Address { return c.peer }

// GetNumOpenableBidirectionalStreams reports a static ceiling: quic-go
// does not expose the live flow-control credit count through a public
// API, so the configured limit is returned instead of a measured value.
func (c *QUICGoServerConn) GetNumOpenableBidirectionalStreams() int64 {
	return 1 << 16
}

func (c *QUICGoServerConn) AllowServerMigration(protocols []migration.Protocol) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.allowed = protocols
}

func (c *QUICGoServerConn) AddPoolMigrationAddress(addr migration.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.poolAddresses = append(c.poolAddresses, addr)
}

func (c *QUICGoServerConn) SetClientStateUpdateCallback(sink ClientStateSink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clientSink = sink
}

func (c *QUICGoServerConn) SetServerMigrationEventCallback(sink ServerMigrationEventSink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.migrationSink = sink
}

// OnImminentServerMigration simulates the wire notification: since
// quic-go has no SERVER_MIGRATION frame, readiness is reported
// immediately after local bookkeeping instead of waiting on a peer ack.
func (c *QUICGoServerConn) OnImminentServerMigration(protocol migration.Protocol, address migration.Address, hasAddress bool) error {
	c.mu.Lock()
	sink := c.migrationSink
	cid := c.cid
	c.mu.Unlock()

	if protocol.RequiresAddress() && !hasAddress {
		return obs.NewError("quicgoserverconn.OnImminentServerMigration", obs.KindConfigError,
			fmt.Errorf("%s requires an address", protocol))
	}
	if sink != nil {
		sink.OnServerMigrationReady(cid)
	}
	return nil
}

// notifyClosed reports the connection close to the client-state sink,
// at most once, so the coordinator's accounting sees every teardown
// exactly one time regardless of how many paths observe it.
func (c *QUICGoServerConn) notifyClosed() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		sink := c.clientSink
		cid := c.cid
		c.mu.Unlock()

		c.logger.Info("quicgoserverconn.closed", "cid", cid)
		if sink != nil {
			sink.OnConnectionClosed(cid)
		}
	})
}

// OnNetworkSwitch simulates completion the same way
// OnImminentServerMigration simulates readiness.
func (c *QUICGoServerConn) OnNetworkSwitch() error {
	c.mu.Lock()
	sink := c.migrationSink
	cid := c.cid
	c.mu.Unlock()

	if sink != nil {
		sink.OnServerMigrationCompleted(cid)
	}
	return nil
}

// QUICGoClient is the real transport.ClientTransport adapter, backed by
// quic-go/http3.RoundTripper.
type QUICGoClient struct {
	settings Settings
	tlsCfg   *tls.Config
	cid      string
	logger   obs.SLogger

	mu               sync.Mutex
	transport        *http3.Transport
	client           *http.Client
	peer             migration.Address
	allowed          []migration.Protocol
	schedulerFac     PoolMigrationAddressSchedulerFactory
	scheduler        PoolMigrationAddressScheduler
	migrationSink    ServerMigrationEventSink
	forceProbeOnNext bool
}

var _ ClientTransport = (*QUICGoClient)(nil)

// NewQUICGoClient builds an HTTP/3 client for addr; the QUIC connection is
// dialed on the first request. Certificate verification is skipped only if
// insecureSkipVerify is set; otherwise the system trust roots are used, and
// Settings.Certificates is offered as the client's own certificate list.
func NewQUICGoClient(addr string, settings Settings, insecureSkipVerify bool, logger obs.SLogger) (*QUICGoClient, error) {
	if logger == nil {
		logger = obs.DefaultSLogger()
	}
	peer, err := netip.ParseAddrPort(addr)
	if err != nil {
		return nil, obs.NewError("NewQUICGoClient", obs.KindConfigError, err)
	}
	tlsCfg := tlsConfig(settings)
	tlsCfg.InsecureSkipVerify = insecureSkipVerify
	logTLSConfig(logger, "quicgoclient.tlsConfig", tlsCfg)

	rt := &http3.Transport{
		TLSClientConfig: tlsCfg,
		QUICConfig:      quicConfig(settings),
	}
	return &QUICGoClient{
		settings:  settings,
		tlsCfg:    tlsCfg,
		cid:       obs.NewSpanID(),
		logger:    logger,
		transport: rt,
		client:    &http.Client{Transport: rt},
		peer:      peer,
	}, nil
}

func (c *QUICGoClient) PeerAddress() migration.Address {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peer
}

func (c *QUICGoClient) GetNumOpenableBidirectionalStreams() int64 { return 1 << 16 }

func (c *QUICGoClient) AllowServerMigration(protocols []migration.Protocol) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.allowed = protocols
}

func (c *QUICGoClient) SetPoolMigrationAddressSchedulerFactory(factory PoolMigrationAddressSchedulerFactory) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.schedulerFac = factory
	if factory != nil {
		c.scheduler = factory.Make()
	}
}

func (c *QUICGoClient) SetServerMigrationEventCallback(sink ServerMigrationEventSink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.migrationSink = sink
}

// OnProbeTimeout marks the next SendRequest call to behave as though the
// transport's path-probe timer fired: quic-go exposes no API to force a
// PTO, so this is a best-effort simulation the request scheduler can
// observe via the returned peer address changing when a pool address is
// available.
func (c *QUICGoClient) OnProbeTimeout() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.forceProbeOnNext = true
}

// OnNetworkSwitch rebinds the client to newSocket after a client-side
// network handover: the current HTTP/3 transport (and its QUIC
// connection) is closed, and every subsequent request dials from
// newSocket, so the server observes the path change from the new
// local address.
func (c *QUICGoClient) OnNetworkSwitch(newSocket net.PacketConn) error {
	qt := &quic.Transport{Conn: newSocket}
	rt := &http3.Transport{
		TLSClientConfig: c.tlsCfg,
		QUICConfig:      quicConfig(c.settings),
		Dial: func(ctx context.Context, addr string, tlsCfg *tls.Config, cfg *quic.Config) (*quic.Conn, error) {
			udpAddr, err := net.ResolveUDPAddr("udp", addr)
			if err != nil {
				return nil, err
			}
			return qt.DialEarly(ctx, udpAddr, tlsCfg, cfg)
		},
	}

	c.mu.Lock()
	old := c.transport
	c.transport = rt
	c.client = &http.Client{Transport: rt}
	c.mu.Unlock()

	c.logger.Info("quicgoclient.networkSwitch", "newLocalAddr", newSocket.LocalAddr().String())
	if old != nil {
		if err := old.Close(); err != nil {
			return obs.NewError("quicgoclient.OnNetworkSwitch", obs.KindMigrationFailure, err)
		}
	}
	return nil
}

func (c *QUICGoClient) SendRequest(ctx context.Context, method, path string, body []byte) (int, migration.Address, int64, error) {
	c.mu.Lock()
	forceProbe := c.forceProbeOnNext
	c.forceProbeOnNext = false
	scheduler := c.scheduler
	httpClient := c.client
	target := c.peer
	c.mu.Unlock()

	if forceProbe && scheduler != nil {
		if next, err := scheduler.Next(); err == nil {
			target = next
		}
	}

	url := fmt.Sprintf("https://%s%s", target, path)
	req, err := http.NewRequestWithContext(ctx, method, url, readerFor(body))
	if err != nil {
		return 0, target, 0, obs.NewError("quicgoclient.SendRequest", obs.KindInternalError, err)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return 0, target, 0, obs.NewError("quicgoclient.SendRequest", obs.KindTransportTimeout, err)
	}
	defer resp.Body.Close()
	n, _ := io.Copy(io.Discard, resp.Body)

	c.notePeer(target)

	return resp.StatusCode, target, n, nil
}

// notePeer records the peer address a response arrived from. When it
// differs from the previous one, the server has completed its move as far
// as this client can observe, so the migration event sink is notified; the
// receiver reads the new address back via [QUICGoClient.PeerAddress].
func (c *QUICGoClient) notePeer(target migration.Address) {
	c.mu.Lock()
	changed := target != c.peer
	c.peer = target
	sink := c.migrationSink
	cid := c.cid
	c.mu.Unlock()

	if changed && sink != nil {
		sink.OnServerMigrationCompleted(cid)
	}
}

func readerFor(body []byte) io.Reader {
	if len(body) == 0 {
		return nil
	}
	return bytes.NewReader(body)
}

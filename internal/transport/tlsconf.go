// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import (
	"crypto/tls"
	"log/slog"

	"github.com/quicmigrate/qmigrate/internal/obs"
)

// tlsConfig builds the TLS configuration shared by the server listener and
// the client round-tripper: certificate slice, ALPN list, and the optional
// key log writer for packet-capture decryption.
func tlsConfig(s Settings) *tls.Config {
	return &tls.Config{
		Certificates: s.Certificates,
		NextProtos:   s.ALPNs,
		KeyLogWriter: s.KeyLogWriter,
	}
}

// logTLSConfig records the negotiation parameters once at endpoint
// construction, so experiment logs show which ALPN set and trust mode each
// run used.
func logTLSConfig(logger obs.SLogger, event string, config *tls.Config) {
	logger.Info(
		event,
		slog.Any("tlsOfferedProtocols", config.NextProtos),
		slog.String("tlsServerName", config.ServerName),
		slog.Bool("tlsSkipVerify", config.InsecureSkipVerify),
		slog.Bool("tlsKeyLogging", config.KeyLogWriter != nil),
		slog.Int("tlsCertificates", len(config.Certificates)),
	)
}

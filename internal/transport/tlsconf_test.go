// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTLSConfigCarriesSettings(t *testing.T) {
	var keyLog bytes.Buffer
	settings := NewServerSettings()
	settings.KeyLogWriter = &keyLog

	config := tlsConfig(settings)
	assert.Equal(t, settings.ALPNs, config.NextProtos)
	assert.Same(t, &keyLog, config.KeyLogWriter)
	assert.Empty(t, config.Certificates)
}

func TestNewClientSettingsDropsCertificates(t *testing.T) {
	s := NewClientSettings()
	assert.Nil(t, s.Certificates)
	assert.Equal(t, NewServerSettings().ALPNs, s.ALPNs)
	assert.Equal(t, NewServerSettings().IdleTimeout, s.IdleTimeout)
}

// SPDX-License-Identifier: GPL-3.0-or-later

package controlplane

import (
	"fmt"
	"net/netip"
	"testing"

	"github.com/quicmigrate/qmigrate/internal/migration"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	addr := netip.MustParseAddrPort("10.0.0.2:9000")

	tests := []struct {
		name string
		cmd  Command
	}{
		{"explicit", NewOnImminentServerMigration(migration.Explicit, addr, true)},
		{"pool", NewOnImminentServerMigration(migration.PoolOfAddresses, netip.AddrPort{}, false)},
		{"symmetric", NewOnImminentServerMigration(migration.Symmetric, netip.AddrPort{}, false)},
		{"synchronizedSymmetric", NewOnImminentServerMigration(migration.SynchronizedSymmetric, netip.AddrPort{}, false)},
		{"networkSwitch", NewOnNetworkSwitch()},
		{"shutdown", NewShutdown()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wire, err := Encode(tt.cmd)
			require.NoError(t, err)

			decoded, err := Decode(wire)
			require.NoError(t, err)

			assert.Equal(t, tt.cmd.Action, decoded.Action)
			if tt.cmd.Action == OnImminentServerMigration {
				assert.Equal(t, tt.cmd.Protocol, decoded.Protocol)
				assert.Equal(t, tt.cmd.HasAddress(), decoded.HasAddress())
				if tt.cmd.HasAddress() {
					assert.Equal(t, tt.cmd.Address, decoded.Address)
				}
			}
		})
	}
}

func TestEncodeExplicitMissingAddressFails(t *testing.T) {
	_, err := Encode(NewOnImminentServerMigration(migration.Explicit, netip.AddrPort{}, false))
	require.Error(t, err)
}

func TestDecodeExactWireForms(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{"explicit", `{"action":"onImminentServerMigration","protocol":"Explicit","address":"10.0.0.2:9000"}`, false},
		{"poolOfAddresses", `{"action":"onImminentServerMigration","protocol":"Pool of Addresses"}`, false},
		{"networkSwitch", `{"action":"onNetworkSwitch"}`, false},
		{"shutdown", `{"action":"shutdown"}`, false},
		{"unknownAction", `{"action":"doSomethingElse"}`, true},
		{"missingProtocol", `{"action":"onImminentServerMigration"}`, true},
		{"explicitMissingAddress", `{"action":"onImminentServerMigration","protocol":"Explicit"}`, true},
		{"malformedJSON", `{not json`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.raw))
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func ExampleEncode() {
	addr := netip.MustParseAddrPort("10.0.0.2:9000")
	wire, _ := Encode(NewOnImminentServerMigration(migration.Explicit, addr, true))
	fmt.Println(string(wire))
	// Output: {"action":"onImminentServerMigration","protocol":"Explicit","address":"10.0.0.2:9000"}
}

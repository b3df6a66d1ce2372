// SPDX-License-Identifier: GPL-3.0-or-later

package migration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProtocolRoundTrip(t *testing.T) {
	for _, p := range []Protocol{Explicit, PoolOfAddresses, Symmetric, SynchronizedSymmetric} {
		parsed, err := ParseProtocol(p.String())
		require.NoError(t, err)
		assert.Equal(t, p, parsed)
	}
}

func TestParseProtocolUnknown(t *testing.T) {
	_, err := ParseProtocol("Quantum Teleportation")
	require.Error(t, err)
}

func TestProtocolRequiresAddress(t *testing.T) {
	assert.True(t, Explicit.RequiresAddress())
	assert.False(t, PoolOfAddresses.RequiresAddress())
	assert.False(t, Symmetric.RequiresAddress())
	assert.False(t, SynchronizedSymmetric.RequiresAddress())
}

func TestTransportStateString(t *testing.T) {
	assert.Equal(t, "NotReady", NotReady.String())
	assert.Equal(t, "Ready", Ready.String())
	assert.Equal(t, "Completed", Completed.String())
}

// SPDX-License-Identifier: GPL-3.0-or-later

package client

import (
	"testing"

	"github.com/quicmigrate/qmigrate/internal/migration"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseExperimentIDAcceptsFullUnion(t *testing.T) {
	for i := 0; i <= 6; i++ {
		id, err := ParseExperimentID(i)
		require.NoError(t, err)
		assert.Equal(t, ExperimentID(i), id)
	}
}

func TestParseExperimentIDRejectsOutOfRange(t *testing.T) {
	_, err := ParseExperimentID(7)
	assert.Error(t, err)

	_, err = ParseExperimentID(-1)
	assert.Error(t, err)
}

func TestParseProtocolSelection(t *testing.T) {
	cases := []struct {
		in        string
		protocol  migration.Protocol
		proactive bool
	}{
		{"proactiveExplicit", migration.Explicit, true},
		{"reactiveExplicit", migration.Explicit, false},
		{"poolOfAddresses", migration.PoolOfAddresses, false},
		{"symmetric", migration.Symmetric, false},
		{"synchronizedSymmetric", migration.SynchronizedSymmetric, false},
	}
	for _, tc := range cases {
		sel, err := ParseProtocolSelection(tc.in)
		require.NoError(t, err)
		assert.Equal(t, tc.protocol, sel.Protocol)
		assert.Equal(t, tc.proactive, sel.Proactive)
	}
}

func TestParseProtocolSelectionRejectsUnknown(t *testing.T) {
	_, err := ParseProtocolSelection("bogus")
	assert.Error(t, err)
}

func TestExperimentIDString(t *testing.T) {
	assert.Equal(t, "BASELINE", Baseline.String())
	assert.Equal(t, "CLIENT_MIGRATION_BASELINE", ClientMigrationBaseline.String())
	assert.Equal(t, "UNKNOWN", ExperimentID(99).String())
}

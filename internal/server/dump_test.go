// SPDX-License-Identifier: GPL-3.0-or-later

package server

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/quicmigrate/qmigrate/internal/controlplane"
	"github.com/quicmigrate/qmigrate/internal/migration"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDumpMigrationNotificationTimeNull(t *testing.T) {
	c := NewCoordinator(&fakeFleet{}, nil)

	var buf bytes.Buffer
	require.NoError(t, c.DumpMigrationNotificationTime(&buf))

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Nil(t, record["migrationNotificationTime"])
}

func TestDumpMigrationNotificationTimeValue(t *testing.T) {
	c := NewCoordinator(&fakeFleet{}, nil)
	cmd := controlplane.NewOnImminentServerMigration(migration.Symmetric, migration.Address{}, false)
	require.NoError(t, c.OnImminentServerMigration(cmd))

	var buf bytes.Buffer
	require.NoError(t, c.DumpMigrationNotificationTime(&buf))

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.NotNil(t, record["migrationNotificationTime"])
}

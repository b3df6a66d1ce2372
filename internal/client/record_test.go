// SPDX-License-Identifier: GPL-3.0-or-later

package client

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDumpServiceTimesToFileThreeWritesNothing(t *testing.T) {
	d, cleanup := newTestDriver(t, Config{ExperimentID: Three})
	defer cleanup()

	var buf bytes.Buffer
	require.NoError(t, d.DumpServiceTimesToFile(&buf))
	assert.Empty(t, buf.Bytes())
}

func TestDumpServiceTimesToFileBaselineOmitsExtras(t *testing.T) {
	d, cleanup := newTestDriver(t, Config{ExperimentID: Baseline})
	defer cleanup()

	var buf bytes.Buffer
	require.NoError(t, d.DumpServiceTimesToFile(&buf))

	var out map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.NotContains(t, out, "firstRequestAfterMigrationTriggered")
	assert.NotContains(t, out, "requestTimestamps")
	assert.NotContains(t, out, "seed")
}

func TestDumpServiceTimesToFileOneIncludesFirstRequestAfterMigrationTriggered(t *testing.T) {
	d, cleanup := newTestDriver(t, Config{ExperimentID: One})
	defer cleanup()

	var buf bytes.Buffer
	require.NoError(t, d.DumpServiceTimesToFile(&buf))

	var out map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Contains(t, out, "firstRequestAfterMigrationTriggered")
	assert.NotContains(t, out, "requestTimestamps")
}

func TestDumpServiceTimesToFileFourIncludesAllExtras(t *testing.T) {
	d, cleanup := newTestDriver(t, Config{ExperimentID: Four, Seed: 42})
	defer cleanup()

	var buf bytes.Buffer
	require.NoError(t, d.DumpServiceTimesToFile(&buf))

	var out map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	for _, key := range []string{"requestTimestamps", "requestMethods", "requestBodySizes", "responseBodySizes", "connectionEndedDueToTimeout", "seed"} {
		assert.Contains(t, out, key)
	}
	assert.NotContains(t, out, "firstRequestAfterMigrationTriggered")
}

func TestOutputFilenameFourIsSeedSpecific(t *testing.T) {
	d, cleanup := newTestDriver(t, Config{ExperimentID: Four, Seed: 7})
	defer cleanup()
	assert.Equal(t, "service_times_7.json", d.OutputFilename())
}

func TestOutputFilenameOtherExperimentsIsFixed(t *testing.T) {
	d, cleanup := newTestDriver(t, Config{ExperimentID: Five})
	defer cleanup()
	assert.Equal(t, "service_times.json", d.OutputFilename())
}

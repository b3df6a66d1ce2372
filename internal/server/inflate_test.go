// SPDX-License-Identifier: GPL-3.0-or-later

package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInflateMemoryFootprint(t *testing.T) {
	assert.Nil(t, InflateMemoryFootprint(0))
	assert.Nil(t, InflateMemoryFootprint(-1))

	ballast := InflateMemoryFootprint(3 * pageSize)
	assert.Len(t, ballast, 3*pageSize)
	assert.EqualValues(t, 1, ballast[0])
	assert.EqualValues(t, 1, ballast[2*pageSize])
}

// SPDX-License-Identifier: GPL-3.0-or-later

package seed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpanderDeterminism(t *testing.T) {
	a := NewExpander(42)
	b := NewExpander(42)

	for range 10 {
		require.Equal(t, a.Next(), b.Next())
	}
}

func TestExpanderDifferentSeeds(t *testing.T) {
	a := NewExpander(1)
	b := NewExpander(2)

	var same int
	for range 100 {
		if a.Next() == b.Next() {
			same++
		}
	}
	assert.Less(t, same, 100)
}

func TestExpanderNewRandDeterminism(t *testing.T) {
	a := NewExpander(7)
	b := NewExpander(7)

	ra := a.NewRand()
	rb := b.NewRand()

	for range 10 {
		require.Equal(t, ra.Uint64(), rb.Uint64())
	}
}

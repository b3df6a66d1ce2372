// SPDX-License-Identifier: GPL-3.0-or-later

package pool

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustAddrPort(t *testing.T, s string) netip.AddrPort {
	t.Helper()
	ap, err := netip.ParseAddrPort(s)
	require.NoError(t, err)
	return ap
}

func TestSchedulerEmptyFails(t *testing.T) {
	s := NewScheduler(1)
	_, err := s.Next()
	require.Error(t, err)
}

func TestSchedulerInsertIgnoresZeroValue(t *testing.T) {
	s := NewScheduler(1)
	s.Insert(netip.AddrPort{})
	_, err := s.Next()
	require.Error(t, err)
}

func TestSchedulerCycleIncludesCurrentServerAddress(t *testing.T) {
	// seed=42, pool={A,B,C}, current=D not in pool.
	a := mustAddrPort(t, "10.0.0.1:9000")
	b := mustAddrPort(t, "10.0.0.2:9000")
	c := mustAddrPort(t, "10.0.0.3:9000")
	d := mustAddrPort(t, "10.0.0.4:9000")

	s := NewScheduler(42)
	s.Insert(a)
	s.Insert(b)
	s.Insert(c)
	s.SetCurrentServerAddress(d)

	seen := make(map[netip.AddrPort]int)
	for range 4 {
		addr, err := s.Next()
		require.NoError(t, err)
		seen[addr]++
	}
	assert.Len(t, seen, 4)
	assert.Equal(t, 1, seen[d])

	// A second cycle must also be a length-4 permutation.
	seen2 := make(map[netip.AddrPort]int)
	for range 4 {
		addr, err := s.Next()
		require.NoError(t, err)
		seen2[addr]++
	}
	assert.Len(t, seen2, 4)
}

func TestSchedulerInsertDuplicateDoesNotChangeCycleLength(t *testing.T) {
	a := mustAddrPort(t, "10.0.0.1:9000")

	s := NewScheduler(7)
	s.Insert(a)
	s.Insert(a)

	count := 0
	for {
		addr, err := s.Next()
		require.NoError(t, err)
		count++
		if addr == a && count == 1 {
			// single-element cycle completes after one Next
			break
		}
		if count > 1 {
			t.Fatal("cycle of a single address did not terminate after one element")
		}
	}
	assert.Equal(t, 1, count)
}

func TestSchedulerInsertBetweenCyclesVisibleInNextCycle(t *testing.T) {
	a := mustAddrPort(t, "10.0.0.1:9000")
	b := mustAddrPort(t, "10.0.0.2:9000")

	s := NewScheduler(3)
	s.Insert(a)

	_, err := s.Next() // starts and completes a single-element cycle
	require.NoError(t, err)

	s.Insert(b) // inserted between cycles: should be visible starting now

	seen := make(map[netip.AddrPort]bool)
	for range 2 {
		addr, err := s.Next()
		require.NoError(t, err)
		seen[addr] = true
	}
	assert.True(t, seen[a])
	assert.True(t, seen[b])
}

func TestSchedulerSetCurrentServerAddressDuringCycleDeferred(t *testing.T) {
	a := mustAddrPort(t, "10.0.0.1:9000")
	d1 := mustAddrPort(t, "10.0.0.9:9000")
	d2 := mustAddrPort(t, "10.0.0.10:9000")

	s := NewScheduler(9)
	s.Insert(a)
	s.SetCurrentServerAddress(d1)

	// Start a cycle (length 2: a, d1) but don't finish it.
	_, err := s.Next()
	require.NoError(t, err)

	// Mid-cycle update should not affect the current cycle.
	s.SetCurrentServerAddress(d2)
	assert.Equal(t, d1, s.CurrentServerAddress())

	// finish current cycle
	_, err = s.Next()
	require.NoError(t, err)

	// next cycle reflects the deferred update
	_, err = s.Next()
	require.NoError(t, err)
	assert.Equal(t, d2, s.CurrentServerAddress())
}

func TestSchedulerRestart(t *testing.T) {
	a := mustAddrPort(t, "10.0.0.1:9000")
	b := mustAddrPort(t, "10.0.0.2:9000")

	s := NewScheduler(11)
	s.Insert(a)
	s.Insert(b)

	_, err := s.Next() // partial cycle
	require.NoError(t, err)

	s.Restart()

	seen := make(map[netip.AddrPort]int)
	for range 2 {
		addr, err := s.Next()
		require.NoError(t, err)
		seen[addr]++
	}
	assert.Len(t, seen, 2)
}

func TestSchedulerDeterminism(t *testing.T) {
	a := mustAddrPort(t, "10.0.0.1:9000")
	b := mustAddrPort(t, "10.0.0.2:9000")
	c := mustAddrPort(t, "10.0.0.3:9000")

	build := func() *Scheduler {
		s := NewScheduler(42)
		s.Insert(a)
		s.Insert(b)
		s.Insert(c)
		return s
	}

	s1, s2 := build(), build()
	for range 12 {
		v1, err1 := s1.Next()
		v2, err2 := s2.Next()
		require.NoError(t, err1)
		require.NoError(t, err2)
		assert.Equal(t, v1, v2)
	}
}

func TestSchedulerContains(t *testing.T) {
	a := mustAddrPort(t, "10.0.0.1:9000")
	b := mustAddrPort(t, "10.0.0.2:9000")

	s := NewScheduler(1)
	s.Insert(a)

	assert.True(t, s.Contains(a))
	assert.False(t, s.Contains(b))
}

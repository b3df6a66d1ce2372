// SPDX-License-Identifier: GPL-3.0-or-later

// Package pool implements the deterministic, seeded cycle generator over a
// set of candidate server addresses used by the Pool-of-Addresses migration
// protocol.
package pool

import (
	"math/rand/v2"
	"net/netip"
	"slices"

	"github.com/quicmigrate/qmigrate/internal/obs"
)

// Scheduler is a seeded, deterministic random cycle over a growing set of
// candidate server addresses.
//
// A cycle is the iteration of a random permutation of the union of the
// inserted pool and, if set and not already a pool member, the current
// server address. A cycle is entered lazily on the first [Scheduler.Next]
// call after the previous cycle (or construction) completed;
// [Scheduler.Insert] and [Scheduler.SetCurrentServerAddress] called during a
// cycle defer their effect to the next one.
//
// The pool slice is the single source of truth for membership;
// [Scheduler.Contains] is served from a map kept in lockstep with it.
//
// A [Scheduler] is not safe for concurrent use; each transport owns its own
// instance.
type Scheduler struct {
	rng *rand.Rand

	pool    []netip.AddrPort
	members map[netip.AddrPort]struct{}

	currentServerAddress netip.AddrPort
	pendingServerAddress netip.AddrPort

	iterating   bool
	permutation []netip.AddrPort
	cursor      int
}

// NewScheduler returns a new [*Scheduler] whose shuffles are driven by a
// PRNG seeded from seed. Seed 0 is a valid, unprivileged seed: callers that
// need reproducibility across processes fan it out from a shared master
// seed (see package seed).
func NewScheduler(seed uint32) *Scheduler {
	return &Scheduler{
		rng:     rand.New(rand.NewPCG(uint64(seed), uint64(seed))),
		members: make(map[netip.AddrPort]struct{}),
	}
}

// Insert adds address to the pool, ignoring it if it is the zero value.
// Inserting an address already present is a no-op: it does not change
// the cycle length.
func (s *Scheduler) Insert(address netip.AddrPort) {
	if !address.IsValid() || address == (netip.AddrPort{}) {
		return
	}
	if _, ok := s.members[address]; ok {
		return
	}
	s.members[address] = struct{}{}
	s.pool = append(s.pool, address)
}

// Contains reports whether address is a member of the pool (not the
// transient permutation).
func (s *Scheduler) Contains(address netip.AddrPort) bool {
	_, ok := s.members[address]
	return ok
}

// SetCurrentServerAddress records the server's current address. If no cycle
// is in progress, it updates both the current and the pending address
// immediately; otherwise the update is deferred to the next cycle via the
// pending address only.
func (s *Scheduler) SetCurrentServerAddress(address netip.AddrPort) {
	if !s.iterating {
		s.currentServerAddress = address
		s.pendingServerAddress = address
		return
	}
	s.pendingServerAddress = address
}

// CurrentServerAddress returns the server address as of the start of the
// current (or most recently completed) cycle.
func (s *Scheduler) CurrentServerAddress() netip.AddrPort {
	return s.currentServerAddress
}

// Restart discards any in-progress permutation, so the next call to
// [Scheduler.Next] begins a fresh cycle.
func (s *Scheduler) Restart() {
	s.iterating = false
	s.permutation = nil
	s.cursor = 0
}

// Next returns the next address in the cycle, advancing it, and lazily
// starting a new cycle when none is in progress.
//
// Next fails with an [*obs.Error] of [obs.KindInternalError] if the
// scheduler is empty: no address has been inserted and no non-zero current
// or pending server address is available to seed the single-element cycle.
func (s *Scheduler) Next() (netip.AddrPort, error) {
	if !s.iterating {
		s.currentServerAddress = s.pendingServerAddress
		if len(s.pool) == 0 && s.currentServerAddress == (netip.AddrPort{}) {
			return netip.AddrPort{}, obs.NewError("pool.Next", obs.KindInternalError,
				errEmptyPool)
		}

		s.permutation = slices.Clone(s.pool)
		if s.currentServerAddress != (netip.AddrPort{}) && !s.Contains(s.currentServerAddress) {
			s.permutation = append(s.permutation, s.currentServerAddress)
		}
		s.rng.Shuffle(len(s.permutation), func(i, j int) {
			s.permutation[i], s.permutation[j] = s.permutation[j], s.permutation[i]
		})

		s.iterating = true
		s.cursor = 0
	}

	address := s.permutation[s.cursor]
	s.cursor++
	if s.cursor == len(s.permutation) {
		s.iterating = false
	}
	return address, nil
}

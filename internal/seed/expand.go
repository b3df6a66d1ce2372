// SPDX-License-Identifier: GPL-3.0-or-later

// Package seed derives reproducible 32-bit sub-seeds from a single 64-bit
// master seed, and a self-growing buffer of such sub-seeds for the server's
// per-connection allocation path.
package seed

import "math/rand/v2"

// Expander derives an arbitrary number of uint32 sub-seeds from a 64-bit
// master seed.
//
// Given the same master seed, [Expander.Next] produces the same sequence of
// sub-seeds every time: it is a deterministic, reproducible sequence
// expander.
//
// An [Expander] is not safe for concurrent use; callers that share one
// across goroutines (see [Buffer]) must guard it with a mutex.
type Expander struct {
	rng *rand.Rand
}

// NewExpander returns a new [*Expander] seeded from master.
func NewExpander(master uint64) *Expander {
	return &Expander{rng: rand.New(rand.NewPCG(master, master))}
}

// Next returns the next sub-seed in the expansion sequence.
func (e *Expander) Next() uint32 {
	return e.rng.Uint32()
}

// NewRand returns a [*rand.Rand] seeded with the two sub-seeds drawn next
// from e: an independent deterministic stream fanned out from the master
// seed. The pool and request schedulers do not use it; they take plain
// sub-seeds from [Expander.Next] and build their own PRNGs.
func (e *Expander) NewRand() *rand.Rand {
	return rand.New(rand.NewPCG(uint64(e.Next()), uint64(e.Next())))
}

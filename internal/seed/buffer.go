// SPDX-License-Identifier: GPL-3.0-or-later

package seed

import "sync"

// growthBlock is the number of sub-seeds appended each time [Buffer] runs
// dry, mirroring the transport factory's block-of-100 growth policy.
const growthBlock = 100

// Buffer is a growing, mutex-guarded vector of sub-seeds handed out one at a
// time to newly accepted connections.
//
// It is populated lazily: the underlying expansion grows in blocks of 100
// entries as consumption catches up with the tail, rather than
// precomputing an unbounded sequence up front.
type Buffer struct {
	mu       sync.Mutex
	expander *Expander
	values   []uint32
	next     int
}

// NewBuffer returns a new [*Buffer] whose sub-seeds are derived from master.
func NewBuffer(master uint64) *Buffer {
	return &Buffer{expander: NewExpander(master)}
}

// Next returns the next per-connection sub-seed, growing the underlying
// buffer by [growthBlock] entries first if it has been exhausted.
func (b *Buffer) Next() uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.next >= len(b.values) {
		for range growthBlock {
			b.values = append(b.values, b.expander.Next())
		}
	}
	v := b.values[b.next]
	b.next++
	return v
}

// Len reports how many sub-seeds have been materialized so far, for tests.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.values)
}

// SPDX-License-Identifier: GPL-3.0-or-later

// Package seed implements the system's reproducibility guarantee: given a
// fixed master seed, every random draw made anywhere in this module (pool
// shuffles, request-type sampling, body-size sampling, per-connection
// seeding) is identical across runs.
//
// [Expander] fans a 64-bit master seed out into an arbitrary number of
// uint32 sub-seeds or independently-seeded [*rand.Rand] streams. [Buffer]
// wraps an [Expander] behind a mutex for the transport factory's
// one-sub-seed-per-accepted-connection allocation path.
package seed

// SPDX-License-Identifier: GPL-3.0-or-later

// Package client implements the client-side experiment driver,
// its per-experiment output record shape, and the
// handover manager that reacts to real network changes.
package client

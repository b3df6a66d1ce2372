// SPDX-License-Identifier: GPL-3.0-or-later

// Package pool implements the Pool-of-Addresses migration protocol's
// address cycle: see [Scheduler].
package pool

// SPDX-License-Identifier: GPL-3.0-or-later

// Package reqsched is documented on [Scheduler]; see also [Distribution]
// for the empirical body-size sampling used by [FromDistribution].
package reqsched

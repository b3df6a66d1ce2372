// SPDX-License-Identifier: GPL-3.0-or-later

// Package obs is the ambient logging, error classification, and span
// correlation layer used throughout this module.
//
// Every package that performs I/O or a state transition takes an [SLogger]
// (defaulting to a discard logger via [DefaultSLogger]) and an
// [ErrClassifier] (defaulting to [DefaultErrClassifier]), and logs a
// lifecycle event at Info or a per-iteration event at Debug, using
// structured fields rather than formatted message strings. Cross-goroutine
// operations are tagged with [NewSpanID] for correlation.
//
// Errors returned by this module wrap [*Error], whose [Kind] matches the
// error taxonomy: [KindConfigError], [KindTransportTimeout],
// [KindMigrationFailure], [KindControlPlaneLoss], and [KindInternalError].
// Callers classify errors with [errors.As] or via [ClassifyKind].
package obs

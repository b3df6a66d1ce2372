// SPDX-License-Identifier: GPL-3.0-or-later

package client

import (
	"fmt"

	"github.com/quicmigrate/qmigrate/internal/migration"
	"github.com/quicmigrate/qmigrate/internal/obs"
)

// ExperimentID selects which of the driver's hooks do work.
type ExperimentID int

const (
	// Baseline measures the service time of a normal QUIC connection,
	// without triggering any server migration.
	Baseline ExperimentID = iota
	// One measures the service time after server migration, depending
	// only on the QUIC migration protocol.
	One
	// Two measures the service time after server migration, depending
	// on both the QUIC migration protocol and the container migration.
	Two
	// Three measures migration notification time depending on the
	// number of clients and the migration protocol.
	Three
	// Four records service times over time when multiple clients are
	// connected and the server migrates.
	Four
	// Five ends only on an idle timeout, saving every service time.
	Five
	// ClientMigrationBaseline behaves like Five but exercises a
	// client-initiated migration rather than a server one.
	ClientMigrationBaseline
)

const maxExperimentID = ClientMigrationBaseline

func (id ExperimentID) String() string {
	switch id {
	case Baseline:
		return "BASELINE"
	case One:
		return "ONE"
	case Two:
		return "TWO"
	case Three:
		return "THREE"
	case Four:
		return "FOUR"
	case Five:
		return "FIVE"
	case ClientMigrationBaseline:
		return "CLIENT_MIGRATION_BASELINE"
	default:
		return "UNKNOWN"
	}
}

// ParseExperimentID validates an experiment id from configuration
// against the full 0-6 union.
func ParseExperimentID(id int) (ExperimentID, error) {
	if id < int(Baseline) || id > int(maxExperimentID) {
		return 0, obs.NewError("client.ParseExperimentID", obs.KindConfigError,
			fmt.Errorf("bad experiment ID %d", id))
	}
	return ExperimentID(id), nil
}

// ProtocolSelection is the parsed form of the configuration-level
// "serverMigrationProtocol" field, which additionally distinguishes the
// Proactive and Reactive variants of Explicit (both wire-identical as
// migration.Explicit on the wire).
type ProtocolSelection struct {
	Protocol  migration.Protocol
	Proactive bool
}

// ParseProtocolSelection parses the five configuration strings
// ("proactiveExplicit", "reactiveExplicit", "poolOfAddresses",
// "symmetric", "synchronizedSymmetric") used by the experiment
// configuration, distinct from [migration.ParseProtocol]'s wire-format
// names.
func ParseProtocolSelection(s string) (ProtocolSelection, error) {
	switch s {
	case "proactiveExplicit":
		return ProtocolSelection{Protocol: migration.Explicit, Proactive: true}, nil
	case "reactiveExplicit":
		return ProtocolSelection{Protocol: migration.Explicit}, nil
	case "poolOfAddresses":
		return ProtocolSelection{Protocol: migration.PoolOfAddresses}, nil
	case "symmetric":
		return ProtocolSelection{Protocol: migration.Symmetric}, nil
	case "synchronizedSymmetric":
		return ProtocolSelection{Protocol: migration.SynchronizedSymmetric}, nil
	default:
		return ProtocolSelection{}, obs.NewError("client.ParseProtocolSelection", obs.KindConfigError,
			fmt.Errorf("bad protocol %q", s))
	}
}

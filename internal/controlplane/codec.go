// SPDX-License-Identifier: GPL-3.0-or-later

// Package controlplane implements the control-plane message format,
// the client-side reliable UDP endpoint, and the server-side command
// dispatcher.
package controlplane

import (
	"encoding/json"
	"fmt"

	"github.com/quicmigrate/qmigrate/internal/migration"
	"github.com/quicmigrate/qmigrate/internal/obs"
)

// Action is a management command kind.
type Action int

const (
	// OnImminentServerMigration announces an upcoming migration.
	OnImminentServerMigration Action = iota
	// OnNetworkSwitch announces that the server has switched network
	// address.
	OnNetworkSwitch
	// Shutdown requests the receiving event loop to terminate.
	Shutdown
)

// Command is a decoded management command.
type Command struct {
	Action   Action
	Protocol migration.Protocol
	// Address is set iff Action is OnImminentServerMigration and Protocol
	// is [migration.Explicit].
	Address    migration.Address
	hasAddress bool
}

// wireCommand is the JSON-on-the-wire shape.
type wireCommand struct {
	Action   string `json:"action"`
	Protocol string `json:"protocol,omitempty"`
	Address  string `json:"address,omitempty"`
}

// Encode serializes cmd to the exact wire form.
//
// It fails with [obs.KindConfigError] if cmd is an Explicit
// OnImminentServerMigration without an address.
func Encode(cmd Command) ([]byte, error) {
	const op = "controlplane.Encode"

	var wire wireCommand
	switch cmd.Action {
	case OnImminentServerMigration:
		wire.Action = "onImminentServerMigration"
		wire.Protocol = cmd.Protocol.String()
		if cmd.Protocol == migration.Explicit {
			if !cmd.hasAddress {
				return nil, obs.NewError(op, obs.KindConfigError, fmt.Errorf(`missing "address" field`))
			}
			wire.Address = cmd.Address.String()
		}
	case OnNetworkSwitch:
		wire.Action = "onNetworkSwitch"
	case Shutdown:
		wire.Action = "shutdown"
	default:
		return nil, obs.NewError(op, obs.KindInternalError, fmt.Errorf("unknown action %d", cmd.Action))
	}

	out, err := json.Marshal(wire)
	if err != nil {
		return nil, obs.NewError(op, obs.KindInternalError, err)
	}
	return out, nil
}

// NewOnImminentServerMigration builds the command for a migration
// announcement. address is required iff protocol is [migration.Explicit];
// for any other protocol [Encode] leaves it off the wire, so the encoded
// command never carries an address.
func NewOnImminentServerMigration(protocol migration.Protocol, address migration.Address, hasAddress bool) Command {
	return Command{Action: OnImminentServerMigration, Protocol: protocol, Address: address, hasAddress: hasAddress}
}

// NewOnNetworkSwitch builds the onNetworkSwitch command.
func NewOnNetworkSwitch() Command {
	return Command{Action: OnNetworkSwitch}
}

// NewShutdown builds the shutdown command.
func NewShutdown() Command {
	return Command{Action: Shutdown}
}

// Decode parses raw into a [Command].
//
// Unknown actions, a missing protocol for a migration announcement, a
// missing address for Explicit, or malformed JSON all fail with
// [obs.KindConfigError] and a message suitable for direct inclusion in the
// "Bad request. Error: <msg>" reply the receiver sends back.
func Decode(raw []byte) (Command, error) {
	const op = "controlplane.Decode"

	var wire wireCommand
	if err := json.Unmarshal(raw, &wire); err != nil {
		return Command{}, obs.NewError(op, obs.KindConfigError, err)
	}

	switch wire.Action {
	case "onNetworkSwitch":
		return Command{Action: OnNetworkSwitch}, nil
	case "shutdown":
		return Command{Action: Shutdown}, nil
	case "onImminentServerMigration":
		protocol, err := migration.ParseProtocol(wire.Protocol)
		if err != nil {
			return Command{}, obs.NewError(op, obs.KindConfigError, fmt.Errorf("bad protocol: %w", err))
		}
		cmd := Command{Action: OnImminentServerMigration, Protocol: protocol}
		if protocol == migration.Explicit {
			if wire.Address == "" {
				return Command{}, obs.NewError(op, obs.KindConfigError, fmt.Errorf(`missing "address" field`))
			}
			parsed, err := parseAddress(wire.Address)
			if err != nil {
				return Command{}, obs.NewError(op, obs.KindConfigError, fmt.Errorf("bad address: %w", err))
			}
			cmd.Address = parsed
			cmd.hasAddress = true
		}
		return cmd, nil
	default:
		return Command{}, obs.NewError(op, obs.KindConfigError, fmt.Errorf("bad action"))
	}
}

// HasAddress reports whether cmd carries an Explicit-migration destination
// address.
func (c Command) HasAddress() bool {
	return c.hasAddress
}

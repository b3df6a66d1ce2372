// SPDX-License-Identifier: GPL-3.0-or-later

// Package config loads and validates the JSON configuration object shared
// by the server and client binaries. Validation runs once at
// startup; any failure is a [obs.KindConfigError], fatal to the caller.
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"net/netip"

	"github.com/quicmigrate/qmigrate/internal/obs"
)

// RequestPattern configures the request scheduler's pacing dimension.
type RequestPattern struct {
	Sporadic         bool  `json:"sporadic"`
	BackToBack       bool  `json:"backToBack"`
	SporadicInterval int64 `json:"sporadicInterval"`
}

// RequestBody configures the request scheduler's body dimension.
type RequestBody struct {
	Fixed            bool `json:"fixed"`
	FromDistribution bool `json:"fromDistribution"`
}

// ServerMigration configures which migration protocols the server allows
// and, for Pool-of-Addresses, the candidate address pool.
type ServerMigration struct {
	Enable                bool     `json:"enable"`
	Explicit              bool     `json:"explicit"`
	PoolOfAddresses       bool     `json:"poolOfAddresses"`
	Symmetric             bool     `json:"symmetric"`
	SynchronizedSymmetric bool     `json:"synchronizedSymmetric"`
	AddressPool           []string `json:"addressPool"`
}

// Experiment configures the client experiment driver variant and the
// scripted request indices at which it acts.
type Experiment struct {
	ID                                  int    `json:"id"`
	NotifyImminentMigrationAfterRequest int    `json:"notifyImminentMigrationAfterRequest"`
	TriggerMigrationAfterRequest        int    `json:"triggerMigrationAfterRequest"`
	ShutdownAfterRequest                int    `json:"shutdownAfterRequest"`
	ServerMigrationProtocol             string `json:"serverMigrationProtocol"`
	ServerMigrationHost                 string `json:"serverMigrationHost"`
	ServerMigrationPort                 int    `json:"serverMigrationPort"`
	ServerManagementPort                int    `json:"serverManagementPort"`
	ContainerMigrationScriptHost        string `json:"containerMigrationScriptHost"`
	ContainerMigrationScriptPort        int    `json:"containerMigrationScriptPort"`
}

// KeyLogging configures optional TLS key logging for packet capture
// decryption during experiments.
type KeyLogging struct {
	Enable bool   `json:"enable"`
	File   string `json:"file"`
}

// MemoryFootprintInflation optionally inflates the process's resident size
// to emulate a constrained device when measuring container-migration
// transfer cost at a controlled resident-set size.
type MemoryFootprintInflation struct {
	Enable          bool `json:"enable"`
	AdditionalBytes int  `json:"additionalBytes"`
}

// Config is the full experiment configuration surface.
type Config struct {
	ServerHost               string                   `json:"serverHost"`
	ServerPort               int                      `json:"serverPort"`
	ManagementPort           int                      `json:"managementPort"`
	NumberOfWorkerThreads    int                      `json:"numberOfWorkerThreads"`
	Seed                     uint64                   `json:"seed"`
	RequestPattern           RequestPattern           `json:"requestPattern"`
	RequestBody              RequestBody              `json:"requestBody"`
	ServerMigration          ServerMigration          `json:"serverMigration"`
	Experiment               Experiment               `json:"experiment"`
	KeyLogging               KeyLogging               `json:"keyLogging"`
	MemoryFootprintInflation MemoryFootprintInflation `json:"memoryFootprintInflation"`
}

// Load decodes and validates a [Config] from r.
//
// Any decoding or validation failure is wrapped in an [*obs.Error] of
// [obs.KindConfigError].
func Load(r io.Reader) (*Config, error) {
	var cfg Config
	if err := json.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, obs.NewError("config.Load", obs.KindConfigError, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration once, at startup, returning the first
// violation found wrapped in [obs.KindConfigError].
func (c *Config) Validate() error {
	const op = "config.Validate"

	if c.RequestPattern.Sporadic == c.RequestPattern.BackToBack {
		return obs.NewError(op, obs.KindConfigError,
			fmt.Errorf("requestPattern must select exactly one of sporadic, backToBack"))
	}
	if c.RequestPattern.Sporadic && c.RequestPattern.SporadicInterval <= 0 {
		return obs.NewError(op, obs.KindConfigError,
			fmt.Errorf("requestPattern.sporadicInterval must be positive when sporadic is set"))
	}
	if c.RequestBody.Fixed == c.RequestBody.FromDistribution {
		return obs.NewError(op, obs.KindConfigError,
			fmt.Errorf("requestBody must select exactly one of fixed, fromDistribution"))
	}
	if c.Experiment.ID < 0 || c.Experiment.ID > 6 {
		return obs.NewError(op, obs.KindConfigError,
			fmt.Errorf("experiment.id %d out of range [0,6]", c.Experiment.ID))
	}
	if c.ServerMigration.Enable {
		switch c.Experiment.ServerMigrationProtocol {
		case "", "proactiveExplicit", "reactiveExplicit", "poolOfAddresses",
			"symmetric", "synchronizedSymmetric":
		default:
			return obs.NewError(op, obs.KindConfigError,
				fmt.Errorf("unknown experiment.serverMigrationProtocol %q", c.Experiment.ServerMigrationProtocol))
		}
		for _, raw := range c.ServerMigration.AddressPool {
			if _, err := netip.ParseAddrPort(raw); err != nil {
				return obs.NewError(op, obs.KindConfigError,
					fmt.Errorf("serverMigration.addressPool entry %q: %w", raw, err))
			}
		}
	}
	return nil
}

// SPDX-License-Identifier: GPL-3.0-or-later

package client

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/quicmigrate/qmigrate/internal/obs"
)

// record is the JSON output shape dumped by [Driver.DumpServiceTimesToFile],
// conditionally populated per experiment id.
type record struct {
	Experiment                          int       `json:"experiment"`
	ServiceTimes                        []int64   `json:"serviceTimes"`
	ServerAddresses                     []string  `json:"serverAddresses"`
	FirstRequestAfterMigrationTriggered *int64    `json:"firstRequestAfterMigrationTriggered,omitempty"`
	RequestTimestamps                   *[]int64  `json:"requestTimestamps,omitempty"`
	RequestMethods                      *[]string `json:"requestMethods,omitempty"`
	RequestBodySizes                    *[]int64  `json:"requestBodySizes,omitempty"`
	ResponseBodySizes                   *[]int64  `json:"responseBodySizes,omitempty"`
	ConnectionEndedDueToTimeout         *bool     `json:"connectionEndedDueToTimeout,omitempty"`
	Seed                                *uint32   `json:"seed,omitempty"`
}

func (d *Driver) buildRecord() record {
	d.mu.Lock()
	defer d.mu.Unlock()

	rec := record{
		Experiment:      int(d.cfg.ExperimentID),
		ServiceTimes:    d.serviceTimes,
		ServerAddresses: d.serverAddresses,
	}

	switch d.cfg.ExperimentID {
	case One, Two:
		v := d.firstRequestAfterMigrationTriggered
		rec.FirstRequestAfterMigrationTriggered = &v
	}

	switch d.cfg.ExperimentID {
	case Four, Five, ClientMigrationBaseline:
		timestamps := d.requestTimestamps
		rec.RequestTimestamps = &timestamps
	}

	if d.cfg.ExperimentID == Four {
		methods, reqSizes, respSizes := d.requestMethods, d.requestBodySizes, d.responseBodySizes
		rec.RequestMethods = &methods
		rec.RequestBodySizes = &reqSizes
		rec.ResponseBodySizes = &respSizes
		v := d.connectionEndedDueToTimeout
		rec.ConnectionEndedDueToTimeout = &v
		seed := d.cfg.Seed
		rec.Seed = &seed
	}

	return rec
}

// OutputFilename is the dump file name: "service_times_<seed>.json" for
// experiment Four (multiple clients, needs a unique name), otherwise the
// fixed "service_times.json".
func (d *Driver) OutputFilename() string {
	if d.cfg.ExperimentID == Four {
		return fmt.Sprintf("service_times_%d.json", d.cfg.Seed)
	}
	return "service_times.json"
}

// DumpServiceTimesToFile writes the record to w, except for experiment
// Three, which measures only migration notification time and writes
// nothing.
func (d *Driver) DumpServiceTimesToFile(w io.Writer) error {
	if d.cfg.ExperimentID == Three {
		return nil
	}
	if err := json.NewEncoder(w).Encode(d.buildRecord()); err != nil {
		return obs.NewError("client.Driver.DumpServiceTimesToFile", obs.KindInternalError, err)
	}
	return nil
}

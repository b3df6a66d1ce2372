// SPDX-License-Identifier: GPL-3.0-or-later

package server

import (
	"encoding/json"
	"io"

	"github.com/quicmigrate/qmigrate/internal/obs"
)

// migrationNotificationTimeRecord is the server shutdown dump.
type migrationNotificationTimeRecord struct {
	MigrationNotificationTime *int64 `json:"migrationNotificationTime"`
}

// DumpMigrationNotificationTime writes the migration_notification_time.json
// record to w: the elapsed microseconds between the receipt of the
// first onImminentServerMigration and the first moment transportsReady
// latched, or null if that moment was never reached.
func (c *Coordinator) DumpMigrationNotificationTime(w io.Writer) error {
	var record migrationNotificationTimeRecord
	if d, ok := c.MigrationNotificationTime(); ok {
		micros := d.Microseconds()
		record.MigrationNotificationTime = &micros
	}
	if err := json.NewEncoder(w).Encode(record); err != nil {
		return obs.NewError("coordinator.DumpMigrationNotificationTime", obs.KindInternalError, err)
	}
	return nil
}

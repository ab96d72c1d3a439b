package db

import (
	"database/sql"
	"fmt"
)

// migrations is a list of SQL statements applied in order after schema creation.
// Each migration must be idempotent. Append new migrations at the end.
var migrations = []string{
	// Migration 1: custody lookups by holder for the batches-by-owner listing.
	`CREATE INDEX IF NOT EXISTS idx_batch_custody_user ON batch_custody(user_id)`,
	// Migration 2: dispense lookups by prescription.
	`CREATE INDEX IF NOT EXISTS idx_dispense_records_prescription
	     ON dispense_records(prescription_id)`,
	// Migration 3: dispense lookups by batch.
	`CREATE INDEX IF NOT EXISTS idx_dispense_records_batch ON dispense_records(batch_id)`,
}

// Migrate ensures the schema and runs the migrations.
func Migrate(db *sql.DB) error {
	if err := EnsureSchema(db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	for i, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("running migration %d: %w", i+1, err)
		}
	}

	return nil
}

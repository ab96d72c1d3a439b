package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/erazemk/rxledger/internal/model"
)

// CustodyEntry is one step of a batch's mirrored ownership trail.
type CustodyEntry struct {
	Position   int       `json:"position"`
	UserID     int64     `json:"user_id"`
	Credential string    `json:"credential"`
	Role       string    `json:"role"`
	ReceivedAt time.Time `json:"received_at"`
}

// ListBatches returns mirrored batches, optionally only those owned by ownerID.
// OwnershipHistory is not filled in; use ListCustody for the trail.
func ListBatches(ctx context.Context, db *sql.DB, ownerID int64) ([]model.Batch, error) {
	query := `SELECT id, manufacturer_id, drug_id, current_owner_id, status, content_hash, manufacture_date, created_at
		FROM batches`
	var args []any
	if ownerID != 0 {
		query += ` WHERE current_owner_id = ?`
		args = append(args, ownerID)
	}
	query += ` ORDER BY id`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing batches: %w", err)
	}
	defer rows.Close()

	var batches []model.Batch
	for rows.Next() {
		var b model.Batch
		if err := rows.Scan(&b.ID, &b.ManufacturerID, &b.DrugID, &b.CurrentOwnerID, &b.Status,
			&b.ContentHash, &b.ManufactureDate, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning batch: %w", err)
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

// ListCustody returns the ownership trail of a batch, manufacturer first.
func ListCustody(ctx context.Context, db *sql.DB, batchID int64) ([]CustodyEntry, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT c.position, c.user_id, u.credential, r.name, c.received_at
		 FROM batch_custody c
		 JOIN users u ON u.id = c.user_id
		 JOIN roles r ON r.id = u.role_id
		 WHERE c.batch_id = ?
		 ORDER BY c.position`, batchID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing custody: %w", err)
	}
	defer rows.Close()

	var entries []CustodyEntry
	for rows.Next() {
		var e CustodyEntry
		if err := rows.Scan(&e.Position, &e.UserID, &e.Credential, &e.Role, &e.ReceivedAt); err != nil {
			return nil, fmt.Errorf("scanning custody entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ListDispenses returns the mirrored dispense records filed against a batch.
func ListDispenses(ctx context.Context, db *sql.DB, batchID int64) ([]model.DispenseRecord, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, prescription_id, pharmacist_id, batch_id, quantity, dispensed_at, COALESCE(external_tx_ref, '')
		 FROM dispense_records WHERE batch_id = ? ORDER BY id`, batchID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing dispenses: %w", err)
	}
	defer rows.Close()

	var records []model.DispenseRecord
	for rows.Next() {
		var d model.DispenseRecord
		if err := rows.Scan(&d.ID, &d.PrescriptionID, &d.PharmacistID, &d.BatchID, &d.Quantity,
			&d.DispensedAt, &d.ExternalTxRef); err != nil {
			return nil, fmt.Errorf("scanning dispense record: %w", err)
		}
		records = append(records, d)
	}
	return records, rows.Err()
}

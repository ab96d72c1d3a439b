package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/erazemk/rxledger/internal/model"
)

// PrescriptionFilter narrows ListPrescriptions. Zero fields match everything.
type PrescriptionFilter struct {
	Status    model.PrescriptionStatus
	DoctorID  int64
	PatientID int64
}

const prescriptionColumns = `id, doctor_id, patient_id, drug_id, dosage, content_hash, qr_code, status,
	issued_at, expires_at, is_revoked, COALESCE(revoked_by, 0), COALESCE(revocation_reason, ''), revoked_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanPrescription(s scanner) (model.Prescription, error) {
	var p model.Prescription
	var revokedAt sql.NullTime
	err := s.Scan(&p.ID, &p.DoctorID, &p.PatientID, &p.DrugID, &p.Dosage, &p.ContentHash, &p.QRCode, &p.Status,
		&p.IssuedAt, &p.ExpiresAt, &p.IsRevoked, &p.RevokedBy, &p.RevocationReason, &revokedAt)
	if err != nil {
		return p, err
	}
	if revokedAt.Valid {
		at := revokedAt.Time
		p.RevokedAt = &at
	}
	return p, nil
}

// GetPrescription returns a mirrored prescription, or nil if it has not been mirrored.
func GetPrescription(ctx context.Context, db *sql.DB, id int64) (*model.Prescription, error) {
	p, err := scanPrescription(db.QueryRowContext(ctx,
		`SELECT `+prescriptionColumns+` FROM prescriptions WHERE id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting prescription: %w", err)
	}
	return &p, nil
}

// ListPrescriptions returns mirrored prescriptions matching f in issue order.
func ListPrescriptions(ctx context.Context, db *sql.DB, f PrescriptionFilter) ([]model.Prescription, error) {
	var where []string
	var args []any
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if f.DoctorID != 0 {
		where = append(where, "doctor_id = ?")
		args = append(args, f.DoctorID)
	}
	if f.PatientID != 0 {
		where = append(where, "patient_id = ?")
		args = append(args, f.PatientID)
	}

	query := `SELECT ` + prescriptionColumns + ` FROM prescriptions`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY id`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing prescriptions: %w", err)
	}
	defer rows.Close()

	var out []model.Prescription
	for rows.Next() {
		p, err := scanPrescription(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning prescription: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

package model

import "time"

// PrescriptionStatus is the stored lifecycle state of a prescription.
// Expiry is not a status; it is computed from ExpiresAt.
type PrescriptionStatus string

// Prescription statuses.
const (
	PrescriptionIssued    PrescriptionStatus = "Issued"
	PrescriptionVerified  PrescriptionStatus = "Verified"
	PrescriptionDispensed PrescriptionStatus = "Dispensed"
	PrescriptionRevoked   PrescriptionStatus = "Revoked"
)

// Prescription is a doctor-issued prescription tracked by the ledger.
type Prescription struct {
	ID               int64              `json:"id"`
	DoctorID         int64              `json:"doctor_id"`
	PatientID        int64              `json:"patient_id"`
	DrugID           int64              `json:"drug_id"`
	Dosage           string             `json:"dosage"`
	ContentHash      string             `json:"content_hash"`
	QRCode           string             `json:"qr_code"`
	Status           PrescriptionStatus `json:"status"`
	IssuedAt         time.Time          `json:"issued_at"`
	ExpiresAt        time.Time          `json:"expires_at"`
	IsRevoked        bool               `json:"is_revoked"`
	RevokedBy        int64              `json:"revoked_by,omitempty"`
	RevocationReason string             `json:"revocation_reason,omitempty"`
	RevokedAt        *time.Time         `json:"revoked_at,omitempty"`
}

// Expired reports whether the prescription is past its expiry at now.
func (p *Prescription) Expired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}

// PrescriptionState is the status of a prescription as seen at a point in time.
type PrescriptionState struct {
	Status    PrescriptionStatus `json:"status"`
	IsRevoked bool               `json:"is_revoked"`
	IsExpired bool               `json:"is_expired"`
}

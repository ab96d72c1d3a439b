package model

import "time"

// BatchStatus is derived from the role of the batch's current owner.
type BatchStatus string

// Batch statuses.
const (
	BatchManufactured BatchStatus = "Manufactured"
	BatchInTransit    BatchStatus = "InTransit"
	BatchAtPharmacy   BatchStatus = "AtPharmacy"
	BatchTransferred  BatchStatus = "Transferred"
)

// Batch is a manufactured drug batch with its custody trail.
type Batch struct {
	ID               int64       `json:"id"`
	ManufacturerID   int64       `json:"manufacturer_id"`
	DrugID           int64       `json:"drug_id"`
	CurrentOwnerID   int64       `json:"current_owner_id"`
	Status           BatchStatus `json:"status"`
	ContentHash      string      `json:"content_hash"`
	ManufactureDate  time.Time   `json:"manufacture_date"`
	CreatedAt        time.Time   `json:"created_at"`
	OwnershipHistory []int64     `json:"ownership_history"`
}

// BatchStatusForRole returns the status a batch takes when handed to an owner with role.
func BatchStatusForRole(role string) BatchStatus {
	switch {
	case role == RolePharmacist:
		return BatchAtPharmacy
	case IsSupplyChainRole(role):
		return BatchInTransit
	default:
		return BatchTransferred
	}
}

// DispenseRecord is an audit entry tying a prescription to the batch it was filled from.
// The zero value stands for "no such record".
type DispenseRecord struct {
	ID             int64     `json:"id"`
	PrescriptionID int64     `json:"prescription_id"`
	PharmacistID   int64     `json:"pharmacist_id"`
	BatchID        int64     `json:"batch_id"`
	Quantity       int64     `json:"quantity"`
	DispensedAt    time.Time `json:"dispensed_at"`
	ExternalTxRef  string    `json:"external_tx_ref,omitempty"`
}

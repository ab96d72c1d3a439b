package model

import "time"

// Ledger scopes an event to the component that produced it.
type Ledger string

// Ledger scopes.
const (
	LedgerIdentity     Ledger = "identity"
	LedgerPrescription Ledger = "prescription"
	LedgerSupplyChain  Ledger = "supply_chain"
)

// EventType names a committed state change.
type EventType string

// Event types. PrescriptionDispensed is emitted by both the prescription
// ledger (status change) and the supply chain ledger (dispense record);
// Ledger tells them apart.
const (
	EventRoleCreated           EventType = "RoleCreated"
	EventUserRegistered        EventType = "UserRegistered"
	EventUserRoleAssigned      EventType = "UserRoleAssigned"
	EventPrescriptionCreated   EventType = "PrescriptionCreated"
	EventPrescriptionVerified  EventType = "PrescriptionVerified"
	EventPrescriptionDispensed EventType = "PrescriptionDispensed"
	EventPrescriptionRevoked   EventType = "PrescriptionRevoked"
	EventBatchRegistered       EventType = "BatchRegistered"
	EventBatchTransferred      EventType = "BatchTransferred"
)

// Event is a flat record of a committed ledger mutation. It carries enough
// data to rebuild the entity it describes, so a journal of events can be
// replayed into an empty store.
type Event struct {
	Seq    uint64    `json:"seq"`
	ID     string    `json:"id"`
	Ledger Ledger    `json:"ledger"`
	Type   EventType `json:"type"`
	At     time.Time `json:"at"`

	RoleID     int64  `json:"role_id,omitempty"`
	RoleName   string `json:"role_name,omitempty"`
	UserID     int64  `json:"user_id,omitempty"`
	Credential string `json:"credential,omitempty"`
	Metadata   string `json:"metadata,omitempty"`

	PrescriptionID int64     `json:"prescription_id,omitempty"`
	DoctorID       int64     `json:"doctor_id,omitempty"`
	PatientID      int64     `json:"patient_id,omitempty"`
	PharmacistID   int64     `json:"pharmacist_id,omitempty"`
	DrugID         int64     `json:"drug_id,omitempty"`
	Dosage         string    `json:"dosage,omitempty"`
	ContentHash    string    `json:"content_hash,omitempty"`
	QRCode         string    `json:"qr_code,omitempty"`
	ExpiresAt      time.Time `json:"expires_at,omitzero"`
	RevokerID      int64     `json:"revoker_id,omitempty"`
	Reason         string    `json:"reason,omitempty"`

	BatchID         int64       `json:"batch_id,omitempty"`
	ManufacturerID  int64       `json:"manufacturer_id,omitempty"`
	FromUserID      int64       `json:"from_user_id,omitempty"`
	ToUserID        int64       `json:"to_user_id,omitempty"`
	BatchStatus     BatchStatus `json:"batch_status,omitempty"`
	ManufactureDate time.Time   `json:"manufacture_date,omitzero"`

	DispenseID    int64  `json:"dispense_id,omitempty"`
	Quantity      int64  `json:"quantity,omitempty"`
	ExternalTxRef string `json:"external_tx_ref,omitempty"`
}

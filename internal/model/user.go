package model

import "time"

// Role is a named authorization role defined by the registrar.
type Role struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// User is a registered ledger participant. ID 0 is never a real user.
type User struct {
	ID           int64     `json:"id"`
	Credential   string    `json:"credential"`
	Metadata     string    `json:"metadata,omitempty"`
	RoleID       int64     `json:"role_id"`
	Role         string    `json:"role"`
	RegisteredAt time.Time `json:"registered_at"`
}

// Standard role names.
const (
	RoleAdmin        = "ADMIN"
	RoleManufacturer = "MANUFACTURER"
	RoleDistributor  = "DISTRIBUTOR"
	RolePharmacist   = "PHARMACIST"
	RoleDoctor       = "DOCTOR"
	RoleRegulator    = "REGULATOR"
	RolePatient      = "PATIENT"
)

// StandardRoles lists the roles created on first start, in creation order.
var StandardRoles = []string{
	RoleAdmin,
	RoleManufacturer,
	RoleDistributor,
	RolePharmacist,
	RoleDoctor,
	RoleRegulator,
	RolePatient,
}

// IsSupplyChainRole reports whether a role takes custody of batches in transit.
func IsSupplyChainRole(role string) bool {
	switch role {
	case RoleManufacturer, RoleDistributor:
		return true
	}
	return false
}

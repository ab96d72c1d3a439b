package ledger

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/erazemk/rxledger/internal/model"
)

// Prescriptions is the prescription lifecycle:
// Issued -> Verified -> Dispensed, and any non-revoked state -> Revoked.
type Prescriptions struct {
	store *Store
	guard *Guard
}

// NewPrescriptions creates the prescription ledger.
func NewPrescriptions(store *Store, guard *Guard) *Prescriptions {
	return &Prescriptions{store: store, guard: guard}
}

// CreatePrescription holds the fields of a new prescription.
type CreatePrescription struct {
	PatientID   int64
	DrugID      int64
	Dosage      string
	ContentHash string
	QRCode      string
	ExpiresAt   time.Time
}

// Create issues a prescription on behalf of a doctor.
func (l *Prescriptions) Create(ctx context.Context, doctorCred string, in CreatePrescription) (model.Prescription, error) {
	events, err := l.store.exec(ctx, func(now time.Time) ([]model.Event, error) {
		doctor, err := l.guard.authorize(doctorCred, model.RoleDoctor)
		if err != nil {
			return nil, err
		}
		if in.PatientID == 0 {
			return nil, newError(CodeInvalidID, "patient id is required")
		}
		if in.DrugID == 0 {
			return nil, newError(CodeInvalidID, "drug id is required")
		}
		if err := requireFields(map[string]string{
			"dosage":       in.Dosage,
			"content_hash": in.ContentHash,
			"qr_code":      in.QRCode,
		}); err != nil {
			return nil, err
		}
		if !in.ExpiresAt.After(now) {
			return nil, withMetadata(CodeInvalidExpiry, "expiry must be in the future",
				map[string]string{"expires_at": in.ExpiresAt.UTC().Format(time.RFC3339)})
		}
		return []model.Event{{
			Ledger:         model.LedgerPrescription,
			Type:           model.EventPrescriptionCreated,
			PrescriptionID: int64(len(l.store.prescriptions)) + 1,
			DoctorID:       doctor.ID,
			PatientID:      in.PatientID,
			DrugID:         in.DrugID,
			Dosage:         in.Dosage,
			ContentHash:    in.ContentHash,
			QRCode:         in.QRCode,
			ExpiresAt:      in.ExpiresAt,
		}}, nil
	})
	if err != nil {
		return model.Prescription{}, err
	}
	return l.Get(events[0].PrescriptionID)
}

// Verify marks an issued prescription as checked by a pharmacist.
func (l *Prescriptions) Verify(ctx context.Context, pharmacistCred string, id int64) error {
	_, err := l.store.exec(ctx, func(now time.Time) ([]model.Event, error) {
		pharmacist, err := l.guard.authorize(pharmacistCred, model.RolePharmacist)
		if err != nil {
			return nil, err
		}
		p, err := l.active(id, now)
		if err != nil {
			return nil, err
		}
		if p.Status != model.PrescriptionIssued {
			return nil, transitionError(p, "only issued prescriptions can be verified")
		}
		return []model.Event{{
			Ledger:         model.LedgerPrescription,
			Type:           model.EventPrescriptionVerified,
			PrescriptionID: id,
			PharmacistID:   pharmacist.ID,
		}}, nil
	})
	return err
}

// Dispense marks a verified prescription as dispensed.
func (l *Prescriptions) Dispense(ctx context.Context, pharmacistCred string, id int64) error {
	_, err := l.store.exec(ctx, func(now time.Time) ([]model.Event, error) {
		pharmacist, err := l.guard.authorize(pharmacistCred, model.RolePharmacist)
		if err != nil {
			return nil, err
		}
		p, err := l.active(id, now)
		if err != nil {
			return nil, err
		}
		if p.Status != model.PrescriptionVerified {
			return nil, transitionError(p, "prescription must be verified first")
		}
		return []model.Event{{
			Ledger:         model.LedgerPrescription,
			Type:           model.EventPrescriptionDispensed,
			PrescriptionID: id,
			PharmacistID:   pharmacist.ID,
		}}, nil
	})
	return err
}

// Revoke cancels a prescription. Only the issuing doctor or a regulator may
// revoke, from any state that is not already revoked.
func (l *Prescriptions) Revoke(ctx context.Context, callerCred string, id int64, reason string) error {
	_, err := l.store.exec(ctx, func(time.Time) ([]model.Event, error) {
		caller, err := l.guard.authorize(callerCred, model.RoleDoctor, model.RoleRegulator)
		if err != nil {
			return nil, err
		}
		p, err := l.lookup(id)
		if err != nil {
			return nil, err
		}
		if caller.Role == model.RoleDoctor && caller.ID != p.DoctorID {
			return nil, withMetadata(CodeUnauthorized, "only the issuing doctor can revoke this prescription",
				map[string]string{
					"caller": fmt.Sprint(caller.ID),
					"doctor": fmt.Sprint(p.DoctorID),
				})
		}
		if strings.TrimSpace(reason) == "" {
			return nil, withMetadata(CodeEmptyField, "revocation reason is required",
				map[string]string{"field": "reason"})
		}
		if p.IsRevoked {
			return nil, withMetadata(CodeAlreadyRevoked, fmt.Sprintf("prescription %d is already revoked", id),
				map[string]string{"prescription_id": fmt.Sprint(id)})
		}
		return []model.Event{{
			Ledger:         model.LedgerPrescription,
			Type:           model.EventPrescriptionRevoked,
			PrescriptionID: id,
			RevokerID:      caller.ID,
			Reason:         reason,
		}}, nil
	})
	return err
}

// Get returns the prescription with id.
func (l *Prescriptions) Get(id int64) (model.Prescription, error) {
	l.store.mu.RLock()
	defer l.store.mu.RUnlock()

	p, err := l.lookup(id)
	if err != nil {
		return model.Prescription{}, err
	}
	return copyPrescription(p), nil
}

// Status returns the stored status together with revocation and live expiry.
func (l *Prescriptions) Status(id int64) (model.PrescriptionState, error) {
	l.store.mu.RLock()
	defer l.store.mu.RUnlock()

	p, err := l.lookup(id)
	if err != nil {
		return model.PrescriptionState{}, err
	}
	return model.PrescriptionState{
		Status:    p.Status,
		IsRevoked: p.IsRevoked,
		IsExpired: p.Expired(l.store.now()),
	}, nil
}

// IsValid reports whether the prescription can still be filled: not revoked,
// not expired, and issued or verified. Unknown ids are not valid.
func (l *Prescriptions) IsValid(id int64) bool {
	l.store.mu.RLock()
	defer l.store.mu.RUnlock()

	p, err := l.lookup(id)
	if err != nil {
		return false
	}
	if p.IsRevoked || p.Expired(l.store.now()) {
		return false
	}
	return p.Status == model.PrescriptionIssued || p.Status == model.PrescriptionVerified
}

// ByPatient returns the ids of a patient's prescriptions in issue order.
func (l *Prescriptions) ByPatient(patientID int64) ([]int64, error) {
	if patientID == 0 {
		return nil, newError(CodeInvalidID, "patient id is required")
	}
	l.store.mu.RLock()
	defer l.store.mu.RUnlock()
	return slices.Clone(l.store.byPatient[patientID]), nil
}

// ByDoctor returns the ids of a doctor's prescriptions in issue order.
func (l *Prescriptions) ByDoctor(doctorID int64) ([]int64, error) {
	if doctorID == 0 {
		return nil, newError(CodeInvalidID, "doctor id is required")
	}
	l.store.mu.RLock()
	defer l.store.mu.RUnlock()
	return slices.Clone(l.store.byDoctor[doctorID]), nil
}

func (l *Prescriptions) lookup(id int64) (*model.Prescription, error) {
	p := l.store.prescription(id)
	if p == nil {
		return nil, withMetadata(CodeInvalidID, fmt.Sprintf("prescription %d does not exist", id),
			map[string]string{"prescription_id": fmt.Sprint(id)})
	}
	return p, nil
}

// active returns a prescription that is neither revoked nor expired at now.
func (l *Prescriptions) active(id int64, now time.Time) (*model.Prescription, error) {
	p, err := l.lookup(id)
	if err != nil {
		return nil, err
	}
	if p.IsRevoked {
		return nil, withMetadata(CodeRevoked, fmt.Sprintf("prescription %d is revoked", id),
			map[string]string{"prescription_id": fmt.Sprint(id)})
	}
	if p.Expired(now) {
		return nil, withMetadata(CodeExpired, fmt.Sprintf("prescription %d expired", id),
			map[string]string{
				"prescription_id": fmt.Sprint(id),
				"expires_at":      p.ExpiresAt.UTC().Format(time.RFC3339),
			})
	}
	return p, nil
}

func transitionError(p *model.Prescription, message string) *Error {
	return withMetadata(CodeInvalidTransition, message, map[string]string{
		"prescription_id": fmt.Sprint(p.ID),
		"status":          string(p.Status),
	})
}

// requireFields fails on the first blank field, in name order.
func requireFields(fields map[string]string) error {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		if strings.TrimSpace(fields[name]) == "" {
			return withMetadata(CodeEmptyField, name+" is required", map[string]string{"field": name})
		}
	}
	return nil
}

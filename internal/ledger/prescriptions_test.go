package ledger

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/erazemk/rxledger/internal/model"
)

const day = 24 * time.Hour

func TestCreatePrescription(t *testing.T) {
	f := newFixture(t)
	before := len(f.events.Events())

	p := f.issue(t, day)

	if p.ID != 1 {
		t.Errorf("expected id 1, got %d", p.ID)
	}
	if p.Status != model.PrescriptionIssued {
		t.Errorf("expected status Issued, got %s", p.Status)
	}
	if p.DoctorID != f.ids[credDoctor] || p.PatientID != f.ids[credPatient] {
		t.Errorf("unexpected parties: doctor %d patient %d", p.DoctorID, p.PatientID)
	}
	if !p.IssuedAt.Equal(f.clock.Now()) {
		t.Errorf("expected issued at %v, got %v", f.clock.Now(), p.IssuedAt)
	}

	events := f.events.Events()[before:]
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	ev := events[0]
	if ev.Type != model.EventPrescriptionCreated || ev.PrescriptionID != p.ID ||
		ev.DoctorID != p.DoctorID || ev.PatientID != p.PatientID || ev.DrugID != 42 || ev.QRCode != "RX-QR-0001" {
		t.Errorf("unexpected event: %+v", ev)
	}
}

func TestCreatePrescriptionValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := f.clock.Now()

	valid := CreatePrescription{
		PatientID:   f.ids[credPatient],
		DrugID:      7,
		Dosage:      "1 tablet",
		ContentHash: "QmHash",
		QRCode:      "QR",
		ExpiresAt:   now.Add(day),
	}

	tests := []struct {
		name   string
		cred   string
		mutate func(*CreatePrescription)
		code   Code
	}{
		{"unregistered caller", credStranger, nil, CodeNotRegistered},
		{"pharmacist caller", credPharmacist, nil, CodeUnauthorized},
		{"patient caller", credPatient, nil, CodeUnauthorized},
		{"zero patient", credDoctor, func(in *CreatePrescription) { in.PatientID = 0 }, CodeInvalidID},
		{"zero drug", credDoctor, func(in *CreatePrescription) { in.DrugID = 0 }, CodeInvalidID},
		{"empty dosage", credDoctor, func(in *CreatePrescription) { in.Dosage = "" }, CodeEmptyField},
		{"empty content hash", credDoctor, func(in *CreatePrescription) { in.ContentHash = "" }, CodeEmptyField},
		{"empty qr code", credDoctor, func(in *CreatePrescription) { in.QRCode = "" }, CodeEmptyField},
		{"expiry now", credDoctor, func(in *CreatePrescription) { in.ExpiresAt = now }, CodeInvalidExpiry},
		{"expiry past", credDoctor, func(in *CreatePrescription) { in.ExpiresAt = now.Add(-time.Second) }, CodeInvalidExpiry},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			if tt.mutate != nil {
				tt.mutate(&in)
			}
			before := len(f.events.Events())
			_, err := f.ledger.Prescriptions.Create(ctx, tt.cred, in)
			wantCode(t, err, tt.code)
			if len(f.events.Events()) != before {
				t.Error("expected no event for a rejected command")
			}
		})
	}

	if _, err := f.ledger.Prescriptions.Get(1); CodeOf(err) != CodeInvalidID {
		t.Errorf("expected no prescription to exist, got %v", err)
	}
}

func TestVerifyDispenseFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rx := f.ledger.Prescriptions

	p := f.issue(t, 86400*time.Second)

	if err := rx.Verify(ctx, credPharmacist, p.ID); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	got, _ := rx.Get(p.ID)
	if got.Status != model.PrescriptionVerified {
		t.Fatalf("expected Verified, got %s", got.Status)
	}

	if err := rx.Dispense(ctx, credPharmacist, p.ID); err != nil {
		t.Fatalf("Dispense: %v", err)
	}
	got, _ = rx.Get(p.ID)
	if got.Status != model.PrescriptionDispensed {
		t.Fatalf("expected Dispensed, got %s", got.Status)
	}

	wantCode(t, rx.Verify(ctx, credPharmacist, p.ID), CodeInvalidTransition)
	wantCode(t, rx.Dispense(ctx, credPharmacist, p.ID), CodeInvalidTransition)

	events := f.events.Events()
	last := events[len(events)-1]
	if last.Type != model.EventPrescriptionDispensed || last.Ledger != model.LedgerPrescription ||
		last.PharmacistID != f.ids[credPharmacist] {
		t.Errorf("unexpected last event: %+v", last)
	}
}

func TestDispenseRequiresVerification(t *testing.T) {
	f := newFixture(t)
	p := f.issue(t, day)

	err := f.ledger.Prescriptions.Dispense(context.Background(), credPharmacist, p.ID)
	wantCode(t, err, CodeInvalidTransition)
}

func TestVerifyAndDispenseAuthorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rx := f.ledger.Prescriptions
	p := f.issue(t, day)

	wantCode(t, rx.Verify(ctx, credDoctor, p.ID), CodeUnauthorized)
	wantCode(t, rx.Verify(ctx, credStranger, p.ID), CodeNotRegistered)
	wantCode(t, rx.Verify(ctx, credPharmacist, 99), CodeInvalidID)
	wantCode(t, rx.Dispense(ctx, credPatient, p.ID), CodeUnauthorized)
	wantCode(t, rx.Dispense(ctx, credPharmacist, 0), CodeInvalidID)
}

func TestExpiryIsComputedLive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rx := f.ledger.Prescriptions

	p := f.issue(t, 2*time.Second)

	state, _ := rx.Status(p.ID)
	if state.IsExpired {
		t.Fatal("expected fresh prescription not to be expired")
	}
	if !rx.IsValid(p.ID) {
		t.Fatal("expected fresh prescription to be valid")
	}

	f.clock.Advance(3 * time.Second)

	wantCode(t, rx.Verify(ctx, credPharmacist, p.ID), CodeExpired)

	state, err := rx.Status(p.ID)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !state.IsExpired || state.IsRevoked || state.Status != model.PrescriptionIssued {
		t.Errorf("unexpected state after expiry: %+v", state)
	}
	if rx.IsValid(p.ID) {
		t.Error("expected expired prescription to be invalid")
	}
}

func TestDispenseExpiredVerifiedPrescription(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rx := f.ledger.Prescriptions

	p := f.issue(t, time.Minute)
	if err := rx.Verify(ctx, credPharmacist, p.ID); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	f.clock.Advance(2 * time.Minute)

	wantCode(t, rx.Dispense(ctx, credPharmacist, p.ID), CodeExpired)
}

func TestRevokeBlocksFurtherTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rx := f.ledger.Prescriptions

	p := f.issue(t, day)
	f.clock.Advance(time.Minute)

	if err := rx.Revoke(ctx, credDoctor, p.ID, "Patient allergic reaction"); err != nil {
		t.Fatalf("Revoke: %v", err)
	}

	got, _ := rx.Get(p.ID)
	if !got.IsRevoked || got.Status != model.PrescriptionRevoked {
		t.Errorf("expected revoked prescription, got %+v", got)
	}
	if got.RevokedBy != f.ids[credDoctor] || got.RevocationReason != "Patient allergic reaction" {
		t.Errorf("unexpected revocation details: %+v", got)
	}
	if got.RevokedAt == nil || !got.RevokedAt.Equal(f.clock.Now()) {
		t.Errorf("expected revoked at %v, got %v", f.clock.Now(), got.RevokedAt)
	}

	wantCode(t, rx.Verify(ctx, credPharmacist, p.ID), CodeRevoked)
	wantCode(t, rx.Dispense(ctx, credPharmacist, p.ID), CodeRevoked)
	wantCode(t, rx.Revoke(ctx, credDoctor, p.ID, "again"), CodeAlreadyRevoked)

	if rx.IsValid(p.ID) {
		t.Error("expected revoked prescription to be invalid")
	}

	events := f.events.Events()
	last := events[len(events)-1]
	if last.Type != model.EventPrescriptionRevoked || last.RevokerID != f.ids[credDoctor] || last.Reason != "Patient allergic reaction" {
		t.Errorf("unexpected revoke event: %+v", last)
	}
}

func TestRevokeAuthorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rx := f.ledger.Prescriptions
	p := f.issue(t, day)

	wantCode(t, rx.Revoke(ctx, credDoctor2, p.ID, "not mine"), CodeUnauthorized)
	wantCode(t, rx.Revoke(ctx, credPharmacist, p.ID, "no"), CodeUnauthorized)
	wantCode(t, rx.Revoke(ctx, credStranger, p.ID, "no"), CodeNotRegistered)
	wantCode(t, rx.Revoke(ctx, credDoctor, 99, "missing"), CodeInvalidID)
	wantCode(t, rx.Revoke(ctx, credDoctor, p.ID, " "), CodeEmptyField)

	if err := rx.Revoke(ctx, credRegulator, p.ID, "recall"); err != nil {
		t.Fatalf("regulator Revoke: %v", err)
	}
	got, _ := rx.Get(p.ID)
	if got.RevokedBy != f.ids[credRegulator] {
		t.Errorf("expected regulator as revoker, got %d", got.RevokedBy)
	}
}

func TestRevokeDispensedPrescription(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rx := f.ledger.Prescriptions
	p := f.issue(t, day)

	rx.Verify(ctx, credPharmacist, p.ID)
	rx.Dispense(ctx, credPharmacist, p.ID)

	if err := rx.Revoke(ctx, credRegulator, p.ID, "audit"); err != nil {
		t.Fatalf("Revoke dispensed: %v", err)
	}
	state, _ := rx.Status(p.ID)
	if state.Status != model.PrescriptionRevoked || !state.IsRevoked {
		t.Errorf("unexpected state: %+v", state)
	}
}

func TestPrescriptionQueries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rx := f.ledger.Prescriptions

	first := f.issue(t, day)
	second := f.issue(t, day)
	other, err := rx.Create(ctx, credDoctor2, CreatePrescription{
		PatientID:   f.ids[credAdmin],
		DrugID:      9,
		Dosage:      "once",
		ContentHash: "h",
		QRCode:      "q",
		ExpiresAt:   f.clock.Now().Add(day),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	ids, err := rx.ByPatient(f.ids[credPatient])
	if err != nil {
		t.Fatalf("ByPatient: %v", err)
	}
	if !slices.Equal(ids, []int64{first.ID, second.ID}) {
		t.Errorf("expected patient prescriptions [%d %d], got %v", first.ID, second.ID, ids)
	}

	ids, _ = rx.ByDoctor(f.ids[credDoctor2])
	if !slices.Equal(ids, []int64{other.ID}) {
		t.Errorf("expected doctor2 prescriptions [%d], got %v", other.ID, ids)
	}

	ids, err = rx.ByPatient(f.ids[credRegulator])
	if err != nil || len(ids) != 0 {
		t.Errorf("expected empty list for patient without prescriptions, got %v, %v", ids, err)
	}

	_, err = rx.ByPatient(0)
	wantCode(t, err, CodeInvalidID)
	_, err = rx.ByDoctor(0)
	wantCode(t, err, CodeInvalidID)

	_, err = rx.Get(99)
	wantCode(t, err, CodeInvalidID)
	_, err = rx.Status(99)
	wantCode(t, err, CodeInvalidID)
	if rx.IsValid(99) {
		t.Error("expected unknown prescription to be invalid")
	}
}

func TestMutationDoesNotTouchOtherPrescriptions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rx := f.ledger.Prescriptions

	a := f.issue(t, day)
	b := f.issue(t, day)

	if err := rx.Verify(ctx, credPharmacist, a.ID); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	got, _ := rx.Get(b.ID)
	if got != b {
		t.Errorf("expected untouched prescription %+v, got %+v", b, got)
	}
}

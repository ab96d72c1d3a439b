package model

import (
	"testing"
	"time"
)

func TestIsSupplyChainRole(t *testing.T) {
	tests := []struct {
		role     string
		expected bool
	}{
		{RoleManufacturer, true},
		{RoleDistributor, true},
		{RolePharmacist, false},
		{RolePatient, false},
		{RoleDoctor, false},
		{"", false},
		{"distributor", false},
	}

	for _, tt := range tests {
		got := IsSupplyChainRole(tt.role)
		if got != tt.expected {
			t.Errorf("IsSupplyChainRole(%q) = %v, want %v", tt.role, got, tt.expected)
		}
	}
}

func TestBatchStatusForRole(t *testing.T) {
	tests := []struct {
		role     string
		expected BatchStatus
	}{
		{RolePharmacist, BatchAtPharmacy},
		{RoleDistributor, BatchInTransit},
		{RoleManufacturer, BatchInTransit},
		{RolePatient, BatchTransferred},
		{RoleRegulator, BatchTransferred},
		{"CUSTOM", BatchTransferred},
	}

	for _, tt := range tests {
		got := BatchStatusForRole(tt.role)
		if got != tt.expected {
			t.Errorf("BatchStatusForRole(%q) = %q, want %q", tt.role, got, tt.expected)
		}
	}
}

func TestPrescriptionExpired(t *testing.T) {
	p := Prescription{ExpiresAt: mustTime("2026-01-02T00:00:00Z")}

	if p.Expired(mustTime("2026-01-01T23:59:59Z")) {
		t.Error("expected prescription not expired before expiry")
	}
	if p.Expired(mustTime("2026-01-02T00:00:00Z")) {
		t.Error("expected prescription not expired at the expiry instant")
	}
	if !p.Expired(mustTime("2026-01-02T00:00:01Z")) {
		t.Error("expected prescription expired after expiry")
	}
}

func mustTime(s string) time.Time {
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return ts
}

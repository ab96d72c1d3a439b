package api

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/erazemk/rxledger/internal/ledger"
	"github.com/erazemk/rxledger/internal/model"
	"github.com/erazemk/rxledger/internal/store"
)

// PrescriptionsHandler handles prescription lifecycle endpoints. Commands
// act as the token's credential; the ledger decides whether its role may.
type PrescriptionsHandler struct {
	DB     *sql.DB
	Ledger *ledger.Ledger
}

type createPrescriptionRequest struct {
	PatientID   int64     `json:"patient_id"`
	DrugID      int64     `json:"drug_id"`
	Dosage      string    `json:"dosage"`
	ContentHash string    `json:"content_hash"`
	QRCode      string    `json:"qr_code"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type revokeRequest struct {
	Reason string `json:"reason"`
}

// Create handles POST /api/prescriptions.
func (h *PrescriptionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createPrescriptionRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	claims := GetClaims(r.Context())
	p, err := h.Ledger.Prescriptions.Create(r.Context(), claims.Credential, ledger.CreatePrescription{
		PatientID:   req.PatientID,
		DrugID:      req.DrugID,
		Dosage:      req.Dosage,
		ContentHash: req.ContentHash,
		QRCode:      req.QRCode,
		ExpiresAt:   req.ExpiresAt,
	})
	if err != nil {
		ledgerError(w, err)
		return
	}

	slog.Info("prescription issued", "id", p.ID, "doctor_id", p.DoctorID, "patient_id", p.PatientID)
	jsonResponse(w, http.StatusCreated, p)
}

// List handles GET /api/prescriptions from the mirror, filtered by
// ?status=, ?doctor_id= and ?patient_id=.
func (h *PrescriptionsHandler) List(w http.ResponseWriter, r *http.Request) {
	doctorID, err := queryInt(r, "doctor_id")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid doctor_id")
		return
	}
	patientID, err := queryInt(r, "patient_id")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid patient_id")
		return
	}

	list, err := store.ListPrescriptions(r.Context(), h.DB, store.PrescriptionFilter{
		Status:    model.PrescriptionStatus(r.URL.Query().Get("status")),
		DoctorID:  doctorID,
		PatientID: patientID,
	})
	if err != nil {
		slog.Error("failed to list prescriptions", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to list prescriptions")
		return
	}
	if list == nil {
		list = []model.Prescription{}
	}
	jsonResponse(w, http.StatusOK, list)
}

// Get handles GET /api/prescriptions/{id}.
func (h *PrescriptionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid prescription id")
		return
	}

	p, err := h.Ledger.Prescriptions.Get(id)
	if err != nil {
		ledgerError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, p)
}

// Status handles GET /api/prescriptions/{id}/status.
func (h *PrescriptionsHandler) Status(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid prescription id")
		return
	}

	state, err := h.Ledger.Prescriptions.Status(id)
	if err != nil {
		ledgerError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, state)
}

// Valid handles GET /api/prescriptions/{id}/valid. Unknown ids are reported
// as not valid rather than as an error.
func (h *PrescriptionsHandler) Valid(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid prescription id")
		return
	}
	jsonResponse(w, http.StatusOK, map[string]bool{"valid": h.Ledger.Prescriptions.IsValid(id)})
}

// Verify handles POST /api/prescriptions/{id}/verify.
func (h *PrescriptionsHandler) Verify(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "verified", h.Ledger.Prescriptions.Verify)
}

// Dispense handles POST /api/prescriptions/{id}/dispense.
func (h *PrescriptionsHandler) Dispense(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "dispensed", h.Ledger.Prescriptions.Dispense)
}

func (h *PrescriptionsHandler) transition(w http.ResponseWriter, r *http.Request, verb string,
	cmd func(ctx context.Context, cred string, id int64) error) {
	id, err := pathID(r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid prescription id")
		return
	}

	claims := GetClaims(r.Context())
	if err := cmd(r.Context(), claims.Credential, id); err != nil {
		ledgerError(w, err)
		return
	}

	p, err := h.Ledger.Prescriptions.Get(id)
	if err != nil {
		ledgerError(w, err)
		return
	}
	slog.Info("prescription "+verb, "id", id, "credential", claims.Credential)
	jsonResponse(w, http.StatusOK, p)
}

// Revoke handles POST /api/prescriptions/{id}/revoke.
func (h *PrescriptionsHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid prescription id")
		return
	}

	var req revokeRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	claims := GetClaims(r.Context())
	if err := h.Ledger.Prescriptions.Revoke(r.Context(), claims.Credential, id, req.Reason); err != nil {
		ledgerError(w, err)
		return
	}

	p, err := h.Ledger.Prescriptions.Get(id)
	if err != nil {
		ledgerError(w, err)
		return
	}
	slog.Info("prescription revoked", "id", id, "credential", claims.Credential, "reason", req.Reason)
	jsonResponse(w, http.StatusOK, p)
}

// Dispenses handles GET /api/prescriptions/{id}/dispenses.
func (h *PrescriptionsHandler) Dispenses(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid prescription id")
		return
	}

	ids := h.Ledger.SupplyChain.DispensesByPrescription(id)
	records := make([]model.DispenseRecord, 0, len(ids))
	for _, did := range ids {
		records = append(records, h.Ledger.SupplyChain.DispenseRecord(did))
	}
	jsonResponse(w, http.StatusOK, records)
}

// ByPatient handles GET /api/patients/{id}/prescriptions.
func (h *PrescriptionsHandler) ByPatient(w http.ResponseWriter, r *http.Request) {
	h.byParty(w, r, h.Ledger.Prescriptions.ByPatient)
}

// ByDoctor handles GET /api/doctors/{id}/prescriptions.
func (h *PrescriptionsHandler) ByDoctor(w http.ResponseWriter, r *http.Request) {
	h.byParty(w, r, h.Ledger.Prescriptions.ByDoctor)
}

func (h *PrescriptionsHandler) byParty(w http.ResponseWriter, r *http.Request, lookup func(int64) ([]int64, error)) {
	id, err := pathID(r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	ids, err := lookup(id)
	if err != nil {
		ledgerError(w, err)
		return
	}
	if ids == nil {
		ids = []int64{}
	}
	jsonResponse(w, http.StatusOK, ids)
}

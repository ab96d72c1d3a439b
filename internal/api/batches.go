package api

import (
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/erazemk/rxledger/internal/ledger"
	"github.com/erazemk/rxledger/internal/model"
	"github.com/erazemk/rxledger/internal/store"
)

// BatchesHandler handles supply chain endpoints.
type BatchesHandler struct {
	DB     *sql.DB
	Ledger *ledger.Ledger
}

type registerBatchRequest struct {
	DrugID          int64     `json:"drug_id"`
	ContentHash     string    `json:"content_hash"`
	ManufactureDate time.Time `json:"manufacture_date"`
}

type transferBatchRequest struct {
	NewOwner string `json:"new_owner"`
}

type dispenseRequest struct {
	PrescriptionID int64  `json:"prescription_id"`
	BatchID        int64  `json:"batch_id"`
	Quantity       int64  `json:"quantity"`
	ExternalTxRef  string `json:"external_tx_ref"`
}

// Register handles POST /api/batches.
func (h *BatchesHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerBatchRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	claims := GetClaims(r.Context())
	b, err := h.Ledger.SupplyChain.RegisterBatch(r.Context(), claims.Credential, req.DrugID, req.ContentHash, req.ManufactureDate)
	if err != nil {
		ledgerError(w, err)
		return
	}

	slog.Info("batch registered", "id", b.ID, "manufacturer_id", b.ManufacturerID, "drug_id", b.DrugID)
	jsonResponse(w, http.StatusCreated, b)
}

// List handles GET /api/batches from the mirror, optionally filtered by ?owner_id=.
func (h *BatchesHandler) List(w http.ResponseWriter, r *http.Request) {
	ownerID, err := queryInt(r, "owner_id")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid owner_id")
		return
	}

	batches, err := store.ListBatches(r.Context(), h.DB, ownerID)
	if err != nil {
		slog.Error("failed to list batches", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to list batches")
		return
	}
	if batches == nil {
		batches = []model.Batch{}
	}
	jsonResponse(w, http.StatusOK, batches)
}

// Get handles GET /api/batches/{id}.
func (h *BatchesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid batch id")
		return
	}

	b, err := h.Ledger.SupplyChain.Batch(id)
	if err != nil {
		ledgerError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, b)
}

// Track handles GET /api/batches/{id}/track.
func (h *BatchesHandler) Track(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid batch id")
		return
	}

	b, err := h.Ledger.SupplyChain.TrackBatch(id)
	if err != nil {
		ledgerError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, b)
}

// Custody handles GET /api/batches/{id}/custody: the mirrored trail with
// credentials, roles and hand-over times.
func (h *BatchesHandler) Custody(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid batch id")
		return
	}
	if _, err := h.Ledger.SupplyChain.Batch(id); err != nil {
		ledgerError(w, err)
		return
	}

	entries, err := store.ListCustody(r.Context(), h.DB, id)
	if err != nil {
		slog.Error("failed to list custody", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to list custody")
		return
	}
	if entries == nil {
		entries = []store.CustodyEntry{}
	}
	jsonResponse(w, http.StatusOK, entries)
}

// BatchDispenses handles GET /api/batches/{id}/dispenses.
func (h *BatchesHandler) BatchDispenses(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid batch id")
		return
	}

	records, err := store.ListDispenses(r.Context(), h.DB, id)
	if err != nil {
		slog.Error("failed to list dispenses", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to list dispenses")
		return
	}
	if records == nil {
		records = []model.DispenseRecord{}
	}
	jsonResponse(w, http.StatusOK, records)
}

// Transfer handles POST /api/batches/{id}/transfer.
func (h *BatchesHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid batch id")
		return
	}

	var req transferBatchRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	claims := GetClaims(r.Context())
	b, err := h.Ledger.SupplyChain.TransferBatch(r.Context(), claims.Credential, id, req.NewOwner)
	if err != nil {
		ledgerError(w, err)
		return
	}

	slog.Info("batch transferred", "id", b.ID, "from", claims.Credential, "to", req.NewOwner, "status", b.Status)
	jsonResponse(w, http.StatusOK, b)
}

// Dispense handles POST /api/dispenses.
func (h *BatchesHandler) Dispense(w http.ResponseWriter, r *http.Request) {
	var req dispenseRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	claims := GetClaims(r.Context())
	rec, err := h.Ledger.SupplyChain.Dispense(r.Context(), claims.Credential, ledger.DispenseInput{
		PrescriptionID: req.PrescriptionID,
		BatchID:        req.BatchID,
		Quantity:       req.Quantity,
		ExternalTxRef:  req.ExternalTxRef,
	})
	if err != nil {
		ledgerError(w, err)
		return
	}

	slog.Info("dispense recorded", "id", rec.ID, "prescription_id", rec.PrescriptionID, "batch_id", rec.BatchID, "quantity", rec.Quantity)
	jsonResponse(w, http.StatusCreated, rec)
}

// GetDispense handles GET /api/dispenses/{id}. An unknown id yields the
// zero record, as the ledger does.
func (h *BatchesHandler) GetDispense(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid dispense id")
		return
	}

	jsonResponse(w, http.StatusOK, h.Ledger.SupplyChain.DispenseRecord(id))
}

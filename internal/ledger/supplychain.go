package ledger

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/erazemk/rxledger/internal/model"
)

// SupplyChain tracks drug batches from manufacturer to pharmacy.
type SupplyChain struct {
	store *Store
	guard *Guard
}

// NewSupplyChain creates the supply chain ledger.
func NewSupplyChain(store *Store, guard *Guard) *SupplyChain {
	return &SupplyChain{store: store, guard: guard}
}

// RegisterBatch records a new batch owned by the calling manufacturer.
// The manufacture date is taken as given.
func (l *SupplyChain) RegisterBatch(ctx context.Context, manufacturerCred string, drugID int64, contentHash string, manufactureDate time.Time) (model.Batch, error) {
	events, err := l.store.exec(ctx, func(time.Time) ([]model.Event, error) {
		manufacturer, err := l.guard.authorize(manufacturerCred, model.RoleManufacturer)
		if err != nil {
			return nil, err
		}
		if drugID == 0 {
			return nil, newError(CodeInvalidID, "drug id is required")
		}
		if strings.TrimSpace(contentHash) == "" {
			return nil, withMetadata(CodeEmptyField, "content_hash is required", map[string]string{"field": "content_hash"})
		}
		return []model.Event{{
			Ledger:          model.LedgerSupplyChain,
			Type:            model.EventBatchRegistered,
			BatchID:         int64(len(l.store.batches)) + 1,
			ManufacturerID:  manufacturer.ID,
			DrugID:          drugID,
			ContentHash:     contentHash,
			ManufactureDate: manufactureDate,
		}}, nil
	})
	if err != nil {
		return model.Batch{}, err
	}
	return l.Batch(events[0].BatchID)
}

// TransferBatch hands a batch from its current owner to newOwnerCred. The
// batch status follows the role of the new owner.
func (l *SupplyChain) TransferBatch(ctx context.Context, ownerCred string, batchID int64, newOwnerCred string) (model.Batch, error) {
	_, err := l.store.exec(ctx, func(time.Time) ([]model.Event, error) {
		caller, err := l.guard.caller(ownerCred)
		if err != nil {
			return nil, err
		}
		b, err := l.lookup(batchID)
		if err != nil {
			return nil, err
		}
		if caller.ID != b.CurrentOwnerID {
			return nil, withMetadata(CodeUnauthorized, "only the current owner can transfer this batch",
				map[string]string{
					"caller": fmt.Sprint(caller.ID),
					"owner":  fmt.Sprint(b.CurrentOwnerID),
				})
		}
		if isZeroCredential(newOwnerCred) {
			return nil, withMetadata(CodeInvalidTarget, "new owner must not be the zero identity",
				map[string]string{"credential": newOwnerCred})
		}
		target, err := l.guard.caller(newOwnerCred)
		if err != nil {
			return nil, err
		}
		if target.ID == b.CurrentOwnerID {
			return nil, withMetadata(CodeSameOwner, "batch already belongs to the new owner",
				map[string]string{"owner": fmt.Sprint(b.CurrentOwnerID)})
		}
		return []model.Event{{
			Ledger:      model.LedgerSupplyChain,
			Type:        model.EventBatchTransferred,
			BatchID:     batchID,
			FromUserID:  b.CurrentOwnerID,
			ToUserID:    target.ID,
			BatchStatus: model.BatchStatusForRole(target.Role),
		}}, nil
	})
	if err != nil {
		return model.Batch{}, err
	}
	return l.Batch(batchID)
}

// DispenseInput describes a fill of a prescription from a batch.
type DispenseInput struct {
	PrescriptionID int64
	BatchID        int64
	Quantity       int64
	ExternalTxRef  string
}

// Dispense records that a pharmacist filled a prescription from a batch. The
// batch is left untouched and the pharmacist need not own it.
func (l *SupplyChain) Dispense(ctx context.Context, pharmacistCred string, in DispenseInput) (model.DispenseRecord, error) {
	events, err := l.store.exec(ctx, func(time.Time) ([]model.Event, error) {
		pharmacist, err := l.guard.authorize(pharmacistCred, model.RolePharmacist)
		if err != nil {
			return nil, err
		}
		if in.PrescriptionID == 0 {
			return nil, newError(CodeInvalidID, "prescription id is required")
		}
		if _, err := l.lookup(in.BatchID); err != nil {
			return nil, err
		}
		if in.Quantity <= 0 {
			return nil, withMetadata(CodeInvalidQuantity, "quantity must be positive",
				map[string]string{"quantity": fmt.Sprint(in.Quantity)})
		}
		return []model.Event{{
			Ledger:         model.LedgerSupplyChain,
			Type:           model.EventPrescriptionDispensed,
			DispenseID:     int64(len(l.store.dispenses)) + 1,
			PrescriptionID: in.PrescriptionID,
			PharmacistID:   pharmacist.ID,
			BatchID:        in.BatchID,
			Quantity:       in.Quantity,
			ExternalTxRef:  in.ExternalTxRef,
		}}, nil
	})
	if err != nil {
		return model.DispenseRecord{}, err
	}
	return l.DispenseRecord(events[0].DispenseID), nil
}

// TrackBatch returns the batch with its full ownership history.
func (l *SupplyChain) TrackBatch(id int64) (model.Batch, error) {
	return l.Batch(id)
}

// Batch returns the batch with id.
func (l *SupplyChain) Batch(id int64) (model.Batch, error) {
	l.store.mu.RLock()
	defer l.store.mu.RUnlock()

	b, err := l.lookup(id)
	if err != nil {
		return model.Batch{}, err
	}
	return copyBatch(b), nil
}

// DispenseRecord returns the dispense record with id, or the zero record if
// there is none.
func (l *SupplyChain) DispenseRecord(id int64) model.DispenseRecord {
	l.store.mu.RLock()
	defer l.store.mu.RUnlock()

	if id <= 0 || id > int64(len(l.store.dispenses)) {
		return model.DispenseRecord{}
	}
	return l.store.dispenses[id-1]
}

// DispensesByPrescription returns the dispense record ids filed against a
// prescription, oldest first.
func (l *SupplyChain) DispensesByPrescription(prescriptionID int64) []int64 {
	l.store.mu.RLock()
	defer l.store.mu.RUnlock()
	return slices.Clone(l.store.byRx[prescriptionID])
}

func (l *SupplyChain) lookup(id int64) (*model.Batch, error) {
	b := l.store.batch(id)
	if b == nil {
		return nil, withMetadata(CodeInvalidID, fmt.Sprintf("batch %d does not exist", id),
			map[string]string{"batch_id": fmt.Sprint(id)})
	}
	return b, nil
}

// isZeroCredential reports whether credential is blank or an all-zero
// address such as 0x0000000000000000000000000000000000000000.
func isZeroCredential(credential string) bool {
	c := strings.TrimSpace(credential)
	c = strings.TrimPrefix(strings.TrimPrefix(c, "0x"), "0X")
	return strings.Trim(c, "0") == ""
}

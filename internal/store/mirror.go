package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/erazemk/rxledger/internal/model"
)

const mirrorSeqKey = "mirror_seq"

// ErrMirrorGap is returned when an event does not directly follow the last
// mirrored one.
var ErrMirrorGap = errors.New("mirror gap")

// EventSource reads committed events in seq order. The journal is one.
type EventSource interface {
	Since(after uint64, limit int) ([]model.Event, error)
}

// Mirror projects committed ledger events into SQLite. It is a ledger sink.
// When an event arrives after a missed one, the missing events are read from
// Source.
type Mirror struct {
	DB     *sql.DB
	Source EventSource
}

// Publish applies ev to the mirror tables.
func (m *Mirror) Publish(ctx context.Context, ev model.Event) error {
	err := ApplyEvent(ctx, m.DB, ev)
	if !errors.Is(err, ErrMirrorGap) || m.Source == nil {
		return err
	}
	n, err := CatchUp(ctx, m.DB, m.Source)
	if err != nil {
		return err
	}
	slog.Warn("mirror caught up after gap", "seq", ev.Seq, "applied", n)
	return ApplyEvent(ctx, m.DB, ev)
}

// CatchUp applies every event in src after the mirror's seq and returns how
// many were applied.
func CatchUp(ctx context.Context, db *sql.DB, src EventSource) (int, error) {
	mirrored, err := MirrorSeq(ctx, db)
	if err != nil {
		return 0, err
	}
	events, err := src.Since(mirrored, 0)
	if err != nil {
		return 0, fmt.Errorf("reading events after %d: %w", mirrored, err)
	}
	for i, ev := range events {
		if err := ApplyEvent(ctx, db, ev); err != nil {
			return i, fmt.Errorf("catching up mirror: %w", err)
		}
	}
	return len(events), nil
}

// MirrorSeq returns the seq of the last event applied to the mirror.
func MirrorSeq(ctx context.Context, db *sql.DB) (uint64, error) {
	v, err := GetSetting(ctx, db, mirrorSeqKey)
	if err != nil {
		return 0, err
	}
	if v == "" {
		return 0, nil
	}
	seq, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing mirror seq: %w", err)
	}
	return seq, nil
}

// ApplyEvent applies one event and records its seq in a single transaction.
// Events at or below the recorded seq are skipped, so catching up after a
// restart is safe to repeat. An event past the next expected seq is rejected
// with ErrMirrorGap.
func ApplyEvent(ctx context.Context, db *sql.DB, ev model.Event) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, mirrorSeqKey).Scan(&current)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("reading mirror seq: %w", err)
	}
	var seq uint64
	if current != "" {
		seq, err = strconv.ParseUint(current, 10, 64)
		if err != nil {
			return fmt.Errorf("parsing mirror seq: %w", err)
		}
	}
	if ev.Seq <= seq {
		return nil
	}
	if ev.Seq != seq+1 {
		return fmt.Errorf("%w: mirrored %d, got %d", ErrMirrorGap, seq, ev.Seq)
	}

	if err := applyEvent(ctx, tx, ev); err != nil {
		return fmt.Errorf("applying %s event %d: %w", ev.Type, ev.Seq, err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		mirrorSeqKey, strconv.FormatUint(ev.Seq, 10),
	)
	if err != nil {
		return fmt.Errorf("recording mirror seq: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing event %d: %w", ev.Seq, err)
	}
	return nil
}

func applyEvent(ctx context.Context, tx *sql.Tx, ev model.Event) error {
	var err error
	switch ev.Type {
	case model.EventRoleCreated:
		_, err = tx.ExecContext(ctx,
			`INSERT INTO roles (id, name, created_at) VALUES (?, ?, ?)`,
			ev.RoleID, ev.RoleName, ev.At,
		)

	case model.EventUserRegistered:
		_, err = tx.ExecContext(ctx,
			`INSERT INTO users (id, credential, metadata, role_id, registered_at) VALUES (?, ?, ?, ?, ?)`,
			ev.UserID, ev.Credential, ev.Metadata, ev.RoleID, ev.At,
		)

	case model.EventUserRoleAssigned:
		_, err = tx.ExecContext(ctx,
			`UPDATE users SET role_id = ? WHERE id = ?`,
			ev.RoleID, ev.UserID,
		)

	case model.EventPrescriptionCreated:
		_, err = tx.ExecContext(ctx,
			`INSERT INTO prescriptions (id, doctor_id, patient_id, drug_id, dosage, content_hash, qr_code,
			                            status, issued_at, expires_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			ev.PrescriptionID, ev.DoctorID, ev.PatientID, ev.DrugID, ev.Dosage, ev.ContentHash, ev.QRCode,
			model.PrescriptionIssued, ev.At, ev.ExpiresAt, ev.At,
		)

	case model.EventPrescriptionVerified:
		err = setPrescriptionStatus(ctx, tx, ev, model.PrescriptionVerified)

	case model.EventPrescriptionDispensed:
		if ev.Ledger == model.LedgerSupplyChain {
			_, err = tx.ExecContext(ctx,
				`INSERT INTO dispense_records (id, prescription_id, pharmacist_id, batch_id, quantity,
				                               dispensed_at, external_tx_ref)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				ev.DispenseID, ev.PrescriptionID, ev.PharmacistID, ev.BatchID, ev.Quantity, ev.At, ev.ExternalTxRef,
			)
			break
		}
		err = setPrescriptionStatus(ctx, tx, ev, model.PrescriptionDispensed)

	case model.EventPrescriptionRevoked:
		_, err = tx.ExecContext(ctx,
			`UPDATE prescriptions
			 SET status = ?, is_revoked = 1, revoked_by = ?, revocation_reason = ?, revoked_at = ?, updated_at = ?
			 WHERE id = ?`,
			model.PrescriptionRevoked, ev.RevokerID, ev.Reason, ev.At, ev.At, ev.PrescriptionID,
		)

	case model.EventBatchRegistered:
		_, err = tx.ExecContext(ctx,
			`INSERT INTO batches (id, manufacturer_id, drug_id, current_owner_id, status, content_hash,
			                      manufacture_date, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			ev.BatchID, ev.ManufacturerID, ev.DrugID, ev.ManufacturerID, model.BatchManufactured,
			ev.ContentHash, ev.ManufactureDate, ev.At,
		)
		if err == nil {
			_, err = tx.ExecContext(ctx,
				`INSERT INTO batch_custody (batch_id, position, user_id, received_at) VALUES (?, 0, ?, ?)`,
				ev.BatchID, ev.ManufacturerID, ev.At,
			)
		}

	case model.EventBatchTransferred:
		_, err = tx.ExecContext(ctx,
			`UPDATE batches SET current_owner_id = ?, status = ? WHERE id = ?`,
			ev.ToUserID, ev.BatchStatus, ev.BatchID,
		)
		if err == nil {
			_, err = tx.ExecContext(ctx,
				`INSERT INTO batch_custody (batch_id, position, user_id, received_at)
				 VALUES (?, (SELECT COUNT(*) FROM batch_custody WHERE batch_id = ?), ?, ?)`,
				ev.BatchID, ev.BatchID, ev.ToUserID, ev.At,
			)
		}

	default:
		return fmt.Errorf("unknown event type %q", ev.Type)
	}
	return err
}

func setPrescriptionStatus(ctx context.Context, tx *sql.Tx, ev model.Event, status model.PrescriptionStatus) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE prescriptions SET status = ?, updated_at = ? WHERE id = ?`,
		status, ev.At, ev.PrescriptionID,
	)
	return err
}

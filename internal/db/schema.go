package db

import (
	"database/sql"
	"fmt"
)

// schema is the relational mirror of the ledger plus API-side tables.
// Ledger tables are written only by the event mirror.
const schema = `
CREATE TABLE IF NOT EXISTS roles (
    id         INTEGER PRIMARY KEY,
    name       TEXT NOT NULL UNIQUE,
    created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS users (
    id            INTEGER PRIMARY KEY,
    credential    TEXT NOT NULL,
    metadata      TEXT,
    role_id       INTEGER NOT NULL REFERENCES roles(id),
    registered_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_users_credential ON users(credential);

CREATE TABLE IF NOT EXISTS prescriptions (
    id                INTEGER PRIMARY KEY,
    doctor_id         INTEGER NOT NULL REFERENCES users(id),
    patient_id        INTEGER NOT NULL,
    drug_id           INTEGER NOT NULL CHECK (drug_id > 0),
    dosage            TEXT NOT NULL,
    content_hash      TEXT NOT NULL,
    qr_code           TEXT NOT NULL,
    status            TEXT NOT NULL CHECK (status IN ('Issued', 'Verified', 'Dispensed', 'Revoked')),
    issued_at         DATETIME NOT NULL,
    expires_at        DATETIME NOT NULL,
    is_revoked        INTEGER NOT NULL DEFAULT 0,
    revoked_by        INTEGER REFERENCES users(id),
    revocation_reason TEXT,
    revoked_at        DATETIME,
    updated_at        DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_prescriptions_patient ON prescriptions(patient_id);
CREATE INDEX IF NOT EXISTS idx_prescriptions_doctor ON prescriptions(doctor_id);

CREATE TABLE IF NOT EXISTS batches (
    id               INTEGER PRIMARY KEY,
    manufacturer_id  INTEGER NOT NULL REFERENCES users(id),
    drug_id          INTEGER NOT NULL CHECK (drug_id > 0),
    current_owner_id INTEGER NOT NULL REFERENCES users(id),
    status           TEXT NOT NULL CHECK (status IN ('Manufactured', 'InTransit', 'AtPharmacy', 'Transferred')),
    content_hash     TEXT NOT NULL,
    manufacture_date DATETIME NOT NULL,
    created_at       DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_batches_owner ON batches(current_owner_id);

CREATE TABLE IF NOT EXISTS batch_custody (
    batch_id    INTEGER NOT NULL REFERENCES batches(id),
    position    INTEGER NOT NULL,
    user_id     INTEGER NOT NULL REFERENCES users(id),
    received_at DATETIME NOT NULL,
    PRIMARY KEY (batch_id, position)
);

CREATE TABLE IF NOT EXISTS dispense_records (
    id              INTEGER PRIMARY KEY,
    prescription_id INTEGER NOT NULL,
    pharmacist_id   INTEGER NOT NULL REFERENCES users(id),
    batch_id        INTEGER NOT NULL REFERENCES batches(id),
    quantity        INTEGER NOT NULL CHECK (quantity > 0),
    dispensed_at    DATETIME NOT NULL,
    external_tx_ref TEXT
);

CREATE TABLE IF NOT EXISTS accounts (
    credential    TEXT PRIMARY KEY,
    password_hash TEXT NOT NULL,
    created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS content (
    hash       TEXT PRIMARY KEY,
    data       BLOB NOT NULL,
    mime       TEXT NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS revoked_tokens (
    jti        TEXT PRIMARY KEY,
    expires_at DATETIME NOT NULL
);
`

// EnsureSchema creates all tables and indexes if they don't already exist.
func EnsureSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

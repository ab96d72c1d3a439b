package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/rxledger/internal/model"
)

// CreateAccount stores the API login for credential.
func CreateAccount(ctx context.Context, db *sql.DB, credential, passwordHash string) (*model.Account, error) {
	_, err := db.ExecContext(ctx,
		`INSERT INTO accounts (credential, password_hash) VALUES (?, ?)`,
		credential, passwordHash,
	)
	if err != nil {
		return nil, fmt.Errorf("creating account: %w", err)
	}
	return GetAccount(ctx, db, credential)
}

// GetAccount returns the account for credential, or nil if there is none.
func GetAccount(ctx context.Context, db *sql.DB, credential string) (*model.Account, error) {
	a := &model.Account{}
	err := db.QueryRowContext(ctx,
		`SELECT credential, password_hash, created_at FROM accounts WHERE credential = ?`,
		credential,
	).Scan(&a.Credential, &a.PasswordHash, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting account: %w", err)
	}
	return a, nil
}

// UpdateAccountPassword replaces the password hash of an account.
func UpdateAccountPassword(ctx context.Context, db *sql.DB, credential, passwordHash string) error {
	res, err := db.ExecContext(ctx,
		`UPDATE accounts SET password_hash = ? WHERE credential = ?`,
		passwordHash, credential,
	)
	if err != nil {
		return fmt.Errorf("updating account password: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating account password: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("account %q not found", credential)
	}
	return nil
}

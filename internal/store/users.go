package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/rxledger/internal/model"
)

const userColumns = `u.id, u.credential, COALESCE(u.metadata, ''), u.role_id, r.name, u.registered_at`

// GetUser returns a mirrored user by ID, or nil if it has not been mirrored.
func GetUser(ctx context.Context, db *sql.DB, id int64) (*model.User, error) {
	u := &model.User{}
	err := db.QueryRowContext(ctx,
		`SELECT `+userColumns+`
		 FROM users u JOIN roles r ON r.id = u.role_id
		 WHERE u.id = ?`, id,
	).Scan(&u.ID, &u.Credential, &u.Metadata, &u.RoleID, &u.Role, &u.RegisteredAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return u, nil
}

// ListUsers returns mirrored users, optionally only those holding role.
func ListUsers(ctx context.Context, db *sql.DB, role string) ([]model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users u JOIN roles r ON r.id = u.role_id`
	var args []any
	if role != "" {
		query += ` WHERE r.name = ?`
		args = append(args, role)
	}
	query += ` ORDER BY u.id`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.Credential, &u.Metadata, &u.RoleID, &u.Role, &u.RegisteredAt); err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/rxledger/internal/model"
)

// PutContent stores a blob under its hash. Storing the same hash twice keeps
// the first copy.
func PutContent(ctx context.Context, db *sql.DB, hash, mime string, data []byte) (*model.Content, error) {
	_, err := db.ExecContext(ctx,
		`INSERT OR IGNORE INTO content (hash, data, mime) VALUES (?, ?, ?)`,
		hash, data, mime,
	)
	if err != nil {
		return nil, fmt.Errorf("storing content: %w", err)
	}

	c := &model.Content{}
	err = db.QueryRowContext(ctx,
		`SELECT hash, mime, length(data), created_at FROM content WHERE hash = ?`, hash,
	).Scan(&c.Hash, &c.MIME, &c.Size, &c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("reading stored content: %w", err)
	}
	return c, nil
}

// GetContent returns a stored blob and its MIME type. data is nil if the hash is unknown.
func GetContent(ctx context.Context, db *sql.DB, hash string) (data []byte, mime string, err error) {
	err = db.QueryRowContext(ctx,
		`SELECT data, mime FROM content WHERE hash = ?`, hash,
	).Scan(&data, &mime)
	if err == sql.ErrNoRows {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("getting content: %w", err)
	}
	return data, mime, nil
}

package model

import "time"

// Account holds the API login for a ledger credential. The ledger itself
// never sees passwords.
type Account struct {
	Credential   string    `json:"credential"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Content is a stored blob addressed by its content hash.
type Content struct {
	Hash      string    `json:"hash"`
	MIME      string    `json:"mime"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

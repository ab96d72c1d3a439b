package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/erazemk/rxledger/internal/auth"
	"github.com/erazemk/rxledger/internal/journal"
	"github.com/erazemk/rxledger/internal/ledger"
	"github.com/erazemk/rxledger/internal/model"
	"github.com/erazemk/rxledger/internal/store"
)

// openLedger rebuilds the ledger from the journal, brings the SQLite mirror
// up to the journal's last event and subscribes it to new events. The journal
// is the ledger's commit log.
func openLedger(ctx context.Context, database *sql.DB, j *journal.Journal) (*ledger.Ledger, error) {
	events, err := j.Events()
	if err != nil {
		return nil, fmt.Errorf("reading journal: %w", err)
	}

	st := ledger.NewStore(ledger.WithLog(j))
	if err := st.Replay(events); err != nil {
		return nil, fmt.Errorf("replaying journal: %w", err)
	}

	caughtUp, err := store.CatchUp(ctx, database, j)
	if err != nil {
		return nil, err
	}
	st.Subscribe(&store.Mirror{DB: database, Source: j})

	slog.Info("ledger ready", "events", len(events), "seq", st.Seq(), "mirrored", caughtUp)
	return ledger.New(st), nil
}

// bootstrap creates the standard roles and the admin user on an empty
// ledger, and an API account for the admin. It returns the generated
// password, or "" if the ledger was not empty.
func bootstrap(ctx context.Context, database *sql.DB, l *ledger.Ledger, adminCred string) (string, error) {
	if l.Store.Seq() > 0 {
		return "", nil
	}

	if err := l.Registry.EnsureRoles(ctx, model.StandardRoles...); err != nil {
		return "", fmt.Errorf("creating roles: %w", err)
	}
	role, err := l.Registry.Role(model.RoleAdmin)
	if err != nil {
		return "", err
	}
	if _, err := l.Registry.RegisterUser(ctx, adminCred, "bootstrap administrator", role.ID); err != nil {
		return "", fmt.Errorf("registering admin: %w", err)
	}

	password, err := auth.GeneratePassword(16)
	if err != nil {
		return "", err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return "", err
	}
	if _, err := store.CreateAccount(ctx, database, adminCred, hash); err != nil {
		return "", fmt.Errorf("creating admin account: %w", err)
	}
	return password, nil
}

// printInitResult prints the bootstrap result to stdout.
func printInitResult(journalPath, credential, password string) {
	fmt.Printf("Ledger created: %s\n", journalPath)
	fmt.Printf("Standard roles: %v\n", model.StandardRoles)
	fmt.Println()
	fmt.Println("Admin account created:")
	fmt.Printf("  Credential: %s\n", credential)
	fmt.Printf("  Password:   %s\n", password)
	fmt.Println()
	fmt.Println("Save this password, it cannot be recovered.")
	fmt.Println("The admin can change it after logging in.")
}

package api

import (
	"database/sql"
	"net/http"

	"github.com/erazemk/rxledger/internal/journal"
	"github.com/erazemk/rxledger/internal/ledger"
	"github.com/erazemk/rxledger/internal/model"
)

// NewRouter creates the API router with all endpoints registered.
func NewRouter(db *sql.DB, l *ledger.Ledger, j *journal.Journal, jwtSecret string) http.Handler {
	mux := http.NewServeMux()

	authHandler := &AuthHandler{DB: db, Ledger: l, JWTSecret: jwtSecret}
	usersHandler := &UsersHandler{DB: db, Ledger: l}
	prescriptionsHandler := &PrescriptionsHandler{DB: db, Ledger: l}
	batchesHandler := &BatchesHandler{DB: db, Ledger: l}
	contentHandler := &ContentHandler{DB: db}
	eventsHandler := &EventsHandler{Journal: j}

	authMW := AuthMiddleware(jwtSecret, db)
	requireAdmin := RequireRole(l.Guard, model.RoleAdmin)
	requireAuditor := RequireRole(l.Guard, model.RoleAdmin, model.RoleRegulator)
	requireAuthor := RequireRole(l.Guard, model.RoleDoctor, model.RoleManufacturer, model.RoleAdmin)

	// Public: login.
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)

	// Session.
	mux.Handle("PUT /api/auth/password", authMW(http.HandlerFunc(authHandler.ChangePassword)))
	mux.Handle("POST /api/auth/logout", authMW(http.HandlerFunc(authHandler.Logout)))
	mux.Handle("GET /api/me", authMW(http.HandlerFunc(authHandler.Me)))

	// Identity registry: reads (all), writes (admin).
	mux.Handle("GET /api/roles", authMW(http.HandlerFunc(usersHandler.ListRoles)))
	mux.Handle("POST /api/roles", authMW(requireAdmin(http.HandlerFunc(usersHandler.CreateRole))))
	mux.Handle("GET /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.List))))
	mux.Handle("POST /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.Register))))
	mux.Handle("GET /api/users/{id}", authMW(http.HandlerFunc(usersHandler.Get)))
	mux.Handle("PUT /api/users/{id}/role", authMW(requireAdmin(http.HandlerFunc(usersHandler.AssignRole))))
	mux.Handle("PUT /api/users/{id}/password", authMW(requireAdmin(http.HandlerFunc(usersHandler.ResetPassword))))

	// Prescriptions: the ledger enforces the role of each command.
	mux.Handle("POST /api/prescriptions", authMW(http.HandlerFunc(prescriptionsHandler.Create)))
	mux.Handle("GET /api/prescriptions", authMW(http.HandlerFunc(prescriptionsHandler.List)))
	mux.Handle("GET /api/prescriptions/{id}", authMW(http.HandlerFunc(prescriptionsHandler.Get)))
	mux.Handle("GET /api/prescriptions/{id}/status", authMW(http.HandlerFunc(prescriptionsHandler.Status)))
	mux.Handle("GET /api/prescriptions/{id}/valid", authMW(http.HandlerFunc(prescriptionsHandler.Valid)))
	mux.Handle("GET /api/prescriptions/{id}/dispenses", authMW(http.HandlerFunc(prescriptionsHandler.Dispenses)))
	mux.Handle("POST /api/prescriptions/{id}/verify", authMW(http.HandlerFunc(prescriptionsHandler.Verify)))
	mux.Handle("POST /api/prescriptions/{id}/dispense", authMW(http.HandlerFunc(prescriptionsHandler.Dispense)))
	mux.Handle("POST /api/prescriptions/{id}/revoke", authMW(http.HandlerFunc(prescriptionsHandler.Revoke)))
	mux.Handle("GET /api/patients/{id}/prescriptions", authMW(http.HandlerFunc(prescriptionsHandler.ByPatient)))
	mux.Handle("GET /api/doctors/{id}/prescriptions", authMW(http.HandlerFunc(prescriptionsHandler.ByDoctor)))

	// Supply chain.
	mux.Handle("POST /api/batches", authMW(http.HandlerFunc(batchesHandler.Register)))
	mux.Handle("GET /api/batches", authMW(http.HandlerFunc(batchesHandler.List)))
	mux.Handle("GET /api/batches/{id}", authMW(http.HandlerFunc(batchesHandler.Get)))
	mux.Handle("GET /api/batches/{id}/track", authMW(http.HandlerFunc(batchesHandler.Track)))
	mux.Handle("GET /api/batches/{id}/custody", authMW(http.HandlerFunc(batchesHandler.Custody)))
	mux.Handle("GET /api/batches/{id}/dispenses", authMW(http.HandlerFunc(batchesHandler.BatchDispenses)))
	mux.Handle("POST /api/batches/{id}/transfer", authMW(http.HandlerFunc(batchesHandler.Transfer)))
	mux.Handle("POST /api/dispenses", authMW(http.HandlerFunc(batchesHandler.Dispense)))
	mux.Handle("GET /api/dispenses/{id}", authMW(http.HandlerFunc(batchesHandler.GetDispense)))

	// Content: upload (prescription and batch authors), read (all).
	mux.Handle("POST /api/content", authMW(requireAuthor(http.HandlerFunc(contentHandler.Upload))))
	mux.Handle("GET /api/content/{hash}", authMW(http.HandlerFunc(contentHandler.Get)))

	// Audit feed.
	mux.Handle("GET /api/events", authMW(requireAuditor(http.HandlerFunc(eventsHandler.List))))

	return mux
}

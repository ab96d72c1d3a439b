package api

import (
	"database/sql"
	"log/slog"
	"net/http"
	"strings"

	"github.com/erazemk/rxledger/internal/auth"
	"github.com/erazemk/rxledger/internal/ledger"
	"github.com/erazemk/rxledger/internal/model"
	"github.com/erazemk/rxledger/internal/store"
)

// UsersHandler handles the identity registry endpoints.
type UsersHandler struct {
	DB     *sql.DB
	Ledger *ledger.Ledger
}

type createRoleRequest struct {
	Name string `json:"name"`
}

type registerUserRequest struct {
	Credential string `json:"credential"`
	Metadata   string `json:"metadata"`
	Role       string `json:"role"`
	Password   string `json:"password"`
}

type assignRoleRequest struct {
	Role string `json:"role"`
}

type resetPasswordRequest struct {
	Password string `json:"password"`
}

// ListRoles handles GET /api/roles.
func (h *UsersHandler) ListRoles(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, h.Ledger.Registry.Roles())
}

// CreateRole handles POST /api/roles.
func (h *UsersHandler) CreateRole(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id, err := h.Ledger.Registry.CreateRole(r.Context(), req.Name)
	if err != nil {
		ledgerError(w, err)
		return
	}

	admin, _ := GetUser(r.Context())
	slog.Info("role created", "user", admin.Credential, "role", req.Name, "role_id", id)
	jsonResponse(w, http.StatusCreated, model.Role{ID: id, Name: strings.TrimSpace(req.Name)})
}

// List handles GET /api/users from the mirror, optionally filtered by ?role=.
func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := store.ListUsers(r.Context(), h.DB, r.URL.Query().Get("role"))
	if err != nil {
		slog.Error("failed to list users", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to list users")
		return
	}
	if users == nil {
		users = []model.User{}
	}
	jsonResponse(w, http.StatusOK, users)
}

// Register handles POST /api/users. A password, when given, also opens an
// API account for the credential.
func (h *UsersHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerUserRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Password != "" {
		if err := auth.ValidatePassword(req.Password); err != nil {
			jsonError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	role, err := h.Ledger.Registry.Role(req.Role)
	if err != nil {
		ledgerError(w, err)
		return
	}

	id, err := h.Ledger.Registry.RegisterUser(r.Context(), req.Credential, req.Metadata, role.ID)
	if err != nil {
		ledgerError(w, err)
		return
	}

	if req.Password != "" {
		if err := h.setPassword(r, req.Credential, req.Password); err != nil {
			slog.Error("failed to create account", "credential", req.Credential, "error", err)
			jsonError(w, http.StatusInternalServerError, "user registered but account creation failed")
			return
		}
	}

	user, err := h.Ledger.Registry.User(id)
	if err != nil {
		ledgerError(w, err)
		return
	}

	admin, _ := GetUser(r.Context())
	slog.Info("user registered", "user", admin.Credential, "new_user", user.Credential, "user_id", id, "role", user.Role)
	jsonResponse(w, http.StatusCreated, user)
}

// Get handles GET /api/users/{id}.
func (h *UsersHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	user, err := h.Ledger.Registry.User(id)
	if err != nil {
		ledgerError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, user)
}

// AssignRole handles PUT /api/users/{id}/role.
func (h *UsersHandler) AssignRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	var req assignRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	role, err := h.Ledger.Registry.Role(req.Role)
	if err != nil {
		ledgerError(w, err)
		return
	}
	if err := h.Ledger.Registry.AssignRole(r.Context(), id, role.ID); err != nil {
		ledgerError(w, err)
		return
	}

	user, err := h.Ledger.Registry.User(id)
	if err != nil {
		ledgerError(w, err)
		return
	}

	admin, _ := GetUser(r.Context())
	slog.Info("user role assigned", "user", admin.Credential, "target_user", user.Credential, "new_role", user.Role)
	jsonResponse(w, http.StatusOK, user)
}

// ResetPassword handles PUT /api/users/{id}/password.
func (h *UsersHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	var req resetPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := auth.ValidatePassword(req.Password); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.Ledger.Registry.User(id)
	if err != nil {
		ledgerError(w, err)
		return
	}

	if err := h.setPassword(r, user.Credential, req.Password); err != nil {
		slog.Error("failed to reset password", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to reset password")
		return
	}

	admin, _ := GetUser(r.Context())
	slog.Info("user password reset", "user", admin.Credential, "target_user", user.Credential)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "password reset"})
}

// setPassword creates the account for credential or replaces its password.
func (h *UsersHandler) setPassword(r *http.Request, credential, password string) error {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	acct, err := store.GetAccount(r.Context(), h.DB, credential)
	if err != nil {
		return err
	}
	if acct == nil {
		_, err = store.CreateAccount(r.Context(), h.DB, credential, hash)
		return err
	}
	return store.UpdateAccountPassword(r.Context(), h.DB, credential, hash)
}

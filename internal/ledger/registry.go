package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/erazemk/rxledger/internal/model"
)

// Registry maps external credentials to users and roles.
type Registry struct {
	store *Store
}

// NewRegistry creates a registry backed by store.
func NewRegistry(store *Store) *Registry {
	return &Registry{store: store}
}

// CreateRole registers a new role name and returns its id.
func (r *Registry) CreateRole(ctx context.Context, name string) (int64, error) {
	name = strings.TrimSpace(name)
	events, err := r.store.exec(ctx, func(time.Time) ([]model.Event, error) {
		if name == "" {
			return nil, newError(CodeEmptyField, "role name is required")
		}
		if _, ok := r.store.roleByName[name]; ok {
			return nil, withMetadata(CodeDuplicateRole, fmt.Sprintf("role %s already exists", name),
				map[string]string{"role": name})
		}
		return []model.Event{{
			Ledger:   model.LedgerIdentity,
			Type:     model.EventRoleCreated,
			RoleID:   int64(len(r.store.roles)) + 1,
			RoleName: name,
		}}, nil
	})
	if err != nil {
		return 0, err
	}
	return events[0].RoleID, nil
}

// EnsureRoles creates every role in names that does not exist yet.
func (r *Registry) EnsureRoles(ctx context.Context, names ...string) error {
	for _, name := range names {
		if _, err := r.Role(name); err == nil {
			continue
		}
		if _, err := r.CreateRole(ctx, name); err != nil && CodeOf(err) != CodeDuplicateRole {
			return fmt.Errorf("creating role %s: %w", name, err)
		}
	}
	return nil
}

// RegisterUser registers credential under roleID and returns the new user id.
// A credential may be registered again; it then resolves to the newest user.
func (r *Registry) RegisterUser(ctx context.Context, credential, metadata string, roleID int64) (int64, error) {
	events, err := r.store.exec(ctx, func(time.Time) ([]model.Event, error) {
		if strings.TrimSpace(credential) == "" {
			return nil, newError(CodeEmptyField, "credential is required")
		}
		if r.store.role(roleID) == nil {
			return nil, withMetadata(CodeInvalidRole, fmt.Sprintf("role %d does not exist", roleID),
				map[string]string{"role_id": fmt.Sprint(roleID)})
		}
		return []model.Event{{
			Ledger:     model.LedgerIdentity,
			Type:       model.EventUserRegistered,
			UserID:     int64(len(r.store.users)) + 1,
			Credential: credential,
			Metadata:   metadata,
			RoleID:     roleID,
		}}, nil
	})
	if err != nil {
		return 0, err
	}
	return events[0].UserID, nil
}

// AssignRole moves an existing user to another role. The user id is kept.
func (r *Registry) AssignRole(ctx context.Context, userID, roleID int64) error {
	_, err := r.store.exec(ctx, func(time.Time) ([]model.Event, error) {
		if r.store.user(userID) == nil {
			return nil, withMetadata(CodeInvalidID, fmt.Sprintf("user %d does not exist", userID),
				map[string]string{"user_id": fmt.Sprint(userID)})
		}
		if r.store.role(roleID) == nil {
			return nil, withMetadata(CodeInvalidRole, fmt.Sprintf("role %d does not exist", roleID),
				map[string]string{"role_id": fmt.Sprint(roleID)})
		}
		return []model.Event{{
			Ledger: model.LedgerIdentity,
			Type:   model.EventUserRoleAssigned,
			UserID: userID,
			RoleID: roleID,
		}}, nil
	})
	return err
}

// Resolve returns the user registered under credential.
func (r *Registry) Resolve(credential string) (model.User, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return r.resolve(credential)
}

// resolve requires the store lock.
func (r *Registry) resolve(credential string) (model.User, error) {
	id, ok := r.store.userByCred[credential]
	if !ok {
		return model.User{}, withMetadata(CodeNotRegistered, fmt.Sprintf("credential %s is not registered", credential),
			map[string]string{"credential": credential})
	}
	return r.store.userView(r.store.user(id)), nil
}

// User returns the user with id.
func (r *Registry) User(id int64) (model.User, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	u := r.store.user(id)
	if u == nil {
		return model.User{}, withMetadata(CodeInvalidID, fmt.Sprintf("user %d does not exist", id),
			map[string]string{"user_id": fmt.Sprint(id)})
	}
	return r.store.userView(u), nil
}

// Role returns the role with name.
func (r *Registry) Role(name string) (model.Role, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	id, ok := r.store.roleByName[name]
	if !ok {
		return model.Role{}, withMetadata(CodeInvalidRole, fmt.Sprintf("role %s does not exist", name),
			map[string]string{"role": name})
	}
	return *r.store.role(id), nil
}

// Roles returns all roles in creation order.
func (r *Registry) Roles() []model.Role {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	out := make([]model.Role, len(r.store.roles))
	copy(out, r.store.roles)
	return out
}

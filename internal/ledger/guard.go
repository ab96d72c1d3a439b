package ledger

import (
	"fmt"
	"slices"
	"strings"

	"github.com/erazemk/rxledger/internal/model"
)

// Guard admits callers by role.
type Guard struct {
	registry *Registry
}

// NewGuard creates a guard over registry.
func NewGuard(registry *Registry) *Guard {
	return &Guard{registry: registry}
}

// Authorize resolves credential and checks that its role is one of allowed.
// An unknown credential fails with NOT_REGISTERED, a known one with the
// wrong role fails with UNAUTHORIZED.
func (g *Guard) Authorize(credential string, allowed ...string) (model.User, error) {
	g.registry.store.mu.RLock()
	defer g.registry.store.mu.RUnlock()
	return g.authorize(credential, allowed...)
}

// authorize requires the store lock.
func (g *Guard) authorize(credential string, allowed ...string) (model.User, error) {
	u, err := g.registry.resolve(credential)
	if err != nil {
		return model.User{}, err
	}
	if !slices.Contains(allowed, u.Role) {
		return model.User{}, withMetadata(CodeUnauthorized,
			fmt.Sprintf("role %s is not allowed, requires one of %s", u.Role, strings.Join(allowed, ", ")),
			map[string]string{
				"role":    u.Role,
				"allowed": strings.Join(allowed, ","),
			})
	}
	return u, nil
}

// caller resolves credential without a role requirement.
// Requires the store lock.
func (g *Guard) caller(credential string) (model.User, error) {
	return g.registry.resolve(credential)
}

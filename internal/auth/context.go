package auth

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// WildcardPermission grants every report permission.
const WildcardPermission = "*"

var (
	// ErrUnauthenticated reports a request with no principal attached.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden reports a principal lacking the required permission.
	ErrForbidden = errors.New("forbidden")
)

type contextKey string

const principalKey contextKey = "principal"

// Principal is the authenticated caller and the permissions granted to it.
type Principal struct {
	ID          string
	permissions map[string]struct{}
}

// NewPrincipal builds a principal from a list of permission names. Blank entries are ignored.
func NewPrincipal(id string, permissions ...string) Principal {
	set := make(map[string]struct{}, len(permissions))
	for _, perm := range permissions {
		perm = strings.TrimSpace(perm)
		if perm == "" {
			continue
		}
		set[perm] = struct{}{}
	}
	return Principal{ID: strings.TrimSpace(id), permissions: set}
}

// Has reports whether the principal holds perm.
func (p Principal) Has(perm string) bool {
	if _, ok := p.permissions[WildcardPermission]; ok {
		return true
	}
	_, ok := p.permissions[perm]
	return ok
}

// Permissions returns the granted permissions sorted by name.
func (p Principal) Permissions() []string {
	perms := make([]string, 0, len(p.permissions))
	for perm := range p.permissions {
		perms = append(perms, perm)
	}
	sort.Strings(perms)
	return perms
}

// ContextWithPrincipal returns a new context that carries the authenticated principal.
func ContextWithPrincipal(ctx context.Context, principal Principal) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, principalKey, principal)
}

// PrincipalFromContext retrieves the authenticated principal from the context, if any.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	principal, ok := ctx.Value(principalKey).(Principal)
	return principal, ok
}

// EnforcePermission ensures the principal in ctx holds perm.
func EnforcePermission(ctx context.Context, perm string) error {
	principal, ok := PrincipalFromContext(ctx)
	if !ok {
		return ErrUnauthenticated
	}
	if !principal.Has(perm) {
		return fmt.Errorf("%w: missing permission %q", ErrForbidden, perm)
	}
	return nil
}

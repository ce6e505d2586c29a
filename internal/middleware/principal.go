package middleware

import (
	"net/http"
	"strings"

	"github.com/rpattn/reportengine/internal/auth"
)

// PrincipalMiddleware attaches the principal asserted by a trusted upstream
// proxy. Requests without the permissions header carry no principal.
func PrincipalMiddleware(idHeader, permissionsHeader string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := r.Header[http.CanonicalHeaderKey(permissionsHeader)]
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			perms := make([]string, 0)
			for _, value := range raw {
				perms = append(perms, strings.Split(value, ",")...)
			}
			principal := auth.NewPrincipal(r.Header.Get(idHeader), perms...)
			next.ServeHTTP(w, r.WithContext(auth.ContextWithPrincipal(r.Context(), principal)))
		})
	}
}

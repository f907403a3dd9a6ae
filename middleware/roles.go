package middleware

import (
	"net/http"

	"github.com/MrEthical07/sessioncap"
)

// RequireRoles admits principals holding at least one of roles. It must run
// behind [Guard].
func RequireRoles(engine *sessioncap.Engine, roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := sessioncap.PrincipalFromContext(r.Context())
			if !ok {
				unauthorized(w)
				return
			}
			if !engine.HasAnyRole(p, roles...) {
				forbidden(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequirePermission admits principals whose role mask grants perm.
func RequirePermission(engine *sessioncap.Engine, perm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := sessioncap.PrincipalFromContext(r.Context())
			if !ok {
				unauthorized(w)
				return
			}
			if err := engine.Authorize(r.Context(), p, perm); err != nil {
				forbidden(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

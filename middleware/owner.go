package middleware

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/MrEthical07/sessioncap"
)

// PostIDFunc extracts the post ID addressed by a request.
type PostIDFunc func(*http.Request) (int64, error)

// PathPostID reads the post ID from the named path wildcard, as registered
// with http.ServeMux patterns such as "GET /posts/{id}".
func PathPostID(name string) PostIDFunc {
	return func(r *http.Request) (int64, error) {
		return strconv.ParseInt(r.PathValue(name), 10, 64)
	}
}

// RequireOwner admits only the author of the addressed post. A malformed ID
// yields 400 and an unknown post 404.
func RequireOwner(engine *sessioncap.Engine, postID PostIDFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := sessioncap.PrincipalFromContext(r.Context())
			if !ok {
				unauthorized(w)
				return
			}
			id, err := postID(r)
			if err != nil {
				http.Error(w, "bad request", http.StatusBadRequest)
				return
			}

			owner, err := engine.IsOwner(r.Context(), id, p.UserID)
			switch {
			case errors.Is(err, sessioncap.ErrResourceNotFound):
				http.Error(w, "not found", http.StatusNotFound)
			case err != nil:
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
			case !owner:
				forbidden(w)
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

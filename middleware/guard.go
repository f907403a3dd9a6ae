package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/MrEthical07/sessioncap"
)

// Guard admits requests that carry a valid access token.
func Guard(engine *sessioncap.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				unauthorized(w)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				unauthorized(w)
				return
			}

			p, err := engine.Authenticate(r.Context(), token)
			if err != nil {
				if isAuthFailure(err) {
					unauthorized(w)
					return
				}
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
				return
			}

			next.ServeHTTP(w, r.WithContext(sessioncap.WithPrincipal(r.Context(), p)))
		})
	}
}

// isAuthFailure reports whether err should surface as the uniform 401.
func isAuthFailure(err error) bool {
	return errors.Is(err, sessioncap.ErrInvalidToken) ||
		errors.Is(err, sessioncap.ErrExpiredToken) ||
		errors.Is(err, sessioncap.ErrSessionNotFound) ||
		errors.Is(err, sessioncap.ErrUserNotFound)
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="sessioncap"`)
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

func forbidden(w http.ResponseWriter) {
	http.Error(w, "forbidden", http.StatusForbidden)
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}

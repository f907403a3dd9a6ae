package middleware

import (
	"net"
	"net/http"

	"github.com/MrEthical07/sessioncap"
)

// ClientIP stores the host part of r.RemoteAddr in the request context.
// Forwarded headers are ignored; deployments behind a proxy should rewrite
// RemoteAddr before this runs.
func ClientIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		if host != "" {
			r = r.WithContext(sessioncap.WithClientIP(r.Context(), host))
		}
		next.ServeHTTP(w, r)
	})
}

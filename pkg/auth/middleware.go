package auth

import (
	"net/http"
	"strings"
)

// Middleware returns an HTTP middleware that requires a valid
// "Authorization: Bearer <key>" header matching keyring. A nil keyring
// disables authentication entirely, for local development.
func Middleware(keyring *Keyring) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if keyring == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok || keyring.Check(token) != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	return strings.TrimPrefix(header, prefix), true
}

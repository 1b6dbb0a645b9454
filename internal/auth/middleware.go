// Package auth implements the daemon's single shared-secret bearer auth
// of spec.md §4.B.3/§6: every /api request and every event-transport
// handshake must present the token minted into the lock file at start.
// Adapted from the teacher's middleware.go bearer-extraction shape
// (Authorization header, with a fallback), replacing its per-user
// session lookup with a single constant-time secret comparison.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// Middleware returns HTTP middleware that rejects any request not
// carrying expectedToken in the X-Daemon-Token header, an
// "Authorization: Bearer" header, or the ?token= query parameter. A missing or mismatched token gets a 401 with no side
// effects, per spec.md's acceptance test.
func Middleware(expectedToken string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ExtractToken(r)
			if token == "" || !tokensMatch(token, expectedToken) {
				http.Error(w, `{"error":{"kind":"AUTH_ERROR","message":"missing or invalid daemon token"}}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ExtractToken reads the daemon token from the request, preferring the
// X-Daemon-Token header (case-insensitive per net/http) over the
// Authorization bearer form, and falling back to the token query
// parameter.
func ExtractToken(r *http.Request) string {
	if t := r.Header.Get("X-Daemon-Token"); t != "" {
		return t
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

func tokensMatch(got, want string) bool {
	if len(got) != len(want) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

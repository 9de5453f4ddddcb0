package ops

import (
	"net/http"
	"strings"
)

// exemptPaths bypass authentication. Liveness probes cannot attach
// headers, so /healthz stays open; scrapers can, so /metrics does not.
var exemptPaths = map[string]struct{}{
	"/healthz": {},
}

// TokenAuth returns a middleware that validates Bearer tokens against the
// given list. With no tokens the middleware is a pass-through.
func TokenAuth(tokens []string) func(http.Handler) http.Handler {
	valid := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		if tok != "" {
			valid[tok] = struct{}{}
		}
	}

	return func(next http.Handler) http.Handler {
		// Auth disabled — pass everything through
		if len(valid) == 0 {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := exemptPaths[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			auth := r.Header.Get("Authorization")
			if auth == "" {
				unauthorized(w, "missing authorization header")
				return
			}
			token, ok := strings.CutPrefix(auth, "Bearer ")
			if !ok {
				unauthorized(w, "authorization header must use Bearer scheme")
				return
			}
			if _, known := valid[token]; !known {
				unauthorized(w, "invalid token")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func unauthorized(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusUnauthorized, map[string]string{
		"code":    "unauthorized",
		"message": message,
	})
}

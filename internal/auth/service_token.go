package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"

	pkghttp "github.com/bvanengelen78/guardrail/pkg/http"
)

// ServiceTokenMiddleware admits only callers presenting the shared internal
// API token as a bearer credential. An empty configured token rejects every
// request.
func ServiceTokenMiddleware(token string) func(next http.Handler) http.Handler {
	want := sha256.Sum256([]byte(token))
	enabled := token != ""

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented, ok := bearerToken(r)
			if !enabled || !ok {
				pkghttp.WriteUnauthorized(w, "service credential required")
				return
			}

			// hash both sides so the comparison does not leak the token length
			got := sha256.Sum256([]byte(presented))
			if subtle.ConstantTimeCompare(got[:], want[:]) != 1 {
				pkghttp.WriteUnauthorized(w, "invalid service credential")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

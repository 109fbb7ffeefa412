package security

import (
	"net/http"
)

// SecurityHeaders middleware adds security headers to pages the gateway
// renders itself. Proxied responses keep the target's own headers.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Prevent clickjacking
		w.Header().Set("X-Frame-Options", "DENY")

		// Prevent MIME type sniffing
		w.Header().Set("X-Content-Type-Options", "nosniff")

		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cache-Control", "no-store")

		w.Header().Set("Content-Security-Policy",
			"default-src 'none'; "+
				"style-src 'unsafe-inline'; "+
				"form-action 'self'; "+
				"frame-ancestors 'none';")

		next.ServeHTTP(w, r)
	})
}

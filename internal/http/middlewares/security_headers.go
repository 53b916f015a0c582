package middlewares

import (
	"net/http"
	"strings"
)

// Cabeceras fijas para una API JSON que nunca sirve HTML.
var securityHeaders = map[string]string{
	"Referrer-Policy":                   "no-referrer",
	"X-Content-Type-Options":            "nosniff",
	"X-DNS-Prefetch-Control":            "off",
	"X-Permitted-Cross-Domain-Policies": "none",
	"Cross-Origin-Resource-Policy":      "same-site",
	"X-Frame-Options":                   "DENY",
	"Content-Security-Policy":           "default-src 'none'; frame-ancestors 'none'; base-uri 'none'; form-action 'self'",
}

// WithSecurityHeaders aplica securityHeaders en cada respuesta,
// más HSTS cuando el request llegó por HTTPS.
func WithSecurityHeaders() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			for k, v := range securityHeaders {
				h.Set(k, v)
			}
			if isHTTPS(r) {
				h.Set("Strict-Transport-Security", "max-age=15552000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// isHTTPS considera TLS directo o el proto que reporta el proxy.
func isHTTPS(r *http.Request) bool {
	return r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

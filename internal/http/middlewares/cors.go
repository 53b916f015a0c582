package middlewares

import (
	"net/http"
	"strings"
)

func normalizeOrigin(s string) string {
	return strings.TrimRight(strings.TrimSpace(s), "/")
}

// originAllowed compara contra la allowlist; "*" habilita cualquiera.
func originAllowed(origin string, allowed []string) bool {
	for _, a := range allowed {
		if a == "*" || (origin != "" && strings.EqualFold(origin, a)) {
			return true
		}
	}
	return false
}

// WithCORS responde CORS para la SPA de demo según la allowlist configurada.
func WithCORS(allowed []string) Middleware {
	alist := make([]string, len(allowed))
	for i, v := range allowed {
		alist[i] = normalizeOrigin(v)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Vary para caches/proxies
			w.Header().Add("Vary", "Origin")
			w.Header().Add("Vary", "Access-Control-Request-Method")
			w.Header().Add("Vary", "Access-Control-Request-Headers")

			origin := normalizeOrigin(r.Header.Get("Origin"))
			if originAllowed(origin, alist) {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Credentials", "true")
				h.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,HEAD,OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID, X-Device-ID")
				h.Set("Access-Control-Expose-Headers", "X-Request-ID, Retry-After")
				h.Set("Access-Control-Max-Age", "600") // preflight cache 10 min
			}

			if r.Method == http.MethodOptions {
				// preflight: se responde acá, sin pasar al router
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

package middlewares

import "net/http"

// WithNoStore prohíbe cachear la respuesta. Va en las rutas de enrolamiento
// 2FA, cuyas respuestas contienen el secreto (QR incluido).
func WithNoStore() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "no-store")
			w.Header().Set("Pragma", "no-cache")
			next.ServeHTTP(w, r)
		})
	}
}

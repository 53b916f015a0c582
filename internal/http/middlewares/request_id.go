package middlewares

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"strings"
)

const requestIDHeader = "X-Request-ID"

// WithRequestID asegura que cada request tenga un id: respeta el que trae el
// cliente o genera uno. Queda en el response header y en el contexto, donde
// el middleware de logging lo recoge.
func WithRequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rid := strings.TrimSpace(r.Header.Get(requestIDHeader))
			if rid == "" {
				rid = newRequestID()
			}
			w.Header().Set(requestIDHeader, rid)

			next.ServeHTTP(w, r.WithContext(setRequestID(r.Context(), rid)))
		})
	}
}

// newRequestID genera 16 bytes aleatorios en hex (32 chars).
func newRequestID() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

package middlewares

import (
	"net/http"
	"strings"
)

// DeviceIdentityProvider resuelve el identificador de dispositivo de un request.
// Cada sesión se ancla al par (usuario, dispositivo), así que el proveedor
// define qué cuenta como "mismo dispositivo" para el servicio.
type DeviceIdentityProvider interface {
	DeviceID(r *http.Request) string
}

// UserAgentProvider identifica el dispositivo por el header User-Agent.
// Dos clientes con el mismo User-Agent comparten sesión; es la identidad
// de dispositivo más simple que no requiere cooperación del cliente.
type UserAgentProvider struct{}

// DeviceID retorna el User-Agent normalizado, o "unknown" si viene vacío.
func (UserAgentProvider) DeviceID(r *http.Request) string {
	ua := strings.TrimSpace(r.UserAgent())
	if ua == "" {
		return "unknown"
	}
	return ua
}

// HeaderProvider identifica el dispositivo por un header dedicado (p.ej. X-Device-ID),
// con fallback a otro proveedor cuando el header no viene.
type HeaderProvider struct {
	Header   string
	Fallback DeviceIdentityProvider
}

func (p HeaderProvider) DeviceID(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get(p.Header)); v != "" {
		return v
	}
	if p.Fallback != nil {
		return p.Fallback.DeviceID(r)
	}
	return "unknown"
}

// WithDevice resuelve la identidad de dispositivo y la inyecta en el contexto.
func WithDevice(provider DeviceIdentityProvider) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := setDeviceID(r.Context(), provider.DeviceID(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

package middlewares

import "context"

// =================================================================================
// CONTEXT KEYS
// =================================================================================

type ctxKey string

const (
	// ctxRequestIDKey guarda el request ID
	ctxRequestIDKey ctxKey = "request_id"
	// ctxDeviceIDKey guarda el identificador del dispositivo del cliente
	ctxDeviceIDKey ctxKey = "device_id"
)

// setRequestID inyecta el request ID en el contexto (interno)
func setRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxRequestIDKey, requestID)
}

// setDeviceID inyecta el device ID en el contexto (interno)
func setDeviceID(ctx context.Context, deviceID string) context.Context {
	return context.WithValue(ctx, ctxDeviceIDKey, deviceID)
}

// GetRequestID obtiene el request ID del contexto.
// Retorna cadena vacía si no hay request ID.
func GetRequestID(ctx context.Context) string {
	if v := ctx.Value(ctxRequestIDKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// GetDeviceID obtiene el device ID del contexto.
// Retorna cadena vacía si el middleware de device no fue aplicado.
func GetDeviceID(ctx context.Context) string {
	if v := ctx.Value(ctxDeviceIDKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

package repository

import (
	"context"
	"time"
)

// DeviceSession representa la sesión de un usuario en un dispositivo.
// Unicidad: a lo sumo una sesión por par (UserID, DeviceID).
type DeviceSession struct {
	ID     string
	UserID string
	// DeviceID es el fingerprint del dispositivo declarado por el cliente
	// (típicamente el User-Agent). NO es un credential: solo particiona sesiones.
	DeviceID    string
	Verified    bool
	LastLoginAt time.Time
}

// SessionRepository define operaciones sobre sesiones por dispositivo.
type SessionRepository interface {
	// Get busca la sesión del par (userID, deviceID).
	// Retorna ErrNotFound si no existe.
	Get(ctx context.Context, userID, deviceID string) (*DeviceSession, error)

	// Create crea la sesión del par con Verified=false y LastLoginAt=now.
	// La unicidad del par la garantiza el store de forma atómica:
	// retorna ErrConflict si la sesión ya existe.
	Create(ctx context.Context, userID, deviceID string) (*DeviceSession, error)

	// MarkVerified setea Verified=true y refresca LastLoginAt.
	// Retorna ErrNotFound si el par no tiene sesión.
	MarkVerified(ctx context.Context, userID, deviceID string) (*DeviceSession, error)

	// TouchLogin refresca LastLoginAt sin tocar Verified.
	// Retorna ErrNotFound si el par no tiene sesión.
	TouchLogin(ctx context.Context, userID, deviceID string) (*DeviceSession, error)

	// Delete elimina la sesión del par. Retorna true si había una fila.
	Delete(ctx context.Context, userID, deviceID string) (bool, error)
}

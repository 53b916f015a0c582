package repository

import (
	"context"
	"time"
)

// TOTPSecret representa el secreto TOTP de un usuario.
// Hay a lo sumo uno por usuario y es inmutable una vez creado
// (no hay rotación en este servicio).
type TOTPSecret struct {
	ID     string
	UserID string
	// Value es el material del secreto tal como lo entregó el generador
	// (base32 sin padding). El store lo persiste opaco.
	Value     string
	CreatedAt time.Time
}

// SecretRepository define operaciones sobre secretos TOTP.
type SecretRepository interface {
	// GetByUser busca el secreto de un usuario.
	// Retorna ErrNotFound si no existe.
	GetByUser(ctx context.Context, userID string) (*TOTPSecret, error)

	// Create persiste el secreto de un usuario.
	// La unicidad por usuario la garantiza el store de forma atómica:
	// retorna ErrConflict si ya existe uno, sin ventana check-then-act.
	Create(ctx context.Context, userID, value string) (*TOTPSecret, error)
}

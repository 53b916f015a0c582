package repository

import (
	"context"
	"time"
)

// User representa un usuario del sistema.
type User struct {
	ID           string
	Email        string
	Username     string
	PasswordHash string
	// Requires2FA indica si el usuario completó el alta de 2FA.
	// Una vez en true no vuelve a false (no hay baja de 2FA en este servicio).
	Requires2FA bool
	CreatedAt   time.Time
}

// CreateUserInput contiene los datos para crear un usuario (seed/registro externo).
type CreateUserInput struct {
	Email        string
	Username     string
	PasswordHash string
}

// UserRepository define operaciones sobre usuarios.
type UserRepository interface {
	// GetByEmail busca un usuario por email.
	// Retorna ErrNotFound si no existe.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// GetByID busca un usuario por ID.
	// Retorna ErrNotFound si no existe.
	GetByID(ctx context.Context, userID string) (*User, error)

	// Create crea un nuevo usuario.
	// Retorna ErrConflict si el email ya existe.
	Create(ctx context.Context, input CreateUserInput) (*User, error)

	// SetRequires2FA marca Requires2FA=true y retorna el registro actualizado.
	// Es idempotente. El write debe ser durable antes de retornar.
	SetRequires2FA(ctx context.Context, userID string) (*User, error)

	// CheckPassword verifica si el password coincide con el hash.
	// Este método no accede al storage, solo hace la comparación.
	CheckPassword(hash, password string) bool
}

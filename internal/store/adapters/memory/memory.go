// Package memory implementa el adapter de almacenamiento en memoria.
// Se usa en tests y para desarrollo sin persistencia.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/littlejohn/internal/domain/repository"
	"github.com/dropDatabas3/littlejohn/internal/security/password"
	"github.com/dropDatabas3/littlejohn/internal/store"
)

func init() {
	store.RegisterAdapter(&memoryAdapter{})
}

type memoryAdapter struct{}

func (*memoryAdapter) Name() string { return "memory" }

func (*memoryAdapter) Connect(_ context.Context, _ store.AdapterConfig) (store.Connection, error) {
	return New(), nil
}

// Conn es la conexión en memoria. Exportada para que los tests puedan
// construirla directo sin pasar por el registry.
type Conn struct {
	mu       sync.RWMutex
	users    map[string]*repository.User          // por ID
	secrets  map[string]*repository.TOTPSecret    // por UserID
	sessions map[string]*repository.DeviceSession // por UserID + "\x00" + DeviceID
}

// New crea una conexión en memoria vacía.
func New() *Conn {
	return &Conn{
		users:    make(map[string]*repository.User),
		secrets:  make(map[string]*repository.TOTPSecret),
		sessions: make(map[string]*repository.DeviceSession),
	}
}

func (*Conn) Name() string                 { return "memory" }
func (*Conn) Ping(context.Context) error   { return nil }
func (*Conn) Close() error                 { return nil }
func (c *Conn) Users() repository.UserRepository {
	return (*userRepo)(c)
}
func (c *Conn) Secrets() repository.SecretRepository {
	return (*secretRepo)(c)
}
func (c *Conn) Sessions() repository.SessionRepository {
	return (*sessionRepo)(c)
}

func sessionKey(userID, deviceID string) string { return userID + "\x00" + deviceID }

// ─── UserRepository ───

type userRepo Conn

func (r *userRepo) GetByEmail(_ context.Context, email string) (*repository.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range r.users {
		if strings.ToLower(u.Email) == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *userRepo) GetByID(_ context.Context, userID string) (*repository.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *userRepo) Create(_ context.Context, input repository.CreateUserInput) (*repository.User, error) {
	if strings.TrimSpace(input.Email) == "" {
		return nil, repository.ErrInvalidInput
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Email, input.Email) {
			return nil, repository.ErrConflict
		}
	}
	u := &repository.User{
		ID:           uuid.NewString(),
		Email:        input.Email,
		Username:     input.Username,
		PasswordHash: input.PasswordHash,
		CreatedAt:    time.Now().UTC(),
	}
	r.users[u.ID] = u
	cp := *u
	return &cp, nil
}

func (r *userRepo) SetRequires2FA(_ context.Context, userID string) (*repository.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	u.Requires2FA = true
	cp := *u
	return &cp, nil
}

func (r *userRepo) CheckPassword(hash, plain string) bool {
	return password.Verify(plain, hash)
}

// ─── SecretRepository ───

type secretRepo Conn

func (r *secretRepo) GetByUser(_ context.Context, userID string) (*repository.TOTPSecret, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.secrets[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *secretRepo) Create(_ context.Context, userID, value string) (*repository.TOTPSecret, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.secrets[userID]; exists {
		return nil, repository.ErrConflict
	}
	s := &repository.TOTPSecret{
		ID:        uuid.NewString(),
		UserID:    userID,
		Value:     value,
		CreatedAt: time.Now().UTC(),
	}
	r.secrets[userID] = s
	cp := *s
	return &cp, nil
}

// ─── SessionRepository ───

type sessionRepo Conn

func (r *sessionRepo) Get(_ context.Context, userID, deviceID string) (*repository.DeviceSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sessionKey(userID, deviceID)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *sessionRepo) Create(_ context.Context, userID, deviceID string) (*repository.DeviceSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := sessionKey(userID, deviceID)
	if _, exists := r.sessions[key]; exists {
		return nil, repository.ErrConflict
	}
	s := &repository.DeviceSession{
		ID:          uuid.NewString(),
		UserID:      userID,
		DeviceID:    deviceID,
		Verified:    false,
		LastLoginAt: time.Now().UTC(),
	}
	r.sessions[key] = s
	cp := *s
	return &cp, nil
}

func (r *sessionRepo) MarkVerified(_ context.Context, userID, deviceID string) (*repository.DeviceSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionKey(userID, deviceID)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	s.Verified = true
	s.LastLoginAt = time.Now().UTC()
	cp := *s
	return &cp, nil
}

func (r *sessionRepo) TouchLogin(_ context.Context, userID, deviceID string) (*repository.DeviceSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionKey(userID, deviceID)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	s.LastLoginAt = time.Now().UTC()
	cp := *s
	return &cp, nil
}

func (r *sessionRepo) Delete(_ context.Context, userID, deviceID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := sessionKey(userID, deviceID)
	if _, ok := r.sessions[key]; !ok {
		return false, nil
	}
	delete(r.sessions, key)
	return true, nil
}

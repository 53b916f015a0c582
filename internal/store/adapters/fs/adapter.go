// Package fs implementa el adapter de almacenamiento embebido en disco:
// un archivo JSON por colección (users, totp_secrets, device_sessions),
// escrituras atómicas (tmp + rename + fsync) y mutex en proceso.
//
// Es el equivalente al document store del demo original: suficiente para un
// solo nodo, durable antes de responder, sin servidor de base de datos.
package fs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/littlejohn/internal/domain/repository"
	"github.com/dropDatabas3/littlejohn/internal/security/password"
	"github.com/dropDatabas3/littlejohn/internal/store"
)

func init() {
	store.RegisterAdapter(&fsAdapter{})
}

type fsAdapter struct{}

func (*fsAdapter) Name() string { return "fs" }

func (*fsAdapter) Connect(_ context.Context, cfg store.AdapterConfig) (store.Connection, error) {
	return Open(cfg.FSRoot)
}

const (
	usersFile    = "users.json"
	secretsFile  = "totp_secrets.json"
	sessionsFile = "device_sessions.json"
)

// registros persistidos (snake_case como el layout del demo original)

type userRecord struct {
	ID           string    `json:"_id"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"password_hash"`
	Requires2FA  bool      `json:"require_2fa"`
	CreatedAt    time.Time `json:"created_at"`
}

type secretRecord struct {
	ID        string    `json:"_id"`
	UserID    string    `json:"user_id"`
	Value     string    `json:"value"`
	CreatedAt time.Time `json:"created_at"`
}

type sessionRecord struct {
	ID          string    `json:"_id"`
	UserID      string    `json:"user_id"`
	DeviceID    string    `json:"device_id"`
	Verified    bool      `json:"is_2fa_verified"`
	LastLoginAt time.Time `json:"last_login"`
}

// Conn es la conexión al almacenamiento en disco.
type Conn struct {
	root string

	mu       sync.RWMutex
	users    []userRecord
	secrets  []secretRecord
	sessions []sessionRecord
}

// Open carga (o inicializa) el directorio de datos.
func Open(root string) (*Conn, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("fs: empty data root")
	}
	root = filepath.Clean(root)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("fs: mkdir %s: %w", root, err)
	}

	c := &Conn{root: root}
	if err := readJSON(filepath.Join(root, usersFile), &c.users); err != nil {
		return nil, err
	}
	if err := readJSON(filepath.Join(root, secretsFile), &c.secrets); err != nil {
		return nil, err
	}
	if err := readJSON(filepath.Join(root, sessionsFile), &c.sessions); err != nil {
		return nil, err
	}
	return c, nil
}

func readJSON[T any](path string, out *[]T) error {
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		*out = nil
		return nil
	}
	if err != nil {
		return fmt.Errorf("fs: read %s: %w", path, err)
	}
	if len(b) == 0 {
		*out = nil
		return nil
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("fs: parse %s: %w", path, err)
	}
	return nil
}

// persist escribe una colección completa. Llamar con c.mu tomado.
func persist[T any](c *Conn, file string, rows []T) error {
	b, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return fmt.Errorf("fs: marshal %s: %w", file, err)
	}
	if err := atomicWriteFile(filepath.Join(c.root, file), b, 0o600); err != nil {
		return fmt.Errorf("fs: write %s: %w", file, err)
	}
	return nil
}

func (*Conn) Name() string { return "fs" }

func (c *Conn) Ping(context.Context) error {
	_, err := os.Stat(c.root)
	return err
}

func (*Conn) Close() error { return nil }

func (c *Conn) Users() repository.UserRepository       { return (*userRepo)(c) }
func (c *Conn) Secrets() repository.SecretRepository   { return (*secretRepo)(c) }
func (c *Conn) Sessions() repository.SessionRepository { return (*sessionRepo)(c) }

// ─── UserRepository ───

type userRepo Conn

func (r *userRepo) conn() *Conn { return (*Conn)(r) }

func (r *userRepo) GetByEmail(_ context.Context, email string) (*repository.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for i := range r.users {
		if strings.ToLower(r.users[i].Email) == email {
			return userToDomain(r.users[i]), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *userRepo) GetByID(_ context.Context, userID string) (*repository.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := range r.users {
		if r.users[i].ID == userID {
			return userToDomain(r.users[i]), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *userRepo) Create(_ context.Context, input repository.CreateUserInput) (*repository.User, error) {
	if strings.TrimSpace(input.Email) == "" {
		return nil, repository.ErrInvalidInput
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.users {
		if strings.EqualFold(r.users[i].Email, input.Email) {
			return nil, repository.ErrConflict
		}
	}
	rec := userRecord{
		ID:           uuid.NewString(),
		Email:        input.Email,
		Username:     input.Username,
		PasswordHash: input.PasswordHash,
		CreatedAt:    time.Now().UTC(),
	}
	r.users = append(r.users, rec)
	if err := persist(r.conn(), usersFile, r.users); err != nil {
		r.users = r.users[:len(r.users)-1]
		return nil, err
	}
	return userToDomain(rec), nil
}

func (r *userRepo) SetRequires2FA(_ context.Context, userID string) (*repository.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.users {
		if r.users[i].ID == userID {
			if r.users[i].Requires2FA {
				return userToDomain(r.users[i]), nil // idempotente
			}
			r.users[i].Requires2FA = true
			if err := persist(r.conn(), usersFile, r.users); err != nil {
				r.users[i].Requires2FA = false
				return nil, err
			}
			return userToDomain(r.users[i]), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *userRepo) CheckPassword(hash, plain string) bool {
	return password.Verify(plain, hash)
}

func userToDomain(rec userRecord) *repository.User {
	return &repository.User{
		ID:           rec.ID,
		Email:        rec.Email,
		Username:     rec.Username,
		PasswordHash: rec.PasswordHash,
		Requires2FA:  rec.Requires2FA,
		CreatedAt:    rec.CreatedAt,
	}
}

// ─── SecretRepository ───

type secretRepo Conn

func (r *secretRepo) conn() *Conn { return (*Conn)(r) }

func (r *secretRepo) GetByUser(_ context.Context, userID string) (*repository.TOTPSecret, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := range r.secrets {
		if r.secrets[i].UserID == userID {
			return secretToDomain(r.secrets[i]), nil
		}
	}
	return nil, repository.ErrNotFound
}

// Create garantiza un secreto por usuario: el chequeo y el insert ocurren
// bajo el mismo lock, sin ventana para duplicados.
func (r *secretRepo) Create(_ context.Context, userID, value string) (*repository.TOTPSecret, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.secrets {
		if r.secrets[i].UserID == userID {
			return nil, repository.ErrConflict
		}
	}
	rec := secretRecord{
		ID:        uuid.NewString(),
		UserID:    userID,
		Value:     value,
		CreatedAt: time.Now().UTC(),
	}
	r.secrets = append(r.secrets, rec)
	if err := persist(r.conn(), secretsFile, r.secrets); err != nil {
		r.secrets = r.secrets[:len(r.secrets)-1]
		return nil, err
	}
	return secretToDomain(rec), nil
}

func secretToDomain(rec secretRecord) *repository.TOTPSecret {
	return &repository.TOTPSecret{
		ID:        rec.ID,
		UserID:    rec.UserID,
		Value:     rec.Value,
		CreatedAt: rec.CreatedAt,
	}
}

// ─── SessionRepository ───

type sessionRepo Conn

func (r *sessionRepo) conn() *Conn { return (*Conn)(r) }

func (r *sessionRepo) find(userID, deviceID string) int {
	for i := range r.sessions {
		if r.sessions[i].UserID == userID && r.sessions[i].DeviceID == deviceID {
			return i
		}
	}
	return -1
}

func (r *sessionRepo) Get(_ context.Context, userID, deviceID string) (*repository.DeviceSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i := r.find(userID, deviceID); i >= 0 {
		return sessionToDomain(r.sessions[i]), nil
	}
	return nil, repository.ErrNotFound
}

// Create garantiza una sesión por par (usuario, dispositivo) bajo el lock.
func (r *sessionRepo) Create(_ context.Context, userID, deviceID string) (*repository.DeviceSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.find(userID, deviceID) >= 0 {
		return nil, repository.ErrConflict
	}
	rec := sessionRecord{
		ID:          uuid.NewString(),
		UserID:      userID,
		DeviceID:    deviceID,
		Verified:    false,
		LastLoginAt: time.Now().UTC(),
	}
	r.sessions = append(r.sessions, rec)
	if err := persist(r.conn(), sessionsFile, r.sessions); err != nil {
		r.sessions = r.sessions[:len(r.sessions)-1]
		return nil, err
	}
	return sessionToDomain(rec), nil
}

func (r *sessionRepo) MarkVerified(_ context.Context, userID, deviceID string) (*repository.DeviceSession, error) {
	return r.update(userID, deviceID, func(rec *sessionRecord) {
		rec.Verified = true
		rec.LastLoginAt = time.Now().UTC()
	})
}

func (r *sessionRepo) TouchLogin(_ context.Context, userID, deviceID string) (*repository.DeviceSession, error) {
	return r.update(userID, deviceID, func(rec *sessionRecord) {
		rec.LastLoginAt = time.Now().UTC()
	})
}

func (r *sessionRepo) update(userID, deviceID string, mutate func(*sessionRecord)) (*repository.DeviceSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.find(userID, deviceID)
	if i < 0 {
		return nil, repository.ErrNotFound
	}
	prev := r.sessions[i]
	mutate(&r.sessions[i])
	if err := persist(r.conn(), sessionsFile, r.sessions); err != nil {
		r.sessions[i] = prev
		return nil, err
	}
	return sessionToDomain(r.sessions[i]), nil
}

func (r *sessionRepo) Delete(_ context.Context, userID, deviceID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.find(userID, deviceID)
	if i < 0 {
		return false, nil
	}
	removed := r.sessions[i]
	r.sessions = append(r.sessions[:i], r.sessions[i+1:]...)
	if err := persist(r.conn(), sessionsFile, r.sessions); err != nil {
		// restore para mantener memoria y disco consistentes
		r.sessions = append(r.sessions, removed)
		return false, err
	}
	return true, nil
}

func sessionToDomain(rec sessionRecord) *repository.DeviceSession {
	return &repository.DeviceSession{
		ID:          rec.ID,
		UserID:      rec.UserID,
		DeviceID:    rec.DeviceID,
		Verified:    rec.Verified,
		LastLoginAt: rec.LastLoginAt,
	}
}

// Package pg implementa el adapter PostgreSQL sobre pgxpool.
// La unicidad (email, secreto por usuario, par usuario/dispositivo) la
// garantizan unique indexes; los inserts usan ON CONFLICT DO NOTHING y
// reportan ErrConflict cuando no insertaron fila.
package pg

import (
	"context"
	"embed"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/littlejohn/internal/domain/repository"
	"github.com/dropDatabas3/littlejohn/internal/security/password"
	"github.com/dropDatabas3/littlejohn/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

func init() {
	store.RegisterAdapter(&pgAdapter{})
}

type pgAdapter struct{}

func (*pgAdapter) Name() string { return "pg" }

func (*pgAdapter) Connect(ctx context.Context, cfg store.AdapterConfig) (store.Connection, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pg: pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg: ping: %w", err)
	}

	c := &Conn{pool: pool}
	if err := c.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return c, nil
}

// Conn es la conexión activa a PostgreSQL.
type Conn struct {
	pool *pgxpool.Pool
}

func (*Conn) Name() string { return "pg" }

func (c *Conn) Ping(ctx context.Context) error { return c.pool.Ping(ctx) }

func (c *Conn) Close() error {
	c.pool.Close()
	return nil
}

func (c *Conn) Users() repository.UserRepository       { return &userRepo{pool: c.pool} }
func (c *Conn) Secrets() repository.SecretRepository   { return &secretRepo{pool: c.pool} }
func (c *Conn) Sessions() repository.SessionRepository { return &sessionRepo{pool: c.pool} }

// migrate aplica los .sql embebidos en orden lexicográfico.
func (c *Conn) migrate(ctx context.Context) error {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("pg: read migrations: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		sql, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("pg: read migration %s: %w", name, err)
		}
		if _, err := c.pool.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("pg: apply migration %s: %w", name, err)
		}
	}
	return nil
}

// ─── UserRepository ───

type userRepo struct {
	pool *pgxpool.Pool
}

const userCols = "id, email, username, password_hash, require_2fa, created_at"

func scanUser(row pgx.Row) (*repository.User, error) {
	var u repository.User
	err := row.Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.Requires2FA, &u.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (*repository.User, error) {
	return scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userCols+` FROM users WHERE lower(email) = lower($1)`, email))
}

func (r *userRepo) GetByID(ctx context.Context, userID string) (*repository.User, error) {
	return scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userCols+` FROM users WHERE id = $1`, userID))
}

func (r *userRepo) Create(ctx context.Context, input repository.CreateUserInput) (*repository.User, error) {
	if input.Email == "" {
		return nil, repository.ErrInvalidInput
	}
	id := uuid.NewString()
	row := r.pool.QueryRow(ctx,
		`INSERT INTO users (id, email, username, password_hash)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT DO NOTHING
		 RETURNING `+userCols,
		id, input.Email, input.Username, input.PasswordHash)
	u, err := scanUser(row)
	if repository.IsNotFound(err) {
		return nil, repository.ErrConflict
	}
	return u, err
}

func (r *userRepo) SetRequires2FA(ctx context.Context, userID string) (*repository.User, error) {
	return scanUser(r.pool.QueryRow(ctx,
		`UPDATE users SET require_2fa = true WHERE id = $1 RETURNING `+userCols, userID))
}

func (r *userRepo) CheckPassword(hash, plain string) bool {
	return password.Verify(plain, hash)
}

// ─── SecretRepository ───

type secretRepo struct {
	pool *pgxpool.Pool
}

const secretCols = "id, user_id, value, created_at"

func scanSecret(row pgx.Row) (*repository.TOTPSecret, error) {
	var s repository.TOTPSecret
	err := row.Scan(&s.ID, &s.UserID, &s.Value, &s.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *secretRepo) GetByUser(ctx context.Context, userID string) (*repository.TOTPSecret, error) {
	return scanSecret(r.pool.QueryRow(ctx,
		`SELECT `+secretCols+` FROM totp_secrets WHERE user_id = $1`, userID))
}

func (r *secretRepo) Create(ctx context.Context, userID, value string) (*repository.TOTPSecret, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO totp_secrets (id, user_id, value)
		 VALUES ($1, $2, $3)
		 ON CONFLICT ON CONSTRAINT totp_secrets_user_uq DO NOTHING
		 RETURNING `+secretCols,
		uuid.NewString(), userID, value)
	s, err := scanSecret(row)
	if repository.IsNotFound(err) {
		// el unique index decidió: ya hay un secreto para el usuario
		return nil, repository.ErrConflict
	}
	return s, err
}

// ─── SessionRepository ───

type sessionRepo struct {
	pool *pgxpool.Pool
}

const sessionCols = "id, user_id, device_id, is_2fa_verified, last_login"

func scanSession(row pgx.Row) (*repository.DeviceSession, error) {
	var s repository.DeviceSession
	err := row.Scan(&s.ID, &s.UserID, &s.DeviceID, &s.Verified, &s.LastLoginAt)
	if err == pgx.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *sessionRepo) Get(ctx context.Context, userID, deviceID string) (*repository.DeviceSession, error) {
	return scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionCols+` FROM device_sessions WHERE user_id = $1 AND device_id = $2`,
		userID, deviceID))
}

func (r *sessionRepo) Create(ctx context.Context, userID, deviceID string) (*repository.DeviceSession, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO device_sessions (id, user_id, device_id, is_2fa_verified, last_login)
		 VALUES ($1, $2, $3, false, now())
		 ON CONFLICT ON CONSTRAINT device_sessions_pair_uq DO NOTHING
		 RETURNING `+sessionCols,
		uuid.NewString(), userID, deviceID)
	s, err := scanSession(row)
	if repository.IsNotFound(err) {
		return nil, repository.ErrConflict
	}
	return s, err
}

func (r *sessionRepo) MarkVerified(ctx context.Context, userID, deviceID string) (*repository.DeviceSession, error) {
	return scanSession(r.pool.QueryRow(ctx,
		`UPDATE device_sessions SET is_2fa_verified = true, last_login = now()
		 WHERE user_id = $1 AND device_id = $2
		 RETURNING `+sessionCols,
		userID, deviceID))
}

func (r *sessionRepo) TouchLogin(ctx context.Context, userID, deviceID string) (*repository.DeviceSession, error) {
	return scanSession(r.pool.QueryRow(ctx,
		`UPDATE device_sessions SET last_login = now()
		 WHERE user_id = $1 AND device_id = $2
		 RETURNING `+sessionCols,
		userID, deviceID))
}

func (r *sessionRepo) Delete(ctx context.Context, userID, deviceID string) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM device_sessions WHERE user_id = $1 AND device_id = $2`,
		userID, deviceID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

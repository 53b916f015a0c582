package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/littlejohn/internal/cache"
	"github.com/dropDatabas3/littlejohn/internal/domain/repository"
	"github.com/dropDatabas3/littlejohn/internal/http/router"
	svcauth "github.com/dropDatabas3/littlejohn/internal/http/services/auth"
	"github.com/dropDatabas3/littlejohn/internal/security/password"
	"github.com/dropDatabas3/littlejohn/internal/security/totp"
	"github.com/dropDatabas3/littlejohn/internal/store/adapters/memory"
)

const (
	seedEmail    = "ada@example.com"
	seedPassword = "hunter2"
	deviceA      = "e2e-device-a/1.0"
	deviceB      = "e2e-device-b/1.0"
)

// env es el stack completo del servicio sobre store y cache en memoria.
type env struct {
	srv  *httptest.Server
	conn *memory.Conn
	user *repository.User
}

func newEnv(t *testing.T) *env {
	t.Helper()

	conn := memory.New()
	c, err := cache.New(cache.Config{Kind: "memory", Prefix: "e2e", DefaultTTL: time.Minute})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	hash, err := password.Hash(password.Default, seedPassword)
	require.NoError(t, err)
	user, err := conn.Users().Create(context.Background(), repository.CreateUserInput{
		Email:        seedEmail,
		Username:     "ada",
		PasswordHash: hash,
	})
	require.NoError(t, err)

	svc := svcauth.New(svcauth.Deps{
		Store:  conn,
		Cache:  c,
		Issuer: "LittleJohn",
		Window: 1,
		QRSize: 256,
	})

	srv := httptest.NewServer(router.New(router.Deps{
		Auth:               svc,
		CORSAllowedOrigins: []string{"http://localhost:3000"},
	}))
	t.Cleanup(srv.Close)

	return &env{srv: srv, conn: conn, user: user}
}

// do ejecuta un request JSON con el User-Agent como identidad de dispositivo.
func (e *env) do(t *testing.T, method, path, device string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("User-Agent", device)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var out map[string]any
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), "body: %s", raw)
	}
	return resp, out
}

// currentOTP deriva el código vigente del secreto del usuario seed.
func (e *env) currentOTP(t *testing.T) string {
	t.Helper()
	secret, err := e.conn.Secrets().GetByUser(context.Background(), e.user.ID)
	require.NoError(t, err)
	code, err := totp.GenerateCode(secret.Value, time.Now())
	require.NoError(t, err)
	return code
}

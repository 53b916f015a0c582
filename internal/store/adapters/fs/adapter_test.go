package fs

import (
	"context"
	"sync"
	"testing"

	"github.com/dropDatabas3/littlejohn/internal/domain/repository"
	"github.com/dropDatabas3/littlejohn/internal/security/password"
)

func openTestConn(t *testing.T) (*Conn, string) {
	t.Helper()
	dir := t.TempDir()
	c, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return c, dir
}

func seedUser(t *testing.T, c *Conn) *repository.User {
	t.Helper()
	hash, err := password.Hash(password.Default, "secret")
	if err != nil {
		t.Fatal(err)
	}
	u, err := c.Users().Create(context.Background(), repository.CreateUserInput{
		Email:        "john@example.com",
		Username:     "john",
		PasswordHash: hash,
	})
	if err != nil {
		t.Fatalf("Create user: %v", err)
	}
	return u
}

func TestUsers_CreateAndLookup(t *testing.T) {
	ctx := context.Background()
	c, _ := openTestConn(t)
	u := seedUser(t, c)

	got, err := c.Users().GetByEmail(ctx, "John@Example.COM")
	if err != nil {
		t.Fatalf("GetByEmail: %v", err)
	}
	if got.ID != u.ID {
		t.Errorf("id mismatch: %s vs %s", got.ID, u.ID)
	}

	if _, err := c.Users().GetByEmail(ctx, "nobody@example.com"); !repository.IsNotFound(err) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := c.Users().GetByID(ctx, "nope"); !repository.IsNotFound(err) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	// email duplicado
	if _, err := c.Users().Create(ctx, repository.CreateUserInput{Email: "john@example.com"}); !repository.IsConflict(err) {
		t.Errorf("expected ErrConflict, got %v", err)
	}

	if !c.Users().CheckPassword(got.PasswordHash, "secret") {
		t.Error("CheckPassword should accept the seeded password")
	}
	if c.Users().CheckPassword(got.PasswordHash, "other") {
		t.Error("CheckPassword should reject a wrong password")
	}
}

func TestUsers_SetRequires2FA_IdempotentAndDurable(t *testing.T) {
	ctx := context.Background()
	c, dir := openTestConn(t)
	u := seedUser(t, c)

	upd, err := c.Users().SetRequires2FA(ctx, u.ID)
	if err != nil || !upd.Requires2FA {
		t.Fatalf("SetRequires2FA: (%+v, %v)", upd, err)
	}
	// segunda llamada: no-op
	upd2, err := c.Users().SetRequires2FA(ctx, u.ID)
	if err != nil || !upd2.Requires2FA {
		t.Fatalf("idempotent SetRequires2FA: (%+v, %v)", upd2, err)
	}

	// reabrir: el flag sobrevive al proceso
	c2, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	got, err := c2.Users().GetByID(ctx, u.ID)
	if err != nil || !got.Requires2FA {
		t.Fatalf("after reopen: (%+v, %v)", got, err)
	}
}

func TestSecrets_OnePerUser(t *testing.T) {
	ctx := context.Background()
	c, _ := openTestConn(t)
	u := seedUser(t, c)

	if _, err := c.Secrets().GetByUser(ctx, u.ID); !repository.IsNotFound(err) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	s, err := c.Secrets().Create(ctx, u.ID, "BASE32SECRET")
	if err != nil {
		t.Fatalf("Create secret: %v", err)
	}
	if _, err := c.Secrets().Create(ctx, u.ID, "OTHER"); !repository.IsConflict(err) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	got, err := c.Secrets().GetByUser(ctx, u.ID)
	if err != nil || got.Value != s.Value {
		t.Fatalf("GetByUser: (%+v, %v)", got, err)
	}
}

func TestSessions_Lifecycle(t *testing.T) {
	ctx := context.Background()
	c, _ := openTestConn(t)
	u := seedUser(t, c)
	const device = "Mozilla/5.0 test"

	if _, err := c.Sessions().Get(ctx, u.ID, device); !repository.IsNotFound(err) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := c.Sessions().MarkVerified(ctx, u.ID, device); !repository.IsNotFound(err) {
		t.Fatalf("MarkVerified without session: got %v", err)
	}

	s, err := c.Sessions().Create(ctx, u.ID, device)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if s.Verified {
		t.Error("new session must start unverified")
	}

	touched, err := c.Sessions().TouchLogin(ctx, u.ID, device)
	if err != nil {
		t.Fatalf("TouchLogin: %v", err)
	}
	if touched.Verified {
		t.Error("TouchLogin must not alter verified")
	}
	if touched.LastLoginAt.Before(s.LastLoginAt) {
		t.Error("TouchLogin must refresh last_login")
	}

	verified, err := c.Sessions().MarkVerified(ctx, u.ID, device)
	if err != nil || !verified.Verified {
		t.Fatalf("MarkVerified: (%+v, %v)", verified, err)
	}

	ok, err := c.Sessions().Delete(ctx, u.ID, device)
	if err != nil || !ok {
		t.Fatalf("Delete: (%v, %v)", ok, err)
	}
	// idempotente
	ok, err = c.Sessions().Delete(ctx, u.ID, device)
	if err != nil || ok {
		t.Fatalf("second Delete: (%v, %v)", ok, err)
	}
}

func TestSessions_ConcurrentCreate_SingleRow(t *testing.T) {
	ctx := context.Background()
	c, _ := openTestConn(t)
	u := seedUser(t, c)
	const device = "racing-device"

	const n = 16
	var wg sync.WaitGroup
	created := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Sessions().Create(ctx, u.ID, device); err == nil {
				created <- struct{}{}
			} else if !repository.IsConflict(err) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	close(created)

	var wins int
	for range created {
		wins++
	}
	if wins != 1 {
		t.Fatalf("expected exactly 1 successful create, got %d", wins)
	}
}

func TestOpen_ReloadsExistingData(t *testing.T) {
	ctx := context.Background()
	c, dir := openTestConn(t)
	u := seedUser(t, c)
	if _, err := c.Sessions().Create(ctx, u.ID, "dev"); err != nil {
		t.Fatal(err)
	}

	c2, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c2.Sessions().Get(ctx, u.ID, "dev"); err != nil {
		t.Fatalf("session lost after reopen: %v", err)
	}
}
